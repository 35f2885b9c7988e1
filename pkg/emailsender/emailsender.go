// Package emailsender is the narrow boundary between invitation handling
// and whatever transactional email system actually delivers an invite;
// never a real mail client.
package emailsender

import (
	"context"
	"log/slog"
)

// Sender delivers an org invitation to an email address. A real
// implementation would wrap something like an SES or Postmark client;
// this module wires only the interface and a logging stub.
type Sender interface {
	SendInvitation(ctx context.Context, to, orgName, role, token string) error
}

// LoggingSender logs the message that would have been sent instead of
// calling a real email API.
type LoggingSender struct {
	logger *slog.Logger
}

// NewLoggingSender builds the best-effort stub.
func NewLoggingSender(logger *slog.Logger) *LoggingSender {
	return &LoggingSender{logger: logger}
}

func (s *LoggingSender) SendInvitation(ctx context.Context, to, orgName, role, token string) error {
	s.logger.Info("emailsender: stub invitation sent", "to", to, "org", orgName, "role", role)
	return nil
}
