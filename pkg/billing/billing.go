// Package billing is the narrow boundary between subscription lifecycle
// handlers and whatever external billing system of record an org's
// subscription is mirrored from: an interface plus a logging stub. The
// subscription handlers call it synchronously before persisting, and an
// error it returns fails the request.
package billing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fleetforge/controlplane/pkg/id"
)

// Provider creates and cancels subscriptions in an external billing system.
// A real implementation would wrap something like a Stripe or Chargebee
// client; this module wires only the interface plus a logging stub, per
// the narrow-interface-with-best-effort-stub requirement for every
// external provider this repo never actually calls out to.
type Provider interface {
	// CreateSubscription provisions planKey for orgID with the external
	// provider and returns its identifier for the subscription row's
	// ExternalRef.
	CreateSubscription(ctx context.Context, orgID id.OrgID, planKey string) (externalRef string, err error)
	CancelSubscription(ctx context.Context, externalRef string) error
}

// LoggingProvider is the stand-in Provider used when no real billing
// integration is configured: it fabricates a local reference and logs the
// call instead of reaching out to a real system.
type LoggingProvider struct {
	logger *slog.Logger
}

// NewLoggingProvider builds the best-effort stub.
func NewLoggingProvider(logger *slog.Logger) *LoggingProvider {
	return &LoggingProvider{logger: logger}
}

func (p *LoggingProvider) CreateSubscription(ctx context.Context, orgID id.OrgID, planKey string) (string, error) {
	ref := fmt.Sprintf("stub-sub-%s-%s", orgID, planKey)
	p.logger.Info("billing: stub subscription created", "org_id", orgID, "plan_key", planKey, "external_ref", ref)
	return ref, nil
}

func (p *LoggingProvider) CancelSubscription(ctx context.Context, externalRef string) error {
	p.logger.Info("billing: stub subscription canceled", "external_ref", externalRef)
	return nil
}
