// Package dnsprovider is the narrow boundary between node lifecycle and
// whatever DNS system publishes a node's address under this platform's
// zone: upsert/delete a DNS record, best-effort.
package dnsprovider

import (
	"context"
	"log/slog"
	"net/netip"
)

// Provider publishes and retracts a DNS record pointing at a node's
// address. A real implementation would wrap a provider SDK (Route53,
// Cloudflare, etc.); this module wires only the interface and a logging
// stub.
type Provider interface {
	UpsertRecord(ctx context.Context, zone, name string, addr netip.Addr) error
	DeleteRecord(ctx context.Context, zone, name string) error
}

// LoggingProvider logs the record that would have been published instead
// of calling a real DNS API.
type LoggingProvider struct {
	logger *slog.Logger
}

// NewLoggingProvider builds the best-effort stub.
func NewLoggingProvider(logger *slog.Logger) *LoggingProvider {
	return &LoggingProvider{logger: logger}
}

func (p *LoggingProvider) UpsertRecord(ctx context.Context, zone, name string, addr netip.Addr) error {
	p.logger.Info("dns: stub record upserted", "zone", zone, "name", name, "addr", addr)
	return nil
}

func (p *LoggingProvider) DeleteRecord(ctx context.Context, zone, name string) error {
	p.logger.Info("dns: stub record deleted", "zone", zone, "name", name)
	return nil
}
