// Package notify sends best-effort external notifications on node
// lifecycle transitions: external side effects are best-effort, never
// blocking the state transition that triggered them. A botToken-gated
// Slack client with an IsEnabled/noop fallback posts a one-line
// node-failure notice — no modal/ephemeral/thread surface, only a
// fire-and-forget channel post.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"

	"github.com/fleetforge/controlplane/pkg/id"
)

// Provider is a best-effort external notification sink. Every method must
// never block the write path it is called from and must swallow its own
// errors into a log line.
type Provider interface {
	Name() string
	NotifyNodeFailed(ctx context.Context, nodeID id.NodeID, hostID id.HostID, reason string)
	NotifyNodeCanceled(ctx context.Context, nodeID id.NodeID, hostID id.HostID, reason string)
}

// SlackProvider posts node-failure/cancellation notices to a fixed channel.
type SlackProvider struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewSlackProvider builds a SlackProvider. If botToken is empty the
// provider is a silent noop.
func NewSlackProvider(botToken, channel string, logger *slog.Logger) *SlackProvider {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &SlackProvider{client: client, channel: channel, logger: logger}
}

func (p *SlackProvider) Name() string { return "slack" }

func (p *SlackProvider) enabled() bool {
	return p.client != nil && p.channel != ""
}

func (p *SlackProvider) NotifyNodeFailed(ctx context.Context, nodeID id.NodeID, hostID id.HostID, reason string) {
	p.post(ctx, fmt.Sprintf(":red_circle: node %s on host %s failed: %s", nodeID, hostID, reason))
}

func (p *SlackProvider) NotifyNodeCanceled(ctx context.Context, nodeID id.NodeID, hostID id.HostID, reason string) {
	p.post(ctx, fmt.Sprintf(":no_entry: node %s canceled after exhausting placement retries: %s", nodeID, reason))
}

func (p *SlackProvider) post(ctx context.Context, text string) {
	if !p.enabled() {
		p.logger.Debug("slack notify disabled, dropping message", "text", text)
		return
	}
	if _, _, err := p.client.PostMessageContext(ctx, p.channel, goslack.MsgOptionText(text, false)); err != nil {
		p.logger.Warn("slack notify failed", "error", err)
	}
}

// Registry fans a notification out to every registered Provider,
// independently and best-effort.
type Registry struct {
	providers []Provider
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry { return &Registry{} }

// Register adds p to the fan-out set.
func (r *Registry) Register(p Provider) { r.providers = append(r.providers, p) }

// NotifyNodeFailed fans out to every registered provider.
func (r *Registry) NotifyNodeFailed(ctx context.Context, nodeID id.NodeID, hostID id.HostID, reason string) {
	for _, p := range r.providers {
		p.NotifyNodeFailed(ctx, nodeID, hostID, reason)
	}
}

// NotifyNodeCanceled fans out to every registered provider.
func (r *Registry) NotifyNodeCanceled(ctx context.Context, nodeID id.NodeID, hostID id.HostID, reason string) {
	for _, p := range r.providers {
		p.NotifyNodeCanceled(ctx, nodeID, hostID, reason)
	}
}
