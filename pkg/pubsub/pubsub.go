// Package pubsub is the per-topic message bus: commands fan out to a
// host's agent, domain events fan out to console subscribers, and every
// subscribe is gated by the same visibility/ACL rule pkg/claims applies to
// RPCs.
//
// The same *redis.Client the app wires once at startup for the health
// check's Ping carries this too: redis.Client.Publish/Subscribe is the
// natural extension of a dependency already on hand, rather than pulling
// in a dedicated message bus.
package pubsub

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/fleetforge/controlplane/pkg/claims"
	"github.com/fleetforge/controlplane/pkg/rbac"
	"github.com/fleetforge/controlplane/pkg/secrets"
	"github.com/fleetforge/controlplane/pkg/store"
)

// Bus wraps a redis.Client's pub/sub surface and implements
// store.Publisher so a committed write transaction can drain its buffered
// messages onto it.
type Bus struct {
	rdb *redis.Client
}

// NewBus wraps an already-connected redis.Client.
func NewBus(rdb *redis.Client) *Bus {
	return &Bus{rdb: rdb}
}

// Publish delivers payload to topic. Publishing is fire-and-forget from
// the caller's perspective; redis guarantees
// at-least-once delivery to currently-connected subscribers within its own
// retry window, and consumers must de-duplicate by event id.
func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.rdb.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("pubsub: publishing to %s: %w", topic, err)
	}
	return nil
}

// Topic builders's fixed topic shapes.
func OrgTopic(orgID string) string           { return "/orgs/" + orgID }
func HostTopic(hostID string) string         { return "/hosts/" + hostID }
func NodeTopic(nodeID string) string         { return "/nodes/" + nodeID }
func HostStatusTopic(hostID string) string   { return "/bv/hosts/" + hostID + "/status" }

// IsWildcard reports whether topic is a wildcard subscription pattern
// (trailing "*", the shape redis PSubscribe accepts).
func IsWildcard(topic string) bool {
	return strings.HasSuffix(topic, "*")
}

// Subscribe authorizes bearer against topic and, if authorized, returns a
// live redis.PubSub the caller can read Receive() from. A wildcard topic
// requires the admin ACL permission (PermSubscribeWildcard)
// unconditionally; any other topic
// falls through to the standard claims.Authorize visibility + permission
// check against the topic's parsed target resource.
func (b *Bus) Subscribe(ctx context.Context, bearer, topic string, signer *secrets.Signer, tx store.ReadTx) (*redis.PubSub, error) {
	if IsWildcard(topic) {
		c, err := claims.ParseBearer(ctx, tx, signer, bearer)
		if err != nil {
			return nil, err
		}
		granted, err := rolesGranted(c)
		if err != nil {
			return nil, err
		}
		if !granted[rbac.PermSubscribeWildcard] {
			return nil, &claims.MissingPermError{Perm: rbac.PermSubscribeWildcard}
		}
		return b.rdb.PSubscribe(ctx, topic), nil
	}

	target, required, err := parseTopicTarget(topic)
	if err != nil {
		return nil, err
	}

	if _, err := claims.Authorize(ctx, bearer, required, target, signer, tx); err != nil {
		return nil, err
	}

	return b.rdb.Subscribe(ctx, topic), nil
}

// rolesGranted re-derives the permission set a claim carries, mirroring the
// role-expansion step of claims.Authorize for the
// wildcard-only ACL path, which never needs a visibility check.
func rolesGranted(c claims.Claims) (map[rbac.Permission]bool, error) {
	out := map[rbac.Permission]bool{}
	switch a := c.Access.(type) {
	case claims.RolesOne:
		for p := range rbac.ExpandRoles([]rbac.Role{rbac.Role(a)}) {
			out[p] = true
		}
	case claims.RolesMany:
		for p := range rbac.ExpandRoles([]rbac.Role(a)) {
			out[p] = true
		}
	case claims.PermsOne:
		out[rbac.Permission(a)] = true
	case claims.PermsAll:
		for _, p := range a {
			out[p] = true
		}
	case claims.PermsAny:
		for _, p := range a {
			out[p] = true
		}
	}
	return out, nil
}

// parseTopicTarget maps a concrete (non-wildcard) topic string to the
// claims.Target it names and the read permission required to subscribe to
// it's topic shapes.
func parseTopicTarget(topic string) (claims.Target, claims.Requirement, error) {
	parts := strings.Split(strings.Trim(topic, "/"), "/")
	switch {
	case len(parts) == 2 && parts[0] == "orgs":
		return claims.NewTarget(claims.KindOrg, parts[1]), claims.Perm(rbac.PermOrgRead), nil
	case len(parts) == 2 && parts[0] == "hosts":
		return claims.NewTarget(claims.KindHost, parts[1]), claims.Perm(rbac.PermHostRead), nil
	case len(parts) == 2 && parts[0] == "nodes":
		return claims.NewTarget(claims.KindNode, parts[1]), claims.Perm(rbac.PermNodeRead), nil
	case len(parts) == 4 && parts[0] == "bv" && parts[1] == "hosts" && parts[3] == "status":
		return claims.NewTarget(claims.KindHost, parts[2]), claims.Perm(rbac.PermHostRead), nil
	default:
		return claims.Target{}, nil, fmt.Errorf("pubsub: unrecognized topic shape %q", topic)
	}
}
