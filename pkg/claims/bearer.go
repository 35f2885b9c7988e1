package claims

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fleetforge/controlplane/pkg/clock"
	"github.com/fleetforge/controlplane/pkg/id"
	"github.com/fleetforge/controlplane/pkg/rbac"
	"github.com/fleetforge/controlplane/pkg/secrets"
	"github.com/fleetforge/controlplane/pkg/store"
)

func orgIDOf(s string) (id.OrgID, error) {
	return id.ParseOrgID(s)
}

// BearerFromHeader strips the "Bearer " scheme prefix from an
// Authorization header value. The scheme is matched case-insensitively;
// a header without it is returned trimmed.
func BearerFromHeader(authorization string) string {
	const prefix = "Bearer "
	if len(authorization) > len(prefix) && strings.EqualFold(authorization[:len(prefix)], prefix) {
		return strings.TrimSpace(authorization[len(prefix):])
	}
	return strings.TrimSpace(authorization)
}

// apiKeyNeverExpires is a far-future sentinel so clock.Expirable.Expired
// never trips for a resolved API key; API keys are revoked by deletion, not
// by a TTL.
var apiKeyNeverExpires = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// ParseBearer recognizes and decodes a bearer credential as either a JWT
// or an API key, yielding a uniform Claims value.
// API keys are formatted "<id-prefix>:<secret>" (a colon, never present in
// a JWT's three dot-separated segments) so the two can be told apart
// without attempting and failing a JWT decode first.
func ParseBearer(ctx context.Context, tx store.ReadTx, signer *secrets.Signer, bearer string) (Claims, error) {
	if prefix, secret, ok := splitAPIKey(bearer); ok {
		return parseAPIKeyBearer(ctx, tx, prefix, secret)
	}

	jc, err := signer.DecodeJWT(bearer)
	if err != nil {
		if secrets.IsExpiredErr(err) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, ErrInvalidToken
	}
	return fromJWTClaims(jc)
}

func splitAPIKey(bearer string) (prefix, secret string, ok bool) {
	if strings.Contains(bearer, ".") {
		return "", "", false
	}
	idx := strings.IndexByte(bearer, ':')
	if idx <= 0 || idx == len(bearer)-1 {
		return "", "", false
	}
	return bearer[:idx], bearer[idx+1:], true
}

func parseAPIKeyBearer(ctx context.Context, tx store.ReadTx, prefix, secret string) (Claims, error) {
	key, err := store.ResolveAPIKey(ctx, tx, prefix, secret)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	kind, resID, err := parseScope(key.Resource)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	platformRoles, err := store.UserPlatformRoles(ctx, tx, key.UserID)
	if err != nil {
		return Claims{}, ErrDatabaseUnavailable
	}

	roles := append([]rbac.Role{}, platformRoles...)
	if kind == KindOrg {
		orgID, parseErr := orgIDOf(resID)
		if parseErr == nil {
			orgRoles, roleErr := store.UserOrgRoles(ctx, tx, key.UserID, orgID)
			if roleErr != nil {
				return Claims{}, ErrDatabaseUnavailable
			}
			roles = append(roles, orgRoles...)
		}
	}

	return Claims{
		ResourceKind: kind,
		ResourceID:   resID,
		Expirable:    clock.Expirable{IssuedAt: key.CreatedAt, ExpiresAt: apiKeyNeverExpires},
		Access:       RolesMany(roles),
	}, nil
}

func fromJWTClaims(jc secrets.Claims) (Claims, error) {
	kind, err := parseKind(jc.ResourceType)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	access, err := accessFromJWT(jc)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	return Claims{
		ResourceKind: kind,
		ResourceID:   jc.ResourceID,
		Expirable: clock.Expirable{
			IssuedAt:  time.Unix(jc.IssuedAt, 0).UTC(),
			ExpiresAt: time.Unix(jc.ExpiresAt, 0).UTC(),
		},
		Access: access,
		Data:   jc.Data,
	}, nil
}

func accessFromJWT(jc secrets.Claims) (Access, error) {
	switch jc.AccessKind {
	case "roles":
		switch jc.AccessMode {
		case "one":
			if len(jc.AccessValues) != 1 {
				return nil, fmt.Errorf("claims: Roles::One requires exactly one value")
			}
			return RolesOne(rbac.Role(jc.AccessValues[0])), nil
		case "many":
			roles := make([]rbac.Role, len(jc.AccessValues))
			for i, v := range jc.AccessValues {
				roles[i] = rbac.Role(v)
			}
			return RolesMany(roles), nil
		}
	case "perms":
		perms := make([]rbac.Permission, len(jc.AccessValues))
		for i, v := range jc.AccessValues {
			perms[i] = rbac.Permission(v)
		}
		switch jc.AccessMode {
		case "one":
			if len(perms) != 1 {
				return nil, fmt.Errorf("claims: Perms::One requires exactly one value")
			}
			return PermsOne(perms[0]), nil
		case "all":
			return PermsAll(perms), nil
		case "any":
			return PermsAny(perms), nil
		}
	}
	return nil, fmt.Errorf("claims: unrecognized access kind %q/%q", jc.AccessKind, jc.AccessMode)
}

// ToJWTClaims is the inverse of fromJWTClaims: it flattens a Claims value
// back into the generic envelope pkg/secrets signs. Used by the handlers
// that mint tokens (login, refresh-rotation, host provisioning).
func ToJWTClaims(c Claims) (secrets.Claims, error) {
	jc := secrets.Claims{
		ResourceType: string(c.ResourceKind),
		ResourceID:   c.ResourceID,
		IssuedAt:     c.Expirable.IssuedAt.Unix(),
		ExpiresAt:    c.Expirable.ExpiresAt.Unix(),
		Data:         c.Data,
	}

	switch a := c.Access.(type) {
	case RolesOne:
		jc.AccessKind, jc.AccessMode, jc.AccessValues = "roles", "one", []string{string(a)}
	case RolesMany:
		jc.AccessKind, jc.AccessMode = "roles", "many"
		for _, r := range a {
			jc.AccessValues = append(jc.AccessValues, string(r))
		}
	case PermsOne:
		jc.AccessKind, jc.AccessMode, jc.AccessValues = "perms", "one", []string{string(a)}
	case PermsAll:
		jc.AccessKind, jc.AccessMode = "perms", "all"
		for _, p := range a {
			jc.AccessValues = append(jc.AccessValues, string(p))
		}
	case PermsAny:
		jc.AccessKind, jc.AccessMode = "perms", "any"
		for _, p := range a {
			jc.AccessValues = append(jc.AccessValues, string(p))
		}
	default:
		return secrets.Claims{}, fmt.Errorf("claims: unrecognized Access implementation %T", c.Access)
	}

	return jc, nil
}

func parseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindUser, KindOrg, KindHost, KindNode:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("claims: unrecognized resource kind %q", s)
	}
}

// parseScope parses an API key's stored "kind:uuid" scope string, e.g.
// "org:3fae...".
func parseScope(scope string) (kind Kind, id string, err error) {
	parts := strings.SplitN(scope, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("claims: malformed scope %q", scope)
	}
	switch parts[0] {
	case "user":
		kind = KindUser
	case "org":
		kind = KindOrg
	case "host":
		kind = KindHost
	case "node":
		kind = KindNode
	default:
		return "", "", fmt.Errorf("claims: unrecognized scope kind %q", parts[0])
	}
	return kind, parts[1], nil
}
