package resource

import (
	"time"

	"github.com/fleetforge/controlplane/pkg/id"
)

// ApiKey is a long-lived credential scoped to a single resource, authorized
// the same way a JWT would be.
type ApiKey struct {
	ID           id.ApiKeyID
	UserID       id.UserID
	Label        string
	Resource     string // the scope string, e.g. "org:<uuid>" or "host:<uuid>"
	HashedSecret string
	CreatedAt    time.Time
	UpdatedAt    *time.Time
}
