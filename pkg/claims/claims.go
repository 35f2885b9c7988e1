package claims

import (
	"time"

	"github.com/fleetforge/controlplane/pkg/clock"
)

// Claims is the decoded form of a bearer credential (JWT or API key),
// generic over what it grants access to and what resource it claims to be.
type Claims struct {
	ResourceKind Kind
	ResourceID   string
	clock.Expirable
	Access Access
	Data   map[string]string
}

// Expired reports whether the claim has expired as of now.
func (c Claims) Expired(now time.Time) bool {
	return c.Expirable.Expired(now)
}
