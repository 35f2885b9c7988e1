// Package resource defines the relational entities of the control plane:
// User, Org, OrgUser, Host, IpAddress, Protocol/ProtocolVersion, Image,
// Node, Command, NodeLog, ApiKey, plus the Region lookup table the Host
// entity and the host.regions RPC require.
package resource

import (
	"time"

	"github.com/fleetforge/controlplane/pkg/id"
)

// User is a platform account. Deletion is soft; unconfirmed users cannot log
// in but may still accept an invitation.
type User struct {
	ID             id.UserID
	Email          string // unique, case-insensitive
	HashedPassword string
	FirstName      string
	LastName       string
	ConfirmedAt    *time.Time
	DeletedAt      *time.Time
	CreatedAt      time.Time
}

// CanLogIn reports whether the user may authenticate via password login.
func (u User) CanLogIn() bool {
	return u.ConfirmedAt != nil && u.DeletedAt == nil
}
