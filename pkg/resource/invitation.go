package resource

import (
	"time"

	"github.com/fleetforge/controlplane/pkg/id"
)

// InvitationStatus is the lifecycle state of an org invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "Pending"
	InvitationAccepted InvitationStatus = "Accepted"
	InvitationDeclined InvitationStatus = "Declined"
	InvitationRevoked  InvitationStatus = "Revoked"
)

// Invitation offers org membership to an email address via an opaque,
// single-use token (the same "invitation" token-class expiry 's
// configuration table names).
type Invitation struct {
	ID          id.InvitationID
	OrgID       id.OrgID
	Email       string
	Role        OrgRole
	InvitedBy   id.UserID
	HashedToken string
	Status      InvitationStatus
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// Open reports whether the invitation can still be accepted or declined.
func (i Invitation) Open(now time.Time) bool {
	return i.Status == InvitationPending && now.Before(i.ExpiresAt)
}
