package resource

import (
	"time"

	"github.com/fleetforge/controlplane/pkg/id"
)

// Org is a billing and visibility boundary owning hosts and nodes. Every
// user has exactly one personal org, which can never be deleted.
type Org struct {
	ID         id.OrgID
	Name       string
	IsPersonal bool
	DeletedAt  *time.Time
	CreatedAt  time.Time
}

// OrgRole is a membership-level role within an org. Its values are kept
// identical to pkg/rbac's org-scoped Role strings ("org-owner" etc.), since
// org_users.role is read directly as a rbac.Role for permission expansion
// (pkg/store/visibility.go's UserOrgRoles) — the two can never be allowed
// to drift apart.
type OrgRole string

const (
	OrgRoleOwner  OrgRole = "org-owner"
	OrgRoleAdmin  OrgRole = "org-admin"
	OrgRoleMember OrgRole = "org-member"
)

// CanManageMembers reports whether role may remove members or delete the org.
func (r OrgRole) CanManageMembers() bool {
	return r == OrgRoleOwner || r == OrgRoleAdmin
}

// OrgUser is a membership row binding a user to an org with a role.
type OrgUser struct {
	UserID id.UserID
	OrgID  id.OrgID
	Role   OrgRole
}

// CanDelete reports whether org may be deleted: personal orgs never can.
func (o Org) CanDelete() bool {
	return !o.IsPersonal
}
