package claims

import "github.com/fleetforge/controlplane/pkg/rbac"

// Access is what a Claims carries: either a set of roles (to be expanded
// into permissions via the RBAC store) or a direct permission set, a tagged
// union.
type Access interface {
	isAccess()
}

// RolesOne grants the permissions of a single role.
type RolesOne rbac.Role

func (RolesOne) isAccess() {}

// RolesMany grants the union of permissions across several roles.
type RolesMany []rbac.Role

func (RolesMany) isAccess() {}

// PermsOne grants a single bare permission, bypassing the RBAC store
// entirely — used for narrowly-scoped tokens such as a node agent's JWT.
type PermsOne rbac.Permission

func (PermsOne) isAccess() {}

// PermsAll grants exactly the permissions listed (all of them).
type PermsAll []rbac.Permission

func (PermsAll) isAccess() {}

// PermsAny also grants exactly the permissions listed; for Access the
// distinction between All/Any collapses since both just mean "the granted
// set is this list" — the All/Any distinction only matters for Requirement.
type PermsAny []rbac.Permission

func (PermsAny) isAccess() {}
