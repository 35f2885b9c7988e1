package claims

import "github.com/fleetforge/controlplane/pkg/rbac"

// Requirement is the permission gate an authorize call demands, a tagged
// union of Perm/AllOf/AnyOf expressed as an interface with an unexported
// marker method.
type Requirement interface {
	isRequirement()
}

// Perm requires granted to contain exactly this permission.
type Perm rbac.Permission

func (Perm) isRequirement() {}

// AllOf requires every permission in the set to be granted.
type AllOf []rbac.Permission

func (AllOf) isRequirement() {}

// AnyOf requires at least one permission in the set to be granted; the
// matched permission is returned in AuthZ.Matched.
type AnyOf []rbac.Permission

func (AnyOf) isRequirement() {}
