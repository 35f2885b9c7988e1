package claims

import (
	"context"
	"time"

	"github.com/fleetforge/controlplane/pkg/id"
	"github.com/fleetforge/controlplane/pkg/rbac"
	"github.com/fleetforge/controlplane/pkg/secrets"
	"github.com/fleetforge/controlplane/pkg/store"
)

// AuthZ is the successful outcome of Authorize.
type AuthZ struct {
	Claims  Claims
	Granted map[rbac.Permission]struct{}
	// Matched is set when Requirement was AnyOf, naming the permission that
	// satisfied the check.
	Matched rbac.Permission
}

// Authorize runs the six-step authorization algorithm: parse the bearer,
// check expiry, derive granted permissions, check visibility over the
// User⊃Org⊃Host⊃Node hierarchy, check the required permission, and apply
// the admin bypass for AllResources targets.
func Authorize(ctx context.Context, bearer string, required Requirement, target Target, signer *secrets.Signer, tx store.ReadTx) (AuthZ, error) {
	c, err := ParseBearer(ctx, tx, signer, bearer)
	if err != nil {
		return AuthZ{}, err
	}

	if c.Expired(time.Now().UTC()) {
		return AuthZ{}, ErrExpiredToken
	}

	granted, err := derivePermissions(ctx, tx, c, target)
	if err != nil {
		return AuthZ{}, err
	}

	if target.IsAllResources() {
		if !rbac.IsAdminClass(platformRolesOf(c)) {
			return AuthZ{}, &MissingPermError{Target: target}
		}
	} else if err := checkVisibility(ctx, tx, c, target); err != nil {
		return AuthZ{}, err
	}

	matched, err := checkRequirement(required, granted, target)
	if err != nil {
		return AuthZ{}, err
	}

	return AuthZ{Claims: c, Granted: granted, Matched: matched}, nil
}

// platformRolesOf extracts the bare Role list a RolesOne/RolesMany Access
// carries, for the admin-bypass check; Perms-based access can never satisfy
// the admin bypass since it carries no role.
func platformRolesOf(c Claims) []rbac.Role {
	switch a := c.Access.(type) {
	case RolesOne:
		return []rbac.Role{rbac.Role(a)}
	case RolesMany:
		return []rbac.Role(a)
	default:
		return nil
	}
}

// derivePermissions expands a claim's roles/permissions into the granted
// set, including the User-claim join: role-based access expands via the
// RBAC store (a static,
// in-memory seed table, see pkg/rbac.RolePermissions); permission-based
// access is granted verbatim. When the claim is a User reaching into an Org
// (or below), that org's org-scoped roles are additionally loaded and
// joined into the granted set.
func derivePermissions(ctx context.Context, tx store.ReadTx, c Claims, target Target) (map[rbac.Permission]struct{}, error) {
	granted := map[rbac.Permission]struct{}{}

	switch a := c.Access.(type) {
	case RolesOne:
		for p := range rbac.ExpandRoles([]rbac.Role{rbac.Role(a)}) {
			granted[p] = struct{}{}
		}
	case RolesMany:
		for p := range rbac.ExpandRoles([]rbac.Role(a)) {
			granted[p] = struct{}{}
		}
	case PermsOne:
		granted[rbac.Permission(a)] = struct{}{}
	case PermsAll:
		for _, p := range a {
			granted[p] = struct{}{}
		}
	case PermsAny:
		for _, p := range a {
			granted[p] = struct{}{}
		}
	}

	if c.ResourceKind == KindUser && !target.IsAllResources() && target.Kind != KindUser {
		orgID, ok, err := targetOrgID(ctx, tx, target)
		if err != nil {
			return nil, ErrDatabaseUnavailable
		}
		if ok {
			userID, perr := id.ParseUserID(c.ResourceID)
			if perr != nil {
				return nil, ErrInvalidToken
			}
			orgRoles, err := store.UserOrgRoles(ctx, tx, userID, orgID)
			if err != nil {
				return nil, ErrDatabaseUnavailable
			}
			for p := range rbac.ExpandRoles(orgRoles) {
				granted[p] = struct{}{}
			}
		}
	}

	return granted, nil
}

// targetOrgID resolves the owning org of a target resource, for joining
// org-scoped role permissions into a User claim's granted set.
func targetOrgID(ctx context.Context, tx store.ReadTx, target Target) (id.OrgID, bool, error) {
	switch target.Kind {
	case KindOrg:
		orgID, err := id.ParseOrgID(target.ID)
		return orgID, err == nil, err
	case KindHost:
		hostID, err := id.ParseHostID(target.ID)
		if err != nil {
			return id.OrgID{}, false, err
		}
		orgID, err := store.HostOrgID(ctx, tx, hostID)
		if err != nil || orgID == nil {
			return id.OrgID{}, false, nil
		}
		return *orgID, true, nil
	case KindNode:
		nodeID, err := id.ParseNodeID(target.ID)
		if err != nil {
			return id.OrgID{}, false, err
		}
		orgID, err := store.NodeOrgID(ctx, tx, nodeID)
		if err != nil {
			return id.OrgID{}, false, nil
		}
		return orgID, true, nil
	default:
		return id.OrgID{}, false, nil
	}
}

// checkVisibility enforces the containment relation
// User ⊃ Org ⊃ Host ⊃ Node.
func checkVisibility(ctx context.Context, tx store.ReadTx, c Claims, target Target) error {
	switch c.ResourceKind {
	case KindUser:
		return checkUserVisibility(ctx, tx, c, target)
	case KindOrg:
		return checkOrgVisibility(ctx, tx, c, target)
	case KindHost:
		return checkHostVisibility(ctx, tx, c, target)
	case KindNode:
		return checkNodeVisibility(c, target)
	default:
		return &NotVisibleError{ClaimKind: c.ResourceKind, TargetKind: target.Kind, TargetID: target.ID}
	}
}

func checkUserVisibility(ctx context.Context, tx store.ReadTx, c Claims, target Target) error {
	if target.Kind == KindUser && target.ID == c.ResourceID {
		return nil
	}

	userID, err := id.ParseUserID(c.ResourceID)
	if err != nil {
		return ErrInvalidToken
	}
	orgID, ok, err := targetOrgID(ctx, tx, target)
	if err != nil {
		return ErrDatabaseUnavailable
	}
	if !ok {
		return &NotVisibleError{ClaimKind: c.ResourceKind, TargetKind: target.Kind, TargetID: target.ID}
	}

	memberOrgs, err := store.UserOrgIDs(ctx, tx, userID)
	if err != nil {
		return ErrDatabaseUnavailable
	}
	for _, o := range memberOrgs {
		if o == orgID {
			return nil
		}
	}
	return &NotVisibleError{ClaimKind: c.ResourceKind, TargetKind: target.Kind, TargetID: target.ID}
}

func checkOrgVisibility(ctx context.Context, tx store.ReadTx, c Claims, target Target) error {
	if target.Kind == KindOrg && target.ID == c.ResourceID {
		return nil
	}
	if target.Kind == KindHost || target.Kind == KindNode {
		orgID, ok, err := targetOrgID(ctx, tx, target)
		if err != nil {
			return ErrDatabaseUnavailable
		}
		if ok && orgID.String() == c.ResourceID {
			return nil
		}
	}
	return &NotVisibleError{ClaimKind: c.ResourceKind, TargetKind: target.Kind, TargetID: target.ID}
}

func checkHostVisibility(ctx context.Context, tx store.ReadTx, c Claims, target Target) error {
	if target.Kind == KindHost && target.ID == c.ResourceID {
		return nil
	}
	if target.Kind == KindNode {
		nodeID, err := id.ParseNodeID(target.ID)
		if err != nil {
			return ErrInvalidToken
		}
		hostID, err := store.NodeHostID(ctx, tx, nodeID)
		if err != nil {
			return ErrDatabaseUnavailable
		}
		if hostID.String() == c.ResourceID {
			return nil
		}
	}
	return &NotVisibleError{ClaimKind: c.ResourceKind, TargetKind: target.Kind, TargetID: target.ID}
}

func checkNodeVisibility(c Claims, target Target) error {
	if target.Kind == KindNode && target.ID == c.ResourceID {
		return nil
	}
	return &NotVisibleError{ClaimKind: c.ResourceKind, TargetKind: target.Kind, TargetID: target.ID}
}

// checkRequirement checks required against the granted permission set.
func checkRequirement(required Requirement, granted map[rbac.Permission]struct{}, target Target) (rbac.Permission, error) {
	switch req := required.(type) {
	case Perm:
		if _, ok := granted[rbac.Permission(req)]; !ok {
			return "", &MissingPermError{Perm: rbac.Permission(req), Target: target}
		}
		return rbac.Permission(req), nil
	case AllOf:
		for _, p := range req {
			if _, ok := granted[p]; !ok {
				return "", &MissingPermError{Perm: p, Target: target}
			}
		}
		if len(req) > 0 {
			return req[0], nil
		}
		return "", nil
	case AnyOf:
		for _, p := range req {
			if _, ok := granted[p]; ok {
				return p, nil
			}
		}
		if len(req) > 0 {
			return "", &MissingPermError{Perm: req[0], Target: target}
		}
		return "", &MissingPermError{Target: target}
	default:
		return "", &MissingPermError{Target: target}
	}
}
