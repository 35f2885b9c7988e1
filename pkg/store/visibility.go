package store

import (
	"context"
	"fmt"

	"github.com/fleetforge/controlplane/pkg/id"
	"github.com/fleetforge/controlplane/pkg/rbac"
)

// UserOrgIDs returns every org the user is a member of, for the User-claim
// branch of the visibility check.
func UserOrgIDs(ctx context.Context, tx ReadTx, userID id.UserID) ([]id.OrgID, error) {
	rows, err := tx.Query(ctx, `SELECT org_id FROM org_users WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: user org ids: %w", err)
	}
	defer rows.Close()

	var out []id.OrgID
	for rows.Next() {
		var orgID id.OrgID
		if err := rows.Scan(&orgID); err != nil {
			return nil, fmt.Errorf("store: scanning org id: %w", err)
		}
		out = append(out, orgID)
	}
	return out, rows.Err()
}

// UserOrgRoles returns the org-scoped roles a user holds within a specific
// org.
func UserOrgRoles(ctx context.Context, tx ReadTx, userID id.UserID, orgID id.OrgID) ([]rbac.Role, error) {
	rows, err := tx.Query(ctx,
		`SELECT role FROM org_users WHERE user_id = $1 AND org_id = $2`, userID, orgID)
	if err != nil {
		return nil, fmt.Errorf("store: user org roles: %w", err)
	}
	defer rows.Close()

	var out []rbac.Role
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("store: scanning role: %w", err)
		}
		out = append(out, rbac.Role(r))
	}
	return out, rows.Err()
}

// UserPlatformRoles returns non-org-scoped roles granted directly to a user
// (e.g. super-admin), distinguished from org-scoped roles.
func UserPlatformRoles(ctx context.Context, tx ReadTx, userID id.UserID) ([]rbac.Role, error) {
	rows, err := tx.Query(ctx,
		`SELECT role FROM user_roles WHERE user_id = $1 AND org_id IS NULL`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: user platform roles: %w", err)
	}
	defer rows.Close()

	var out []rbac.Role
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("store: scanning role: %w", err)
		}
		out = append(out, rbac.Role(r))
	}
	return out, rows.Err()
}

// HostOrgID returns the owning org of a host, or nil for a platform-shared
// host with no org, for the Org-claim branch of the visibility check.
func HostOrgID(ctx context.Context, tx ReadTx, hostID id.HostID) (*id.OrgID, error) {
	var orgID *id.OrgID
	err := tx.QueryRow(ctx,
		`SELECT org_id FROM hosts WHERE id = $1 AND deleted_at IS NULL`, hostID).Scan(&orgID)
	if err != nil {
		return nil, fmt.Errorf("store: host org id: %w", err)
	}
	return orgID, nil
}

// NodeHostID returns the host a node is scheduled on, for the Host-claim
// branch of the visibility check.
func NodeHostID(ctx context.Context, tx ReadTx, nodeID id.NodeID) (id.HostID, error) {
	var hostID id.HostID
	err := tx.QueryRow(ctx,
		`SELECT host_id FROM nodes WHERE id = $1 AND deleted_at IS NULL`, nodeID).Scan(&hostID)
	if err != nil {
		return id.HostID{}, fmt.Errorf("store: node host id: %w", err)
	}
	return hostID, nil
}

// NodeOrgID returns the owning org of a node, for the Org-claim branch of
// the visibility check reaching directly down to a node.
func NodeOrgID(ctx context.Context, tx ReadTx, nodeID id.NodeID) (id.OrgID, error) {
	var orgID id.OrgID
	err := tx.QueryRow(ctx,
		`SELECT org_id FROM nodes WHERE id = $1 AND deleted_at IS NULL`, nodeID).Scan(&orgID)
	if err != nil {
		return id.OrgID{}, fmt.Errorf("store: node org id: %w", err)
	}
	return orgID, nil
}
