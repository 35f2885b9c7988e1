package store

import (
	"context"
	"fmt"

	"github.com/fleetforge/controlplane/pkg/id"
	"github.com/fleetforge/controlplane/pkg/resource"
)

const orgColumns = `id, name, is_personal, deleted_at, created_at`

func scanOrg(row interface{ Scan(dest ...any) error }) (resource.Org, error) {
	var o resource.Org
	err := row.Scan(&o.ID, &o.Name, &o.IsPersonal, &o.DeletedAt, &o.CreatedAt)
	return o, err
}

// GetOrg loads a single live org by id.
func GetOrg(ctx context.Context, tx ReadTx, orgID id.OrgID) (resource.Org, error) {
	q := `SELECT ` + orgColumns + ` FROM orgs WHERE id = $1`
	if !tx.IncludeDeleted() {
		q += ` AND deleted_at IS NULL`
	}
	o, err := scanOrg(tx.QueryRow(ctx, q, orgID))
	if err != nil {
		return resource.Org{}, ErrNotFound
	}
	return o, nil
}

// CreateOrg inserts a new org, used both for a user's personal org at
// signup and for org.create.
func CreateOrg(ctx context.Context, tx WriteTx, o resource.Org) (resource.Org, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO orgs (id, name, is_personal) VALUES ($1, $2, $3)
		RETURNING created_at`,
		o.ID, o.Name, o.IsPersonal)
	if err := row.Scan(&o.CreatedAt); err != nil {
		return resource.Org{}, fmt.Errorf("store: inserting org: %w", err)
	}
	return o, nil
}

// UpdateOrgName renames an org.
func UpdateOrgName(ctx context.Context, tx WriteTx, orgID id.OrgID, name string) error {
	tag, err := tx.Exec(ctx, `UPDATE orgs SET name = $2 WHERE id = $1 AND deleted_at IS NULL`, orgID, name)
	if err != nil {
		return fmt.Errorf("store: renaming org: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDeleteOrg marks a non-personal org deleted. The caller must enforce
// resource.Org.CanDelete before calling this.
func SoftDeleteOrg(ctx context.Context, tx WriteTx, orgID id.OrgID) error {
	tag, err := tx.Exec(ctx, `UPDATE orgs SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, orgID)
	if err != nil {
		return fmt.Errorf("store: soft-deleting org: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddOrgMember inserts an org membership row.
func AddOrgMember(ctx context.Context, tx WriteTx, m resource.OrgUser) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO org_users (user_id, org_id, role) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, org_id) DO UPDATE SET role = EXCLUDED.role`,
		m.UserID, m.OrgID, m.Role)
	if err != nil {
		return fmt.Errorf("store: adding org member: %w", err)
	}
	return nil
}

// RemoveOrgMember deletes an org membership row.
func RemoveOrgMember(ctx context.Context, tx WriteTx, userID id.UserID, orgID id.OrgID) error {
	tag, err := tx.Exec(ctx, `DELETE FROM org_users WHERE user_id = $1 AND org_id = $2`, userID, orgID)
	if err != nil {
		return fmt.Errorf("store: removing org member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListOrgMembers returns every membership row for an org, for org.members.
func ListOrgMembers(ctx context.Context, tx ReadTx, orgID id.OrgID) ([]resource.OrgUser, error) {
	rows, err := tx.Query(ctx, `SELECT user_id, org_id, role FROM org_users WHERE org_id = $1 ORDER BY user_id ASC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("store: listing org members: %w", err)
	}
	defer rows.Close()

	var out []resource.OrgUser
	for rows.Next() {
		var m resource.OrgUser
		if err := rows.Scan(&m.UserID, &m.OrgID, &m.Role); err != nil {
			return nil, fmt.Errorf("store: scanning org member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetOrgMemberRole looks up a single user's role within an org.
func GetOrgMemberRole(ctx context.Context, tx ReadTx, userID id.UserID, orgID id.OrgID) (resource.OrgRole, error) {
	var role resource.OrgRole
	err := tx.QueryRow(ctx, `SELECT role FROM org_users WHERE user_id = $1 AND org_id = $2`, userID, orgID).Scan(&role)
	if err != nil {
		return "", ErrNotFound
	}
	return role, nil
}

// ListOrgsByUser returns a page of orgs a user belongs to, for the org.list
// RPC, ordered oldest-first so paging is stable across calls. Callers doing
// visibility checks rather than paginated listing should pass a limit large
// enough to cover a user's full membership set.
func ListOrgsByUser(ctx context.Context, tx ReadTx, userID id.UserID, limit, offset int) ([]resource.Org, error) {
	rows, err := tx.Query(ctx, `
		SELECT o.id, o.name, o.is_personal, o.deleted_at, o.created_at
		FROM orgs o JOIN org_users ou ON ou.org_id = o.id
		WHERE ou.user_id = $1
		ORDER BY o.created_at ASC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("store: listing user orgs: %w", err)
	}
	defer rows.Close()

	var out []resource.Org
	for rows.Next() {
		o, err := scanOrg(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scanning org: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CountOrgsByUser counts the same set ListOrgsByUser pages over, for
// OffsetPage's total_items/total_pages fields.
func CountOrgsByUser(ctx context.Context, tx ReadTx, userID id.UserID) (int, error) {
	var n int
	err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM orgs o JOIN org_users ou ON ou.org_id = o.id
		WHERE ou.user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: counting user orgs: %w", err)
	}
	return n, nil
}
