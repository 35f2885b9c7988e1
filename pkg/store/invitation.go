package store

import (
	"context"
	"fmt"

	"github.com/fleetforge/controlplane/pkg/id"
	"github.com/fleetforge/controlplane/pkg/resource"
)

const invitationColumns = `id, org_id, email, role, invited_by, hashed_token, status, expires_at, created_at`

func scanInvitation(row interface{ Scan(dest ...any) error }) (resource.Invitation, error) {
	var inv resource.Invitation
	err := row.Scan(&inv.ID, &inv.OrgID, &inv.Email, &inv.Role, &inv.InvitedBy,
		&inv.HashedToken, &inv.Status, &inv.ExpiresAt, &inv.CreatedAt)
	return inv, err
}

// GetInvitation loads a single invitation by id.
func GetInvitation(ctx context.Context, tx ReadTx, invID id.InvitationID) (resource.Invitation, error) {
	inv, err := scanInvitation(tx.QueryRow(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id = $1`, invID))
	if err != nil {
		return resource.Invitation{}, ErrNotFound
	}
	return inv, nil
}

// ListInvitationsByOrg returns every invitation issued by an org, for
// Invitation.list.
func ListInvitationsByOrg(ctx context.Context, tx ReadTx, orgID id.OrgID) ([]resource.Invitation, error) {
	rows, err := tx.Query(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE org_id = $1 ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("store: listing invitations: %w", err)
	}
	defer rows.Close()

	var out []resource.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scanning invitation: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// CreateInvitation inserts a pending invitation.
func CreateInvitation(ctx context.Context, tx WriteTx, inv resource.Invitation) (resource.Invitation, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO invitations (id, org_id, email, role, invited_by, hashed_token, status, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		inv.ID, inv.OrgID, inv.Email, inv.Role, inv.InvitedBy, inv.HashedToken, inv.Status, inv.ExpiresAt)
	if err := row.Scan(&inv.CreatedAt); err != nil {
		return resource.Invitation{}, fmt.Errorf("store: inserting invitation: %w", err)
	}
	return inv, nil
}

// UpdateInvitationStatus transitions an invitation to accepted, declined, or
// revoked. Only a currently-Pending invitation may transition.
func UpdateInvitationStatus(ctx context.Context, tx WriteTx, invID id.InvitationID, status resource.InvitationStatus) error {
	tag, err := tx.Exec(ctx, `
		UPDATE invitations SET status = $2
		WHERE id = $1 AND status = $3`,
		invID, status, resource.InvitationPending)
	if err != nil {
		return fmt.Errorf("store: updating invitation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
