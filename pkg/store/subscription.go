package store

import (
	"context"
	"fmt"

	"github.com/fleetforge/controlplane/pkg/id"
	"github.com/fleetforge/controlplane/pkg/resource"
)

const subscriptionColumns = `id, org_id, plan_key, external_ref, status, deleted_at, created_at`

func scanSubscription(row interface{ Scan(dest ...any) error }) (resource.Subscription, error) {
	var s resource.Subscription
	err := row.Scan(&s.ID, &s.OrgID, &s.PlanKey, &s.ExternalRef, &s.Status, &s.DeletedAt, &s.CreatedAt)
	return s, err
}

// GetSubscription loads a single live subscription by id.
func GetSubscription(ctx context.Context, tx ReadTx, subID id.SubscriptionID) (resource.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	if !tx.IncludeDeleted() {
		q += ` AND deleted_at IS NULL`
	}
	s, err := scanSubscription(tx.QueryRow(ctx, q, subID))
	if err != nil {
		return resource.Subscription{}, ErrNotFound
	}
	return s, nil
}

// ListSubscriptionsByOrg returns every live subscription an org holds.
func ListSubscriptionsByOrg(ctx context.Context, tx ReadTx, orgID id.OrgID) ([]resource.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE org_id = $1`
	if !tx.IncludeDeleted() {
		q += ` AND deleted_at IS NULL`
	}
	q += ` ORDER BY created_at ASC`

	rows, err := tx.Query(ctx, q, orgID)
	if err != nil {
		return nil, fmt.Errorf("store: listing subscriptions: %w", err)
	}
	defer rows.Close()

	var out []resource.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scanning subscription: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreateSubscription inserts a new subscription row, after the external
// billing provider's own subscription has already been created.
func CreateSubscription(ctx context.Context, tx WriteTx, s resource.Subscription) (resource.Subscription, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO subscriptions (id, org_id, plan_key, external_ref, status)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`,
		s.ID, s.OrgID, s.PlanKey, s.ExternalRef, s.Status)
	if err := row.Scan(&s.CreatedAt); err != nil {
		return resource.Subscription{}, fmt.Errorf("store: inserting subscription: %w", err)
	}
	return s, nil
}

// UpdateSubscriptionStatus records a status change reported by the billing
// provider (e.g. a webhook-driven past-due or cancellation).
func UpdateSubscriptionStatus(ctx context.Context, tx WriteTx, subID id.SubscriptionID, status resource.SubscriptionStatus) error {
	tag, err := tx.Exec(ctx, `UPDATE subscriptions SET status = $2 WHERE id = $1 AND deleted_at IS NULL`, subID, status)
	if err != nil {
		return fmt.Errorf("store: updating subscription status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDeleteSubscription marks a subscription deleted.
func SoftDeleteSubscription(ctx context.Context, tx WriteTx, subID id.SubscriptionID) error {
	tag, err := tx.Exec(ctx, `UPDATE subscriptions SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, subID)
	if err != nil {
		return fmt.Errorf("store: soft-deleting subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
