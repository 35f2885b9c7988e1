package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fleetforge/controlplane/pkg/id"
	"github.com/fleetforge/controlplane/pkg/resource"
)

const userColumns = `id, email, hashed_password, first_name, last_name, confirmed_at, deleted_at, created_at`

func scanUser(row interface{ Scan(dest ...any) error }) (resource.User, error) {
	var u resource.User
	err := row.Scan(&u.ID, &u.Email, &u.HashedPassword, &u.FirstName, &u.LastName, &u.ConfirmedAt, &u.DeletedAt, &u.CreatedAt)
	return u, err
}

// GetUser loads a single live user by id.
func GetUser(ctx context.Context, tx ReadTx, userID id.UserID) (resource.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	if !tx.IncludeDeleted() {
		q += ` AND deleted_at IS NULL`
	}
	u, err := scanUser(tx.QueryRow(ctx, q, userID))
	if err != nil {
		return resource.User{}, ErrNotFound
	}
	return u, nil
}

// GetUserByEmail looks up a user by case-insensitive email, for login and
// signup-collision checks.
func GetUserByEmail(ctx context.Context, tx ReadTx, email string) (resource.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	if !tx.IncludeDeleted() {
		q += ` AND deleted_at IS NULL`
	}
	u, err := scanUser(tx.QueryRow(ctx, q, strings.TrimSpace(email)))
	if err != nil {
		return resource.User{}, ErrNotFound
	}
	return u, nil
}

// CreateUser inserts a new, unconfirmed user row.
func CreateUser(ctx context.Context, tx WriteTx, u resource.User) (resource.User, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO users (id, email, hashed_password, first_name, last_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		u.ID, u.Email, u.HashedPassword, u.FirstName, u.LastName)
	if err := row.Scan(&u.CreatedAt); err != nil {
		return resource.User{}, fmt.Errorf("store: inserting user: %w", err)
	}
	return u, nil
}

// ConfirmUser stamps confirmed_at, unblocking password login.
func ConfirmUser(ctx context.Context, tx WriteTx, userID id.UserID, at time.Time) error {
	tag, err := tx.Exec(ctx, `UPDATE users SET confirmed_at = $2 WHERE id = $1 AND confirmed_at IS NULL`, userID, at)
	if err != nil {
		return fmt.Errorf("store: confirming user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateUserPassword sets a new hashed password, used by both the
// user-initiated change-password flow and the password-reset flow.
func UpdateUserPassword(ctx context.Context, tx WriteTx, userID id.UserID, hashedPassword string) error {
	tag, err := tx.Exec(ctx, `UPDATE users SET hashed_password = $2 WHERE id = $1 AND deleted_at IS NULL`, userID, hashedPassword)
	if err != nil {
		return fmt.Errorf("store: updating user password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateUserProfile updates a user's display name fields.
func UpdateUserProfile(ctx context.Context, tx WriteTx, userID id.UserID, firstName, lastName string) error {
	tag, err := tx.Exec(ctx, `UPDATE users SET first_name = $2, last_name = $3 WHERE id = $1 AND deleted_at IS NULL`,
		userID, firstName, lastName)
	if err != nil {
		return fmt.Errorf("store: updating user profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDeleteUser marks a user deleted.
func SoftDeleteUser(ctx context.Context, tx WriteTx, userID id.UserID) error {
	tag, err := tx.Exec(ctx, `UPDATE users SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, userID)
	if err != nil {
		return fmt.Errorf("store: soft-deleting user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
