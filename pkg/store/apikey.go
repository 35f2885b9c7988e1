package store

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"github.com/fleetforge/controlplane/pkg/id"
	"github.com/fleetforge/controlplane/pkg/resource"
)

// HashAPIKeySecret hashes the secret half of an API key token for storage.
// Unlike password hashing (pkg/secrets.HashPassword, deliberately slow via
// bcrypt), API-key secrets are already high-entropy random tokens, so a
// fast, constant-time-comparable digest is the right tool — grounded on
// "id prefix + constant-time hash comparison" wording, which
// names a plain hash compare rather than bcrypt.
func HashAPIKeySecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return fmt.Sprintf("%x", sum)
}

// ResolveAPIKey looks up the API key row by its id prefix, then compares
// secret against its stored hash in constant time. It returns ErrNotFound
// both when the prefix is unknown and when the secret fails to match, so a
// caller cannot distinguish "wrong prefix" from "wrong secret" by error
// shape. An unknown prefix returns before any hashing, so the two cases
// can differ in timing.
func ResolveAPIKey(ctx context.Context, tx ReadTx, prefix, secret string) (resource.ApiKey, error) {
	var key resource.ApiKey
	err := tx.QueryRow(ctx,
		`SELECT id, user_id, label, resource, hashed_secret, created_at, updated_at
		 FROM api_keys WHERE id::text LIKE $1 || '%'`, prefix).
		Scan(&key.ID, &key.UserID, &key.Label, &key.Resource, &key.HashedSecret, &key.CreatedAt, &key.UpdatedAt)
	if err != nil {
		return resource.ApiKey{}, ErrNotFound
	}

	want := HashAPIKeySecret(secret)
	if subtle.ConstantTimeCompare([]byte(want), []byte(key.HashedSecret)) != 1 {
		return resource.ApiKey{}, ErrNotFound
	}
	return key, nil
}

// CreateAPIKey inserts a new API key row. The caller has already minted the
// id and hashed the secret (HashAPIKeySecret); the raw secret is never
// persisted or logged.
func CreateAPIKey(ctx context.Context, tx WriteTx, key resource.ApiKey) (resource.ApiKey, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO api_keys (id, user_id, label, resource, hashed_secret)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		key.ID, key.UserID, key.Label, key.Resource, key.HashedSecret)
	if err := row.Scan(&key.CreatedAt); err != nil {
		return resource.ApiKey{}, fmt.Errorf("store: inserting api key: %w", err)
	}
	return key, nil
}

// ListAPIKeysByUser returns every API key a user has created, for the
// api-key.list RPC. Secrets are never returned, only the stored hash's
// owning metadata.
func ListAPIKeysByUser(ctx context.Context, tx ReadTx, userID id.UserID) ([]resource.ApiKey, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, user_id, label, resource, hashed_secret, created_at, updated_at
		FROM api_keys WHERE user_id = $1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: listing api keys: %w", err)
	}
	defer rows.Close()

	var out []resource.ApiKey
	for rows.Next() {
		var k resource.ApiKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Label, &k.Resource, &k.HashedSecret, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scanning api key: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// RevokeAPIKey deletes an API key row, immediately invalidating it: API
// keys are revoked by deletion, not by a TTL.
func RevokeAPIKey(ctx context.Context, tx WriteTx, keyID id.ApiKeyID) error {
	tag, err := tx.Exec(ctx, `DELETE FROM api_keys WHERE id = $1`, keyID)
	if err != nil {
		return fmt.Errorf("store: revoking api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
