package store

import (
	"context"
	"fmt"

	"github.com/fleetforge/controlplane/pkg/id"
)

// PutHostCredential stores (or replaces, on re-bootstrap) the encrypted
// bootstrap secret for hostID.
func PutHostCredential(ctx context.Context, tx WriteTx, hostID id.HostID, encryptedSecret []byte) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO host_credentials (host_id, encrypted_secret)
		VALUES ($1, $2)
		ON CONFLICT (host_id) DO UPDATE SET encrypted_secret = EXCLUDED.encrypted_secret`,
		hostID, encryptedSecret)
	if err != nil {
		return fmt.Errorf("store: storing host credential: %w", err)
	}
	return nil
}

// GetHostCredential loads hostID's encrypted bootstrap secret.
func GetHostCredential(ctx context.Context, tx ReadTx, hostID id.HostID) ([]byte, error) {
	var encrypted []byte
	err := tx.QueryRow(ctx, `SELECT encrypted_secret FROM host_credentials WHERE host_id = $1`, hostID).Scan(&encrypted)
	if err != nil {
		return nil, ErrNotFound
	}
	return encrypted, nil
}
