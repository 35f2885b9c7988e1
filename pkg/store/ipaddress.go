package store

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/fleetforge/controlplane/pkg/id"
)

// ClaimIP marks the ip_addresses row for (hostID, addr) as assigned to
// nodeID, enforcing the "at most one node per ip" invariant and the
// scheduler's free_ip_counts accounting: a row can only be claimed once,
// and the claim fails if addr isn't a pool entry for that host or is
// already assigned.
func ClaimIP(ctx context.Context, tx WriteTx, hostID id.HostID, addr netip.Addr, nodeID id.NodeID) error {
	tag, err := tx.Exec(ctx, `
		UPDATE ip_addresses SET node_id = $3
		WHERE host_id = $1 AND ip = $2 AND node_id IS NULL`,
		hostID, addr, nodeID)
	if err != nil {
		return fmt.Errorf("store: claiming ip: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIPNotAvailable
	}
	return nil
}

// ClaimAnyFreeIP claims whichever free ip_addresses row for hostID sorts
// first, for callers that don't need a specific address (e.g. a
// placement retry onto a different host, where the node's originally
// requested address belongs to a different host's pool entirely).
// FOR UPDATE SKIP LOCKED lets concurrent placements on the same host
// proceed without blocking each other on the row each is about to claim.
func ClaimAnyFreeIP(ctx context.Context, tx WriteTx, hostID id.HostID, nodeID id.NodeID) (netip.Addr, error) {
	var addr netip.Addr
	err := tx.QueryRow(ctx, `
		UPDATE ip_addresses SET node_id = $2
		WHERE id = (
			SELECT id FROM ip_addresses
			WHERE host_id = $1 AND node_id IS NULL
			ORDER BY ip
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ip`, hostID, nodeID).Scan(&addr)
	if err != nil {
		return netip.Addr{}, ErrIPNotAvailable
	}
	return addr, nil
}

// ReleaseIP frees whatever ip_addresses row is currently assigned to
// nodeID, called on node deletion or placement retry so the host's
// free_ip count recovers.
func ReleaseIP(ctx context.Context, tx WriteTx, nodeID id.NodeID) error {
	if _, err := tx.Exec(ctx, `UPDATE ip_addresses SET node_id = NULL WHERE node_id = $1`, nodeID); err != nil {
		return fmt.Errorf("store: releasing ip: %w", err)
	}
	return nil
}
