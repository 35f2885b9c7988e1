package store

import (
	"context"
	"fmt"

	"github.com/fleetforge/controlplane/pkg/id"
	"github.com/fleetforge/controlplane/pkg/resource"
)

const nodeColumns = `id, org_id, host_id, image_id, protocol_version_id, node_type, name,
	ip, ip_gateway, node_status, sync_status, staking_status, block_height,
	vcpu_count, mem_size_bytes, disk_size_bytes, allow_ips, deny_ips,
	scheduler_similarity, scheduler_resource, created_by, deleted_at, created_at`

func scanNode(row interface{ Scan(dest ...any) error }) (resource.Node, error) {
	var n resource.Node
	err := row.Scan(
		&n.ID, &n.OrgID, &n.HostID, &n.ImageID, &n.ProtocolVersionID, &n.NodeType, &n.Name,
		&n.IP, &n.IPGateway, &n.NodeStatus, &n.SyncStatus, &n.StakingStatus, &n.BlockHeight,
		&n.VCPUCount, &n.MemSizeBytes, &n.DiskSizeBytes, &n.AllowIPs, &n.DenyIPs,
		&n.SchedulerPolicy.Similarity, &n.SchedulerPolicy.Resource, &n.CreatedBy, &n.DeletedAt, &n.CreatedAt)
	return n, err
}

// GetNode loads a single live node by id, honoring soft-deletion unless the
// tx was acquired in admin-class mode.
func GetNode(ctx context.Context, tx ReadTx, nodeID id.NodeID) (resource.Node, error) {
	q := `SELECT ` + nodeColumns + ` FROM nodes WHERE id = $1`
	if !tx.IncludeDeleted() {
		q += ` AND deleted_at IS NULL`
	}
	n, err := scanNode(tx.QueryRow(ctx, q, nodeID))
	if err != nil {
		return resource.Node{}, ErrNotFound
	}
	return n, nil
}

// ListNodesByOrg returns a page of live nodes an org owns, for the
// Node.list RPC, ordered oldest-first so paging is stable across calls.
func ListNodesByOrg(ctx context.Context, tx ReadTx, orgID id.OrgID, limit, offset int) ([]resource.Node, error) {
	q := `SELECT ` + nodeColumns + ` FROM nodes WHERE org_id = $1`
	if !tx.IncludeDeleted() {
		q += ` AND deleted_at IS NULL`
	}
	q += ` ORDER BY created_at ASC LIMIT $2 OFFSET $3`

	rows, err := tx.Query(ctx, q, orgID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("store: listing nodes: %w", err)
	}
	defer rows.Close()

	var out []resource.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scanning node: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// CountNodesByOrg counts live nodes for quota enforcement.
func CountNodesByOrg(ctx context.Context, tx ReadTx, orgID id.OrgID) (int, error) {
	var n int
	err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM nodes WHERE org_id = $1 AND deleted_at IS NULL`, orgID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: counting nodes: %w", err)
	}
	return n, nil
}

// UpdateNodeStatus sets a node's lifecycle status, used outside the
// ack-driven transitions pkg/lifecycle already owns (e.g. an operator
// cancel).
func UpdateNodeStatus(ctx context.Context, tx WriteTx, nodeID id.NodeID, status resource.NodeStatus) error {
	tag, err := tx.Exec(ctx, `UPDATE nodes SET node_status = $2 WHERE id = $1 AND deleted_at IS NULL`, nodeID, status)
	if err != nil {
		return fmt.Errorf("store: updating node status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDeleteNode marks a node deleted. The caller is responsible for
// purging its pending commands (commandqueue.DeletePending) in the same
// write transaction.
func SoftDeleteNode(ctx context.Context, tx WriteTx, nodeID id.NodeID) error {
	tag, err := tx.Exec(ctx, `UPDATE nodes SET deleted_at = now(), node_status = $2 WHERE id = $1 AND deleted_at IS NULL`,
		nodeID, resource.NodeStatusDeleted)
	if err != nil {
		return fmt.Errorf("store: soft-deleting node: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
