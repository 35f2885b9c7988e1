package store

import (
	"context"
	"fmt"

	"github.com/fleetforge/controlplane/pkg/id"
	"github.com/fleetforge/controlplane/pkg/resource"
)

const hostColumns = `id, org_id, name, version, os, os_version, ip_addr, ip_gateway,
	cpu_count, mem_size_bytes, disk_size_bytes, region_id, host_type, managed_by,
	monthly_cost_usd, status, tags, deleted_at, created_at`

func scanHost(row interface{ Scan(dest ...any) error }) (resource.Host, error) {
	var h resource.Host
	err := row.Scan(
		&h.ID, &h.OrgID, &h.Name, &h.Version, &h.OS, &h.OSVersion, &h.IPAddr, &h.IPGateway,
		&h.CPUCount, &h.MemSizeBytes, &h.DiskSizeBytes, &h.RegionID, &h.HostType, &h.ManagedBy,
		&h.MonthlyCostUSD, &h.Status, &h.Tags, &h.DeletedAt, &h.CreatedAt)
	return h, err
}

// GetHost loads a single live host by id.
func GetHost(ctx context.Context, tx ReadTx, hostID id.HostID) (resource.Host, error) {
	q := `SELECT ` + hostColumns + ` FROM hosts WHERE id = $1`
	if !tx.IncludeDeleted() {
		q += ` AND deleted_at IS NULL`
	}
	h, err := scanHost(tx.QueryRow(ctx, q, hostID))
	if err != nil {
		return resource.Host{}, ErrNotFound
	}
	return h, nil
}

// ListHostsByOrg returns a page of live hosts visible to orgID: the org's
// own hosts plus platform-shared (org_id IS NULL) hosts, for the Host.list
// RPC, ordered oldest-first so paging is stable across calls.
func ListHostsByOrg(ctx context.Context, tx ReadTx, orgID id.OrgID, limit, offset int) ([]resource.Host, error) {
	q := `SELECT ` + hostColumns + ` FROM hosts WHERE (org_id = $1 OR org_id IS NULL)`
	if !tx.IncludeDeleted() {
		q += ` AND deleted_at IS NULL`
	}
	q += ` ORDER BY created_at ASC LIMIT $2 OFFSET $3`

	rows, err := tx.Query(ctx, q, orgID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("store: listing hosts: %w", err)
	}
	defer rows.Close()

	var out []resource.Host
	for rows.Next() {
		h, err := scanHost(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scanning host: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// CountHostsByOrg counts the same set ListHostsByOrg pages over, for
// OffsetPage's total_items/total_pages fields.
func CountHostsByOrg(ctx context.Context, tx ReadTx, orgID id.OrgID) (int, error) {
	q := `SELECT COUNT(*) FROM hosts WHERE (org_id = $1 OR org_id IS NULL)`
	if !tx.IncludeDeleted() {
		q += ` AND deleted_at IS NULL`
	}
	var n int
	if err := tx.QueryRow(ctx, q, orgID).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: counting hosts: %w", err)
	}
	return n, nil
}

// CreateHost inserts a new host row's gateway-outside-range
// invariant (enforced by the caller via resource.Host.ValidateGateway
// before calling this).
func CreateHost(ctx context.Context, tx WriteTx, h resource.Host) (resource.Host, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO hosts (
			id, org_id, name, version, os, os_version, ip_addr, ip_gateway,
			cpu_count, mem_size_bytes, disk_size_bytes, region_id, host_type, managed_by,
			monthly_cost_usd, status, tags
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING created_at`,
		h.ID, h.OrgID, h.Name, h.Version, h.OS, h.OSVersion, h.IPAddr, h.IPGateway,
		h.CPUCount, h.MemSizeBytes, h.DiskSizeBytes, h.RegionID, h.HostType, h.ManagedBy,
		h.MonthlyCostUSD, h.Status, h.Tags)
	if err := row.Scan(&h.CreatedAt); err != nil {
		return resource.Host{}, fmt.Errorf("store: inserting host: %w", err)
	}
	return h, nil
}

// CountLiveNodesOnHost counts non-deleted nodes on a host, enforcing the
// "deletion forbidden while host still has non-deleted nodes" invariant.
func CountLiveNodesOnHost(ctx context.Context, tx ReadTx, hostID id.HostID) (int, error) {
	var n int
	err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM nodes WHERE host_id = $1 AND deleted_at IS NULL`, hostID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: counting host nodes: %w", err)
	}
	return n, nil
}

// SoftDeleteHost marks a host deleted. The caller must first verify
// CountLiveNodesOnHost == 0.
func SoftDeleteHost(ctx context.Context, tx WriteTx, hostID id.HostID) error {
	tag, err := tx.Exec(ctx, `UPDATE hosts SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, hostID)
	if err != nil {
		return fmt.Errorf("store: soft-deleting host: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateHostStatus records the agent-reported reachability state.
func UpdateHostStatus(ctx context.Context, tx WriteTx, hostID id.HostID, status resource.HostStatus) error {
	tag, err := tx.Exec(ctx, `UPDATE hosts SET status = $2 WHERE id = $1 AND deleted_at IS NULL`, hostID, status)
	if err != nil {
		return fmt.Errorf("store: updating host status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRegions returns the fixed region lookup table for the host.regions RPC.
func ListRegions(ctx context.Context, tx ReadTx) ([]resource.Region, error) {
	rows, err := tx.Query(ctx, `SELECT id, key, display_name FROM regions ORDER BY key ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: listing regions: %w", err)
	}
	defer rows.Close()

	var out []resource.Region
	for rows.Next() {
		var r resource.Region
		if err := rows.Scan(&r.ID, &r.Key, &r.DisplayName); err != nil {
			return nil, fmt.Errorf("store: scanning region: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
