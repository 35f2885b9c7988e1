// Package scheduler selects candidate hosts for a new node. Hard filters
// and composite ordering are pushed into a single ranked SQL query rather
// than materialized and sorted in Go, since the candidate set can be
// large and only the top two rows are ever needed.
package scheduler

import (
	"context"
	"fmt"

	"github.com/fleetforge/controlplane/pkg/id"
	"github.com/fleetforge/controlplane/pkg/resource"
	"github.com/fleetforge/controlplane/pkg/store"
)

// Requirements is the hardware floor a candidate host must clear.
type Requirements struct {
	MinCPU      int
	MinMemBytes int64
	MinDiskBytes int64
}

// Policy is the affinity/resource-ordering axis a placement request can
// request.
type Policy struct {
	Similarity resource.SimilarityMode
	Resource   resource.ResourceMode
}

// Candidate is one ranked placement option.
type Candidate struct {
	HostID    id.HostID
	AvailCPU  int
	AvailMem  int64
	AvailDisk int64
	FreeIPs   int
	NSimilar  int
}

// MaxCandidates bounds the short-list length.
const MaxCandidates = 2

// SelectCandidates returns an ordered short-list of at most MaxCandidates
// hosts that satisfy req, considering live resource availability and the
// affinity policy. An empty result means OutOfCapacity at the caller.
func SelectCandidates(ctx context.Context, tx store.ReadTx, req Requirements, protocolVersionID id.ProtocolVersionID, nodeType string, orgID id.OrgID, policy Policy) ([]Candidate, error) {
	orderBy, err := orderByClause(policy)
	if err != nil {
		return nil, err
	}

	query := `
WITH host_load AS (
	SELECT
		h.id AS host_id,
		h.cpu_count - COALESCE(SUM(n.vcpu_count) FILTER (WHERE n.deleted_at IS NULL), 0) AS avail_cpu,
		h.mem_size_bytes - COALESCE(SUM(n.mem_size_bytes) FILTER (WHERE n.deleted_at IS NULL), 0) AS avail_mem,
		h.disk_size_bytes - COALESCE(SUM(n.disk_size_bytes) FILTER (WHERE n.deleted_at IS NULL), 0) AS avail_disk,
		COUNT(n.id) FILTER (
			WHERE n.deleted_at IS NULL
			AND n.protocol_version_id = $1
			AND n.node_type = $2
			AND h.host_type = 'Cloud'
		) AS n_similar
	FROM hosts h
	LEFT JOIN nodes n ON n.host_id = h.id
	WHERE h.deleted_at IS NULL
		AND h.status = 'Online'
		AND (h.org_id = $3 OR h.org_id IS NULL)
	GROUP BY h.id
),
free_ip_counts AS (
	SELECT host_id, COUNT(*) AS free_ips
	FROM ip_addresses
	WHERE node_id IS NULL
	GROUP BY host_id
)
SELECT hl.host_id, hl.avail_cpu, hl.avail_mem, hl.avail_disk,
       COALESCE(f.free_ips, 0) AS free_ips, hl.n_similar
FROM host_load hl
LEFT JOIN free_ip_counts f ON f.host_id = hl.host_id
WHERE hl.avail_cpu > $4 AND hl.avail_mem > $5 AND hl.avail_disk > $6
	AND COALESCE(f.free_ips, 0) > 0
` + orderBy + `
LIMIT $7`

	rows, err := tx.Query(ctx, query,
		protocolVersionID, nodeType, orgID,
		req.MinCPU, req.MinMemBytes, req.MinDiskBytes,
		MaxCandidates,
	)
	if err != nil {
		return nil, fmt.Errorf("scheduler: selecting candidates: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.HostID, &c.AvailCPU, &c.AvailMem, &c.AvailDisk, &c.FreeIPs, &c.NSimilar); err != nil {
			return nil, fmt.Errorf("scheduler: scanning candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// orderByClause builds the stable composite ORDER BY: first the
// similarity axis (if any), then the resource axis. Both axes default to
// their "no preference" behavior on the zero value — Resource defaults to
// ResourceModeMost rather than erroring, matching a create request that
// omits the field entirely.
func orderByClause(p Policy) (string, error) {
	var terms []string

	switch p.Similarity {
	case resource.SimilarityCluster:
		terms = append(terms, "hl.n_similar DESC")
	case resource.SimilaritySpread:
		terms = append(terms, "hl.n_similar ASC")
	case resource.SimilarityNone:
		// no contribution
	default:
		return "", fmt.Errorf("scheduler: unrecognized similarity mode %q", p.Similarity)
	}

	res := p.Resource
	if res == "" {
		res = resource.ResourceModeMost
	}
	switch res {
	case resource.ResourceModeMost:
		terms = append(terms, "hl.avail_cpu DESC, hl.avail_mem DESC, hl.avail_disk DESC")
	case resource.ResourceModeLeast:
		terms = append(terms, "hl.avail_cpu ASC, hl.avail_mem ASC, hl.avail_disk ASC")
	default:
		return "", fmt.Errorf("scheduler: unrecognized resource mode %q", res)
	}

	out := "ORDER BY "
	for i, t := range terms {
		if i > 0 {
			out += ", "
		}
		out += t
	}
	return out, nil
}
