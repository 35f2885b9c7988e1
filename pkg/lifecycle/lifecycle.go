// Package lifecycle converts high-level node requests into commands and
// maintains node state through the ack/exit-code loop.
//
// A background-safe design that re-derives all policy/progress state
// fresh from Postgres on every pass and never caches it in memory: retry
// node placement across two candidate hosts, then give up, with NodeLog
// scans standing in for the usual pending-work query a reconciler polls.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/fleetforge/controlplane/pkg/commandqueue"
	"github.com/fleetforge/controlplane/pkg/id"
	"github.com/fleetforge/controlplane/pkg/resource"
	"github.com/fleetforge/controlplane/pkg/scheduler"
	"github.com/fleetforge/controlplane/pkg/store"
)

// Controller implements the node lifecycle state machine.
type Controller struct {
	logger *slog.Logger
}

// NewController builds a Controller.
func NewController(logger *slog.Logger) *Controller {
	return &Controller{logger: logger}
}

// ackPreState maps a command type to the node status it expects to find the
// node in before transitioning it's ack state table.
var ackPreState = map[resource.CommandType]resource.NodeStatus{
	resource.CommandCreateNode:  resource.NodeStatusProvisioningPending,
	resource.CommandUpgradeNode: resource.NodeStatusUpdatePending,
	resource.CommandDeleteNode:  resource.NodeStatusDeletePending,
}

// ackPostState is the node status to transition to on ack, keyed the same
// way as ackPreState.
var ackPostState = map[resource.CommandType]resource.NodeStatus{
	resource.CommandCreateNode:  resource.NodeStatusProvisioning,
	resource.CommandUpgradeNode: resource.NodeStatusUpdating,
	resource.CommandDeleteNode:  resource.NodeStatusDeleting,
}

// ErrOutOfCapacity is returned by CreateNode when the scheduler's filtered
// candidate set is empty.
var ErrOutOfCapacity = fmt.Errorf("lifecycle: no host satisfies the node's requirements")

// CreateNode selects a placement candidate for node (which must already
// have its OrgID/ProtocolVersionID/NodeType/SchedulerPolicy and resource
// requirements populated, with a nil/zero HostID), persists it onto the
// winning host, and emits the initial CreateNode + StartNode commands.
func (c *Controller) CreateNode(ctx context.Context, tx store.WriteTx, node resource.Node) (resource.Node, error) {
	cpu, mem, disk := node.Requirements()
	candidates, err := scheduler.SelectCandidates(ctx, tx, scheduler.Requirements{
		MinCPU:       cpu,
		MinMemBytes:  mem,
		MinDiskBytes: disk,
	}, node.ProtocolVersionID, node.NodeType, node.OrgID, scheduler.Policy{
		Similarity: node.SchedulerPolicy.Similarity,
		Resource:   node.SchedulerPolicy.Resource,
	})
	if err != nil {
		return resource.Node{}, fmt.Errorf("lifecycle: selecting placement: %w", err)
	}
	if len(candidates) == 0 {
		return resource.Node{}, ErrOutOfCapacity
	}

	node.HostID = candidates[0].HostID
	node.NodeStatus = resource.NodeStatusProvisioningPending

	row := tx.QueryRow(ctx, `
		INSERT INTO nodes (
			id, org_id, host_id, image_id, protocol_version_id, node_type, name,
			ip, ip_gateway, node_status, sync_status, staking_status,
			vcpu_count, mem_size_bytes, disk_size_bytes, allow_ips, deny_ips,
			scheduler_similarity, scheduler_resource, created_by
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20
		) RETURNING created_at`,
		node.ID, node.OrgID, node.HostID, node.ImageID, node.ProtocolVersionID, node.NodeType, node.Name,
		node.IP, node.IPGateway, node.NodeStatus, resource.SyncStatusUnknown, resource.StakingStatusNone,
		node.VCPUCount, node.MemSizeBytes, node.DiskSizeBytes, node.AllowIPs, node.DenyIPs,
		node.SchedulerPolicy.Similarity, node.SchedulerPolicy.Resource, node.CreatedBy)
	if err := row.Scan(&node.CreatedAt); err != nil {
		return resource.Node{}, fmt.Errorf("lifecycle: inserting node: %w", err)
	}

	if err := appendLog(ctx, tx, node.ID, node.HostID, resource.NodeLogCreated); err != nil {
		return resource.Node{}, err
	}

	if err := store.ClaimIP(ctx, tx, node.HostID, node.IP.Addr(), node.ID); err != nil {
		return resource.Node{}, fmt.Errorf("lifecycle: claiming ip address: %w", err)
	}

	if _, err := commandqueue.Enqueue(ctx, tx, commandqueue.NewCommand{
		HostID: node.HostID, NodeID: &node.ID, CmdType: resource.CommandCreateNode,
	}); err != nil {
		return resource.Node{}, fmt.Errorf("lifecycle: enqueueing CreateNode: %w", err)
	}
	if _, err := commandqueue.Enqueue(ctx, tx, commandqueue.NewCommand{
		HostID: node.HostID, NodeID: &node.ID, CmdType: resource.CommandStartNode,
	}); err != nil {
		return resource.Node{}, fmt.Errorf("lifecycle: enqueueing StartNode: %w", err)
	}

	return node, nil
}

// OnAck implements ack state table: "If the pre-state differs,
// transition still occurs; a warning is logged."
func (c *Controller) OnAck(ctx context.Context, tx store.WriteTx, node resource.Node, cmdType resource.CommandType) (resource.NodeStatus, error) {
	postState, ok := ackPostState[cmdType]
	if !ok {
		return node.NodeStatus, nil
	}

	if want, ok := ackPreState[cmdType]; ok && node.NodeStatus != want {
		c.logger.Warn("node ack pre-state mismatch",
			"node_id", node.ID.String(), "cmd_type", cmdType,
			"expected", want, "actual", node.NodeStatus)
	}

	if _, err := tx.Exec(ctx, `UPDATE nodes SET node_status = $2 WHERE id = $1`, node.ID, postState); err != nil {
		return "", fmt.Errorf("lifecycle: transitioning node on ack: %w", err)
	}
	return postState, nil
}

// retryAttempts counts Created-event NodeLog rows for (nodeID, hostID),
// which stands in for "create attempts on this candidate host" — derived
// fresh from the log on every call, never cached. Callers must pass the
// candidate host whose attempt budget they're checking, not node.HostID,
// since the node has already been moved onto that candidate by the time
// this is consulted.
func retryAttempts(ctx context.Context, tx store.ReadTx, nodeID id.NodeID, hostID id.HostID) (int, error) {
	var n int
	err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM node_logs
		WHERE node_id = $1 AND host_id = $2 AND event = $3`,
		nodeID, hostID, resource.NodeLogCreated).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("lifecycle: counting retry attempts: %w", err)
	}
	return n, nil
}

// appendLog writes an append-only NodeLog row.
func appendLog(ctx context.Context, tx store.WriteTx, nodeID id.NodeID, hostID id.HostID, event resource.NodeLogEvent) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO node_logs (id, node_id, host_id, event)
		VALUES ($1, $2, $3, $4)`, id.NewNodeLogID(), nodeID, hostID, event)
	if err != nil {
		return fmt.Errorf("lifecycle: appending node log: %w", err)
	}
	return nil
}

// OnCreateNodeFailed implements placement retry policy,
// triggered when a CreateNode command's exit code denotes failure.
//
//  1. Emit a best-effort DeleteNode to the same host.
//  2. Append NodeLog{Failed}.
//  3. Consult NodeLog history scoped to the first candidate host
//     (candidates[0]), regardless of which host the node currently sits
//     on: 0 or 1 prior create attempts there retries on the node's
//     current host; once the budget is spent, a node still on the first
//     candidate moves to the second candidate; a node already on the
//     second candidate (or with no further candidates) is canceled.
//  4. When retrying, update node.host_id and emit CreateNode + StartNode.
func (c *Controller) OnCreateNodeFailed(ctx context.Context, tx store.WriteTx, node resource.Node, candidates []scheduler.Candidate) error {
	if _, err := commandqueue.Enqueue(ctx, tx, commandqueue.NewCommand{
		HostID:  node.HostID,
		NodeID:  &node.ID,
		CmdType: resource.CommandDeleteNode,
	}); err != nil {
		c.logger.Warn("best-effort cleanup DeleteNode failed to enqueue",
			"node_id", node.ID.String(), "error", err)
	}

	if err := appendLog(ctx, tx, node.ID, node.HostID, resource.NodeLogFailed); err != nil {
		return err
	}

	if len(candidates) == 0 {
		return c.cancelNode(ctx, tx, node)
	}

	firstCandidate := candidates[0].HostID
	attempts, err := retryAttempts(ctx, tx, node.ID, firstCandidate)
	if err != nil {
		return err
	}

	onFirstCandidate := node.HostID == firstCandidate

	switch {
	case attempts <= 1:
		// Retry on the same host, same candidate.
		return c.retryOn(ctx, tx, node, node.HostID)
	case onFirstCandidate && len(candidates) > 1:
		return c.retryOn(ctx, tx, node, candidates[1].HostID)
	default:
		return c.cancelNode(ctx, tx, node)
	}
}

// retryOn reassigns node onto hostID. When hostID differs from the
// node's current host, its originally claimed address belongs to the old
// host's pool and can't carry over, so it's released and a fresh address
// is claimed from the new host's pool instead.
func (c *Controller) retryOn(ctx context.Context, tx store.WriteTx, node resource.Node, hostID id.HostID) error {
	if hostID != node.HostID {
		if err := store.ReleaseIP(ctx, tx, node.ID); err != nil {
			return err
		}
		addr, err := store.ClaimAnyFreeIP(ctx, tx, hostID, node.ID)
		if err != nil {
			return fmt.Errorf("lifecycle: claiming ip address on retry host: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE nodes SET ip = $2 WHERE id = $1`,
			node.ID, netip.PrefixFrom(addr, addr.BitLen())); err != nil {
			return fmt.Errorf("lifecycle: updating node ip: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE nodes SET host_id = $2 WHERE id = $1`, node.ID, hostID); err != nil {
		return fmt.Errorf("lifecycle: reassigning node host: %w", err)
	}

	if err := appendLog(ctx, tx, node.ID, hostID, resource.NodeLogCreated); err != nil {
		return err
	}

	if _, err := commandqueue.Enqueue(ctx, tx, commandqueue.NewCommand{
		HostID:  hostID,
		NodeID:  &node.ID,
		CmdType: resource.CommandCreateNode,
	}); err != nil {
		return fmt.Errorf("lifecycle: enqueueing retry CreateNode: %w", err)
	}
	if _, err := commandqueue.Enqueue(ctx, tx, commandqueue.NewCommand{
		HostID:  hostID,
		NodeID:  &node.ID,
		CmdType: resource.CommandStartNode,
	}); err != nil {
		return fmt.Errorf("lifecycle: enqueueing retry StartNode: %w", err)
	}
	return nil
}

func (c *Controller) cancelNode(ctx context.Context, tx store.WriteTx, node resource.Node) error {
	if err := appendLog(ctx, tx, node.ID, node.HostID, resource.NodeLogCanceled); err != nil {
		return err
	}
	if err := store.ReleaseIP(ctx, tx, node.ID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE nodes SET node_status = $2 WHERE id = $1`,
		node.ID, resource.NodeStatusFailed); err != nil {
		return fmt.Errorf("lifecycle: canceling node: %w", err)
	}
	return nil
}

// OnCreateNodeSucceeded appends a NodeLog{Succeeded} entry for a node whose
// CreateNode command just exited 0; other command types have no special
// success hook.
func (c *Controller) OnCreateNodeSucceeded(ctx context.Context, tx store.WriteTx, node resource.Node) error {
	return appendLog(ctx, tx, node.ID, node.HostID, resource.NodeLogSucceeded)
}

// OnExitCode dispatches a command's exit status to the appropriate
// success/recovery branch. Callers supply the scheduler candidates; only
// the CreateNode failure branch uses them.
func (c *Controller) OnExitCode(ctx context.Context, tx store.WriteTx, node resource.Node, cmd resource.Command, candidates []scheduler.Candidate) error {
	switch {
	case cmd.Interim():
		return nil
	case cmd.Succeeded():
		if cmd.CmdType == resource.CommandCreateNode {
			return c.OnCreateNodeSucceeded(ctx, tx, node)
		}
		return nil
	case cmd.Failed():
		if cmd.CmdType == resource.CommandCreateNode {
			return c.OnCreateNodeFailed(ctx, tx, node, candidates)
		}
		return nil
	default:
		return nil
	}
}
