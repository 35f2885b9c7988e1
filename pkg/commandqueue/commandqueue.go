// Package commandqueue is the durable per-host FIFO of supervisor commands:
// at-least-once delivery to the agent, single-ack semantics, and
// exit-code-driven success/recovery branching.
//
// Raw-pgx CRUD shape (explicit column list constant, scan helpers, no
// ORM); rows keyed by host, FIFO by created_at with seq as a tiebreaker,
// acked_at-gated idempotence.
package commandqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetforge/controlplane/pkg/id"
	"github.com/fleetforge/controlplane/pkg/resource"
	"github.com/fleetforge/controlplane/pkg/store"
)

const commandColumns = `id, host_id, node_id, cmd_type, exit_code, exit_message, retry_hint_seconds, acked_at, created_at, seq`

func scanCommand(row interface {
	Scan(dest ...any) error
}) (resource.Command, error) {
	var c resource.Command
	err := row.Scan(&c.ID, &c.HostID, &c.NodeID, &c.CmdType, &c.ExitCode, &c.ExitMessage,
		&c.RetryHintSeconds, &c.AckedAt, &c.CreatedAt, &c.Seq)
	return c, err
}

// NewCommand describes a command to enqueue.
type NewCommand struct {
	HostID  id.HostID
	NodeID  *id.NodeID
	CmdType resource.CommandType
}

// Enqueue inserts a new command onto the host's queue. Its position is
// fixed by the database-assigned seq, not by created_at alone — see
// ListPending.
func Enqueue(ctx context.Context, tx store.WriteTx, nc NewCommand) (resource.Command, error) {
	if nc.CmdType.IsNodeCommand() && nc.NodeID == nil {
		return resource.Command{}, fmt.Errorf("commandqueue: %s requires a node id", nc.CmdType)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO commands (host_id, node_id, cmd_type)
		VALUES ($1, $2, $3)
		RETURNING `+commandColumns,
		nc.HostID, nc.NodeID, nc.CmdType)
	return scanCommand(row)
}

// GetCommand loads a single command by id, used to resolve the owning host
// for an authorization check before an ack/exit-code mutation.
func GetCommand(ctx context.Context, tx store.ReadTx, cmdID id.CommandID) (resource.Command, error) {
	row := tx.QueryRow(ctx, `SELECT `+commandColumns+` FROM commands WHERE id = $1`, cmdID)
	c, err := scanCommand(row)
	if err != nil {
		return resource.Command{}, store.ErrNotFound
	}
	return c, nil
}

// ListPending returns unacked commands for a host, FIFO by created_at with
// seq as a tiebreaker: created_at alone is not enough to order commands
// enqueued by the same write transaction, since Postgres freezes now() at
// transaction start and two commands inserted in one tx (CreateNode then
// StartNode) land on the same created_at. seq is a bigserial assigned at
// insert time, so it still orders them correctly within that tx.
func ListPending(ctx context.Context, tx store.ReadTx, hostID id.HostID) ([]resource.Command, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+commandColumns+`
		FROM commands
		WHERE host_id = $1 AND acked_at IS NULL
		ORDER BY created_at ASC, seq ASC`, hostID)
	if err != nil {
		return nil, fmt.Errorf("commandqueue: listing pending: %w", err)
	}
	defer rows.Close()

	var out []resource.Command
	for rows.Next() {
		c, err := scanCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("commandqueue: scanning command: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Ack marks a command acknowledged if it has not already been. Duplicate
// acks are no-ops; the caller is expected to log a warning when ok is
// false.
func Ack(ctx context.Context, tx store.WriteTx, cmdID id.CommandID, now time.Time) (ok bool, err error) {
	tag, err := tx.Exec(ctx, `
		UPDATE commands SET acked_at = $2
		WHERE id = $1 AND acked_at IS NULL`, cmdID, now)
	if err != nil {
		return false, fmt.Errorf("commandqueue: acking command: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateResult is the outcome of an agent reporting a command's exit status.
type UpdateResult struct {
	ExitCode         *int
	ExitMessage      *string
	RetryHintSeconds *int
}

// Update atomically records the exit status of a command. It is the only
// write that triggers the success/recovery branch; callers pass the
// returned Command to lifecycle.Controller.OnExitCode, which inspects its
// Succeeded/Failed/Interim state to decide what follows.
func Update(ctx context.Context, tx store.WriteTx, cmdID id.CommandID, res UpdateResult) (resource.Command, error) {
	row := tx.QueryRow(ctx, `
		UPDATE commands
		SET exit_code = $2, exit_message = $3, retry_hint_seconds = $4
		WHERE id = $1
		RETURNING `+commandColumns,
		cmdID, res.ExitCode, res.ExitMessage, res.RetryHintSeconds)
	return scanCommand(row)
}

// DeletePending purges unsent (unacked) commands for a node, used when a
// node is hard-deleted.
func DeletePending(ctx context.Context, tx store.WriteTx, nodeID id.NodeID) (int64, error) {
	tag, err := tx.Exec(ctx, `
		DELETE FROM commands WHERE node_id = $1 AND acked_at IS NULL`, nodeID)
	if err != nil {
		return 0, fmt.Errorf("commandqueue: deleting pending commands: %w", err)
	}
	return tag.RowsAffected(), nil
}
