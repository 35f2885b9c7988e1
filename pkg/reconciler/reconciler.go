// Package reconciler runs a periodic sweep, once a minute: commands whose
// agent never acked within a staleness window are treated as lost and
// recovered. It does not detect external non-idempotent calls that were
// made but never followed by a commit.
package reconciler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fleetforge/controlplane/pkg/commandqueue"
	"github.com/fleetforge/controlplane/pkg/lifecycle"
	"github.com/fleetforge/controlplane/pkg/resource"
	"github.com/fleetforge/controlplane/pkg/store"
)

// StaleCommandReason is the synthetic ExitMessage recorded when a command
// is force-recovered for staleness.
const StaleCommandReason = "reconciler: no ack within staleness window"

// Reconciler owns the cron job and its dependencies.
type Reconciler struct {
	pool       *store.Pool
	pub        store.Publisher
	controller *lifecycle.Controller
	logger     *slog.Logger
	staleAfter time.Duration

	cron *cron.Cron
}

// New builds a Reconciler. staleAfter is the window after which an unacked
// command is treated as lost.
func New(pool *store.Pool, pub store.Publisher, controller *lifecycle.Controller, logger *slog.Logger, staleAfter time.Duration) *Reconciler {
	return &Reconciler{
		pool:       pool,
		pub:        pub,
		controller: controller,
		logger:     logger,
		staleAfter: staleAfter,
		cron:       cron.New(),
	}
}

// Start schedules the sweep to run every minute and begins the cron
// scheduler's own goroutine. Stop must be called to shut it down cleanly.
func (r *Reconciler) Start(ctx context.Context) error {
	_, err := r.cron.AddFunc("*/1 * * * *", func() {
		if err := r.sweep(ctx); err != nil {
			r.logger.Error("reconciler sweep failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts the cron scheduler and waits for any in-flight sweep to
// finish.
func (r *Reconciler) Stop() {
	<-r.cron.Stop().Done()
}

// sweep finds commands stuck unacked past the staleness window and routes
// them through the same exit-code recovery path an agent's ack/update
// would have — a synthetic non-zero exit code, since a command that never
// even got an ack clearly did not succeed.
func (r *Reconciler) sweep(ctx context.Context) error {
	return r.pool.RunWrite(ctx, r.pub, func(ctx context.Context, tx store.WriteTx) error {
		stale, err := staleCommands(ctx, tx, r.staleAfter)
		if err != nil {
			return err
		}

		for _, cmd := range stale {
			r.logger.Warn("reconciler: recovering stale command",
				"command_id", cmd.ID.String(), "host_id", cmd.HostID.String(), "cmd_type", cmd.CmdType)

			exitCode := 1
			msg := StaleCommandReason
			updated, err := commandqueue.Update(ctx, tx, cmd.ID, commandqueue.UpdateResult{
				ExitCode:    &exitCode,
				ExitMessage: &msg,
			})
			if err != nil {
				return err
			}

			if cmd.NodeID == nil || cmd.CmdType != resource.CommandCreateNode {
				continue
			}

			node, err := store.GetNode(ctx, tx, *cmd.NodeID)
			if err != nil {
				r.logger.Warn("reconciler: could not load node for stale command", "node_id", cmd.NodeID.String(), "error", err)
				continue
			}

			if err := r.controller.OnExitCode(ctx, tx, node, updated, nil); err != nil {
				return err
			}
		}

		return nil
	})
}

// staleCommands returns unacked commands older than staleAfter, ordered by
// age, mirroring commandqueue.ListPending's FIFO ordering but scoped
// across all hosts since the sweep is global.
func staleCommands(ctx context.Context, tx store.ReadTx, staleAfter time.Duration) ([]resource.Command, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, host_id, node_id, cmd_type, exit_code, exit_message, retry_hint_seconds, acked_at, created_at
		FROM commands
		WHERE acked_at IS NULL AND exit_code IS NULL AND created_at < now() - $1::interval
		ORDER BY created_at ASC, seq ASC`, staleAfter.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []resource.Command
	for rows.Next() {
		var c resource.Command
		if err := rows.Scan(&c.ID, &c.HostID, &c.NodeID, &c.CmdType, &c.ExitCode, &c.ExitMessage,
			&c.RetryHintSeconds, &c.AckedAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
