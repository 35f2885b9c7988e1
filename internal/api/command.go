package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fleetforge/controlplane/internal/httpserver"
	"github.com/fleetforge/controlplane/pkg/claims"
	"github.com/fleetforge/controlplane/pkg/commandqueue"
	"github.com/fleetforge/controlplane/pkg/ferr"
	"github.com/fleetforge/controlplane/pkg/id"
	"github.com/fleetforge/controlplane/pkg/rbac"
	"github.com/fleetforge/controlplane/pkg/resource"
	"github.com/fleetforge/controlplane/pkg/scheduler"
	"github.com/fleetforge/controlplane/pkg/store"
)

// commandRoutes is the host agent's half of the command-queue protocol
//: a host polls for pending work, acks receipt, then reports an
// exit code once the command finishes executing.
func (h *handlers) commandRoutes(r chi.Router) {
	r.Get("/", h.handleListPendingCommands)
	r.Post("/{commandID}/ack", h.handleAckCommand)
	r.Post("/{commandID}/exit", h.handleReportExitCode)
}

type commandResponse struct {
	ID      string  `json:"id"`
	HostID  string  `json:"host_id"`
	NodeID  *string `json:"node_id,omitempty"`
	CmdType string  `json:"cmd_type"`
}

func toCommandResponse(c resource.Command) commandResponse {
	resp := commandResponse{ID: c.ID.String(), HostID: c.HostID.String(), CmdType: string(c.CmdType)}
	if c.NodeID != nil {
		s := c.NodeID.String()
		resp.NodeID = &s
	}
	return resp
}

func (h *handlers) handleListPendingCommands(w http.ResponseWriter, r *http.Request) {
	hostID, err := id.ParseHostID(r.URL.Query().Get("host_id"))
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "host_id query parameter is required"))
		return
	}
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	var resp []commandResponse
	err = h.deps.Pool.RunRead(r.Context(), false, func(ctx context.Context, tx store.ReadTx) error {
		if _, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermCommandRead), claims.NewTarget(claims.KindHost, hostID.String()), h.deps.Signer, tx); err != nil {
			return err
		}
		cmds, err := commandqueue.ListPending(ctx, tx, hostID)
		if err != nil {
			return err
		}
		resp = make([]commandResponse, len(cmds))
		for i, c := range cmds {
			resp[i] = toCommandResponse(c)
		}
		return nil
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

// handleAckCommand implements "duplicate acks are no-ops with a
// warning": a second ack of the same command succeeds but is logged, never
// surfaced as an error to the caller.
func (h *handlers) handleAckCommand(w http.ResponseWriter, r *http.Request) {
	cmdID, err := id.ParseCommandID(chi.URLParam(r, "commandID"))
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid command id"))
		return
	}
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	var acked bool
	err = h.deps.Pool.RunWrite(r.Context(), h.deps.Publisher, func(ctx context.Context, tx store.WriteTx) error {
		cmd, err := commandqueue.GetCommand(ctx, tx, cmdID)
		if err != nil {
			return err
		}
		if _, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermCommandUpdate), claims.NewTarget(claims.KindHost, cmd.HostID.String()), h.deps.Signer, tx); err != nil {
			return err
		}
		acked, err = commandqueue.Ack(ctx, tx, cmdID, time.Now().UTC())
		return err
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}
	if !acked {
		h.deps.Logger.Warn("duplicate command ack", "command_id", cmdID.String())
	}

	httpserver.Respond(w, http.StatusOK, nil)
}

type reportExitCodeRequest struct {
	ExitCode         int    `json:"exit_code"`
	ExitMessage      string `json:"exit_message"`
	RetryHintSeconds *int   `json:"retry_hint_seconds,omitempty"`
}

// handleReportExitCode implements "update(cmd_id, ...) —
// atomic; triggers the success/recovery branch": the command's node and a
// fresh scheduler candidate set are loaded so pkg/lifecycle.OnExitCode can
// decide whether to retry placement on a second host.
func (h *handlers) handleReportExitCode(w http.ResponseWriter, r *http.Request) {
	cmdID, err := id.ParseCommandID(chi.URLParam(r, "commandID"))
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid command id"))
		return
	}

	var req reportExitCodeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	var cmd resource.Command
	err = h.deps.Pool.RunWrite(r.Context(), h.deps.Publisher, func(ctx context.Context, tx store.WriteTx) error {
		existing, err := commandqueue.GetCommand(ctx, tx, cmdID)
		if err != nil {
			return err
		}
		if _, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermCommandUpdate), claims.NewTarget(claims.KindHost, existing.HostID.String()), h.deps.Signer, tx); err != nil {
			return err
		}

		exitCode := req.ExitCode
		var exitMessage *string
		if req.ExitMessage != "" {
			exitMessage = &req.ExitMessage
		}

		cmd, err = commandqueue.Update(ctx, tx, cmdID, commandqueue.UpdateResult{
			ExitCode: &exitCode, ExitMessage: exitMessage, RetryHintSeconds: req.RetryHintSeconds,
		})
		if err != nil {
			return err
		}
		if cmd.NodeID == nil {
			return nil
		}

		node, err := store.GetNode(ctx, tx, *cmd.NodeID)
		if err != nil {
			return err
		}

		var candidates []scheduler.Candidate
		if cmd.CmdType == resource.CommandCreateNode && cmd.Failed() {
			cpu, mem, disk := node.Requirements()
			candidates, err = scheduler.SelectCandidates(ctx, tx, scheduler.Requirements{
				MinCPU: cpu, MinMemBytes: mem, MinDiskBytes: disk,
			}, node.ProtocolVersionID, node.NodeType, node.OrgID, scheduler.Policy{
				Similarity: node.SchedulerPolicy.Similarity, Resource: node.SchedulerPolicy.Resource,
			})
			if err != nil {
				return err
			}
		}

		return h.deps.Controller.OnExitCode(ctx, tx, node, cmd, candidates)
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	// Best-effort external notification, fired only after the state
	// transition above has durably committed — never inside the write
	// transaction itself.
	if cmd.NodeID != nil && cmd.Failed() {
		reason := "command failed"
		if cmd.ExitMessage != nil {
			reason = *cmd.ExitMessage
		}
		h.deps.Notifiers.NotifyNodeFailed(r.Context(), *cmd.NodeID, cmd.HostID, reason)

		if req.ExitMessage != "" {
			key := "command-exit/" + cmdID.String() + ".log"
			if _, err := h.deps.ObjectStore.PutObject(r.Context(), key, []byte(req.ExitMessage)); err != nil {
				h.deps.Logger.Warn("archiving command exit message failed", "command_id", cmdID.String(), "error", err)
			}
		}
	}

	httpserver.Respond(w, http.StatusOK, nil)
}
