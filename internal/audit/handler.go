package audit

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetforge/controlplane/internal/httpserver"
	"github.com/fleetforge/controlplane/pkg/claims"
	"github.com/fleetforge/controlplane/pkg/rbac"
	"github.com/fleetforge/controlplane/pkg/secrets"
	"github.com/fleetforge/controlplane/pkg/store"
)

// Handler serves the read-only audit log listing, gated behind the
// platform-admin permission since the log spans every org.
type Handler struct {
	pool   *store.Pool
	signer *secrets.Signer
	logger *slog.Logger
}

// NewHandler creates an audit log Handler.
func NewHandler(pool *store.Pool, signer *secrets.Signer, logger *slog.Logger) *Handler {
	return &Handler{pool: pool, signer: signer, logger: logger}
}

// Routes returns a chi.Router with audit log routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	return r
}

type auditRow struct {
	ActorKind  string `json:"actor_kind"`
	ActorID    string `json:"actor_id"`
	Action     string `json:"action"`
	Resource   string `json:"resource"`
	ResourceID string `json:"resource_id"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	var rows []auditRow
	err = h.pool.RunRead(r.Context(), true, func(ctx context.Context, tx store.ReadTx) error {
		if _, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermAdminReadDeleted), claims.AllResources, h.signer, tx); err != nil {
			return err
		}

		qRows, err := tx.Query(ctx, `
			SELECT actor_kind, actor_id, action, resource, resource_id
			FROM audit_log
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2`, params.PageSize, params.Offset)
		if err != nil {
			return err
		}
		defer qRows.Close()

		for qRows.Next() {
			var row auditRow
			if err := qRows.Scan(&row.ActorKind, &row.ActorID, &row.Action, &row.Resource, &row.ResourceID); err != nil {
				return err
			}
			rows = append(rows, row)
		}
		return qRows.Err()
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, rows)
}
