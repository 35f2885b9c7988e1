package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetforge/controlplane/internal/httpserver"
	"github.com/fleetforge/controlplane/pkg/claims"
	"github.com/fleetforge/controlplane/pkg/ferr"
	"github.com/fleetforge/controlplane/pkg/id"
	"github.com/fleetforge/controlplane/pkg/rbac"
	"github.com/fleetforge/controlplane/pkg/store"
)

func (h *handlers) userRoutes(r chi.Router) {
	r.Get("/{userID}", h.handleGetUser)
	r.Patch("/{userID}", h.handleUpdateUserProfile)
}

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (h *handlers) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid user id"))
		return
	}
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	var resp userResponse
	err = h.deps.Pool.RunRead(r.Context(), false, func(ctx context.Context, tx store.ReadTx) error {
		if _, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermUserRead), claims.NewTarget(claims.KindUser, userID.String()), h.deps.Signer, tx); err != nil {
			return err
		}
		u, err := store.GetUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		resp = userResponse{ID: u.ID.String(), Email: u.Email, FirstName: u.FirstName, LastName: u.LastName}
		return nil
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

type updateUserProfileRequest struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
}

func (h *handlers) handleUpdateUserProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid user id"))
		return
	}

	var req updateUserProfileRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	err = h.deps.Pool.RunWrite(r.Context(), h.deps.Publisher, func(ctx context.Context, tx store.WriteTx) error {
		if _, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermUserUpdate), claims.NewTarget(claims.KindUser, userID.String()), h.deps.Signer, tx); err != nil {
			return err
		}
		return store.UpdateUserProfile(ctx, tx, userID, req.FirstName, req.LastName)
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	h.deps.Audit.LogFromRequest(r, claims.Claims{ResourceKind: claims.KindUser, ResourceID: userID.String()}, "update", "user", userID.String(), nil)
	httpserver.Respond(w, http.StatusOK, nil)
}
