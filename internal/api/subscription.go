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
	"github.com/fleetforge/controlplane/pkg/resource"
	"github.com/fleetforge/controlplane/pkg/store"
)

// subscriptionRoutes binds an org to a billing plan. Creation calls
// h.deps.Billing first only when the request carries no external_ref;
// cancellation always calls it first (never a real provider — see
// pkg/billing). Either handler persists only after that call returns, and a
// billing error fails the request; reconciling drift against whatever the real billing system reports is
// left to an external webhook calling UpdateSubscriptionStatus.
func (h *handlers) subscriptionRoutes(r chi.Router) {
	r.Get("/", h.handleListSubscriptions)
	r.Post("/", h.handleCreateSubscription)
	r.Get("/{subscriptionID}", h.handleGetSubscription)
	r.Patch("/{subscriptionID}", h.handleUpdateSubscriptionStatus)
	r.Delete("/{subscriptionID}", h.handleCancelSubscription)
}

type subscriptionResponse struct {
	ID          string `json:"id"`
	OrgID       string `json:"org_id"`
	PlanKey     string `json:"plan_key"`
	ExternalRef string `json:"external_ref"`
	Status      string `json:"status"`
}

func toSubscriptionResponse(s resource.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID: s.ID.String(), OrgID: s.OrgID.String(),
		PlanKey: s.PlanKey, ExternalRef: s.ExternalRef, Status: string(s.Status),
	}
}

func (h *handlers) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	orgID, err := id.ParseOrgID(r.URL.Query().Get("org_id"))
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "org_id query parameter is required"))
		return
	}
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	var resp []subscriptionResponse
	err = h.deps.Pool.RunRead(r.Context(), false, func(ctx context.Context, tx store.ReadTx) error {
		if _, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermOrgUpdate), claims.NewTarget(claims.KindOrg, orgID.String()), h.deps.Signer, tx); err != nil {
			return err
		}
		subs, err := store.ListSubscriptionsByOrg(ctx, tx, orgID)
		if err != nil {
			return err
		}
		resp = make([]subscriptionResponse, len(subs))
		for i, s := range subs {
			resp[i] = toSubscriptionResponse(s)
		}
		return nil
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *handlers) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	subID, err := id.ParseSubscriptionID(chi.URLParam(r, "subscriptionID"))
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid subscription id"))
		return
	}
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	var resp subscriptionResponse
	err = h.deps.Pool.RunRead(r.Context(), false, func(ctx context.Context, tx store.ReadTx) error {
		sub, err := store.GetSubscription(ctx, tx, subID)
		if err != nil {
			return err
		}
		if _, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermOrgUpdate), claims.NewTarget(claims.KindOrg, sub.OrgID.String()), h.deps.Signer, tx); err != nil {
			return err
		}
		resp = toSubscriptionResponse(sub)
		return nil
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

type createSubscriptionRequest struct {
	OrgID       string `json:"org_id" validate:"required"`
	PlanKey     string `json:"plan_key" validate:"required"`
	ExternalRef string `json:"external_ref"`
}

func (h *handlers) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req createSubscriptionRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	orgID, err := id.ParseOrgID(req.OrgID)
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid org id"))
		return
	}
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	err = h.deps.Pool.RunRead(r.Context(), false, func(ctx context.Context, tx store.ReadTx) error {
		_, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermOrgUpdate), claims.NewTarget(claims.KindOrg, orgID.String()), h.deps.Signer, tx)
		return err
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	externalRef := req.ExternalRef
	if externalRef == "" {
		externalRef, err = h.deps.Billing.CreateSubscription(r.Context(), orgID, req.PlanKey)
		if err != nil {
			httpserver.RespondDomainError(w, ferr.Wrap(ferr.Unavailable, "billing provider rejected subscription", err))
			return
		}
	}

	var resp subscriptionResponse
	err = h.deps.Pool.RunWrite(r.Context(), h.deps.Publisher, func(ctx context.Context, tx store.WriteTx) error {
		sub, err := store.CreateSubscription(ctx, tx, resource.Subscription{
			ID:          id.NewSubscriptionID(),
			OrgID:       orgID,
			PlanKey:     req.PlanKey,
			ExternalRef: externalRef,
			Status:      resource.SubscriptionActive,
		})
		if err != nil {
			return err
		}
		resp = toSubscriptionResponse(sub)
		return nil
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	h.deps.Audit.LogFromRequest(r, claims.Claims{}, "create", "subscription", resp.ID, nil)
	httpserver.Respond(w, http.StatusCreated, resp)
}

type updateSubscriptionStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=Active PastDue Canceled"`
}

func (h *handlers) handleUpdateSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	subID, err := id.ParseSubscriptionID(chi.URLParam(r, "subscriptionID"))
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid subscription id"))
		return
	}

	var req updateSubscriptionStatusRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	err = h.deps.Pool.RunWrite(r.Context(), h.deps.Publisher, func(ctx context.Context, tx store.WriteTx) error {
		sub, err := store.GetSubscription(ctx, tx, subID)
		if err != nil {
			return err
		}
		if _, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermOrgUpdate), claims.NewTarget(claims.KindOrg, sub.OrgID.String()), h.deps.Signer, tx); err != nil {
			return err
		}
		return store.UpdateSubscriptionStatus(ctx, tx, subID, resource.SubscriptionStatus(req.Status))
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	h.deps.Audit.LogFromRequest(r, claims.Claims{}, "update_status", "subscription", subID.String(), nil)
	httpserver.Respond(w, http.StatusOK, nil)
}

func (h *handlers) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	subID, err := id.ParseSubscriptionID(chi.URLParam(r, "subscriptionID"))
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid subscription id"))
		return
	}
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	var externalRef string
	err = h.deps.Pool.RunRead(r.Context(), false, func(ctx context.Context, tx store.ReadTx) error {
		sub, err := store.GetSubscription(ctx, tx, subID)
		if err != nil {
			return err
		}
		if _, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermOrgUpdate), claims.NewTarget(claims.KindOrg, sub.OrgID.String()), h.deps.Signer, tx); err != nil {
			return err
		}
		externalRef = sub.ExternalRef
		return nil
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	if externalRef != "" {
		if err := h.deps.Billing.CancelSubscription(r.Context(), externalRef); err != nil {
			httpserver.RespondDomainError(w, ferr.Wrap(ferr.Unavailable, "billing provider rejected cancellation", err))
			return
		}
	}

	err = h.deps.Pool.RunWrite(r.Context(), h.deps.Publisher, func(ctx context.Context, tx store.WriteTx) error {
		return store.SoftDeleteSubscription(ctx, tx, subID)
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	h.deps.Audit.LogFromRequest(r, claims.Claims{}, "cancel", "subscription", subID.String(), nil)
	httpserver.Respond(w, http.StatusNoContent, nil)
}
