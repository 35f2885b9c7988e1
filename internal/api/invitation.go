package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fleetforge/controlplane/internal/httpserver"
	"github.com/fleetforge/controlplane/pkg/claims"
	"github.com/fleetforge/controlplane/pkg/ferr"
	"github.com/fleetforge/controlplane/pkg/id"
	"github.com/fleetforge/controlplane/pkg/rbac"
	"github.com/fleetforge/controlplane/pkg/resource"
	"github.com/fleetforge/controlplane/pkg/store"
)

// invitationRoutes offers org membership to an email address via an
// opaque, single-use token, independent of whether the invitee already
// holds an account.
func (h *handlers) invitationRoutes(r chi.Router) {
	r.Get("/", h.handleListInvitations)
	r.Post("/", h.handleCreateInvitation)
	r.Post("/{invitationID}/accept", h.handleAcceptInvitation)
	r.Post("/{invitationID}/decline", h.handleDeclineInvitation)
	r.Delete("/{invitationID}", h.handleRevokeInvitation)
}

type invitationResponse struct {
	ID     string `json:"id"`
	OrgID  string `json:"org_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Status string `json:"status"`
}

func toInvitationResponse(inv resource.Invitation) invitationResponse {
	return invitationResponse{
		ID: inv.ID.String(), OrgID: inv.OrgID.String(), Email: inv.Email,
		Role: string(inv.Role), Status: string(inv.Status),
	}
}

func (h *handlers) handleListInvitations(w http.ResponseWriter, r *http.Request) {
	orgID, err := id.ParseOrgID(r.URL.Query().Get("org_id"))
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "org_id query parameter is required"))
		return
	}
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	var resp []invitationResponse
	err = h.deps.Pool.RunRead(r.Context(), false, func(ctx context.Context, tx store.ReadTx) error {
		if _, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermOrgMembers), claims.NewTarget(claims.KindOrg, orgID.String()), h.deps.Signer, tx); err != nil {
			return err
		}
		invs, err := store.ListInvitationsByOrg(ctx, tx, orgID)
		if err != nil {
			return err
		}
		resp = make([]invitationResponse, len(invs))
		for i, inv := range invs {
			resp[i] = toInvitationResponse(inv)
		}
		return nil
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

type createInvitationRequest struct {
	OrgID string `json:"org_id" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,oneof=org-owner org-admin org-member"`
}

type createInvitationResponse struct {
	invitationResponse
	Token string `json:"token"` // shown once; delivered by a real system via the email-sender interface
}

// handleCreateInvitation mints a single-use invitation token and hands it to
// h.deps.EmailSender for best-effort delivery (see pkg/emailsender). The raw
// token is also returned to the caller directly, since the sender is never a
// real mail provider and a failed send must not strand the invitee.
func (h *handlers) handleCreateInvitation(w http.ResponseWriter, r *http.Request) {
	var req createInvitationRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	orgID, err := id.ParseOrgID(req.OrgID)
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid org id"))
		return
	}
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	token, err := randomSecret()
	if err != nil {
		httpserver.RespondDomainError(w, ferr.Wrap(ferr.Internal, "generating invitation token", err))
		return
	}

	var resp createInvitationResponse
	var orgName string
	err = h.deps.Pool.RunWrite(r.Context(), h.deps.Publisher, func(ctx context.Context, tx store.WriteTx) error {
		authz, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermOrgMembers), claims.NewTarget(claims.KindOrg, orgID.String()), h.deps.Signer, tx)
		if err != nil {
			return err
		}
		invitedBy, err := creatorUserID(authz.Claims)
		if err != nil {
			return err
		}

		org, err := store.GetOrg(ctx, tx, orgID)
		if err != nil {
			return err
		}
		orgName = org.Name

		inv, err := store.CreateInvitation(ctx, tx, resource.Invitation{
			ID:          id.NewInvitationID(),
			OrgID:       orgID,
			Email:       req.Email,
			Role:        resource.OrgRole(req.Role),
			InvitedBy:   invitedBy,
			HashedToken: store.HashAPIKeySecret(token),
			Status:      resource.InvitationPending,
			ExpiresAt:   time.Now().UTC().Add(h.deps.Expiries.Invitation),
		})
		if err != nil {
			return err
		}
		resp = createInvitationResponse{invitationResponse: toInvitationResponse(inv), Token: token}
		return nil
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	if err := h.deps.EmailSender.SendInvitation(r.Context(), req.Email, orgName, req.Role, token); err != nil {
		h.deps.Logger.Warn("invitation email delivery failed", "invitation_id", resp.ID, "error", err)
	}

	h.deps.Audit.LogFromRequest(r, claims.Claims{}, "create", "invitation", resp.ID, nil)
	httpserver.Respond(w, http.StatusCreated, resp)
}

type invitationTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// handleAcceptInvitation redeems a pending invitation for the caller's own
// user identity, adding them as an org member at the invited role.
func (h *handlers) handleAcceptInvitation(w http.ResponseWriter, r *http.Request) {
	invID, err := id.ParseInvitationID(chi.URLParam(r, "invitationID"))
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid invitation id"))
		return
	}

	var req invitationTokenRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	err = h.deps.Pool.RunWrite(r.Context(), h.deps.Publisher, func(ctx context.Context, tx store.WriteTx) error {
		userID, err := callerUserID(ctx, tx, h, bearer)
		if err != nil {
			return err
		}

		inv, err := store.GetInvitation(ctx, tx, invID)
		if err != nil {
			return err
		}
		if !inv.Open(time.Now().UTC()) {
			return ferr.New(ferr.FailedPrecondition, "invitation is no longer open")
		}
		if store.HashAPIKeySecret(req.Token) != inv.HashedToken {
			return ferr.New(ferr.InvalidArgument, "invalid invitation token")
		}

		if err := store.AddOrgMember(ctx, tx, resource.OrgUser{UserID: userID, OrgID: inv.OrgID, Role: inv.Role}); err != nil {
			return err
		}
		return store.UpdateInvitationStatus(ctx, tx, invID, resource.InvitationAccepted)
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, nil)
}

func (h *handlers) handleDeclineInvitation(w http.ResponseWriter, r *http.Request) {
	invID, err := id.ParseInvitationID(chi.URLParam(r, "invitationID"))
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid invitation id"))
		return
	}

	var req invitationTokenRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	err = h.deps.Pool.RunWrite(r.Context(), h.deps.Publisher, func(ctx context.Context, tx store.WriteTx) error {
		inv, err := store.GetInvitation(ctx, tx, invID)
		if err != nil {
			return err
		}
		if !inv.Open(time.Now().UTC()) {
			return ferr.New(ferr.FailedPrecondition, "invitation is no longer open")
		}
		if store.HashAPIKeySecret(req.Token) != inv.HashedToken {
			return ferr.New(ferr.InvalidArgument, "invalid invitation token")
		}
		return store.UpdateInvitationStatus(ctx, tx, invID, resource.InvitationDeclined)
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, nil)
}

// handleRevokeInvitation lets an org admin cancel a pending invitation
// before it is ever redeemed.
func (h *handlers) handleRevokeInvitation(w http.ResponseWriter, r *http.Request) {
	invID, err := id.ParseInvitationID(chi.URLParam(r, "invitationID"))
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid invitation id"))
		return
	}
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	err = h.deps.Pool.RunWrite(r.Context(), h.deps.Publisher, func(ctx context.Context, tx store.WriteTx) error {
		inv, err := store.GetInvitation(ctx, tx, invID)
		if err != nil {
			return err
		}
		if _, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermOrgMembers), claims.NewTarget(claims.KindOrg, inv.OrgID.String()), h.deps.Signer, tx); err != nil {
			return err
		}
		return store.UpdateInvitationStatus(ctx, tx, invID, resource.InvitationRevoked)
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}
