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

func (h *handlers) orgRoutes(r chi.Router) {
	r.Get("/", h.handleListOrgs)
	r.Post("/", h.handleCreateOrg)
	r.Get("/{orgID}", h.handleGetOrg)
	r.Patch("/{orgID}", h.handleUpdateOrg)
	r.Delete("/{orgID}", h.handleDeleteOrg)
	r.Get("/{orgID}/members", h.handleListOrgMembers)
	r.Put("/{orgID}/members/{userID}", h.handleAddOrgMember)
	r.Delete("/{orgID}/members/{userID}", h.handleRemoveOrgMember)
}

type orgResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsPersonal bool   `json:"is_personal"`
}

func toOrgResponse(o resource.Org) orgResponse {
	return orgResponse{ID: o.ID.String(), Name: o.Name, IsPersonal: o.IsPersonal}
}

// handleListOrgs lists every org the caller belongs to. Since there is no
// "list all orgs on the platform" target short of the admin bypass, this
// derives its scope from the caller's own identity rather than an
// Authorize call against a single target.
func (h *handlers) handleListOrgs(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, err.Error()))
		return
	}
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	var page httpserver.OffsetPage[orgResponse]
	err = h.deps.Pool.RunRead(r.Context(), false, func(ctx context.Context, tx store.ReadTx) error {
		c, err := claims.ParseBearer(ctx, tx, h.deps.Signer, bearer)
		if err != nil {
			return err
		}
		if c.Expired(time.Now().UTC()) {
			return claims.ErrExpiredToken
		}
		if c.ResourceKind != claims.KindUser {
			return ferr.New(ferr.Forbidden, "only a user identity may list its orgs")
		}
		userID, err := id.ParseUserID(c.ResourceID)
		if err != nil {
			return ferr.New(ferr.Unauthenticated, "invalid user claim")
		}
		orgs, err := store.ListOrgsByUser(ctx, tx, userID, params.PageSize, params.Offset)
		if err != nil {
			return err
		}
		total, err := store.CountOrgsByUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		resp := make([]orgResponse, len(orgs))
		for i, o := range orgs {
			resp[i] = toOrgResponse(o)
		}
		page = httpserver.NewOffsetPage(resp, params, total)
		return nil
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, page)
}

type createOrgRequest struct {
	Name string `json:"name" validate:"required"`
}

func (h *handlers) handleCreateOrg(w http.ResponseWriter, r *http.Request) {
	var req createOrgRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	var resp orgResponse
	err := h.deps.Pool.RunWrite(r.Context(), h.deps.Publisher, func(ctx context.Context, tx store.WriteTx) error {
		c, err := claims.ParseBearer(ctx, tx, h.deps.Signer, bearer)
		if err != nil {
			return err
		}
		if c.Expired(time.Now().UTC()) {
			return claims.ErrExpiredToken
		}
		if c.ResourceKind != claims.KindUser {
			return ferr.New(ferr.Forbidden, "only a user identity may create an org")
		}
		userID, err := id.ParseUserID(c.ResourceID)
		if err != nil {
			return ferr.New(ferr.Unauthenticated, "invalid user claim")
		}

		org, err := store.CreateOrg(ctx, tx, resource.Org{ID: id.NewOrgID(), Name: req.Name})
		if err != nil {
			return err
		}
		if err := store.AddOrgMember(ctx, tx, resource.OrgUser{UserID: userID, OrgID: org.ID, Role: resource.OrgRoleOwner}); err != nil {
			return err
		}
		resp = toOrgResponse(org)
		return nil
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	h.deps.Audit.LogFromRequest(r, claims.Claims{}, "create", "org", resp.ID, nil)
	httpserver.Respond(w, http.StatusCreated, resp)
}

func (h *handlers) handleGetOrg(w http.ResponseWriter, r *http.Request) {
	orgID, err := id.ParseOrgID(chi.URLParam(r, "orgID"))
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid org id"))
		return
	}
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	var resp orgResponse
	err = h.deps.Pool.RunRead(r.Context(), false, func(ctx context.Context, tx store.ReadTx) error {
		if _, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermOrgRead), claims.NewTarget(claims.KindOrg, orgID.String()), h.deps.Signer, tx); err != nil {
			return err
		}
		o, err := store.GetOrg(ctx, tx, orgID)
		if err != nil {
			return err
		}
		resp = toOrgResponse(o)
		return nil
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

type updateOrgRequest struct {
	Name string `json:"name" validate:"required"`
}

func (h *handlers) handleUpdateOrg(w http.ResponseWriter, r *http.Request) {
	orgID, err := id.ParseOrgID(chi.URLParam(r, "orgID"))
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid org id"))
		return
	}

	var req updateOrgRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	err = h.deps.Pool.RunWrite(r.Context(), h.deps.Publisher, func(ctx context.Context, tx store.WriteTx) error {
		if _, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermOrgUpdate), claims.NewTarget(claims.KindOrg, orgID.String()), h.deps.Signer, tx); err != nil {
			return err
		}
		return store.UpdateOrgName(ctx, tx, orgID, req.Name)
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, nil)
}

func (h *handlers) handleDeleteOrg(w http.ResponseWriter, r *http.Request) {
	orgID, err := id.ParseOrgID(chi.URLParam(r, "orgID"))
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid org id"))
		return
	}
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	err = h.deps.Pool.RunWrite(r.Context(), h.deps.Publisher, func(ctx context.Context, tx store.WriteTx) error {
		if _, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermOrgDelete), claims.NewTarget(claims.KindOrg, orgID.String()), h.deps.Signer, tx); err != nil {
			return err
		}
		o, err := store.GetOrg(ctx, tx, orgID)
		if err != nil {
			return err
		}
		if !o.CanDelete() {
			return ferr.New(ferr.FailedPrecondition, "a personal org cannot be deleted")
		}
		return store.SoftDeleteOrg(ctx, tx, orgID)
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	h.deps.Audit.LogFromRequest(r, claims.Claims{}, "delete", "org", orgID.String(), nil)
	httpserver.Respond(w, http.StatusNoContent, nil)
}

type orgMemberResponse struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (h *handlers) handleListOrgMembers(w http.ResponseWriter, r *http.Request) {
	orgID, err := id.ParseOrgID(chi.URLParam(r, "orgID"))
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid org id"))
		return
	}
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	var resp []orgMemberResponse
	err = h.deps.Pool.RunRead(r.Context(), false, func(ctx context.Context, tx store.ReadTx) error {
		if _, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermOrgMembers), claims.NewTarget(claims.KindOrg, orgID.String()), h.deps.Signer, tx); err != nil {
			return err
		}
		members, err := store.ListOrgMembers(ctx, tx, orgID)
		if err != nil {
			return err
		}
		resp = make([]orgMemberResponse, len(members))
		for i, m := range members {
			resp[i] = orgMemberResponse{UserID: m.UserID.String(), Role: string(m.Role)}
		}
		return nil
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

type addOrgMemberRequest struct {
	Role string `json:"role" validate:"required,oneof=org-owner org-admin org-member"`
}

func (h *handlers) handleAddOrgMember(w http.ResponseWriter, r *http.Request) {
	orgID, err := id.ParseOrgID(chi.URLParam(r, "orgID"))
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid org id"))
		return
	}
	memberID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid user id"))
		return
	}

	var req addOrgMemberRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	err = h.deps.Pool.RunWrite(r.Context(), h.deps.Publisher, func(ctx context.Context, tx store.WriteTx) error {
		if _, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermOrgMembers), claims.NewTarget(claims.KindOrg, orgID.String()), h.deps.Signer, tx); err != nil {
			return err
		}
		return store.AddOrgMember(ctx, tx, resource.OrgUser{UserID: memberID, OrgID: orgID, Role: resource.OrgRole(req.Role)})
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, nil)
}

func (h *handlers) handleRemoveOrgMember(w http.ResponseWriter, r *http.Request) {
	orgID, err := id.ParseOrgID(chi.URLParam(r, "orgID"))
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid org id"))
		return
	}
	memberID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid user id"))
		return
	}
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	err = h.deps.Pool.RunWrite(r.Context(), h.deps.Publisher, func(ctx context.Context, tx store.WriteTx) error {
		if _, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermOrgMembers), claims.NewTarget(claims.KindOrg, orgID.String()), h.deps.Signer, tx); err != nil {
			return err
		}
		return store.RemoveOrgMember(ctx, tx, memberID, orgID)
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}
