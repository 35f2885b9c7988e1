package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
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

func (h *handlers) apiKeyRoutes(r chi.Router) {
	r.Get("/", h.handleListAPIKeys)
	r.Post("/", h.handleCreateAPIKey)
	r.Delete("/{apiKeyID}", h.handleRevokeAPIKey)
}

type apiKeyResponse struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Resource string `json:"resource"`
}

func toAPIKeyResponse(k resource.ApiKey) apiKeyResponse {
	return apiKeyResponse{ID: k.ID.String(), Label: k.Label, Resource: k.Resource}
}

// handleListAPIKeys lists the caller's own API keys. There is no
// platform-wide listing RPC: an org/host-scoped key is still only
// manageable by the user who created it.
func (h *handlers) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	var resp []apiKeyResponse
	err := h.deps.Pool.RunRead(r.Context(), false, func(ctx context.Context, tx store.ReadTx) error {
		userID, err := callerUserID(ctx, tx, h, bearer)
		if err != nil {
			return err
		}
		if _, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermApiKeyManage), claims.NewTarget(claims.KindUser, userID.String()), h.deps.Signer, tx); err != nil {
			return err
		}
		keys, err := store.ListAPIKeysByUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		resp = make([]apiKeyResponse, len(keys))
		for i, k := range keys {
			resp[i] = toAPIKeyResponse(k)
		}
		return nil
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

func callerUserID(ctx context.Context, tx store.ReadTx, h *handlers, bearer string) (id.UserID, error) {
	c, err := claims.ParseBearer(ctx, tx, h.deps.Signer, bearer)
	if err != nil {
		return id.UserID{}, err
	}
	if c.ResourceKind != claims.KindUser {
		return id.UserID{}, ferr.New(ferr.Forbidden, "only a user identity may manage api keys")
	}
	return id.ParseUserID(c.ResourceID)
}

type createAPIKeyRequest struct {
	Label    string `json:"label" validate:"required"`
	Resource string `json:"resource" validate:"required"` // e.g. "org:<uuid>", "host:<uuid>"
}

type createAPIKeyResponse struct {
	apiKeyResponse
	Secret string `json:"secret"` // shown once; never retrievable again
}

// handleCreateAPIKey mints a new API key credential, returning the raw
// secret exactly once.
func (h *handlers) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createAPIKeyRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	secret, err := randomSecret()
	if err != nil {
		httpserver.RespondDomainError(w, ferr.Wrap(ferr.Internal, "generating api key secret", err))
		return
	}

	var resp createAPIKeyResponse
	err = h.deps.Pool.RunWrite(r.Context(), h.deps.Publisher, func(ctx context.Context, tx store.WriteTx) error {
		userID, err := callerUserID(ctx, tx, h, bearer)
		if err != nil {
			return err
		}
		if _, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermApiKeyManage), claims.NewTarget(claims.KindUser, userID.String()), h.deps.Signer, tx); err != nil {
			return err
		}

		key, err := store.CreateAPIKey(ctx, tx, resource.ApiKey{
			ID:           id.NewApiKeyID(),
			UserID:       userID,
			Label:        req.Label,
			Resource:     req.Resource,
			HashedSecret: store.HashAPIKeySecret(secret),
		})
		if err != nil {
			return err
		}
		resp = createAPIKeyResponse{apiKeyResponse: toAPIKeyResponse(key), Secret: key.ID.String() + ":" + secret}
		return nil
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	h.deps.Audit.LogFromRequest(r, claims.Claims{}, "create", "api_key", resp.ID, nil)
	httpserver.Respond(w, http.StatusCreated, resp)
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("api: reading random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (h *handlers) handleRevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	keyID, err := id.ParseApiKeyID(chi.URLParam(r, "apiKeyID"))
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid api key id"))
		return
	}
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	err = h.deps.Pool.RunWrite(r.Context(), h.deps.Publisher, func(ctx context.Context, tx store.WriteTx) error {
		userID, err := callerUserID(ctx, tx, h, bearer)
		if err != nil {
			return err
		}
		if _, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermApiKeyManage), claims.NewTarget(claims.KindUser, userID.String()), h.deps.Signer, tx); err != nil {
			return err
		}
		return store.RevokeAPIKey(ctx, tx, keyID)
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	h.deps.Audit.LogFromRequest(r, claims.Claims{}, "revoke", "api_key", keyID.String(), nil)
	httpserver.Respond(w, http.StatusNoContent, nil)
}
