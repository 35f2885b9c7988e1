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
	"github.com/fleetforge/controlplane/pkg/secrets"
	"github.com/fleetforge/controlplane/pkg/store"
)

func (h *handlers) authRoutes(r chi.Router) {
	r.Post("/signup", h.handleSignup)
	r.Post("/login", h.handleLogin)
	r.Post("/refresh", h.handleRefresh)
	r.Post("/logout", h.handleLogout)
	r.Get("/me", h.handleMe)
}

type signupRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
}

type signupResponse struct {
	UserID string `json:"user_id"`
	OrgID  string `json:"org_id"`
}

// handleSignup creates a user and its personal org. No confirmation email
// is sent (the only email sender is the logging stub used for
// invitations), so the new account is confirmed immediately.
func (h *handlers) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	hashed, err := secrets.HashPassword(r.Context(), req.Password)
	if err != nil {
		httpserver.RespondDomainError(w, ferr.Wrap(ferr.Internal, "hashing password", err))
		return
	}

	var resp signupResponse
	err = h.deps.Pool.RunWrite(r.Context(), h.deps.Publisher, func(ctx context.Context, tx store.WriteTx) error {
		if _, err := store.GetUserByEmail(ctx, tx, req.Email); err == nil {
			return ferr.New(ferr.AlreadyExists, "an account with this email already exists")
		}

		now := time.Now().UTC()
		u, err := store.CreateUser(ctx, tx, resource.User{
			ID:             id.NewUserID(),
			Email:          req.Email,
			HashedPassword: hashed,
			FirstName:      req.FirstName,
			LastName:       req.LastName,
		})
		if err != nil {
			return ferr.Wrap(ferr.Internal, "creating user", err)
		}
		if err := store.ConfirmUser(ctx, tx, u.ID, now); err != nil {
			return ferr.Wrap(ferr.Internal, "confirming user", err)
		}

		org, err := store.CreateOrg(ctx, tx, resource.Org{
			ID:         id.NewOrgID(),
			Name:       req.FirstName + "'s org",
			IsPersonal: true,
		})
		if err != nil {
			return ferr.Wrap(ferr.Internal, "creating personal org", err)
		}

		if err := store.AddOrgMember(ctx, tx, resource.OrgUser{
			UserID: u.ID, OrgID: org.ID, Role: resource.OrgRoleOwner,
		}); err != nil {
			return ferr.Wrap(ferr.Internal, "adding owner membership", err)
		}

		resp = signupResponse{UserID: u.ID.String(), OrgID: org.ID.String()}
		return nil
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	h.deps.Audit.LogFromRequest(r, claims.Claims{ResourceKind: claims.KindUser, ResourceID: resp.UserID}, "signup", "user", resp.UserID, nil)
	httpserver.Respond(w, http.StatusCreated, resp)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// handleLogin verifies an email/password pair and mints an access token
// carrying the user's platform-wide roles plus a refresh token. Org-scoped
// roles are not baked into the token — claims.Authorize joins them fresh
// from org_users at authorization time, so a membership change takes
// effect on the very next request.
func (h *handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	var resp tokenResponse
	err := h.deps.Pool.RunRead(r.Context(), false, func(ctx context.Context, tx store.ReadTx) error {
		u, err := store.GetUserByEmail(ctx, tx, req.Email)
		if err != nil {
			return ferr.New(ferr.Unauthenticated, "invalid email or password")
		}
		if !u.CanLogIn() {
			return ferr.New(ferr.Unauthenticated, "account is not confirmed")
		}

		ok, err := secrets.ComparePassword(ctx, u.HashedPassword, req.Password)
		if err != nil {
			return ferr.Wrap(ferr.Internal, "comparing password", err)
		}
		if !ok {
			return ferr.New(ferr.Unauthenticated, "invalid email or password")
		}

		platformRoles, err := store.UserPlatformRoles(ctx, tx, u.ID)
		if err != nil {
			return ferr.Wrap(ferr.Internal, "loading platform roles", err)
		}

		access, refresh, err := h.mintUserTokens(u.ID, platformRoles)
		if err != nil {
			return ferr.Wrap(ferr.Internal, "minting tokens", err)
		}
		resp = access
		_ = refresh
		return nil
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	w.Header().Set("Set-Cookie", secrets.CookieString(resp.RefreshToken, time.Now().UTC().Add(h.deps.Expiries.RefreshUser)))
	httpserver.Respond(w, http.StatusOK, resp)
}

// mintUserTokens builds the access+refresh token pair for a user claim.
func (h *handlers) mintUserTokens(userID id.UserID, platformRoles []rbac.Role) (tokenResponse, string, error) {
	now := time.Now().UTC()

	c := claims.Claims{
		ResourceKind: claims.KindUser,
		ResourceID:   userID.String(),
		Access:       claims.RolesMany(platformRoles),
	}
	c.Expirable.IssuedAt = now
	c.Expirable.ExpiresAt = now.Add(h.deps.Expiries.Token)

	jwtClaims, err := claims.ToJWTClaims(c)
	if err != nil {
		return tokenResponse{}, "", err
	}
	access, err := h.deps.Signer.EncodeJWT(jwtClaims)
	if err != nil {
		return tokenResponse{}, "", err
	}

	refresh, err := h.deps.RefreshSigner.EncodeRefresh(secrets.RefreshClaims{
		ResourceType: string(claims.KindUser),
		ResourceID:   userID.String(),
		IssuedAt:     now.Unix(),
		ExpiresAt:    now.Add(h.deps.Expiries.RefreshUser).Unix(),
	})
	if err != nil {
		return tokenResponse{}, "", err
	}

	return tokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(h.deps.Expiries.Token.Seconds()),
	}, refresh, nil
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// handleRefresh rotates a refresh token into a new access token, re-deriving
// platform roles fresh rather than trusting anything cached in the refresh
// token itself.
func (h *handlers) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	rc, err := h.deps.RefreshSigner.DecodeRefresh(req.RefreshToken)
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.Unauthenticated, "invalid or expired refresh token"))
		return
	}
	if rc.ResourceType != string(claims.KindUser) {
		httpserver.RespondDomainError(w, ferr.New(ferr.Unauthenticated, "refresh token is not a user token"))
		return
	}

	userID, err := id.ParseUserID(rc.ResourceID)
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.Unauthenticated, "invalid refresh token subject"))
		return
	}

	var resp tokenResponse
	err = h.deps.Pool.RunRead(r.Context(), false, func(ctx context.Context, tx store.ReadTx) error {
		u, err := store.GetUser(ctx, tx, userID)
		if err != nil || !u.CanLogIn() {
			return ferr.New(ferr.Unauthenticated, "account no longer eligible to log in")
		}
		platformRoles, err := store.UserPlatformRoles(ctx, tx, userID)
		if err != nil {
			return ferr.Wrap(ferr.Internal, "loading platform roles", err)
		}
		access, _, err := h.mintUserTokens(userID, platformRoles)
		if err != nil {
			return ferr.Wrap(ferr.Internal, "minting tokens", err)
		}
		resp = access
		return nil
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

// handleLogout is a no-op beyond clearing the refresh cookie: access tokens
// are stateless JWTs with no server-side session to invalidate.
func (h *handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Set-Cookie", secrets.CookieString("", time.Unix(0, 0)))
	httpserver.Respond(w, http.StatusNoContent, nil)
}

type meResponse struct {
	ResourceKind string `json:"resource_kind"`
	ResourceID   string `json:"resource_id"`
}

// handleMe returns the identity carried by the caller's bearer token.
func (h *handlers) handleMe(w http.ResponseWriter, r *http.Request) {
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	var resp meResponse
	err := h.deps.Pool.RunRead(r.Context(), false, func(ctx context.Context, tx store.ReadTx) error {
		c, err := claims.ParseBearer(ctx, tx, h.deps.Signer, bearer)
		if err != nil {
			return err
		}
		if c.Expired(time.Now().UTC()) {
			return claims.ErrExpiredToken
		}
		resp = meResponse{ResourceKind: string(c.ResourceKind), ResourceID: c.ResourceID}
		return nil
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, resp)
}
