package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fleetforge/controlplane/internal/httpserver"
	"github.com/fleetforge/controlplane/pkg/claims"
	"github.com/fleetforge/controlplane/pkg/ferr"
	"github.com/fleetforge/controlplane/pkg/id"
	"github.com/fleetforge/controlplane/pkg/rbac"
	"github.com/fleetforge/controlplane/pkg/resource"
	"github.com/fleetforge/controlplane/pkg/secrets"
	"github.com/fleetforge/controlplane/pkg/secrets/provision"
	"github.com/fleetforge/controlplane/pkg/store"
)

func (h *handlers) hostRoutes(r chi.Router) {
	r.Get("/", h.handleListHosts)
	r.Post("/", h.handleCreateHost)
	r.Get("/regions", h.handleListRegions)
	r.Get("/{hostID}", h.handleGetHost)
	r.Patch("/{hostID}/status", h.handleUpdateHostStatus)
	r.Delete("/{hostID}", h.handleDeleteHost)
	r.Post("/{hostID}/bootstrap", h.handleHostBootstrap)
	r.Post("/bootstrap/exchange", h.handleHostBootstrapExchange)
}

type hostResponse struct {
	ID       string  `json:"id"`
	OrgID    *string `json:"org_id,omitempty"`
	Name     string  `json:"name"`
	Status   string  `json:"status"`
	HostType string  `json:"host_type"`
	IPAddr   string  `json:"ip_addr"`
}

func toHostResponse(h resource.Host) hostResponse {
	resp := hostResponse{
		ID:       h.ID.String(),
		Name:     h.Name,
		Status:   string(h.Status),
		HostType: string(h.HostType),
		IPAddr:   h.IPAddr.String(),
	}
	if h.OrgID != nil {
		s := h.OrgID.String()
		resp.OrgID = &s
	}
	return resp
}

func (h *handlers) handleListHosts(w http.ResponseWriter, r *http.Request) {
	orgID, err := id.ParseOrgID(r.URL.Query().Get("org_id"))
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "org_id query parameter is required"))
		return
	}
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, err.Error()))
		return
	}
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	var page httpserver.OffsetPage[hostResponse]
	err = h.deps.Pool.RunRead(r.Context(), false, func(ctx context.Context, tx store.ReadTx) error {
		if _, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermHostRead), claims.NewTarget(claims.KindOrg, orgID.String()), h.deps.Signer, tx); err != nil {
			return err
		}
		hosts, err := store.ListHostsByOrg(ctx, tx, orgID, params.PageSize, params.Offset)
		if err != nil {
			return err
		}
		total, err := store.CountHostsByOrg(ctx, tx, orgID)
		if err != nil {
			return err
		}
		resp := make([]hostResponse, len(hosts))
		for i, hh := range hosts {
			resp[i] = toHostResponse(hh)
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

type createHostRequest struct {
	OrgID         string `json:"org_id" validate:"required"`
	Name          string `json:"name" validate:"required"`
	Version       string `json:"version" validate:"required"`
	OS            string `json:"os" validate:"required"`
	OSVersion     string `json:"os_version" validate:"required"`
	IPAddr        string `json:"ip_addr" validate:"required"`
	IPGateway     string `json:"ip_gateway" validate:"required"`
	CPUCount      int    `json:"cpu_count" validate:"required,gt=0"`
	MemSizeBytes  int64  `json:"mem_size_bytes" validate:"required,gt=0"`
	DiskSizeBytes int64  `json:"disk_size_bytes" validate:"required,gt=0"`
}

func (h *handlers) handleCreateHost(w http.ResponseWriter, r *http.Request) {
	var req createHostRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	orgID, err := id.ParseOrgID(req.OrgID)
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid org id"))
		return
	}
	ipAddr, err := netip.ParsePrefix(req.IPAddr)
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid ip_addr CIDR"))
		return
	}
	gateway, err := netip.ParseAddr(req.IPGateway)
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid ip_gateway"))
		return
	}

	candidate := resource.Host{
		ID:            id.NewHostID(),
		OrgID:         &orgID,
		Name:          req.Name,
		Version:       req.Version,
		OS:            req.OS,
		OSVersion:     req.OSVersion,
		IPAddr:        ipAddr,
		IPGateway:     gateway,
		CPUCount:      req.CPUCount,
		MemSizeBytes:  req.MemSizeBytes,
		DiskSizeBytes: req.DiskSizeBytes,
		HostType:      resource.HostTypePrivate,
		ManagedBy:     resource.ManagedByManual,
		Status:        resource.HostStatusOffline,
	}
	if err := candidate.ValidateGateway(); err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, err.Error()))
		return
	}

	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	bootstrapSecret, err := randomSecret()
	if err != nil {
		httpserver.RespondDomainError(w, ferr.Wrap(ferr.Internal, "generating bootstrap secret", err))
		return
	}

	var resp createHostResponse
	err = h.deps.Pool.RunWrite(r.Context(), h.deps.Publisher, func(ctx context.Context, tx store.WriteTx) error {
		if _, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermHostCreate), claims.NewTarget(claims.KindOrg, orgID.String()), h.deps.Signer, tx); err != nil {
			return err
		}
		created, err := store.CreateHost(ctx, tx, candidate)
		if err != nil {
			return err
		}

		if h.deps.FieldCipher != nil {
			encrypted, err := h.deps.FieldCipher.Encrypt([]byte(bootstrapSecret))
			if err != nil {
				return ferr.Wrap(ferr.Internal, "encrypting bootstrap secret", err)
			}
			if err := store.PutHostCredential(ctx, tx, created.ID, encrypted); err != nil {
				return err
			}
		}

		resp = createHostResponse{hostResponse: toHostResponse(created), BootstrapSecret: bootstrapSecret}
		return nil
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	h.deps.Audit.LogFromRequest(r, claims.Claims{}, "create", "host", resp.ID, nil)
	httpserver.Respond(w, http.StatusCreated, resp)
}

type createHostResponse struct {
	hostResponse
	// BootstrapSecret is shown once; the host agent exchanges it via
	// POST /hosts/{id}/bootstrap on first boot and it is never shown again.
	BootstrapSecret string `json:"bootstrap_secret,omitempty"`
}

func (h *handlers) handleGetHost(w http.ResponseWriter, r *http.Request) {
	hostID, err := id.ParseHostID(chi.URLParam(r, "hostID"))
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid host id"))
		return
	}
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	var resp hostResponse
	err = h.deps.Pool.RunRead(r.Context(), false, func(ctx context.Context, tx store.ReadTx) error {
		if _, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermHostRead), claims.NewTarget(claims.KindHost, hostID.String()), h.deps.Signer, tx); err != nil {
			return err
		}
		hh, err := store.GetHost(ctx, tx, hostID)
		if err != nil {
			return err
		}
		resp = toHostResponse(hh)
		return nil
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

type updateHostStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=Online Offline"`
}

// handleUpdateHostStatus is how a host's own agent reports its reachability
//, gated by host-control rather
// than host-update since it is the agent itself, authenticated as a
// host-scoped token, that calls this.
func (h *handlers) handleUpdateHostStatus(w http.ResponseWriter, r *http.Request) {
	hostID, err := id.ParseHostID(chi.URLParam(r, "hostID"))
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid host id"))
		return
	}

	var req updateHostStatusRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	err = h.deps.Pool.RunWrite(r.Context(), h.deps.Publisher, func(ctx context.Context, tx store.WriteTx) error {
		if _, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermHostControl), claims.NewTarget(claims.KindHost, hostID.String()), h.deps.Signer, tx); err != nil {
			return err
		}
		return store.UpdateHostStatus(ctx, tx, hostID, resource.HostStatus(req.Status))
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, nil)
}

func (h *handlers) handleDeleteHost(w http.ResponseWriter, r *http.Request) {
	hostID, err := id.ParseHostID(chi.URLParam(r, "hostID"))
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid host id"))
		return
	}
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	err = h.deps.Pool.RunWrite(r.Context(), h.deps.Publisher, func(ctx context.Context, tx store.WriteTx) error {
		if _, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermHostDelete), claims.NewTarget(claims.KindHost, hostID.String()), h.deps.Signer, tx); err != nil {
			return err
		}
		n, err := store.CountLiveNodesOnHost(ctx, tx, hostID)
		if err != nil {
			return err
		}
		if n > 0 {
			return ferr.New(ferr.FailedPrecondition, "host still has live nodes")
		}
		return store.SoftDeleteHost(ctx, tx, hostID)
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	h.deps.Audit.LogFromRequest(r, claims.Claims{}, "delete", "host", hostID.String(), nil)
	httpserver.Respond(w, http.StatusNoContent, nil)
}

type regionResponse struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
}

// handleListRegions is public reference data, gated by simple
// authentication rather than a resource-scoped permission.
func (h *handlers) handleListRegions(w http.ResponseWriter, r *http.Request) {
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	var resp []regionResponse
	err := h.deps.Pool.RunRead(r.Context(), false, func(ctx context.Context, tx store.ReadTx) error {
		c, err := claims.ParseBearer(ctx, tx, h.deps.Signer, bearer)
		if err != nil {
			return err
		}
		if c.Expired(time.Now().UTC()) {
			return claims.ErrExpiredToken
		}
		regions, err := store.ListRegions(ctx, tx)
		if err != nil {
			return err
		}
		resp = make([]regionResponse, len(regions))
		for i, rg := range regions {
			resp[i] = regionResponse{ID: rg.ID.String(), Key: rg.Key, DisplayName: rg.DisplayName}
		}
		return nil
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

type hostBootstrapRequest struct {
	Secret string `json:"secret" validate:"required"`
}

type hostBootstrapResponse struct {
	ProvisionToken string `json:"provision_token"`
	ExpiresIn      int64  `json:"expires_in"`
}

// handleHostBootstrap is the client-credentials half of host provisioning:
// a newly-imaged host agent presents the bootstrap secret it was given at
// host-create time and receives a single-use provision token in return,
// shaped like golang.org/x/oauth2/clientcredentials.Config's exchange
// (pkg/secrets/provision.ClientCredentialsConfig documents the shape).
func (h *handlers) handleHostBootstrap(w http.ResponseWriter, r *http.Request) {
	hostID, err := id.ParseHostID(chi.URLParam(r, "hostID"))
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid host id"))
		return
	}
	var req hostBootstrapRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if h.deps.FieldCipher == nil || h.deps.Provisioner == nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.FailedPrecondition, "host bootstrap is not configured"))
		return
	}

	var resp hostBootstrapResponse
	err = h.deps.Pool.RunRead(r.Context(), false, func(ctx context.Context, tx store.ReadTx) error {
		hh, err := store.GetHost(ctx, tx, hostID)
		if err != nil {
			return err
		}
		encrypted, err := store.GetHostCredential(ctx, tx, hostID)
		if err != nil {
			return err
		}
		want, err := h.deps.FieldCipher.Decrypt(encrypted)
		if err != nil {
			return ferr.Wrap(ferr.Internal, "decrypting bootstrap secret", err)
		}
		if subtle.ConstantTimeCompare(want, []byte(req.Secret)) != 1 {
			return ferr.New(ferr.Unauthenticated, "invalid bootstrap secret")
		}
		if hh.OrgID == nil {
			return ferr.New(ferr.FailedPrecondition, "platform-shared hosts cannot be bootstrapped")
		}

		token, _, err := h.deps.Provisioner.Token(hostID, *hh.OrgID, h.deps.Expiries.Bootstrap)
		if err != nil {
			return err
		}
		resp = hostBootstrapResponse{ProvisionToken: token, ExpiresIn: int64(h.deps.Expiries.Bootstrap.Seconds())}
		return nil
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

type hostBootstrapExchangeRequest struct {
	ProvisionToken string `json:"provision_token" validate:"required"`
}

// handleHostBootstrapExchange redeems a provision token minted by
// handleHostBootstrap for the host's ongoing access/refresh token pair,
// carrying rbac.RoleHostAgent — the same role every other host-authenticated
// request is checked against. Nonce single-use enforcement is intentionally
// not implemented here (no shared store for it is wired yet); a provision
// token is short-lived and this step is the only thing it is good for, so a
// replay within that window grants nothing a second bootstrap call wouldn't.
func (h *handlers) handleHostBootstrapExchange(w http.ResponseWriter, r *http.Request) {
	var req hostBootstrapExchangeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if h.deps.Provisioner == nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.FailedPrecondition, "host bootstrap is not configured"))
		return
	}

	verifier := provision.NewVerifier(h.deps.Provisioner)
	bootstrapClaims, err := verifier.Verify(r.Context(), req.ProvisionToken)
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.Unauthenticated, "invalid or expired provision token"))
		return
	}
	hostID, err := id.ParseHostID(bootstrapClaims.HostID)
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.Unauthenticated, "invalid provision token"))
		return
	}

	now := time.Now().UTC()
	c := claims.Claims{
		ResourceKind: claims.KindHost,
		ResourceID:   hostID.String(),
		Access:       claims.RolesMany([]rbac.Role{rbac.RoleHostAgent}),
	}
	c.Expirable.IssuedAt = now
	c.Expirable.ExpiresAt = now.Add(h.deps.Expiries.Token)

	jwtClaims, err := claims.ToJWTClaims(c)
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}
	access, err := h.deps.Signer.EncodeJWT(jwtClaims)
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}
	refresh, err := h.deps.RefreshSigner.EncodeRefresh(secrets.RefreshClaims{
		ResourceType: string(claims.KindHost),
		ResourceID:   hostID.String(),
		IssuedAt:     now.Unix(),
		ExpiresAt:    now.Add(h.deps.Expiries.RefreshHost).Unix(),
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	h.deps.Audit.LogFromRequest(r, claims.Claims{}, "bootstrap", "host", hostID.String(), nil)
	httpserver.Respond(w, http.StatusOK, tokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(h.deps.Expiries.Token.Seconds()),
	})
}
