package api

import (
	"context"
	"errors"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"

	"github.com/fleetforge/controlplane/internal/httpserver"
	"github.com/fleetforge/controlplane/pkg/claims"
	"github.com/fleetforge/controlplane/pkg/commandqueue"
	"github.com/fleetforge/controlplane/pkg/ferr"
	"github.com/fleetforge/controlplane/pkg/id"
	"github.com/fleetforge/controlplane/pkg/lifecycle"
	"github.com/fleetforge/controlplane/pkg/rbac"
	"github.com/fleetforge/controlplane/pkg/resource"
	"github.com/fleetforge/controlplane/pkg/store"
)

func (h *handlers) nodeRoutes(r chi.Router) {
	r.Get("/", h.handleListNodes)
	r.Post("/", h.handleCreateNode)
	r.Get("/{nodeID}", h.handleGetNode)
	r.Delete("/{nodeID}", h.handleDeleteNode)
	r.Post("/{nodeID}/control", h.handleControlNode)
}

type nodeResponse struct {
	ID       string `json:"id"`
	OrgID    string `json:"org_id"`
	HostID   string `json:"host_id"`
	NodeType string `json:"node_type"`
	Name     string `json:"name"`
	Status   string `json:"status"`
}

func toNodeResponse(n resource.Node) nodeResponse {
	return nodeResponse{
		ID: n.ID.String(), OrgID: n.OrgID.String(), HostID: n.HostID.String(),
		NodeType: n.NodeType, Name: n.Name, Status: string(n.NodeStatus),
	}
}

func (h *handlers) handleListNodes(w http.ResponseWriter, r *http.Request) {
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

	var page httpserver.OffsetPage[nodeResponse]
	err = h.deps.Pool.RunRead(r.Context(), false, func(ctx context.Context, tx store.ReadTx) error {
		if _, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermNodeRead), claims.NewTarget(claims.KindOrg, orgID.String()), h.deps.Signer, tx); err != nil {
			return err
		}
		nodes, err := store.ListNodesByOrg(ctx, tx, orgID, params.PageSize, params.Offset)
		if err != nil {
			return err
		}
		total, err := store.CountNodesByOrg(ctx, tx, orgID)
		if err != nil {
			return err
		}
		resp := make([]nodeResponse, len(nodes))
		for i, n := range nodes {
			resp[i] = toNodeResponse(n)
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

type createNodeRequest struct {
	OrgID             string `json:"org_id" validate:"required"`
	ImageID           string `json:"image_id" validate:"required"`
	ProtocolVersionID string `json:"protocol_version_id" validate:"required"`
	NodeType          string `json:"node_type" validate:"required"`
	Name              string `json:"name" validate:"required"`
	IP                string `json:"ip" validate:"required"`
	IPGateway         string `json:"ip_gateway" validate:"required"`
	VCPUCount         int    `json:"vcpu_count" validate:"required,gt=0"`
	MemSizeBytes      int64  `json:"mem_size_bytes" validate:"required,gt=0"`
	DiskSizeBytes     int64  `json:"disk_size_bytes" validate:"required,gt=0"`
	Similarity        string `json:"similarity" validate:"omitempty,oneof=Cluster Spread"`
	Resource          string `json:"resource" validate:"omitempty,oneof=MostResources LeastResources"`
}

// handleCreateNode implements the node.create RPC: authorize against the
// owning org, then hand off to pkg/lifecycle for placement.
func (h *handlers) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	var req createNodeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	orgID, err := id.ParseOrgID(req.OrgID)
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid org id"))
		return
	}
	imageID, err := id.ParseImageID(req.ImageID)
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid image id"))
		return
	}
	pvID, err := id.ParseProtocolVersionID(req.ProtocolVersionID)
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid protocol version id"))
		return
	}
	ip, err := netip.ParsePrefix(req.IP)
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid ip CIDR"))
		return
	}
	gateway, err := netip.ParseAddr(req.IPGateway)
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid ip_gateway"))
		return
	}

	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	var resp nodeResponse
	err = h.deps.Pool.RunWrite(r.Context(), h.deps.Publisher, func(ctx context.Context, tx store.WriteTx) error {
		authz, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermNodeCreate), claims.NewTarget(claims.KindOrg, orgID.String()), h.deps.Signer, tx)
		if err != nil {
			return err
		}

		createdBy, err := creatorUserID(authz.Claims)
		if err != nil {
			return err
		}

		candidate := resource.Node{
			ID:                id.NewNodeID(),
			OrgID:             orgID,
			ImageID:           imageID,
			ProtocolVersionID: pvID,
			NodeType:          req.NodeType,
			Name:              req.Name,
			IP:                ip,
			IPGateway:         gateway,
			VCPUCount:         req.VCPUCount,
			MemSizeBytes:      req.MemSizeBytes,
			DiskSizeBytes:     req.DiskSizeBytes,
			SchedulerPolicy: resource.SchedulerPolicy{
				Similarity: resource.SimilarityMode(req.Similarity),
				Resource:   resource.ResourceMode(req.Resource),
			},
			CreatedBy: createdBy,
		}

		created, err := h.deps.Controller.CreateNode(ctx, tx, candidate)
		if err != nil {
			if errors.Is(err, lifecycle.ErrOutOfCapacity) {
				return ferr.New(ferr.ResourceExhausted, "no host satisfies this node's requirements")
			}
			if errors.Is(err, store.ErrIPNotAvailable) {
				return ferr.New(ferr.FailedPrecondition, "requested ip is not a free address on the selected host")
			}
			return ferr.Wrap(ferr.Internal, "placing node", err)
		}

		resp = toNodeResponse(created)
		return nil
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	if h.deps.DNSZone != "" {
		if err := h.deps.DNS.UpsertRecord(r.Context(), h.deps.DNSZone, resp.ID, ip.Addr()); err != nil {
			h.deps.Logger.Warn("dns record upsert failed", "node_id", resp.ID, "error", err)
		}
	}

	h.deps.Audit.LogFromRequest(r, claims.Claims{}, "create", "node", resp.ID, nil)
	httpserver.Respond(w, http.StatusCreated, resp)
}

// creatorUserID extracts the acting user id from a claim, falling back to
// the nil UUID for non-user claims (an org-scoped API key creating a node
// on a user's behalf records no individual creator).
func creatorUserID(c claims.Claims) (id.UserID, error) {
	if c.ResourceKind != claims.KindUser {
		return id.UserID{}, nil
	}
	return id.ParseUserID(c.ResourceID)
}

func (h *handlers) handleGetNode(w http.ResponseWriter, r *http.Request) {
	nodeID, err := id.ParseNodeID(chi.URLParam(r, "nodeID"))
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid node id"))
		return
	}
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	var resp nodeResponse
	err = h.deps.Pool.RunRead(r.Context(), false, func(ctx context.Context, tx store.ReadTx) error {
		if _, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermNodeRead), claims.NewTarget(claims.KindNode, nodeID.String()), h.deps.Signer, tx); err != nil {
			return err
		}
		n, err := store.GetNode(ctx, tx, nodeID)
		if err != nil {
			return err
		}
		resp = toNodeResponse(n)
		return nil
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *handlers) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	nodeID, err := id.ParseNodeID(chi.URLParam(r, "nodeID"))
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid node id"))
		return
	}
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	err = h.deps.Pool.RunWrite(r.Context(), h.deps.Publisher, func(ctx context.Context, tx store.WriteTx) error {
		if _, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermNodeDelete), claims.NewTarget(claims.KindNode, nodeID.String()), h.deps.Signer, tx); err != nil {
			return err
		}
		n, err := store.GetNode(ctx, tx, nodeID)
		if err != nil {
			return err
		}
		if _, err := commandqueue.DeletePending(ctx, tx, nodeID); err != nil {
			return err
		}
		if _, err := commandqueue.Enqueue(ctx, tx, commandqueue.NewCommand{
			HostID: n.HostID, NodeID: &nodeID, CmdType: resource.CommandDeleteNode,
		}); err != nil {
			return err
		}
		if err := store.ReleaseIP(ctx, tx, nodeID); err != nil {
			return err
		}
		return store.SoftDeleteNode(ctx, tx, nodeID)
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	if h.deps.DNSZone != "" {
		if err := h.deps.DNS.DeleteRecord(r.Context(), h.deps.DNSZone, nodeID.String()); err != nil {
			h.deps.Logger.Warn("dns record delete failed", "node_id", nodeID.String(), "error", err)
		}
	}

	h.deps.Audit.LogFromRequest(r, claims.Claims{}, "delete", "node", nodeID.String(), nil)
	httpserver.Respond(w, http.StatusNoContent, nil)
}

type controlNodeRequest struct {
	Action string `json:"action" validate:"required,oneof=start stop restart upgrade"`
}

var controlCommands = map[string]resource.CommandType{
	"start":   resource.CommandStartNode,
	"stop":    resource.CommandStopNode,
	"restart": resource.CommandRestartNode,
	"upgrade": resource.CommandUpgradeNode,
}

// handleControlNode enqueues a supervisor command for an existing node
//, gated by node-control rather than node-update since it does
// not mutate the node row itself.
func (h *handlers) handleControlNode(w http.ResponseWriter, r *http.Request) {
	nodeID, err := id.ParseNodeID(chi.URLParam(r, "nodeID"))
	if err != nil {
		httpserver.RespondDomainError(w, ferr.New(ferr.InvalidArgument, "invalid node id"))
		return
	}

	var req controlNodeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	cmdType := controlCommands[req.Action]
	bearer := claims.BearerFromHeader(r.Header.Get("Authorization"))

	err = h.deps.Pool.RunWrite(r.Context(), h.deps.Publisher, func(ctx context.Context, tx store.WriteTx) error {
		if _, err := claims.Authorize(ctx, bearer, claims.Perm(rbac.PermNodeControl), claims.NewTarget(claims.KindNode, nodeID.String()), h.deps.Signer, tx); err != nil {
			return err
		}
		n, err := store.GetNode(ctx, tx, nodeID)
		if err != nil {
			return err
		}
		if cmdType == resource.CommandUpgradeNode {
			if err := store.UpdateNodeStatus(ctx, tx, nodeID, resource.NodeStatusUpdatePending); err != nil {
				return err
			}
		}
		_, err = commandqueue.Enqueue(ctx, tx, commandqueue.NewCommand{HostID: n.HostID, NodeID: &nodeID, CmdType: cmdType})
		return err
	})
	if err != nil {
		httpserver.RespondDomainError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusAccepted, nil)
}
