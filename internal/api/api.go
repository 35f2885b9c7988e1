// Package api is the thin chi binding layer: decode DTO, validate, call
// pkg/claims.Authorize, call into pkg/lifecycle/pkg/scheduler/pkg/store,
// map the result (or its ferr.Kind) to a response.
//
// HTTP concerns (decode, respond, status mapping) stay in each family's
// own file, while the actual state transitions are one call into the
// already-built domain packages.
package api

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fleetforge/controlplane/internal/audit"
	"github.com/fleetforge/controlplane/pkg/billing"
	"github.com/fleetforge/controlplane/pkg/dnsprovider"
	"github.com/fleetforge/controlplane/pkg/emailsender"
	"github.com/fleetforge/controlplane/pkg/lifecycle"
	"github.com/fleetforge/controlplane/pkg/notify"
	"github.com/fleetforge/controlplane/pkg/objectstore"
	"github.com/fleetforge/controlplane/pkg/secrets"
	"github.com/fleetforge/controlplane/pkg/secrets/provision"
	"github.com/fleetforge/controlplane/pkg/store"
)

// Expiries carries every token-class TTL the auth handlers need.
type Expiries struct {
	Token         time.Duration
	RefreshUser   time.Duration
	RefreshHost   time.Duration
	Confirmation  time.Duration
	PasswordReset time.Duration
	Invitation    time.Duration
	Bootstrap     time.Duration
}

// Deps is every collaborator a handler family needs. One Deps is built once
// at startup and shared read-only across every request.
type Deps struct {
	Pool          *store.Pool
	Publisher     store.Publisher
	Signer        *secrets.Signer
	RefreshSigner *secrets.RefreshSigner
	FieldCipher   *secrets.FieldCipher
	Provisioner   *provision.Issuer
	Controller    *lifecycle.Controller
	Notifiers     *notify.Registry
	EmailSender   emailsender.Sender
	Billing       billing.Provider
	DNS           dnsprovider.Provider
	DNSZone       string
	ObjectStore   objectstore.Store
	Audit         *audit.Writer
	Logger        *slog.Logger
	Expiries      Expiries
}

// Mount wires every method family's routes onto r.
func Mount(r chi.Router, deps Deps) {
	h := &handlers{deps: deps}

	r.Route("/auth", h.authRoutes)
	r.Route("/users", h.userRoutes)
	r.Route("/orgs", h.orgRoutes)
	r.Route("/hosts", h.hostRoutes)
	r.Route("/nodes", h.nodeRoutes)
	r.Route("/commands", h.commandRoutes)
	r.Route("/api-keys", h.apiKeyRoutes)
	r.Route("/invitations", h.invitationRoutes)
	r.Route("/subscriptions", h.subscriptionRoutes)
}

// handlers holds Deps and is the receiver for every route registration
// method across the family files in this package.
type handlers struct {
	deps Deps
}
