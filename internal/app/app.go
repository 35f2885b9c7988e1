// Package app wires every collaborator together and runs the daemon in one
// of two modes: "api" serves the HTTP control plane, "worker" runs the
// background reconciler that recovers stale unacknowledged commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/fleetforge/controlplane/internal/api"
	"github.com/fleetforge/controlplane/internal/audit"
	"github.com/fleetforge/controlplane/internal/config"
	"github.com/fleetforge/controlplane/internal/httpserver"
	"github.com/fleetforge/controlplane/internal/platform"
	"github.com/fleetforge/controlplane/internal/telemetry"
	"github.com/fleetforge/controlplane/pkg/billing"
	"github.com/fleetforge/controlplane/pkg/dnsprovider"
	"github.com/fleetforge/controlplane/pkg/emailsender"
	"github.com/fleetforge/controlplane/pkg/lifecycle"
	"github.com/fleetforge/controlplane/pkg/notify"
	"github.com/fleetforge/controlplane/pkg/objectstore"
	"github.com/fleetforge/controlplane/pkg/pubsub"
	"github.com/fleetforge/controlplane/pkg/reconciler"
	"github.com/fleetforge/controlplane/pkg/secrets"
	"github.com/fleetforge/controlplane/pkg/secrets/provision"
	"github.com/fleetforge/controlplane/pkg/store"
)

// Run is the main application entry point. It reads config, connects to
// infrastructure, and starts the mode named by cfg.Mode.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting controlplaned",
		"mode", cfg.Mode,
		"listen", cfg.ListenAddr(),
	)

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	pool := store.NewPool(db)
	bus := pubsub.NewBus(rdb)

	signer, refreshSigner, err := loadSigners(cfg)
	if err != nil {
		return err
	}

	var fieldCipher *secrets.FieldCipher
	if cfg.FieldCipherKey != "" {
		fieldCipher, err = secrets.NewFieldCipher([]byte(cfg.FieldCipherKey))
		if err != nil {
			return fmt.Errorf("building field cipher: %w", err)
		}
	}

	provisioner, err := provision.NewIssuer()
	if err != nil {
		return fmt.Errorf("building host provisioner: %w", err)
	}

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg, pool, bus, signer, refreshSigner, fieldCipher, provisioner)
	case "worker":
		return runWorker(ctx, cfg, logger, pool, bus)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// loadSigners builds the access-token and refresh-token signers from
// config. The two use independent secrets
// so a leaked access-token secret cannot be used to mint refresh tokens.
func loadSigners(cfg *config.Config) (*secrets.Signer, *secrets.RefreshSigner, error) {
	if cfg.JWTSecret == "" || cfg.RefreshSecret == "" {
		return nil, nil, errors.New("JWT_SECRET and REFRESH_SECRET must both be set")
	}

	signer, err := secrets.NewSigner([]byte(cfg.JWTSecret))
	if err != nil {
		return nil, nil, fmt.Errorf("building access token signer: %w", err)
	}

	refreshSigner, err := secrets.NewRefreshSigner([]byte(cfg.RefreshSecret))
	if err != nil {
		return nil, nil, fmt.Errorf("building refresh token signer: %w", err)
	}

	return signer, refreshSigner, nil
}

func runAPI(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db *pgxpool.Pool,
	rdb *redis.Client,
	metricsReg *prometheus.Registry,
	pool *store.Pool,
	bus *pubsub.Bus,
	signer *secrets.Signer,
	refreshSigner *secrets.RefreshSigner,
	fieldCipher *secrets.FieldCipher,
	provisioner *provision.Issuer,
) error {
	auditWriter := audit.NewWriter(db, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	notifiers := notify.NewRegistry()
	if cfg.SlackBotToken != "" {
		notifiers.Register(notify.NewSlackProvider(cfg.SlackBotToken, cfg.SlackAlertChannel, logger))
		logger.Info("slack notifications enabled", "channel", cfg.SlackAlertChannel)
	} else {
		logger.Info("slack notifications disabled (SLACK_BOT_TOKEN not set)")
	}

	controller := lifecycle.NewController(logger)

	emailSender := emailsender.NewLoggingSender(logger)
	billingProvider := billing.NewLoggingProvider(logger)
	dnsProvider := dnsprovider.NewLoggingProvider(logger)
	objStore := objectstore.NewMemoryStore(logger)

	expiries, err := loadExpiries(cfg)
	if err != nil {
		return err
	}

	srv := httpserver.NewServer(httpserver.Config{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}, logger, db, rdb, metricsReg)

	deps := api.Deps{
		Pool:          pool,
		Publisher:     bus,
		Signer:        signer,
		RefreshSigner: refreshSigner,
		FieldCipher:   fieldCipher,
		Provisioner:   provisioner,
		Controller:    controller,
		Notifiers:     notifiers,
		EmailSender:   emailSender,
		Billing:       billingProvider,
		DNS:           dnsProvider,
		DNSZone:       cfg.DNSZone,
		ObjectStore:   objStore,
		Audit:         auditWriter,
		Logger:        logger,
		Expiries:      expiries,
	}
	api.Mount(srv.APIRouter, deps)

	auditHandler := audit.NewHandler(pool, signer, logger)
	srv.APIRouter.Mount("/audit-log", auditHandler.Routes())

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, pool *store.Pool, bus *pubsub.Bus) error {
	logger.Info("worker started")

	controller := lifecycle.NewController(logger)

	staleAfter, err := time.ParseDuration(cfg.CommandStaleAfter)
	if err != nil {
		return fmt.Errorf("parsing COMMAND_STALE_AFTER: %w", err)
	}

	recon := reconciler.New(pool, bus, controller, logger, staleAfter)
	if err := recon.Start(ctx); err != nil {
		return fmt.Errorf("starting reconciler: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutting down worker")
	recon.Stop()
	return nil
}

// api.Expiries carries every token-class TTL the auth handlers need. It is
// built here from the config strings so internal/api never parses
// durations itself.
func loadExpiries(cfg *config.Config) (api.Expiries, error) {
	var (
		e   api.Expiries
		err error
	)

	if e.Token, err = time.ParseDuration(cfg.TokenExpiry); err != nil {
		return e, fmt.Errorf("parsing TOKEN_EXPIRY: %w", err)
	}
	if e.RefreshUser, err = time.ParseDuration(cfg.RefreshUserExpiry); err != nil {
		return e, fmt.Errorf("parsing REFRESH_USER_EXPIRY: %w", err)
	}
	if e.RefreshHost, err = time.ParseDuration(cfg.RefreshHostExpiry); err != nil {
		return e, fmt.Errorf("parsing REFRESH_HOST_EXPIRY: %w", err)
	}
	if e.Confirmation, err = time.ParseDuration(cfg.ConfirmationExpiry); err != nil {
		return e, fmt.Errorf("parsing CONFIRMATION_EXPIRY: %w", err)
	}
	if e.PasswordReset, err = time.ParseDuration(cfg.PasswordResetExpiry); err != nil {
		return e, fmt.Errorf("parsing PASSWORD_RESET_EXPIRY: %w", err)
	}
	if e.Invitation, err = time.ParseDuration(cfg.InvitationExpiry); err != nil {
		return e, fmt.Errorf("parsing INVITATION_EXPIRY: %w", err)
	}
	if e.Bootstrap, err = time.ParseDuration(cfg.BootstrapTokenTTL); err != nil {
		return e, fmt.Errorf("parsing BOOTSTRAP_TOKEN_TTL: %w", err)
	}

	return e, nil
}
