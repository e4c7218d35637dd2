package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/upb/sso-gateway/auth"
	"github.com/upb/sso-gateway/authority"
	"github.com/upb/sso-gateway/config"
	"github.com/upb/sso-gateway/handlers"
	"github.com/upb/sso-gateway/idtoken"
	"github.com/upb/sso-gateway/internal/observability"
	"github.com/upb/sso-gateway/internal/policy"
	"github.com/upb/sso-gateway/middleware"
	"github.com/upb/sso-gateway/repositories"
	"github.com/upb/sso-gateway/repositories/postgres"
	"github.com/upb/sso-gateway/services"
	"github.com/upb/sso-gateway/services/audit"
	"github.com/upb/sso-gateway/session"
	"go.uber.org/zap"
)

// auditStopTimeout bounds how long shutdown waits for queued sign-in events
const auditStopTimeout = 5 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	AuditDB *postgres.DB // nil when auditing is disabled

	// Audit trail
	SignInEvents repositories.SignInEventRepository
	Audit        *audit.Service

	// Validation pipeline
	Resolver        *authority.Resolver
	Verifier        *idtoken.Verifier
	PolicyGate      *policy.Gate
	Minter          *session.Minter
	SessionVerifier *session.Verifier
	SSOService      *services.SSOService

	// HTTP
	SessionMiddleware *middleware.SessionMiddleware
	SSOHandler        *handlers.SSOHandler
	HealthHandler     *handlers.HealthHandler
}

// NewDependencies creates and wires up all application dependencies.
// The audit database is opened only when configured.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	var db *postgres.DB
	if cfg.AuditDatabase != nil {
		opened, err := postgres.NewDB(cfg.AuditDatabase, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize audit database: %w", err)
		}
		db = opened
	} else {
		logger.Warn("audit database not configured, sign-in auditing disabled")
	}

	deps, err := newDependencies(ctx, cfg, logger, db)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, err
	}
	return deps, nil
}

func newDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger, db *postgres.DB) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if db != nil {
		if err := deps.initAudit(ctx, db); err != nil {
			return nil, err
		}
	}

	deps.initPipeline()
	deps.initHTTP()

	for _, warning := range cfg.Warnings() {
		logger.Warn("configuration warning", zap.String("warning", warning))
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initAudit creates the sign-in event schema and starts the audit workers
func (d *Dependencies) initAudit(ctx context.Context, db *postgres.DB) error {
	if err := db.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	d.AuditDB = db
	d.SignInEvents = postgres.NewSignInEventRepository(db, d.Logger)
	d.Audit = audit.NewService(d.SignInEvents, d.Logger, audit.Config{
		BufferSize:  d.Config.Audit.BufferSize,
		WorkerCount: d.Config.Audit.WorkerCount,
	})
	if err := d.Audit.Start(); err != nil {
		return fmt.Errorf("failed to start audit service: %w", err)
	}
	return nil
}

// initPipeline builds the validation pipeline from configuration
func (d *Dependencies) initPipeline() {
	cfg := d.Config
	obs := observability.NewLogger(d.Logger)

	d.Resolver = authority.NewResolver(authority.Config{
		Instance:    cfg.Authority.Instance,
		TenantID:    cfg.Authority.TenantID,
		ClientID:    cfg.Authority.ClientID,
		CacheTTL:    cfg.Authority.MetadataTTL,
		HTTPTimeout: cfg.Authority.HTTPTimeout,
	}, d.Logger)
	d.Verifier = idtoken.NewVerifier(cfg.Authority.ClientID)

	d.PolicyGate = policy.NewGate(policy.Config{
		AllowedDomains:     cfg.Policy.AllowedDomains,
		ExpectedTenantID:   cfg.Policy.ExpectedTenantID,
		MaxTokenAge:        cfg.Policy.MaxTokenAge(),
		RequiredAuthMethod: cfg.Policy.RequiredAuthMethod,
	}, obs)

	sessionCfg := session.Config{
		SigningSecret:   cfg.Session.SigningSecret,
		ExpirationHours: cfg.Session.ExpirationHours,
		Issuer:          cfg.Session.Issuer,
	}
	d.Minter = session.NewMinter(sessionCfg)
	d.SessionVerifier = session.NewVerifier(sessionCfg)

	// a nil *audit.Service must not reach the interface
	var recorder services.EventRecorder
	if d.Audit != nil {
		recorder = d.Audit
	}
	d.SSOService = services.NewSSOService(d.Resolver, d.Verifier, d.PolicyGate, d.Minter, recorder, obs)
}

// initHTTP builds middleware and handlers
func (d *Dependencies) initHTTP() {
	d.SessionMiddleware = middleware.NewSessionMiddleware(d.SessionVerifier, d.Logger)
	d.SSOHandler = handlers.NewSSOHandler(d.SSOService, auth.NewCookies(d.Config.Server.TLS.Enabled), d.Logger)

	var db *sql.DB
	if d.AuditDB != nil {
		db = d.AuditDB.DB
	}
	d.HealthHandler = handlers.NewHealthHandler(db, d.Logger)
}

// RefreshAuthorityMetadata drops the cached issuer and signing keys so the
// next validation fetches them again, and returns how many entries it dropped.
func (d *Dependencies) RefreshAuthorityMetadata() int {
	dropped := d.Resolver.CachedEntries()
	d.Resolver.Invalidate()
	d.Logger.Info("authority metadata cache cleared",
		zap.String("metadata_url", d.Resolver.MetadataURL()),
		zap.Int("entries", dropped))
	return dropped
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// drain queued events before the pool goes away
	if d.Audit != nil {
		timeout := auditStopTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.Audit.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
		stats := d.Audit.GetStats()
		d.Logger.Info("audit service drained",
			zap.Int64("processed", stats.Processed),
			zap.Int64("failed", stats.Failed),
			zap.Int64("dropped", stats.Dropped))
	}

	if d.AuditDB != nil {
		if err := d.AuditDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close audit database: %w", err))
		} else {
			d.Logger.Info("audit database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
