package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/upb/campaign-gateway/auth"
	"github.com/upb/campaign-gateway/config"
	"github.com/upb/campaign-gateway/handlers"
	"github.com/upb/campaign-gateway/internal/observability"
	"github.com/upb/campaign-gateway/middleware"
	"github.com/upb/campaign-gateway/repositories"
	"github.com/upb/campaign-gateway/repositories/postgres"
	"github.com/upb/campaign-gateway/services/audit"
	"github.com/upb/campaign-gateway/services/background"
	"github.com/upb/campaign-gateway/services/capability"
	"github.com/upb/campaign-gateway/services/identity"
	"github.com/upb/campaign-gateway/services/ownership"
	"github.com/upb/campaign-gateway/services/ratelimit"
	"github.com/upb/campaign-gateway/services/tenantstatus"
	"github.com/upb/campaign-gateway/sessions"
	"github.com/upb/campaign-gateway/tenancy"
	"github.com/upb/campaign-gateway/tokens"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config          *config.Config
	DB              *postgres.DB
	Logger          *zap.Logger
	MetricsRegistry *prometheus.Registry
	Metrics         *observability.Metrics
	Dispatcher      *background.Dispatcher
	redis           *redis.Client
	stopCleanup     context.CancelFunc

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Users     repositories.UserRepository
	Tenants   repositories.TenantRepository
	Plans     repositories.PlanRepository
	Sessions  repositories.SessionRepository
	Campaigns repositories.CampaignRepository
	AuditLogs repositories.AuditRepository
	TxManager repositories.TransactionManager

	LoginAttempts repositories.LoginAttemptRepository

	// Pipeline
	Binder          *tenancy.Binder
	Sentinel        *tenancy.Sentinel
	SessionRegistry sessions.Registry
	Identities      *identity.Loader
	StatusGate      *tenantstatus.Gate
	Capabilities    *capability.Service
	Ownership       *ownership.Verifier
	AuditRecorder   *audit.Recorder
	Issuer          *tokens.Issuer
	Authenticator   *tokens.Authenticator
	Throttle        *ratelimit.Service // nil when disabled

	// HTTP
	AuthService      *auth.Service
	AuthHandler      *auth.Handler
	AuthMiddleware   *middleware.AuthMiddleware
	TenantMiddleware *middleware.TenantMiddleware
	HealthHandler    *handlers.HealthHandler
	CampaignHandler  *handlers.CampaignHandler
	AccountHandler   *handlers.AccountHandler
	AdminHandler     *handlers.AdminHandler
}

// NewDependencies opens the database and wires every component
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps, err := Wire(ctx, cfg, factory, logger)
	if err != nil {
		_ = factory.Close()
		return nil, err
	}
	return deps, nil
}

// Wire builds the application on an open repository factory
func Wire(ctx context.Context, cfg *config.Config, factory *postgres.RepositoryFactory, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		RepoFactory: factory,
		DB:          factory.GetDB(),
	}

	deps.initObservability()
	deps.initRepositories()

	if err := deps.initBackground(); err != nil {
		return nil, fmt.Errorf("failed to start background dispatcher: %w", err)
	}

	deps.initTenancy(cfg)

	if err := deps.initSessions(ctx, cfg); err != nil {
		_ = deps.Dispatcher.Stop(time.Second)
		return nil, fmt.Errorf("failed to initialize session registry: %w", err)
	}

	deps.initThrottle(cfg)

	if err := deps.initAuth(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	deps.initHandlers()

	logger.Info("all dependencies initialized successfully",
		zap.String("session_store", cfg.Sessions.Store),
		zap.Bool("query_audit", cfg.QueryAudit.Enabled))
	return deps, nil
}

func (d *Dependencies) initObservability() {
	d.MetricsRegistry = prometheus.NewRegistry()
	d.MetricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(d.DB.DB, "campaigns"),
	)
	d.Metrics = observability.NewMetrics(d.MetricsRegistry)
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.Users = repos.Users
	d.Tenants = repos.Tenants
	d.Plans = repos.Plans
	d.Sessions = repos.Sessions
	d.Campaigns = repos.Campaigns
	d.AuditLogs = repos.AuditLogs
	d.TxManager = d.RepoFactory.GetTransactionManager()
	d.LoginAttempts = repos.LoginAttempts

	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initBackground() error {
	d.Dispatcher = background.NewDispatcher(background.DefaultConfig(), d.Logger, d.Metrics)
	return d.Dispatcher.Start()
}

func (d *Dependencies) initTenancy(cfg *config.Config) {
	opts := []tenancy.BinderOption{
		tenancy.WithLeaseTimeout(cfg.Database.LeaseTimeout),
		tenancy.WithMetrics(d.Metrics),
	}
	if cfg.QueryAudit.Enabled {
		d.Sentinel = tenancy.NewSentinel(tenancy.SentinelConfig{
			Tables:          cfg.QueryAudit.Tables,
			IndirectColumns: cfg.QueryAudit.IndirectColumns,
			Window:          cfg.QueryAudit.Window,
			CacheSize:       cfg.QueryAudit.CacheSize,
			RouteFunc:       routePattern,
		}, d.Logger, d.Metrics)
		opts = append(opts, tenancy.WithSentinel(d.Sentinel))
	}
	d.Binder = tenancy.NewBinder(d.DB.DB, d.Logger, opts...)

	d.StatusGate = tenantstatus.NewGate(cfg.Tenancy.PaymentExemptRoutes, cfg.Tenancy.BillingRoute)
	d.Capabilities = capability.NewService(d.Plans, cfg.Tenancy.PlanCacheTTL, d.Logger)
	observability.RegisterCache(d.MetricsRegistry, "plan_features", func() (uint64, uint64, int) {
		st := d.Capabilities.CacheStats()
		return st.Hits, st.Misses, st.Size
	})
	d.Ownership = ownership.NewVerifier(ownership.DefaultTables...)
	d.Identities = identity.NewLoader(d.Users, d.Tenants, d.Dispatcher, d.Logger)
	d.AuditRecorder = audit.NewRecorder(d.AuditLogs, d.Binder, d.Dispatcher, d.Logger)
}

// routePattern labels audited statements with the matched chi route
func routePattern(ctx context.Context) string {
	if rctx := chi.RouteContext(ctx); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}

func (d *Dependencies) initSessions(ctx context.Context, cfg *config.Config) error {
	switch cfg.Sessions.Store {
	case "redis":
		client, err := sessions.OpenRedis(ctx, cfg.Sessions.RedisURL)
		if err != nil {
			return err
		}
		d.redis = client
		d.SessionRegistry = sessions.NewRedisRegistry(client, cfg.Sessions.TTL, d.Dispatcher, d.Logger)
	default:
		d.SessionRegistry = sessions.NewPostgresRegistry(d.Sessions, d.Dispatcher, d.Logger)
	}
	d.Logger.Info("session registry initialized", zap.String("store", cfg.Sessions.Store))
	return nil
}

// initThrottle keeps failed logins next to the sessions: Redis when it is
// configured, otherwise the login_attempts table with a cleanup worker.
func (d *Dependencies) initThrottle(cfg *config.Config) {
	if cfg.LoginThrottle.MaxAttempts <= 0 {
		d.Logger.Info("login throttle disabled")
		return
	}

	if d.redis != nil {
		d.Throttle = ratelimit.NewService(ratelimit.NewRedisStore(d.redis, cfg.LoginThrottle.Window), cfg.LoginThrottle, d.Logger)
		return
	}

	d.Throttle = ratelimit.NewService(d.LoginAttempts, cfg.LoginThrottle, d.Logger)
	if cfg.LoginThrottle.CleanupInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		d.stopCleanup = cancel
		go d.Throttle.StartCleanupWorker(ctx, cfg.LoginThrottle.CleanupInterval, cfg.LoginThrottle.Retention)
	}
}

func (d *Dependencies) initAuth(cfg *config.Config) error {
	tokenCfg := tokens.Config{
		Secret:     []byte(cfg.Auth.JWTSecret),
		Issuer:     cfg.Auth.Issuer,
		AccessTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTTL: cfg.Auth.RefreshTokenTTL,
	}
	issuer, err := tokens.NewIssuer(tokenCfg)
	if err != nil {
		return err
	}
	d.Issuer = issuer
	d.Authenticator = tokens.NewAuthenticator(tokenCfg)

	d.AuthMiddleware = middleware.NewAuthMiddleware(
		d.Authenticator,
		d.SessionRegistry,
		d.Identities,
		d.StatusGate,
		d.AuditRecorder,
		d.Metrics,
		d.Logger,
	)
	d.TenantMiddleware = middleware.NewTenantMiddleware(
		d.Binder,
		d.Capabilities,
		d.Ownership,
		d.AuditRecorder,
		d.Metrics,
		d.Logger,
	)

	var throttle auth.LoginThrottle
	if d.Throttle != nil {
		throttle = d.Throttle
	}
	d.AuthService = auth.NewService(auth.ServiceDeps{
		Users:      d.Users,
		AuditLogs:  d.AuditLogs,
		TxManager:  d.TxManager,
		Registry:   d.SessionRegistry,
		Issuer:     d.Issuer,
		Verifier:   d.Authenticator,
		Identities: d.Identities,
		Features:   d.Capabilities,
		Recorder:   d.AuditRecorder,
		Throttle:   throttle,
		Logger:     d.Logger,
	})
	d.AuthHandler = auth.NewHandler(d.AuthService, cfg.Server.TLS.Enabled || cfg.IsProduction(), d.Logger)
	d.Logger.Info("auth initialized")
	return nil
}

func (d *Dependencies) initHandlers() {
	checks := map[string]handlers.Checker{"database": d.DB, "background": d.Dispatcher}
	if d.redis != nil {
		checks["sessions"] = handlers.CheckerFunc(func(ctx context.Context) error {
			return d.redis.Ping(ctx).Err()
		})
	}
	d.HealthHandler = handlers.NewHealthHandler(checks, d.Logger)
	d.CampaignHandler = handlers.NewCampaignHandler(d.Campaigns, d.Logger)
	d.AccountHandler = handlers.NewAccountHandler(d.Plans, d.Users, d.AuditLogs, d.Capabilities, d.Logger)
	d.AdminHandler = handlers.NewAdminHandler(d.Tenants, d.AuditLogs, d.AuditRecorder, d.Logger)
}

// Close gracefully shuts down all dependencies. Pending background work is
// drained before the pool closes.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var err error

	if d.stopCleanup != nil {
		d.stopCleanup()
	}

	if d.Dispatcher != nil {
		timeout := 10 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if stopErr := d.Dispatcher.Stop(timeout); stopErr != nil {
			err = multierr.Append(err, fmt.Errorf("failed to stop background dispatcher: %w", stopErr))
		}
	}

	if d.redis != nil {
		if closeErr := d.redis.Close(); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("failed to close redis: %w", closeErr))
		}
	}

	if d.RepoFactory != nil {
		if closeErr := d.RepoFactory.Close(); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("failed to close database: %w", closeErr))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	_ = d.Logger.Sync()

	return err
}
