package app

import (
	"context"
	"fmt"
	"time"

	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/auth"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/config"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/internal/observability"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/middleware"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/principal"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/repositories"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/repositories/postgres"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/services"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/services/audit"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/services/billing"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/services/provisioning"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/services/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const auditStopTimeout = 5 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config   *config.Config
	DB       *postgres.DB
	Redis    redis.UniversalClient
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Users      repositories.UserRepository
	AuthEvents repositories.AuthEventRepository
	TxManager  repositories.TransactionManager

	// Services
	Accounts     *services.AccountService
	Auth         *services.AuthService
	Audit        *audit.AuditService
	Provisioning *provisioning.Client
	Billing      *billing.Service // nil when Stripe is not configured
	LoginLimiter *ratelimit.RateLimitService

	// Session gateway
	SessionBackend principal.Backend
	Classifier     *middleware.Classifier
	Gateway        *middleware.SessionGateway
	AuthMiddleware *middleware.AuthMiddleware

	authHandler *auth.Handler
}

// AuthHandler returns the auth handler for route wiring (implements handlers.AuthDeps)
func (d *Dependencies) AuthHandler() *auth.Handler {
	return d.authHandler
}

// NewDependencies connects to PostgreSQL and Redis and wires everything on top.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initRedis(ctx, cfg); err != nil {
		_ = deps.RepoFactory.Close()
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	if err := deps.wire(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, err
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// NewDependenciesFromClients wires the application around connections the caller already opened.
func NewDependenciesFromClients(cfg *config.Config, db *postgres.DB, rdb redis.UniversalClient, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		DB:          db,
		Redis:       rdb,
		Logger:      logger,
		RepoFactory: postgres.NewRepositoryFactoryFromDB(db, logger),
	}

	if err := deps.wire(cfg); err != nil {
		// The connections belong to the caller; only stop what wire started.
		if deps.Audit != nil {
			_ = deps.Audit.Stop(auditStopTimeout)
		}
		return nil, err
	}
	return deps, nil
}

func (d *Dependencies) wire(cfg *config.Config) error {
	d.initRepositories()

	if err := d.initMetrics(); err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	if err := d.initServices(cfg); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := d.initSession(cfg); err != nil {
		return fmt.Errorf("failed to initialize session gateway: %w", err)
	}
	return nil
}

// initDatabase opens the PostgreSQL pool and checks it answers
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.HealthCheck(ctx); err != nil {
		_ = factory.Close()
		return fmt.Errorf("database ping failed: %w", err)
	}

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))

	return nil
}

// initRedis connects to the session provider
func (d *Dependencies) initRedis(ctx context.Context, cfg *config.Config) error {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	d.Redis = client
	d.Logger.Info("redis connection established", zap.String("addr", cfg.Redis.Addr))
	return nil
}

func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.Users = repos.Users
	d.AuthEvents = repos.AuthEvents
	d.TxManager = d.RepoFactory.GetTransactionManager()
}

// initMetrics uses a private registry so tests can build several dependency sets.
func (d *Dependencies) initMetrics() error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return err
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return err
	}

	metrics, err := observability.NewMetrics(reg)
	if err != nil {
		return err
	}

	d.Registry = reg
	d.Metrics = metrics
	return nil
}

func (d *Dependencies) initServices(cfg *config.Config) error {
	d.Accounts = services.NewAccountService(d.Users, d.Logger)

	d.Provisioning = provisioning.NewClient(cfg.Provisioning, d.Logger)
	if !d.Provisioning.Enabled() {
		d.Logger.Warn("n8n webhook not configured, provisioning disabled")
	}
	d.Auth = services.NewAuthService(d.Users, d.TxManager, d.Provisioning, d.Logger)
	d.LoginLimiter = ratelimit.NewRateLimitService(d.Redis, cfg.Redis.KeyPrefix, cfg.RateLimit, d.Logger)

	d.Audit = audit.NewAuditService(d.AuthEvents, d.Logger, audit.Config{
		BufferSize:  cfg.Audit.BufferSize,
		WorkerCount: cfg.Audit.WorkerCount,
	})
	if err := d.Audit.Start(); err != nil {
		return err
	}

	if cfg.BillingEnabled() {
		d.Billing = billing.NewService(billing.NewClient(cfg.Billing, d.Logger), d.Users, d.Audit, cfg.Billing, d.Logger)
		d.Logger.Info("billing enabled")
	} else {
		d.Logger.Warn("stripe not configured, billing endpoints disabled")
	}

	return nil
}

func (d *Dependencies) initSession(cfg *config.Config) error {
	backend, err := principal.NewBackend(cfg.Session, d.Redis, cfg.Redis.KeyPrefix, d.Accounts, d.Logger)
	if err != nil {
		return err
	}

	policy, err := middleware.LoadRoutePolicy(cfg.Routes.PolicyFile)
	if err != nil {
		return err
	}

	d.SessionBackend = backend
	d.Classifier = middleware.NewClassifier(policy)
	d.Gateway = middleware.NewSessionGateway(cfg.Session, backend, d.Classifier, d.Metrics, d.Logger)
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Logger)
	d.authHandler = auth.NewHandler(cfg, d.Auth, backend, d.Accounts, d.LoginLimiter, d.Audit, d.Metrics, d.Logger)

	d.Logger.Info("session gateway initialized",
		zap.String("backend", backend.Name()),
		zap.Bool("enforce_eligibility", cfg.Session.EnforceEligibility))
	return nil
}

// Close gracefully shuts down all dependencies. Calling it twice is safe.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Drain queued auth events before the database goes away
	if d.Audit != nil {
		if err := d.Audit.Stop(auditStopTimeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
		d.Audit = nil
	}

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		} else {
			d.Logger.Info("redis connection closed")
		}
		d.Redis = nil
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
		d.RepoFactory = nil
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
