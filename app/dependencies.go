package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/upb/identity-core/cache"
	"github.com/upb/identity-core/cognito"
	"github.com/upb/identity-core/config"
	"github.com/upb/identity-core/handlers"
	"github.com/upb/identity-core/internal/observability"
	"github.com/upb/identity-core/middleware"
	"github.com/upb/identity-core/repositories"
	"github.com/upb/identity-core/repositories/memory"
	"github.com/upb/identity-core/repositories/postgres"
	"github.com/upb/identity-core/services/auth"
	"github.com/upb/identity-core/services/authorization"
	"github.com/upb/identity-core/services/providers"
	"github.com/upb/identity-core/services/providers/fake"
	"github.com/upb/identity-core/services/users"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config   *config.Config
	DB       *postgres.DB
	Redis    *redis.Client
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  observability.Metrics

	RepoFactory  *postgres.RepositoryFactory
	Repositories *repositories.Repositories

	// Identity
	Providers *providers.Registry
	Provider  providers.AuthenticationProvider
	KeySet    *cognito.KeySet
	LinkCache *authorization.LinkCache

	// Services
	AuthService *auth.Service
	UserService *users.Service
	Engine      *authorization.Engine

	// HTTP
	AuthMiddleware *middleware.AuthMiddleware
	AuthHandler    *handlers.AuthHandler
	UserHandler    *handlers.UserHandler
	HealthHandler  *handlers.HealthHandler
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	deps.initMetrics(cfg)

	if err := deps.initStorage(ctx, cfg); err != nil {
		deps.closeQuietly()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := deps.initRedis(ctx, cfg); err != nil {
		deps.closeQuietly()
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	if err := deps.initProviders(cfg); err != nil {
		deps.closeQuietly()
		return nil, fmt.Errorf("failed to initialize identity provider: %w", err)
	}

	deps.initServices(cfg)
	deps.initHTTP(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.String("storage", cfg.Storage),
		zap.String("provider", deps.Provider.ProviderName()),
		zap.String("guest_policy", cfg.Auth.GuestPolicy))
	return deps, nil
}

func (d *Dependencies) initMetrics(cfg *config.Config) {
	if !cfg.Observability.MetricsEnabled {
		d.Metrics = observability.NoopMetrics{}
		return
	}
	d.Registry = prometheus.NewRegistry()
	d.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.Metrics = observability.NewPrometheusMetrics(d.Registry)
}

// initStorage opens the configured user and identity link store
func (d *Dependencies) initStorage(ctx context.Context, cfg *config.Config) error {
	if cfg.Storage == config.StorageMemory {
		d.Repositories = memory.NewStore().Repositories()
		d.Logger.Warn("using in-memory storage, data is lost on restart")
		return nil
	}

	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}
	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := d.DB.RunMigrations(); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	d.Repositories = factory.NewRepositories()
	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))
	return nil
}

func (d *Dependencies) initRedis(ctx context.Context, cfg *config.Config) error {
	if cfg.Redis.URL == "" {
		return nil
	}
	client, err := cache.NewRedisClient(ctx, cfg.Redis.URL)
	if err != nil {
		return err
	}
	d.Redis = client
	d.Logger.Info("redis key set cache enabled")
	return nil
}

// initProviders builds the configured authentication provider and registers it
func (d *Dependencies) initProviders(cfg *config.Config) error {
	registry := providers.NewRegistry()

	var provider providers.AuthenticationProvider
	switch cfg.Auth.Provider {
	case config.ProviderFake:
		p, err := fake.New(fake.Config{})
		if err != nil {
			return err
		}
		d.Logger.Warn("using fake identity provider, do not use in production")
		provider = p
	case config.ProviderCognito, "":
		provider = d.newCognitoProvider(cfg)
	default:
		return fmt.Errorf("unknown auth provider %q", cfg.Auth.Provider)
	}

	if err := registry.RegisterProvider(provider); err != nil {
		return err
	}
	if err := registry.SetDefault(provider.ProviderName()); err != nil {
		return err
	}

	d.Providers = registry
	d.Provider = provider
	return nil
}

func (d *Dependencies) newCognitoProvider(cfg *config.Config) *cognito.Provider {
	issuer := cfg.Cognito.Issuer
	if issuer == "" {
		issuer = cognito.Issuer(cfg.Cognito.Region, cfg.Cognito.UserPoolID)
	}

	opts := []cognito.KeySetOption{cognito.WithKeySetMetrics(d.Metrics)}
	if d.Redis != nil {
		opts = append(opts, cognito.WithKeySetStore(cache.NewRedisKeySetStore(d.Redis)))
	}
	d.KeySet = cognito.NewKeySet(cognito.KeySetConfig{
		URL:                cognito.JWKSURL(issuer),
		TTL:                cfg.JWKS.CacheTTL,
		MinRefreshInterval: cfg.JWKS.MinRefreshInterval,
		MaxStaleness:       cfg.JWKS.MaxStaleness,
		HTTPTimeout:        cfg.JWKS.HTTPTimeout,
	}, d.Logger, opts...)

	validator := cognito.NewValidator(cognito.ValidatorConfig{
		Issuer:   issuer,
		ClientID: cfg.Cognito.ClientID,
	}, d.KeySet, d.Logger, d.Metrics)

	d.Logger.Info("cognito provider configured",
		zap.String("issuer", issuer),
		zap.String("region", cfg.Cognito.Region))

	return cognito.NewProvider(cognito.ProviderConfig{
		Region:       cfg.Cognito.Region,
		ClientID:     cfg.Cognito.ClientID,
		ClientSecret: cfg.Cognito.ClientSecret,
		Endpoint:     cfg.Cognito.Endpoint,
		Timeout:      cfg.Cognito.Timeout,
	}, validator, d.Logger, d.Metrics)
}

func (d *Dependencies) initServices(cfg *config.Config) {
	d.LinkCache = authorization.NewLinkCache(cfg.Auth.LinkCacheSize, cfg.Auth.LinkCacheTTL)
	d.Engine = authorization.NewEngine(d.Provider, d.Repositories, d.LinkCache, d.Metrics, d.Logger)
	d.AuthService = auth.NewService(d.Provider, d.Repositories, d.Logger)
	d.UserService = users.NewService(d.Repositories, d.Logger)
}

func (d *Dependencies) initHTTP(cfg *config.Config) {
	policy := middleware.FailClosed
	if cfg.Auth.GuestPolicy == config.GuestPolicyFailOpen {
		policy = middleware.FailOpen
	}
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Engine, policy, handlers.ErrorWriter(d.Logger), d.Logger)
	d.AuthHandler = handlers.NewAuthHandler(d.AuthService, d.Logger)
	d.UserHandler = handlers.NewUserHandler(d.UserService, d.Logger)

	var db *sql.DB
	if d.DB != nil {
		db = d.DB.DB
	}
	var redisClient redis.UniversalClient
	if d.Redis != nil {
		redisClient = d.Redis
	}
	d.HealthHandler = handlers.NewHealthHandler(db, redisClient, d.Logger)
	if d.KeySet != nil {
		d.HealthHandler.WithSigningKeys(d.KeySet)
	}
}

func (d *Dependencies) closeQuietly() {
	if err := d.Close(context.Background()); err != nil {
		d.Logger.Warn("cleanup after failed initialization", zap.Error(err))
	}
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
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

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}
	return nil
}
