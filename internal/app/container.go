// Package app wires the platform's dependencies into a single container.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/iahome/platform/internal/access"
	activationApp "github.com/iahome/platform/internal/activation/application"
	activationDomain "github.com/iahome/platform/internal/activation/domain"
	activationCache "github.com/iahome/platform/internal/activation/infrastructure/cache"
	activationPersistence "github.com/iahome/platform/internal/activation/infrastructure/persistence"
	catalogDomain "github.com/iahome/platform/internal/catalog/domain"
	catalogPersistence "github.com/iahome/platform/internal/catalog/infrastructure/persistence"
	"github.com/iahome/platform/internal/identity/application/signin"
	identityDomain "github.com/iahome/platform/internal/identity/domain"
	identityPersistence "github.com/iahome/platform/internal/identity/infrastructure/persistence"
	"github.com/iahome/platform/internal/shared/infrastructure/migrations"
	"github.com/iahome/platform/internal/shared/infrastructure/outbox"
	"github.com/iahome/platform/pkg/config"
	"github.com/iahome/platform/pkg/observability"
)

// Container holds all application dependencies.
type Container struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics observability.Metrics
	Health  *observability.HealthRegistry

	// Exactly one of DB and SQLDB is set. SQLDB is the local SQLite mode
	// used when DATABASE_URL points at a file instead of PostgreSQL.
	DB          *pgxpool.Pool
	SQLDB       *sql.DB
	RedisClient *redis.Client

	ModuleRepo     catalogDomain.ModuleRepository
	UserRepo       identityDomain.UserRepository
	OAuthTokenRepo identityDomain.OAuthTokenRepository
	OutboxRepo     outbox.Repository

	activationRecords activationDomain.Repository
	activationStore   activationDomain.Store

	ActivationService *activationApp.Service
	AccessIssuer      *access.Issuer

	// SignInService is nil when OAuth is not configured.
	SignInService *signin.Service
}

// LocalMode reports whether the container runs on embedded SQLite. In local
// mode there is no separate worker process, so serve relays the outbox
// in-process.
func (c *Container) LocalMode() bool {
	return c.SQLDB != nil
}

func isSQLiteURL(url string) bool {
	switch {
	case strings.HasPrefix(url, "sqlite:"):
		return true
	case url == ":memory:":
		return true
	case strings.HasSuffix(url, ".db"), strings.HasSuffix(url, ".sqlite"):
		return true
	}
	return false
}

func sqlitePath(url string) string {
	path := strings.TrimPrefix(url, "sqlite://")
	return strings.TrimPrefix(path, "sqlite:")
}

// NewContainer creates and wires all dependencies.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewInMemoryMetrics(),
		Health:  observability.NewHealthRegistry(),
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if isSQLiteURL(cfg.DatabaseURL) {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("SQLite is not supported in production, set DATABASE_URL to PostgreSQL")
		}
		if err := c.initSQLite(pingCtx, cfg.DatabaseURL); err != nil {
			return nil, err
		}
	} else {
		if err := c.initPostgres(pingCtx, cfg.DatabaseURL); err != nil {
			return nil, err
		}
	}

	// Redis is optional. Without it activation checks go straight to the
	// database.
	var cache activationApp.Cache
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Warn("invalid redis URL, activation cache disabled", "error", err)
		} else {
			client := redis.NewClient(opt)
			if err := client.Ping(pingCtx).Err(); err != nil {
				logger.Warn("redis not available, activation cache disabled", "error", err)
				_ = client.Close()
			} else {
				c.RedisClient = client
				cache = activationCache.NewRedisActivationCache(client, cfg.ActivationCacheTTL)
				c.Health.Register("redis", observability.PingChecker(func(ctx context.Context) error {
					return client.Ping(ctx).Err()
				}))
			}
		}
	}

	c.ActivationService = activationApp.NewService(
		c.ModuleRepo, c.activationRecords, c.activationStore, cache, logger, c.Metrics)

	secret := cfg.AccessTokenSecret
	if secret == "" {
		// Load already rejects an empty secret in production.
		secret = "iahome-dev-secret"
		logger.Warn("using development access token secret")
	}
	issuer, err := access.NewIssuer([]byte(secret), cfg.AccessTokenTTL, cfg.ModuleDomain, c.ModuleRepo, c.ActivationService)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("creating access issuer: %w", err)
	}
	c.AccessIssuer = issuer

	if cfg.SignInEnabled() {
		signInService, err := signin.NewService(signin.Config{
			Provider:     cfg.OAuthProvider,
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			AuthURL:      cfg.OAuthAuthURL,
			TokenURL:     cfg.OAuthTokenURL,
			RedirectURL:  cfg.OAuthRedirectURL,
			Scopes:       signin.ScopesFromEnv(cfg.OAuthScopes),
		}, c.UserRepo, c.OAuthTokenRepo, signin.UserInfoFetcher(cfg.OAuthUserInfoURL, nil), logger)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("creating sign-in service: %w", err)
		}
		c.SignInService = signInService
	} else {
		logger.Info("OAuth sign-in disabled, provider not configured")
	}

	logger.Info("container initialized", "local_mode", c.LocalMode(), "cache_enabled", cache != nil)
	return c, nil
}

func (c *Container) initPostgres(ctx context.Context, url string) error {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return fmt.Errorf("creating database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("pinging database: %w", err)
	}
	c.DB = pool
	c.Health.Register("database", observability.PingChecker(pool.Ping))

	c.ModuleRepo = catalogPersistence.NewPostgresModuleRepository(pool)
	c.UserRepo = identityPersistence.NewPostgresUserRepository(pool)
	c.OAuthTokenRepo = identityPersistence.NewPostgresOAuthTokenRepository(pool)
	c.OutboxRepo = outbox.NewPostgresRepository(pool)

	activationRepo := activationPersistence.NewPostgresActivationRepository(pool)
	c.activationRecords = activationRepo
	c.activationStore = activationRepo
	return nil
}

func (c *Container) initSQLite(ctx context.Context, url string) error {
	path := sqlitePath(url)
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("opening sqlite database: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("pinging sqlite database: %w", err)
	}
	if err := migrations.RunSQLiteMigrations(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("applying sqlite migrations: %w", err)
	}
	c.SQLDB = sqlDB
	c.Health.Register("database", observability.PingChecker(sqlDB.PingContext))

	c.ModuleRepo = catalogPersistence.NewSQLiteModuleRepository(sqlDB)
	c.UserRepo = identityPersistence.NewSQLiteUserRepository(sqlDB)
	c.OAuthTokenRepo = identityPersistence.NewSQLiteOAuthTokenRepository(sqlDB)
	c.OutboxRepo = outbox.NewSQLiteRepository(sqlDB)

	activationRepo := activationPersistence.NewSQLiteActivationRepository(sqlDB)
	c.activationRecords = activationRepo
	c.activationStore = activationRepo

	c.Logger.Info("running in local mode", "sqlite_path", path)
	return nil
}

// Close releases all container resources.
func (c *Container) Close() {
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("closing redis client", "error", err)
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
	if c.SQLDB != nil {
		if err := c.SQLDB.Close(); err != nil {
			c.Logger.Warn("closing sqlite database", "error", err)
		}
	}
}
