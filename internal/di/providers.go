package di

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gorm.io/gorm"

	"github.com/stackhq/stack-api/internal/app"
	"github.com/stackhq/stack-api/internal/config"
	"github.com/stackhq/stack-api/internal/health"
	"github.com/stackhq/stack-api/internal/http/handler"
	"github.com/stackhq/stack-api/internal/http/middleware"
	"github.com/stackhq/stack-api/internal/http/reqctx"
	"github.com/stackhq/stack-api/internal/http/router"
	"github.com/stackhq/stack-api/internal/infra"
	"github.com/stackhq/stack-api/internal/jobs"
	"github.com/stackhq/stack-api/internal/observability"
	"github.com/stackhq/stack-api/internal/ratelimit"
	"github.com/stackhq/stack-api/internal/repository"
	"github.com/stackhq/stack-api/internal/security"
	"github.com/stackhq/stack-api/internal/service"
)

const (
	sessionKeyPrefix = "auth"
	cacheKeyPrefix   = "cache"
	blockCacheSize   = 10_000
)

func provideRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*observability.Runtime, error) {
	return observability.InitRuntime(ctx, cfg, logger, lp)
}

func provideDB(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*gorm.DB, error) {
	return infra.OpenPostgres(ctx, cfg, logger)
}

func provideRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) (redis.UniversalClient, error) {
	return infra.OpenRedis(ctx, cfg, logger)
}

func provideSessionStore(client redis.UniversalClient) service.SessionStore {
	return service.NewRedisSessionStore(client, sessionKeyPrefix)
}

func provideCookieCodec(cfg *config.Config) *security.CookieCodec {
	return security.NewCookieCodec(cfg.CookieSecret)
}

func provideSessionService(store service.SessionStore, codec *security.CookieCodec, cfg *config.Config) *service.SessionService {
	return service.NewSessionService(store, codec, cfg.AuthStoreTimeout)
}

func provideJSONCache(client redis.UniversalClient) service.JSONCache {
	return service.NewRedisJSONCache(client, cacheKeyPrefix)
}

func provideUserService(repo repository.UserRepository, cache service.JSONCache, cfg *config.Config) *service.UserService {
	return service.NewUserService(repo, cache, cfg.ProfileCacheTTL)
}

func provideRateLimiterBank(client redis.UniversalClient, cfg *config.Config) *ratelimit.Bank {
	return ratelimit.NewRedisBank(client, cfg.IsProduction(),
		ratelimit.WithTimeout(cfg.AuthStoreTimeout),
		ratelimit.WithBlockCache(blockCacheSize),
	)
}

func provideAuthenticator(rbac service.RBACAuthorizer, bank *ratelimit.Bank, cfg *config.Config) *middleware.Authenticator {
	return middleware.NewAuthenticator(rbac, bank, cfg.AdminAPIKey)
}

func provideJobRegistry(db *gorm.DB, logger *slog.Logger) (*jobs.Registry, error) {
	return jobs.NewDefaultRegistry(db, logger)
}

func provideReadiness(db *gorm.DB, client redis.UniversalClient, cfg *config.Config) *health.Runner {
	return health.NewRunner(cfg.AuthStoreTimeout, 0, health.DBChecker{DB: db}, health.RedisChecker{Client: client})
}

func provideRouter(
	cfg *config.Config,
	logger *slog.Logger,
	sessions reqctx.AuthProvider,
	authn *middleware.Authenticator,
	bank *ratelimit.Bank,
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	adminHandler *handler.AdminHandler,
	healthHandler *handler.HealthHandler,
) http.Handler {
	return router.NewRouter(router.Dependencies{
		Sessions:         sessions,
		Authenticator:    authn,
		Limiters:         bank,
		AuthHandler:      authHandler,
		UserHandler:      userHandler,
		AdminHandler:     adminHandler,
		HealthHandler:    healthHandler,
		AppEnv:           cfg.AppEnv,
		CORSOrigins:      cfg.CORSOrigins,
		RequestBodyLimit: cfg.RequestBodyLimit,
		EnableCompress:   true,
		EnableOTelHTTP:   cfg.OTELTracingEnabled || cfg.OTELMetricsEnabled,
		Logger:           logger,
	})
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func provideApp(cfg *config.Config, logger *slog.Logger, server *http.Server, runtime *observability.Runtime, db *gorm.DB, client redis.UniversalClient) *app.App {
	return app.New(cfg, logger, server, runtime, client.Close, func() error { return infra.CloseDB(db) })
}

func provideRunner(db *gorm.DB, registry *jobs.Registry, cfg *config.Config, logger *slog.Logger) *jobs.Runner {
	return jobs.NewRunner(db, registry, jobs.RunnerConfig{
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.WorkerPollInterval,
	}, logger)
}

func provideMaintainer(db *gorm.DB, registry *jobs.Registry, cfg *config.Config, logger *slog.Logger) *jobs.Maintainer {
	return jobs.NewMaintainer(db, registry, jobs.MaintainerConfig{
		Interval:              cfg.WorkerMaintenanceInterval,
		StuckAfter:            cfg.WorkerStuckAfter,
		LongRunningStuckAfter: cfg.WorkerLongRunningStuck,
	}, logger)
}

func provideWorker(cfg *config.Config, logger *slog.Logger, runner *jobs.Runner, maintainer *jobs.Maintainer, runtime *observability.Runtime, db *gorm.DB) *app.Worker {
	return app.NewWorker(cfg, logger, runner, maintainer, runtime, func() error { return infra.CloseDB(db) })
}
