//go:build wireinject
// +build wireinject

package di

import (
	"context"
	"log/slog"

	"github.com/google/wire"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/stackhq/stack-api/internal/app"
	"github.com/stackhq/stack-api/internal/config"
	"github.com/stackhq/stack-api/internal/http/handler"
	"github.com/stackhq/stack-api/internal/http/reqctx"
	"github.com/stackhq/stack-api/internal/jobs"
	"github.com/stackhq/stack-api/internal/repository"
	"github.com/stackhq/stack-api/internal/service"
)

var storeSet = wire.NewSet(
	provideDB,
	provideRedis,
	provideRuntime,
)

var serviceSet = wire.NewSet(
	provideSessionStore,
	provideCookieCodec,
	provideSessionService,
	provideJSONCache,
	repository.NewUserRepository,
	provideUserService,
	service.NewRBACService,
	provideJobRegistry,
	jobs.NewQueue,
	wire.Bind(new(service.SessionServiceInterface), new(*service.SessionService)),
	wire.Bind(new(service.UserServiceInterface), new(*service.UserService)),
	wire.Bind(new(service.RBACAuthorizer), new(*service.RBACService)),
	wire.Bind(new(reqctx.AuthProvider), new(*service.SessionService)),
	wire.Bind(new(handler.JobEnqueuer), new(*jobs.Queue)),
)

var httpSet = wire.NewSet(
	provideRateLimiterBank,
	provideAuthenticator,
	provideReadiness,
	handler.NewAuthHandler,
	handler.NewUserHandler,
	handler.NewAdminHandler,
	handler.NewHealthHandler,
	provideRouter,
	provideHTTPServer,
	provideApp,
)

func InitializeApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*app.App, error) {
	wire.Build(storeSet, serviceSet, httpSet)
	return nil, nil
}

func InitializeWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*app.Worker, error) {
	wire.Build(
		provideDB,
		provideRuntime,
		provideJobRegistry,
		provideRunner,
		provideMaintainer,
		provideWorker,
	)
	return nil, nil
}
