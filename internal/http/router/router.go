package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/stackhq/stack-api/internal/domain"
	"github.com/stackhq/stack-api/internal/http/handler"
	"github.com/stackhq/stack-api/internal/http/middleware"
	"github.com/stackhq/stack-api/internal/http/reqctx"
	"github.com/stackhq/stack-api/internal/http/response"
	"github.com/stackhq/stack-api/internal/ratelimit"
)

type Dependencies struct {
	Sessions      reqctx.AuthProvider
	Authenticator *middleware.Authenticator
	Limiters      *ratelimit.Bank

	AuthHandler   *handler.AuthHandler
	UserHandler   *handler.UserHandler
	AdminHandler  *handler.AdminHandler
	HealthHandler *handler.HealthHandler

	AppEnv           string
	CORSOrigins      []string
	RequestBodyLimit int64
	EnableCompress   bool
	EnableOTelHTTP   bool
	Logger           *slog.Logger
}

var adminOnly = []domain.Permission{domain.PermissionAdmin}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	// Compress must wrap the writer before Helpers captures it.
	if dep.EnableCompress {
		r.Use(chimiddleware.Compress(5))
	}
	r.Use(middleware.Helpers(dep.Sessions, dep.Logger))
	r.Use(middleware.AccessLog(dep.AppEnv))
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyParser(dep.RequestBodyLimit))
	r.Use(middleware.Attribution)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, http.StatusNotFound, "Not Found")
	})

	r.Get("/health/live", dep.HealthHandler.Live)
	r.Get("/health/ready", dep.HealthHandler.Ready)

	bank := dep.Limiters
	authn := dep.Authenticator
	required := authn.Middleware(true, nil)
	optional := authn.Middleware(false, nil)
	csrf := middleware.CSRF

	r.Route("/auth", func(r chi.Router) {
		r.With(middleware.RateLimit(bank.Authenticate, bank.Enforced, middleware.ClientIPKey)).
			Post("/login", dep.AuthHandler.Login)
		r.With(required, csrf).Post("/logout", dep.AuthHandler.Logout)
		r.With(required, csrf).Post("/logout-all", dep.AuthHandler.LogoutAll)
		forgot := middleware.RateLimit(bank.ForgotPassword, bank.Enforced, middleware.EmailParamKey("email"))
		r.With(forgot).Post("/forgot-password/{email}", dep.AuthHandler.ForgotPassword)
		// An empty email segment still reaches the limiter so it can answer 400.
		r.With(forgot).Post("/forgot-password/", dep.AuthHandler.ForgotPassword)
		r.With(middleware.RateLimit(bank.ResetPassword, bank.Enforced, middleware.ClientIPKey)).
			Post("/reset-password", dep.AuthHandler.ResetPassword)
	})

	r.Route("/me", func(r chi.Router) {
		r.Use(required)
		r.Get("/", dep.UserHandler.Me)
		r.Get("/sessions", dep.UserHandler.Sessions)
		r.With(csrf).Delete("/sessions/{iat}", dep.UserHandler.RevokeSession)
	})

	r.Route("/admin", func(r chi.Router) {
		admin := authn.Middleware(true, adminOnly)
		r.With(authn.Middleware(true, adminOnly, middleware.AllowAdminAPIKey())).Get("/users", dep.AdminHandler.ListUsers)
		r.With(admin, csrf).Post("/users/{id}/revoke-sessions", dep.AdminHandler.RevokeUserSessions)
		r.With(admin, csrf).Post("/jobs", dep.AdminHandler.EnqueueJob)
	})

	r.With(optional).Get("/public/ping", handler.Ping)

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
