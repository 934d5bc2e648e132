package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/stackhq/stack-api/internal/domain"
	"github.com/stackhq/stack-api/internal/observability"
	"github.com/stackhq/stack-api/internal/ratelimit"
	"github.com/stackhq/stack-api/internal/service"
)

const AdminAPIKeyParam = "apiKey"

type authOptions struct {
	adminAPIKey bool
}

type AuthOption func(*authOptions)

// AllowAdminAPIKey lets a request carrying the configured admin key in the
// apiKey query parameter skip authentication, permissions and rate limiting.
func AllowAdminAPIKey() AuthOption {
	return func(o *authOptions) { o.adminAPIKey = true }
}

type Authenticator struct {
	rbac        service.RBACAuthorizer
	bank        *ratelimit.Bank
	adminAPIKey string
}

func NewAuthenticator(rbac service.RBACAuthorizer, bank *ratelimit.Bank, adminAPIKey string) *Authenticator {
	return &Authenticator{rbac: rbac, bank: bank, adminAPIKey: adminAPIKey}
}

// Middleware resolves the session, checks permissions when required and then
// applies the platform limiter. Authenticated callers are limited by user id,
// everyone else by client IP.
//
// With required=false a benign resolution failure (no cookie, revoked or
// malformed cookie) continues anonymously; an internal failure still ends
// with 401.
func (a *Authenticator) Middleware(required bool, permissions []domain.Permission, opts ...AuthOption) func(http.Handler) http.Handler {
	var o authOptions
	for _, opt := range opts {
		opt(&o)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc, w, r := requestContext(w, r)

			if o.adminAPIKey && a.adminKeyMatches(r.URL.Query().Get(AdminAPIKeyParam)) {
				observability.RecordSecurityBypassEvent(r.Context(), "admin_api_key", r.URL.Path)
				rc.Logger().Warn("admin api key bypass", "path", r.URL.Path, "client_ip", rc.ClientIP)
				next.ServeHTTP(w, r)
				return
			}

			fail := func(err error) {
				rc.ClearAuthCookie()
				rc.RespondError("Access denied.", http.StatusUnauthorized, err)
			}

			res := rc.ResolveAuth()
			if required {
				if res.Err != nil {
					fail(res.Err)
					return
				}
				if len(permissions) > 0 && !a.rbac.Authorize(permissions, res.User.Permissions) {
					observability.RecordPermissionDecision(r.Context(), "deny")
					fail(domain.ErrNotEnoughPermissions)
					return
				}
				if len(permissions) > 0 {
					observability.RecordPermissionDecision(r.Context(), "allow")
				}
			} else if res.Err != nil {
				if _, ok := domain.AsBenign(res.Err); !ok {
					fail(res.Err)
					return
				}
			}

			if a.bank != nil && a.bank.Enforced {
				limiter, identity := a.bank.OpenPlatform, rc.ClientIP
				if rc.User != nil {
					limiter, identity = a.bank.Platform, rc.User.UserID
				}
				if !consume(w, r, rc, limiter, identity) {
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// An empty configured key disables the bypass.
func (a *Authenticator) adminKeyMatches(supplied string) bool {
	if a.adminAPIKey == "" || supplied == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(a.adminAPIKey)) == 1
}
