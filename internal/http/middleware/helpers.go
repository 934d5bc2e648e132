package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/stackhq/stack-api/internal/http/reqctx"
)

// Helpers installs the request context every later middleware and handler
// works through. It must run before anything that responds.
func Helpers(auth reqctx.AuthProvider, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww, ok := w.(chimiddleware.WrapResponseWriter)
			if !ok {
				ww = chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			}
			rc := reqctx.New(ww, r, auth, logger)
			rc.ClientIP = clientIP(r)
			next.ServeHTTP(ww, r.WithContext(reqctx.With(r.Context(), rc)))
		})
	}
}

// requestContext returns the request's context value, creating a detached one
// for handlers mounted without Helpers (tests, health checks).
func requestContext(w http.ResponseWriter, r *http.Request) (*reqctx.Context, http.ResponseWriter, *http.Request) {
	if rc := reqctx.From(r.Context()); rc != nil {
		return rc, w, r
	}
	ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
	rc := reqctx.New(ww, r, nil, nil)
	rc.ClientIP = clientIP(r)
	return rc, ww, r.WithContext(reqctx.With(r.Context(), rc))
}

func clientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
