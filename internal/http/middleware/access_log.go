package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/stackhq/stack-api/internal/config"
)

const redacted = "---REDACTED---"

var redactedBodyKeys = []string{"key", "password"}

// AccessLog emits one line per request once the handler chain returns, so
// the user, status and error record reflect the final state.
func AccessLog(appEnv string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc, w, r := requestContext(w, r)
			start := time.Now()
			next.ServeHTTP(w, r)

			user := "ANONYMOUS"
			if rc.User != nil {
				user = rc.User.UserID
			}
			attrs := []any{
				"user", user,
				"method", r.Method,
				"path", r.URL.Path,
				"status", rc.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"client_ip", rc.ClientIP,
			}
			if !rc.UTM.Empty() {
				attrs = append(attrs, "utm", rc.UTM)
			}
			if len(rc.Body) > 0 {
				attrs = append(attrs, "body", AnonymizeBody(rc.Body, appEnv))
			}
			if rc.Error != nil {
				attrs = append(attrs, slog.Group("error",
					"message", rc.Error.Message,
					"kind", string(rc.Error.Kind),
					"status", rc.Error.Status,
				))
			}
			rc.Logger().Info("http request", attrs...)
		})
	}
}

// AnonymizeBody returns a copy of body with credential fields masked. Bodies
// are logged verbatim in development.
func AnonymizeBody(body map[string]any, appEnv string) map[string]any {
	out := make(map[string]any, len(body))
	for k, v := range body {
		out[k] = v
	}
	if appEnv == config.EnvDevelopment {
		return out
	}
	for _, k := range redactedBodyKeys {
		if _, ok := out[k]; ok {
			out[k] = redacted
		}
	}
	return out
}
