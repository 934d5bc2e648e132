package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stackhq/stack-api/internal/domain"
	"github.com/stackhq/stack-api/internal/http/reqctx"
	"github.com/stackhq/stack-api/internal/observability"
	"github.com/stackhq/stack-api/internal/ratelimit"
)

// KeyFunc extracts the limiter identity. A returned error is answered with
// 400 whether or not limiting is enforced.
type KeyFunc func(r *http.Request) (string, error)

func ClientIPKey(r *http.Request) (string, error) {
	if rc := reqctx.From(r.Context()); rc != nil && rc.ClientIP != "" {
		return rc.ClientIP, nil
	}
	return clientIP(r), nil
}

func EmailParamKey(param string) KeyFunc {
	return func(r *http.Request) (string, error) {
		email := strings.TrimSpace(chi.URLParam(r, param))
		if email == "" {
			return "", domain.ErrEmailNotProvided
		}
		return strings.ToLower(email), nil
	}
}

// RateLimit guards a route with one limiter. Outside production the limiter
// is never consulted.
func RateLimit(limiter ratelimit.Limiter, enforced bool, key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc, w, r := requestContext(w, r)
			identity, err := key(r)
			if err != nil {
				rc.RespondError("Bad Request", http.StatusBadRequest, err)
				return
			}
			if !enforced {
				next.ServeHTTP(w, r)
				return
			}
			if !consume(w, r, rc, limiter, identity) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// consume applies one limiter decision and reports whether the request may
// proceed. A store outage admits the request.
func consume(w http.ResponseWriter, r *http.Request, rc *reqctx.Context, limiter ratelimit.Limiter, identity string) bool {
	policy := limiter.Policy()
	res := limiter.Consume(r.Context(), identity)
	observability.RecordRateLimitDecision(r.Context(), policy.Name, res.Outcome.String())

	switch res.Outcome {
	case ratelimit.Admitted:
		writeRateLimitHeaders(w.Header(), res.Limit, res.Remaining)
		return true
	case ratelimit.Throttled:
		writeRateLimitHeaders(w.Header(), res.Limit, 0)
		w.Header().Set("Retry-After", retryAfterHeader(res.RetryAfter))
		msg := ratelimit.RetryMessage(res.RetryAfter)
		rc.RespondError(msg, http.StatusTooManyRequests, domain.Benign(msg))
		return false
	default:
		rc.Logger().Warn("rate limiter store unavailable, allowing request",
			"limiter", policy.Name,
			"error", res.Err,
		)
		return true
	}
}

func retryAfterHeader(d time.Duration) string {
	seconds := int((d + time.Second - 1) / time.Second)
	if seconds <= 0 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

func writeRateLimitHeaders(h http.Header, limit, remaining int) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(max(limit, 0)))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))
}
