package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/stackhq/stack-api/internal/domain"
	"github.com/stackhq/stack-api/internal/observability"
	"github.com/stackhq/stack-api/internal/security"
)

var errCSRFRejected = domain.Benign("Access denied. Invalid CSRF token.")

// CSRF is the double-submit check for cookie-authenticated writes: the
// X-CSRF-Token header must equal the csrf_token cookie issued with the
// session. Safe methods pass through.
func CSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc, w, r := requestContext(w, r)
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		cookie := security.GetCookie(r, security.CSRFCookieName)
		header := strings.TrimSpace(r.Header.Get(security.CSRFHeaderName))
		var reason string
		switch {
		case cookie == "":
			reason = "missing_cookie"
		case header == "":
			reason = "missing_header"
		case subtle.ConstantTimeCompare([]byte(cookie), []byte(header)) != 1:
			reason = "mismatch"
		}
		if reason != "" {
			observability.RecordCSRFRejection(r.Context(), csrfPathGroup(r.URL.Path), reason)
			rc.RespondError("", http.StatusForbidden, errCSRFRejected)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// csrfPathGroup keeps the rejection metric's cardinality to the first path
// segment.
func csrfPathGroup(path string) string {
	first, _, _ := strings.Cut(strings.Trim(path, "/"), "/")
	if first == "" {
		return "root"
	}
	return first
}
