package middleware

import (
	"net/http"
	"strings"

	"github.com/stackhq/stack-api/internal/http/reqctx"
)

func Attribution(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc, w, r := requestContext(w, r)
		rc.UTM = reqctx.UTM{
			Source:   strings.TrimSpace(r.Header.Get("X-Utm-Source")),
			Medium:   strings.TrimSpace(r.Header.Get("X-Utm-Medium")),
			Campaign: strings.TrimSpace(r.Header.Get("X-Utm-Campaign")),
			Term:     strings.TrimSpace(r.Header.Get("X-Utm-Term")),
			Content:  strings.TrimSpace(r.Header.Get("X-Utm-Content")),
		}
		next.ServeHTTP(w, r)
	})
}
