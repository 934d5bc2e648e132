package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/stackhq/stack-api/internal/observability"
)

const RequestIDHeader = "X-Request-Id"

// RequestID assigns a fresh id to every request; client supplied ids are not
// trusted.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc, w, r := requestContext(w, r)
		id := uuid.NewString()
		rc.RequestID = id
		rc.SetLogger(rc.Logger().With("request_id", id))
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(observability.WithRequestID(r.Context(), id)))
	})
}
