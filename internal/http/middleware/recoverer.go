package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
)

// Recoverer converts handler panics into a masked 500. http.ErrAbortHandler is
// re-raised so the server can abort the connection.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc, w, r := requestContext(w, r)
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			rc.Logger().Error("panic recovered", "panic", fmt.Sprint(rec), "stack", string(debug.Stack()))
			rc.RespondError("Internal Server Error", http.StatusInternalServerError, fmt.Errorf("panic: %v", rec))
		}()
		next.ServeHTTP(w, r)
	})
}
