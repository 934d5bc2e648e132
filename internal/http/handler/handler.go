// Package handler holds the thin HTTP controllers behind the middleware
// pipeline. Handlers read identity and body from the request context and
// answer through it.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/stackhq/stack-api/internal/domain"
	"github.com/stackhq/stack-api/internal/http/reqctx"
)

// JobEnqueuer schedules background work.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, name string, payload any, delay time.Duration) (*domain.Job, error)
}

var errMissingUser = domain.Internal("handler reached without an authenticated user", nil)

// currentUser returns the authenticated user or answers 401 itself.
func currentUser(rc *reqctx.Context) (*domain.SessionToken, bool) {
	if rc.User == nil {
		rc.RespondError("Access denied.", http.StatusUnauthorized, errMissingUser)
		return nil, false
	}
	return rc.User, true
}
