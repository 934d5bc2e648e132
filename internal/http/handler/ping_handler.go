package handler

import (
	"net/http"

	"github.com/stackhq/stack-api/internal/http/reqctx"
)

// Ping answers on an optionally authenticated route and echoes who asked.
func Ping(w http.ResponseWriter, r *http.Request) {
	rc := reqctx.From(r.Context())
	var userID *string
	if rc.User != nil {
		userID = &rc.User.UserID
	}
	rc.RespondJSON(http.StatusOK, map[string]any{"message": "pong", "userId": userID})
}
