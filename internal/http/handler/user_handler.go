package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stackhq/stack-api/internal/domain"
	"github.com/stackhq/stack-api/internal/http/reqctx"
	"github.com/stackhq/stack-api/internal/service"
)

var errInvalidSessionID = domain.Benign("Invalid session id.")

type UserHandler struct {
	users    service.UserServiceInterface
	sessions service.SessionServiceInterface
}

func NewUserHandler(users service.UserServiceInterface, sessions service.SessionServiceInterface) *UserHandler {
	return &UserHandler{users: users, sessions: sessions}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	rc := reqctx.From(r.Context())
	current, ok := currentUser(rc)
	if !ok {
		return
	}
	user, err := h.users.GetProfile(r.Context(), current.UserID)
	if err != nil {
		rc.RespondError("Could not load profile.", http.StatusInternalServerError, err)
		return
	}
	rc.RespondJSON(http.StatusOK, user)
}

func (h *UserHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	rc := reqctx.From(r.Context())
	current, ok := currentUser(rc)
	if !ok {
		return
	}
	views, err := h.sessions.ListActiveSessions(r.Context(), current.UserID, current.IssuedAt)
	if err != nil {
		rc.RespondError("Could not list sessions.", http.StatusInternalServerError, err)
		return
	}
	rc.RespondJSON(http.StatusOK, map[string]any{"sessions": views})
}

// RevokeSession revokes one of the caller's sessions by issue time. Revoking
// the current session also clears the cookie.
func (h *UserHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	rc := reqctx.From(r.Context())
	current, ok := currentUser(rc)
	if !ok {
		return
	}
	iat, err := strconv.ParseInt(chi.URLParam(r, "iat"), 10, 64)
	if err != nil || iat <= 0 {
		rc.RespondError("", http.StatusBadRequest, errInvalidSessionID)
		return
	}
	if err := h.sessions.RevokeSession(r.Context(), current.UserID, iat); err != nil {
		rc.RespondError("Could not revoke session.", http.StatusInternalServerError, err)
		return
	}
	if iat == current.IssuedAt {
		rc.ClearAuthCookie()
	}
	rc.RespondMessage(http.StatusOK, "Session revoked.")
}
