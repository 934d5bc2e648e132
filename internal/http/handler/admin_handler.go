package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stackhq/stack-api/internal/domain"
	"github.com/stackhq/stack-api/internal/http/reqctx"
	"github.com/stackhq/stack-api/internal/observability"
	"github.com/stackhq/stack-api/internal/repository"
	"github.com/stackhq/stack-api/internal/service"
)

type AdminHandler struct {
	users    service.UserServiceInterface
	sessions service.SessionServiceInterface
	jobs     JobEnqueuer
}

func NewAdminHandler(users service.UserServiceInterface, sessions service.SessionServiceInterface, jobs JobEnqueuer) *AdminHandler {
	return &AdminHandler{users: users, sessions: sessions, jobs: jobs}
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	rc := reqctx.From(r.Context())
	q := r.URL.Query()
	page, err := h.users.List(r.Context(), repository.ParsePageRequest(q.Get("page"), q.Get("page_size")))
	if err != nil {
		rc.RespondError("Could not list users.", http.StatusInternalServerError, err)
		return
	}
	rc.RespondJSON(http.StatusOK, page)
}

func (h *AdminHandler) RevokeUserSessions(w http.ResponseWriter, r *http.Request) {
	rc := reqctx.From(r.Context())
	userID := chi.URLParam(r, "id")
	if _, err := h.users.GetProfile(r.Context(), userID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		rc.RespondError("Could not revoke sessions.", status, err)
		return
	}
	if err := h.sessions.RevokeAllSessions(r.Context(), userID); err != nil {
		rc.RespondError("Could not revoke sessions.", http.StatusInternalServerError, err)
		return
	}
	observability.Audit(r, "admin.sessions.revoked", "target_user_id", userID)
	rc.RespondMessage(http.StatusOK, "Sessions revoked.")
}

func (h *AdminHandler) EnqueueJob(w http.ResponseWriter, r *http.Request) {
	rc := reqctx.From(r.Context())
	var req enqueueJobRequest
	if err := bind(r, rc, &req); err != nil {
		rc.RespondError("Invalid request.", http.StatusBadRequest, err)
		return
	}
	if req.Payload == nil {
		req.Payload = map[string]any{}
	}
	delay := time.Duration(req.DelaySeconds * float64(time.Second))
	job, err := h.jobs.Enqueue(r.Context(), req.Name, req.Payload, delay)
	if err != nil {
		rc.RespondError("Could not enqueue job.", http.StatusBadRequest, err)
		return
	}
	observability.Audit(r, "admin.job.enqueued", "job", req.Name, "job_id", job.ID)
	rc.RespondJSON(http.StatusAccepted, job)
}
