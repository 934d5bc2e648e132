package handler

import (
	"net/http"

	"github.com/stackhq/stack-api/internal/health"
	"github.com/stackhq/stack-api/internal/http/response"
)

type HealthHandler struct {
	readiness *health.Runner
}

func NewHealthHandler(readiness *health.Runner) *HealthHandler {
	return &HealthHandler{readiness: readiness}
}

func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.readiness == nil {
		response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready"})
		return
	}
	ready, checks := h.readiness.Ready(r.Context())
	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	response.JSON(w, r, code, map[string]any{"status": status, "checks": checks})
}
