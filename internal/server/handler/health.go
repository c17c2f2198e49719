package handler

import (
	"net/http"
	"time"
)

// HealthHandler serves the liveness check.
type HealthHandler struct {
	startedAt time.Time
	now       func() time.Time
}

// NewHealthHandler creates a HealthHandler that reports uptime from now.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{startedAt: time.Now(), now: time.Now}
}

// HealthCheck responds with status ok and the process uptime.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	now := h.now()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"timestamp":      now.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(now.Sub(h.startedAt).Seconds()),
	})
}
