package handler

import (
	"net/http"

	"github.com/alanyoungcy/depthbot/internal/engine"
)

// StatusSource supplies the running pipeline's snapshot.
type StatusSource interface {
	Snapshot() engine.Snapshot
}

// StatusHandler serves the pipeline counters, position and top-of-book.
type StatusHandler struct {
	source StatusSource
}

// NewStatusHandler creates a StatusHandler. source may be nil while the
// pipeline is being built.
func NewStatusHandler(source StatusSource) *StatusHandler {
	return &StatusHandler{source: source}
}

// GetStatus responds with the current engine snapshot.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	if h.source == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not running")
		return
	}
	writeJSON(w, http.StatusOK, h.source.Snapshot())
}
