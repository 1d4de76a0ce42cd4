package api

import (
	"net/http"
	"time"

	"github.com/ayusman/facewatch/internal/app"
)

// StatsProvider reports pipeline counters.
type StatsProvider interface {
	Stats() app.Stats
}

// StatusHandler serves health and stats.
type StatusHandler struct {
	stats StatsProvider
	start time.Time
}

// NewStatusHandler creates a StatusHandler. stats may be nil, in which case
// only health is meaningful.
func NewStatusHandler(stats StatsProvider) *StatusHandler {
	return &StatusHandler{stats: stats, start: time.Now()}
}

// Health handles GET /api/health.
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(h.start).String(),
	}
	if h.stats != nil {
		response["pipeline_running"] = h.stats.Stats().Running
	}
	writeJSON(w, http.StatusOK, response)
}

// Stats handles GET /api/stats.
func (h *StatusHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeError(w, http.StatusServiceUnavailable, "Pipeline not configured")
		return
	}
	writeJSON(w, http.StatusOK, h.stats.Stats())
}
