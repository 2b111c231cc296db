// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
)

// StatsHandler serves the runtime synchronization statistics.
type StatsHandler struct {
	engine Engine
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(engine Engine) *StatsHandler {
	return &StatsHandler{engine: engine}
}

// HandleStats handles GET /api/v1/stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Stats())
}

// HandleReset handles POST /api/v1/stats/reset requests.
func (h *StatsHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	h.engine.ResetStats()
	writeJSON(w, http.StatusOK, ackResponse{Status: "reset"})
}
