// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
)

// StatusHandler serves the backend connection state.
type StatusHandler struct {
	engine Engine
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(engine Engine) *StatusHandler {
	return &StatusHandler{engine: engine}
}

// statusResponse combines the connection and playback view.
type statusResponse struct {
	Connection interface{} `json:"connection"`
	PositionMS int64       `json:"position_ms"`
}

// HandleStatus handles GET /api/v1/status requests.
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Connection: h.engine.ConnectionStatus(),
		PositionMS: h.engine.Position(),
	})
}

// HandleReconnect handles POST /api/v1/reconnect requests. It resets
// the backend's reconnection budget after a degraded state.
func (h *StatusHandler) HandleReconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	h.engine.Reconnect()
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "reconnecting"})
}
