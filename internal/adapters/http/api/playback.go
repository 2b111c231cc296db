// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"net/http"
)

// PlaybackHandler receives player state updates from the UI.
type PlaybackHandler struct {
	engine Engine
}

// NewPlaybackHandler creates a new playback handler.
func NewPlaybackHandler(engine Engine) *PlaybackHandler {
	return &PlaybackHandler{engine: engine}
}

// playbackRequest mirrors the POST /api/v1/playback schema. Rate and
// playing are optional; omitted fields leave the current state alone.
type playbackRequest struct {
	PositionMS int64    `json:"position_ms"`
	Seek       bool     `json:"seek,omitempty"`
	Rate       *float64 `json:"rate,omitempty"`
	Playing    *bool    `json:"playing,omitempty"`
}

// HandlePlayback handles POST /api/v1/playback requests.
func (h *PlaybackHandler) HandlePlayback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req playbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if req.PositionMS < 0 {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	if req.Rate != nil {
		h.engine.OnRateChanged(*req.Rate)
	}
	if req.Playing != nil {
		if *req.Playing {
			h.engine.Play()
		} else {
			h.engine.Pause()
		}
	}
	if req.Seek {
		h.engine.OnSeek(r.Context(), req.PositionMS)
	} else {
		h.engine.SetVideoPosition(r.Context(), req.PositionMS)
	}

	writeJSON(w, http.StatusOK, ackResponse{Status: "updated"})
}
