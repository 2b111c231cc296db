// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/analyzemyteam/defsync/internal/domain/marker"
	"github.com/analyzemyteam/defsync/internal/domain/model"
)

// MarkersHandler serves timeline marker reads and visibility toggles.
type MarkersHandler struct {
	engine Engine
}

// NewMarkersHandler creates a new markers handler.
func NewMarkersHandler(engine Engine) *MarkersHandler {
	return &MarkersHandler{engine: engine}
}

// HandleMarkerRange handles GET /api/v1/markers?from=&to= requests.
func (h *MarkersHandler) HandleMarkerRange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	from, err := queryInt64(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	to, err := queryInt64(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	markers := h.engine.MarkersInRange(r.Context(), from, to)
	if markers == nil {
		markers = []marker.Marker{}
	}
	writeJSON(w, http.StatusOK, markers)
}

// HandleNearestMarker handles GET /api/v1/markers/nearest?ts=[&kind=]
// requests. Without a kind the lookup considers every marker kind.
func (h *MarkersHandler) HandleNearestMarker(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	ts, err := queryInt64(r, "ts")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	var kind model.Kind
	if raw := r.URL.Query().Get("kind"); raw != "" {
		kind, err = model.ParseKind(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
	}

	m, ok := h.engine.NearestMarker(r.Context(), ts, kind)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", ErrNoMarker)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// visibilityRequest mirrors the POST /api/v1/markers/visibility schema.
type visibilityRequest struct {
	Kind    string `json:"kind"`
	Visible bool   `json:"visible"`
}

// HandleVisibility handles POST /api/v1/markers/visibility requests.
func (h *MarkersHandler) HandleVisibility(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req visibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	kind, err := model.ParseKind(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	h.engine.SetKindVisible(kind, req.Visible)
	writeJSON(w, http.StatusOK, ackResponse{Status: "updated"})
}
