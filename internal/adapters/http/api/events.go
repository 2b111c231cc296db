// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/analyzemyteam/defsync/internal/domain/model"
)

// EventsHandler serves event lookups and the coach-side write
// operations.
type EventsHandler struct {
	engine Engine
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(engine Engine) *EventsHandler {
	return &EventsHandler{engine: engine}
}

// HandleEventAt handles GET /api/v1/events/at?kind=&ts= requests.
func (h *EventsHandler) HandleEventAt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	kind, err := model.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	ts, err := queryInt64(r, "ts")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	e, err := h.engine.EventAt(r.Context(), kind, ts)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// HandleEventRange handles GET /api/v1/events?kind=&from=&to= requests.
func (h *EventsHandler) HandleEventRange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	kind, err := model.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
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

	events, err := h.engine.EventsInRange(r.Context(), kind, from, to)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if events == nil {
		events = []*model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// markFormationRequest mirrors the POST /api/v1/formations schema.
type markFormationRequest struct {
	VideoTimestamp int64  `json:"video_timestamp"`
	FormationType  string `json:"formation_type"`
	Notes          string `json:"notes,omitempty"`
}

// HandleMarkFormation handles POST /api/v1/formations requests.
func (h *EventsHandler) HandleMarkFormation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req markFormationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	formation, err := model.ParseFormationType(req.FormationType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	e, err := h.engine.MarkFormation(r.Context(), req.VideoTimestamp, formation, req.Notes)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// overrideCallRequest mirrors the POST /api/v1/calls/override schema.
type overrideCallRequest struct {
	VideoTimestamp int64  `json:"video_timestamp"`
	Call           string `json:"call"`
	Reason         string `json:"reason,omitempty"`
}

// HandleOverrideCall handles POST /api/v1/calls/override requests.
func (h *EventsHandler) HandleOverrideCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req overrideCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	call, err := model.ParseTriangleCall(req.Call)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	e, err := h.engine.OverrideTriangleCall(r.Context(), req.VideoTimestamp, call, req.Reason)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// HandleAcknowledgeAlert handles POST /api/v1/alerts/{id}/ack requests.
func (h *EventsHandler) HandleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/v1/alerts/")
	id, ok := strings.CutSuffix(path, "/ack")
	if !ok || id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	if err := h.engine.AcknowledgeAlert(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "acknowledged"})
}

func queryInt64(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, fmt.Errorf("%w: missing %s", ErrBadRequest, name)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s", ErrBadRequest, name)
	}
	return v, nil
}
