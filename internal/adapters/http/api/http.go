// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/analyzemyteam/defsync/internal/adapters/repository"
	"github.com/analyzemyteam/defsync/internal/domain/marker"
	"github.com/analyzemyteam/defsync/internal/domain/model"
	"github.com/analyzemyteam/defsync/internal/domain/stats"
)

// Engine bundles the coordinator operations the handlers depend on.
// Using an interface bundle keeps the handler layer loosely coupled to
// implementations in other packages.
type Engine interface {
	EventAt(ctx context.Context, kind model.Kind, ts int64) (*model.Event, error)
	EventsInRange(ctx context.Context, kind model.Kind, start, end int64) ([]*model.Event, error)

	MarkersInRange(ctx context.Context, start, end int64) []marker.Marker
	NearestMarker(ctx context.Context, ts int64, kind model.Kind) (marker.Marker, bool)
	SetKindVisible(kind model.Kind, visible bool)

	MarkFormation(ctx context.Context, ts int64, formation model.FormationType, notes string) (*model.Event, error)
	OverrideTriangleCall(ctx context.Context, ts int64, call model.TriangleCall, reason string) (*model.Event, error)
	AcknowledgeAlert(ctx context.Context, id string) error

	SetVideoPosition(ctx context.Context, pos int64)
	OnSeek(ctx context.Context, pos int64)
	OnRateChanged(rate float64)
	Play()
	Pause()
	Position() int64

	ConnectionStatus() model.ConnectionStatus
	Reconnect()
	Stats() stats.Snapshot
	ResetStats()
}

// Server wires HTTP routes for the engine API.
type Server struct {
	eventsHandler   *EventsHandler
	markersHandler  *MarkersHandler
	statusHandler   *StatusHandler
	statsHandler    *StatsHandler
	playbackHandler *PlaybackHandler
	healthHandler   *HealthHandler
	dashHandler     *dashboardHandler
}

// NewServer creates an API server with all handlers.
func NewServer(engine Engine) *Server {
	return &Server{
		eventsHandler:   NewEventsHandler(engine),
		markersHandler:  NewMarkersHandler(engine),
		statusHandler:   NewStatusHandler(engine),
		statsHandler:    NewStatsHandler(engine),
		playbackHandler: NewPlaybackHandler(engine),
		healthHandler:   NewHealthHandler(),
		dashHandler:     newDashboardHandler(),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/dashboard", s.dashHandler.HandleDashboard)

	mux.HandleFunc("/api/v1/events/at", MetricsMiddleware(s.eventsHandler.HandleEventAt, "events_at"))
	mux.HandleFunc("/api/v1/events", MetricsMiddleware(s.eventsHandler.HandleEventRange, "events"))
	mux.HandleFunc("/api/v1/formations", MetricsMiddleware(s.eventsHandler.HandleMarkFormation, "formations"))
	mux.HandleFunc("/api/v1/calls/override", MetricsMiddleware(s.eventsHandler.HandleOverrideCall, "calls_override"))
	mux.HandleFunc("/api/v1/alerts/", MetricsMiddleware(s.eventsHandler.HandleAcknowledgeAlert, "alerts_ack"))

	mux.HandleFunc("/api/v1/markers", MetricsMiddleware(s.markersHandler.HandleMarkerRange, "markers"))
	mux.HandleFunc("/api/v1/markers/nearest", MetricsMiddleware(s.markersHandler.HandleNearestMarker, "markers_nearest"))
	mux.HandleFunc("/api/v1/markers/visibility", MetricsMiddleware(s.markersHandler.HandleVisibility, "markers_visibility"))

	mux.HandleFunc("/api/v1/status", MetricsMiddleware(s.statusHandler.HandleStatus, "status"))
	mux.HandleFunc("/api/v1/reconnect", MetricsMiddleware(s.statusHandler.HandleReconnect, "reconnect"))

	mux.HandleFunc("/api/v1/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/api/v1/stats/reset", MetricsMiddleware(s.statsHandler.HandleReset, "stats_reset"))

	mux.HandleFunc("/api/v1/playback", MetricsMiddleware(s.playbackHandler.HandlePlayback, "playback"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ackResponse struct {
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeEngineError translates engine errors to status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNoEvent), errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, repository.ErrNotAlert),
		errors.Is(err, repository.ErrInvalidRange),
		errors.Is(err, model.ErrUnknownKind),
		errors.Is(err, model.ErrUnknownFormation),
		errors.Is(err, model.ErrUnknownCall),
		errors.Is(err, model.ErrNegativeTimestamp):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
