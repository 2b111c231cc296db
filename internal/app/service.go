// Package service wires the cache, queue, markers, persistence, and
// backend client into the synchronization engine driven by video
// playback.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	eventqueue "github.com/analyzemyteam/defsync/internal/adapters/mq/queue"
	"github.com/analyzemyteam/defsync/internal/adapters/repository"
	"github.com/analyzemyteam/defsync/internal/domain/dedupe"
	"github.com/analyzemyteam/defsync/internal/domain/marker"
	"github.com/analyzemyteam/defsync/internal/domain/model"
	"github.com/analyzemyteam/defsync/internal/domain/stats"
	"github.com/analyzemyteam/defsync/pkg/logger"
	"github.com/analyzemyteam/defsync/pkg/metrics"
)

// Default timing. All overridable through options.
const (
	defaultSyncInterval    = 100 * time.Millisecond
	defaultDrainBatch      = 50
	defaultFetchWindow     = 5 * time.Minute
	defaultFetchDebounce   = 30 * time.Second
	defaultStatsInterval   = 5 * time.Second
	defaultCleanupInterval = time.Hour
	defaultRetention       = 24 * time.Hour
	defaultWarmLoadLimit   = 10_000

	minSyncInterval = 10 * time.Millisecond
	maxSyncInterval = time.Second

	urgencyAlertThreshold = 0.8
)

// Backend abstracts the remote analysis service.
type Backend interface {
	FetchRange(ctx context.Context, from, to int64) ([]*model.Event, error)
	Status() model.ConnectionStatus
	Reconnect()
}

// Persistence abstracts the durable event store.
type Persistence interface {
	SaveEvent(ctx context.Context, e *model.Event) error
	LoadRecent(ctx context.Context, limit int) ([]*model.Event, error)
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}

// Observer is notified about engine state changes.
type Observer interface {
	ConnectionStatusChanged(s model.ConnectionStatus)
	StatisticsUpdated(s stats.Snapshot)
}

// Service is the synchronization engine. It drains pushed events into
// the cache on an adaptive tick, schedules backend fetches around the
// video position, and derives markers from every applied event.
type Service struct {
	cache   repository.Cache
	queue   eventqueue.Queue
	markers *marker.Manager
	deduper dedupe.Deduper
	backend Backend
	persist Persistence
	tracker *stats.Tracker

	observer Observer
	logger   logger.Logger

	syncInterval    time.Duration
	drainBatch      int
	fetchWindow     time.Duration
	fetchDebounce   time.Duration
	statsInterval   time.Duration
	cleanupInterval time.Duration
	retention       time.Duration
	warmLoadLimit   int
	now             func() time.Time

	mu          sync.RWMutex
	position    int64
	rate        float64
	playing     bool
	lastFetchAt time.Time
	started     bool

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New builds the engine around its three required components. The
// backend and persistence layers are optional; without them the engine
// runs on pushed and user-created events alone.
func New(cache repository.Cache, queue eventqueue.Queue, markers *marker.Manager, opts ...Option) *Service {
	s := &Service{
		cache:           cache,
		queue:           queue,
		markers:         markers,
		deduper:         dedupe.NewInMemoryDeduper(),
		tracker:         stats.NewTracker(),
		syncInterval:    defaultSyncInterval,
		drainBatch:      defaultDrainBatch,
		fetchWindow:     defaultFetchWindow,
		fetchDebounce:   defaultFetchDebounce,
		statsInterval:   defaultStatsInterval,
		cleanupInterval: defaultCleanupInterval,
		retention:       defaultRetention,
		warmLoadLimit:   defaultWarmLoadLimit,
		now:             time.Now,
		rate:            1.0,
		playing:         true,
		stopChan:        make(chan struct{}),
		logger:          logger.Get().Named("engine"),
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start warms the cache from persistence and launches the background
// loops.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	if s.persist != nil {
		if err := s.warmStart(ctx); err != nil {
			s.logger.Warn(ctx, "warm start failed", logger.Error(err))
		}
	}

	s.wg.Add(1)
	go s.syncLoop(ctx)

	s.wg.Add(1)
	go s.statsLoop(ctx)

	if s.persist != nil {
		s.wg.Add(1)
		go s.cleanupLoop(ctx)
	}

	s.logger.Info(ctx, "sync engine started",
		logger.Int64("sync_interval_ms", s.syncInterval.Milliseconds()),
		logger.Int("drain_batch", s.drainBatch),
	)
	return nil
}

// Stop halts the background loops. Owned components are closed by the
// caller that constructed them.
func (s *Service) Stop() {
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
	s.wg.Wait()
	s.logger.Info(context.Background(), "sync engine stopped")
}

// warmStart replays recently persisted events into the cache.
func (s *Service) warmStart(ctx context.Context) error {
	events, err := s.persist.LoadRecent(ctx, s.warmLoadLimit)
	if err != nil {
		return err
	}

	loaded := 0
	for _, e := range events {
		applied, err := s.cache.Upsert(ctx, e)
		if err != nil || !applied {
			continue
		}
		if err := s.markers.OnEventUpserted(ctx, e); err != nil {
			s.logger.Warn(ctx, "marker derivation failed during warm start",
				logger.String("event_id", e.ID),
				logger.Error(err),
			)
		}
		loaded++
	}

	s.logger.Info(ctx, "cache warmed from store", logger.Int("events", loaded))
	return nil
}

// HandleRemoteEvent enqueues a pushed event for the next sync tick.
// It is wired as the backend push handler.
func (s *Service) HandleRemoteEvent(e *model.Event) {
	if !s.queue.Enqueue(context.Background(), e) {
		s.tracker.EventDropped()
	}
}

// SetVideoPosition updates the playhead and schedules a debounced
// backend fetch around it.
func (s *Service) SetVideoPosition(ctx context.Context, pos int64) {
	if pos < 0 {
		pos = 0
	}
	s.mu.Lock()
	s.position = pos
	s.mu.Unlock()

	s.maybeFetch(ctx, pos, false)
}

// OnSeek updates the playhead, resolves the formation already cached
// at the target, and fetches immediately, bypassing the debounce so a
// jump lands in fresh data.
func (s *Service) OnSeek(ctx context.Context, pos int64) {
	if pos < 0 {
		pos = 0
	}
	s.mu.Lock()
	s.position = pos
	s.mu.Unlock()

	if e, err := s.cache.At(ctx, model.KindFormation, pos); err == nil {
		s.logger.Debug(ctx, "seek resolved cached formation",
			logger.String("event_id", e.ID),
			logger.Int64("video_ts", pos),
		)
	}

	s.maybeFetch(ctx, pos, true)
}

// OnRateChanged adjusts the sync cadence to the playback rate. The
// loop picks up the new interval on its next tick.
func (s *Service) OnRateChanged(rate float64) {
	if rate <= 0 {
		rate = 1.0
	}
	s.mu.Lock()
	s.rate = rate
	s.mu.Unlock()
}

// Play resumes the sync tick.
func (s *Service) Play() {
	s.mu.Lock()
	s.playing = true
	s.mu.Unlock()
}

// Pause stops the sync tick. Pushed events keep queueing up to the
// queue's backpressure policy until playback resumes.
func (s *Service) Pause() {
	s.mu.Lock()
	s.playing = false
	s.mu.Unlock()
}

func (s *Service) isPlaying() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playing
}

// Position returns the current playhead in milliseconds.
func (s *Service) Position() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.position
}

// tickInterval derives the sync interval from the playback rate,
// clamped so extreme rates neither spin nor stall the loop.
func (s *Service) tickInterval() time.Duration {
	s.mu.RLock()
	rate := s.rate
	s.mu.RUnlock()

	d := time.Duration(float64(s.syncInterval) / rate)
	if d < minSyncInterval {
		return minSyncInterval
	}
	if d > maxSyncInterval {
		return maxSyncInterval
	}
	return d
}

// maybeFetch schedules a backend fetch for the window around pos. A
// non-forced call inside the debounce window is a no-op.
func (s *Service) maybeFetch(ctx context.Context, pos int64, force bool) {
	if s.backend == nil {
		return
	}

	s.mu.Lock()
	if !force && !s.lastFetchAt.IsZero() && s.now().Sub(s.lastFetchAt) < s.fetchDebounce {
		s.mu.Unlock()
		return
	}
	s.lastFetchAt = s.now()
	s.mu.Unlock()

	from := pos - s.fetchWindow.Milliseconds()
	if from < 0 {
		from = 0
	}
	to := pos + s.fetchWindow.Milliseconds()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		events, err := s.backend.FetchRange(ctx, from, to)
		if err != nil {
			s.logger.Warn(ctx, "backend fetch failed",
				logger.Int64("from", from),
				logger.Int64("to", to),
				logger.Error(err),
			)
			return
		}
		for _, e := range events {
			if !s.queue.Enqueue(ctx, e) {
				s.tracker.EventDropped()
			}
		}
	}()
}

// syncLoop drains the queue on the adaptive tick.
func (s *Service) syncLoop(ctx context.Context) {
	defer s.wg.Done()

	interval := s.tickInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			if s.isPlaying() {
				s.processTick(ctx)
			}
			if next := s.tickInterval(); next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

// processTick applies one drained batch to the cache, markers, and
// store.
func (s *Service) processTick(ctx context.Context) {
	start := time.Now()

	batch := s.queue.Drain(ctx, s.drainBatch)
	for _, e := range batch {
		s.applyEvent(ctx, e)
	}

	s.tracker.SyncOperation()
	metrics.RecordSyncDrainBatch(len(batch))
	metrics.RecordSyncTickDuration(float64(time.Since(start).Milliseconds()))
}

// applyEvent runs one event through dedupe, cache, markers, and
// persistence. Lock order is cache before marker manager.
func (s *Service) applyEvent(ctx context.Context, e *model.Event) {
	if err := e.Validate(); err != nil {
		s.logger.Warn(ctx, "dropping invalid event",
			logger.String("event_id", eventID(e)),
			logger.Error(err),
		)
		metrics.RecordEventDropped("invalid")
		s.tracker.EventDropped()
		return
	}

	if !s.deduper.ShouldApply(ctx, e.ID, e.IngestTimestamp) {
		metrics.RecordEventDuplicate()
		return
	}

	applied, err := s.cache.Upsert(ctx, e)
	if err != nil {
		s.logger.Warn(ctx, "cache upsert failed",
			logger.String("event_id", e.ID),
			logger.Error(err),
		)
		s.tracker.EventDropped()
		return
	}
	if !applied {
		return
	}

	metrics.RecordEventIngested(string(e.Kind))
	s.tracker.EventProcessed()

	if err := s.markers.OnEventUpserted(ctx, e); err != nil {
		s.logger.Warn(ctx, "marker derivation failed",
			logger.String("event_id", e.ID),
			logger.Error(err),
		)
	}

	if s.persist != nil {
		if err := s.persist.SaveEvent(ctx, e); err != nil {
			s.logger.Warn(ctx, "event persistence failed",
				logger.String("event_id", e.ID),
				logger.Error(err),
			)
		}
	}

	if e.Kind == model.KindFormation {
		s.checkUrgency(ctx, e)
	}
}

// checkUrgency raises a critical coaching alert when a formation's
// defensive urgency crosses the alert threshold.
func (s *Service) checkUrgency(ctx context.Context, e *model.Event) {
	urgency := model.DefensiveUrgency(e.Formation, e.Confidence)
	if urgency <= urgencyAlertThreshold {
		return
	}

	metrics.RecordUrgencyAlert()
	alert := &model.Event{
		ID:              uuid.NewString(),
		Kind:            model.KindCoachingAlert,
		VideoTimestamp:  e.VideoTimestamp,
		IngestTimestamp: s.now().UnixMilli(),
		Confidence:      e.Confidence,
		Alert: &model.AlertPayload{
			AlertType:   "high_urgency_formation",
			Message:     fmt.Sprintf("%s formation requires immediate attention (urgency %.2f)", e.Formation.Type, urgency),
			TargetStaff: "defensive_coordinator",
			Priority:    model.CriticalAlertPriority,
		},
	}
	s.logger.Info(ctx, "urgency alert raised",
		logger.String("formation_id", e.ID),
		logger.Float64("urgency", urgency),
	)
	s.applyEvent(ctx, alert)
}

// MarkFormation records a coach-tagged formation at a video position.
// User-created events bypass the queue so the UI sees them at once.
func (s *Service) MarkFormation(ctx context.Context, ts int64, formation model.FormationType, notes string) (*model.Event, error) {
	if _, err := model.ParseFormationType(string(formation)); err != nil {
		return nil, err
	}
	if ts < 0 {
		return nil, model.ErrNegativeTimestamp
	}

	fc := map[string]interface{}{}
	if notes != "" {
		fc["notes"] = notes
	}
	e := &model.Event{
		ID:              uuid.NewString(),
		Kind:            model.KindFormation,
		VideoTimestamp:  ts,
		IngestTimestamp: s.now().UnixMilli(),
		Confidence:      1.0,
		UserCreated:     true,
		Formation: &model.FormationPayload{
			Type:         formation,
			FieldContext: fc,
		},
	}
	e.Formation.RecommendedCall = model.RecommendCall(e.Formation)

	s.applyEvent(ctx, e)
	return e, nil
}

// OverrideTriangleCall records a coach override for the formation
// resolved at a video position. Fails when no formation is near ts.
func (s *Service) OverrideTriangleCall(ctx context.Context, ts int64, call model.TriangleCall, reason string) (*model.Event, error) {
	if _, err := model.ParseTriangleCall(string(call)); err != nil {
		return nil, err
	}

	formation, err := s.cache.At(ctx, model.KindFormation, ts)
	if err != nil {
		return nil, fmt.Errorf("resolve formation at %d: %w", ts, err)
	}

	e := &model.Event{
		ID:              uuid.NewString(),
		Kind:            model.KindTriangleCall,
		VideoTimestamp:  ts,
		IngestTimestamp: s.now().UnixMilli(),
		Confidence:      1.0,
		UserCreated:     true,
		Call: &model.TriangleCallPayload{
			Call:           call,
			FormationID:    formation.ID,
			OverrideReason: reason,
		},
	}

	s.applyEvent(ctx, e)
	return e, nil
}

// AcknowledgeAlert marks a cached alert as acknowledged and persists
// the updated event.
func (s *Service) AcknowledgeAlert(ctx context.Context, id string) error {
	if err := s.cache.Acknowledge(ctx, id); err != nil {
		return err
	}

	if s.persist != nil {
		e, err := s.cache.Get(ctx, id)
		if err == nil {
			if err := s.persist.SaveEvent(ctx, e); err != nil {
				s.logger.Warn(ctx, "alert persistence failed",
					logger.String("event_id", id),
					logger.Error(err),
				)
			}
		}
	}
	return nil
}

// EventAt resolves the event of a kind for a video position.
func (s *Service) EventAt(ctx context.Context, kind model.Kind, ts int64) (*model.Event, error) {
	return s.cache.At(ctx, kind, ts)
}

// EventsInRange returns cached events of a kind inside a window.
func (s *Service) EventsInRange(ctx context.Context, kind model.Kind, start, end int64) ([]*model.Event, error) {
	return s.cache.Range(ctx, kind, start, end)
}

// MarkersInRange returns visible markers inside a window.
func (s *Service) MarkersInRange(ctx context.Context, start, end int64) []marker.Marker {
	return s.markers.MarkersInRange(ctx, start, end)
}

// NearestMarker snaps a position to the closest visible marker. An
// empty kind matches any kind.
func (s *Service) NearestMarker(ctx context.Context, ts int64, kind model.Kind) (marker.Marker, bool) {
	return s.markers.NearestMarker(ctx, ts, kind)
}

// SetKindVisible toggles marker visibility for a kind.
func (s *Service) SetKindVisible(kind model.Kind, visible bool) {
	s.markers.SetKindVisible(kind, visible)
}

// ConnectionStatus reports the backend connection state.
func (s *Service) ConnectionStatus() model.ConnectionStatus {
	if s.backend == nil {
		return model.ConnectionStatus{State: model.StateDisconnected}
	}
	return s.backend.Status()
}

// Reconnect resets the backend's reconnection budget.
func (s *Service) Reconnect() {
	if s.backend != nil {
		s.backend.Reconnect()
	}
}

// Stats returns a snapshot of the runtime counters.
func (s *Service) Stats() stats.Snapshot {
	return s.tracker.Snapshot()
}

// ResetStats zeroes the runtime counters.
func (s *Service) ResetStats() {
	s.tracker.Reset()
}

// OnConnectionStatus forwards backend state changes to the observer.
// It is wired as the backend status callback.
func (s *Service) OnConnectionStatus(status model.ConnectionStatus) {
	if s.observer != nil {
		s.observer.ConnectionStatusChanged(status)
	}
}

// statsLoop publishes runtime statistics on a fixed cadence.
func (s *Service) statsLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			if s.observer != nil {
				s.observer.StatisticsUpdated(s.tracker.Snapshot())
			}
		}
	}
}

// cleanupLoop prunes aged auto-generated events from persistence.
func (s *Service) cleanupLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			removed, err := s.persist.Cleanup(ctx, s.retention)
			if err != nil {
				s.logger.Warn(ctx, "store cleanup failed", logger.Error(err))
				continue
			}
			if removed > 0 {
				s.logger.Info(ctx, "store cleanup removed aged events",
					logger.Int64("rows", removed),
				)
			}
		}
	}
}

func eventID(e *model.Event) string {
	if e == nil {
		return ""
	}
	return e.ID
}
