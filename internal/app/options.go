package service

import (
	"time"

	"github.com/analyzemyteam/defsync/internal/domain/dedupe"
	"github.com/analyzemyteam/defsync/internal/domain/stats"
	"github.com/analyzemyteam/defsync/pkg/logger"
)

// Option configures the Service.
type Option func(*Service)

// WithBackend wires the remote analysis service.
func WithBackend(b Backend) Option {
	return func(s *Service) {
		s.backend = b
	}
}

// WithPersistence wires the durable event store.
func WithPersistence(p Persistence) Option {
	return func(s *Service) {
		s.persist = p
	}
}

// WithDeduper replaces the default in-memory deduper.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Service) {
		if d != nil {
			s.deduper = d
		}
	}
}

// WithTracker replaces the default statistics tracker.
func WithTracker(t *stats.Tracker) Option {
	return func(s *Service) {
		if t != nil {
			s.tracker = t
		}
	}
}

// WithObserver registers the engine state observer.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		s.observer = o
	}
}

// WithSyncInterval sets the base sync tick at playback rate 1.0.
func WithSyncInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.syncInterval = d
		}
	}
}

// WithDrainBatch caps how many events one tick applies.
func WithDrainBatch(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.drainBatch = n
		}
	}
}

// WithFetchWindow sets the half-width of the fetch window around the
// playhead.
func WithFetchWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.fetchWindow = d
		}
	}
}

// WithFetchDebounce sets the minimum spacing between position-driven
// fetches.
func WithFetchDebounce(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.fetchDebounce = d
		}
	}
}

// WithStatsInterval sets the statistics publication cadence.
func WithStatsInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.statsInterval = d
		}
	}
}

// WithCleanupInterval sets the persistence cleanup cadence.
func WithCleanupInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.cleanupInterval = d
		}
	}
}

// WithRetention sets how long auto-generated events are persisted.
func WithRetention(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithWarmLoadLimit caps how many persisted events Start replays into
// the cache. Deployments align it with the cache capacity.
func WithWarmLoadLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.warmLoadLimit = n
		}
	}
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger replaces the default named logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
