package marker

import (
	"time"

	"github.com/analyzemyteam/defsync/internal/domain/stats"
)

// Option configures a Manager.
type Option func(*Manager)

// WithMaxMarkers caps the number of live markers.
func WithMaxMarkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxMarkers = n
		}
	}
}

// WithSweepInterval sets how often the age sweep runs.
func WithSweepInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.sweepInterval = d
		}
	}
}

// WithRetention sets how far behind the current position a non-user
// marker may fall before the sweep removes it.
func WithRetention(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.retention = d
		}
	}
}

// WithPositionFunc supplies the current video position, in
// milliseconds, for the age sweep.
func WithPositionFunc(fn func() int64) Option {
	return func(m *Manager) {
		if fn != nil {
			m.position = fn
		}
	}
}

// WithListener registers a lifecycle listener.
func WithListener(l Listener) Option {
	return func(m *Manager) {
		m.listener = l
	}
}

// WithTracker wires a runtime statistics tracker.
func WithTracker(t *stats.Tracker) Option {
	return func(m *Manager) {
		m.tracker = t
	}
}
