// Package repository defines the event cache interface and errors.
package repository

import (
	"time"

	"github.com/analyzemyteam/defsync/internal/domain/stats"
)

// Option applies a configuration option to the TreapCache.
type Option func(*TreapCache)

// WithMaxEvents caps the number of cached events before the oldest
// non-user events are evicted.
func WithMaxEvents(n int) Option {
	return func(c *TreapCache) {
		if n > 0 {
			c.maxEvents = n
		}
	}
}

// WithInterpolationGap sets the maximum distance to each neighbor for
// two-sided interpolation.
func WithInterpolationGap(gap time.Duration) Option {
	return func(c *TreapCache) {
		if gap > 0 {
			c.interpGapMs = gap.Milliseconds()
		}
	}
}

// WithNearestGap sets the maximum distance for a single-sided match.
func WithNearestGap(gap time.Duration) Option {
	return func(c *TreapCache) {
		if gap > 0 {
			c.nearestGapMs = gap.Milliseconds()
		}
	}
}

// WithTracker wires the shared statistics tracker into lookups.
func WithTracker(t *stats.Tracker) Option {
	return func(c *TreapCache) {
		c.tracker = t
	}
}

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(c *TreapCache) {
		if interval > 0 {
			c.metricsUpdateInterval = interval
		}
	}
}
