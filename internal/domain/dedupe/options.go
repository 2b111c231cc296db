// Package dedupe defines the idempotency tracker for event delivery.
package dedupe

// defaultMaxSize bounds the tracker when no option overrides it.
const defaultMaxSize = 50000

// Option applies a configuration option to the in-memory deduper.
type Option func(*inMemoryDeduper)

// WithMaxSize sets the maximum number of ids tracked before the oldest
// is forgotten. Non-positive values fall back to the default.
func WithMaxSize(maxSize int) Option {
	return func(d *inMemoryDeduper) {
		d.maxSize = maxSize
	}
}
