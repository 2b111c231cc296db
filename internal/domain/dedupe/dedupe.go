// Package dedupe defines the idempotency tracker for event delivery.
package dedupe

import (
	"context"
	"sync"
)

// Deduper decides whether an event delivery carries anything new.
// Overlapping fetch windows and push re-deliveries hand the same event
// id to the engine many times; the tracker admits a delivery only when
// its ingest timestamp is newer than the last one recorded for that id.
type Deduper interface {
	// ShouldApply atomically checks the last recorded ingest timestamp
	// for id and records ingestTS if it is newer. Returns true when the
	// delivery must be applied, false when it is stale or a replay.
	ShouldApply(ctx context.Context, id string, ingestTS int64) bool

	// Forget drops an id so a later redelivery is applied again. Used
	// when an admitted event failed to reach the cache (e.g. queue
	// backpressure).
	Forget(ctx context.Context, id string)

	Size() int64
}

// inMemoryDeduper keeps last-seen ingest timestamps in a map bounded by
// a FIFO ring of ids. When the ring is full the oldest tracked id is
// forgotten, which at worst re-admits one old delivery.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]int64
	ring    []string
	next    int
	maxSize int
}

// NewInMemoryDeduper creates a bounded in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: defaultMaxSize,
	}

	for _, opt := range opts {
		opt(d)
	}
	if d.maxSize <= 0 {
		d.maxSize = defaultMaxSize
	}

	d.seen = make(map[string]int64, d.maxSize)
	d.ring = make([]string, d.maxSize)
	return d
}

func (d *inMemoryDeduper) ShouldApply(_ context.Context, id string, ingestTS int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.seen[id]; ok {
		if ingestTS <= last {
			return false
		}
		d.seen[id] = ingestTS
		return true
	}

	// Evict whatever the ring slot currently tracks.
	if old := d.ring[d.next]; old != "" {
		delete(d.seen, old)
	}
	d.ring[d.next] = id
	d.next = (d.next + 1) % d.maxSize
	d.seen[id] = ingestTS
	return true
}

func (d *inMemoryDeduper) Forget(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
	// The ring slot keeps the id until it is overwritten; ShouldApply
	// tolerates deleting an id that is no longer in the map.
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
