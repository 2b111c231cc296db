// Package stats tracks process-scoped synchronization statistics.
package stats

import (
	"sync"
	"time"
)

// latencyWindow bounds the rolling fetch-latency average.
const latencyWindow = 100

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	EventsProcessed   int64   `json:"events_processed"`
	EventsDropped     int64   `json:"events_dropped"`
	MarkersCreated    int64   `json:"markers_created"`
	CacheHits         int64   `json:"cache_hits"`
	CacheMisses       int64   `json:"cache_misses"`
	SyncOperations    int64   `json:"sync_operations"`
	NetworkRequests   int64   `json:"network_requests"`
	AvgFetchLatencyMs float64 `json:"avg_fetch_latency_ms"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// Tracker accumulates counters behind a single mutex. All methods are
// safe for concurrent use.
type Tracker struct {
	mu sync.Mutex

	eventsProcessed int64
	eventsDropped   int64
	markersCreated  int64
	cacheHits       int64
	cacheMisses     int64
	syncOperations  int64
	networkRequests int64

	latencies []float64 // ring of the last latencyWindow fetch latencies
	latIdx    int

	startedAt time.Time
	now       func() time.Time
}

// NewTracker creates a tracker with the clock started now.
func NewTracker() *Tracker {
	t := &Tracker{now: time.Now}
	t.startedAt = t.now()
	return t
}

func (t *Tracker) EventProcessed() { t.add(&t.eventsProcessed) }
func (t *Tracker) EventDropped()   { t.add(&t.eventsDropped) }
func (t *Tracker) MarkerCreated()  { t.add(&t.markersCreated) }
func (t *Tracker) CacheHit()       { t.add(&t.cacheHits) }
func (t *Tracker) CacheMiss()      { t.add(&t.cacheMisses) }
func (t *Tracker) SyncOperation()  { t.add(&t.syncOperations) }

func (t *Tracker) add(field *int64) {
	t.mu.Lock()
	*field++
	t.mu.Unlock()
}

// NetworkRequest records one remote round trip and its latency.
func (t *Tracker) NetworkRequest(latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.networkRequests++
	ms := float64(latency) / float64(time.Millisecond)
	if len(t.latencies) < latencyWindow {
		t.latencies = append(t.latencies, ms)
		return
	}
	t.latencies[t.latIdx] = ms
	t.latIdx = (t.latIdx + 1) % latencyWindow
}

// Snapshot copies the current counters.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	var avg float64
	if n := len(t.latencies); n > 0 {
		var sum float64
		for _, ms := range t.latencies {
			sum += ms
		}
		avg = sum / float64(n)
	}

	return Snapshot{
		EventsProcessed:   t.eventsProcessed,
		EventsDropped:     t.eventsDropped,
		MarkersCreated:    t.markersCreated,
		CacheHits:         t.cacheHits,
		CacheMisses:       t.cacheMisses,
		SyncOperations:    t.syncOperations,
		NetworkRequests:   t.networkRequests,
		AvgFetchLatencyMs: avg,
		UptimeSeconds:     t.now().Sub(t.startedAt).Seconds(),
	}
}

// Reset zeroes every counter and restarts the clock. Only an explicit
// caller decision resets the tracker.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.eventsProcessed = 0
	t.eventsDropped = 0
	t.markersCreated = 0
	t.cacheHits = 0
	t.cacheMisses = 0
	t.syncOperations = 0
	t.networkRequests = 0
	t.latencies = t.latencies[:0]
	t.latIdx = 0
	t.startedAt = t.now()
}
