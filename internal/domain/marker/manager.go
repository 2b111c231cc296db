package marker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/analyzemyteam/defsync/internal/domain/model"
	"github.com/analyzemyteam/defsync/internal/domain/stats"
	"github.com/analyzemyteam/defsync/pkg/metrics"
)

// Default tuning. All overridable through options.
const (
	defaultMaxMarkers    = 10000
	defaultSweepInterval = 5 * time.Minute
	defaultRetention     = time.Hour
	nearestGapMs         = 1000
)

// Listener receives marker lifecycle notifications. Callbacks run with
// no manager lock held.
type Listener interface {
	MarkerAdded(m Marker)
	MarkerUpdated(m Marker)
	MarkerRemoved(id string)
}

// Manager owns the marker set. One marker exists per source event;
// re-upserting an event updates its marker in place.
type Manager struct {
	mu         sync.Mutex
	bySource   map[string]*Marker
	visibility map[model.Kind]bool

	maxMarkers    int
	sweepInterval time.Duration
	retention     time.Duration
	position      func() int64
	listener      Listener
	tracker       *stats.Tracker

	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewManager constructs a manager and starts its sweep loop.
func NewManager(ctx context.Context, opts ...Option) *Manager {
	m := &Manager{
		bySource:      make(map[string]*Marker),
		visibility:    make(map[model.Kind]bool),
		maxMarkers:    defaultMaxMarkers,
		sweepInterval: defaultSweepInterval,
		retention:     defaultRetention,
		position:      func() int64 { return 0 },
	}
	for _, kind := range model.Kinds() {
		m.visibility[kind] = true
	}

	for _, opt := range opts {
		opt(m)
	}

	m.stopChan = make(chan struct{})
	m.startSweeper(ctx)

	return m
}

// Close stops the sweep loop.
func (m *Manager) Close() error {
	select {
	case <-m.stopChan:
	default:
		close(m.stopChan)
	}
	m.wg.Wait()
	return nil
}

// OnEventUpserted creates or updates the marker for an event.
func (m *Manager) OnEventUpserted(_ context.Context, e *model.Event) error {
	derived, err := deriveMarker(e)
	if err != nil {
		return err
	}

	var (
		out     Marker
		created bool
		evicted []string
	)

	m.mu.Lock()
	if existing, ok := m.bySource[e.ID]; ok {
		derived.ID = existing.ID
		*existing = derived
		out = *existing
	} else {
		derived.ID = uuid.NewString()
		cp := derived
		m.bySource[e.ID] = &cp
		out = cp
		created = true
		evicted = m.evictOverCapLocked()
	}
	counts := m.countsLocked()
	m.mu.Unlock()

	publishCounts(counts)
	for _, id := range evicted {
		metrics.RecordMarkerEvicted()
		m.notifyRemoved(id)
	}
	if created {
		if m.tracker != nil {
			m.tracker.MarkerCreated()
		}
		m.notifyAdded(out)
	} else {
		m.notifyUpdated(out)
	}
	return nil
}

// RemoveForEvent drops the marker derived from an event, if any.
func (m *Manager) RemoveForEvent(_ context.Context, eventID string) {
	m.mu.Lock()
	existing, ok := m.bySource[eventID]
	var id string
	if ok {
		id = existing.ID
		delete(m.bySource, eventID)
	}
	counts := m.countsLocked()
	m.mu.Unlock()

	if ok {
		publishCounts(counts)
		m.notifyRemoved(id)
	}
}

// SetKindVisible toggles whether a kind's markers appear in reads.
// Markers are kept either way, so re-enabling restores history.
func (m *Manager) SetKindVisible(kind model.Kind, visible bool) {
	m.mu.Lock()
	m.visibility[kind] = visible
	m.mu.Unlock()
}

// KindVisible reports the current visibility of a kind.
func (m *Manager) KindVisible(kind model.Kind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visibility[kind]
}

// MarkersInRange returns visible markers with timestamps in
// [start, end], ascending.
func (m *Manager) MarkersInRange(_ context.Context, start, end int64) []Marker {
	m.mu.Lock()
	var out []Marker
	for _, mk := range m.bySource {
		if !m.visibility[mk.Kind] {
			continue
		}
		if mk.VideoTimestamp >= start && mk.VideoTimestamp <= end {
			out = append(out, *mk)
		}
	}
	m.mu.Unlock()

	sortMarkers(out)
	return out
}

// NearestMarker returns the visible marker closest to ts within the
// snap distance, favoring the later marker on an exact tie. An empty
// kind matches markers of any kind.
func (m *Manager) NearestMarker(_ context.Context, ts int64, kind model.Kind) (Marker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		best     *Marker
		bestDist int64
	)
	for _, mk := range m.bySource {
		if !m.visibility[mk.Kind] {
			continue
		}
		if kind != "" && mk.Kind != kind {
			continue
		}
		dist := mk.VideoTimestamp - ts
		if dist < 0 {
			dist = -dist
		}
		if dist > nearestGapMs {
			continue
		}
		if best == nil || dist < bestDist ||
			(dist == bestDist && mk.VideoTimestamp > best.VideoTimestamp) {
			best = mk
			bestDist = dist
		}
	}
	if best == nil {
		return Marker{}, false
	}
	return *best, true
}

// Count returns the total number of markers, visible or not.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bySource)
}

// evictOverCapLocked removes the oldest non-user markers until the set
// fits the cap. User-created markers are never auto-evicted. Must be
// called with m.mu held. Returns the removed marker ids.
func (m *Manager) evictOverCapLocked() []string {
	var removed []string
	for len(m.bySource) > m.maxMarkers {
		var (
			victimKey string
			victim    *Marker
		)
		for key, mk := range m.bySource {
			if mk.UserCreated {
				continue
			}
			if victim == nil || mk.VideoTimestamp < victim.VideoTimestamp ||
				(mk.VideoTimestamp == victim.VideoTimestamp && mk.ID < victim.ID) {
				victim = mk
				victimKey = key
			}
		}
		if victim == nil {
			break
		}
		delete(m.bySource, victimKey)
		removed = append(removed, victim.ID)
	}
	return removed
}

// startSweeper runs the age-based sweep on a background ticker.
func (m *Manager) startSweeper(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopChan:
				return
			case <-ticker.C:
				m.Sweep(ctx)
			}
		}
	}()
}

// Sweep removes non-user markers that have fallen further behind the
// current video position than the retention horizon.
func (m *Manager) Sweep(_ context.Context) int {
	cutoff := m.position() - m.retention.Milliseconds()
	if cutoff <= 0 {
		return 0
	}

	m.mu.Lock()
	var removed []string
	for key, mk := range m.bySource {
		if mk.UserCreated {
			continue
		}
		if mk.VideoTimestamp < cutoff {
			removed = append(removed, mk.ID)
			delete(m.bySource, key)
		}
	}
	counts := m.countsLocked()
	m.mu.Unlock()

	if len(removed) > 0 {
		publishCounts(counts)
	}
	for _, id := range removed {
		metrics.RecordMarkerEvicted()
		m.notifyRemoved(id)
	}
	return len(removed)
}

// countsLocked snapshots per-kind counts. Must be called with m.mu held.
func (m *Manager) countsLocked() map[model.Kind]int {
	counts := make(map[model.Kind]int, len(m.visibility))
	for _, mk := range m.bySource {
		counts[mk.Kind]++
	}
	return counts
}

func publishCounts(counts map[model.Kind]int) {
	for _, kind := range model.Kinds() {
		metrics.UpdateMarkersActive(string(kind), counts[kind])
	}
}

func (m *Manager) notifyAdded(mk Marker) {
	if m.listener != nil {
		m.listener.MarkerAdded(mk)
	}
}

func (m *Manager) notifyUpdated(mk Marker) {
	if m.listener != nil {
		m.listener.MarkerUpdated(mk)
	}
}

func (m *Manager) notifyRemoved(id string) {
	if m.listener != nil {
		m.listener.MarkerRemoved(id)
	}
}
