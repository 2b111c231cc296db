package repository

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/analyzemyteam/defsync/internal/domain/model"
	"github.com/analyzemyteam/defsync/internal/domain/stats"
	"github.com/analyzemyteam/defsync/pkg/metrics"
)

// Treap-based, in-memory Cache implementation.
//
// One treap per event kind, ordered by (video_timestamp ASC, id ASC).
// In-order traversal yields the timeline; floor/ceiling walks find the
// neighbors a position lookup interpolates between. A byID map gives
// O(1) access for last-write-wins replacement and deletion.

// Default tuning. All overridable through options.
const (
	defaultMaxEvents       = 10000
	defaultInterpGapMs     = 5000
	defaultNearestGapMs    = 10000
	defaultMetricsInterval = 5 * time.Second
)

// treap node
type node struct {
	id    string
	ts    int64
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aTS, aID) appears earlier on the timeline.
func less(aTS int64, aID string, bTS int64, bID string) bool {
	if aTS != bTS {
		return aTS < bTS
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, ts int64) *node {
	if n == nil {
		return &node{id: id, ts: ts, prio: rand.Uint64(), size: 1} //nolint:gosec // heap balance only, not security
	}
	if less(ts, id, n.ts, n.id) {
		n.left = insert(n.left, id, ts)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, ts)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, ts int64) *node {
	if n == nil {
		return nil
	}
	if ts == n.ts && id == n.id {
		// Merge children by rotating the highest priority up until leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, ts)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, ts)
		}
	} else if less(ts, id, n.ts, n.id) {
		n.left = deleteNode(n.left, id, ts)
	} else {
		n.right = deleteNode(n.right, id, ts)
	}
	fix(n)
	return n
}

// before returns the latest node strictly before ts.
func before(n *node, ts int64) *node {
	var best *node
	for n != nil {
		if n.ts < ts {
			best = n
			n = n.right
		} else {
			n = n.left
		}
	}
	return best
}

// after returns the earliest node strictly after ts.
func after(n *node, ts int64) *node {
	var best *node
	for n != nil {
		if n.ts > ts {
			best = n
			n = n.left
		} else {
			n = n.right
		}
	}
	return best
}

// exact returns the first node at ts in id order, or nil.
func exact(n *node, ts int64) *node {
	var best *node
	for n != nil {
		switch {
		case n.ts == ts:
			best = n
			n = n.left
		case n.ts < ts:
			n = n.right
		default:
			n = n.left
		}
	}
	if best != nil && best.ts == ts {
		return best
	}
	return nil
}

// walkRange calls fn for each node with ts in [start, end] in timeline
// order until fn returns false.
func walkRange(n *node, start, end int64, fn func(*node) bool) bool {
	if n == nil {
		return true
	}
	if n.ts > start {
		if !walkRange(n.left, start, end, fn) {
			return false
		}
	}
	if n.ts >= start && n.ts <= end {
		if !fn(n) {
			return false
		}
	}
	if n.ts < end {
		return walkRange(n.right, start, end, fn)
	}
	return true
}

// TreapCache is the treap-backed Cache.
type TreapCache struct {
	mu    sync.RWMutex
	roots map[model.Kind]*node
	byID  map[string]*model.Event

	maxEvents             int
	interpGapMs           int64
	nearestGapMs          int64
	tracker               *stats.Tracker
	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewTreapCache constructs a cache with configuration options.
func NewTreapCache(ctx context.Context, opts ...Option) *TreapCache {
	c := &TreapCache{
		roots:                 make(map[model.Kind]*node),
		byID:                  make(map[string]*model.Event),
		maxEvents:             defaultMaxEvents,
		interpGapMs:           defaultInterpGapMs,
		nearestGapMs:          defaultNearestGapMs,
		metricsUpdateInterval: defaultMetricsInterval,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.stopChan = make(chan struct{})
	c.startMetricsUpdater(ctx)

	return c
}

// startMetricsUpdater publishes cache sizes on a background ticker.
func (c *TreapCache) startMetricsUpdater(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopChan:
				return
			case <-ticker.C:
				c.updateMetrics()
			}
		}
	}()
}

func (c *TreapCache) updateMetrics() {
	c.mu.RLock()
	sizes := make(map[model.Kind]int, len(c.roots))
	for _, kind := range model.Kinds() {
		sizes[kind] = nsize(c.roots[kind])
	}
	c.mu.RUnlock()

	for kind, n := range sizes {
		metrics.UpdateCacheSize(string(kind), n)
	}
}

// Close gracefully shuts down background maintenance.
func (c *TreapCache) Close() error {
	select {
	case <-c.stopChan:
		// already closed
	default:
		close(c.stopChan)
	}
	c.wg.Wait()
	return nil
}

// Upsert implements Cache.Upsert with O(log n) expected time.
func (c *TreapCache) Upsert(_ context.Context, e *model.Event) (bool, error) {
	if e == nil {
		return false, model.ErrNilEvent
	}

	c.mu.Lock()
	if old, ok := c.byID[e.ID]; ok {
		if e.IngestTimestamp < old.IngestTimestamp {
			c.mu.Unlock()
			metrics.RecordEventDuplicate()
			return false, nil
		}
		c.roots[old.Kind] = deleteNode(c.roots[old.Kind], old.ID, old.VideoTimestamp)
	}
	cp := e.Clone()
	c.byID[cp.ID] = cp
	c.roots[cp.Kind] = insert(c.roots[cp.Kind], cp.ID, cp.VideoTimestamp)
	evicted := c.evictOverCap()
	c.mu.Unlock()

	metrics.RecordEventIngested(string(e.Kind))
	for i := 0; i < evicted; i++ {
		metrics.RecordEventEvicted()
	}
	return true, nil
}

// evictOverCap removes the oldest non-user events until the cache fits
// the cap. Events marked user_created are never auto-evicted. Must be
// called with c.mu held.
func (c *TreapCache) evictOverCap() int {
	evicted := 0
	for len(c.byID) > c.maxEvents {
		victim := c.oldestNonUser()
		if victim == nil {
			break
		}
		c.roots[victim.Kind] = deleteNode(c.roots[victim.Kind], victim.ID, victim.VideoTimestamp)
		delete(c.byID, victim.ID)
		evicted++
	}
	return evicted
}

// oldestNonUser scans each kind's timeline front for the globally
// earliest event that may be evicted. Must be called with c.mu held.
func (c *TreapCache) oldestNonUser() *model.Event {
	var victim *model.Event
	for _, root := range c.roots {
		walkRange(root, 0, 1<<62, func(n *node) bool {
			e := c.byID[n.id]
			if e == nil || e.UserCreated {
				return true // keep scanning this kind
			}
			if victim == nil || less(e.VideoTimestamp, e.ID, victim.VideoTimestamp, victim.ID) {
				victim = e
			}
			return false
		})
	}
	return victim
}

// At implements Cache.At.
func (c *TreapCache) At(_ context.Context, kind model.Kind, ts int64) (*model.Event, error) {
	start := time.Now()
	defer func() {
		metrics.RecordCacheQueryLatency(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	c.mu.RLock()
	out, interpolated := c.lookup(kind, ts)
	c.mu.RUnlock()

	if out == nil {
		c.miss()
		return nil, fmt.Errorf("%w: kind %s at %d", ErrNoEvent, kind, ts)
	}
	c.hit()
	if interpolated {
		metrics.RecordCacheInterpolated()
	}
	return out, nil
}

// lookup resolves the position against one kind's treap. Must be called
// with c.mu held for reading. The returned event is already a copy.
func (c *TreapCache) lookup(kind model.Kind, ts int64) (*model.Event, bool) {
	root := c.roots[kind]

	if n := exact(root, ts); n != nil {
		return c.byID[n.id].Clone(), false
	}

	var prev, next *model.Event
	if n := before(root, ts); n != nil {
		prev = c.byID[n.id]
	}
	if n := after(root, ts); n != nil {
		next = c.byID[n.id]
	}

	prevOK := prev != nil && ts-prev.VideoTimestamp <= c.interpGapMs
	nextOK := next != nil && next.VideoTimestamp-ts <= c.interpGapMs
	if prevOK && nextOK {
		return interpolate(prev, next, ts), true
	}

	// Single-sided fallback: closest neighbor inside the wider gap,
	// preferring the later event on an exact distance tie.
	var best *model.Event
	if prev != nil && ts-prev.VideoTimestamp <= c.nearestGapMs {
		best = prev
	}
	if next != nil && next.VideoTimestamp-ts <= c.nearestGapMs {
		if best == nil || next.VideoTimestamp-ts <= ts-best.VideoTimestamp {
			best = next
		}
	}
	if best == nil {
		return nil, false
	}
	return best.Clone(), false
}

// interpolate builds a synthetic event at ts between two neighbors of
// the same kind. Numeric fields (confidence, M.E.L. scores) move
// linearly; everything else copies from the temporally closer side,
// with an exact midpoint favoring the later event.
func interpolate(prev, next *model.Event, ts int64) *model.Event {
	span := next.VideoTimestamp - prev.VideoTimestamp
	ratio := 0.5
	if span > 0 {
		ratio = float64(ts-prev.VideoTimestamp) / float64(span)
	}

	base := prev
	if ratio >= 0.5 {
		base = next
	}

	out := base.Clone()
	out.VideoTimestamp = ts
	out.Confidence = lerp(prev.Confidence, next.Confidence, ratio)

	if out.Formation != nil && prev.Formation != nil && next.Formation != nil {
		out.Formation.MEL = lerpMEL(prev.Formation.MEL, next.Formation.MEL, ratio)
	}
	if out.MEL != nil && prev.MEL != nil && next.MEL != nil {
		out.MEL.Scores = lerpMEL(prev.MEL.Scores, next.MEL.Scores, ratio)
	}
	return out
}

func lerp(a, b, ratio float64) float64 {
	return a + (b-a)*ratio
}

func lerpMEL(a, b model.MELScores, ratio float64) model.MELScores {
	return model.MELScores{
		Making:     lerp(a.Making, b.Making, ratio),
		Efficiency: lerp(a.Efficiency, b.Efficiency, ratio),
		Logical:    lerp(a.Logical, b.Logical, ratio),
		Combined:   lerp(a.Combined, b.Combined, ratio),
	}
}

func (c *TreapCache) hit() {
	metrics.RecordCacheHit()
	if c.tracker != nil {
		c.tracker.CacheHit()
	}
}

func (c *TreapCache) miss() {
	metrics.RecordCacheMiss()
	if c.tracker != nil {
		c.tracker.CacheMiss()
	}
}

// Range implements Cache.Range.
func (c *TreapCache) Range(_ context.Context, kind model.Kind, start, end int64) ([]*model.Event, error) {
	if start > end {
		return nil, fmt.Errorf("%w: start %d > end %d", ErrInvalidRange, start, end)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*model.Event
	walkRange(c.roots[kind], start, end, func(n *node) bool {
		if e := c.byID[n.id]; e != nil {
			out = append(out, e.Clone())
		}
		return true
	})
	return out, nil
}

// Get implements Cache.Get.
func (c *TreapCache) Get(_ context.Context, id string) (*model.Event, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.Clone(), nil
}

// Delete implements Cache.Delete.
func (c *TreapCache) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.byID[id]
	if !ok {
		return nil
	}
	c.roots[e.Kind] = deleteNode(c.roots[e.Kind], e.ID, e.VideoTimestamp)
	delete(c.byID, id)
	return nil
}

// Acknowledge implements Cache.Acknowledge.
func (c *TreapCache) Acknowledge(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if e.Kind != model.KindCoachingAlert || e.Alert == nil {
		return fmt.Errorf("%w: %s", ErrNotAlert, id)
	}
	e.Alert.Acknowledged = true
	return nil
}

// Count implements Cache.Count.
func (c *TreapCache) Count(_ context.Context) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// CountKind implements Cache.CountKind.
func (c *TreapCache) CountKind(_ context.Context, kind model.Kind) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return nsize(c.roots[kind])
}
