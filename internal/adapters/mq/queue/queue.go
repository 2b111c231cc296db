// Package queue defines the contract for buffering events between the
// remote client and the sync tick.
//
// The queue is bounded: a full queue refuses ordinary arrivals, while a
// critical alert displaces the oldest low-priority entry so urgent
// coaching information always reaches the coordinator.
package queue

import (
	"context"
	"sync"

	"github.com/analyzemyteam/defsync/internal/domain/model"
	"github.com/analyzemyteam/defsync/pkg/metrics"
)

// defaultCapacity bounds the queue when no option overrides it.
const defaultCapacity = 1000

// Queue provides non-blocking enqueue and batched drain semantics.
type Queue interface {
	// Enqueue adds an event. Returns false if the queue is full and the
	// event could not be admitted (it was dropped, not blocked).
	Enqueue(ctx context.Context, e *model.Event) bool

	// Drain removes and returns up to max events in arrival order.
	Drain(ctx context.Context, max int) []*model.Event

	// Len returns the current number of queued events.
	Len(ctx context.Context) int

	// Close shuts down the queue. After closing, Enqueue refuses all
	// events; Drain still empties what is left.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue with a mutex-guarded slice so entries
// can be displaced in place, which a channel cannot do.
type InMemoryQueue struct {
	mu       sync.Mutex
	items    []*model.Event
	capacity int
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultCapacity,
	}

	for _, opt := range opts {
		opt(q)
	}

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueDepth(0)

	return q
}

// Enqueue adds an event to the queue.
func (q *InMemoryQueue) Enqueue(_ context.Context, e *model.Event) bool {
	if e == nil {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		metrics.RecordEventDropped("queue_closed")
		return false
	}

	if len(q.items) >= q.capacity {
		if e.Priority() < model.CriticalAlertPriority {
			metrics.RecordEventDropped("queue_full")
			return false
		}
		if !q.displaceLocked() {
			// Every queued entry is itself critical.
			metrics.RecordEventDropped("queue_full")
			return false
		}
	}

	q.items = append(q.items, e)
	metrics.RecordQueueEnqueue()
	metrics.UpdateQueueDepth(len(q.items))
	return true
}

// displaceLocked removes the oldest low-priority entry to make room.
// Must be called with q.mu held.
func (q *InMemoryQueue) displaceLocked() bool {
	for i, item := range q.items {
		if item.Priority() < model.CriticalAlertPriority {
			q.items = append(q.items[:i], q.items[i+1:]...)
			metrics.RecordQueueDisplaced()
			return true
		}
	}
	return false
}

// Drain removes and returns up to max events in arrival order.
func (q *InMemoryQueue) Drain(_ context.Context, max int) []*model.Event {
	if max <= 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	if n == 0 {
		return nil
	}
	if n > max {
		n = max
	}

	out := make([]*model.Event, n)
	copy(out, q.items[:n])
	rest := copy(q.items, q.items[n:])
	for i := rest; i < len(q.items); i++ {
		q.items[i] = nil
	}
	q.items = q.items[:rest]

	for range out {
		metrics.RecordQueueDequeue()
	}
	metrics.UpdateQueueDepth(len(q.items))
	return out
}

// Len returns the current number of queued events.
func (q *InMemoryQueue) Len(_ context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
