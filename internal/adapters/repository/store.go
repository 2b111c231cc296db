// Package repository defines the event cache interface and errors.
package repository

import (
	"context"

	"github.com/analyzemyteam/defsync/internal/domain/model"
)

// Cache provides read/write access to the synchronized event state.
// It is the authoritative in-memory view; persistence is best effort
// and layered elsewhere.
type Cache interface {
	// Upsert inserts or replaces an event by id. A replace only happens
	// when the incoming ingest timestamp is not older than the cached
	// one (last write wins). Returns true if the cache changed.
	Upsert(ctx context.Context, e *model.Event) (bool, error)

	// At resolves the event of a kind for a video position: an exact
	// match, an interpolation between neighbors inside the
	// interpolation gap, or the closest single neighbor inside the
	// nearest gap. Returns ErrNoEvent on a miss.
	At(ctx context.Context, kind model.Kind, ts int64) (*model.Event, error)

	// Range returns events of a kind with video timestamps in
	// [start, end], ascending.
	Range(ctx context.Context, kind model.Kind, start, end int64) ([]*model.Event, error)

	// Get returns the cached event by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*model.Event, error)

	// Delete removes an event by id. Missing ids are not an error.
	Delete(ctx context.Context, id string) error

	// Acknowledge flips the acknowledged flag of a cached alert.
	Acknowledge(ctx context.Context, id string) error

	// Count returns the number of cached events across all kinds.
	Count(ctx context.Context) int

	// CountKind returns the number of cached events of one kind.
	CountKind(ctx context.Context, kind model.Kind) int

	// Close stops background maintenance.
	Close() error
}
