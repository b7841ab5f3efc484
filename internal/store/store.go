package store

import (
	"context"
)

// Store is the persistence API shared by the dispatch engine, the background
// loops, and the command surface.
//
// Readers get transient copies; concurrent mutators may change the record
// between two reads, so callers must re-fetch at the start of each operation
// rather than cache across ticks.
type Store interface {
	// Entities returns a copy of the primary record.
	Entities(ctx context.Context) (Entities, error)
	// MutateEntities runs fn inside the record's read-modify-write cycle and
	// persists the result. If fn returns an error nothing is written.
	MutateEntities(ctx context.Context, fn func(*Entities) error) error

	PendingDeletions(ctx context.Context) ([]PendingDeletion, error)
	AppendPending(ctx context.Context, p PendingDeletion) error
	// RemovePending drops the records matching the given keys. Keys with no
	// matching record are ignored, so a repeated sweep is a no-op.
	RemovePending(ctx context.Context, keys []DeletionKey) error

	Stats(ctx context.Context) (Stats, error)
	// AddStats adds the delta to the persisted counters.
	AddStats(ctx context.Context, delta Stats) error

	// FirstRun reports true exactly once over the store's lifetime, persisting
	// the marker as a side effect.
	FirstRun(ctx context.Context) (bool, error)

	Close() error
}
