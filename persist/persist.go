// Package persist implements the Bulk Persister of §4.5: a transactional
// batch writer over a SQL backend (mattn/go-sqlite3, the teacher's own
// storage driver dependency) with a redundant, file-based append-only
// backup for primary-outage survival, plus the Persistent Reader that
// rehydrates a store by replaying persisted events up to a boundary.
package persist

import (
	"time"

	"accessplane/models"
	"accessplane/store"
)

// BoundaryMode selects how far Load replays persisted events (§4.5).
type BoundaryMode int

const (
	BoundaryLatest BoundaryMode = iota
	BoundaryUpToEventID
	BoundaryUpToTimestamp
)

// LoadBoundary bounds a Load call.
type LoadBoundary struct {
	Mode          BoundaryMode
	UpToEventID   string
	UpToTimestamp time.Time
}

// LoadResult reports how far a Load actually got.
type LoadResult struct {
	BoundaryEventID   string
	BoundaryTimestamp time.Time
}

// Persister is the Bulk Persister's interface (§4.5): transactional
// batch writes with duplicate-event idempotence, and replay-based load.
type Persister interface {
	PersistEvents(events []models.Event, ignoreDuplicates bool) error
	Load(target *store.Store, boundary LoadBoundary) (LoadResult, error)
	Close() error
}

// RangePersister is the subset of the Bulk Persister's backing storage
// the Split/Merge Orchestrator (§4.9) drives directly: reading events in
// id order filtered by hashCode range for CopyBatches, and deleting a
// moved range once the target has it for DeleteFromSource. Only the SQL
// backend implements it — the file-based redundant backup (§4.5) has no
// range-query surface and is never a split/merge source.
type RangePersister interface {
	Persister
	EventsInRange(lo, hi int32, afterEventID string, limit int) ([]models.Event, error)
	DeleteRange(lo, hi int32) error
}

// eventsInKindOrder groups events by Kind, preserving both the relative
// order of events within each Kind and the order Kinds were first seen,
// matching §4.5's "a single command per category is issued in order" for
// SQL backends.
func eventsInKindOrder(events []models.Event) (order []models.Kind, grouped map[models.Kind][]models.Event) {
	grouped = make(map[models.Kind][]models.Event)
	seen := make(map[models.Kind]bool)
	for _, e := range events {
		if !seen[e.Kind] {
			seen[e.Kind] = true
			order = append(order, e.Kind)
		}
		grouped[e.Kind] = append(grouped[e.Kind], e)
	}
	return order, grouped
}
