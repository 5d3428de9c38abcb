package persist

import (
	"sync"
	"sync/atomic"

	"accessplane/logger"
	"accessplane/models"
	"accessplane/store"
)

// RedundantPersister wraps a primary Persister and a FileBackupPersister
// secondary (§4.5). Writes go to the primary; on primary failure they
// fall back to the backup log. Once the primary is observed healthy
// again, queued backup events are drained into it, in order, before new
// events are accepted onto the primary path again.
type RedundantPersister struct {
	primary Persister
	backup  *FileBackupPersister

	mu        sync.Mutex
	degraded  atomic.Bool
}

// NewRedundantPersister constructs the wrapper described above.
func NewRedundantPersister(primary Persister, backup *FileBackupPersister) *RedundantPersister {
	return &RedundantPersister{primary: primary, backup: backup}
}

// PersistEvents writes to the primary. On failure it falls back to the
// backup log and marks the wrapper degraded so future calls skip the
// primary attempt until Recover succeeds.
func (r *RedundantPersister) PersistEvents(events []models.Event, ignoreDuplicates bool) error {
	// Backup writes hold r.mu so none can land between Recover's drain
	// snapshot and its clearing of the degraded flag.
	if r.degraded.Load() {
		r.mu.Lock()
		if r.degraded.Load() {
			defer r.mu.Unlock()
			return r.backup.PersistEvents(events, ignoreDuplicates)
		}
		r.mu.Unlock()
	}

	if err := r.primary.PersistEvents(events, ignoreDuplicates); err != nil {
		logger.Warn("[RedundantPersister] primary write failed, falling back to backup: %v", err)
		r.mu.Lock()
		defer r.mu.Unlock()
		r.degraded.Store(true)
		return r.backup.PersistEvents(events, ignoreDuplicates)
	}
	return nil
}

// Load delegates to the primary, since the backup log is not a
// long-term query surface (see FileBackupPersister.Load).
func (r *RedundantPersister) Load(target *store.Store, boundary LoadBoundary) (LoadResult, error) {
	return r.primary.Load(target, boundary)
}

// Recover probes the primary with an empty write; on success, it drains
// the backup log into the primary in order (read, write, delete — §4.5)
// before clearing the degraded flag. The backup log's drained prefix is
// only removed (AckDrain) after the primary write has returned
// successfully, never before: if the primary write fails, or the
// process dies in between, the events are still sitting in the backup
// log untouched and Recover will pick them up again next attempt —
// ignoreDuplicates=true on the primary write makes that retry
// idempotent. New events are not accepted onto the primary path again
// until the drain completes, so events cannot be reordered relative to
// what is still queued in the backup.
func (r *RedundantPersister) Recover() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.degraded.Load() {
		return nil
	}
	if err := r.primary.PersistEvents(nil, true); err != nil {
		return models.Wrap(models.CodeServiceUnavailable, err, "primary still unavailable")
	}

	queued, offset, err := r.backup.Drain()
	if err != nil {
		return err
	}
	if len(queued) > 0 {
		if err := r.primary.PersistEvents(queued, true); err != nil {
			return models.Wrap(models.CodeServiceUnavailable, err, "failed to drain backup into recovered primary")
		}
		if err := r.backup.AckDrain(offset); err != nil {
			return models.Wrap(models.CodeServiceUnavailable, err, "persisted drained events but failed to trim backup log")
		}
		logger.Info("[RedundantPersister] drained %d backlogged events into recovered primary", len(queued))
	}

	r.degraded.Store(false)
	return nil
}

// Degraded reports whether the wrapper is currently writing to the
// backup path instead of the primary.
func (r *RedundantPersister) Degraded() bool {
	return r.degraded.Load()
}

// Close closes both the primary and the backup.
func (r *RedundantPersister) Close() error {
	if err := r.primary.Close(); err != nil {
		return err
	}
	return r.backup.Close()
}
