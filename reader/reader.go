// Package reader implements the Reader Refresh Loop of §4.7: a single
// goroutine per reader that keeps a local Authorization Store current by
// pulling from the Event Cache, falling back to the Persistent Reader on
// a cache miss, and consulting the process-wide tripswitch latch before
// serving any query.
package reader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"accessplane/cache"
	"accessplane/logger"
	"accessplane/models"
	"accessplane/persist"
	"accessplane/store"
	"accessplane/tripswitch"
)

// Reader owns a local Store kept current by a single background
// goroutine (§5: "readers are single-goroutine for refresh but serve
// queries from any goroutine" — the Store's own lock discipline, §4.1,
// §4.2, makes concurrent querying safe while Refresh runs).
//
// The store is held behind an atomic pointer rather than a fixed field:
// a Persistent Reader fallback (§4.7) replays the full persisted log
// from scratch, so it must land in a fresh store rather than be
// re-applied on top of one that may already hold events from an
// earlier cache-fed refresh — re-applying an Add a second time fails
// with AlreadyExists and would wedge the loop permanently. The fallback
// builds the replacement store and swaps the pointer only once Load
// has fully succeeded; concurrent queriers reading via Store() always
// see either the old, fully-consistent store or the new one, never a
// partially-loaded one.
type Reader struct {
	storeRef atomic.Pointer[store.Store]
	cache    *cache.EventCache
	pers     persist.Persister

	mu                 sync.RWMutex
	lastAppliedEventID string

	tick            time.Duration
	consecutiveFail int
	tripAfter       int

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Reader. tick is the refresh period; tripAfter bounds
// how many consecutive refresh failures trip the process-wide
// tripswitch (0 disables that behavior).
func New(s *store.Store, c *cache.EventCache, p persist.Persister, tick time.Duration, tripAfter int) *Reader {
	r := &Reader{cache: c, pers: p, tick: tick, tripAfter: tripAfter}
	r.storeRef.Store(s)
	return r
}

// Store exposes the reader's current local store for queries. The
// returned pointer may change across a fallbackLoad; callers should
// call Store() again rather than cache the result across refresh
// cycles.
func (r *Reader) Store() *store.Store { return r.storeRef.Load() }

// Start launches the refresh goroutine. Calling Start twice without an
// intervening Stop is a no-op.
func (r *Reader) Start(ctx context.Context) {
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.RefreshOnce()
			}
		}
	}()
}

// Stop halts the refresh goroutine and waits for it to exit.
func (r *Reader) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.cancel = nil
}

// RefreshOnce performs a single refresh cycle: pull newly cached events
// since lastAppliedEventID and apply them through the store's
// non-validating fast path, in order. On a cache miss it falls back to
// Persistent Reader's Load(upToLatest) and resets lastAppliedEventID to
// the boundary id Load returns. On-demand callers (query-triggered
// refresh, §4.7) may call this directly instead of waiting for the
// ticker.
func (r *Reader) RefreshOnce() {
	r.mu.RLock()
	since := r.lastAppliedEventID
	r.mu.RUnlock()

	if since == "" && r.cache.Len() == 0 {
		// Bootstrap: nothing applied yet and the cache itself has never
		// been populated, so there is no cache cursor to resume from.
		r.fallbackLoad()
		return
	}

	events, err := r.cache.GetAllSince(since)
	if err != nil {
		if errors.Is(err, models.ErrEventNotCached) || errors.Is(err, models.ErrEventCacheEmpty) {
			r.fallbackLoad()
			return
		}
		r.onFailure(err)
		return
	}

	cur := r.Store()
	for _, e := range events {
		if err := cur.Apply(e); err != nil {
			logger.Warn("[Reader] failed to apply cached event %s: %v", e.ID, err)
			continue
		}
		r.mu.Lock()
		r.lastAppliedEventID = e.ID
		r.mu.Unlock()
	}
	r.consecutiveFail = 0
}

// fallbackLoad replays the persisted log into a freshly constructed
// store and, only on success, publishes it as the reader's current
// store. SQLitePersister.Load (and any other Persister) always replays
// from the start of the log, so reusing the live store here would
// re-apply events it already holds and fail with AlreadyExists/NotFound
// on the second and subsequent fallbacks (§8 reader convergence,
// literal scenario #4).
func (r *Reader) fallbackLoad() {
	fresh := store.New(true)
	result, err := r.pers.Load(fresh, persist.LoadBoundary{Mode: persist.BoundaryLatest})
	if err != nil {
		if errors.Is(err, models.ErrStorageEmpty) {
			r.consecutiveFail = 0
			return
		}
		r.onFailure(err)
		return
	}
	r.storeRef.Store(fresh)
	r.mu.Lock()
	r.lastAppliedEventID = result.BoundaryEventID
	r.mu.Unlock()
	r.consecutiveFail = 0
}

func (r *Reader) onFailure(err error) {
	logger.Error("[Reader] refresh failed: %v", err)
	r.consecutiveFail++
	if r.tripAfter > 0 && r.consecutiveFail >= r.tripAfter {
		tripswitch.Trip("reader refresh loop: repeated failure")
	}
}

// Query is a guard every externally facing query/write entry point
// should call first: once the tripswitch is engaged, every such entry
// point fails fast with ServiceUnavailable (§4.7) until the process
// restarts.
func Query[T any](fn func() (T, error)) (T, error) {
	var zero T
	if tripswitch.Tripped() {
		return zero, models.ErrServiceUnavailable
	}
	return fn()
}
