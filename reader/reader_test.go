package reader

import (
	"testing"
	"time"

	"accessplane/cache"
	"accessplane/models"
	"accessplane/persist"
	"accessplane/store"
	"accessplane/tripswitch"
)

type stubPersister struct {
	loadErr error
	onLoad  func(target *store.Store) persist.LoadResult
}

func (s *stubPersister) PersistEvents([]models.Event, bool) error { return nil }

func (s *stubPersister) Load(target *store.Store, _ persist.LoadBoundary) (persist.LoadResult, error) {
	if s.loadErr != nil {
		return persist.LoadResult{}, s.loadErr
	}
	return s.onLoad(target), nil
}

func (s *stubPersister) Close() error { return nil }

func TestRefreshAppliesCachedEvents(t *testing.T) {
	s := store.New(true)
	c := cache.NewEventCache(10)
	p := &stubPersister{loadErr: models.ErrStorageEmpty}
	r := New(s, c, p, time.Hour, 0)

	e := models.NewEvent(models.ActionAdd, models.KindUser, models.Payload{User: "alice"}, time.Now().UTC(), nil)
	c.AppendBatch([]models.Event{e})

	r.RefreshOnce()
	if !s.Graph().HasLeaf("alice") {
		t.Fatal("expected alice applied to reader's local store")
	}
}

func TestRefreshFallsBackOnCacheMiss(t *testing.T) {
	s := store.New(true)
	c := cache.NewEventCache(10)
	called := false
	p := &stubPersister{onLoad: func(target *store.Store) persist.LoadResult {
		called = true
		_ = target.AddUser("bob")
		return persist.LoadResult{BoundaryEventID: "boundary-1"}
	}}
	r := New(s, c, p, time.Hour, 0)

	r.RefreshOnce()
	if !called {
		t.Fatal("expected fallback Load to be called on empty cache")
	}
	if !r.Store().Graph().HasLeaf("bob") {
		t.Fatal("expected bob applied via fallback load")
	}
	if r.Store() == s {
		t.Fatal("expected fallback to swap in a freshly loaded store rather than mutate the original")
	}
}

// TestRefreshFallbackRepeatsWithoutReapplyError guards the bug where a
// second fallback (cache miss after at least one successful cache-fed
// apply) replayed the full persisted log into the same, already
// non-empty store and failed with an AlreadyExists-class error on
// every cycle thereafter.
func TestRefreshFallbackRepeatsWithoutReapplyError(t *testing.T) {
	s := store.New(true)
	c := cache.NewEventCache(10)
	loads := 0
	p := &stubPersister{onLoad: func(target *store.Store) persist.LoadResult {
		loads++
		_ = target.AddUser("bob")
		return persist.LoadResult{BoundaryEventID: "boundary-1"}
	}}
	r := New(s, c, p, time.Hour, 0)

	r.RefreshOnce()
	r.RefreshOnce()
	r.RefreshOnce()

	if loads != 3 {
		t.Fatalf("expected 3 fallback loads, got %d", loads)
	}
	if r.consecutiveFail != 0 {
		t.Fatalf("expected no failures across repeated fallbacks, got %d consecutive", r.consecutiveFail)
	}
	if !r.Store().Graph().HasLeaf("bob") {
		t.Fatal("expected bob present in the current store after repeated fallback")
	}
}

func TestRefreshTripsSwitchAfterRepeatedFailure(t *testing.T) {
	tripswitch.Reset()
	defer tripswitch.Reset()

	s := store.New(true)
	c := cache.NewEventCache(10)
	p := &stubPersister{loadErr: models.NewError(models.CodeArgument, "boom")}
	r := New(s, c, p, time.Hour, 2)

	r.RefreshOnce()
	if tripswitch.Tripped() {
		t.Fatal("should not trip after a single failure")
	}
	r.RefreshOnce()
	if !tripswitch.Tripped() {
		t.Fatal("expected tripswitch engaged after 2 consecutive failures")
	}
}
