package persist

import (
	"sync"
	"testing"

	"accessplane/models"
	"accessplane/store"
)

// fakePersister is an in-memory Persister used to exercise
// RedundantPersister's failover logic without a live sqlite handle.
type fakePersister struct {
	mu     sync.Mutex
	events []models.Event
	fail   bool
}

func (f *fakePersister) PersistEvents(events []models.Event, _ bool) error {
	if f.fail {
		return models.NewError(models.CodeArgument, "simulated primary failure")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, events...)
	return nil
}

func (f *fakePersister) Load(target *store.Store, _ LoadBoundary) (LoadResult, error) {
	return LoadResult{}, models.ErrStorageEmpty
}

func (f *fakePersister) Close() error { return nil }

func TestRedundantPersisterFallsBackOnPrimaryFailure(t *testing.T) {
	dir := t.TempDir()
	backup, _ := NewFileBackupPersister(dir)
	primary := &fakePersister{fail: true}
	r := NewRedundantPersister(primary, backup)

	e := sampleEvent("1", models.KindUser, models.Payload{User: "alice"})
	if err := r.PersistEvents([]models.Event{e}, false); err != nil {
		t.Fatalf("PersistEvents: %v", err)
	}
	if !r.Degraded() {
		t.Fatal("expected wrapper to be degraded after primary failure")
	}

	drained, _, err := backup.Drain()
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(drained) != 1 || drained[0].ID != "1" {
		t.Fatalf("expected event to land in backup, got %+v", drained)
	}
}

func TestRedundantPersisterRecoverDrainsBackup(t *testing.T) {
	dir := t.TempDir()
	backup, _ := NewFileBackupPersister(dir)
	primary := &fakePersister{fail: true}
	r := NewRedundantPersister(primary, backup)

	e := sampleEvent("1", models.KindUser, models.Payload{User: "alice"})
	_ = r.PersistEvents([]models.Event{e}, false)

	primary.fail = false
	if err := r.Recover(); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if r.Degraded() {
		t.Fatal("expected wrapper to no longer be degraded")
	}
	if len(primary.events) != 1 || primary.events[0].ID != "1" {
		t.Fatalf("expected drained event in primary, got %+v", primary.events)
	}
}

// flakyPersister lets the probe write (nil events, from Recover's first
// PersistEvents call) succeed while the actual drain-into-primary write
// (non-empty events) still fails, so tests can exercise the window
// between a successful Drain and a failed primary write.
type flakyPersister struct {
	mu        sync.Mutex
	events    []models.Event
	failDrain bool
}

func (f *flakyPersister) PersistEvents(events []models.Event, _ bool) error {
	if len(events) == 0 {
		return nil
	}
	if f.failDrain {
		return models.NewError(models.CodeArgument, "simulated drain-into-primary failure")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, events...)
	return nil
}

func (f *flakyPersister) Load(target *store.Store, _ LoadBoundary) (LoadResult, error) {
	return LoadResult{}, models.ErrStorageEmpty
}

func (f *flakyPersister) Close() error { return nil }

// TestRedundantPersisterRecoverRetriesWithoutLosingEventsOnPrimaryFailure
// guards the bug where the backup log was truncated before the
// drained-into-primary write was confirmed: if that write fails (the
// primary answers the health probe but then rejects the actual batch),
// the queued events must still be sitting in the backup log afterward,
// not lost, and a later successful Recover must still find and drain
// them.
func TestRedundantPersisterRecoverRetriesWithoutLosingEventsOnPrimaryFailure(t *testing.T) {
	dir := t.TempDir()
	backup, _ := NewFileBackupPersister(dir)
	primary := &flakyPersister{failDrain: true}
	r := NewRedundantPersister(primary, backup)
	r.degraded.Store(true)

	e := sampleEvent("1", models.KindUser, models.Payload{User: "alice"})
	if err := backup.PersistEvents([]models.Event{e}, false); err != nil {
		t.Fatalf("seeding backup: %v", err)
	}

	if err := r.Recover(); err == nil {
		t.Fatal("expected Recover to fail when the drain-into-primary write fails")
	}
	if !r.Degraded() {
		t.Fatal("expected wrapper to remain degraded after a failed Recover")
	}

	drained, _, err := backup.Drain()
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(drained) != 1 || drained[0].ID != "1" {
		t.Fatalf("expected event still queued in backup after failed recover, got %+v", drained)
	}

	primary.failDrain = false
	if err := r.Recover(); err != nil {
		t.Fatalf("second Recover: %v", err)
	}
	if r.Degraded() {
		t.Fatal("expected wrapper to no longer be degraded")
	}
	if len(primary.events) != 1 || primary.events[0].ID != "1" {
		t.Fatalf("expected event to reach primary on retry, got %+v", primary.events)
	}
}
