package buffer

import (
	"sync"
	"testing"

	"accessplane/models"
)

type fakeDistributor struct {
	mu      sync.Mutex
	batches [][]models.Event
	failN   int
}

func (f *fakeDistributor) Distribute(events []models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failN > 0 {
		f.failN--
		return models.NewError(models.CodeArgument, "simulated distributor failure")
	}
	f.batches = append(f.batches, events)
	return nil
}

func TestBufferAndManualFlush(t *testing.T) {
	dist := &fakeDistributor{}
	b := New(NewManualStrategy(), dist, 0)
	defer b.Close()

	if err := b.Buffer(models.KindUser, models.ActionAdd, models.Payload{User: "alice"}); err != nil {
		t.Fatalf("Buffer: %v", err)
	}
	if err := b.Buffer(models.KindGroup, models.ActionAdd, models.Payload{Group: "eng"}); err != nil {
		t.Fatalf("Buffer: %v", err)
	}
	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Len())
	}

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if b.Len() != 0 {
		t.Fatalf("Len() after flush = %d, want 0", b.Len())
	}
	if len(dist.batches) != 1 || len(dist.batches[0]) != 2 {
		t.Fatalf("dist.batches = %+v", dist.batches)
	}
	// Users sort before groups by Kind priority.
	if dist.batches[0][0].Kind != models.KindUser {
		t.Fatalf("expected user event first, got %+v", dist.batches[0][0])
	}
}

func TestBufferRejectsInvalidEvent(t *testing.T) {
	dist := &fakeDistributor{}
	b := New(NewManualStrategy(), dist, 0)
	defer b.Close()

	err := b.Buffer(models.KindUserToGroup, models.ActionAdd, models.Payload{User: "ghost", ToGroup: "nowhere"})
	if err == nil {
		t.Fatal("expected rejection for mapping referencing nonexistent user/group")
	}
	if b.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after rejection", b.Len())
	}
}

func TestFlushRetainsEventsOnDistributorFailure(t *testing.T) {
	dist := &fakeDistributor{failN: 1}
	b := New(NewManualStrategy(), dist, 0)
	defer b.Close()

	_ = b.Buffer(models.KindUser, models.ActionAdd, models.Payload{User: "bob"})
	if err := b.Flush(); err == nil {
		t.Fatal("expected first flush to fail")
	}
	if b.Len() != 1 {
		t.Fatalf("Len() after failed flush = %d, want 1 (retained)", b.Len())
	}

	if err := b.Flush(); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	if b.Len() != 0 {
		t.Fatalf("Len() after successful retry = %d, want 0", b.Len())
	}
}
