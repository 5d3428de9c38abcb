package cache

import (
	"testing"

	"accessplane/models"
)

func mkEvent(id string) models.Event {
	return models.Event{ID: id, Action: models.ActionAdd, Kind: models.KindUser}
}

func TestEventCacheAppendAndGet(t *testing.T) {
	c := NewEventCache(3)
	c.AppendBatch([]models.Event{mkEvent("a"), mkEvent("b")})

	if got, err := c.Get("a"); err != nil || got.ID != "a" {
		t.Fatalf("Get(a) = %v, %v", got, err)
	}
	if _, err := c.Get("z"); err != models.ErrEventNotCached {
		t.Fatalf("Get(z) err = %v, want ErrEventNotCached", err)
	}
}

func TestEventCacheEvictsOldestFIFO(t *testing.T) {
	c := NewEventCache(2)
	c.AppendBatch([]models.Event{mkEvent("a"), mkEvent("b"), mkEvent("c")})

	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	if _, err := c.Get("a"); err != models.ErrEventNotCached {
		t.Fatalf("expected a to be evicted, err = %v", err)
	}
	if got, err := c.Get("c"); err != nil || got.ID != "c" {
		t.Fatalf("Get(c) = %v, %v", got, err)
	}
}

func TestEventCacheGetAllSince(t *testing.T) {
	c := NewEventCache(5)
	c.AppendBatch([]models.Event{mkEvent("a"), mkEvent("b"), mkEvent("c")})

	since, err := c.GetAllSince("a")
	if err != nil {
		t.Fatalf("GetAllSince(a) err = %v", err)
	}
	if len(since) != 2 || since[0].ID != "b" || since[1].ID != "c" {
		t.Fatalf("GetAllSince(a) = %+v", since)
	}

	all, err := c.GetAllSince("")
	if err != nil || len(all) != 3 {
		t.Fatalf("GetAllSince(\"\") = %+v, %v", all, err)
	}
}

func TestEventCacheEmptyCache(t *testing.T) {
	c := NewEventCache(2)
	if _, err := c.GetAllSince("anything"); err != models.ErrEventCacheEmpty {
		t.Fatalf("GetAllSince on empty cache err = %v, want ErrEventCacheEmpty", err)
	}
}
