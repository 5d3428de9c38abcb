package validator

import (
	"testing"
	"time"

	"accessplane/models"
)

func addEvent(kind models.Kind, payload models.Payload) models.Event {
	return models.NewEvent(models.ActionAdd, kind, payload, time.Now().UTC(), nil)
}

func removeEvent(kind models.Kind, payload models.Payload) models.Event {
	return models.NewEvent(models.ActionRemove, kind, payload, time.Now().UTC(), nil)
}

func TestValidateRejectsUnknownGroupEdge(t *testing.T) {
	v := New()
	res := v.Validate(addEvent(models.KindUserToGroup, models.Payload{User: "alice", ToGroup: "eng"}))
	if res.Valid {
		t.Fatal("expected rejection: neither alice nor eng exist yet")
	}
}

func TestValidateCascadesUserRemoval(t *testing.T) {
	v := New()
	must := func(r Result) {
		t.Helper()
		if !r.Valid {
			t.Fatalf("expected valid, got reason=%q", r.Reason)
		}
	}

	must(v.Validate(addEvent(models.KindUser, models.Payload{User: "alice"})))
	must(v.Validate(addEvent(models.KindGroup, models.Payload{Group: "eng"})))
	must(v.Validate(addEvent(models.KindUserToGroup, models.Payload{User: "alice", ToGroup: "eng"})))

	res := v.Validate(removeEvent(models.KindUser, models.Payload{User: "alice"}))
	if !res.Valid {
		t.Fatalf("expected valid remove, got reason=%q", res.Reason)
	}
	if len(res.Prepended) != 1 {
		t.Fatalf("expected 1 prepended event, got %d: %+v", len(res.Prepended), res.Prepended)
	}
	if res.Prepended[0].Kind != models.KindUserToGroup {
		t.Fatalf("expected prepended UserToGroup remove, got %+v", res.Prepended[0])
	}

	if v.Shadow().Graph().HasLeaf("alice") {
		t.Fatal("expected alice removed from shadow store")
	}
}

func TestValidateRejectsCyclicGroupEdge(t *testing.T) {
	v := New()
	must := func(r Result) {
		t.Helper()
		if !r.Valid {
			t.Fatalf("expected valid, got reason=%q", r.Reason)
		}
	}
	must(v.Validate(addEvent(models.KindGroup, models.Payload{Group: "a"})))
	must(v.Validate(addEvent(models.KindGroup, models.Payload{Group: "b"})))
	must(v.Validate(addEvent(models.KindGroupToGroup, models.Payload{FromGroup: "a", ToGroup: "b"})))

	res := v.Validate(addEvent(models.KindGroupToGroup, models.Payload{FromGroup: "b", ToGroup: "a"}))
	if res.Valid {
		t.Fatal("expected cyclic edge to be rejected")
	}
}
