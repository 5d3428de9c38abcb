package models

import (
	"testing"
	"time"
)

func TestPayloadPrimaryKeySelectsFromSideForMappings(t *testing.T) {
	p := Payload{FromGroup: "eng", ToGroup: "platform"}
	if got := p.PrimaryKey(KindGroupToGroup); got != "eng" {
		t.Errorf("PrimaryKey(GroupToGroup) = %q, want %q", got, "eng")
	}

	up := Payload{User: "alice", ToGroup: "eng"}
	if got := up.PrimaryKey(KindUserToGroup); got != "alice" {
		t.Errorf("PrimaryKey(UserToGroup) = %q, want %q", got, "alice")
	}
}

func TestPayloadPrimaryKeyFallsBackToGroupField(t *testing.T) {
	p := Payload{Group: "eng"}
	if got := p.PrimaryKey(KindGroup); got != "eng" {
		t.Errorf("PrimaryKey(Group) = %q, want %q", got, "eng")
	}
}

func TestNewEventComputesHashFromPrimaryKey(t *testing.T) {
	now := time.Now().UTC()
	e := NewEvent(ActionAdd, KindUser, Payload{User: "alice"}, now, nil)

	want := FNV1aHash(DefaultStringifier("alice"))
	if e.HashCode != want {
		t.Errorf("HashCode = %d, want %d", e.HashCode, want)
	}
	if e.ID == "" {
		t.Error("NewEvent should assign a non-empty ID")
	}
	if !e.OccurredAt.Equal(now) {
		t.Errorf("OccurredAt = %v, want %v", e.OccurredAt, now)
	}
}

func TestKindPriorityOrdersUsersBeforeGroupsBeforeMappingsBeforeEntities(t *testing.T) {
	if !(KindPriority(KindUser) < KindPriority(KindGroup)) {
		t.Error("users must sort before groups")
	}
	if !(KindPriority(KindGroup) < KindPriority(KindUserToGroup)) {
		t.Error("groups must sort before mappings")
	}
	if !(KindPriority(KindGroupToEntity) < KindPriority(Kind("bogus"))) {
		t.Error("unknown kinds must sort last")
	}
}
