// Package validator implements the Event Validator of §4.3: given an
// incoming primary event, it checks referential validity against a
// shadow reference store and, for a primary-element Remove, synthesizes
// the ordered cascade of secondary Remove events that must precede it.
package validator

import (
	"accessplane/models"
	"accessplane/store"
)

// Result is the outcome of validating one incoming event.
type Result struct {
	// Valid is false when the event is rejected; Reason explains why.
	Valid  bool
	Reason string

	// Prepended holds the cascade of secondary Remove events (§4.2) that
	// must be buffered immediately before the primary event, in order.
	// Empty for every event except a primary-element Remove that still
	// has referencing mappings.
	Prepended []models.Event
}

// EventValidator holds a shadow Store that mirrors every event accepted
// so far, maintained single-threaded (no locks — §4.3) since the
// validator only ever runs on the writer's single buffering goroutine
// (§5).
type EventValidator struct {
	shadow *store.Store
}

// New constructs an EventValidator with an empty shadow store.
func New() *EventValidator {
	return &EventValidator{shadow: store.New(false)}
}

// Validate applies e to the shadow store. For a primary-element Remove,
// it first computes and applies the cascade of secondary Remove events,
// returning them in Result.Prepended so the Temporal Event Buffer can
// enqueue them ahead of the primary (§4.4). On any referential failure —
// applying to a non-existent vertex, a duplicate Add, a cyclic group
// edge — Validate returns Valid=false and leaves the shadow store
// unchanged for the rejected event (cascade events already applied
// before the failure, if any, are not rolled back, since a Remove
// cascade cannot itself fail referentially: every secondary event it
// generates is derived from mappings already present in the shadow
// store).
func (v *EventValidator) Validate(e models.Event) Result {
	if e.Action == models.ActionRemove && e.Kind.IsPrimary() {
		prepended := v.cascadeFor(e)
		for _, secondary := range prepended {
			if err := v.shadow.Apply(secondary); err != nil {
				return Result{Valid: false, Reason: err.Error()}
			}
		}
		if err := v.shadow.Apply(e); err != nil {
			return Result{Valid: false, Reason: err.Error()}
		}
		return Result{Valid: true, Prepended: prepended}
	}

	if err := v.shadow.Apply(e); err != nil {
		return Result{Valid: false, Reason: err.Error()}
	}
	return Result{Valid: true}
}

func (v *EventValidator) cascadeFor(e models.Event) []models.Event {
	if e.Kind == models.KindEntity {
		return v.shadow.CascadeForEntityRemoval(models.Entity{TypeName: e.Payload.EntityType, Name: e.Payload.Entity})
	}
	id := e.Payload.PrimaryKey(e.Kind)
	return v.shadow.CascadeForRemoval(e.Kind, id)
}

// Shadow exposes the underlying shadow store, primarily for tests that
// need to assert on post-validation state.
func (v *EventValidator) Shadow() *store.Store { return v.shadow }
