package store

import (
	"fmt"
	"time"

	"accessplane/models"
)

// CascadeForRemoval enumerates the mapping-removal events that must
// precede removing a primary element, per §4.2's cascading removal
// policy. It does not mutate the store — the Event Validator (§4.3)
// calls this against its shadow store to build the prepend sequence; the
// live store applies the returned events (plus the primary) in order via
// Apply.
func (s *Store) CascadeForRemoval(kind models.Kind, id string) []models.Event {
	now := time.Now().UTC()
	var out []models.Event

	add := func(k models.Kind, payload models.Payload) {
		out = append(out, models.NewEvent(models.ActionRemove, k, payload, now, nil))
	}

	switch kind {
	case models.KindUser:
		user := models.User(id)
		for _, grp := range s.GetUserToGroupMappings(user, false) {
			add(models.KindUserToGroup, models.Payload{User: user, ToGroup: grp})
		}
		s.rlock(&s.muComponentMappings)
		for grant := range s.userToComponent[user] {
			add(models.KindUserToComponent, models.Payload{User: user, Component: grant.Component, Level: grant.Level})
		}
		s.runlock(&s.muComponentMappings)
		s.rlock(&s.muEntityMappings)
		for _, e := range s.userToEntity[user] {
			add(models.KindUserToEntity, models.Payload{User: user, EntityType: e.TypeName, Entity: e.Name})
		}
		s.runlock(&s.muEntityMappings)

	case models.KindGroup:
		group := models.Group(id)
		for _, member := range s.g.GetLeafReverseEdges(group) {
			add(models.KindUserToGroup, models.Payload{User: member, ToGroup: group})
		}
		for _, child := range s.g.GetNonLeafReverseEdges(group) {
			add(models.KindGroupToGroup, models.Payload{FromGroup: child, ToGroup: group})
		}
		for _, parent := range s.g.GetNonLeafForwardEdges(group) {
			add(models.KindGroupToGroup, models.Payload{FromGroup: group, ToGroup: parent})
		}
		s.rlock(&s.muComponentMappings)
		for grant := range s.groupToComponent[group] {
			add(models.KindGroupToComponent, models.Payload{Group: group, Component: grant.Component, Level: grant.Level})
		}
		s.runlock(&s.muComponentMappings)
		s.rlock(&s.muEntityMappings)
		for _, e := range s.groupToEntity[group] {
			add(models.KindGroupToEntity, models.Payload{Group: group, EntityType: e.TypeName, Entity: e.Name})
		}
		s.runlock(&s.muEntityMappings)

	case models.KindEntityType:
		s.rlock(&s.muEntityNamespace)
		names := make([]string, 0, len(s.entities[id]))
		for name := range s.entities[id] {
			names = append(names, name)
		}
		s.runlock(&s.muEntityNamespace)
		for _, name := range names {
			entity := models.Entity{TypeName: id, Name: name}
			out = append(out, s.CascadeForEntityRemoval(entity)...)
			add(models.KindEntity, models.Payload{EntityType: id, Entity: name})
		}

	case models.KindEntity:
		// Entity identity is a (type, name) pair, not a single opaque
		// string; callers removing a single entity should call
		// CascadeForEntityRemoval directly instead of through this
		// id-keyed dispatcher.
	}

	return out
}

// CascadeForEntityRemoval is the entity-scoped counterpart of
// CascadeForRemoval, since an Entity's identity is a (type, name) pair
// rather than a single opaque string.
func (s *Store) CascadeForEntityRemoval(entity models.Entity) []models.Event {
	now := time.Now().UTC()
	var out []models.Event
	key := entity.Key()

	s.rlock(&s.muEntityMappings)
	users := make([]models.User, 0, len(s.entityToUser[key]))
	for u := range s.entityToUser[key] {
		users = append(users, u)
	}
	groups := make([]models.Group, 0, len(s.entityToGroup[key]))
	for g := range s.entityToGroup[key] {
		groups = append(groups, g)
	}
	s.runlock(&s.muEntityMappings)

	for _, u := range users {
		out = append(out, models.NewEvent(models.ActionRemove, models.KindUserToEntity,
			models.Payload{User: u, EntityType: entity.TypeName, Entity: entity.Name}, now, nil))
	}
	for _, g := range groups {
		out = append(out, models.NewEvent(models.ActionRemove, models.KindGroupToEntity,
			models.Payload{Group: g, EntityType: entity.TypeName, Entity: entity.Name}, now, nil))
	}
	return out
}

// Apply applies a single event to the store, dispatching by Kind and
// Action. This is the non-validating fast path used by the reader
// refresh loop (§4.7) and to replay an already-validated, already-ordered
// batch (cascade events followed by the primary event).
func (s *Store) Apply(e models.Event) error {
	p := e.Payload
	switch e.Kind {
	case models.KindUser:
		if e.Action == models.ActionAdd {
			return s.AddUser(p.User)
		}
		return s.RemoveUser(p.User)

	case models.KindGroup:
		if e.Action == models.ActionAdd {
			return s.AddGroup(p.Group)
		}
		return s.RemoveGroup(p.Group)

	case models.KindEntityType:
		if e.Action == models.ActionAdd {
			return s.AddEntityType(p.EntityType)
		}
		return s.RemoveEntityType(p.EntityType)

	case models.KindEntity:
		if e.Action == models.ActionAdd {
			return s.AddEntity(p.EntityType, p.Entity)
		}
		return s.RemoveEntity(p.EntityType, p.Entity)

	case models.KindUserToGroup:
		if e.Action == models.ActionAdd {
			return s.AddUserToGroupMapping(p.User, p.ToGroup)
		}
		return s.RemoveUserToGroupMapping(p.User, p.ToGroup)

	case models.KindGroupToGroup:
		if e.Action == models.ActionAdd {
			return s.AddGroupToGroupMapping(p.FromGroup, p.ToGroup)
		}
		return s.RemoveGroupToGroupMapping(p.FromGroup, p.ToGroup)

	case models.KindUserToComponent:
		grant := models.ComponentGrant{Component: p.Component, Level: p.Level}
		if e.Action == models.ActionAdd {
			return s.AddUserToComponentMapping(p.User, grant)
		}
		return s.RemoveUserToComponentMapping(p.User, grant)

	case models.KindGroupToComponent:
		grant := models.ComponentGrant{Component: p.Component, Level: p.Level}
		if e.Action == models.ActionAdd {
			return s.AddGroupToComponentMapping(p.Group, grant)
		}
		return s.RemoveGroupToComponentMapping(p.Group, grant)

	case models.KindUserToEntity:
		entity := models.Entity{TypeName: p.EntityType, Name: p.Entity}
		if e.Action == models.ActionAdd {
			return s.AddUserToEntityMapping(p.User, entity)
		}
		return s.RemoveUserToEntityMapping(p.User, entity)

	case models.KindGroupToEntity:
		entity := models.Entity{TypeName: p.EntityType, Name: p.Entity}
		if e.Action == models.ActionAdd {
			return s.AddGroupToEntityMapping(p.Group, entity)
		}
		return s.RemoveGroupToEntityMapping(p.Group, entity)

	default:
		return models.NewError(models.CodeArgument, fmt.Sprintf("unknown event kind %q", e.Kind))
	}
}
