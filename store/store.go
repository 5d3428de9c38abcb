// Package store implements the Authorization Store of §4.2: the graph
// plus every mapping table (user/group ↔ component+level,
// user/group ↔ entityType+entity), with bidirectional indexes so both
// "what can X access" and "who can access Y" resolve without a scan.
//
// The lock discipline extends the graph's four-lock order (see
// graph.Graph) with three more, in this fixed global order so no two
// goroutines can acquire them in conflicting order:
//
//	leafVertices, nonLeafVertices, leafToNonLeafEdges, nonLeafToNonLeafEdges,
//	entityNamespace, componentMappings, entityMappings
package store

import (
	"fmt"
	"sync"

	"accessplane/graph"
	"accessplane/models"
)

// Store wraps a graph.Graph with the full permission model described in
// §3/§4.2. Set locked=false for the Event Validator's single-threaded
// shadow store (§4.3); in that mode no internal mutex is ever taken.
type Store struct {
	locked bool
	g      *graph.Graph

	muEntityNamespace sync.RWMutex
	entityTypes       map[string]struct{}
	entities          map[string]map[string]struct{} // entityType -> entity name set

	muComponentMappings sync.RWMutex
	userToComponent     map[models.User]map[models.ComponentGrant]struct{}
	componentToUser     map[models.ComponentGrant]map[models.User]struct{}
	groupToComponent    map[models.Group]map[models.ComponentGrant]struct{}
	componentToGroup    map[models.ComponentGrant]map[models.Group]struct{}

	muEntityMappings sync.RWMutex
	userToEntity     map[models.User]map[string]models.Entity
	entityToUser     map[string]map[models.User]struct{}
	groupToEntity    map[models.Group]map[string]models.Entity
	entityToGroup    map[string]map[models.Group]struct{}
}

// New constructs an empty Store.
func New(locked bool) *Store {
	return &Store{
		locked:           locked,
		g:                graph.New(locked),
		entityTypes:      make(map[string]struct{}),
		entities:         make(map[string]map[string]struct{}),
		userToComponent:  make(map[models.User]map[models.ComponentGrant]struct{}),
		componentToUser:  make(map[models.ComponentGrant]map[models.User]struct{}),
		groupToComponent: make(map[models.Group]map[models.ComponentGrant]struct{}),
		componentToGroup: make(map[models.ComponentGrant]map[models.Group]struct{}),
		userToEntity:     make(map[models.User]map[string]models.Entity),
		entityToUser:     make(map[string]map[models.User]struct{}),
		groupToEntity:    make(map[models.Group]map[string]models.Entity),
		entityToGroup:    make(map[string]map[models.Group]struct{}),
	}
}

// Graph exposes the underlying graph for read-only traversal by callers
// that need reachability beyond the query surface below (e.g. tests
// checking vertex presence after a replay).
func (s *Store) Graph() *graph.Graph { return s.g }

func (s *Store) rlock(mu *sync.RWMutex) {
	if s.locked {
		mu.RLock()
	}
}
func (s *Store) runlock(mu *sync.RWMutex) {
	if s.locked {
		mu.RUnlock()
	}
}
func (s *Store) lock(mu *sync.RWMutex) {
	if s.locked {
		mu.Lock()
	}
}
func (s *Store) unlock(mu *sync.RWMutex) {
	if s.locked {
		mu.Unlock()
	}
}

// --- Primary elements ---

func (s *Store) AddUser(user models.User) error { return s.g.AddLeaf(user) }
func (s *Store) AddGroup(group models.Group) error { return s.g.AddNonLeaf(group) }

func (s *Store) AddEntityType(name string) error {
	s.lock(&s.muEntityNamespace)
	defer s.unlock(&s.muEntityNamespace)
	if _, ok := s.entityTypes[name]; ok {
		return models.NewError(models.CodeAlreadyExists, fmt.Sprintf("entity type %q already exists", name))
	}
	s.entityTypes[name] = struct{}{}
	s.entities[name] = make(map[string]struct{})
	return nil
}

func (s *Store) AddEntity(entityType, name string) error {
	s.rlock(&s.muEntityNamespace)
	_, typeOK := s.entityTypes[entityType]
	s.runlock(&s.muEntityNamespace)
	if !typeOK {
		return models.NewError(models.CodeEntityTypeNotFound, "entity type not found", models.Attr("entityType", entityType))
	}

	s.lock(&s.muEntityNamespace)
	defer s.unlock(&s.muEntityNamespace)
	if _, ok := s.entities[entityType][name]; ok {
		return models.NewError(models.CodeAlreadyExists, fmt.Sprintf("entity %q already exists in %q", name, entityType))
	}
	s.entities[entityType][name] = struct{}{}
	return nil
}

// RemoveUser removes a user vertex. The caller must have already removed
// (or, under validator mode, queued) every mapping referencing the user —
// see CascadeForRemoval.
func (s *Store) RemoveUser(user models.User) error { return s.g.RemoveLeaf(user) }
func (s *Store) RemoveGroup(group models.Group) error { return s.g.RemoveNonLeaf(group) }

func (s *Store) RemoveEntityType(name string) error {
	s.lock(&s.muEntityNamespace)
	defer s.unlock(&s.muEntityNamespace)
	if _, ok := s.entityTypes[name]; !ok {
		return models.NewError(models.CodeEntityTypeNotFound, "entity type not found", models.Attr("entityType", name))
	}
	if len(s.entities[name]) > 0 {
		return models.NewError(models.CodeArgument, fmt.Sprintf("entity type %q still has entities", name))
	}
	delete(s.entityTypes, name)
	delete(s.entities, name)
	return nil
}

func (s *Store) RemoveEntity(entityType, name string) error {
	s.lock(&s.muEntityNamespace)
	defer s.unlock(&s.muEntityNamespace)
	if _, ok := s.entities[entityType][name]; !ok {
		return models.NewError(models.CodeEntityNotFound, "entity not found", models.Attr("entity", name))
	}
	delete(s.entities[entityType], name)
	return nil
}

// --- Group membership mappings (delegate straight to the graph) ---

func (s *Store) AddUserToGroupMapping(user models.User, group models.Group) error {
	return s.g.AddLeafToNonLeafEdge(user, group)
}
func (s *Store) RemoveUserToGroupMapping(user models.User, group models.Group) error {
	return s.g.RemoveLeafToNonLeafEdge(user, group)
}
func (s *Store) AddGroupToGroupMapping(from, to models.Group) error {
	return s.g.AddNonLeafToNonLeafEdge(from, to)
}
func (s *Store) RemoveGroupToGroupMapping(from, to models.Group) error {
	return s.g.RemoveNonLeafToNonLeafEdge(from, to)
}

// --- Component mappings ---

func (s *Store) AddUserToComponentMapping(user models.User, grant models.ComponentGrant) error {
	s.lock(&s.muComponentMappings)
	defer s.unlock(&s.muComponentMappings)
	if s.userToComponent[user] == nil {
		s.userToComponent[user] = make(map[models.ComponentGrant]struct{})
	}
	if _, ok := s.userToComponent[user][grant]; ok {
		return models.NewError(models.CodeAlreadyExists, "mapping already exists")
	}
	s.userToComponent[user][grant] = struct{}{}
	if s.componentToUser[grant] == nil {
		s.componentToUser[grant] = make(map[models.User]struct{})
	}
	s.componentToUser[grant][user] = struct{}{}
	return nil
}

func (s *Store) RemoveUserToComponentMapping(user models.User, grant models.ComponentGrant) error {
	s.lock(&s.muComponentMappings)
	defer s.unlock(&s.muComponentMappings)
	if _, ok := s.userToComponent[user][grant]; !ok {
		return models.NewError(models.CodeNotFound, "mapping not found")
	}
	delete(s.userToComponent[user], grant)
	delete(s.componentToUser[grant], user)
	return nil
}

func (s *Store) AddGroupToComponentMapping(group models.Group, grant models.ComponentGrant) error {
	s.lock(&s.muComponentMappings)
	defer s.unlock(&s.muComponentMappings)
	if s.groupToComponent[group] == nil {
		s.groupToComponent[group] = make(map[models.ComponentGrant]struct{})
	}
	if _, ok := s.groupToComponent[group][grant]; ok {
		return models.NewError(models.CodeAlreadyExists, "mapping already exists")
	}
	s.groupToComponent[group][grant] = struct{}{}
	if s.componentToGroup[grant] == nil {
		s.componentToGroup[grant] = make(map[models.Group]struct{})
	}
	s.componentToGroup[grant][group] = struct{}{}
	return nil
}

func (s *Store) RemoveGroupToComponentMapping(group models.Group, grant models.ComponentGrant) error {
	s.lock(&s.muComponentMappings)
	defer s.unlock(&s.muComponentMappings)
	if _, ok := s.groupToComponent[group][grant]; !ok {
		return models.NewError(models.CodeNotFound, "mapping not found")
	}
	delete(s.groupToComponent[group], grant)
	delete(s.componentToGroup[grant], group)
	return nil
}

// --- Entity mappings ---

func (s *Store) AddUserToEntityMapping(user models.User, entity models.Entity) error {
	s.lock(&s.muEntityMappings)
	defer s.unlock(&s.muEntityMappings)
	key := entity.Key()
	if s.userToEntity[user] == nil {
		s.userToEntity[user] = make(map[string]models.Entity)
	}
	if _, ok := s.userToEntity[user][key]; ok {
		return models.NewError(models.CodeAlreadyExists, "mapping already exists")
	}
	s.userToEntity[user][key] = entity
	if s.entityToUser[key] == nil {
		s.entityToUser[key] = make(map[models.User]struct{})
	}
	s.entityToUser[key][user] = struct{}{}
	return nil
}

func (s *Store) RemoveUserToEntityMapping(user models.User, entity models.Entity) error {
	s.lock(&s.muEntityMappings)
	defer s.unlock(&s.muEntityMappings)
	key := entity.Key()
	if _, ok := s.userToEntity[user][key]; !ok {
		return models.NewError(models.CodeNotFound, "mapping not found")
	}
	delete(s.userToEntity[user], key)
	delete(s.entityToUser[key], user)
	return nil
}

func (s *Store) AddGroupToEntityMapping(group models.Group, entity models.Entity) error {
	s.lock(&s.muEntityMappings)
	defer s.unlock(&s.muEntityMappings)
	key := entity.Key()
	if s.groupToEntity[group] == nil {
		s.groupToEntity[group] = make(map[string]models.Entity)
	}
	if _, ok := s.groupToEntity[group][key]; ok {
		return models.NewError(models.CodeAlreadyExists, "mapping already exists")
	}
	s.groupToEntity[group][key] = entity
	if s.entityToGroup[key] == nil {
		s.entityToGroup[key] = make(map[models.Group]struct{})
	}
	s.entityToGroup[key][group] = struct{}{}
	return nil
}

func (s *Store) RemoveGroupToEntityMapping(group models.Group, entity models.Entity) error {
	s.lock(&s.muEntityMappings)
	defer s.unlock(&s.muEntityMappings)
	key := entity.Key()
	if _, ok := s.groupToEntity[group][key]; !ok {
		return models.NewError(models.CodeNotFound, "mapping not found")
	}
	delete(s.groupToEntity[group], key)
	delete(s.entityToGroup[key], group)
	return nil
}

// --- Query surface ---

// GetUserToGroupMappings returns the groups a user belongs to. When
// includeIndirect is true, it also returns groups reachable transitively
// through group→group edges.
func (s *Store) GetUserToGroupMappings(user models.User, includeIndirect bool) []models.Group {
	if !includeIndirect {
		return s.g.DirectGroupsOfUser(user)
	}

	var out []models.Group
	s.g.Traverse(true, user, graph.Forward, func(id string, isLeaf bool) bool {
		if !isLeaf {
			out = append(out, id)
		}
		return true
	})
	return out
}

// HasAccessToComponent reports whether user (directly, or via group
// membership) holds the given component grant.
func (s *Store) HasAccessToComponent(user models.User, grant models.ComponentGrant) bool {
	s.rlock(&s.muComponentMappings)
	_, direct := s.userToComponent[user][grant]
	s.runlock(&s.muComponentMappings)
	if direct {
		return true
	}

	found := false
	s.g.Traverse(true, user, graph.Forward, func(id string, isLeaf bool) bool {
		if isLeaf {
			return true
		}
		s.rlock(&s.muComponentMappings)
		_, ok := s.groupToComponent[id][grant]
		s.runlock(&s.muComponentMappings)
		if ok {
			found = true
			return false
		}
		return true
	})
	return found
}

// HasAccessToEntity reports whether user (directly, or via group
// membership) holds a mapping to the given entity.
func (s *Store) HasAccessToEntity(user models.User, entity models.Entity) bool {
	key := entity.Key()
	s.rlock(&s.muEntityMappings)
	_, direct := s.userToEntity[user][key]
	s.runlock(&s.muEntityMappings)
	if direct {
		return true
	}

	found := false
	s.g.Traverse(true, user, graph.Forward, func(id string, isLeaf bool) bool {
		if isLeaf {
			return true
		}
		s.rlock(&s.muEntityMappings)
		_, ok := s.groupToEntity[id][key]
		s.runlock(&s.muEntityMappings)
		if ok {
			found = true
			return false
		}
		return true
	})
	return found
}

// GetAccessibleComponents returns every component grant reachable by
// user, whether direct or via any group membership.
func (s *Store) GetAccessibleComponents(user models.User) []models.ComponentGrant {
	seen := make(map[models.ComponentGrant]struct{})
	s.rlock(&s.muComponentMappings)
	for grant := range s.userToComponent[user] {
		seen[grant] = struct{}{}
	}
	s.runlock(&s.muComponentMappings)

	s.g.Traverse(true, user, graph.Forward, func(id string, isLeaf bool) bool {
		if isLeaf {
			return true
		}
		s.rlock(&s.muComponentMappings)
		for grant := range s.groupToComponent[id] {
			seen[grant] = struct{}{}
		}
		s.runlock(&s.muComponentMappings)
		return true
	})

	out := make([]models.ComponentGrant, 0, len(seen))
	for grant := range seen {
		out = append(out, grant)
	}
	return out
}

// GetAccessibleEntities returns every entity of entityType reachable by
// user, whether direct or via any group membership.
func (s *Store) GetAccessibleEntities(user models.User, entityType string) []models.Entity {
	seen := make(map[string]models.Entity)
	collect := func(m map[string]models.Entity) {
		for key, e := range m {
			if e.TypeName == entityType {
				seen[key] = e
			}
		}
	}

	s.rlock(&s.muEntityMappings)
	collect(s.userToEntity[user])
	s.runlock(&s.muEntityMappings)

	s.g.Traverse(true, user, graph.Forward, func(id string, isLeaf bool) bool {
		if isLeaf {
			return true
		}
		s.rlock(&s.muEntityMappings)
		collect(s.groupToEntity[id])
		s.runlock(&s.muEntityMappings)
		return true
	})

	out := make([]models.Entity, 0, len(seen))
	for _, e := range seen {
		out = append(out, e)
	}
	return out
}

// HasEntityType reports whether an entity type namespace exists.
func (s *Store) HasEntityType(name string) bool {
	s.rlock(&s.muEntityNamespace)
	defer s.runlock(&s.muEntityNamespace)
	_, ok := s.entityTypes[name]
	return ok
}

// HasEntity reports whether an entity exists within entityType.
func (s *Store) HasEntity(entityType, name string) bool {
	s.rlock(&s.muEntityNamespace)
	defer s.runlock(&s.muEntityNamespace)
	_, ok := s.entities[entityType][name]
	return ok
}
