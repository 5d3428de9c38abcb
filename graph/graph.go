// Package graph implements the directed permission graph of §4.1: a
// bipartite DAG of leaf vertices (users) and non-leaf vertices (groups),
// connected by leaf→non-leaf and non-leaf→non-leaf edges.
//
// Locking follows the sharded lock manager the teacher built for its
// entity repository (storage/binary/locks_sharded.go in the retrieval
// pack): one RWMutex per logical resource, always acquired in a fixed
// global order so no caller can deadlock against another. Here the
// resources are the four vertex/edge sets named in §4.1 rather than
// per-entity shards, since the graph's working set (groups, not
// individual users) is small enough that per-set locks already give
// good concurrency.
package graph

import (
	"fmt"
	"sync"

	"accessplane/models"
)

// Direction selects which edge set Traverse walks.
type Direction int

const (
	// Forward walks leaf→non-leaf then non-leaf→non-leaf edges (user up
	// through its groups, group up through its parent groups).
	Forward Direction = iota
	// Reverse walks the reverse indexes (group down to member users and
	// child groups).
	Reverse
)

// Graph is the directed permission graph described in §4.1 and §3.
//
// The four locks below are always acquired in this order:
// leafVertices, nonLeafVertices, leafToNonLeafEdges, nonLeafToNonLeafEdges.
// Every exported method that needs more than one lock acquires them in
// that order and releases in the reverse order.
type Graph struct {
	locked bool // false under single-threaded validator mode (§4.3)

	muLeafVertices sync.RWMutex
	leafVertices   map[models.User]struct{}

	muNonLeafVertices sync.RWMutex
	nonLeafVertices   map[models.Group]struct{}

	muLeafToNonLeafEdges sync.RWMutex
	leafToNonLeaf        map[models.User]map[models.Group]struct{}
	nonLeafToLeafRev     map[models.Group]map[models.User]struct{}

	muNonLeafToNonLeafEdges sync.RWMutex
	nonLeafToNonLeaf        map[models.Group]map[models.Group]struct{}
	nonLeafToNonLeafRev     map[models.Group]map[models.Group]struct{}
}

// New constructs an empty Graph. When locked is false, the returned
// Graph performs no internal synchronization at all, matching the
// Event Validator's single-threaded shadow-store requirement (§4.3).
func New(locked bool) *Graph {
	return &Graph{
		locked:              locked,
		leafVertices:        make(map[models.User]struct{}),
		nonLeafVertices:     make(map[models.Group]struct{}),
		leafToNonLeaf:       make(map[models.User]map[models.Group]struct{}),
		nonLeafToLeafRev:    make(map[models.Group]map[models.User]struct{}),
		nonLeafToNonLeaf:    make(map[models.Group]map[models.Group]struct{}),
		nonLeafToNonLeafRev: make(map[models.Group]map[models.Group]struct{}),
	}
}

func (g *Graph) rlock(mu *sync.RWMutex) {
	if g.locked {
		mu.RLock()
	}
}
func (g *Graph) runlock(mu *sync.RWMutex) {
	if g.locked {
		mu.RUnlock()
	}
}
func (g *Graph) lock(mu *sync.RWMutex) {
	if g.locked {
		mu.Lock()
	}
}
func (g *Graph) unlock(mu *sync.RWMutex) {
	if g.locked {
		mu.Unlock()
	}
}

// AddLeaf adds a user vertex. Returns AlreadyExists if present.
func (g *Graph) AddLeaf(user models.User) error {
	g.lock(&g.muLeafVertices)
	defer g.unlock(&g.muLeafVertices)
	if _, ok := g.leafVertices[user]; ok {
		return models.NewError(models.CodeAlreadyExists, fmt.Sprintf("user %q already exists", user))
	}
	g.leafVertices[user] = struct{}{}
	return nil
}

// RemoveLeaf removes a user vertex. The caller (Authorization Store) is
// responsible for cascading mapping removal first; this method only
// requires the vertex have no remaining leaf→non-leaf edges.
func (g *Graph) RemoveLeaf(user models.User) error {
	g.lock(&g.muLeafVertices)
	defer g.unlock(&g.muLeafVertices)
	if _, ok := g.leafVertices[user]; !ok {
		return models.NotFoundFor(models.KindUser, string(user))
	}

	g.lock(&g.muLeafToNonLeafEdges)
	hasEdges := len(g.leafToNonLeaf[user]) > 0
	g.unlock(&g.muLeafToNonLeafEdges)
	if hasEdges {
		return models.NewError(models.CodeArgument, fmt.Sprintf("user %q still has group memberships", user))
	}

	delete(g.leafVertices, user)
	return nil
}

// AddNonLeaf adds a group vertex. Returns AlreadyExists if present.
func (g *Graph) AddNonLeaf(group models.Group) error {
	g.lock(&g.muNonLeafVertices)
	defer g.unlock(&g.muNonLeafVertices)
	if _, ok := g.nonLeafVertices[group]; ok {
		return models.NewError(models.CodeAlreadyExists, fmt.Sprintf("group %q already exists", group))
	}
	g.nonLeafVertices[group] = struct{}{}
	return nil
}

// RemoveNonLeaf removes a group vertex and acquires all four locks (in
// global order) since it must check both edge sets for references.
func (g *Graph) RemoveNonLeaf(group models.Group) error {
	g.lock(&g.muLeafVertices)
	defer g.unlock(&g.muLeafVertices)
	g.lock(&g.muNonLeafVertices)
	defer g.unlock(&g.muNonLeafVertices)
	g.lock(&g.muLeafToNonLeafEdges)
	defer g.unlock(&g.muLeafToNonLeafEdges)
	g.lock(&g.muNonLeafToNonLeafEdges)
	defer g.unlock(&g.muNonLeafToNonLeafEdges)

	if _, ok := g.nonLeafVertices[group]; !ok {
		return models.NotFoundFor(models.KindGroup, string(group))
	}
	if len(g.nonLeafToLeafRev[group]) > 0 {
		return models.NewError(models.CodeArgument, fmt.Sprintf("group %q still has member users", group))
	}
	if len(g.nonLeafToNonLeafRev[group]) > 0 {
		return models.NewError(models.CodeArgument, fmt.Sprintf("group %q still has member groups", group))
	}
	if len(g.nonLeafToNonLeaf[group]) > 0 {
		return models.NewError(models.CodeArgument, fmt.Sprintf("group %q still has parent groups", group))
	}

	delete(g.nonLeafVertices, group)
	delete(g.nonLeafToLeafRev, group)
	delete(g.nonLeafToNonLeafRev, group)
	delete(g.nonLeafToNonLeaf, group)
	return nil
}

// AddLeafToNonLeafEdge records that user is a direct member of group.
func (g *Graph) AddLeafToNonLeafEdge(user models.User, group models.Group) error {
	g.rlock(&g.muLeafVertices)
	_, userOK := g.leafVertices[user]
	g.runlock(&g.muLeafVertices)
	if !userOK {
		return models.NotFoundFor(models.KindUser, string(user))
	}

	g.rlock(&g.muNonLeafVertices)
	_, groupOK := g.nonLeafVertices[group]
	g.runlock(&g.muNonLeafVertices)
	if !groupOK {
		return models.NotFoundFor(models.KindGroup, string(group))
	}

	g.lock(&g.muLeafToNonLeafEdges)
	defer g.unlock(&g.muLeafToNonLeafEdges)

	if g.leafToNonLeaf[user] == nil {
		g.leafToNonLeaf[user] = make(map[models.Group]struct{})
	}
	if _, ok := g.leafToNonLeaf[user][group]; ok {
		return models.NewError(models.CodeAlreadyExists, fmt.Sprintf("user %q already in group %q", user, group))
	}
	g.leafToNonLeaf[user][group] = struct{}{}

	if g.nonLeafToLeafRev[group] == nil {
		g.nonLeafToLeafRev[group] = make(map[models.User]struct{})
	}
	g.nonLeafToLeafRev[group][user] = struct{}{}
	return nil
}

// RemoveLeafToNonLeafEdge removes a direct user→group membership edge.
func (g *Graph) RemoveLeafToNonLeafEdge(user models.User, group models.Group) error {
	g.lock(&g.muLeafToNonLeafEdges)
	defer g.unlock(&g.muLeafToNonLeafEdges)

	if _, ok := g.leafToNonLeaf[user][group]; !ok {
		return models.NewError(models.CodeNotFound, fmt.Sprintf("user %q is not in group %q", user, group))
	}
	delete(g.leafToNonLeaf[user], group)
	delete(g.nonLeafToLeafRev[group], user)
	return nil
}

// AddNonLeafToNonLeafEdge records group `from` as a direct member of
// group `to`. Rejects the edge if it would create a cycle.
func (g *Graph) AddNonLeafToNonLeafEdge(from, to models.Group) error {
	g.rlock(&g.muNonLeafVertices)
	_, fromOK := g.nonLeafVertices[from]
	_, toOK := g.nonLeafVertices[to]
	g.runlock(&g.muNonLeafVertices)
	if !fromOK {
		return models.NotFoundFor(models.KindGroup, string(from))
	}
	if !toOK {
		return models.NotFoundFor(models.KindGroup, string(to))
	}
	if from == to {
		return models.NewError(models.CodeArgument, "self-referential group edge")
	}

	g.lock(&g.muNonLeafToNonLeafEdges)
	defer g.unlock(&g.muNonLeafToNonLeafEdges)

	if _, ok := g.nonLeafToNonLeaf[from][to]; ok {
		return models.NewError(models.CodeAlreadyExists, fmt.Sprintf("group %q already member of %q", from, to))
	}
	if g.wouldCycleLocked(to, from) {
		return models.ErrCycle
	}

	if g.nonLeafToNonLeaf[from] == nil {
		g.nonLeafToNonLeaf[from] = make(map[models.Group]struct{})
	}
	g.nonLeafToNonLeaf[from][to] = struct{}{}

	if g.nonLeafToNonLeafRev[to] == nil {
		g.nonLeafToNonLeafRev[to] = make(map[models.Group]struct{})
	}
	g.nonLeafToNonLeafRev[to][from] = struct{}{}
	return nil
}

// wouldCycleLocked runs a DFS from `start` looking for `target`,
// assuming muNonLeafToNonLeafEdges is already held. Used to detect
// whether adding edge target→start (i.e. from=target, to=start in
// caller terms) would close a cycle: we search the direction we are
// about to add an edge *into*, i.e. from `to` seeking `from` (§4.1).
func (g *Graph) wouldCycleLocked(start, target models.Group) bool {
	visited := make(map[models.Group]struct{})
	var stack []models.Group
	stack = append(stack, start)
	for len(stack) > 0 {
		n := len(stack) - 1
		cur := stack[n]
		stack = stack[:n]
		if cur == target {
			return true
		}
		if _, ok := visited[cur]; ok {
			continue
		}
		visited[cur] = struct{}{}
		for next := range g.nonLeafToNonLeaf[cur] {
			stack = append(stack, next)
		}
	}
	return false
}

// RemoveNonLeafToNonLeafEdge removes a direct group→group membership edge.
func (g *Graph) RemoveNonLeafToNonLeafEdge(from, to models.Group) error {
	g.lock(&g.muNonLeafToNonLeafEdges)
	defer g.unlock(&g.muNonLeafToNonLeafEdges)

	if _, ok := g.nonLeafToNonLeaf[from][to]; !ok {
		return models.NewError(models.CodeNotFound, fmt.Sprintf("group %q is not a member of %q", from, to))
	}
	delete(g.nonLeafToNonLeaf[from], to)
	delete(g.nonLeafToNonLeafRev[to], from)
	return nil
}

// GetLeafReverseEdges returns the users directly in a group.
func (g *Graph) GetLeafReverseEdges(group models.Group) []models.User {
	g.rlock(&g.muLeafToNonLeafEdges)
	defer g.runlock(&g.muLeafToNonLeafEdges)
	out := make([]models.User, 0, len(g.nonLeafToLeafRev[group]))
	for u := range g.nonLeafToLeafRev[group] {
		out = append(out, u)
	}
	return out
}

// GetNonLeafReverseEdges returns the groups that are direct members of group.
func (g *Graph) GetNonLeafReverseEdges(group models.Group) []models.Group {
	g.rlock(&g.muNonLeafToNonLeafEdges)
	defer g.runlock(&g.muNonLeafToNonLeafEdges)
	out := make([]models.Group, 0, len(g.nonLeafToNonLeafRev[group]))
	for child := range g.nonLeafToNonLeafRev[group] {
		out = append(out, child)
	}
	return out
}

// GetNonLeafForwardEdges returns the groups that group is directly a
// member of (its direct parents).
func (g *Graph) GetNonLeafForwardEdges(group models.Group) []models.Group {
	g.rlock(&g.muNonLeafToNonLeafEdges)
	defer g.runlock(&g.muNonLeafToNonLeafEdges)
	out := make([]models.Group, 0, len(g.nonLeafToNonLeaf[group]))
	for parent := range g.nonLeafToNonLeaf[group] {
		out = append(out, parent)
	}
	return out
}

// HasLeaf reports whether a user vertex exists.
func (g *Graph) HasLeaf(user models.User) bool {
	g.rlock(&g.muLeafVertices)
	defer g.runlock(&g.muLeafVertices)
	_, ok := g.leafVertices[user]
	return ok
}

// HasNonLeaf reports whether a group vertex exists.
func (g *Graph) HasNonLeaf(group models.Group) bool {
	g.rlock(&g.muNonLeafVertices)
	defer g.runlock(&g.muNonLeafVertices)
	_, ok := g.nonLeafVertices[group]
	return ok
}

// Visitor is called once per vertex reached by Traverse. Vertices are
// tagged by kind via isLeaf; id is the string form of the user or group.
// Traverse stops early if visitor returns false.
type Visitor func(id string, isLeaf bool) bool

// Traverse walks vertices reachable from a user or group, in the given
// Direction, visiting each reachable vertex exactly once. Because the
// graph is finite and acyclic (§3), traversal always terminates.
func (g *Graph) Traverse(startIsLeaf bool, start string, dir Direction, visit Visitor) {
	visited := make(map[string]struct{})
	type frame struct {
		id     string
		isLeaf bool
	}
	stack := []frame{{id: start, isLeaf: startIsLeaf}}

	for len(stack) > 0 {
		n := len(stack) - 1
		cur := stack[n]
		stack = stack[:n]

		key := fmt.Sprintf("%v:%s", cur.isLeaf, cur.id)
		if _, ok := visited[key]; ok {
			continue
		}
		visited[key] = struct{}{}

		if !visit(cur.id, cur.isLeaf) {
			return
		}

		if dir == Forward {
			if cur.isLeaf {
				for _, grp := range g.directGroupsOfUser(models.User(cur.id)) {
					stack = append(stack, frame{id: string(grp), isLeaf: false})
				}
			} else {
				g.rlock(&g.muNonLeafToNonLeafEdges)
				parents := g.nonLeafToNonLeaf[models.Group(cur.id)]
				for parent := range parents {
					stack = append(stack, frame{id: string(parent), isLeaf: false})
				}
				g.runlock(&g.muNonLeafToNonLeafEdges)
			}
		} else {
			if !cur.isLeaf {
				for _, u := range g.GetLeafReverseEdges(models.Group(cur.id)) {
					stack = append(stack, frame{id: string(u), isLeaf: true})
				}
				for _, child := range g.GetNonLeafReverseEdges(models.Group(cur.id)) {
					stack = append(stack, frame{id: string(child), isLeaf: false})
				}
			}
		}
	}
}

// DirectGroupsOfUser returns the groups a user directly belongs to
// (one hop only, no transitive closure through group→group edges).
func (g *Graph) DirectGroupsOfUser(user models.User) []models.Group {
	return g.directGroupsOfUser(user)
}

func (g *Graph) directGroupsOfUser(user models.User) []models.Group {
	g.rlock(&g.muLeafToNonLeafEdges)
	defer g.runlock(&g.muLeafToNonLeafEdges)
	out := make([]models.Group, 0, len(g.leafToNonLeaf[user]))
	for grp := range g.leafToNonLeaf[user] {
		out = append(out, grp)
	}
	return out
}
