package models

import (
	"sort"
	"strconv"
)

// Role names which slice of the authorization graph a shard group owns:
// leaf vertices, non-leaf vertices, or the singleton group-to-group edge
// set (§3).
type Role string

const (
	RoleUser         Role = "User"
	RoleGroup        Role = "Group"
	RoleGroupToGroup Role = "GroupToGroup"
)

// ShardGroup is a writer + readers + event cache + persistent storage
// collectively owning a contiguous hash range for one Role (§3, GLOSSARY).
type ShardGroup struct {
	Name            string
	Role            Role
	HashRangeStart  int32
	ReaderEndpoints []string
	WriterEndpoint  string
	StorageDSN      string // storage connection string/path (the Instance Manager sets it to the group's SQLite file path)
}

// ShardConfiguration is an ordered set of ShardGroups per Role, persisted
// centrally and versioned by a monotonic generation counter (§3).
type ShardConfiguration struct {
	Generation uint64
	Groups     map[Role][]ShardGroup
}

// NewShardConfiguration returns an empty configuration at generation 0.
func NewShardConfiguration() *ShardConfiguration {
	return &ShardConfiguration{Groups: make(map[Role][]ShardGroup)}
}

// Sorted returns the groups for a role ordered by HashRangeStart
// ascending, the order routing lookups require.
func (c *ShardConfiguration) Sorted(role Role) []ShardGroup {
	groups := append([]ShardGroup(nil), c.Groups[role]...)
	sort.Slice(groups, func(i, j int) bool { return groups[i].HashRangeStart < groups[j].HashRangeStart })
	return groups
}

// Owner returns the ShardGroup whose HashRangeStart is the largest value
// less than or equal to hash — "the shard owning a key is the one with
// the largest hashRangeStart ≤ hash(key)" (§3).
func (c *ShardConfiguration) Owner(role Role, hash int32) (ShardGroup, bool) {
	groups := c.Sorted(role)
	var best *ShardGroup
	for i := range groups {
		if groups[i].HashRangeStart <= hash {
			best = &groups[i]
		} else {
			break
		}
	}
	if best == nil {
		return ShardGroup{}, false
	}
	return *best, true
}

// Validate checks the invariants of §3: exactly one shard group per role
// must cover math.MinInt32, GroupToGroup is a singleton, and no two
// groups in the same role share a HashRangeStart.
func (c *ShardConfiguration) Validate() error {
	for role, groups := range c.Groups {
		if role == RoleGroupToGroup && len(groups) != 1 {
			return NewError(CodeArgument, "GroupToGroup must have exactly one shard group", Attr("count", strconv.Itoa(len(groups))))
		}
		seen := map[int32]bool{}
		coversMin := false
		for _, g := range groups {
			if seen[g.HashRangeStart] {
				return NewError(CodeArgument, "duplicate hashRangeStart in role", Attr("role", string(role)))
			}
			seen[g.HashRangeStart] = true
			if g.HashRangeStart == minInt32 {
				coversMin = true
			}
		}
		if len(groups) > 0 && !coversMin {
			return NewError(CodeArgument, "no shard group covers Int32.MinValue", Attr("role", string(role)))
		}
	}
	return nil
}

const minInt32 = int32(-2147483648)

// MaxHashRange is the upper bound of the int32 hash domain, used by
// callers computing the open end of a shard group's range (§4.9).
const MaxHashRange = int32(2147483647)

// Clone returns a copy of c whose Groups map and per-role slices are
// independent of the original, so a caller can build the next
// generation via WithAddedGroup/WithRemovedGroup without mutating a
// configuration another goroutine may still be reading (§5: "shard
// configuration: copy-on-write; readers snapshot the generation
// pointer").
func (c *ShardConfiguration) Clone() *ShardConfiguration {
	next := &ShardConfiguration{Generation: c.Generation, Groups: make(map[Role][]ShardGroup, len(c.Groups))}
	for role, groups := range c.Groups {
		next.Groups[role] = append([]ShardGroup(nil), groups...)
	}
	return next
}

// WithAddedGroup returns the next generation of c with g appended to
// role's group list — the Split orchestrator's Cutover step (§4.9 state
// 6): publishing the target range requires no change to the source
// group's own HashRangeStart, since Owner (§3) resolves ownership by
// "largest hashRangeStart <= hash" and a new, higher start simply claims
// the upper portion of what the source used to own.
func (c *ShardConfiguration) WithAddedGroup(role Role, g ShardGroup) *ShardConfiguration {
	next := c.Clone()
	next.Groups[role] = append(next.Groups[role], g)
	next.Generation++
	return next
}

// WithRemovedGroup returns the next generation of c with the named
// group removed from role's group list — the Merge orchestrator's
// Cutover step: once a range is folded into its lower neighbor, Owner
// resolution falls through to that neighbor automatically.
func (c *ShardConfiguration) WithRemovedGroup(role Role, name string) *ShardConfiguration {
	next := c.Clone()
	filtered := next.Groups[role][:0]
	for _, g := range next.Groups[role] {
		if g.Name != name {
			filtered = append(filtered, g)
		}
	}
	next.Groups[role] = filtered
	next.Generation++
	return next
}

// RangeEnd returns the inclusive upper bound of the hash range a group
// starting at start owns within role, given the rest of the
// configuration: the next-higher HashRangeStart minus one, or
// MaxHashRange if start is the topmost group.
func (c *ShardConfiguration) RangeEnd(role Role, start int32) int32 {
	end := MaxHashRange
	for _, g := range c.Sorted(role) {
		if g.HashRangeStart > start && g.HashRangeStart-1 < end {
			end = g.HashRangeStart - 1
		}
	}
	return end
}
