package models

import (
	"hash/fnv"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Kind identifies which of the ten event categories (§3, §6) a payload
// belongs to. The tagged-sum approach replaces the deep C#-style event
// class hierarchy the source system used (§9 redesign note): one shared
// envelope (Event), one Kind per variant.
type Kind string

const (
	KindUser            Kind = "User"
	KindGroup           Kind = "Group"
	KindEntityType      Kind = "EntityType"
	KindEntity          Kind = "Entity"
	KindUserToGroup     Kind = "UserToGroup"
	KindGroupToGroup    Kind = "GroupToGroup"
	KindUserToComponent Kind = "UserToComponent"
	KindGroupToComponent Kind = "GroupToComponent"
	KindUserToEntity    Kind = "UserToEntity"
	KindGroupToEntity   Kind = "GroupToEntity"
)

// AllKinds lists the ten event categories in the buffer priority order
// used to break ties within a single occurredAt instant (§4.4): users
// before groups before mappings before entities.
var AllKinds = []Kind{
	KindUser, KindGroup,
	KindUserToGroup, KindGroupToGroup,
	KindUserToComponent, KindGroupToComponent,
	KindEntityType, KindEntity,
	KindUserToEntity, KindGroupToEntity,
}

// IsPrimary reports whether a Kind names a primary element (user, group,
// entity type, or entity) as opposed to a mapping between two elements.
// Removal of a primary element cascades to every mapping that references
// it (§3, §4.2).
func (k Kind) IsPrimary() bool {
	switch k {
	case KindUser, KindGroup, KindEntityType, KindEntity:
		return true
	default:
		return false
	}
}

// NewID generates a new opaque identifier. accessplane uses the domain's
// natural identifiers (usernames, group names, component names) as the
// primary keys for graph vertices; NewID is reserved for entities, events,
// and relationship records that need a synthetic key.
func NewID() string {
	return uuid.NewString()
}

// Stringifier converts an opaque identifier into its canonical string
// form. The in-memory store is monomorphic over opaque identifier types
// (§9): every wire path and every hash computation goes through a single
// pluggable stringify step so the store never needs runtime type
// dispatch over TUser/TGroup/TComponent/TAccess.
type Stringifier func(parts ...string) string

// DefaultStringifier joins identifier parts with a separator that cannot
// appear in a single part once validated, producing a stable total order
// compatible with Go's string comparison.
func DefaultStringifier(parts ...string) string {
	return strings.Join(parts, "\x1f")
}

// Hasher computes the routing key for a stringified identifier. The
// default is the FNV-1a 32-bit hash truncated to a signed int32, matching
// the wire format's "FNV-like 32-bit hash" wording (§3) exactly.
type Hasher func(s string) int32

// FNV1aHash is the default Hasher.
func FNV1aHash(s string) int32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int32(h.Sum32())
}

// HashCode computes the routing key for a primary key made of one or more
// parts, using the default stringifier and hasher. Components that need a
// custom Stringifier/Hasher pair (for testing determinism, for example)
// should call Stringifier/Hasher directly instead.
func HashCode(parts ...string) int32 {
	return FNV1aHash(DefaultStringifier(parts...))
}

// SortStrings returns a sorted copy of ss, used wherever a stable total
// order over opaque identifiers is required (index iteration, diffing).
func SortStrings(ss []string) []string {
	out := make([]string, len(ss))
	copy(out, ss)
	sort.Strings(out)
	return out
}
