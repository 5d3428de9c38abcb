package models

import "fmt"

// User and Group are opaque identifiers with a total order and a stable
// stringification (§3). accessplane represents both as plain strings:
// the domain names them directly rather than wrapping them in single-field
// structs, since every wire path already treats them as the primary key.
type User = string
type Group = string

// ApplicationComponent and AccessLevel name the two halves of a
// component-level grant (e.g. component "Orders", level "View").
type ApplicationComponent = string
type AccessLevel = string

// EntityType namespaces a set of Entity identifiers. Removing an
// EntityType cascades to every Entity registered under it (§3).
type EntityType struct {
	Name string
}

// Entity is an opaque identifier scoped to an EntityType namespace.
type Entity struct {
	TypeName string
	Name     string
}

// Key returns the stable stringification used for hashing and indexing:
// "<type>\x1fentity\x1f<name>".
func (e Entity) Key() string {
	return DefaultStringifier(e.TypeName, "entity", e.Name)
}

func (e Entity) String() string {
	return fmt.Sprintf("%s/%s", e.TypeName, e.Name)
}

// ComponentGrant names a (component, level) pair a user or group may hold.
type ComponentGrant struct {
	Component ApplicationComponent
	Level     AccessLevel
}

func (g ComponentGrant) Key() string {
	return DefaultStringifier(g.Component, g.Level)
}
