package shard

import (
	"context"

	"accessplane/models"
)

// WriteTransport sends a single event to a shard's writer endpoint.
// Wire/RPC framing is explicitly out of scope (§1 non-goals); this
// interface is the seam an external transport implementation plugs into.
type WriteTransport interface {
	Write(ctx context.Context, endpoint string, event models.Event) error
}

// MergeKind selects how Fanout combines per-shard query results (§4.8).
type MergeKind int

const (
	// MergeUnion is for membership-listing queries: concatenate and
	// dedupe.
	MergeUnion MergeKind = iota
	// MergeBooleanOR is for existence/HasAccess-style queries.
	MergeBooleanOR
	// MergeConcat is for plain listings where duplicates across shards
	// cannot occur by construction (each shard owns a disjoint range).
	MergeConcat
)

// QueryResult is what a single shard returns for one fanned-out query.
type QueryResult struct {
	// Items holds string-keyed results (membership/listing queries).
	Items []string
	// Bool holds the result of a boolean query (e.g. HasAccessToComponent).
	Bool bool
}

// QueryTransport issues a single-shard query and a role-wide fanout
// query. Like WriteTransport, wire framing is out of scope — this is the
// seam.
type QueryTransport interface {
	Query(ctx context.Context, endpoint string, kind models.Kind, key string) (QueryResult, error)
	FanoutQuery(ctx context.Context, endpoint string, kind models.Kind) (QueryResult, error)
}
