package shard

import (
	"context"
	"sync"

	"accessplane/models"
)

// RouterNode is a stand-in writer for a shard group's writer endpoint
// (§4.9 state 2, GLOSSARY "Router"). The Split/Merge Orchestrator
// constructs one per run but does not place it in any write path, so
// only a caller that writes to it directly exercises it. It accepts every
// write aimed at the shard: events whose hashCode falls outside the
// range being moved are forwarded straight through to the real source
// writer; events inside the range are held in a pause buffer, in
// arrival order, until ReleaseRouter drains them into the new owner.
//
// Holding writes rather than rejecting them is what lets client traffic
// continue uninterrupted during a split or merge — the invariant §4.9
// calls out as "ordering within a range is preserved: router preserves
// arrival order in its pause buffer."
type RouterNode struct {
	lo, hi         int32
	source         WriteTransport
	sourceEndpoint string

	mu     sync.Mutex
	paused []models.Event
}

// NewRouterNode constructs a RouterNode pausing writes whose hashCode
// falls in [lo, hi] and forwarding everything else to source at
// sourceEndpoint.
func NewRouterNode(lo, hi int32, source WriteTransport, sourceEndpoint string) *RouterNode {
	return &RouterNode{lo: lo, hi: hi, source: source, sourceEndpoint: sourceEndpoint}
}

func (r *RouterNode) inRange(hash int32) bool {
	return hash >= r.lo && hash <= r.hi
}

// Write implements WriteTransport. The endpoint argument is ignored —
// the RouterNode itself stands in for whatever endpoint a Client was
// routing to; it always forwards passed-through writes to the one
// source endpoint it was constructed with.
func (r *RouterNode) Write(ctx context.Context, _ string, e models.Event) error {
	if r.inRange(e.HashCode) {
		r.mu.Lock()
		r.paused = append(r.paused, e)
		r.mu.Unlock()
		return nil
	}
	return r.source.Write(ctx, r.sourceEndpoint, e)
}

// Drain removes and returns every currently paused event, oldest first,
// for ReleaseRouter (§4.9 state 7) to replay into the target writer
// before the router is torn down.
func (r *RouterNode) Drain() []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.paused
	r.paused = nil
	return out
}

// PausedCount reports how many events are currently held, for
// introspection/tests.
func (r *RouterNode) PausedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paused)
}
