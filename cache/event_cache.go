// Package cache provides the Event Cache described in §4.6: a bounded,
// strictly FIFO ring of recently persisted events that readers pull from
// before falling back to persistent storage.
//
// Eviction is strict FIFO at a configured size (§4.6): an
// access-frequency-aware policy would silently retain hot-but-stale
// entries past their slot, which contradicts that invariant.
package cache

import (
	"sync"

	"accessplane/models"
)

// EventCache is a bounded FIFO ring buffer of models.Event, keyed by
// event ID. It never blocks: Get/GetAllSince/AppendBatch all take a
// single mutex and return.
type EventCache struct {
	mu       sync.RWMutex
	capacity int
	ring     []models.Event  // ring[0] is the oldest entry present
	index    map[string]int  // event ID -> position within ring
}

// NewEventCache constructs an EventCache with the given capacity. A
// non-positive capacity is treated as 1, since a zero-capacity cache
// cannot hold the "last N" boundary GetAllSince relies on.
func NewEventCache(capacity int) *EventCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &EventCache{
		capacity: capacity,
		ring:     make([]models.Event, 0, capacity),
		index:    make(map[string]int, capacity),
	}
}

// AppendBatch appends events to the cache in order, evicting the oldest
// entries as needed to stay within capacity. Appending is itself atomic
// with respect to Get/GetAllSince readers.
func (c *EventCache) AppendBatch(events []models.Event) {
	if len(events) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range events {
		c.ring = append(c.ring, e)
	}
	if overflow := len(c.ring) - c.capacity; overflow > 0 {
		c.ring = c.ring[overflow:]
	}
	c.rebuildIndex()
}

func (c *EventCache) rebuildIndex() {
	for k := range c.index {
		delete(c.index, k)
	}
	for i, e := range c.ring {
		c.index[e.ID] = i
	}
}

// Get returns the single cached event with the given ID.
func (c *EventCache) Get(id string) (models.Event, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pos, ok := c.index[id]
	if !ok {
		if len(c.ring) == 0 {
			return models.Event{}, models.ErrEventCacheEmpty
		}
		return models.Event{}, models.ErrEventNotCached
	}
	return c.ring[pos], nil
}

// GetAllSince returns every cached event strictly after the one
// identified by sinceID, oldest-first. If sinceID is the empty string,
// the entire cache contents are returned. If sinceID names an event no
// longer (or not yet) held in the ring, GetAllSince reports
// EventNotCachedException (or EventCacheEmptyException if the cache
// currently holds nothing) so the caller can fall back to persistent
// storage per §4.7's reader refresh loop.
func (c *EventCache) GetAllSince(sinceID string) ([]models.Event, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if sinceID == "" {
		out := make([]models.Event, len(c.ring))
		copy(out, c.ring)
		return out, nil
	}

	pos, ok := c.index[sinceID]
	if !ok {
		if len(c.ring) == 0 {
			return nil, models.ErrEventCacheEmpty
		}
		return nil, models.ErrEventNotCached
	}

	rest := c.ring[pos+1:]
	out := make([]models.Event, len(rest))
	copy(out, rest)
	return out, nil
}

// Len reports how many events the cache currently holds.
func (c *EventCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ring)
}

// Newest returns the ID of the most recently appended event, or the
// empty string if the cache is empty.
func (c *EventCache) Newest() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.ring) == 0 {
		return ""
	}
	return c.ring[len(c.ring)-1].ID
}

// Clear empties the cache.
func (c *EventCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ring = c.ring[:0]
	for k := range c.index {
		delete(c.index, k)
	}
}
