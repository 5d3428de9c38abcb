package persist

import (
	"accessplane/cache"
	"accessplane/models"
)

// Distributor implements buffer.Distributor: a flushed batch is first
// persisted (through the redundant primary/backup pair) and then, only
// once durable, appended to the Event Cache for readers to pull (§2's
// control-flow summary: "flushed in order to storage + cache").
type Distributor struct {
	Persister       *RedundantPersister
	Cache           *cache.EventCache
	IgnoreDuplicates bool
}

// NewDistributor constructs a Distributor.
func NewDistributor(p *RedundantPersister, c *cache.EventCache, ignoreDuplicates bool) *Distributor {
	return &Distributor{Persister: p, Cache: c, IgnoreDuplicates: ignoreDuplicates}
}

// Distribute persists then caches. If persistence fails, the cache is
// left untouched so readers never observe an event that didn't actually
// make it to durable storage.
func (d *Distributor) Distribute(events []models.Event) error {
	if err := d.Persister.PersistEvents(events, d.IgnoreDuplicates); err != nil {
		return err
	}
	d.Cache.AppendBatch(events)
	return nil
}
