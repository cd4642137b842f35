package checkpoint

import (
	"time"

	"github.com/phasekit/phaserun/pkg/domain"
)

// lruCache is a bounded checkpoint cache. On overflow it evicts the entry
// with the oldest checkpoint timestamp. The Manager's mutex guards all
// access, so the cache itself is not locked.
type lruCache struct {
	capacity int
	entries  map[string]*domain.CheckpointData
}

func newLRUCache(capacity int) *lruCache {
	return &lruCache{
		capacity: capacity,
		entries:  make(map[string]*domain.CheckpointData, capacity),
	}
}

func (c *lruCache) get(id string) (*domain.CheckpointData, bool) {
	data, ok := c.entries[id]
	return data, ok
}

func (c *lruCache) put(id string, data *domain.CheckpointData) {
	if c.capacity <= 0 {
		return
	}
	if _, exists := c.entries[id]; !exists && len(c.entries) >= c.capacity {
		c.evictOldest()
	}
	c.entries[id] = data
}

func (c *lruCache) remove(id string) {
	delete(c.entries, id)
}

func (c *lruCache) evictOldest() {
	oldestID := ""
	var oldest time.Time
	for id, data := range c.entries {
		if oldestID == "" || data.Metadata.Timestamp.Before(oldest) {
			oldestID = id
			oldest = data.Metadata.Timestamp
		}
	}
	if oldestID != "" {
		delete(c.entries, oldestID)
	}
}
