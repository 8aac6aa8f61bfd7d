// Package cache holds a short-lived materialized view of the feed for
// polling clients. Entries expire after a fixed freshness window and every
// mutation evicts the whole cache; a miss always falls through to a rebuild
// from the store, so the cache can only cost latency, never correctness.
package cache

import (
	"container/list"
	"sync"
	"time"

	"chatsphere/pkg/models"
	"chatsphere/pkg/telemetry"
)

type entry struct {
	key      string
	snapshot []models.Message
	added    time.Time
	elem     *list.Element
}

// Cache is a bounded snapshot cache. Eviction on overflow removes the
// oldest-inserted key; access order is deliberately ignored.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List
	cap     int
	ttl     time.Duration
	now     func() time.Time
}

// New creates a cache with the given capacity and freshness window. The
// clock is injectable for tests; pass nil for time.Now.
func New(capacity int, ttl time.Duration, now func() time.Time) *Cache {
	if capacity <= 0 {
		capacity = 1000
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{
		entries: make(map[string]*entry),
		order:   list.New(),
		cap:     capacity,
		ttl:     ttl,
		now:     now,
	}
}

// Get returns the cached snapshot for key if it is still inside the
// freshness window. Expired entries are evicted lazily here.
func (c *Cache) Get(key string) ([]models.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		telemetry.CacheMisses.Inc()
		return nil, false
	}
	if c.now().Sub(e.added) >= c.ttl {
		c.remove(e)
		telemetry.CacheMisses.Inc()
		return nil, false
	}
	telemetry.CacheHits.Inc()
	return e.snapshot, true
}

// Put inserts a snapshot, evicting the oldest-inserted key on overflow.
// Re-putting an existing key refreshes its insertion position.
func (c *Cache) Put(key string, snapshot []models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.remove(e)
	}
	for len(c.entries) >= c.cap {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.remove(oldest.Value.(*entry))
	}
	e := &entry{key: key, snapshot: snapshot, added: c.now()}
	e.elem = c.order.PushBack(e)
	c.entries[key] = e
}

// InvalidateAll drops every entry. Called after any successful mutation;
// whole-cache eviction trades precision for correctness simplicity.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.order.Init()
	telemetry.CacheInvalidations.Inc()
}

// Len reports the number of resident keys, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) remove(e *entry) {
	delete(c.entries, e.key)
	c.order.Remove(e.elem)
}
