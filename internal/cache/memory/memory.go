// Package memory implements the Memory Cache tier: an insertion-ordered,
// mutex-guarded, TTL-bounded LRU of TimelineEntry values. This is
// deliberately a single mutex, not a sharded or lock-free map — the Memory
// Cache is never the bottleneck, network and disk latency are, and
// over-engineering it would buy nothing.
package memory

import (
	"container/list"
	"sync"
	"time"

	"github.com/mycosoft-labs/crep/internal/timeline"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxEntries bounds the cache at 10,000 entries by default.
	DefaultMaxEntries = 10000
	// DefaultTTL is the per-entry time-to-live, 5 minutes by default.
	DefaultTTL = 5 * time.Minute
)

type record struct {
	entry      timeline.TimelineEntry
	insertedAt time.Time
}

// Cache is the Memory Cache tier.
type Cache struct {
	mu         sync.Mutex
	order      *list.List               // MRU at Back, LRU at Front
	elements   map[string]*list.Element // cache key -> list element
	maxEntries int
	ttl        time.Duration
	log        zerolog.Logger
}

// Config tunes the Memory Cache's capacity and TTL.
type Config struct {
	MaxEntries int
	TTL        time.Duration
}

// New constructs an empty Memory Cache.
func New(cfg Config, log zerolog.Logger) *Cache {
	max := cfg.MaxEntries
	if max <= 0 {
		max = DefaultMaxEntries
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		order:      list.New(),
		elements:   make(map[string]*list.Element),
		maxEntries: max,
		ttl:        ttl,
		log:        log.With().Str("component", "memory_cache").Logger(),
	}
}

func (c *Cache) isExpired(r *record, now time.Time) bool {
	return now.Sub(r.insertedAt) > c.ttl
}

// removeLocked deletes the element for key, if present. Caller holds mu.
func (c *Cache) removeLocked(key string) {
	if el, ok := c.elements[key]; ok {
		c.order.Remove(el)
		delete(c.elements, key)
	}
}

// Get returns the entry for key if present and unexpired, refreshing it to
// the MRU end. Expired entries are lazily deleted.
func (c *Cache) Get(key string) (timeline.TimelineEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.elements[key]
	if !ok {
		return timeline.TimelineEntry{}, false
	}
	r := el.Value.(*record)
	now := time.Now()
	if c.isExpired(r, now) || r.entry.IsExpired(now.UnixMilli()) {
		c.removeLocked(key)
		return timeline.TimelineEntry{}, false
	}
	c.order.MoveToBack(el)
	return r.entry, true
}

func (c *Cache) evictLocked() {
	for c.order.Len() > c.maxEntries {
		front := c.order.Front()
		if front == nil {
			return
		}
		r := front.Value.(*record)
		c.order.Remove(front)
		delete(c.elements, r.entry.CacheKey())
	}
}

// Put inserts or replaces a single entry, evicting the oldest entries first
// if the cache is at capacity.
func (c *Cache) Put(entry timeline.TimelineEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(entry)
	c.evictLocked()
}

func (c *Cache) putLocked(entry timeline.TimelineEntry) {
	key := entry.CacheKey()
	if el, ok := c.elements[key]; ok {
		c.order.Remove(el)
	}
	el := c.order.PushBack(&record{entry: entry, insertedAt: time.Now()})
	c.elements[key] = el
}

// PutBatch inserts or replaces many entries in one locked section.
func (c *Cache) PutBatch(entries []timeline.TimelineEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		c.putLocked(e)
	}
	c.evictLocked()
}

func matches(e timeline.TimelineEntry, q timeline.Query) bool {
	if q.EntityType != nil && e.EntityType != *q.EntityType {
		return false
	}
	if q.EntityID != nil && e.EntityID != *q.EntityID {
		return false
	}
	if q.StartMs != nil && e.TimestampMs < *q.StartMs {
		return false
	}
	if q.EndMs != nil && e.TimestampMs > *q.EndMs {
		return false
	}
	if q.Source != nil && e.Source != *q.Source {
		return false
	}
	if q.Viewport != nil && !q.Viewport.Contains(e.Data.Position) {
		return false
	}
	return true
}

// Query performs a linear scan over all entries, deleting any expired
// entries it encounters along the way, and returns up to q.Limit matches.
func (c *Cache) Query(q timeline.Query) []timeline.TimelineEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var results []timeline.TimelineEntry
	var next *list.Element
	for el := c.order.Front(); el != nil; el = next {
		next = el.Next()
		r := el.Value.(*record)
		if c.isExpired(r, now) || r.entry.IsExpired(now.UnixMilli()) {
			c.order.Remove(el)
			delete(c.elements, r.entry.CacheKey())
			continue
		}
		if matches(r.entry, q) {
			results = append(results, r.entry)
			if q.Limit > 0 && len(results) >= q.Limit {
				break
			}
		}
	}
	return results
}

// Invalidate removes entries matching entityType/entityID (either may be
// nil, meaning "any") and returns the count removed.
func (c *Cache) Invalidate(entityType *timeline.EntityType, entityID *string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	var next *list.Element
	for el := c.order.Front(); el != nil; el = next {
		next = el.Next()
		r := el.Value.(*record)
		if entityType != nil && r.entry.EntityType != *entityType {
			continue
		}
		if entityID != nil && r.entry.EntityID != *entityID {
			continue
		}
		c.order.Remove(el)
		delete(c.elements, r.entry.CacheKey())
		count++
	}
	return count
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.elements = make(map[string]*list.Element)
}

// Size returns the current entry count.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
