package memory

import (
	"testing"
	"time"

	"github.com/mycosoft-labs/crep/internal/timeline"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(maxEntries int, ttl time.Duration) *Cache {
	return New(Config{MaxEntries: maxEntries, TTL: ttl}, zerolog.Nop())
}

func entry(id string, tsMs int64) timeline.TimelineEntry {
	return timeline.TimelineEntry{
		EntityType:  timeline.Aircraft,
		EntityID:    id,
		TimestampMs: tsMs,
		Data:        timeline.EntryData{Position: timeline.GeoPoint{Lat: 1, Lng: 2}},
		Source:      timeline.SourceLive,
		CreatedAt:   time.Now().UnixMilli(),
	}
}

func TestPutGet(t *testing.T) {
	c := newTestCache(10, time.Minute)
	e := entry("N1", 1000)
	c.Put(e)

	got, ok := c.Get(e.CacheKey())
	require.True(t, ok)
	assert.Equal(t, e, got)
}

func TestGetMissing(t *testing.T) {
	c := newTestCache(10, time.Minute)
	_, ok := c.Get("nope")
	assert.False(t, ok)
}

func TestEviction(t *testing.T) {
	c := newTestCache(2, time.Minute)
	c.Put(entry("A", 1))
	c.Put(entry("B", 2))
	c.Put(entry("C", 3))

	assert.Equal(t, 2, c.Size())
	_, ok := c.Get(entry("A", 1).CacheKey())
	assert.False(t, ok, "oldest entry should have been evicted")
}

func TestTTLExpiry(t *testing.T) {
	c := newTestCache(10, time.Millisecond)
	e := entry("A", 1)
	c.Put(e)
	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get(e.CacheKey())
	assert.False(t, ok)
}

func TestQueryFiltersAndLimit(t *testing.T) {
	c := newTestCache(10, time.Minute)
	c.PutBatch([]timeline.TimelineEntry{entry("A", 1), entry("A", 2), entry("B", 3)})

	id := "A"
	results := c.Query(timeline.Query{EntityID: &id})
	assert.Len(t, results, 2)

	limited := c.Query(timeline.Query{Limit: 1})
	assert.Len(t, limited, 1)
}

func TestInvalidate(t *testing.T) {
	c := newTestCache(10, time.Minute)
	c.PutBatch([]timeline.TimelineEntry{entry("A", 1), entry("B", 2)})

	id := "A"
	n := c.Invalidate(nil, &id)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, c.Size())
}

func TestClear(t *testing.T) {
	c := newTestCache(10, time.Minute)
	c.Put(entry("A", 1))
	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestGetRefreshesMRU(t *testing.T) {
	c := newTestCache(2, time.Minute)
	c.Put(entry("A", 1))
	c.Put(entry("B", 2))
	_, _ = c.Get(entry("A", 1).CacheKey())
	c.Put(entry("C", 3)) // should evict B, not A, since A was just refreshed

	_, okA := c.Get(entry("A", 1).CacheKey())
	_, okB := c.Get(entry("B", 2).CacheKey())
	assert.True(t, okA)
	assert.False(t, okB)
}
