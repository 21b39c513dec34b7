package manager

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mycosoft-labs/crep/internal/cache/memory"
	"github.com/mycosoft-labs/crep/internal/cache/networked"
	"github.com/mycosoft-labs/crep/internal/timeline"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	mr := miniredis.RunT(t)
	mem := memory.New(memory.Config{}, zerolog.Nop())
	net := networked.New(context.Background(), networked.Config{URL: "redis://" + mr.Addr()}, zerolog.Nop())
	require.True(t, net.Connected())
	return New(mem, net, zerolog.Nop())
}

func liveEntry(id string, tsMs int64) timeline.TimelineEntry {
	alt := 10000.0
	return timeline.TimelineEntry{
		EntityType:  timeline.Aircraft,
		EntityID:    id,
		TimestampMs: tsMs,
		Data:        timeline.EntryData{Position: timeline.GeoPoint{Lat: 47.6, Lng: -122.3, Altitude: &alt}},
		Source:      timeline.SourceLive,
		CreatedAt:   time.Now().UnixMilli(),
	}
}

// Live-update fast path, then promotion back from redis.
func TestLiveUpdateFastPathAndPromotion(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	e := liveEntry("N12345", 1_700_000_000_000)
	m.StoreLiveUpdate(ctx, []timeline.TimelineEntry{e})

	et := timeline.Aircraft
	id := "N12345"
	res := m.Get(ctx, timeline.Query{EntityType: &et, EntityID: &id})
	assert.Equal(t, SourceMemoryTier, res.Source)
	require.Len(t, res.Entries, 1)

	m.Wait() // let the background networked write land
	m.memoryTier.Invalidate(&et, &id)

	res = m.Get(ctx, timeline.Query{EntityType: &et, EntityID: &id})
	assert.Equal(t, SourceRedisTier, res.Source)
	require.Len(t, res.Entries, 1)

	// promoted back into memory
	res = m.Get(ctx, timeline.Query{EntityType: &et, EntityID: &id})
	assert.Equal(t, SourceMemoryTier, res.Source)
}

// Hot-miss promotion: a redis hit repopulates memory.
func TestHotMissPromotion(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	et := timeline.Vessel
	var entries []timeline.TimelineEntry
	for i := 0; i < 50; i++ {
		entries = append(entries, timeline.TimelineEntry{
			EntityType:  et,
			EntityID:    "V1",
			TimestampMs: int64(1000 + i),
			Data:        timeline.EntryData{Position: timeline.GeoPoint{Lat: 1, Lng: 2}},
			Source:      timeline.SourceHistorical,
			CreatedAt:   time.Now().UnixMilli(),
		})
	}
	m.networkedTier.PutBatch(ctx, entries)

	id := "V1"
	res := m.Get(ctx, timeline.Query{EntityType: &et, EntityID: &id})
	assert.Equal(t, SourceRedisTier, res.Source)
	assert.Len(t, res.Entries, 50)

	res = m.Get(ctx, timeline.Query{EntityType: &et, EntityID: &id})
	assert.Equal(t, SourceMemoryTier, res.Source)
	assert.Len(t, res.Entries, 50)

	stats := m.GetStats(ctx)
	assert.Equal(t, int64(1), stats.MemoryHits)
	assert.Equal(t, int64(1), stats.RedisHits)
}

func TestInvalidateSumsBothTiers(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	et := timeline.Aircraft
	id := "N1"
	e := liveEntry(id, 1)
	m.Put(ctx, e)

	n := m.Invalidate(ctx, &et, &id)
	assert.Equal(t, 2, n) // one in memory, one in networked
}
