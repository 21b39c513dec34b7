package snapshot

import (
	"testing"
	"time"

	"github.com/mycosoft-labs/crep/internal/timeline"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{Root: t.TempDir(), BucketHours: 1}, zerolog.Nop())
	require.NoError(t, err)
	return s
}

func testEntry(tsMs int64) timeline.TimelineEntry {
	return timeline.TimelineEntry{
		EntityType:  timeline.Aircraft,
		EntityID:    "N1",
		TimestampMs: tsMs,
		Data:        timeline.EntryData{Position: timeline.GeoPoint{Lat: 1, Lng: 2}},
		Source:      timeline.SourceHistorical,
		CreatedAt:   time.Now().UnixMilli(),
	}
}

func TestCreateAndReadSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)
	bucketStart := int64(1_699_996_400_000)
	entries := []timeline.TimelineEntry{testEntry(bucketStart), testEntry(bucketStart + 1000)}

	meta, err := s.CreateSnapshot(timeline.Aircraft, entries, bucketStart)
	require.NoError(t, err)
	assert.Equal(t, 2, meta.EntryCount)

	key := s.BucketKey(timeline.Aircraft, bucketStart)
	got := s.ReadSnapshot(key)
	assert.Equal(t, entries, got)
}

func TestReadMissingBucketReturnsEmpty(t *testing.T) {
	s := newTestStore(t)
	got := s.ReadSnapshot("aircraft/2026-01-01/00")
	assert.Empty(t, got)
}

func TestQuerySnapshotsExactRange(t *testing.T) {
	s := newTestStore(t)
	bucketStart := int64(1_699_996_400_000)
	entries := []timeline.TimelineEntry{
		testEntry(bucketStart),
		testEntry(bucketStart + 500),
		testEntry(bucketStart + 3_600_000 - 1), // same bucket file, outside the queried range
	}
	_, err := s.CreateSnapshot(timeline.Aircraft, entries, bucketStart)
	require.NoError(t, err)

	results := s.QuerySnapshots(timeline.Aircraft, bucketStart, bucketStart+500)
	assert.Len(t, results, 2)
}

func TestQuerySnapshotsStartEqualsEnd(t *testing.T) {
	s := newTestStore(t)
	bucketStart := int64(1_699_996_400_000)
	entries := []timeline.TimelineEntry{testEntry(bucketStart), testEntry(bucketStart + 10)}
	_, err := s.CreateSnapshot(timeline.Aircraft, entries, bucketStart)
	require.NoError(t, err)

	results := s.QuerySnapshots(timeline.Aircraft, bucketStart, bucketStart)
	require.Len(t, results, 1)
	assert.Equal(t, bucketStart, results[0].TimestampMs)
}

func TestCleanupRemovesOldBuckets(t *testing.T) {
	s := newTestStore(t)
	oldBucketStart := time.Now().Add(-48*time.Hour).UnixMilli()
	_, err := s.CreateSnapshot(timeline.Aircraft, []timeline.TimelineEntry{testEntry(oldBucketStart)}, oldBucketStart)
	require.NoError(t, err)

	removed, err := s.Cleanup(int64((24 * time.Hour).Milliseconds()))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Empty(t, s.List())
}

func TestBucketKeyDeterministic(t *testing.T) {
	s := newTestStore(t)
	k1 := s.BucketKey(timeline.Aircraft, 1_699_996_400_000)
	k2 := s.BucketKey(timeline.Aircraft, 1_699_996_400_500)
	assert.Equal(t, k1, k2)
}
