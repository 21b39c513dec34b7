// Package manager implements the Cache Manager: the single (get, put,
// put_batch, store_live_update, invalidate) surface over the Memory and
// Networked tiers, with promotion on a Networked hit and two distinct write
// entry points (synchronous put vs fire-and-forget live update) rather than
// one write path with a flag.
package manager

import (
	"context"
	"sync"
	"time"

	"github.com/mycosoft-labs/crep/internal/cache/memory"
	"github.com/mycosoft-labs/crep/internal/cache/networked"
	"github.com/mycosoft-labs/crep/internal/timeline"
	"github.com/rs/zerolog"
)

// ResultSource tags where a Cache Manager read was answered from.
type ResultSource string

const (
	SourceMemoryTier ResultSource = "memory"
	SourceRedisTier  ResultSource = "redis"
	SourceDatabase   ResultSource = "database"
)

// Result is the outcome of a Get call.
type Result struct {
	Entries   []timeline.TimelineEntry
	Source    ResultSource
	Hit       bool
	LatencyMs float64
}

// Stats is the composite, cross-tier statistics snapshot.
type Stats struct {
	MemoryHits   int64
	RedisHits    int64
	DBHits       int64
	TotalQueries int64
	HitRate      float64
	Networked    networked.Stats
}

// Manager is the Cache Manager.
type Manager struct {
	memoryTier    *memory.Cache
	networkedTier *networked.Cache
	log           zerolog.Logger

	mu           sync.Mutex
	memoryHits   int64
	redisHits    int64
	dbHits       int64
	totalQueries int64

	wg sync.WaitGroup
}

// New wires a Cache Manager over already-constructed tiers.
func New(memoryTier *memory.Cache, networkedTier *networked.Cache, log zerolog.Logger) *Manager {
	return &Manager{
		memoryTier:    memoryTier,
		networkedTier: networkedTier,
		log:           log.With().Str("component", "cache_manager").Logger(),
	}
}

// Get performs the three-tier read-through: Memory, then Networked (with
// promotion back into Memory on hit), then an empty "database" miss the
// caller may follow up on against the Snapshot Store.
func (m *Manager) Get(ctx context.Context, q timeline.Query) Result {
	start := time.Now()

	m.mu.Lock()
	m.totalQueries++
	m.mu.Unlock()

	if entries := m.memoryTier.Query(q); len(entries) > 0 {
		m.mu.Lock()
		m.memoryHits++
		m.mu.Unlock()
		return Result{Entries: entries, Source: SourceMemoryTier, Hit: true, LatencyMs: elapsedMs(start)}
	}

	if entries := m.networkedTier.Query(ctx, q); len(entries) > 0 {
		m.mu.Lock()
		m.redisHits++
		m.mu.Unlock()
		m.memoryTier.PutBatch(entries) // promotion
		return Result{Entries: entries, Source: SourceRedisTier, Hit: true, LatencyMs: elapsedMs(start)}
	}

	m.mu.Lock()
	m.dbHits++
	m.mu.Unlock()
	return Result{Source: SourceDatabase, Hit: false, LatencyMs: elapsedMs(start)}
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

// Put writes an entry write-through: synchronously to Memory, then
// synchronously to Networked (tolerating Networked failure — it logs and
// no-ops internally).
func (m *Manager) Put(ctx context.Context, entry timeline.TimelineEntry) {
	m.memoryTier.Put(entry)
	m.networkedTier.Put(ctx, entry)
}

// PutBatch is the write-through batch form of Put.
func (m *Manager) PutBatch(ctx context.Context, entries []timeline.TimelineEntry) {
	m.memoryTier.PutBatch(entries)
	m.networkedTier.PutBatch(ctx, entries)
}

// PutForecast writes prediction output through the same write-through path
// as Put/PutBatch, after dropping any entry that would clobber an existing
// ground-truth entry at the same entity and timestamp. Returns the entries
// actually written, so a caller can log how many were skipped.
func (m *Manager) PutForecast(ctx context.Context, entries []timeline.TimelineEntry) []timeline.TimelineEntry {
	accepted := make([]timeline.TimelineEntry, 0, len(entries))
	for _, e := range entries {
		if timeline.GroundTruthSources[e.Source] {
			continue
		}
		if m.clobbersGroundTruth(ctx, e) {
			continue
		}
		accepted = append(accepted, e)
	}
	m.PutBatch(ctx, accepted)
	return accepted
}

func (m *Manager) clobbersGroundTruth(ctx context.Context, entry timeline.TimelineEntry) bool {
	q := timeline.Query{
		EntityType: &entry.EntityType,
		EntityID:   &entry.EntityID,
		StartMs:    &entry.TimestampMs,
		EndMs:      &entry.TimestampMs,
	}
	existing := append(m.memoryTier.Query(q), m.networkedTier.Query(ctx, q)...)
	for _, ex := range existing {
		if timeline.GroundTruthSources[ex.Source] {
			return true
		}
	}
	return false
}

// StoreLiveUpdate writes to Memory synchronously and dispatches the
// Networked write as a fire-and-forget background task, so real-time ingest
// is never blocked by networked-cache latency. This is a distinct entry
// point from Put, not a flag on it.
func (m *Manager) StoreLiveUpdate(ctx context.Context, entries []timeline.TimelineEntry) {
	m.memoryTier.PutBatch(entries)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		bgCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		m.networkedTier.PutBatch(bgCtx, entries)
	}()
}

// Wait blocks until any in-flight background live-update writes complete.
// Intended for tests and graceful shutdown, not the hot path.
func (m *Manager) Wait() { m.wg.Wait() }

// Invalidate removes matching entries from Memory and Networked, in that
// order, and returns the sum of both counts. Snapshots are never
// invalidated by this path; historical archival is authoritative by design.
func (m *Manager) Invalidate(ctx context.Context, entityType *timeline.EntityType, entityID *string) int {
	n := m.memoryTier.Invalidate(entityType, entityID)
	n += m.networkedTier.Invalidate(ctx, entityType, entityID)
	return n
}

// GetStats returns the composite cross-tier statistics.
func (m *Manager) GetStats(ctx context.Context) Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var hitRate float64
	if m.totalQueries > 0 {
		hitRate = float64(m.memoryHits+m.redisHits) / float64(m.totalQueries)
	}
	return Stats{
		MemoryHits:   m.memoryHits,
		RedisHits:    m.redisHits,
		DBHits:       m.dbHits,
		TotalQueries: m.totalQueries,
		HitRate:      hitRate,
		Networked:    m.networkedTier.GetStats(ctx),
	}
}
