// Package networked implements the Networked Cache tier: a Redis-backed
// shared cache with TTL entry keys and a sorted-set time index per entity,
// so hot and warm entries survive process restarts and are visible across
// processes. Connectivity is best-effort: if the backing store is
// unreachable the cache degrades to no-op reads/writes rather than failing
// the caller.
package networked

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mycosoft-labs/crep/internal/timeline"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	// DefaultTTL is the default entry/index TTL, 24 hours.
	DefaultTTL = 24 * time.Hour
	// scanCount is the COUNT hint passed to SCAN when no entity_id narrows
	// the query or invalidation to a single index key.
	scanCount = 200
)

// Cache is the Networked Cache tier.
type Cache struct {
	client    *redis.Client
	ttl       time.Duration
	log       zerolog.Logger
	connected bool
}

// Config configures the Networked Cache's Redis connection.
type Config struct {
	URL string
	TTL time.Duration
}

// New constructs a Networked Cache and performs a best-effort connect. A
// failed connect does not return an error: Connected() reports false and
// every operation degrades to a no-op, per the "connect is idempotent and
// best-effort" contract.
func New(ctx context.Context, cfg Config, log zerolog.Logger) *Cache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{ttl: ttl, log: log.With().Str("component", "networked_cache").Logger()}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		c.log.Warn().Err(err).Str("url", cfg.URL).Msg("invalid redis URL, networked cache disabled")
		return c
	}
	c.client = redis.NewClient(opts)
	c.Reconnect(ctx)
	return c
}

// Reconnect re-probes connectivity; safe to call repeatedly.
func (c *Cache) Reconnect(ctx context.Context) {
	if c.client == nil {
		return
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.client.Ping(pingCtx).Err(); err != nil {
		c.connected = false
		c.log.Warn().Err(err).Msg("networked cache unreachable, degrading to no-op")
		return
	}
	c.connected = true
}

// Connected reports whether the backing store answered the last probe.
func (c *Cache) Connected() bool { return c.connected }

func encode(e timeline.TimelineEntry) ([]byte, error) { return msgpack.Marshal(e) }

func decode(b []byte) (timeline.TimelineEntry, error) {
	var e timeline.TimelineEntry
	err := msgpack.Unmarshal(b, &e)
	return e, err
}

// Put writes one entry: SETEX the entry key, ZADD it to the entity's time
// index, and refresh the index TTL. Failures are logged, never returned.
func (c *Cache) Put(ctx context.Context, entry timeline.TimelineEntry) {
	c.PutBatch(ctx, []timeline.TimelineEntry{entry})
}

// PutBatch pipelines the same writes as Put across many entries.
func (c *Cache) PutBatch(ctx context.Context, entries []timeline.TimelineEntry) {
	if !c.connected || len(entries) == 0 {
		return
	}

	indexTTLByKey := make(map[string]bool)
	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range entries {
			payload, encErr := encode(e)
			if encErr != nil {
				c.log.Warn().Err(encErr).Str("entity_id", e.EntityID).Msg("failed to encode entry")
				continue
			}
			pipe.Set(ctx, e.CacheKey(), payload, c.ttl)
			pipe.ZAdd(ctx, e.IndexKey(), redis.Z{Score: float64(e.TimestampMs), Member: e.CacheKey()})
			indexTTLByKey[e.IndexKey()] = true
		}
		for idxKey := range indexTTLByKey {
			pipe.Expire(ctx, idxKey, c.ttl)
		}
		return nil
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("networked cache pipelined write failed")
	}
}

// scoreBounds maps an optional [start,end] range onto Redis's ±inf score
// sentinels for ZRangeByScore.
func scoreBounds(startMs, endMs *int64) (string, string) {
	min, max := "-inf", "+inf"
	if startMs != nil {
		min = strconv.FormatInt(*startMs, 10)
	}
	if endMs != nil {
		max = strconv.FormatInt(*endMs, 10)
	}
	return min, max
}

func (c *Cache) indexKeysFor(ctx context.Context, q timeline.Query) []string {
	if q.EntityType != nil && q.EntityID != nil {
		return []string{timeline.IndexKey(*q.EntityType, *q.EntityID)}
	}
	pattern := "timeline:idx:*"
	if q.EntityType != nil {
		pattern = fmt.Sprintf("timeline:idx:%s:*", *q.EntityType)
	}
	var keys []string
	iter := c.client.Scan(ctx, 0, pattern, scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.log.Warn().Err(err).Msg("networked cache scan failed")
	}
	return keys
}

// Query resolves the relevant index key(s), range-selects entry keys by
// timestamp score, and batch-fetches payloads via MGET.
func (c *Cache) Query(ctx context.Context, q timeline.Query) []timeline.TimelineEntry {
	if !c.connected {
		return nil
	}

	indexKeys := c.indexKeysFor(ctx, q)
	if len(indexKeys) == 0 {
		return nil
	}

	min, max := scoreBounds(q.StartMs, q.EndMs)

	var entryKeys []string
	for _, idxKey := range indexKeys {
		members, err := c.client.ZRangeByScore(ctx, idxKey, &redis.ZRangeBy{Min: min, Max: max}).Result()
		if err != nil {
			c.log.Warn().Err(err).Str("index_key", idxKey).Msg("zrangebyscore failed")
			continue
		}
		entryKeys = append(entryKeys, members...)
	}
	if len(entryKeys) == 0 {
		return nil
	}

	raw, err := c.client.MGet(ctx, entryKeys...).Result()
	if err != nil {
		c.log.Warn().Err(err).Msg("mget failed")
		return nil
	}

	now := time.Now().UnixMilli()
	var results []timeline.TimelineEntry
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		e, decErr := decode([]byte(s))
		if decErr != nil {
			continue
		}
		if e.IsExpired(now) {
			continue
		}
		if q.Source != nil && e.Source != *q.Source {
			continue
		}
		if q.Viewport != nil && !q.Viewport.Contains(e.Data.Position) {
			continue
		}
		results = append(results, e)
		if q.Limit > 0 && len(results) >= q.Limit {
			break
		}
	}
	return results
}

// Invalidate removes entries for an entity (exact path, when both type and
// id are known) or pattern-scans otherwise. Returns the count removed.
//
// TODO: the pattern-scan path is O(total keys); at large scale a secondary
// recent-entity-id index would be preferable to a blind SCAN.
func (c *Cache) Invalidate(ctx context.Context, entityType *timeline.EntityType, entityID *string) int {
	if !c.connected {
		return 0
	}

	if entityType != nil && entityID != nil {
		idxKey := timeline.IndexKey(*entityType, *entityID)
		members, err := c.client.ZRange(ctx, idxKey, 0, -1).Result()
		if err != nil {
			c.log.Warn().Err(err).Msg("zrange failed during invalidate")
			return 0
		}
		if len(members) > 0 {
			c.client.Del(ctx, members...)
		}
		c.client.Del(ctx, idxKey)
		return len(members)
	}

	pattern := "timeline:*"
	if entityType != nil {
		pattern = fmt.Sprintf("timeline:*:%s:*", *entityType)
	}
	count := 0
	iter := c.client.Scan(ctx, 0, pattern, scanCount).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= scanCount {
			c.client.Del(ctx, batch...)
			count += len(batch)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		c.client.Del(ctx, batch...)
		count += len(batch)
	}
	if err := iter.Err(); err != nil {
		c.log.Warn().Err(err).Msg("networked cache scan failed during invalidate")
	}
	return count
}

// Stats exposes connection state and a coarse key count.
type Stats struct {
	Connected bool
	TotalKeys int64
	UsedMemoryBytes int64
}

// GetStats reports connection state, memory usage, and total keys via
// Redis's INFO and DBSIZE.
func (c *Cache) GetStats(ctx context.Context) Stats {
	if !c.connected {
		return Stats{Connected: false}
	}
	stats := Stats{Connected: true}
	if n, err := c.client.DBSize(ctx).Result(); err == nil {
		stats.TotalKeys = n
	}
	if info, err := c.client.Info(ctx, "memory").Result(); err == nil {
		stats.UsedMemoryBytes = parseUsedMemory(info)
	}
	return stats
}

func parseUsedMemory(info string) int64 {
	const marker = "used_memory:"
	idx := strings.Index(info, marker)
	if idx < 0 {
		return 0
	}
	rest := info[idx+len(marker):]
	end := strings.Index(rest, "\r\n")
	if end < 0 {
		end = len(rest)
	}
	n, _ := strconv.ParseInt(rest[:end], 10, 64)
	return n
}
