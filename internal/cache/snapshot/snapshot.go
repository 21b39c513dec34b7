// Package snapshot implements the Snapshot Store tier: gzip-compressed
// hourly bucket files on disk, indexed by an in-memory map that is
// persisted alongside them as a JSON document.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/mycosoft-labs/crep/internal/timeline"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	// DefaultBucketHours is the fixed bucket stride, one hour.
	DefaultBucketHours = 1
	// DefaultMaxLocalSnapshots bounds retention to one week of hourly buckets.
	DefaultMaxLocalSnapshots = 168
	indexFileName            = "index"
)

// Metadata describes one on-disk bucket.
type Metadata struct {
	BucketStartMs int64  `json:"bucket_start_ms"`
	BucketEndMs   int64  `json:"bucket_end_ms"`
	EntryCount    int    `json:"entry_count"`
	FileSizeBytes int64  `json:"file_size"`
	CreatedAt     int64  `json:"created_at"`
	FilePath      string `json:"file_path"`
}

// Store is the Snapshot Store.
type Store struct {
	root        string
	bucketHours int
	mu          sync.RWMutex
	index       map[string]Metadata
	log         zerolog.Logger
	mirror      *S3Mirror
}

// Config configures the Snapshot Store's root directory and bucket stride.
type Config struct {
	Root        string
	BucketHours int
}

// New opens (or creates) a Snapshot Store rooted at cfg.Root, loading any
// existing index file.
func New(cfg Config, log zerolog.Logger) (*Store, error) {
	bh := cfg.BucketHours
	if bh <= 0 {
		bh = DefaultBucketHours
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot store: create root: %w", err)
	}
	s := &Store{
		root:        cfg.Root,
		bucketHours: bh,
		index:       make(map[string]Metadata),
		log:         log.With().Str("component", "snapshot_store").Logger(),
	}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

// SetMirror attaches an optional S3 mirror; nil disables mirroring.
func (s *Store) SetMirror(mirror *S3Mirror) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirror = mirror
}

func (s *Store) indexPath() string { return filepath.Join(s.root, indexFileName) }

func (s *Store) loadIndex() error {
	data, err := os.ReadFile(s.indexPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("snapshot store: read index: %w", err)
	}
	var idx map[string]Metadata
	if err := json.Unmarshal(data, &idx); err != nil {
		return fmt.Errorf("snapshot store: parse index: %w", err)
	}
	s.index = idx
	return nil
}

// persistIndexLocked writes the index file atomically. Caller holds s.mu.
func (s *Store) persistIndexLocked() error {
	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot store: marshal index: %w", err)
	}
	tmp := s.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("snapshot store: write index: %w", err)
	}
	return os.Rename(tmp, s.indexPath())
}

// bucketStart rounds a timestamp down to its bucket boundary.
func (s *Store) bucketStart(tsMs int64) int64 {
	strideMs := int64(s.bucketHours) * 3600 * 1000
	return (tsMs / strideMs) * strideMs
}

// BucketKey returns the deterministic bucket key for (entityType, tsMs):
// "<entity_type>/YYYY-MM-DD/HH".
func (s *Store) BucketKey(entityType timeline.EntityType, tsMs int64) string {
	start := s.bucketStart(tsMs)
	t := time.UnixMilli(start).UTC()
	return fmt.Sprintf("%s/%s/%02d", entityType, t.Format("2006-01-02"), t.Hour())
}

func (s *Store) bucketPath(key string) string {
	return filepath.Join(s.root, key+".bin")
}

func (s *Store) bucketRange(key string, entityType timeline.EntityType, tsMs int64) (int64, int64) {
	start := s.bucketStart(tsMs)
	strideMs := int64(s.bucketHours) * 3600 * 1000
	return start, start + strideMs - 1
}

// CreateSnapshot serializes and gzip-compresses entries, writes them
// atomically (write-to-temp, rename) to the bucket for
// (entityType, bucketStartMs), and updates the index. If a bucket already
// exists at that key it is replaced.
func (s *Store) CreateSnapshot(entityType timeline.EntityType, entries []timeline.TimelineEntry, bucketStartMs int64) (Metadata, error) {
	key := s.BucketKey(entityType, bucketStartMs)
	path := s.bucketPath(key)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Metadata{}, fmt.Errorf("snapshot store: create bucket dir: %w", err)
	}

	payload, err := msgpack.Marshal(entries)
	if err != nil {
		return Metadata{}, fmt.Errorf("snapshot store: encode bucket: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return Metadata{}, fmt.Errorf("snapshot store: create temp file: %w", err)
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write(payload); err != nil {
		gz.Close()
		f.Close()
		return Metadata{}, fmt.Errorf("snapshot store: write bucket: %w", err)
	}
	if err := gz.Close(); err != nil {
		f.Close()
		return Metadata{}, fmt.Errorf("snapshot store: close gzip writer: %w", err)
	}
	if err := f.Close(); err != nil {
		return Metadata{}, fmt.Errorf("snapshot store: close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return Metadata{}, fmt.Errorf("snapshot store: rename bucket file: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("snapshot store: stat bucket file: %w", err)
	}

	start, end := s.bucketRange(key, entityType, bucketStartMs)
	meta := Metadata{
		BucketStartMs: start,
		BucketEndMs:   end,
		EntryCount:    len(entries),
		FileSizeBytes: info.Size(),
		CreatedAt:     time.Now().UnixMilli(),
		FilePath:      path,
	}

	s.mu.Lock()
	s.index[key] = meta
	err = s.persistIndexLocked()
	s.mu.Unlock()
	if err != nil {
		return Metadata{}, err
	}

	s.log.Info().Str("bucket_key", key).Int("entries", len(entries)).Msg("created snapshot")

	s.mu.RLock()
	mirror := s.mirror
	s.mu.RUnlock()
	if mirror != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := mirror.Mirror(ctx, key, path); err != nil {
				s.log.Warn().Err(err).Str("bucket_key", key).Msg("snapshot s3 mirror failed")
			}
		}()
	}

	return meta, nil
}

// ReadSnapshot returns the entries in a bucket, in storage order. A missing
// bucket degrades to an empty list, not an error; an unreadable bucket is
// logged and also degrades to empty, per the Snapshot Store's read failure
// semantics.
func (s *Store) ReadSnapshot(bucketKey string) []timeline.TimelineEntry {
	s.mu.RLock()
	meta, ok := s.index[bucketKey]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	f, err := os.Open(meta.FilePath)
	if err != nil {
		s.log.Warn().Err(err).Str("bucket_key", bucketKey).Msg("snapshot file unreadable")
		return nil
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		s.log.Warn().Err(err).Str("bucket_key", bucketKey).Msg("snapshot file corrupt")
		return nil
	}
	defer gz.Close()

	var payload []byte
	buf := make([]byte, 32*1024)
	for {
		n, readErr := gz.Read(buf)
		if n > 0 {
			payload = append(payload, buf[:n]...)
		}
		if readErr != nil {
			break
		}
	}

	var entries []timeline.TimelineEntry
	if err := msgpack.Unmarshal(payload, &entries); err != nil {
		s.log.Warn().Err(err).Str("bucket_key", bucketKey).Msg("snapshot payload corrupt")
		return nil
	}
	return entries
}

// QuerySnapshots iterates the bucket keys overlapping [startMs,endMs] at the
// fixed bucket stride, reads each, and returns entries whose timestamp lies
// in the exact range, concatenated in bucket order.
func (s *Store) QuerySnapshots(entityType timeline.EntityType, startMs, endMs int64) []timeline.TimelineEntry {
	strideMs := int64(s.bucketHours) * 3600 * 1000
	var results []timeline.TimelineEntry
	for bucketStart := s.bucketStart(startMs); bucketStart <= endMs; bucketStart += strideMs {
		key := s.BucketKey(entityType, bucketStart)
		for _, e := range s.ReadSnapshot(key) {
			if e.TimestampMs >= startMs && e.TimestampMs <= endMs {
				results = append(results, e)
			}
		}
	}
	return results
}

// Cleanup removes buckets whose end time is older than maxAgeMs before now,
// updating the index. Returns the number of buckets removed.
func (s *Store) Cleanup(maxAgeMs int64) (int, error) {
	cutoff := time.Now().UnixMilli() - maxAgeMs

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, meta := range s.index {
		if meta.BucketEndMs < cutoff {
			if err := os.Remove(meta.FilePath); err != nil && !os.IsNotExist(err) {
				s.log.Warn().Err(err).Str("bucket_key", key).Msg("failed to remove expired snapshot file")
				continue
			}
			delete(s.index, key)
			removed++
		}
	}
	if removed > 0 {
		if err := s.persistIndexLocked(); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// List returns the metadata of every bucket currently in the index.
func (s *Store) List() map[string]Metadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Metadata, len(s.index))
	for k, v := range s.index {
		out[k] = v
	}
	return out
}

// Stats summarizes the store's footprint, broken down by entity type, per
// the supplemented get_stats() feature from snapshot_manager.py.
type Stats struct {
	TotalBuckets int
	TotalEntries int
	TotalBytes   int64
	ByEntityType map[timeline.EntityType]int
}

// Stats computes a snapshot of the store's current footprint.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{ByEntityType: make(map[timeline.EntityType]int)}
	for key, meta := range s.index {
		stats.TotalBuckets++
		stats.TotalEntries += meta.EntryCount
		stats.TotalBytes += meta.FileSizeBytes
		et := entityTypeFromKey(key)
		stats.ByEntityType[et]++
	}
	return stats
}

func entityTypeFromKey(key string) timeline.EntityType {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return timeline.EntityType(key[:i])
		}
	}
	return timeline.EntityType(key)
}

// HumanSize renders a byte count the way an operator dashboard would.
func HumanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
