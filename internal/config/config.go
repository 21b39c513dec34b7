// Package config provides configuration management functionality.
//
// Configuration is loaded from environment variables (optionally via a
// .env file) following the load order: .env file, then environment
// variables, with defaults for anything unset.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration for the CREP timeline service.
type Config struct {
	DataDir  string // base directory for snapshot/prediction-store files (always absolute)
	LogLevel string // debug, info, warn, error
	Port     int    // HTTP server port
	DevMode  bool

	RedisURL              string
	MemoryCacheTTL        time.Duration
	MemoryCacheMaxEntries int
	RedisCacheTTL         time.Duration

	SnapshotDir          string
	SnapshotBucketHours  int
	MaxLocalSnapshots    int
	S3SnapshotBucket     string // optional; empty disables the mirror

	Earth2BaseURL      string
	Earth2TimeoutSecs  int

	PredictionStoreDSN string // SQLite file path for the prediction store

	PredictionHorizonMinutes  int // how far ahead each cycle predicts
	PredictionResolutionSecs  int // stride between predicted positions
	PredictionLookbackSeconds int // how recent a live entry must be to seed a prediction
	PredictionMaxEntitiesPerType int // cap on distinct entities predicted per type per cycle
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("CREP_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	snapshotDir := getEnv("SNAPSHOT_DIR", filepath.Join(absDataDir, "snapshots"))
	predictionStoreDSN := getEnv("PREDICTION_STORE_DSN", filepath.Join(absDataDir, "predictions.db"))

	cfg := &Config{
		DataDir:  absDataDir,
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnvAsInt("GO_PORT", 8080),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		RedisURL:              getEnv("REDIS_URL", "redis://localhost:6379/0"),
		MemoryCacheTTL:        time.Duration(getEnvAsInt("MEMORY_CACHE_TTL_SECONDS", 300)) * time.Second,
		MemoryCacheMaxEntries: getEnvAsInt("MAX_MEMORY_ENTRIES", 10000),
		RedisCacheTTL:         time.Duration(getEnvAsInt("REDIS_CACHE_TTL_SECONDS", 86400)) * time.Second,

		SnapshotDir:         snapshotDir,
		SnapshotBucketHours: getEnvAsInt("SNAPSHOT_BUCKET_HOURS", 1),
		MaxLocalSnapshots:   getEnvAsInt("MAX_LOCAL_SNAPSHOTS", 168),
		S3SnapshotBucket:    getEnv("S3_SNAPSHOT_BUCKET", ""),

		Earth2BaseURL:     getEnv("EARTH2_BASE_URL", "http://localhost:8100"),
		Earth2TimeoutSecs: getEnvAsInt("EARTH2_TIMEOUT_SECONDS", 30),

		PredictionStoreDSN: predictionStoreDSN,

		PredictionHorizonMinutes:     getEnvAsInt("PREDICTION_HORIZON_MINUTES", 30),
		PredictionResolutionSecs:     getEnvAsInt("PREDICTION_RESOLUTION_SECONDS", 60),
		PredictionLookbackSeconds:    getEnvAsInt("PREDICTION_LOOKBACK_SECONDS", 900),
		PredictionMaxEntitiesPerType: getEnvAsInt("PREDICTION_MAX_ENTITIES_PER_TYPE", 200),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required configuration invariants.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.SnapshotBucketHours <= 0 {
		return fmt.Errorf("snapshot bucket hours must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
