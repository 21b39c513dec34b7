// Package main is the entry point for the CREP timeline service: a
// read-heavy, multi-tier cache of entity positions (aircraft, vessel,
// satellite, wildlife, hazard) plus the prediction engine that synthesizes
// future positions for them.
//
// Startup order:
//  1. Load configuration from environment variables
//  2. Initialize structured logging
//  3. Wire the three cache tiers (Memory, Networked, Snapshot) and the
//     Cache Manager over them
//  4. Wire the Prediction Store and the Earth-2 Forecaster
//  5. Wire every entity-class predictor behind prediction.Base
//  6. Register periodic maintenance jobs on the Scheduler
//  7. Start the HTTP health/status server
//  8. Wait for SIGINT/SIGTERM and shut down gracefully
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mycosoft-labs/crep/internal/cache/manager"
	"github.com/mycosoft-labs/crep/internal/cache/memory"
	"github.com/mycosoft-labs/crep/internal/cache/networked"
	"github.com/mycosoft-labs/crep/internal/cache/snapshot"
	"github.com/mycosoft-labs/crep/internal/config"
	"github.com/mycosoft-labs/crep/internal/earth2"
	"github.com/mycosoft-labs/crep/internal/prediction"
	"github.com/mycosoft-labs/crep/internal/prediction/aircraft"
	"github.com/mycosoft-labs/crep/internal/prediction/hazard"
	"github.com/mycosoft-labs/crep/internal/prediction/satellite"
	"github.com/mycosoft-labs/crep/internal/prediction/vessel"
	"github.com/mycosoft-labs/crep/internal/prediction/wildlife"
	"github.com/mycosoft-labs/crep/internal/predictionstore"
	"github.com/mycosoft-labs/crep/internal/scheduler"
	"github.com/mycosoft-labs/crep/internal/server"
	"github.com/mycosoft-labs/crep/internal/statestore"
	"github.com/mycosoft-labs/crep/internal/timeline"
	"github.com/mycosoft-labs/crep/pkg/logger"
)

// predictors bundles every entity-class predictor the service exposes,
// each already wrapped in the shared prediction.Base machinery.
type predictors struct {
	aircraft  *prediction.Base
	vessel    *prediction.Base
	satellite *prediction.Base
	wildlife  *prediction.Base
	hazard    *prediction.Base
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	logger.SetGlobalLogger(log)

	instanceID := uuid.New().String()
	log = log.With().Str("instance_id", instanceID).Logger()
	log.Info().Msg("starting CREP timeline service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Cache tiers ---
	memCache := memory.New(memory.Config{
		MaxEntries: cfg.MemoryCacheMaxEntries,
		TTL:        cfg.MemoryCacheTTL,
	}, log)

	netCache := networked.New(ctx, networked.Config{
		URL: cfg.RedisURL,
		TTL: cfg.RedisCacheTTL,
	}, log)

	snapStore, err := snapshot.New(snapshot.Config{
		Root:        cfg.SnapshotDir,
		BucketHours: cfg.SnapshotBucketHours,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open snapshot store")
	}

	if mirror, err := snapshot.NewS3Mirror(ctx, cfg.S3SnapshotBucket, log); err != nil {
		log.Warn().Err(err).Msg("snapshot s3 mirror disabled")
	} else if mirror != nil {
		snapStore.SetMirror(mirror)
		log.Info().Str("bucket", cfg.S3SnapshotBucket).Msg("snapshot s3 mirror enabled")
	}

	cacheMgr := manager.New(memCache, netCache, log)

	// --- Prediction store ---
	predStore, err := predictionstore.New(cfg.PredictionStoreDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open prediction store")
	}
	defer func() {
		if err := predStore.Close(); err != nil {
			log.Error().Err(err).Msg("error closing prediction store")
		}
	}()

	// --- Earth-2 forecaster ---
	forecaster := earth2.New(earth2.Config{
		GatewayURL: cfg.Earth2BaseURL,
		Timeout:    time.Duration(cfg.Earth2TimeoutSecs) * time.Second,
	}, log)
	forecaster.Initialize(ctx)

	// --- Predictors ---
	store := statestore.New(cacheMgr)
	preds := predictors{
		aircraft:  prediction.NewBase(aircraft.New(store), 60*time.Second),
		vessel:    prediction.NewBase(vessel.New(store), 60*time.Second),
		satellite: prediction.NewBase(satellite.New(store, nil), 60*time.Second),
		wildlife:  prediction.NewBase(wildlife.New(store), 60*time.Second),
		hazard:    prediction.NewBase(hazard.New(), 60*time.Second),
	}

	// --- Scheduler: periodic maintenance ---
	sched := scheduler.New(log)

	if err := sched.Register(ctx, scheduler.Job{
		Name: "snapshot-cleanup",
		Spec: "0 * * * *", // hourly
		Run: func(ctx context.Context) error {
			maxAgeMs := int64(cfg.MaxLocalSnapshots) * time.Hour.Milliseconds()
			removed, err := snapStore.Cleanup(maxAgeMs)
			if err != nil {
				return err
			}
			log.Info().Int("removed", removed).Msg("snapshot cleanup complete")
			return nil
		},
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to register snapshot cleanup job")
	}

	if err := sched.Register(ctx, scheduler.Job{
		Name: "prediction-cycle",
		Spec: "*/2 * * * *", // every two minutes
		Run: func(ctx context.Context) error {
			return runPredictionCycle(
				ctx, cacheMgr, predStore, preds,
				int64(cfg.PredictionLookbackSeconds)*1000,
				int64(cfg.PredictionHorizonMinutes)*60*1000,
				cfg.PredictionResolutionSecs,
				cfg.PredictionMaxEntitiesPerType,
				log,
			)
		},
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to register prediction cycle job")
	}

	if err := sched.Register(ctx, scheduler.Job{
		Name: "prediction-store-cleanup",
		Spec: "30 * * * *", // hourly, offset from snapshot cleanup
		Run: func(ctx context.Context) error {
			olderThanMs := time.Now().Add(-24 * time.Hour).UnixMilli()
			total := 0
			for _, et := range []timeline.EntityType{
				timeline.Aircraft, timeline.Vessel, timeline.Satellite,
				timeline.Wildlife, timeline.Earthquake, timeline.Wildfire,
				timeline.Storm, timeline.Weather,
			} {
				removed, err := predStore.CleanupOldPredictions(ctx, et, olderThanMs)
				if err != nil {
					return err
				}
				total += removed
			}
			log.Info().Int("removed", total).Msg("prediction store cleanup complete")
			return nil
		},
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to register prediction store cleanup job")
	}

	if err := sched.Register(ctx, scheduler.Job{
		Name: "cache-stats",
		Spec: "*/5 * * * *", // every five minutes
		Run: func(ctx context.Context) error {
			stats := cacheMgr.GetStats(ctx)
			log.Info().
				Int64("memory_hits", stats.MemoryHits).
				Int64("redis_hits", stats.RedisHits).
				Int64("db_hits", stats.DBHits).
				Float64("hit_rate", stats.HitRate).
				Msg("cache stats")
			return nil
		},
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to register cache stats job")
	}

	if err := sched.Register(ctx, scheduler.Job{
		Name: "earth2-health-probe",
		Spec: "*/2 * * * *", // every two minutes
		Run: func(ctx context.Context) error {
			forecaster.Initialize(ctx)
			return nil
		},
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to register earth2 health probe job")
	}

	sched.Start()
	log.Info().Msg("scheduler started")

	// --- HTTP server ---
	srv := server.New(server.Config{
		Port:    cfg.Port,
		Log:     log,
		Cache:   cacheMgr,
		DevMode: cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("HTTP server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal received")

	cancel()
	sched.Stop()
	cacheMgr.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("CREP timeline service stopped")
}
