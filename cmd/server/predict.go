package main

import (
	"context"

	"github.com/mycosoft-labs/crep/internal/cache/manager"
	"github.com/mycosoft-labs/crep/internal/prediction"
	"github.com/mycosoft-labs/crep/internal/predictionstore"
	"github.com/mycosoft-labs/crep/internal/timeline"
	"github.com/rs/zerolog"
)

// predictionTarget pairs an entity class with the prediction.Base that
// serves it, for the purposes of the periodic prediction cycle below.
// Hazard events of every kind (earthquake, wildfire, storm, tsunami,
// volcano) are filed under timeline.Earthquake, matching hazard.Predictor's
// fixed Params().EntityType — hazard_type metadata on the entry picks the
// actual model.
type predictionTarget struct {
	entityType timeline.EntityType
	base       *prediction.Base
}

func (p predictors) targets() []predictionTarget {
	return []predictionTarget{
		{timeline.Aircraft, p.aircraft},
		{timeline.Vessel, p.vessel},
		{timeline.Satellite, p.satellite},
		{timeline.Wildlife, p.wildlife},
		{timeline.Earthquake, p.hazard},
	}
}

// runPredictionCycle drives every predictor over its currently live
// entities: it queries the Cache Manager for recently seen entities of each
// target's entity type, predicts forward from each one's last known state,
// persists the result to the Prediction Store, and writes the predictions
// through the Cache Manager's forecast path so predictions and history
// answer the same query.
func runPredictionCycle(
	ctx context.Context,
	cacheMgr *manager.Manager,
	predStore *predictionstore.Store,
	preds predictors,
	lookbackMs int64,
	horizonMs int64,
	resolutionSeconds int,
	maxEntitiesPerType int,
	log zerolog.Logger,
) error {
	nowMs := predictionstore.Now()
	fromMs := nowMs - lookbackMs

	var totalStored, totalWritten int
	for _, target := range preds.targets() {
		entityType := target.entityType
		entries := cacheMgr.Get(ctx, timeline.Query{
			EntityType: &entityType,
			StartMs:    &fromMs,
			Limit:      maxEntitiesPerType * 10,
		}).Entries

		latestByEntity := make(map[string]timeline.TimelineEntry, len(entries))
		for _, e := range entries {
			if timeline.GroundTruthSources[e.Source] {
				if existing, ok := latestByEntity[e.EntityID]; !ok || e.TimestampMs > existing.TimestampMs {
					latestByEntity[e.EntityID] = e
				}
			}
		}

		count := 0
		for entityID, entry := range latestByEntity {
			if count >= maxEntitiesPerType {
				break
			}
			count++

			state := entityStateFromEntry(entry)

			result, err := target.base.Predict(ctx, prediction.Request{
				EntityType:        entityType,
				EntityID:          entityID,
				FromTimeMs:        nowMs,
				ToTimeMs:          nowMs + horizonMs,
				ResolutionSeconds: resolutionSeconds,
				IncludeUncertainty: true,
				KnownState:        &state,
			})
			if err != nil {
				log.Warn().Err(err).Str("entity_id", entityID).Str("entity_type", string(entityType)).Msg("prediction cycle: predict failed")
				continue
			}
			if len(result.Predictions) == 0 {
				continue
			}

			stored, err := predStore.StorePredictions(ctx, result, true)
			if err != nil {
				log.Error().Err(err).Str("entity_id", entityID).Msg("prediction cycle: store failed")
				continue
			}
			totalStored += stored

			forecastEntries := make([]timeline.TimelineEntry, len(result.Predictions))
			for i, pred := range result.Predictions {
				forecastEntries[i] = pred.TimelineEntry
			}
			written := cacheMgr.PutForecast(ctx, forecastEntries)
			totalWritten += len(written)
		}
	}

	log.Info().Int("stored", totalStored).Int("written", totalWritten).Msg("prediction cycle complete")
	return nil
}

func entityStateFromEntry(entry timeline.TimelineEntry) timeline.EntityState {
	state := timeline.EntityState{
		EntityType:  entry.EntityType,
		EntityID:    entry.EntityID,
		TimestampMs: entry.TimestampMs,
		Position:    entry.Data.Position,
		Velocity:    entry.Data.Velocity,
		Metadata:    entry.Data.Metadata,
	}
	if entry.Data.Metadata == nil {
		return state
	}
	if species, ok := entry.Data.Metadata["species"].(string); ok {
		state.Species = species
	}
	if dest, ok := entry.Data.Metadata["destination"].(string); ok {
		state.Destination = &dest
	}
	if tle1, ok := entry.Data.Metadata["tle_line1"].(string); ok {
		state.TLELine1 = tle1
	}
	if tle2, ok := entry.Data.Metadata["tle_line2"].(string); ok {
		state.TLELine2 = tle2
	}
	return state
}
