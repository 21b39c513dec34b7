// Package statestore adapts the Cache Manager into the narrow, per-entity-
// class StateStore interfaces each predictor package declares
// (GetAircraftState, GetVesselState, GetSatelliteState, GetWildlifeState),
// so main only wires one concrete type instead of one per predictor.
package statestore

import (
	"context"

	"github.com/mycosoft-labs/crep/internal/cache/manager"
	"github.com/mycosoft-labs/crep/internal/prediction"
	"github.com/mycosoft-labs/crep/internal/timeline"
)

// CacheReader is the subset of *manager.Manager this package depends on.
type CacheReader interface {
	Get(ctx context.Context, q timeline.Query) manager.Result
}

// Store resolves an entity's last-known ground-truth state from the Cache
// Manager, for predictors that don't carry their own lookup.
type Store struct {
	cache CacheReader
}

// New wraps a Cache Manager as a StateStore.
func New(cache CacheReader) *Store {
	return &Store{cache: cache}
}

func (s *Store) latest(ctx context.Context, entityType timeline.EntityType, entityID string) (*timeline.EntityState, error) {
	et := entityType
	id := entityID
	res := s.cache.Get(ctx, timeline.Query{EntityType: &et, EntityID: &id, Limit: 500})
	if !res.Hit || len(res.Entries) == 0 {
		return nil, prediction.ErrNoState
	}

	var best *timeline.TimelineEntry
	for i := range res.Entries {
		e := &res.Entries[i]
		if !timeline.GroundTruthSources[e.Source] {
			continue
		}
		if best == nil || e.TimestampMs > best.TimestampMs {
			best = e
		}
	}
	if best == nil {
		return nil, prediction.ErrNoState
	}

	state := &timeline.EntityState{
		EntityType:  best.EntityType,
		EntityID:    best.EntityID,
		TimestampMs: best.TimestampMs,
		Position:    best.Data.Position,
		Velocity:    best.Data.Velocity,
		Metadata:    best.Data.Metadata,
	}

	if best.Data.Metadata != nil {
		if species, ok := best.Data.Metadata["species"].(string); ok {
			state.Species = species
		}
		if dest, ok := best.Data.Metadata["destination"].(string); ok {
			state.Destination = &dest
		}
		if tle1, ok := best.Data.Metadata["tle_line1"].(string); ok {
			state.TLELine1 = tle1
		}
		if tle2, ok := best.Data.Metadata["tle_line2"].(string); ok {
			state.TLELine2 = tle2
		}
	}

	return state, nil
}

// GetAircraftState implements aircraft.StateStore.
func (s *Store) GetAircraftState(ctx context.Context, entityID string) (*timeline.EntityState, error) {
	return s.latest(ctx, timeline.Aircraft, entityID)
}

// GetVesselState implements vessel.StateStore.
func (s *Store) GetVesselState(ctx context.Context, entityID string) (*timeline.EntityState, error) {
	return s.latest(ctx, timeline.Vessel, entityID)
}

// GetSatelliteState implements satellite.StateStore.
func (s *Store) GetSatelliteState(ctx context.Context, entityID string) (*timeline.EntityState, error) {
	return s.latest(ctx, timeline.Satellite, entityID)
}

// GetWildlifeState implements wildlife.StateStore.
func (s *Store) GetWildlifeState(ctx context.Context, entityID string) (*timeline.EntityState, error) {
	return s.latest(ctx, timeline.Wildlife, entityID)
}
