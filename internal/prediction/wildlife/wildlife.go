// Package wildlife implements the Wildlife Predictor: migration-pattern
// integration when the species has an active monthly migration, velocity
// extrapolation with wandering noise when a current velocity is known, and
// a random walk otherwise.
package wildlife

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/mycosoft-labs/crep/internal/geo"
	"github.com/mycosoft-labs/crep/internal/prediction"
	"github.com/mycosoft-labs/crep/internal/timeline"
	"gonum.org/v1/gonum/stat/distuv"
)

// MigrationPattern describes a species' monthly-activated migratory leg:
// integrate along DirectionDeg at the species' SpeciesSpeeds rate while
// Months contains the UTC month of the prediction's start time.
type MigrationPattern struct {
	Months      map[time.Month]bool
	DirectionDeg float64
}

// SpeciesSpeeds maps species name to a typical daily travel speed in
// km/day.
var SpeciesSpeeds = map[string]float64{
	"arctic_tern":    90,
	"monarch_butterfly": 120,
	"gray_whale":     120,
	"caribou":        50,
	"wildebeest":     30,
	"elephant":       20,
}

// MigrationRoutes maps species name to its migration pattern.
var MigrationRoutes = map[string]MigrationPattern{
	"arctic_tern": {
		Months:       map[time.Month]bool{time.August: true, time.September: true, time.October: true},
		DirectionDeg: 180, // south for the austral summer leg
	},
	"gray_whale": {
		Months:       map[time.Month]bool{time.December: true, time.January: true, time.February: true},
		DirectionDeg: 200,
	},
	"wildebeest": {
		Months:       map[time.Month]bool{time.June: true, time.July: true},
		DirectionDeg: 270,
	},
}

// StateStore fetches the last-known state of a tracked animal.
type StateStore interface {
	GetWildlifeState(ctx context.Context, entityID string) (*timeline.EntityState, error)
}

// Predictor is the Wildlife Predictor.
type Predictor struct {
	store StateStore
	rng   *rand.Rand
}

// New constructs a Wildlife Predictor backed by store, using a
// time-seeded RNG for the noise terms.
func New(store StateStore) *Predictor {
	return &Predictor{store: store, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Params returns the wildlife-class tuning constants.
func (p *Predictor) Params() prediction.Params {
	return prediction.Params{
		EntityType:              timeline.Wildlife,
		PredictionSource:        timeline.SourceExtrapolation,
		ModelVersion:            "1.0.0",
		InitialConfidence:       0.70,
		ConfidenceHalfLifeSecs:  3600,
		MinimumConfidence:       0.1,
		MaxPredictionHorizon:    7 * 24 * time.Hour,
		MinResolutionSeconds:    60,
		MaxResolutionSeconds:    21600,
		BaseUncertaintyMeters:   5000,
		UncertaintyGrowthPerSec: 2.0,
	}
}

// GetCurrentState delegates to the backing store.
func (p *Predictor) GetCurrentState(ctx context.Context, entityID string) (*timeline.EntityState, error) {
	state, err := p.store.GetWildlifeState(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, prediction.ErrNoState
	}
	return state, nil
}

func toGeo(p timeline.GeoPoint) geo.Point { return geo.Point{Lat: p.Lat, Lng: p.Lng, Alt: p.Altitude} }
func fromGeo(p geo.Point) timeline.GeoPoint {
	return timeline.GeoPoint{Lat: p.Lat, Lng: p.Lng, Altitude: p.Alt}
}

func (p *Predictor) gaussian(sigma float64) float64 {
	return distuv.Normal{Mu: 0, Sigma: sigma, Src: p.rng}.Rand()
}

func (p *Predictor) uniform(lo, hi float64) float64 {
	return lo + p.rng.Float64()*(hi-lo)
}

func makeEntry(entityID string, tsMs int64, pos timeline.GeoPoint, vel *timeline.Velocity, src timeline.Source) timeline.TimelineEntry {
	return timeline.TimelineEntry{
		EntityType:  timeline.Wildlife,
		EntityID:    entityID,
		TimestampMs: tsMs,
		Data:        timeline.EntryData{Position: pos, Velocity: vel},
		Source:      src,
		CreatedAt:   time.Now().UnixMilli(),
	}
}

// PredictPositions dispatches to migration / extrapolation / random-walk,
// in that priority order.
func (p *Predictor) PredictPositions(ctx context.Context, state timeline.EntityState, fromMs, toMs int64, resolutionSeconds int) ([]timeline.PredictedPosition, error) {
	pattern, migrationActive := MigrationRoutes[state.Species]
	nowMonth := time.UnixMilli(fromMs).UTC().Month()

	switch {
	case migrationActive && pattern.Months[nowMonth]:
		typicalKmPerDay := SpeciesSpeeds[state.Species]
		if typicalKmPerDay == 0 {
			typicalKmPerDay = 40
		}
		return p.predictMigration(state, pattern, typicalKmPerDay, fromMs, toMs, resolutionSeconds), nil
	case state.Velocity != nil:
		return p.predictExtrapolation(state, fromMs, toMs, resolutionSeconds), nil
	default:
		typicalKmPerDay := SpeciesSpeeds[state.Species]
		if typicalKmPerDay == 0 {
			typicalKmPerDay = 10
		}
		return p.predictRandomWalk(state, typicalKmPerDay, fromMs, toMs, resolutionSeconds), nil
	}
}

func (p *Predictor) predictMigration(state timeline.EntityState, pattern MigrationPattern, typicalKmPerDay float64, fromMs, toMs int64, resolutionSeconds int) []timeline.PredictedPosition {
	current := toGeo(state.Position)
	baseSpeedMps := typicalKmPerDay * 1000 / 86400

	var out []timeline.PredictedPosition
	strideMs := int64(resolutionSeconds) * 1000
	for t := fromMs; t <= toMs; t += strideMs {
		heading := math.Mod(pattern.DirectionDeg+p.gaussian(15)+360, 360)
		speedMps := baseSpeedMps * p.uniform(0.7, 1.3)
		current = geo.Destination(current, heading, speedMps*float64(resolutionSeconds))

		vel := &timeline.Velocity{Speed: speedMps, Heading: heading}
		entry := makeEntry(state.EntityID, t, fromGeo(current), vel, timeline.SourceMigrationModel)
		out = append(out, timeline.PredictedPosition{
			TimelineEntry:    entry,
			PredictionSource: timeline.SourceMigrationModel,
			ModelVersion:     "1.0.0",
			Confidence:       1.0,
		})
	}
	return out
}

func (p *Predictor) predictExtrapolation(state timeline.EntityState, fromMs, toMs int64, resolutionSeconds int) []timeline.PredictedPosition {
	current := toGeo(state.Position)
	heading := state.Velocity.Heading
	speedMps := state.Velocity.Speed

	var out []timeline.PredictedPosition
	strideMs := int64(resolutionSeconds) * 1000
	for t := fromMs; t <= toMs; t += strideMs {
		heading = math.Mod(heading+p.gaussian(5)+360, 360)
		tickHeading := math.Mod(heading+p.gaussian(20)+360, 360)
		tickSpeed := speedMps * p.uniform(0.5, 1.5)
		current = geo.Destination(current, tickHeading, tickSpeed*float64(resolutionSeconds))

		vel := &timeline.Velocity{Speed: tickSpeed, Heading: tickHeading}
		entry := makeEntry(state.EntityID, t, fromGeo(current), vel, timeline.SourceExtrapolation)
		out = append(out, timeline.PredictedPosition{
			TimelineEntry:    entry,
			PredictionSource: timeline.SourceExtrapolation,
			ModelVersion:     "1.0.0",
			Confidence:       1.0,
		})
	}
	return out
}

func (p *Predictor) predictRandomWalk(state timeline.EntityState, typicalKmPerDay float64, fromMs, toMs int64, resolutionSeconds int) []timeline.PredictedPosition {
	current := toGeo(state.Position)
	heading := 0.0
	typicalMps := typicalKmPerDay * 1000 / 86400

	var out []timeline.PredictedPosition
	strideMs := int64(resolutionSeconds) * 1000
	for t := fromMs; t <= toMs; t += strideMs {
		heading = math.Mod(heading+p.gaussian(45)+360, 360)
		speedMps := p.uniform(0, 2*typicalMps)
		current = geo.Destination(current, heading, speedMps*float64(resolutionSeconds))

		vel := &timeline.Velocity{Speed: speedMps, Heading: heading}
		entry := makeEntry(state.EntityID, t, fromGeo(current), vel, timeline.SourceStatistical)
		out = append(out, timeline.PredictedPosition{
			TimelineEntry:    entry,
			PredictionSource: timeline.SourceStatistical,
			ModelVersion:     "1.0.0",
			Confidence:       1.0,
		})
	}
	return out
}
