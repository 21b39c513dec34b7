package hazard

import (
	"context"
	"testing"
	"time"

	"github.com/mycosoft-labs/crep/internal/prediction"
	"github.com/mycosoft-labs/crep/internal/timeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEarthquakeAftershocksTaggedStatistical(t *testing.T) {
	t0 := int64(1_700_000_000_000)
	state := &timeline.EntityState{
		EntityID:    "EQ1",
		EntityType:  timeline.Earthquake,
		TimestampMs: t0,
		Position:    timeline.GeoPoint{Lat: 35.0, Lng: 139.0},
		Metadata:    map[string]interface{}{"hazard_type": "earthquake", "magnitude": 7.0},
	}
	p := New()
	base := prediction.NewBase(p, time.Minute)

	result, err := base.Predict(context.Background(), prediction.Request{
		EntityType:        timeline.Earthquake,
		EntityID:          "EQ1",
		FromTimeMs:        t0,
		ToTimeMs:           t0 + int64(6*time.Hour.Milliseconds()),
		ResolutionSeconds: 3600,
		KnownState:        state,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Predictions)
	for _, pr := range result.Predictions {
		assert.Equal(t, timeline.SourceStatistical, pr.PredictionSource)
		assert.LessOrEqual(t, pr.Confidence, 0.8)
	}
}

func TestWildfireSpreadGrowsAreaDownwind(t *testing.T) {
	t0 := int64(1_700_000_000_000)
	state := &timeline.EntityState{
		EntityID:    "FIRE1",
		EntityType:  timeline.Wildfire,
		TimestampMs: t0,
		Position:    timeline.GeoPoint{Lat: 34.0, Lng: -118.0},
		Metadata: map[string]interface{}{
			"hazard_type":     "wildfire",
			"wind_speed_kmh":  30.0,
			"wind_direction":  90.0,
			"fuel_moisture":   0.1,
			"area_hectares":   20.0,
		},
	}
	p := New()
	base := prediction.NewBase(p, time.Minute)

	result, err := base.Predict(context.Background(), prediction.Request{
		EntityType:        timeline.Earthquake, // hazards of every kind use the Earthquake class
		EntityID:          "FIRE1",
		FromTimeMs:        t0,
		ToTimeMs:           t0 + int64(3*time.Hour.Milliseconds()),
		ResolutionSeconds: 3600,
		KnownState:        state,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Predictions)
	firstArea := result.Predictions[0].Data.Metadata["area_hectares"].(float64)
	lastArea := result.Predictions[len(result.Predictions)-1].Data.Metadata["area_hectares"].(float64)
	assert.Greater(t, lastArea, firstArea)
}

func TestStormRecurvesAboveLatitude25(t *testing.T) {
	t0 := int64(1_700_000_000_000)
	state := &timeline.EntityState{
		EntityID:    "STORM1",
		EntityType:  timeline.Storm,
		TimestampMs: t0,
		Position:    timeline.GeoPoint{Lat: 28.0, Lng: -70.0},
		Velocity:    &timeline.Velocity{Speed: 25, Heading: 315},
		Metadata:    map[string]interface{}{"hazard_type": "storm"},
	}
	p := New()
	base := prediction.NewBase(p, time.Minute)

	result, err := base.Predict(context.Background(), prediction.Request{
		EntityType:        timeline.Earthquake, // hazards of every kind use the Earthquake class
		EntityID:          "STORM1",
		FromTimeMs:        t0,
		ToTimeMs:           t0 + int64(10*time.Hour.Milliseconds()),
		ResolutionSeconds: 3600,
		KnownState:        state,
	})
	require.NoError(t, err)
	require.True(t, len(result.Predictions) >= 2)
	firstHeading := result.Predictions[0].Data.Velocity.Heading
	lastHeading := result.Predictions[len(result.Predictions)-1].Data.Velocity.Heading
	assert.NotEqual(t, firstHeading, lastHeading)
}

func TestTsunamiGenerates12AzimuthMarkersPerTick(t *testing.T) {
	t0 := int64(1_700_000_000_000)
	state := &timeline.EntityState{
		EntityID:    "TSU1",
		EntityType:  timeline.Earthquake,
		TimestampMs: t0,
		Position:    timeline.GeoPoint{Lat: 38.3, Lng: 142.4},
		Metadata:    map[string]interface{}{"hazard_type": "tsunami"},
	}
	p := New()
	base := prediction.NewBase(p, time.Minute)

	result, err := base.Predict(context.Background(), prediction.Request{
		EntityType:        timeline.Earthquake,
		EntityID:          "TSU1",
		FromTimeMs:        t0,
		ToTimeMs:           t0,
		ResolutionSeconds: 60,
		KnownState:        state,
	})
	require.NoError(t, err)
	assert.Len(t, result.Predictions, 12)
}

func TestAshCloudDescendsToMinimumFloor(t *testing.T) {
	t0 := int64(1_700_000_000_000)
	state := &timeline.EntityState{
		EntityID:    "VOLC1",
		EntityType:  timeline.Weather,
		TimestampMs: t0,
		Position:    timeline.GeoPoint{Lat: -8.0, Lng: 112.0},
		Metadata: map[string]interface{}{
			"hazard_type":    "volcano",
			"wind_speed_ms":  10.0,
			"wind_direction": 270.0,
			"plume_height_m": 12000.0,
		},
	}
	p := New()
	base := prediction.NewBase(p, time.Minute)

	result, err := base.Predict(context.Background(), prediction.Request{
		EntityType:        timeline.Earthquake, // hazards of every kind use the Earthquake class
		EntityID:          "VOLC1",
		FromTimeMs:        t0,
		ToTimeMs:           t0 + int64(48*time.Hour.Milliseconds()),
		ResolutionSeconds: 3600,
		KnownState:        state,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Predictions)
	last := result.Predictions[len(result.Predictions)-1]
	assert.GreaterOrEqual(t, *last.Data.Position.Altitude, 1000.0)
}

func TestUnknownHazardTypeErrors(t *testing.T) {
	state := timeline.EntityState{
		EntityID:   "X1",
		EntityType: timeline.Earthquake,
		Metadata:   map[string]interface{}{"hazard_type": "asteroid"},
	}
	p := New()
	_, err := p.PredictPositions(context.Background(), state, 0, 60000, 60)
	assert.Error(t, err)
}
