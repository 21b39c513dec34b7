package wildlife

import (
	"context"
	"testing"
	"time"

	"github.com/mycosoft-labs/crep/internal/prediction"
	"github.com/mycosoft-labs/crep/internal/timeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixtureStore struct{ state *timeline.EntityState }

func (f *fixtureStore) GetWildlifeState(ctx context.Context, entityID string) (*timeline.EntityState, error) {
	return f.state, nil
}

func TestMigrationModelTaggedDuringActiveMonth(t *testing.T) {
	// August falls within arctic_tern's migration window.
	t0 := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	state := &timeline.EntityState{
		EntityID:    "TERN1",
		EntityType:  timeline.Wildlife,
		TimestampMs: t0,
		Position:    timeline.GeoPoint{Lat: 70.0, Lng: -20.0},
		Species:     "arctic_tern",
	}
	store := &fixtureStore{state: state}
	p := New(store)
	base := prediction.NewBase(p, time.Minute)

	result, err := base.Predict(context.Background(), prediction.Request{
		EntityType:        timeline.Wildlife,
		EntityID:          "TERN1",
		FromTimeMs:        t0,
		ToTimeMs:           t0 + int64(6*time.Hour.Milliseconds()),
		ResolutionSeconds: 3600,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Predictions)
	for _, pr := range result.Predictions {
		assert.Equal(t, timeline.SourceMigrationModel, pr.PredictionSource)
	}
}

func TestExtrapolationWhenVelocityKnownOutsideMigrationWindow(t *testing.T) {
	// January is outside arctic_tern's migration window.
	t0 := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	state := &timeline.EntityState{
		EntityID:    "TERN2",
		EntityType:  timeline.Wildlife,
		TimestampMs: t0,
		Position:    timeline.GeoPoint{Lat: 10.0, Lng: 30.0},
		Velocity:    &timeline.Velocity{Speed: 5, Heading: 90},
		Species:     "arctic_tern",
	}
	store := &fixtureStore{state: state}
	p := New(store)
	base := prediction.NewBase(p, time.Minute)

	result, err := base.Predict(context.Background(), prediction.Request{
		EntityType:        timeline.Wildlife,
		EntityID:          "TERN2",
		FromTimeMs:        t0,
		ToTimeMs:           t0 + int64(2*time.Hour.Milliseconds()),
		ResolutionSeconds: 3600,
	})
	require.NoError(t, err)
	for _, pr := range result.Predictions {
		assert.Equal(t, timeline.SourceExtrapolation, pr.PredictionSource)
	}
}

func TestRandomWalkWhenNoVelocityAndNoMigration(t *testing.T) {
	t0 := int64(1_700_000_000_000)
	state := &timeline.EntityState{
		EntityID:    "BEAR1",
		EntityType:  timeline.Wildlife,
		TimestampMs: t0,
		Position:    timeline.GeoPoint{Lat: 45.0, Lng: -110.0},
		Species:     "brown_bear",
	}
	store := &fixtureStore{state: state}
	p := New(store)
	base := prediction.NewBase(p, time.Minute)

	result, err := base.Predict(context.Background(), prediction.Request{
		EntityType:        timeline.Wildlife,
		EntityID:          "BEAR1",
		FromTimeMs:        t0,
		ToTimeMs:           t0 + int64(3*time.Hour.Milliseconds()),
		ResolutionSeconds: 3600,
	})
	require.NoError(t, err)
	for _, pr := range result.Predictions {
		assert.Equal(t, timeline.SourceStatistical, pr.PredictionSource)
	}
}

func TestConfidenceDecaysAcrossWildlifePredictions(t *testing.T) {
	t0 := int64(1_700_000_000_000)
	state := &timeline.EntityState{
		EntityID:    "ELK1",
		EntityType:  timeline.Wildlife,
		TimestampMs: t0,
		Position:    timeline.GeoPoint{Lat: 44.0, Lng: -111.0},
		Velocity:    &timeline.Velocity{Speed: 2, Heading: 0},
	}
	store := &fixtureStore{state: state}
	p := New(store)
	base := prediction.NewBase(p, time.Minute)

	result, err := base.Predict(context.Background(), prediction.Request{
		EntityType:        timeline.Wildlife,
		EntityID:          "ELK1",
		FromTimeMs:        t0,
		ToTimeMs:           t0 + int64(2*time.Hour.Milliseconds()),
		ResolutionSeconds: 1800,
	})
	require.NoError(t, err)
	require.True(t, len(result.Predictions) >= 2)
	first := result.Predictions[0].Confidence
	last := result.Predictions[len(result.Predictions)-1].Confidence
	assert.Greater(t, first, last)
	assert.GreaterOrEqual(t, last, 0.1)
}
