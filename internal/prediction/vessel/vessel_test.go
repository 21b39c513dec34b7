package vessel

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

func (f *fixtureStore) GetVesselState(ctx context.Context, entityID string) (*timeline.EntityState, error) {
	return f.state, nil
}

func TestRouteToDestinationTagged(t *testing.T) {
	t0 := int64(1_700_000_000_000)
	dest := "NLRTM"
	state := &timeline.EntityState{
		EntityID:    "V1",
		EntityType:  timeline.Vessel,
		TimestampMs: t0,
		Position:    timeline.GeoPoint{Lat: 40.7, Lng: -50.0},
		Velocity:    &timeline.Velocity{Speed: 15, Heading: 90},
		Destination: &dest,
	}
	store := &fixtureStore{state: state}
	p := New(store)
	base := prediction.NewBase(p, time.Minute)

	result, err := base.Predict(context.Background(), prediction.Request{
		EntityType:        timeline.Vessel,
		EntityID:          "V1",
		FromTimeMs:        t0,
		ToTimeMs:           t0 + int64(5*time.Hour.Milliseconds()),
		ResolutionSeconds: 3600,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Predictions)
	for _, pr := range result.Predictions {
		assert.Equal(t, timeline.SourceRoutePlan, pr.PredictionSource)
	}
}

func TestUnknownDestinationFallsBackToExtrapolation(t *testing.T) {
	t0 := int64(1_700_000_000_000)
	dest := "ZZZZZ"
	state := &timeline.EntityState{
		EntityID:    "V2",
		EntityType:  timeline.Vessel,
		TimestampMs: t0,
		Position:    timeline.GeoPoint{Lat: 10, Lng: 10},
		Velocity:    &timeline.Velocity{Speed: 12, Heading: 45},
		Destination: &dest,
	}
	store := &fixtureStore{state: state}
	p := New(store)
	base := prediction.NewBase(p, time.Minute)

	result, err := base.Predict(context.Background(), prediction.Request{
		EntityType:        timeline.Vessel,
		EntityID:          "V2",
		FromTimeMs:        t0,
		ToTimeMs:           t0 + int64(2*time.Hour.Milliseconds()),
		ResolutionSeconds: 3600,
	})
	require.NoError(t, err)
	for _, pr := range result.Predictions {
		assert.Equal(t, timeline.SourceExtrapolation, pr.PredictionSource)
	}
}
