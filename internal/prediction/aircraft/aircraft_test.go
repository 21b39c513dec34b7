package aircraft

import (
	"context"
	"testing"
	"time"

	"github.com/mycosoft-labs/crep/internal/prediction"
	"github.com/mycosoft-labs/crep/internal/timeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixtureStore struct {
	state *timeline.EntityState
}

func (f *fixtureStore) GetAircraftState(ctx context.Context, entityID string) (*timeline.EntityState, error) {
	return f.state, nil
}

func altPtrT(v float64) *float64 { return &v }

// Aircraft route-following.
func TestRouteFollowingScenario(t *testing.T) {
	t0 := int64(1_700_000_000_000)
	state := &timeline.EntityState{
		EntityID:    "N1",
		EntityType:  timeline.Aircraft,
		TimestampMs: t0,
		Position:    timeline.GeoPoint{Lat: 47.45, Lng: -122.30, Altitude: altPtrT(3000)},
		Velocity:    &timeline.Velocity{Speed: 250, Heading: 90},
		FlightPlan: &timeline.FlightPlan{Waypoints: []timeline.Waypoint{
			{Lat: 47.45, Lng: -122.30, Altitude: altPtrT(3000)},
			{Lat: 47.45, Lng: -100.00, Altitude: altPtrT(35000)},
			{Lat: 41.97, Lng: -87.90, Altitude: altPtrT(3000)},
		}},
	}
	store := &fixtureStore{state: state}
	p := New(store)
	base := prediction.NewBase(p, time.Minute)

	result, err := base.Predict(context.Background(), prediction.Request{
		EntityType:        timeline.Aircraft,
		EntityID:          "N1",
		FromTimeMs:        t0,
		ToTimeMs:           t0 + int64(2*time.Hour.Milliseconds()),
		ResolutionSeconds: 300,
	})
	require.NoError(t, err)
	require.Len(t, result.Predictions, 25)

	for _, pr := range result.Predictions {
		assert.Equal(t, timeline.SourceFlightPlan, pr.PredictionSource)
	}

	final := result.Predictions[len(result.Predictions)-1]
	assert.GreaterOrEqual(t, final.Confidence, 0.2)
}

func TestVectorExtrapolationWhenNoFlightPlan(t *testing.T) {
	t0 := int64(1_700_000_000_000)
	state := &timeline.EntityState{
		EntityID:    "N2",
		EntityType:  timeline.Aircraft,
		TimestampMs: t0,
		Position:    timeline.GeoPoint{Lat: 47.45, Lng: -122.30, Altitude: altPtrT(10000)},
		Velocity:    &timeline.Velocity{Speed: 250, Heading: 90},
	}
	store := &fixtureStore{state: state}
	p := New(store)
	base := prediction.NewBase(p, time.Minute)

	result, err := base.Predict(context.Background(), prediction.Request{
		EntityType:        timeline.Aircraft,
		EntityID:          "N2",
		FromTimeMs:        t0,
		ToTimeMs:           t0 + int64(30*time.Minute.Milliseconds()),
		ResolutionSeconds: 300,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Predictions)
	for _, pr := range result.Predictions {
		assert.Equal(t, timeline.SourceExtrapolation, pr.PredictionSource)
	}
}
