package satellite

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

func (f *fixtureStore) GetSatelliteState(ctx context.Context, entityID string) (*timeline.EntityState, error) {
	return f.state, nil
}

// A representative ISS-like two-line element set (mean motion ~15.5 rev/day).
const issLine1 = "1 25544U 98067A   24050.50000000  .00016717  00000-0  10270-3 0  9994"
const issLine2 = "2 25544  51.6400 208.9163 0004498 120.5019  45.0000 15.49512345123456"

func TestSimplifiedModelVersionSuffix(t *testing.T) {
	t0 := int64(1_700_000_000_000)
	state := &timeline.EntityState{
		EntityID:    "ISS",
		EntityType:  timeline.Satellite,
		TimestampMs: t0,
		TLELine1:    issLine1,
		TLELine2:    issLine2,
	}
	store := &fixtureStore{state: state}
	p := New(store, nil)
	base := prediction.NewBase(p, time.Minute)

	result, err := base.Predict(context.Background(), prediction.Request{
		EntityType:        timeline.Satellite,
		EntityID:          "ISS",
		FromTimeMs:        t0,
		ToTimeMs:           t0 + int64(90*time.Minute.Milliseconds()),
		ResolutionSeconds: 60,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Predictions)
	for _, pr := range result.Predictions {
		assert.Equal(t, "1.0.0-simplified", pr.ModelVersion)
		assert.Equal(t, timeline.SourceOrbitPropagated, pr.PredictionSource)
	}
}

func TestMissingTLERejected(t *testing.T) {
	t0 := int64(1_700_000_000_000)
	state := &timeline.EntityState{EntityID: "NOTLE", EntityType: timeline.Satellite, TimestampMs: t0}
	store := &fixtureStore{state: state}
	p := New(store, nil)

	_, err := p.PredictPositions(context.Background(), *state, t0, t0+60000, 60)
	assert.Error(t, err)
}

func TestParseTLEElements(t *testing.T) {
	elements, err := parseTLEElements(issLine1, issLine2)
	require.NoError(t, err)
	assert.InDelta(t, 51.64, elements.inclinationDeg, 0.01)
	assert.InDelta(t, 15.495, elements.meanMotionRpd, 0.01)
}
