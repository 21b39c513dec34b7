package prediction

import (
	"context"
	"testing"
	"time"

	"github.com/mycosoft-labs/crep/internal/timeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePredictor struct {
	params      Params
	state       *timeline.EntityState
	stateErr    error
	genCalls    int
	ticksWanted func(fromMs, toMs int64, resSec int) []timeline.PredictedPosition
}

func (f *fakePredictor) Params() Params { return f.params }

func (f *fakePredictor) GetCurrentState(ctx context.Context, entityID string) (*timeline.EntityState, error) {
	if f.stateErr != nil {
		return nil, f.stateErr
	}
	return f.state, nil
}

func (f *fakePredictor) PredictPositions(ctx context.Context, state timeline.EntityState, fromMs, toMs int64, resSec int) ([]timeline.PredictedPosition, error) {
	f.genCalls++
	return f.ticksWanted(fromMs, toMs, resSec), nil
}

func baseParams() Params {
	return Params{
		EntityType:              timeline.Aircraft,
		PredictionSource:        timeline.SourceExtrapolation,
		ModelVersion:             "1.0.0",
		InitialConfidence:        0.95,
		ConfidenceHalfLifeSecs:   600,
		MinimumConfidence:        0.2,
		MaxPredictionHorizon:     2 * time.Hour,
		MinResolutionSeconds:     10,
		MaxResolutionSeconds:     3600,
		BaseUncertaintyMeters:    50,
		UncertaintyGrowthPerSec:  0.5,
	}
}

func makeTicks(n int, startMs int64, strideMs int64) []timeline.PredictedPosition {
	var out []timeline.PredictedPosition
	for i := 0; i < n; i++ {
		out = append(out, timeline.PredictedPosition{
			TimelineEntry: timeline.TimelineEntry{
				EntityID:    "N1",
				EntityType:  timeline.Aircraft,
				TimestampMs: startMs + int64(i)*strideMs,
				CreatedAt:   time.Now().UnixMilli(),
			},
		})
	}
	return out
}

func TestPredictAppliesConfidenceDecay(t *testing.T) {
	stateTs := int64(1_700_000_000_000)
	state := &timeline.EntityState{EntityID: "N1", EntityType: timeline.Aircraft, TimestampMs: stateTs}
	fp := &fakePredictor{
		params: baseParams(),
		state:  state,
		ticksWanted: func(fromMs, toMs int64, resSec int) []timeline.PredictedPosition {
			return makeTicks(3, fromMs, int64(resSec)*1000)
		},
	}
	base := NewBase(fp, time.Minute)

	result, err := base.Predict(context.Background(), Request{
		EntityType:        timeline.Aircraft,
		EntityID:          "N1",
		FromTimeMs:         stateTs,
		ToTimeMs:           stateTs + 1800_000,
		ResolutionSeconds:  600,
	})
	require.NoError(t, err)
	require.Len(t, result.Predictions, 3)

	// monotone non-increasing confidence
	for i := 1; i < len(result.Predictions); i++ {
		assert.LessOrEqual(t, result.Predictions[i].Confidence, result.Predictions[i-1].Confidence)
		assert.GreaterOrEqual(t, result.Predictions[i].Confidence, fp.params.MinimumConfidence)
	}
}

func TestPredictClampsHorizon(t *testing.T) {
	stateTs := int64(1_700_000_000_000)
	state := &timeline.EntityState{EntityID: "N1", EntityType: timeline.Aircraft, TimestampMs: stateTs}
	var gotTo int64
	fp := &fakePredictor{
		params: baseParams(),
		state:  state,
		ticksWanted: func(fromMs, toMs int64, resSec int) []timeline.PredictedPosition {
			gotTo = toMs
			return nil
		},
	}
	base := NewBase(fp, time.Minute)

	_, err := base.Predict(context.Background(), Request{
		EntityType:        timeline.Aircraft,
		EntityID:          "N1",
		FromTimeMs:         stateTs,
		ToTimeMs:           stateTs + int64(10*time.Hour.Milliseconds()),
		ResolutionSeconds:  600,
	})
	require.NoError(t, err)
	assert.Equal(t, stateTs+int64(2*time.Hour.Milliseconds()), gotTo)
}

func TestPredictNoStateReturnsWarning(t *testing.T) {
	fp := &fakePredictor{params: baseParams(), stateErr: ErrNoState}
	base := NewBase(fp, time.Minute)

	result, err := base.Predict(context.Background(), Request{EntityType: timeline.Aircraft, EntityID: "N1"})
	require.NoError(t, err)
	assert.Empty(t, result.Predictions)
	assert.NotEmpty(t, result.Warnings)
}

func TestPredictWrongEntityTypeErrors(t *testing.T) {
	fp := &fakePredictor{params: baseParams()}
	base := NewBase(fp, time.Minute)

	_, err := base.Predict(context.Background(), Request{EntityType: timeline.Vessel, EntityID: "V1"})
	assert.Error(t, err)
}

func TestCalculateConfidenceFloor(t *testing.T) {
	p := baseParams()
	c := CalculateConfidence(1_000_000, p)
	assert.Equal(t, p.MinimumConfidence, c)
}

func TestCalculateUncertaintyGrowth(t *testing.T) {
	p := baseParams()
	r1 := CalculateUncertaintyRadius(0, p)
	r2 := CalculateUncertaintyRadius(100, p)
	assert.Greater(t, r2, r1)
}
