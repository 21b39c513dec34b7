package predictionstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mycosoft-labs/crep/internal/prediction"
	"github.com/mycosoft-labs/crep/internal/timeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "predictions.db")
	store, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func samplePredictions(entityID string, entityType timeline.EntityType, baseMs int64, n int) []timeline.PredictedPosition {
	out := make([]timeline.PredictedPosition, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, timeline.PredictedPosition{
			TimelineEntry: timeline.TimelineEntry{
				EntityType:  entityType,
				EntityID:    entityID,
				TimestampMs: baseMs + int64(i)*60000,
				Data:        timeline.EntryData{Position: timeline.GeoPoint{Lat: 10 + float64(i), Lng: 20 + float64(i)}},
				Source:      timeline.SourceExtrapolation,
				CreatedAt:   baseMs,
			},
			Confidence:       0.9,
			PredictionSource: timeline.SourceExtrapolation,
			ModelVersion:     "1.0.0",
		})
	}
	return out
}

func TestStoreAndRetrievePredictions(t *testing.T) {
	store := newTestStore(t)
	baseMs := int64(1_700_000_000_000)
	preds := samplePredictions("AC1", timeline.Aircraft, baseMs, 5)

	count, err := store.StorePredictions(context.Background(), prediction.Result{
		EntityID:    "AC1",
		EntityType:  timeline.Aircraft,
		Predictions: preds,
	}, true)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	fetched, err := store.GetPredictions(context.Background(), timeline.Aircraft, "AC1", baseMs, baseMs+10*60000, 100)
	require.NoError(t, err)
	assert.Len(t, fetched, 5)
	assert.Equal(t, preds[0].Data.Position.Lat, fetched[0].Data.Position.Lat)
}

func TestReplaceExistingClearsPriorForecast(t *testing.T) {
	store := newTestStore(t)
	baseMs := int64(1_700_000_000_000)

	first := samplePredictions("AC2", timeline.Aircraft, baseMs, 3)
	_, err := store.StorePredictions(context.Background(), prediction.Result{EntityID: "AC2", EntityType: timeline.Aircraft, Predictions: first}, true)
	require.NoError(t, err)

	second := samplePredictions("AC2", timeline.Aircraft, baseMs, 2)
	count, err := store.StorePredictions(context.Background(), prediction.Result{EntityID: "AC2", EntityType: timeline.Aircraft, Predictions: second}, true)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	fetched, err := store.GetPredictions(context.Background(), timeline.Aircraft, "AC2", baseMs, baseMs+10*60000, 100)
	require.NoError(t, err)
	assert.Len(t, fetched, 2)
}

func TestCleanupOldPredictionsRemovesOldForecasts(t *testing.T) {
	store := newTestStore(t)
	baseMs := int64(1_700_000_000_000)
	preds := samplePredictions("AC3", timeline.Aircraft, baseMs, 3)

	_, err := store.StorePredictions(context.Background(), prediction.Result{EntityID: "AC3", EntityType: timeline.Aircraft, Predictions: preds}, true)
	require.NoError(t, err)

	removed, err := store.CleanupOldPredictions(context.Background(), timeline.Aircraft, baseMs+10*60000)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	fetched, err := store.GetPredictions(context.Background(), timeline.Aircraft, "AC3", baseMs, baseMs+10*60000, 100)
	require.NoError(t, err)
	assert.Empty(t, fetched)
}
