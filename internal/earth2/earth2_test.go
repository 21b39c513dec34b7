package earth2

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mycosoft-labs/crep/internal/timeline"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListModelsIncludesCatalogue(t *testing.T) {
	models := ListModels()
	assert.Contains(t, models, "fcn")
	assert.Contains(t, models, "pangu")
	assert.Contains(t, models, "graphcast")
}

func TestInitializeUnavailableFallsBackSilently(t *testing.T) {
	f := New(Config{GatewayURL: "http://127.0.0.1:0"}, zerolog.Nop())
	f.Initialize(context.Background())
	assert.False(t, f.Available())
}

func TestInitializeAvailableWhenHealthOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := New(Config{GatewayURL: srv.URL}, zerolog.Nop())
	f.Initialize(context.Background())
	assert.True(t, f.Available())
}

func TestGetWeatherForecastSyntheticFallback(t *testing.T) {
	f := New(Config{GatewayURL: "http://127.0.0.1:0"}, zerolog.Nop())
	t0 := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

	points, err := f.GetWeatherForecast(context.Background(), timeline.GeoPoint{Lat: 10, Lng: 20}, t0, t0+int64(6*time.Hour.Milliseconds()), 1, "fcn")
	require.NoError(t, err)
	require.NotEmpty(t, points)
	for _, p := range points {
		assert.Equal(t, "synthetic", p.Model)
	}
}

func TestGetStormTracksEmptyWithoutGateway(t *testing.T) {
	f := New(Config{GatewayURL: "http://127.0.0.1:0"}, zerolog.Nop())
	tracks, err := f.GetStormTracks(context.Background(), timeline.BoundingBox{MinLat: 0, MaxLat: 10, MinLng: 0, MaxLng: 10}, 0, 1)
	require.NoError(t, err)
	assert.Empty(t, tracks)
}

func TestGetWildfireSpreadGrowsMonotonically(t *testing.T) {
	f := New(Config{}, zerolog.Nop())
	spread := f.GetWildfireSpread(timeline.GeoPoint{Lat: 34, Lng: -118}, 25, 90, 0.15, 6)
	require.Len(t, spread, 6)
	assert.Greater(t, spread[5].DownwindRadiusKm, spread[0].DownwindRadiusKm)
}
