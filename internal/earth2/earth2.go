// Package earth2 adapts NVIDIA Earth-2 style AI weather models (FourCastNet,
// Pangu-Weather, GraphCast) behind a small HTTP client, with synthetic
// fallback generators used whenever the GPU gateway is unavailable.
package earth2

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/mycosoft-labs/crep/internal/timeline"
	"github.com/rs/zerolog"
)

// ModelInfo describes an Earth-2 model's resolution and forecast horizon.
type ModelInfo struct {
	Name             string
	ResolutionKm     float64
	MaxHorizonHours  int
}

// Models is the catalogue of available Earth-2 models.
var Models = map[string]ModelInfo{
	"fcn":       {Name: "FourCastNet", ResolutionKm: 25, MaxHorizonHours: 240},
	"pangu":     {Name: "Pangu-Weather", ResolutionKm: 25, MaxHorizonHours: 168},
	"graphcast": {Name: "GraphCast", ResolutionKm: 28, MaxHorizonHours: 240},
}

// ListModels returns the known Earth-2 model identifiers.
func ListModels() []string {
	out := make([]string, 0, len(Models))
	for k := range Models {
		out = append(out, k)
	}
	return out
}

// WeatherPoint is a single forecast sample at a location and time.
type WeatherPoint struct {
	TimestampMs             int64   `json:"timestamp_ms"`
	TemperatureC            float64 `json:"temperature_c"`
	FeelsLikeC              float64 `json:"feels_like_c"`
	HumidityPercent         float64 `json:"humidity_percent"`
	PrecipitationMm         float64 `json:"precipitation_mm"`
	PrecipitationProbability float64 `json:"precipitation_probability"`
	WindSpeedKmh            float64 `json:"wind_speed_kmh"`
	WindDirectionDeg        float64 `json:"wind_direction_deg"`
	CloudCoverPercent       float64 `json:"cloud_cover_percent"`
	Model                   string  `json:"model"`
	Source                  string  `json:"source"`
}

// WildfireSpreadPoint is one hour of a synthesized fire-perimeter growth
// contour.
type WildfireSpreadPoint struct {
	Hour            int     `json:"hour"`
	TimestampMs     int64   `json:"timestamp_ms"`
	Center          timeline.GeoPoint `json:"center"`
	DownwindRadiusKm float64 `json:"downwind_radius_km"`
	CrosswindRadiusKm float64 `json:"crosswind_radius_km"`
	UpwindRadiusKm   float64 `json:"upwind_radius_km"`
	WindDirectionDeg float64 `json:"wind_direction_deg"`
	AreaKm2          float64 `json:"area_km2"`
}

// Forecaster is the Earth-2 AI weather adapter. Wildfire spread is always
// computed locally (no remote dependency); weather forecasts prefer the
// remote gateway and fall back to synthetic generation when it is
// unavailable. Storm tracks come from the gateway only: without it,
// GetStormTracks returns no tracks.
type Forecaster struct {
	gatewayURL string
	httpClient *http.Client
	log        zerolog.Logger
	available  bool
	rng        *rand.Rand
}

// Config configures the Earth-2 gateway connection.
type Config struct {
	GatewayURL string
	Timeout    time.Duration
}

// New constructs a Forecaster. Call Initialize to probe gateway
// availability before relying on remote forecasts.
func New(cfg Config, log zerolog.Logger) *Forecaster {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	gatewayURL := cfg.GatewayURL
	if gatewayURL == "" {
		gatewayURL = "http://localhost:8100"
	}
	return &Forecaster{
		gatewayURL: gatewayURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "earth2").Logger(),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Initialize probes the gateway's /health endpoint and records
// availability. A failed probe degrades Forecaster to synthetic-only mode
// rather than returning an error.
func (f *Forecaster) Initialize(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.gatewayURL+"/health", nil)
	if err != nil {
		f.available = false
		return
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.log.Warn().Err(err).Msg("Earth-2 gateway not available, using synthetic fallback")
		f.available = false
		return
	}
	defer resp.Body.Close()
	f.available = resp.StatusCode == http.StatusOK
	if f.available {
		f.log.Info().Msg("Earth-2 GPU gateway available")
	}
}

// Available reports whether the last Initialize probe succeeded.
func (f *Forecaster) Available() bool { return f.available }

// GetWeatherForecast returns forecast points for a location, fetched from
// the gateway when available, synthesized otherwise.
func (f *Forecaster) GetWeatherForecast(ctx context.Context, location timeline.GeoPoint, fromMs, toMs int64, resolutionHours int, model string) ([]WeatherPoint, error) {
	if resolutionHours <= 0 {
		resolutionHours = 1
	}
	if f.available {
		points, err := f.fetchRemoteWeather(ctx, location, fromMs, toMs, resolutionHours, model)
		if err == nil {
			return points, nil
		}
		f.log.Error().Err(err).Msg("Earth-2 forecast fetch failed, falling back to synthetic")
	}
	return f.syntheticWeather(location, fromMs, toMs, resolutionHours), nil
}

func (f *Forecaster) fetchRemoteWeather(ctx context.Context, location timeline.GeoPoint, fromMs, toMs int64, resolutionHours int, model string) ([]WeatherPoint, error) {
	body, err := json.Marshal(map[string]interface{}{
		"lat":               location.Lat,
		"lng":               location.Lng,
		"from_time_ms":      fromMs,
		"to_time_ms":        toMs,
		"resolution_hours":  resolutionHours,
		"model":             model,
		"type":              "weather",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.gatewayURL+"/forecast/point", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("earth2 gateway returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Forecasts []WeatherPoint `json:"forecasts"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}
	return parsed.Forecasts, nil
}

// GetStormTracks returns predicted storm paths for a region. Without a
// live gateway, this returns an empty slice rather than synthesizing
// storm data.
func (f *Forecaster) GetStormTracks(ctx context.Context, bounds timeline.BoundingBox, fromMs, toMs int64) ([]map[string]interface{}, error) {
	if !f.available {
		return nil, nil
	}

	body, err := json.Marshal(map[string]interface{}{
		"bounds": map[string]float64{
			"min_lat": bounds.MinLat,
			"min_lng": bounds.MinLng,
			"max_lat": bounds.MaxLat,
			"max_lng": bounds.MaxLng,
		},
		"from_time_ms": fromMs,
		"to_time_ms":   toMs,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.gatewayURL+"/forecast/storms", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.log.Error().Err(err).Msg("failed to fetch storm tracks")
		return nil, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil
	}
	var parsed struct {
		Storms []map[string]interface{} `json:"storms"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, nil
	}
	return parsed.Storms, nil
}

// GetWildfireSpread predicts fire perimeter growth contours hour-by-hour,
// always computed locally with a coarse wind/moisture model. hazard.Predictor
// implements a richer variant for actual hazard predictions; this is the
// lightweight forecasting-surface equivalent exposed alongside it.
func (f *Forecaster) GetWildfireSpread(fireLocation timeline.GeoPoint, windSpeedKmh, windDirectionDeg, fuelMoisture float64, hoursAhead int) []WildfireSpreadPoint {
	if fuelMoisture == 0 {
		fuelMoisture = 0.3
	}
	if hoursAhead <= 0 {
		hoursAhead = 24
	}

	const baseSpreadRateKmh = 0.5
	windFactor := 1 + windSpeedKmh/20
	moistureFactor := 1 - fuelMoisture
	spreadRate := baseSpreadRateKmh * windFactor * moistureFactor

	now := time.Now().UnixMilli()
	out := make([]WildfireSpreadPoint, 0, hoursAhead)
	for hour := 1; hour <= hoursAhead; hour++ {
		downwind := spreadRate * float64(hour) * 1.5
		crosswind := spreadRate * float64(hour) * 0.5
		upwind := spreadRate * float64(hour) * 0.2

		out = append(out, WildfireSpreadPoint{
			Hour:              hour,
			TimestampMs:       now + int64(hour)*3600000,
			Center:            fireLocation,
			DownwindRadiusKm:  downwind,
			CrosswindRadiusKm: crosswind,
			UpwindRadiusKm:    upwind,
			WindDirectionDeg:  windDirectionDeg,
			AreaKm2:           math.Pi * downwind * crosswind,
		})
	}
	return out
}

// GetForecastTiles fetches a map tile for forecast visualization. Returns
// nil when the gateway is unavailable.
func (f *Forecaster) GetForecastTiles(ctx context.Context, variable string, atMs int64, zoom, tileX, tileY int, model string) ([]byte, error) {
	if !f.available {
		return nil, nil
	}
	url := fmt.Sprintf("%s/forecast/tiles/%s/%s?time=%d&z=%d&x=%d&y=%d", f.gatewayURL, model, variable, atMs, zoom, tileX, tileY)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.log.Error().Err(err).Msg("failed to fetch forecast tile")
		return nil, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}
	return io.ReadAll(resp.Body)
}

// syntheticWeather generates development-grade weather data: a
// latitude-driven base temperature, a diurnal cycle, and gaussian noise.
func (f *Forecaster) syntheticWeather(location timeline.GeoPoint, fromMs, toMs int64, resolutionHours int) []WeatherPoint {
	baseTemp := 15 + 20*math.Cos(location.Lat*math.Pi/180)

	var out []WeatherPoint
	strideMs := int64(resolutionHours) * 3600000
	for t := fromMs; t <= toMs; t += strideMs {
		hour := time.UnixMilli(t).UTC().Hour()
		tempVariation := 5 * math.Sin(float64(hour-6)*15*math.Pi/180)
		randomVar := f.rng.NormFloat64() * 2

		temperature := baseTemp + tempVariation + randomVar
		windSpeed := 5 + f.rng.Float64()*15
		windDirection := f.rng.Float64() * 360
		precipProb := 0.1 + 0.2*f.rng.Float64()
		var precipitation float64
		if f.rng.Float64() < precipProb {
			precipitation = precipProb * f.rng.Float64() * 10
		}

		out = append(out, WeatherPoint{
			TimestampMs:              t,
			TemperatureC:             math.Round(temperature*10) / 10,
			FeelsLikeC:               math.Round((temperature-windSpeed*0.2)*10) / 10,
			HumidityPercent:          math.Round(50 + f.rng.Float64()*50 - 20),
			PrecipitationMm:          math.Round(precipitation*10) / 10,
			PrecipitationProbability: math.Round(precipProb*100) / 100,
			WindSpeedKmh:             math.Round(windSpeed*10) / 10,
			WindDirectionDeg:         math.Round(windDirection),
			CloudCoverPercent:        math.Round(f.rng.Float64() * 100),
			Model:                    "synthetic",
			Source:                   "development",
		})
	}
	return out
}
