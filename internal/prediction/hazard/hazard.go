// Package hazard implements the Hazard Predictor, covering five hazard
// classes dispatched on metadata["hazard_type"]: earthquake aftershocks
// (Omori's law), wildfire spread (simplified Rothermel), storm tracks
// (extrapolation with recurve), tsunami wavefronts, and volcanic ash
// dispersion.
package hazard

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/mycosoft-labs/crep/internal/geo"
	"github.com/mycosoft-labs/crep/internal/prediction"
	"github.com/mycosoft-labs/crep/internal/timeline"
)

// StateStore is an empty placeholder: hazards have no persistent
// tracked state — callers must supply prediction.Request.KnownState.
type StateStore interface{}

// Predictor is the Hazard Predictor.
type Predictor struct {
	rng *rand.Rand
}

// New constructs a Hazard Predictor.
func New() *Predictor {
	return &Predictor{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Params returns the hazard-class tuning constants: hazard predictions
// vary widely in confidence and decay quickly.
func (p *Predictor) Params() prediction.Params {
	return prediction.Params{
		EntityType:              timeline.Earthquake,
		PredictionSource:        timeline.SourceHazardModel,
		ModelVersion:            "1.0.0",
		InitialConfidence:       0.60,
		ConfidenceHalfLifeSecs:  1800,
		MinimumConfidence:       0.1,
		MaxPredictionHorizon:    72 * time.Hour,
		MinResolutionSeconds:    60,
		MaxResolutionSeconds:    21600,
		BaseUncertaintyMeters:   1000,
		UncertaintyGrowthPerSec: 1.0,
	}
}

// GetCurrentState always returns ErrNoState: hazard events have no
// independent tracked state.
func (p *Predictor) GetCurrentState(ctx context.Context, entityID string) (*timeline.EntityState, error) {
	return nil, prediction.ErrNoState
}

func metaString(meta map[string]interface{}, key, fallback string) string {
	if v, ok := meta[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}

func metaFloat(meta map[string]interface{}, key string, fallback float64) float64 {
	if v, ok := meta[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return fallback
}

// PredictPositions dispatches on metadata["hazard_type"] into the five
// hazard-class models.
func (p *Predictor) PredictPositions(ctx context.Context, state timeline.EntityState, fromMs, toMs int64, resolutionSeconds int) ([]timeline.PredictedPosition, error) {
	hazardType := metaString(state.Metadata, "hazard_type", "generic")

	switch hazardType {
	case "earthquake":
		return p.predictAftershocks(state, fromMs, toMs, resolutionSeconds), nil
	case "wildfire":
		return p.predictWildfireSpread(state, fromMs, toMs, resolutionSeconds), nil
	case "storm":
		return p.predictStormTrack(state, fromMs, toMs, resolutionSeconds), nil
	case "tsunami":
		return p.predictTsunami(state, fromMs, toMs, resolutionSeconds), nil
	case "volcano":
		return p.predictAshCloud(state, fromMs, toMs, resolutionSeconds), nil
	default:
		return nil, fmt.Errorf("unknown hazard type: %s", hazardType)
	}
}

func toGeo(pt timeline.GeoPoint) geo.Point { return geo.Point{Lat: pt.Lat, Lng: pt.Lng, Alt: pt.Altitude} }
func fromGeo(pt geo.Point) timeline.GeoPoint {
	return timeline.GeoPoint{Lat: pt.Lat, Lng: pt.Lng, Altitude: pt.Alt}
}

// predictAftershocks implements Omori's law: n(t) = K / (c + t)^p, where
// t is days since the mainshock. Aftershock locations are sampled
// uniformly within a magnitude-scaled radius, and aftershock magnitude is
// capped per Bath's law (largest aftershock ~1.2 magnitudes smaller).
func (p *Predictor) predictAftershocks(state timeline.EntityState, fromMs, toMs int64, resolutionSeconds int) []timeline.PredictedPosition {
	mainshockMag := metaFloat(state.Metadata, "magnitude", 6.0)
	mainshockTimeMs := state.TimestampMs

	K := math.Pow(10, mainshockMag-3.5)
	const c = 0.1 // days
	const powerLawP = 1.1

	zoneRadiusM := 10 * (mainshockMag - 4) * 1000
	if zoneRadiusM < 0 {
		zoneRadiusM = 0
	}

	var out []timeline.PredictedPosition
	strideMs := int64(resolutionSeconds) * 1000
	for t := fromMs; t <= toMs; t += strideMs {
		tDays := float64(t-mainshockTimeMs) / 86400000.0
		var rate float64
		if tDays > 0 {
			rate = K / math.Pow(c+tDays, powerLawP)
		} else {
			rate = K
		}

		windowDays := float64(resolutionSeconds) / 86400.0
		expectedCount := rate * windowDays

		distance := p.rng.Float64() * zoneRadiusM
		bearing := p.rng.Float64() * 360
		location := geo.Destination(toGeo(state.Position), bearing, distance)

		maxAftershockMag := mainshockMag - 1.2
		lowBound := math.Max(2.0, mainshockMag-3)
		var aftershockMag float64
		if maxAftershockMag > lowBound {
			aftershockMag = lowBound + p.rng.Float64()*(maxAftershockMag-lowBound)
		} else {
			aftershockMag = lowBound
		}

		confidence := expectedCount
		if confidence > 0.8 {
			confidence = 0.8
		}

		entry := timeline.TimelineEntry{
			EntityType:  timeline.Earthquake,
			EntityID:    fmt.Sprintf("%s_aftershock_%d", state.EntityID, t/1000),
			TimestampMs: t,
			Data: timeline.EntryData{
				Position: fromGeo(location),
				Metadata: map[string]interface{}{
					"hazard_type":         "earthquake",
					"type":                "aftershock",
					"expected_magnitude":  math.Round(aftershockMag*10) / 10,
					"expected_count":      math.Round(expectedCount*1000) / 1000,
					"mainshock_id":        state.EntityID,
				},
			},
			Source:    timeline.SourceStatistical,
			CreatedAt: time.Now().UnixMilli(),
		}
		out = append(out, timeline.PredictedPosition{
			TimelineEntry:    entry,
			PredictionSource: timeline.SourceStatistical,
			ModelVersion:     "1.0.0",
			Confidence:       confidence,
		})
	}
	return out
}

// predictWildfireSpread uses a simplified Rothermel-inspired spread
// model: fire moves fastest downwind, slowest upwind, and the perimeter
// grows proportionally to the average spread distance per tick.
func (p *Predictor) predictWildfireSpread(state timeline.EntityState, fromMs, toMs int64, resolutionSeconds int) []timeline.PredictedPosition {
	windSpeedKmh := metaFloat(state.Metadata, "wind_speed_kmh", 20)
	windDirection := metaFloat(state.Metadata, "wind_direction", 180)
	fuelMoisture := metaFloat(state.Metadata, "fuel_moisture", 0.2)
	currentAreaHa := metaFloat(state.Metadata, "area_hectares", 10)

	const baseRateMps = 0.1
	windFactor := 1 + windSpeedKmh/30
	moistureFactor := math.Max(0.1, 1-fuelMoisture*2)
	spreadRate := baseRateMps * windFactor * moistureFactor

	currentPos := toGeo(state.Position)
	currentPerimeterM := math.Sqrt(currentAreaHa*10000/math.Pi) * 2 * math.Pi

	var out []timeline.PredictedPosition
	strideMs := int64(resolutionSeconds) * 1000
	for t := fromMs; t <= toMs; t += strideMs {
		downwindSpread := spreadRate * float64(resolutionSeconds) * 1.5
		crosswindSpread := spreadRate * float64(resolutionSeconds) * 0.5

		centerShift := downwindSpread * 0.3
		newCenter := geo.Destination(currentPos, math.Mod(windDirection+180, 360), centerShift)

		avgRadius := (downwindSpread + crosswindSpread) / 2
		newPerimeterM := currentPerimeterM + 2*math.Pi*avgRadius
		newAreaHa := math.Pow(newPerimeterM/(2*math.Pi), 2) * math.Pi / 10000

		entry := timeline.TimelineEntry{
			EntityType:  timeline.Wildfire,
			EntityID:    state.EntityID,
			TimestampMs: t,
			Data: timeline.EntryData{
				Position: fromGeo(newCenter),
				Metadata: map[string]interface{}{
					"hazard_type":     "wildfire",
					"area_hectares":   math.Round(newAreaHa*10) / 10,
					"perimeter_km":    math.Round(newPerimeterM/1000*100) / 100,
					"spread_rate_mps": math.Round(spreadRate*1000) / 1000,
					"wind_speed_kmh":  windSpeedKmh,
					"wind_direction":  windDirection,
				},
			},
			Source:    timeline.SourceHazardModel,
			CreatedAt: time.Now().UnixMilli(),
		}
		out = append(out, timeline.PredictedPosition{
			TimelineEntry:    entry,
			PredictionSource: timeline.SourceHazardModel,
			ModelVersion:     "1.0.0",
			Confidence:       1.0,
		})

		currentPos = newCenter
		currentPerimeterM = newPerimeterM
	}
	return out
}

// predictStormTrack extrapolates a storm's track with a simplified
// recurve above 25 degrees latitude and gradual weakening above 30.
// Storm speeds, in the input state and in the output, are in km/h.
func (p *Predictor) predictStormTrack(state timeline.EntityState, fromMs, toMs int64, resolutionSeconds int) []timeline.PredictedPosition {
	stormSpeedKmh := 20.0
	stormHeading := 315.0
	if state.Velocity != nil {
		stormSpeedKmh = state.Velocity.Speed
		stormHeading = state.Velocity.Heading
	}
	intensity := metaString(state.Metadata, "intensity", "tropical_storm")
	windSpeedKmh := metaFloat(state.Metadata, "max_wind_kmh", 100)

	speedMps := stormSpeedKmh * 1000 / 3600
	currentPos := toGeo(state.Position)
	currentHeading := stormHeading

	var out []timeline.PredictedPosition
	strideMs := int64(resolutionSeconds) * 1000
	for t := fromMs; t <= toMs; t += strideMs {
		if currentPos.Lat > 25 {
			currentHeading = math.Mod(currentHeading+0.5, 360)
		}

		distance := speedMps * float64(resolutionSeconds)
		newPos := geo.Destination(currentPos, currentHeading, distance)

		if currentPos.Lat > 30 {
			windSpeedKmh *= 0.99
		}

		entry := timeline.TimelineEntry{
			EntityType:  timeline.Storm,
			EntityID:    state.EntityID,
			TimestampMs: t,
			Data: timeline.EntryData{
				Position: fromGeo(newPos),
				Velocity: &timeline.Velocity{Speed: stormSpeedKmh, Heading: currentHeading},
				Metadata: map[string]interface{}{
					"hazard_type":  "storm",
					"intensity":    intensity,
					"max_wind_kmh": math.Round(windSpeedKmh),
				},
			},
			Source:    timeline.SourceHazardModel,
			CreatedAt: time.Now().UnixMilli(),
		}
		out = append(out, timeline.PredictedPosition{
			TimelineEntry:    entry,
			PredictionSource: timeline.SourceHazardModel,
			ModelVersion:     "1.0.0",
			Confidence:       1.0,
		})

		currentPos = newPos
	}
	return out
}

// predictTsunami generates markers on a circular wavefront expanding from
// the event origin at a fixed wave speed, at 12 azimuths (every 30
// degrees).
func (p *Predictor) predictTsunami(state timeline.EntityState, fromMs, toMs int64, resolutionSeconds int) []timeline.PredictedPosition {
	const waveSpeedMps = 200.0
	origin := toGeo(state.Position)

	var out []timeline.PredictedPosition
	strideMs := int64(resolutionSeconds) * 1000
	for t := fromMs; t <= toMs; t += strideMs {
		dtSeconds := float64(t-state.TimestampMs) / 1000.0
		radius := waveSpeedMps * dtSeconds

		for bearing := 0.0; bearing < 360; bearing += 30 {
			wavePoint := geo.Destination(origin, bearing, radius)
			entry := timeline.TimelineEntry{
				EntityType:  timeline.Earthquake,
				EntityID:    fmt.Sprintf("%s_front_%d", state.EntityID, int(bearing)),
				TimestampMs: t,
				Data: timeline.EntryData{
					Position: fromGeo(wavePoint),
					Metadata: map[string]interface{}{
						"hazard_type":    "tsunami",
						"wave_radius_km": math.Round(radius/1000*10) / 10,
						"bearing":        bearing,
					},
				},
				Source:    timeline.SourceHazardModel,
				CreatedAt: time.Now().UnixMilli(),
			}
			out = append(out, timeline.PredictedPosition{
				TimelineEntry:    entry,
				PredictionSource: timeline.SourceHazardModel,
				ModelVersion:     "1.0.0",
				Confidence:       1.0,
			})
		}
	}
	return out
}

// predictAshCloud models a volcanic ash plume drifting with the wind,
// spreading laterally at 2 km/hr, and descending at 500 m/hr down to a
// minimum floor of 1000 m.
func (p *Predictor) predictAshCloud(state timeline.EntityState, fromMs, toMs int64, resolutionSeconds int) []timeline.PredictedPosition {
	windSpeedMps := metaFloat(state.Metadata, "wind_speed_ms", 15)
	windDirection := metaFloat(state.Metadata, "wind_direction", 270)
	eruptionHeightM := metaFloat(state.Metadata, "plume_height_m", 10000)

	cloudCenter := toGeo(state.Position)
	cloudWidthKm := 5.0

	var out []timeline.PredictedPosition
	strideMs := int64(resolutionSeconds) * 1000
	for t := fromMs; t <= toMs; t += strideMs {
		distance := windSpeedMps * float64(resolutionSeconds)
		newCenter := geo.Destination(cloudCenter, math.Mod(windDirection+180, 360), distance)

		dtHours := float64(t-fromMs) / 3600000.0
		newWidthKm := cloudWidthKm + dtHours*2

		const descentRateMPerHour = 500
		currentHeight := math.Max(1000, eruptionHeightM-descentRateMPerHour*dtHours)

		heightM := currentHeight
		entry := timeline.TimelineEntry{
			EntityType:  timeline.Weather,
			EntityID:    state.EntityID,
			TimestampMs: t,
			Data: timeline.EntryData{
				Position: timeline.GeoPoint{Lat: newCenter.Lat, Lng: newCenter.Lng, Altitude: &heightM},
				Velocity: &timeline.Velocity{Speed: windSpeedMps, Heading: math.Mod(windDirection+180, 360)},
				Metadata: map[string]interface{}{
					"hazard_type":    "volcanic_ash",
					"cloud_width_km": math.Round(newWidthKm*10) / 10,
					"plume_height_m": math.Round(currentHeight),
					"source_volcano": state.EntityID,
				},
			},
			Source:    timeline.SourceHazardModel,
			CreatedAt: time.Now().UnixMilli(),
		}
		out = append(out, timeline.PredictedPosition{
			TimelineEntry:    entry,
			PredictionSource: timeline.SourceHazardModel,
			ModelVersion:     "1.0.0",
			Confidence:       1.0,
		})

		cloudCenter = newCenter
	}
	return out
}
