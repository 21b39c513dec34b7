// Package satellite implements the Satellite Predictor: SGP4 orbit
// propagation when an SGP4-capable implementation is wired in, a simplified
// Keplerian/GMST ground-track propagator otherwise. The simplified model is
// a first-class, canonical behavior, not a test stub.
package satellite

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mycosoft-labs/crep/internal/prediction"
	"github.com/mycosoft-labs/crep/internal/timeline"
)

const (
	earthRadiusKm           = 6378.137 // WGS84-ish equatorial radius used for TLE-derived orbital math
	earthGravitationalParam = 398600.4418
	siderealDegPerDay       = 360.98564736629
)

// Propagator is the pluggable SGP4 implementation. When nil, the Predictor
// always uses the simplified fallback; this is a seam a deployment can wire
// a real SGP4 implementation into. The simplified propagator below is what
// ships by default.
type Propagator interface {
	// Propagate returns ECI position (km) and velocity (km/s) at the given
	// time, or an error if the propagation step failed (the caller skips
	// that tick; the error is not logged).
	Propagate(tleLine1, tleLine2 string, at time.Time) (posKm [3]float64, velKmPerSec [3]float64, err error)
}

// StateStore fetches the last-known TLE state of a satellite.
type StateStore interface {
	GetSatelliteState(ctx context.Context, entityID string) (*timeline.EntityState, error)
}

// Predictor is the Satellite Predictor.
type Predictor struct {
	store      StateStore
	propagator Propagator
}

// New constructs a Satellite Predictor. propagator may be nil, in which
// case every prediction uses the simplified fallback.
func New(store StateStore, propagator Propagator) *Predictor {
	return &Predictor{store: store, propagator: propagator}
}

// Params returns the satellite-class tuning constants: very accurate,
// slow-decaying confidence, and minimal uncertainty growth.
func (p *Predictor) Params() prediction.Params {
	return prediction.Params{
		EntityType:              timeline.Satellite,
		PredictionSource:        timeline.SourceOrbitPropagated,
		ModelVersion:            "1.0.0",
		InitialConfidence:       0.99,
		ConfidenceHalfLifeSecs:  86400,
		MinimumConfidence:       0.8,
		MaxPredictionHorizon:    7 * 24 * time.Hour,
		MinResolutionSeconds:    10,
		MaxResolutionSeconds:    3600,
		BaseUncertaintyMeters:   10,
		UncertaintyGrowthPerSec: 0.001,
	}
}

// GetCurrentState delegates to the backing store.
func (p *Predictor) GetCurrentState(ctx context.Context, entityID string) (*timeline.EntityState, error) {
	state, err := p.store.GetSatelliteState(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, prediction.ErrNoState
	}
	return state, nil
}

// PredictPositions uses the pluggable Propagator when present, otherwise the
// simplified model, tagging model_version with a "-simplified" suffix in
// the fallback case.
func (p *Predictor) PredictPositions(ctx context.Context, state timeline.EntityState, fromMs, toMs int64, resolutionSeconds int) ([]timeline.PredictedPosition, error) {
	if state.TLELine1 == "" || state.TLELine2 == "" {
		return nil, fmt.Errorf("no TLE data for satellite %s", state.EntityID)
	}
	if p.propagator != nil {
		return p.predictWithPropagator(state, fromMs, toMs, resolutionSeconds), nil
	}
	return p.predictSimplified(state, fromMs, toMs, resolutionSeconds)
}

func (p *Predictor) predictWithPropagator(state timeline.EntityState, fromMs, toMs int64, resolutionSeconds int) []timeline.PredictedPosition {
	var out []timeline.PredictedPosition
	strideMs := int64(resolutionSeconds) * 1000
	for t := fromMs; t <= toMs; t += strideMs {
		at := time.UnixMilli(t).UTC()
		posKm, velKmPerSec, err := p.propagator.Propagate(state.TLELine1, state.TLELine2, at)
		if err != nil {
			continue // skip the tick on propagation failure; the error is not logged
		}
		lat, lng, alt := eciToGeodetic(posKm, at)
		speedKmPerSec := math.Sqrt(velKmPerSec[0]*velKmPerSec[0] + velKmPerSec[1]*velKmPerSec[1] + velKmPerSec[2]*velKmPerSec[2])

		altM := alt * 1000
		entry := timeline.TimelineEntry{
			EntityType:  timeline.Satellite,
			EntityID:    state.EntityID,
			TimestampMs: t,
			Data: timeline.EntryData{
				Position: timeline.GeoPoint{Lat: lat, Lng: lng, Altitude: &altM},
				Velocity: &timeline.Velocity{Speed: speedKmPerSec * 1000, Heading: 0},
				Metadata: map[string]interface{}{"norad_id": state.EntityID, "altitude_km": alt},
			},
			Source:    timeline.SourceOrbitPropagated,
			CreatedAt: time.Now().UnixMilli(),
		}
		out = append(out, timeline.PredictedPosition{
			TimelineEntry:    entry,
			PredictionSource: timeline.SourceOrbitPropagated,
			ModelVersion:     "1.0.0",
			Confidence:       1.0,
		})
	}
	return out
}

type tleElements struct {
	inclinationDeg float64
	raanDeg        float64
	meanAnomalyDeg float64
	meanMotionRpd  float64
	altitudeKm     float64
	epoch          time.Time
}

func parseTLEElements(line1, line2 string) (*tleElements, error) {
	if len(line2) < 63 || len(line1) < 32 {
		return nil, fmt.Errorf("TLE lines too short")
	}
	field := func(s string, from, to int) (float64, error) {
		return strconv.ParseFloat(strings.TrimSpace(s[from:to]), 64)
	}

	inclination, err := field(line2, 8, 16)
	if err != nil {
		return nil, fmt.Errorf("parse inclination: %w", err)
	}
	raan, err := field(line2, 17, 25)
	if err != nil {
		return nil, fmt.Errorf("parse raan: %w", err)
	}
	meanAnomaly, err := field(line2, 43, 51)
	if err != nil {
		return nil, fmt.Errorf("parse mean anomaly: %w", err)
	}
	meanMotion, err := field(line2, 52, 63)
	if err != nil {
		return nil, fmt.Errorf("parse mean motion: %w", err)
	}

	nRadPerSec := meanMotion * 2 * math.Pi / 86400
	aKm := math.Cbrt(earthGravitationalParam / (nRadPerSec * nRadPerSec))
	altitudeKm := aKm - earthRadiusKm

	epochYear, err := strconv.Atoi(strings.TrimSpace(line1[18:20]))
	if err != nil {
		return nil, fmt.Errorf("parse epoch year: %w", err)
	}
	epochDay, err := field(line1, 20, 32)
	if err != nil {
		return nil, fmt.Errorf("parse epoch day: %w", err)
	}
	if epochYear < 57 {
		epochYear += 2000
	} else {
		epochYear += 1900
	}
	epoch := time.Date(epochYear, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration((epochDay - 1) * 24 * float64(time.Hour)))

	return &tleElements{
		inclinationDeg: inclination,
		raanDeg:        raan,
		meanAnomalyDeg: meanAnomaly,
		meanMotionRpd:  meanMotion,
		altitudeKm:     altitudeKm,
		epoch:          epoch,
	}, nil
}

func (p *Predictor) predictSimplified(state timeline.EntityState, fromMs, toMs int64, resolutionSeconds int) ([]timeline.PredictedPosition, error) {
	elements, err := parseTLEElements(state.TLELine1, state.TLELine2)
	if err != nil {
		return nil, fmt.Errorf("parse TLE: %w", err)
	}

	periodSeconds := 86400.0 / elements.meanMotionRpd

	var out []timeline.PredictedPosition
	strideMs := int64(resolutionSeconds) * 1000
	for t := fromMs; t <= toMs; t += strideMs {
		at := time.UnixMilli(t).UTC()
		dt := at.Sub(elements.epoch).Seconds()

		meanAnomaly := math.Mod(elements.meanAnomalyDeg+360*(dt/periodSeconds), 360)
		theta := meanAnomaly * math.Pi / 180

		lat := math.Asin(math.Sin(elements.inclinationDeg*math.Pi/180)*math.Sin(theta)) * 180 / math.Pi
		lng := math.Mod(elements.raanDeg+theta*180/math.Pi-(dt/86400)*siderealDegPerDay, 360)
		if lng > 180 {
			lng -= 360
		}

		altM := elements.altitudeKm * 1000
		entry := timeline.TimelineEntry{
			EntityType:  timeline.Satellite,
			EntityID:    state.EntityID,
			TimestampMs: t,
			Data:        timeline.EntryData{Position: timeline.GeoPoint{Lat: lat, Lng: lng, Altitude: &altM}},
			Source:      timeline.SourceOrbitPropagated,
			CreatedAt:   time.Now().UnixMilli(),
		}
		out = append(out, timeline.PredictedPosition{
			TimelineEntry:    entry,
			PredictionSource: timeline.SourceOrbitPropagated,
			ModelVersion:     "1.0.0-simplified",
			Confidence:       1.0,
		})
	}
	return out, nil
}

// eciToGeodetic is a simplified ECI-to-geodetic conversion assuming a
// spherical Earth, with longitude corrected for Earth rotation via GMST.
func eciToGeodetic(posKm [3]float64, at time.Time) (lat, lng, alt float64) {
	x, y, z := posKm[0], posKm[1], posKm[2]

	gmst := greenwichMeanSiderealTime(at)
	lng = math.Mod(math.Atan2(y, x)*180/math.Pi-gmst+540, 360) - 180

	rxy := math.Sqrt(x*x + y*y)
	lat = math.Atan2(z, rxy) * 180 / math.Pi

	rMag := math.Sqrt(x*x + y*y + z*z)
	alt = rMag - earthRadiusKm
	return
}

func greenwichMeanSiderealTime(at time.Time) float64 {
	j2000 := time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)
	jd := at.Sub(j2000).Seconds()/86400 + 2451545.0
	tCenturies := (jd - 2451545.0) / 36525.0
	gmst := 280.46061837 + siderealDegPerDay*(jd-2451545.0) + 0.000387933*tCenturies*tCenturies
	return math.Mod(gmst, 360)
}
