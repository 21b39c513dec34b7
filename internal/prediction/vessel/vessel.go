// Package vessel implements the Vessel Predictor: route-to-destination when
// the entity's destination resolves to a known port, vector extrapolation
// otherwise.
package vessel

import (
	"context"
	"math"
	"time"

	"github.com/mycosoft-labs/crep/internal/geo"
	"github.com/mycosoft-labs/crep/internal/prediction"
	"github.com/mycosoft-labs/crep/internal/timeline"
)

const (
	knotsToMps        = 0.514444
	defaultSpeedKnots = 12.0
	waypointStrideM   = 100_000.0 // ~1 waypoint per 100 km
)

// Port is an entry in the known-ports lookup table.
type Port struct {
	Code string
	Lat  float64
	Lng  float64
}

// MajorPorts is a small, extensible closed lookup table of major ports,
// keyed by an IATA-style code.
var MajorPorts = map[string]Port{
	"USLAX": {Code: "USLAX", Lat: 33.74, Lng: -118.26}, // Los Angeles
	"USNYC": {Code: "USNYC", Lat: 40.67, Lng: -74.02},   // New York/New Jersey
	"NLRTM": {Code: "NLRTM", Lat: 51.95, Lng: 4.14},     // Rotterdam
	"SGSIN": {Code: "SGSIN", Lat: 1.26, Lng: 103.82},    // Singapore
	"CNSHA": {Code: "CNSHA", Lat: 31.23, Lng: 121.47},   // Shanghai
	"JPYOK": {Code: "JPYOK", Lat: 35.45, Lng: 139.64},   // Yokohama
	"AEDXB": {Code: "AEDXB", Lat: 25.27, Lng: 55.31},    // Dubai / Jebel Ali
}

// StateStore fetches the last-known state of a vessel.
type StateStore interface {
	GetVesselState(ctx context.Context, entityID string) (*timeline.EntityState, error)
}

// Predictor is the Vessel Predictor.
type Predictor struct {
	store StateStore
}

// New constructs a Vessel Predictor backed by store.
func New(store StateStore) *Predictor {
	return &Predictor{store: store}
}

// Params returns the vessel-class tuning constants.
func (p *Predictor) Params() prediction.Params {
	return prediction.Params{
		EntityType:              timeline.Vessel,
		PredictionSource:        timeline.SourceExtrapolation,
		ModelVersion:            "1.0.0",
		InitialConfidence:       0.90,
		ConfidenceHalfLifeSecs:  3600,
		MinimumConfidence:       0.3,
		MaxPredictionHorizon:    48 * time.Hour,
		MinResolutionSeconds:    60,
		MaxResolutionSeconds:    7200,
		BaseUncertaintyMeters:   200,
		UncertaintyGrowthPerSec: 0.2,
	}
}

// GetCurrentState delegates to the backing store.
func (p *Predictor) GetCurrentState(ctx context.Context, entityID string) (*timeline.EntityState, error) {
	state, err := p.store.GetVesselState(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, prediction.ErrNoState
	}
	return state, nil
}

func resolvePort(destination *string) (Port, bool) {
	if destination == nil {
		return Port{}, false
	}
	port, ok := MajorPorts[*destination]
	return port, ok
}

// PredictPositions dispatches to route-to-destination when the vessel's
// destination resolves to a known port, vector extrapolation otherwise.
func (p *Predictor) PredictPositions(ctx context.Context, state timeline.EntityState, fromMs, toMs int64, resolutionSeconds int) ([]timeline.PredictedPosition, error) {
	if port, ok := resolvePort(state.Destination); ok {
		return predictRouteToDestination(state, port, fromMs, toMs, resolutionSeconds), nil
	}
	return predictVectorExtrapolation(state, fromMs, toMs, resolutionSeconds), nil
}

func toGeo(p timeline.GeoPoint) geo.Point { return geo.Point{Lat: p.Lat, Lng: p.Lng, Alt: p.Altitude} }
func fromGeo(p geo.Point) timeline.GeoPoint {
	return timeline.GeoPoint{Lat: p.Lat, Lng: p.Lng, Altitude: p.Alt}
}

func makeEntry(entityID string, tsMs int64, pos timeline.GeoPoint, vel *timeline.Velocity, src timeline.Source) timeline.TimelineEntry {
	return timeline.TimelineEntry{
		EntityType:  timeline.Vessel,
		EntityID:    entityID,
		TimestampMs: tsMs,
		Data:        timeline.EntryData{Position: pos, Velocity: vel},
		Source:      src,
		CreatedAt:   time.Now().UnixMilli(),
	}
}

// buildRouteWaypoints generates approximately one waypoint per 100 km along
// the great-circle from current to the port.
func buildRouteWaypoints(current, destination geo.Point) []geo.Point {
	total := geo.Distance(current, destination)
	n := int(math.Ceil(total / waypointStrideM))
	if n < 1 {
		n = 1
	}
	out := make([]geo.Point, 0, n+1)
	for i := 0; i <= n; i++ {
		f := float64(i) / float64(n)
		out = append(out, geo.Interpolate(current, destination, f))
	}
	return out
}

func predictRouteToDestination(state timeline.EntityState, port Port, fromMs, toMs int64, resolutionSeconds int) []timeline.PredictedPosition {
	speedKnots := defaultSpeedKnots
	if state.Velocity != nil && state.Velocity.Speed > 0 {
		speedKnots = state.Velocity.Speed
	}
	speedMps := speedKnots * knotsToMps

	current := toGeo(state.Position)
	destination := geo.Point{Lat: port.Lat, Lng: port.Lng}
	waypoints := buildRouteWaypoints(current, destination)

	segmentIdx := 0
	elapsedInSegment := 0.0

	var out []timeline.PredictedPosition
	strideMs := int64(resolutionSeconds) * 1000
	for t := fromMs; t <= toMs; t += strideMs {
		var pos geo.Point
		var heading float64

		if segmentIdx < len(waypoints)-1 {
			from := waypoints[segmentIdx]
			next := waypoints[segmentIdx+1]
			segDist := geo.Distance(from, next)
			segmentTime := segDist / speedMps
			if segmentTime <= 0 {
				segmentTime = 1
			}

			frac := elapsedInSegment / segmentTime
			for frac >= 1 && segmentIdx < len(waypoints)-2 {
				segmentIdx++
				elapsedInSegment -= segmentTime
				from = waypoints[segmentIdx]
				next = waypoints[segmentIdx+1]
				segDist = geo.Distance(from, next)
				segmentTime = segDist / speedMps
				if segmentTime <= 0 {
					segmentTime = 1
				}
				frac = elapsedInSegment / segmentTime
			}
			if frac > 1 {
				frac = 1
			}

			pos = geo.Interpolate(from, next, frac)
			heading = geo.Bearing(from, next)
			elapsedInSegment += float64(resolutionSeconds)
		} else {
			pos = waypoints[len(waypoints)-1]
			if len(waypoints) >= 2 {
				heading = geo.Bearing(waypoints[len(waypoints)-2], waypoints[len(waypoints)-1])
			}
		}

		vel := &timeline.Velocity{Speed: speedKnots, Heading: heading}
		entry := makeEntry(state.EntityID, t, fromGeo(pos), vel, timeline.SourceRoutePlan)
		out = append(out, timeline.PredictedPosition{
			TimelineEntry:    entry,
			PredictionSource: timeline.SourceRoutePlan,
			ModelVersion:     "1.0.0",
			Confidence:       1.0,
		})
	}
	return out
}

func predictVectorExtrapolation(state timeline.EntityState, fromMs, toMs int64, resolutionSeconds int) []timeline.PredictedPosition {
	speedKnots := defaultSpeedKnots
	heading := 0.0
	if state.Velocity != nil {
		heading = state.Velocity.Heading
		if state.Velocity.Speed > 0 {
			speedKnots = state.Velocity.Speed
		}
	}
	speedMps := speedKnots * knotsToMps
	current := toGeo(state.Position)

	var out []timeline.PredictedPosition
	strideMs := int64(resolutionSeconds) * 1000
	stepDist := speedMps * float64(resolutionSeconds)
	first := true
	for t := fromMs; t <= toMs; t += strideMs {
		if !first {
			current = geo.Destination(current, heading, stepDist)
		}
		first = false

		vel := &timeline.Velocity{Speed: speedKnots, Heading: heading}
		entry := makeEntry(state.EntityID, t, fromGeo(current), vel, timeline.SourceExtrapolation)
		out = append(out, timeline.PredictedPosition{
			TimelineEntry:    entry,
			PredictionSource: timeline.SourceExtrapolation,
			ModelVersion:     "1.0.0",
			Confidence:       1.0,
		})
	}
	return out
}
