// Package aircraft implements the Aircraft Predictor: route-following when
// a flight plan is present, vector extrapolation otherwise.
package aircraft

import (
	"context"
	"time"

	"github.com/mycosoft-labs/crep/internal/geo"
	"github.com/mycosoft-labs/crep/internal/prediction"
	"github.com/mycosoft-labs/crep/internal/timeline"
)

const (
	knotsToMps  = 0.514444
	maxAltitudeM = 13716.0 // 45,000 ft
)

// StateStore is the minimal lookup the predictor needs to fetch the last
// known state of an aircraft; satisfied by internal/statestore (over the
// Cache Manager) in production, or a fixture in tests.
type StateStore interface {
	GetAircraftState(ctx context.Context, entityID string) (*timeline.EntityState, error)
}

// Predictor is the Aircraft Predictor.
type Predictor struct {
	store StateStore
}

// New constructs an Aircraft Predictor backed by store.
func New(store StateStore) *Predictor {
	return &Predictor{store: store}
}

// Params returns the aircraft-class tuning constants.
func (p *Predictor) Params() prediction.Params {
	return prediction.Params{
		EntityType:              timeline.Aircraft,
		PredictionSource:        timeline.SourceExtrapolation,
		ModelVersion:            "1.0.0",
		InitialConfidence:       0.95,
		ConfidenceHalfLifeSecs:  600,
		MinimumConfidence:       0.2,
		MaxPredictionHorizon:    4 * time.Hour,
		MinResolutionSeconds:    10,
		MaxResolutionSeconds:    3600,
		BaseUncertaintyMeters:   50,
		UncertaintyGrowthPerSec: 0.5,
	}
}

// GetCurrentState delegates to the backing store.
func (p *Predictor) GetCurrentState(ctx context.Context, entityID string) (*timeline.EntityState, error) {
	state, err := p.store.GetAircraftState(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, prediction.ErrNoState
	}
	return state, nil
}

// PredictPositions dispatches to route-following or vector extrapolation
// depending on whether a flight plan with at least one waypoint is present.
func (p *Predictor) PredictPositions(ctx context.Context, state timeline.EntityState, fromMs, toMs int64, resolutionSeconds int) ([]timeline.PredictedPosition, error) {
	if state.FlightPlan != nil && len(state.FlightPlan.Waypoints) > 0 {
		return predictRouteFollowing(state, fromMs, toMs, resolutionSeconds), nil
	}
	return predictVectorExtrapolation(state, fromMs, toMs, resolutionSeconds), nil
}

func altPtr(v float64) *float64 { return &v }

func toGeo(p timeline.GeoPoint) geo.Point { return geo.Point{Lat: p.Lat, Lng: p.Lng, Alt: p.Altitude} }

func fromGeo(p geo.Point) timeline.GeoPoint { return timeline.GeoPoint{Lat: p.Lat, Lng: p.Lng, Altitude: p.Alt} }

func waypointPoint(w timeline.Waypoint) geo.Point {
	var alt *float64
	if w.Altitude != nil {
		alt = w.Altitude
	}
	return geo.Point{Lat: w.Lat, Lng: w.Lng, Alt: alt}
}

// closestWaypointIndex locates the nearest waypoint to pos by haversine
// distance, per the "locate the closest waypoint index" rule.
func closestWaypointIndex(pos geo.Point, waypoints []timeline.Waypoint) int {
	best, bestDist := 0, -1.0
	for i, w := range waypoints {
		d := geo.Distance(pos, waypointPoint(w))
		if bestDist < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func makeEntry(entityID string, tsMs int64, pos timeline.GeoPoint, vel *timeline.Velocity, src timeline.Source) timeline.TimelineEntry {
	return timeline.TimelineEntry{
		EntityType:  timeline.Aircraft,
		EntityID:    entityID,
		TimestampMs: tsMs,
		Data:        timeline.EntryData{Position: pos, Velocity: vel},
		Source:      src,
		CreatedAt:   time.Now().UnixMilli(),
	}
}

func predictRouteFollowing(state timeline.EntityState, fromMs, toMs int64, resolutionSeconds int) []timeline.PredictedPosition {
	waypoints := state.FlightPlan.Waypoints
	if len(waypoints) == 1 {
		waypoints = append([]timeline.Waypoint{{Lat: state.Position.Lat, Lng: state.Position.Lng, Altitude: state.Position.Altitude}}, waypoints...)
	}
	speedKnots := 450.0
	if state.Velocity != nil && state.Velocity.Speed > 0 {
		speedKnots = state.Velocity.Speed
	}
	groundSpeedMps := speedKnots * knotsToMps

	current := toGeo(state.Position)
	segmentIdx := closestWaypointIndex(current, waypoints)
	if segmentIdx >= len(waypoints)-1 {
		segmentIdx = len(waypoints) - 2
	}
	if segmentIdx < 0 {
		segmentIdx = 0
	}
	elapsedInSegment := 0.0

	var out []timeline.PredictedPosition
	strideMs := int64(resolutionSeconds) * 1000
	for t := fromMs; t <= toMs; t += strideMs {
		var pos geo.Point
		var heading float64
		var climbRate *float64

		if segmentIdx < len(waypoints)-1 {
			next := waypointPoint(waypoints[segmentIdx+1])
			segDist := geo.Distance(current, next)
			segmentTime := segDist / groundSpeedMps
			if segmentTime <= 0 {
				segmentTime = 1
			}

			frac := elapsedInSegment / segmentTime
			for frac >= 1 && segmentIdx < len(waypoints)-2 {
				current = next
				segmentIdx++
				next = waypointPoint(waypoints[segmentIdx+1])
				elapsedInSegment -= segmentTime
				segDist = geo.Distance(current, next)
				segmentTime = segDist / groundSpeedMps
				if segmentTime <= 0 {
					segmentTime = 1
				}
				frac = elapsedInSegment / segmentTime
			}
			if frac > 1 {
				frac = 1
			}

			pos = geo.Interpolate(current, next, frac)
			heading = geo.Bearing(current, next)

			if current.Alt != nil && next.Alt != nil {
				climbRate = altPtr((*next.Alt - *current.Alt) / segmentTime)
			}
			elapsedInSegment += float64(resolutionSeconds)
		} else {
			last := waypointPoint(waypoints[len(waypoints)-1])
			prev := waypointPoint(waypoints[len(waypoints)-2])
			heading = geo.Bearing(prev, last)
			distSoFar := elapsedInSegment * groundSpeedMps
			pos = geo.Destination(last, heading, distSoFar)
			elapsedInSegment += float64(resolutionSeconds)
		}

		vel := &timeline.Velocity{Speed: speedKnots, Heading: heading, ClimbRate: climbRate}
		entry := makeEntry(state.EntityID, t, fromGeo(pos), vel, timeline.SourceFlightPlan)
		out = append(out, timeline.PredictedPosition{
			TimelineEntry:    entry,
			PredictionSource: timeline.SourceFlightPlan,
			ModelVersion:     "1.0.0",
			Confidence:       1.0,
		})
	}
	return out
}

func predictVectorExtrapolation(state timeline.EntityState, fromMs, toMs int64, resolutionSeconds int) []timeline.PredictedPosition {
	heading := 0.0
	speedKnots := 0.0
	var climbRate float64
	var climbRatePtr *float64
	if state.Velocity != nil {
		heading = state.Velocity.Heading
		speedKnots = state.Velocity.Speed
		if state.Velocity.ClimbRate != nil {
			climbRate = *state.Velocity.ClimbRate
			climbRatePtr = state.Velocity.ClimbRate
		}
	}
	speedMps := speedKnots * knotsToMps

	currentAlt := 0.0
	if state.Position.Altitude != nil {
		currentAlt = *state.Position.Altitude
	}
	current := toGeo(state.Position)

	var out []timeline.PredictedPosition
	strideMs := int64(resolutionSeconds) * 1000
	stepDist := speedMps * float64(resolutionSeconds)
	altStep := climbRate * float64(resolutionSeconds)
	first := true
	for t := fromMs; t <= toMs; t += strideMs {
		if !first {
			current = geo.Destination(current, heading, stepDist)
			currentAlt += altStep
		}
		first = false

		if currentAlt < 0 {
			currentAlt = 0
		}
		if currentAlt > maxAltitudeM {
			currentAlt = maxAltitudeM
		}
		pos := current
		pos.Alt = altPtr(currentAlt)

		vel := &timeline.Velocity{Speed: speedKnots, Heading: heading, ClimbRate: climbRatePtr}
		entry := makeEntry(state.EntityID, t, fromGeo(pos), vel, timeline.SourceExtrapolation)
		out = append(out, timeline.PredictedPosition{
			TimelineEntry:    entry,
			PredictionSource: timeline.SourceExtrapolation,
			ModelVersion:     "1.0.0",
			Confidence:       1.0,
		})
	}
	return out
}
