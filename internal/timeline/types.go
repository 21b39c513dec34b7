// Package timeline defines the entity/entry data model shared by every cache
// tier and predictor: EntityType and Source are closed tagged enums (not a
// class hierarchy), and TimelineEntry/PredictedPosition/EntityState are
// pointer-free value types, per the design notes this service follows.
package timeline

import "fmt"

// EntityType is the closed set of moving/hazard entity kinds CREP tracks.
type EntityType string

const (
	Aircraft   EntityType = "aircraft"
	Vessel     EntityType = "vessel"
	Satellite  EntityType = "satellite"
	Wildlife   EntityType = "wildlife"
	Earthquake EntityType = "earthquake"
	Wildfire   EntityType = "wildfire"
	Storm      EntityType = "storm"
	Weather    EntityType = "weather"
)

// Source tags where a TimelineEntry came from: ground truth (live,
// historical), a cache-tier downgrade (cached), or one of the forecast
// variants a predictor attaches to its output.
type Source string

const (
	SourceLive       Source = "live"
	SourceHistorical Source = "historical"
	SourceForecast   Source = "forecast"
	SourceCached     Source = "cached"

	SourcePrediction      Source = "prediction"
	SourceExtrapolation   Source = "extrapolation"
	SourceFlightPlan      Source = "flight_plan"
	SourceOrbitPropagated Source = "orbit_propagation"
	SourceRoutePlan       Source = "route_plan"
	SourceMigrationModel  Source = "migration_model"
	SourceEarth2Forecast  Source = "earth2_forecast"
	SourceStatistical     Source = "statistical"
	SourceHazardModel     Source = "hazard_model"
)

// ForecastSources is the authoritative superset of source tags the
// Prediction Store treats as replaceable forecast rows.
var ForecastSources = map[Source]bool{
	SourceForecast:        true,
	SourcePrediction:      true,
	SourceExtrapolation:   true,
	SourceFlightPlan:      true,
	SourceOrbitPropagated: true,
	SourceRoutePlan:       true,
	SourceMigrationModel:  true,
	SourceEarth2Forecast:  true,
	SourceStatistical:     true,
	SourceHazardModel:     true,
}

// GroundTruthSources must never be clobbered by a prediction write.
var GroundTruthSources = map[Source]bool{
	SourceLive:       true,
	SourceHistorical: true,
}

// GeoPoint is a WGS84 position. Altitude, in meters, may be negative
// (sub-sea) and is optional.
type GeoPoint struct {
	Lat      float64  `json:"lat" msgpack:"lat"`
	Lng      float64  `json:"lng" msgpack:"lng"`
	Altitude *float64 `json:"altitude,omitempty" msgpack:"altitude,omitempty"`
}

// Velocity carries scalar speed (units are class-specific: knots for
// aircraft/vessel, km/h for hazard storm tracks, m/s otherwise — the
// producing predictor documents and is
// responsible for its own units), heading in degrees clockwise from true
// north, and an optional climb rate.
type Velocity struct {
	Speed     float64  `json:"speed" msgpack:"speed"`
	Heading   float64  `json:"heading" msgpack:"heading"`
	ClimbRate *float64 `json:"climb_rate,omitempty" msgpack:"climb_rate,omitempty"`
}

// EntryData is the opaque-to-the-cache payload a TimelineEntry carries. By
// convention it holds a position, an optional velocity, and a free-form
// metadata bag (hazard sub-type, flight plan, species, and so on).
type EntryData struct {
	Position GeoPoint               `json:"position" msgpack:"position"`
	Velocity *Velocity               `json:"velocity,omitempty" msgpack:"velocity,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty" msgpack:"metadata,omitempty"`
}

// TimelineEntry is the cache's unit of storage: one entity, one instant.
type TimelineEntry struct {
	EntityType EntityType `json:"entity_type" msgpack:"entity_type"`
	EntityID   string     `json:"entity_id" msgpack:"entity_id"`
	TimestampMs int64     `json:"timestamp_ms" msgpack:"timestamp_ms"`
	Data       EntryData  `json:"data" msgpack:"data"`
	Source     Source     `json:"source" msgpack:"source"`
	CreatedAt  int64      `json:"created_at" msgpack:"created_at"`
	ExpiresAt  *int64     `json:"expires_at,omitempty" msgpack:"expires_at,omitempty"`
}

// CacheKey returns the Memory/Networked Cache key for this entry, per the
// "timeline:<entity_type>:<entity_id>:<timestamp_ms>" convention; ':' is a
// reserved separator in this scheme.
func (e TimelineEntry) CacheKey() string {
	return CacheKey(e.EntityType, e.EntityID, e.TimestampMs)
}

// IndexKey returns the Networked Cache's sorted-set index key for the
// entity this entry belongs to.
func (e TimelineEntry) IndexKey() string {
	return IndexKey(e.EntityType, e.EntityID)
}

// CacheKey builds the entry key for an (entity_type, entity_id, timestamp).
func CacheKey(et EntityType, id string, tsMs int64) string {
	return fmt.Sprintf("timeline:%s:%s:%d", et, id, tsMs)
}

// IndexKey builds the sorted-set index key for an entity.
func IndexKey(et EntityType, id string) string {
	return fmt.Sprintf("timeline:idx:%s:%s", et, id)
}

// IsExpired reports whether e's hard deadline, if any, has passed as of now
// (epoch milliseconds). No tier may return an expired entry.
func (e TimelineEntry) IsExpired(nowMs int64) bool {
	return e.ExpiresAt != nil && nowMs >= *e.ExpiresAt
}

// BoundingBox is an optional viewport filter a Query may carry, per the
// supplemented TimelineQuery.min/max_lat/lng feature from the original
// timeline_cache.py.
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// Contains reports whether p falls within the box.
func (b BoundingBox) Contains(p GeoPoint) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// Query describes a timeline read across any cache tier.
type Query struct {
	EntityType *EntityType
	EntityID   *string
	StartMs    *int64
	EndMs      *int64
	Source     *Source
	Limit      int
	Viewport   *BoundingBox
}

// UncertaintyCone describes the spatial uncertainty of a predicted position.
type UncertaintyCone struct {
	RadiusMeters    float64  `json:"radius_meters" msgpack:"radius_meters"`
	AltitudeMeters  *float64 `json:"altitude_meters,omitempty" msgpack:"altitude_meters,omitempty"`
}

// PredictedPosition is a TimelineEntry whose Source marks it as a forecast,
// augmented with the predictor's confidence and uncertainty estimate.
type PredictedPosition struct {
	TimelineEntry
	Confidence       float64          `json:"confidence" msgpack:"confidence"`
	Uncertainty      *UncertaintyCone `json:"uncertainty,omitempty" msgpack:"uncertainty,omitempty"`
	PredictionSource Source           `json:"prediction_source" msgpack:"prediction_source"`
	ModelVersion     string           `json:"model_version" msgpack:"model_version"`
}

// FlightPlan is an aircraft's filed route.
type FlightPlan struct {
	Waypoints []Waypoint `json:"waypoints"`
	Departure string     `json:"departure,omitempty"`
	Arrival   string     `json:"arrival,omitempty"`
}

// Waypoint is one leg endpoint of a FlightPlan.
type Waypoint struct {
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	Altitude *float64 `json:"altitude,omitempty"`
	TimeMs   *int64   `json:"time,omitempty"`
}

// EntityState is the last-known ground-truth snapshot a predictor works
// from, with class-specific carry-ons left unused by the classes that don't
// need them (tagged-union style, not a type hierarchy).
type EntityState struct {
	EntityType  EntityType
	EntityID    string
	TimestampMs int64
	Position    GeoPoint
	Velocity    *Velocity

	FlightPlan  *FlightPlan
	Destination *string

	TLELine1 string
	TLELine2 string

	Species string

	Metadata map[string]interface{}
}
