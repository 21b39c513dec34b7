// Package prediction defines the predictor contract shared by every
// entity-class predictor: request/result types, the confidence-decay and
// uncertainty-growth math, a per-request result cache, and horizon/
// resolution clamping. Entity-class subclasses (internal/prediction/*)
// implement only state-fetch and position-generation.
package prediction

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/mycosoft-labs/crep/internal/timeline"
)

// Request carries a prediction ask for one entity.
type Request struct {
	EntityType         timeline.EntityType
	EntityID           string
	FromTimeMs         int64
	ToTimeMs           int64
	ResolutionSeconds  int
	IncludeUncertainty bool

	// KnownState, when non-nil, is used instead of calling the predictor's
	// state fetch — e.g. when a caller already has a fully specified
	// EntityState and the predictor's own lookup would fail.
	KnownState *timeline.EntityState
}

// Result is the outcome of a prediction.
type Result struct {
	EntityID          string
	EntityType        timeline.EntityType
	Predictions       []timeline.PredictedPosition
	Source            timeline.Source
	ModelVersion      string
	ComputationTimeMs float64
	Warnings          []string
}

// Params are the per-entity-class tuning constants declared by each
// predictor.
type Params struct {
	EntityType               timeline.EntityType
	PredictionSource         timeline.Source
	ModelVersion             string
	InitialConfidence        float64
	ConfidenceHalfLifeSecs   float64
	MinimumConfidence        float64
	MaxPredictionHorizon     time.Duration
	MinResolutionSeconds     int
	MaxResolutionSeconds     int
	BaseUncertaintyMeters    float64
	UncertaintyGrowthPerSec  float64
}

// StateFetcher fetches the last-known ground truth for an entity.
// ErrNoState signals "no current state available", which is not an error
// condition — it becomes an empty result with a warning.
type StateFetcher interface {
	GetCurrentState(ctx context.Context, entityID string) (*timeline.EntityState, error)
}

// PositionGenerator produces the raw, pre-decay predicted positions for one
// entity across [fromTimeMs, toTimeMs] at the given stride.
type PositionGenerator interface {
	PredictPositions(ctx context.Context, state timeline.EntityState, fromTimeMs, toTimeMs int64, resolutionSeconds int) ([]timeline.PredictedPosition, error)
}

// Predictor is the common contract every entity-class predictor satisfies.
type Predictor interface {
	StateFetcher
	PositionGenerator
	Params() Params
}

// ErrNoState is returned by a StateFetcher to signal "entity not found or no
// current state available" — handled as an empty result, not an exception.
var ErrNoState = fmt.Errorf("no current state available")

type cacheEntry struct {
	result    Result
	createdAt time.Time
}

// Base wraps a Predictor with the shared validate/cache/decay machinery.
// Entity-class packages implement the Predictor methods
// (Params/GetCurrentState/PredictPositions) and are wrapped with NewBase, so the
// composition mirrors "subclasses implement domain logic, base implements
// common behavior" without a class hierarchy.
type Base struct {
	predictor Predictor
	cacheTTL  time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewBase wraps predictor with the base contract. cacheTTL defaults to 60s.
func NewBase(predictor Predictor, cacheTTL time.Duration) *Base {
	if cacheTTL <= 0 {
		cacheTTL = 60 * time.Second
	}
	return &Base{predictor: predictor, cacheTTL: cacheTTL, cache: make(map[string]cacheEntry)}
}

func requestCacheKey(req Request) string {
	return fmt.Sprintf("%s:%d:%d:%d", req.EntityID, req.FromTimeMs, req.ToTimeMs, req.ResolutionSeconds)
}

func (b *Base) cachedResult(key string) (Result, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ce, ok := b.cache[key]
	if !ok {
		return Result{}, false
	}
	if len(ce.result.Predictions) == 0 {
		return Result{}, false
	}
	oldest := ce.result.Predictions[0]
	age := time.Since(time.UnixMilli(oldest.CreatedAt))
	if age >= b.cacheTTL {
		return Result{}, false
	}
	return ce.result, true
}

func (b *Base) storeResult(key string, result Result) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache[key] = cacheEntry{result: result, createdAt: time.Now()}
}

// ClearCache drops every cached prediction result.
func (b *Base) ClearCache() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache = make(map[string]cacheEntry)
}

// Predict is the single entry point: validate, check the per-request cache,
// fetch state, generate positions, then apply confidence decay and (if
// requested) uncertainty growth.
func (b *Base) Predict(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	params := b.predictor.Params()

	if req.EntityType != params.EntityType {
		return Result{}, fmt.Errorf("wrong predictor for entity type %s", req.EntityType)
	}

	key := requestCacheKey(req)
	if cached, ok := b.cachedResult(key); ok {
		return cached, nil
	}

	var warnings []string

	maxToTime := req.FromTimeMs + params.MaxPredictionHorizon.Milliseconds()
	toTime := req.ToTimeMs
	if toTime > maxToTime {
		toTime = maxToTime
		warnings = append(warnings, fmt.Sprintf("prediction horizon clamped to %s", params.MaxPredictionHorizon))
	}

	resolution := req.ResolutionSeconds
	if resolution < params.MinResolutionSeconds {
		resolution = params.MinResolutionSeconds
	}
	if resolution > params.MaxResolutionSeconds {
		resolution = params.MaxResolutionSeconds
	}

	var state *timeline.EntityState
	if req.KnownState != nil {
		state = req.KnownState
	} else {
		fetched, err := b.predictor.GetCurrentState(ctx, req.EntityID)
		if err != nil {
			return Result{
				EntityID:          req.EntityID,
				EntityType:        req.EntityType,
				Source:            params.PredictionSource,
				ModelVersion:      params.ModelVersion,
				ComputationTimeMs: elapsedMs(start),
				Warnings:          []string{"Entity not found or no current state available"},
			}, nil
		}
		state = fetched
	}

	predictions, err := b.predictor.PredictPositions(ctx, *state, req.FromTimeMs, toTime, resolution)
	if err != nil {
		return Result{}, fmt.Errorf("predict positions: %w", err)
	}

	applyConfidenceDecay(predictions, state.TimestampMs, params)
	if req.IncludeUncertainty {
		applyUncertaintyGrowth(predictions, state.TimestampMs, params)
	}

	result := Result{
		EntityID:          req.EntityID,
		EntityType:        req.EntityType,
		Predictions:       predictions,
		Source:            params.PredictionSource,
		ModelVersion:      params.ModelVersion,
		ComputationTimeMs: elapsedMs(start),
		Warnings:          warnings,
	}
	b.storeResult(key, result)
	return result, nil
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

// CalculateConfidence applies C(t) = C0 * 0.5^(age/half_life), floored at
// the predictor's minimum_confidence.
func CalculateConfidence(ageSeconds float64, p Params) float64 {
	if ageSeconds <= 0 {
		return p.InitialConfidence
	}
	decay := math.Pow(0.5, ageSeconds/p.ConfidenceHalfLifeSecs)
	confidence := p.InitialConfidence * decay
	if confidence < p.MinimumConfidence {
		return p.MinimumConfidence
	}
	return confidence
}

// CalculateUncertaintyRadius applies base + growth_rate * age.
func CalculateUncertaintyRadius(ageSeconds float64, p Params) float64 {
	return p.BaseUncertaintyMeters + p.UncertaintyGrowthPerSec*ageSeconds
}

func applyConfidenceDecay(predictions []timeline.PredictedPosition, referenceMs int64, p Params) {
	for i := range predictions {
		ageSeconds := float64(predictions[i].TimestampMs-referenceMs) / 1000.0
		predictions[i].Confidence = CalculateConfidence(ageSeconds, p)
	}
}

func applyUncertaintyGrowth(predictions []timeline.PredictedPosition, referenceMs int64, p Params) {
	for i := range predictions {
		ageSeconds := float64(predictions[i].TimestampMs-referenceMs) / 1000.0
		radius := CalculateUncertaintyRadius(ageSeconds, p)
		predictions[i].Uncertainty = &timeline.UncertaintyCone{RadiusMeters: radius}
	}
}
