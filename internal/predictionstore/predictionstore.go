// Package predictionstore persists Prediction Engine output for unified
// timeline access, storing forecasts in the same schema shape as
// historical data but flagged by source so later queries can distinguish
// ground truth from prediction. Backed by a single SQLite table
// (internal/database's modernc.org/sqlite wrapper) keyed by
// (entity_id, timestamp_ms) and indexed by entity_type.
package predictionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mycosoft-labs/crep/internal/database"
	"github.com/mycosoft-labs/crep/internal/prediction"
	"github.com/mycosoft-labs/crep/internal/timeline"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS predictions (
	entity_id          TEXT NOT NULL,
	entity_type        TEXT NOT NULL,
	timestamp_ms       INTEGER NOT NULL,
	lat                REAL NOT NULL,
	lng                REAL NOT NULL,
	altitude           REAL,
	speed              REAL,
	heading            REAL,
	climb_rate         REAL,
	confidence         REAL NOT NULL,
	uncertainty_radius REAL,
	source             TEXT NOT NULL,
	model_version      TEXT NOT NULL,
	metadata           TEXT,
	created_at         INTEGER NOT NULL,
	PRIMARY KEY (entity_id, timestamp_ms)
);
CREATE INDEX IF NOT EXISTS idx_predictions_entity_type_ts ON predictions(entity_type, timestamp_ms);
CREATE INDEX IF NOT EXISTS idx_predictions_source ON predictions(source);
`

// Store persists PredictedPosition rows and retrieves them for timeline
// queries.
type Store struct {
	db *database.DB
}

// New opens (or creates) the predictions database at path and ensures its
// schema exists.
func New(path string) (*Store, error) {
	db, err := database.New(database.Config{Path: path, Profile: database.ProfileStandard, Name: "predictions"})
	if err != nil {
		return nil, fmt.Errorf("open predictions database: %w", err)
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		return nil, fmt.Errorf("create predictions schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

func forecastSourcePlaceholders() (string, []interface{}) {
	sources := make([]string, 0, len(timeline.ForecastSources))
	args := make([]interface{}, 0, len(timeline.ForecastSources))
	for src := range timeline.ForecastSources {
		sources = append(sources, "?")
		args = append(args, string(src))
	}
	return strings.Join(sources, ","), args
}

// StorePredictions persists result's predictions. When replaceExisting is
// true, existing forecast-tagged rows for the same entity within the
// result's timestamp span are deleted first — ground-truth rows (live,
// historical) are never touched. Returns the count of rows stored.
func (s *Store) StorePredictions(ctx context.Context, result prediction.Result, replaceExisting bool) (int, error) {
	all := result.Predictions
	if len(all) == 0 {
		return 0, nil
	}

	fromMs := all[0].TimestampMs
	toMs := all[len(all)-1].TimestampMs

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin prediction store transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if replaceExisting {
		if err := s.deletePredictionsTx(tx, result.EntityID, fromMs, toMs); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("delete existing predictions: %w", err)
		}
	}

	count, err := s.insertPredictionsTx(tx, all)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prediction store transaction: %w", err)
	}
	return count, nil
}

func (s *Store) deletePredictionsTx(tx *sql.Tx, entityID string, fromMs, toMs int64) error {
	placeholders, sourceArgs := forecastSourcePlaceholders()
	query := fmt.Sprintf(`
		DELETE FROM predictions
		WHERE entity_id = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		AND source IN (%s)
	`, placeholders)
	args := append([]interface{}{entityID, fromMs, toMs}, sourceArgs...)
	_, err := tx.Exec(query, args...)
	return err
}

func (s *Store) insertPredictionsTx(tx *sql.Tx, predictions []timeline.PredictedPosition) (int, error) {
	stmt, err := tx.Prepare(`
		INSERT INTO predictions (
			entity_id, entity_type, timestamp_ms,
			lat, lng, altitude,
			speed, heading, climb_rate,
			confidence, uncertainty_radius,
			source, model_version, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (entity_id, timestamp_ms) DO UPDATE SET
			lat = excluded.lat,
			lng = excluded.lng,
			altitude = excluded.altitude,
			confidence = excluded.confidence,
			source = excluded.source
			WHERE predictions.source NOT IN ('live', 'historical')
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	stored := 0
	for _, pred := range predictions {
		var speed, heading, climbRate sql.NullFloat64
		if pred.Data.Velocity != nil {
			speed = sql.NullFloat64{Float64: pred.Data.Velocity.Speed, Valid: true}
			heading = sql.NullFloat64{Float64: pred.Data.Velocity.Heading, Valid: true}
			if pred.Data.Velocity.ClimbRate != nil {
				climbRate = sql.NullFloat64{Float64: *pred.Data.Velocity.ClimbRate, Valid: true}
			}
		}
		var altitude sql.NullFloat64
		if pred.Data.Position.Altitude != nil {
			altitude = sql.NullFloat64{Float64: *pred.Data.Position.Altitude, Valid: true}
		}
		var uncertaintyRadius sql.NullFloat64
		if pred.Uncertainty != nil {
			uncertaintyRadius = sql.NullFloat64{Float64: pred.Uncertainty.RadiusMeters, Valid: true}
		}
		metadataJSON, err := json.Marshal(pred.Data.Metadata)
		if err != nil {
			return 0, fmt.Errorf("marshal metadata: %w", err)
		}

		res, err := stmt.Exec(
			pred.EntityID, string(pred.EntityType), pred.TimestampMs,
			pred.Data.Position.Lat, pred.Data.Position.Lng, altitude,
			speed, heading, climbRate,
			pred.Confidence, uncertaintyRadius,
			string(pred.PredictionSource), pred.ModelVersion, string(metadataJSON), pred.CreatedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("insert prediction row: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		stored += int(n)
	}
	return stored, nil
}

// GetPredictions retrieves stored predictions for an entity within a time
// range, restricted to forecast-tagged sources and ordered by timestamp.
func (s *Store) GetPredictions(ctx context.Context, entityType timeline.EntityType, entityID string, fromMs, toMs int64, limit int) ([]timeline.PredictedPosition, error) {
	if limit <= 0 {
		limit = 1000
	}
	placeholders, sourceArgs := forecastSourcePlaceholders()
	query := fmt.Sprintf(`
		SELECT entity_id, entity_type, timestamp_ms,
			lat, lng, altitude,
			speed, heading, climb_rate,
			confidence, uncertainty_radius,
			source, model_version, metadata, created_at
		FROM predictions
		WHERE entity_type = ? AND entity_id = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		AND source IN (%s)
		ORDER BY timestamp_ms
		LIMIT ?
	`, placeholders)
	args := append([]interface{}{string(entityType), entityID, fromMs, toMs}, sourceArgs...)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	var out []timeline.PredictedPosition
	for rows.Next() {
		pred, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pred)
	}
	return out, rows.Err()
}

func scanPrediction(rows *sql.Rows) (timeline.PredictedPosition, error) {
	var (
		entityID, entityType, source, modelVersion string
		timestampMs, createdAt                     int64
		lat, lng, confidence                       float64
		altitude, speed, heading, climbRate, uncertaintyRadius sql.NullFloat64
		metadataJSON                               sql.NullString
	)
	if err := rows.Scan(
		&entityID, &entityType, &timestampMs,
		&lat, &lng, &altitude,
		&speed, &heading, &climbRate,
		&confidence, &uncertaintyRadius,
		&source, &modelVersion, &metadataJSON, &createdAt,
	); err != nil {
		return timeline.PredictedPosition{}, fmt.Errorf("scan prediction row: %w", err)
	}

	pos := timeline.GeoPoint{Lat: lat, Lng: lng}
	if altitude.Valid {
		alt := altitude.Float64
		pos.Altitude = &alt
	}

	var vel *timeline.Velocity
	if speed.Valid {
		vel = &timeline.Velocity{Speed: speed.Float64}
		if heading.Valid {
			vel.Heading = heading.Float64
		}
		if climbRate.Valid {
			cr := climbRate.Float64
			vel.ClimbRate = &cr
		}
	}

	var uncertainty *timeline.UncertaintyCone
	if uncertaintyRadius.Valid {
		uncertainty = &timeline.UncertaintyCone{RadiusMeters: uncertaintyRadius.Float64}
	}

	var metadata map[string]interface{}
	if metadataJSON.Valid && metadataJSON.String != "" {
		_ = json.Unmarshal([]byte(metadataJSON.String), &metadata)
	}

	entry := timeline.TimelineEntry{
		EntityType:  timeline.EntityType(entityType),
		EntityID:    entityID,
		TimestampMs: timestampMs,
		Data:        timeline.EntryData{Position: pos, Velocity: vel, Metadata: metadata},
		Source:      timeline.Source(source),
		CreatedAt:   createdAt,
	}
	return timeline.PredictedPosition{
		TimelineEntry:    entry,
		Confidence:       confidence,
		Uncertainty:      uncertainty,
		PredictionSource: timeline.Source(source),
		ModelVersion:     modelVersion,
	}, nil
}

// CleanupOldPredictions removes forecast rows for an entity type older
// than olderThanMs, returning the number of rows removed.
func (s *Store) CleanupOldPredictions(ctx context.Context, entityType timeline.EntityType, olderThanMs int64) (int, error) {
	placeholders, sourceArgs := forecastSourcePlaceholders()
	query := fmt.Sprintf(`
		DELETE FROM predictions
		WHERE entity_type = ? AND timestamp_ms < ?
		AND source IN (%s)
	`, placeholders)
	args := append([]interface{}{string(entityType), olderThanMs}, sourceArgs...)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("cleanup old predictions: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// Now returns the current time in epoch milliseconds, for callers composing
// cleanup windows.
func Now() int64 { return time.Now().UnixMilli() }
