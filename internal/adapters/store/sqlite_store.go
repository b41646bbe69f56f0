package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/propio/lead-scoring/internal/core"
)

// WeightDecoder rebuilds a live predictor from a stored weight blob
type WeightDecoder func(weights []byte) (core.Model, error)

// SQLiteStore is a SQLite implementation of the score, metric, artifact
// and alert stores.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
	decode WeightDecoder
}

// NewSQLiteStore opens (and if needed bootstraps) a SQLite database
func NewSQLiteStore(dbPath string, decode WeightDecoder, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS score_records (
			id TEXT PRIMARY KEY,
			lead_id TEXT NOT NULL,
			model_version TEXT NOT NULL,
			score REAL,
			confidence REAL,
			features TEXT,
			scored_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_lead ON score_records(lead_id, scored_at)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_time ON score_records(scored_at)`,
		`CREATE TABLE IF NOT EXISTS metric_samples (
			model_id TEXT,
			name TEXT NOT NULL,
			value REAL,
			recorded_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_samples_name ON metric_samples(name, recorded_at)`,
		`CREATE TABLE IF NOT EXISTS model_artifacts (
			id TEXT PRIMARY KEY,
			type TEXT,
			version TEXT,
			schema_version INTEGER,
			status TEXT,
			metrics TEXT,
			training_date TIMESTAMP,
			feature_count INTEGER,
			weights BLOB
		)`,
		`CREATE TABLE IF NOT EXISTS drift_alerts (
			id TEXT PRIMARY KEY,
			model_id TEXT,
			metric_name TEXT,
			severity TEXT,
			detail TEXT,
			detected_at TIMESTAMP
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &SQLiteStore{db: db, logger: logger, decode: decode}, nil
}

// Append stores one score record
func (s *SQLiteStore) Append(ctx context.Context, record *core.ScoreRecord) error {
	features, err := json.Marshal(record.FeaturesUsed)
	if err != nil {
		return fmt.Errorf("failed to encode features: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO score_records (id, lead_id, model_version, score, confidence, features, scored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, record.ID, record.LeadID, record.ModelVersion, record.Score, record.Confidence,
		string(features), record.ScoredAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert score record: %w", err)
	}
	return nil
}

// Query returns score records within [from, to], newest first
func (s *SQLiteStore) Query(ctx context.Context, leadID string, from, to time.Time) ([]core.ScoreRecord, error) {
	query := `
		SELECT id, lead_id, model_version, score, confidence, features, scored_at
		FROM score_records
		WHERE scored_at >= ? AND scored_at <= ?`
	args := []any{from.UTC().Format(time.RFC3339Nano), to.UTC().Format(time.RFC3339Nano)}
	if leadID != "" {
		query += ` AND lead_id = ?`
		args = append(args, leadID)
	}
	query += ` ORDER BY scored_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query score records: %w", err)
	}
	defer rows.Close()

	var out []core.ScoreRecord
	for rows.Next() {
		record, err := scanScoreRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *record)
	}
	return out, rows.Err()
}

// Latest returns the most recent record for a lead
func (s *SQLiteStore) Latest(ctx context.Context, leadID string) (*core.ScoreRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, lead_id, model_version, score, confidence, features, scored_at
		FROM score_records
		WHERE lead_id = ?
		ORDER BY scored_at DESC
		LIMIT 1
	`, leadID)

	record, err := scanScoreRecord(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	return record, err
}

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanScoreRecord(sc scanner) (*core.ScoreRecord, error) {
	var record core.ScoreRecord
	var features, scoredAt string
	if err := sc.Scan(&record.ID, &record.LeadID, &record.ModelVersion,
		&record.Score, &record.Confidence, &features, &scoredAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan score record: %w", err)
	}

	if err := json.Unmarshal([]byte(features), &record.FeaturesUsed); err != nil {
		return nil, fmt.Errorf("failed to decode features: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, scoredAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse scored_at timestamp: %w", err)
	}
	record.ScoredAt = parsed
	return &record, nil
}

// Metrics returns this store's MetricStore facet
func (s *SQLiteStore) Metrics() core.MetricStore {
	return &sqliteMetricStore{store: s}
}

type sqliteMetricStore struct {
	store *SQLiteStore
}

func (m *sqliteMetricStore) Append(ctx context.Context, sample *core.MetricSample) error {
	_, err := m.store.db.ExecContext(ctx, `
		INSERT INTO metric_samples (model_id, name, value, recorded_at)
		VALUES (?, ?, ?, ?)
	`, sample.ModelID, sample.Name, sample.Value, sample.RecordedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert metric sample: %w", err)
	}
	return nil
}

func (m *sqliteMetricStore) Query(ctx context.Context, name string, from, to time.Time) ([]core.MetricSample, error) {
	query := `
		SELECT model_id, name, value, recorded_at
		FROM metric_samples
		WHERE recorded_at >= ? AND recorded_at <= ?`
	args := []any{from.UTC().Format(time.RFC3339Nano), to.UTC().Format(time.RFC3339Nano)}
	if name != "" {
		query += ` AND name = ?`
		args = append(args, name)
	}
	query += ` ORDER BY recorded_at ASC`

	rows, err := m.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query metric samples: %w", err)
	}
	defer rows.Close()

	var out []core.MetricSample
	for rows.Next() {
		var sample core.MetricSample
		var recordedAt string
		if err := rows.Scan(&sample.ModelID, &sample.Name, &sample.Value, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan metric sample: %w", err)
		}
		sample.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse recorded_at timestamp: %w", err)
		}
		out = append(out, sample)
	}
	return out, rows.Err()
}

func (m *sqliteMetricStore) Aggregate(ctx context.Context, from, to time.Time) (map[string]map[string]core.MetricSummary, error) {
	samples, err := m.Query(ctx, "", from, to)
	if err != nil {
		return nil, err
	}
	return summarize(samples), nil
}

// Save inserts or updates a model artifact
func (s *SQLiteStore) Save(ctx context.Context, artifact *core.ModelArtifact) error {
	metricsJSON, err := json.Marshal(artifact.Metrics)
	if err != nil {
		return fmt.Errorf("failed to encode artifact metrics: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO model_artifacts
			(id, type, version, schema_version, status, metrics, training_date, feature_count, weights)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, artifact.ID, string(artifact.Type), artifact.Version, artifact.SchemaVersion,
		string(artifact.Status), string(metricsJSON),
		artifact.TrainingDate.UTC().Format(time.RFC3339Nano), artifact.FeatureCount, artifact.Weights)
	if err != nil {
		return fmt.Errorf("failed to save model artifact: %w", err)
	}
	return nil
}

// List returns all stored artifacts with their predictors rehydrated
func (s *SQLiteStore) List(ctx context.Context) ([]*core.ModelArtifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, version, schema_version, status, metrics, training_date, feature_count, weights
		FROM model_artifacts
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query model artifacts: %w", err)
	}
	defer rows.Close()

	var out []*core.ModelArtifact
	for rows.Next() {
		var artifact core.ModelArtifact
		var modelType, status, metricsJSON, trainingDate string
		if err := rows.Scan(&artifact.ID, &modelType, &artifact.Version, &artifact.SchemaVersion,
			&status, &metricsJSON, &trainingDate, &artifact.FeatureCount, &artifact.Weights); err != nil {
			return nil, fmt.Errorf("failed to scan model artifact: %w", err)
		}
		artifact.Type = core.ModelType(modelType)
		artifact.Status = core.ModelStatus(status)
		if err := json.Unmarshal([]byte(metricsJSON), &artifact.Metrics); err != nil {
			return nil, fmt.Errorf("failed to decode artifact metrics: %w", err)
		}
		artifact.TrainingDate, err = time.Parse(time.RFC3339Nano, trainingDate)
		if err != nil {
			return nil, fmt.Errorf("failed to parse training_date timestamp: %w", err)
		}

		if s.decode != nil {
			model, err := s.decode(artifact.Weights)
			if err != nil {
				s.logger.Error("Failed to decode stored model weights",
					zap.Error(err),
					zap.String("model_id", artifact.ID))
				continue
			}
			artifact.Model = model
		}
		out = append(out, &artifact)
	}
	return out, rows.Err()
}

// Publish appends a drift alert to the audit trail
func (s *SQLiteStore) Publish(ctx context.Context, alert *core.DriftAlert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drift_alerts (id, model_id, metric_name, severity, detail, detected_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, alert.ID, alert.ModelID, alert.MetricName, string(alert.Severity), alert.Detail,
		alert.DetectedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert drift alert: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
