package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/propio/lead-scoring/internal/core"
)

// mysqlTimeFormat is the DATETIME layout the driver round-trips
const mysqlTimeFormat = "2006-01-02 15:04:05.999999"

// MySQLStore is a MySQL implementation of the score, metric, artifact and
// alert stores.
type MySQLStore struct {
	db     *sql.DB
	logger *zap.Logger
	decode WeightDecoder
}

// NewMySQLStore connects to MySQL and bootstraps the schema
func NewMySQLStore(dsn string, decode WeightDecoder, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS score_records (
			id VARCHAR(64) PRIMARY KEY,
			lead_id VARCHAR(64) NOT NULL,
			model_version VARCHAR(128) NOT NULL,
			score DOUBLE,
			confidence DOUBLE,
			features TEXT,
			scored_at DATETIME(6),
			INDEX idx_scores_lead (lead_id, scored_at),
			INDEX idx_scores_time (scored_at)
		)`,
		`CREATE TABLE IF NOT EXISTS metric_samples (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			model_id VARCHAR(64),
			name VARCHAR(128) NOT NULL,
			value DOUBLE,
			recorded_at DATETIME(6),
			INDEX idx_samples_name (name, recorded_at)
		)`,
		`CREATE TABLE IF NOT EXISTS model_artifacts (
			id VARCHAR(64) PRIMARY KEY,
			type VARCHAR(32),
			version VARCHAR(128),
			schema_version INT,
			status VARCHAR(32),
			metrics TEXT,
			training_date DATETIME(6),
			feature_count INT,
			weights MEDIUMBLOB
		)`,
		`CREATE TABLE IF NOT EXISTS drift_alerts (
			id VARCHAR(64) PRIMARY KEY,
			model_id VARCHAR(64),
			metric_name VARCHAR(128),
			severity VARCHAR(16),
			detail TEXT,
			detected_at DATETIME(6)
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &MySQLStore{db: db, logger: logger, decode: decode}, nil
}

// Append stores one score record
func (s *MySQLStore) Append(ctx context.Context, record *core.ScoreRecord) error {
	features, err := json.Marshal(record.FeaturesUsed)
	if err != nil {
		return fmt.Errorf("failed to encode features: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO score_records (id, lead_id, model_version, score, confidence, features, scored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, record.ID, record.LeadID, record.ModelVersion, record.Score, record.Confidence,
		string(features), record.ScoredAt.UTC().Format(mysqlTimeFormat))
	if err != nil {
		return fmt.Errorf("failed to insert score record: %w", err)
	}
	return nil
}

// Query returns score records within [from, to], newest first
func (s *MySQLStore) Query(ctx context.Context, leadID string, from, to time.Time) ([]core.ScoreRecord, error) {
	query := `
		SELECT id, lead_id, model_version, score, confidence, features, scored_at
		FROM score_records
		WHERE scored_at >= ? AND scored_at <= ?`
	args := []any{from.UTC().Format(mysqlTimeFormat), to.UTC().Format(mysqlTimeFormat)}
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
		record, err := scanMySQLScoreRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *record)
	}
	return out, rows.Err()
}

// Latest returns the most recent record for a lead
func (s *MySQLStore) Latest(ctx context.Context, leadID string) (*core.ScoreRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, lead_id, model_version, score, confidence, features, scored_at
		FROM score_records
		WHERE lead_id = ?
		ORDER BY scored_at DESC
		LIMIT 1
	`, leadID)

	record, err := scanMySQLScoreRecord(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	return record, err
}

func scanMySQLScoreRecord(sc scanner) (*core.ScoreRecord, error) {
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
	parsed, err := time.Parse(mysqlTimeFormat, scoredAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse scored_at timestamp: %w", err)
	}
	record.ScoredAt = parsed
	return &record, nil
}

// Metrics returns this store's MetricStore facet
func (s *MySQLStore) Metrics() core.MetricStore {
	return &mysqlMetricStore{store: s}
}

type mysqlMetricStore struct {
	store *MySQLStore
}

func (m *mysqlMetricStore) Append(ctx context.Context, sample *core.MetricSample) error {
	_, err := m.store.db.ExecContext(ctx, `
		INSERT INTO metric_samples (model_id, name, value, recorded_at)
		VALUES (?, ?, ?, ?)
	`, sample.ModelID, sample.Name, sample.Value, sample.RecordedAt.UTC().Format(mysqlTimeFormat))
	if err != nil {
		return fmt.Errorf("failed to insert metric sample: %w", err)
	}
	return nil
}

func (m *mysqlMetricStore) Query(ctx context.Context, name string, from, to time.Time) ([]core.MetricSample, error) {
	query := `
		SELECT model_id, name, value, recorded_at
		FROM metric_samples
		WHERE recorded_at >= ? AND recorded_at <= ?`
	args := []any{from.UTC().Format(mysqlTimeFormat), to.UTC().Format(mysqlTimeFormat)}
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
		sample.RecordedAt, err = time.Parse(mysqlTimeFormat, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse recorded_at timestamp: %w", err)
		}
		out = append(out, sample)
	}
	return out, rows.Err()
}

func (m *mysqlMetricStore) Aggregate(ctx context.Context, from, to time.Time) (map[string]map[string]core.MetricSummary, error) {
	samples, err := m.Query(ctx, "", from, to)
	if err != nil {
		return nil, err
	}
	return summarize(samples), nil
}

// Save inserts or updates a model artifact
func (s *MySQLStore) Save(ctx context.Context, artifact *core.ModelArtifact) error {
	metricsJSON, err := json.Marshal(artifact.Metrics)
	if err != nil {
		return fmt.Errorf("failed to encode artifact metrics: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO model_artifacts
			(id, type, version, schema_version, status, metrics, training_date, feature_count, weights)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			status = VALUES(status),
			metrics = VALUES(metrics)
	`, artifact.ID, string(artifact.Type), artifact.Version, artifact.SchemaVersion,
		string(artifact.Status), string(metricsJSON),
		artifact.TrainingDate.UTC().Format(mysqlTimeFormat), artifact.FeatureCount, artifact.Weights)
	if err != nil {
		return fmt.Errorf("failed to save model artifact: %w", err)
	}
	return nil
}

// List returns all stored artifacts with their predictors rehydrated
func (s *MySQLStore) List(ctx context.Context) ([]*core.ModelArtifact, error) {
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
		artifact.TrainingDate, err = time.Parse(mysqlTimeFormat, trainingDate)
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
func (s *MySQLStore) Publish(ctx context.Context, alert *core.DriftAlert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drift_alerts (id, model_id, metric_name, severity, detail, detected_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, alert.ID, alert.ModelID, alert.MetricName, string(alert.Severity), alert.Detail,
		alert.DetectedAt.UTC().Format(mysqlTimeFormat))
	if err != nil {
		return fmt.Errorf("failed to insert drift alert: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
