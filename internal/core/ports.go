package core

import (
	"context"
	"time"
)

// LeadStore provides read access to lead profiles and their history.
// Lead CRUD itself lives outside the scoring pipeline.
type LeadStore interface {
	// GetLead returns a lead snapshot, or ErrNotFound
	GetLead(ctx context.Context, id string) (*LeadSnapshot, error)

	// GetInteractions returns all recorded interactions for a lead
	GetInteractions(ctx context.Context, id string) ([]Interaction, error)

	// GetPropertyPrefs returns the lead's property preferences
	GetPropertyPrefs(ctx context.Context, id string) ([]PropertyPreference, error)
}

// OutcomeStore exposes known conversion outcomes recorded by the external
// conversion-event logger. Leads without a known outcome are absent.
type OutcomeStore interface {
	GetOutcomes(ctx context.Context, since time.Time) (map[string]bool, error)
}

// ScoreStore is the append-only history of scoring events
type ScoreStore interface {
	// Append stores one score record
	Append(ctx context.Context, record *ScoreRecord) error

	// Query returns records scored within [from, to], newest first.
	// An empty leadID matches all leads.
	Query(ctx context.Context, leadID string, from, to time.Time) ([]ScoreRecord, error)

	// Latest returns the most recent record for a lead, or ErrNotFound
	Latest(ctx context.Context, leadID string) (*ScoreRecord, error)
}

// MetricStore is the append-only history of performance metric samples
type MetricStore interface {
	// Append stores one metric sample
	Append(ctx context.Context, sample *MetricSample) error

	// Query returns samples of a named metric within [from, to], oldest
	// first. An empty name matches all metrics.
	Query(ctx context.Context, name string, from, to time.Time) ([]MetricSample, error)

	// Aggregate summarizes samples over [from, to], grouped by model id
	// and metric name.
	Aggregate(ctx context.Context, from, to time.Time) (map[string]map[string]MetricSummary, error)
}

// ArtifactStore persists model artifacts across restarts
type ArtifactStore interface {
	// Save inserts or updates an artifact by id
	Save(ctx context.Context, artifact *ModelArtifact) error

	// List returns all stored artifacts
	List(ctx context.Context) ([]*ModelArtifact, error)
}

// AlertSink receives drift alerts. Publish is fire-and-forget: a sink
// failure must never fail the monitoring cycle that produced the alert.
type AlertSink interface {
	Publish(ctx context.Context, alert *DriftAlert) error
}
