package core

import (
	"time"
)

// ArtifactSchemaVersion is bumped whenever the persisted shape of a
// ModelArtifact changes.
const ArtifactSchemaVersion = 1

// ModelType identifies the training recipe used to produce an artifact
type ModelType string

const (
	ModelTypeBaseline ModelType = "baseline"
	ModelTypeAdvanced ModelType = "advanced"
)

// ModelStatus is the lifecycle state of a model artifact
type ModelStatus string

const (
	StatusTrained   ModelStatus = "trained"
	StatusEvaluated ModelStatus = "evaluated"
	StatusActive    ModelStatus = "active"
	StatusRetired   ModelStatus = "retired"
)

// LeadSnapshot is a point-in-time view of a lead's profile
type LeadSnapshot struct {
	ID        string    `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// Interaction is a single recorded touch with a lead
type Interaction struct {
	LeadID     string    `json:"lead_id"`
	Channel    string    `json:"channel"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Interaction channels recognized by the feature extractor
const (
	ChannelEmail   = "email"
	ChannelCall    = "call"
	ChannelViewing = "viewing"
	ChannelMessage = "message"
)

// PropertyPreference captures what a lead is looking for
type PropertyPreference struct {
	LeadID       string  `json:"lead_id"`
	PropertyType string  `json:"property_type"`
	Budget       float64 `json:"budget"`
	Bedrooms     int     `json:"bedrooms"`
}

// ModelMetrics holds the confusion-matrix derived evaluation of an artifact
type ModelMetrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// Model produces a raw score from an ordered feature vector.
// Implementations must be deterministic and safe for concurrent use.
type Model interface {
	Predict(features []float64) (float64, error)
}

// ModelArtifact is a trained model together with its evaluation record.
// Status transitions are owned exclusively by the ModelRegistry; a retired
// artifact is immutable and retained for audit.
type ModelArtifact struct {
	ID            string       `json:"id"`
	Type          ModelType    `json:"type"`
	Version       string       `json:"version"`
	SchemaVersion int          `json:"schema_version"`
	Status        ModelStatus  `json:"status"`
	Metrics       ModelMetrics `json:"metrics"`
	TrainingDate  time.Time    `json:"training_date"`
	FeatureCount  int          `json:"feature_count"`
	Weights       []byte       `json:"weights"`

	// Model is the live predictor decoded from Weights. Not persisted.
	Model Model `json:"-"`
}

// ScoreRecord is one append-only scoring event for a lead
type ScoreRecord struct {
	ID           string             `json:"id"`
	LeadID       string             `json:"lead_id"`
	ModelVersion string             `json:"model_version"`
	Score        float64            `json:"score"`
	Confidence   float64            `json:"confidence"`
	FeaturesUsed map[string]float64 `json:"features_used"`
	ScoredAt     time.Time          `json:"scored_at"`
}

// ScoreResult is what callers of the scoring service get back
type ScoreResult struct {
	LeadID       string             `json:"lead_id"`
	Score        float64            `json:"score"`
	Confidence   float64            `json:"confidence"`
	ModelVersion string             `json:"model_version"`
	FeaturesUsed map[string]float64 `json:"features_used"`
	ScoredAt     time.Time          `json:"scored_at"`
}

// Factor is a single ranked contributor to a score
type Factor struct {
	Feature string  `json:"feature"`
	Impact  float64 `json:"impact"`
	Value   float64 `json:"value"`
}

// SimilarLead is a recently scored lead close to the one being explained
type SimilarLead struct {
	LeadID   string  `json:"lead_id"`
	Score    float64 `json:"score"`
	Distance float64 `json:"distance"`
}

// Explanation is derived on demand and never persisted
type Explanation struct {
	LeadID           string             `json:"lead_id"`
	Score            float64            `json:"score"`
	Confidence       float64            `json:"confidence"`
	TopFactors       []Factor           `json:"top_factors"`
	Contributions    map[string]float64 `json:"contributions"`
	RawContributions map[string]float64 `json:"raw_contributions"`
	SimilarLeads     []SimilarLead      `json:"similar_leads"`
	Recommendations  []string           `json:"recommendations"`
	WeightTable      string             `json:"weight_table_version"`
}

// AlertSeverity ranks how urgent a drift alert is
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// DriftAlert is an append-only record of detected model degradation
type DriftAlert struct {
	ID         string        `json:"id"`
	ModelID    string        `json:"model_id"`
	MetricName string        `json:"metric_name"`
	Severity   AlertSeverity `json:"severity"`
	Detail     string        `json:"detail"`
	DetectedAt time.Time     `json:"detected_at"`
}

// MetricSample is one observation appended to the metric history
type MetricSample struct {
	ModelID    string    `json:"model_id"`
	Name       string    `json:"name"`
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}

// MetricSummary aggregates samples of one metric over a time range
type MetricSummary struct {
	Avg         float64 `json:"avg"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	SampleCount int     `json:"sample_count"`
}

// HealthStatus is the rolled-up state of the scoring pipeline
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthWarning   HealthStatus = "warning"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck is a single named probe inside a health report
type HealthCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}

// HealthReport is produced by each monitoring cycle
type HealthReport struct {
	Status    HealthStatus  `json:"status"`
	Checks    []HealthCheck `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}
