package core

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/propio/lead-scoring/internal/metrics"
)

// DefaultMaxBatch bounds how many leads a single batch request may score
const DefaultMaxBatch = 50

// Metric sample names written by the scoring service
const (
	MetricScoreLatencyMS = "scoring.latency_ms"
	MetricScoreError     = "scoring.error"
)

// ScoringService computes lead scores against the active model artifact.
// It is safe for unbounded concurrent callers: the active artifact is read
// once per call and never mutated.
type ScoringService struct {
	leads     LeadStore
	extractor *FeatureExtractor
	registry  *ModelRegistry
	scores    ScoreStore
	metrics   MetricStore
	prom      *metrics.Set
	logger    *zap.Logger
	maxBatch  int
	now       func() time.Time
}

// NewScoringService creates a scoring service. A non-positive maxBatch
// falls back to DefaultMaxBatch.
func NewScoringService(
	leads LeadStore,
	extractor *FeatureExtractor,
	registry *ModelRegistry,
	scores ScoreStore,
	metricStore MetricStore,
	prom *metrics.Set,
	logger *zap.Logger,
	maxBatch int,
) *ScoringService {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	return &ScoringService{
		leads:     leads,
		extractor: extractor,
		registry:  registry,
		scores:    scores,
		metrics:   metricStore,
		prom:      prom,
		logger:    logger,
		maxBatch:  maxBatch,
		now:       time.Now,
	}
}

// Score fetches a lead by id and scores it against the active model
func (s *ScoringService) Score(ctx context.Context, leadID string) (*ScoreResult, error) {
	lead, err := s.leads.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	interactions, err := s.leads.GetInteractions(ctx, leadID)
	if err != nil {
		return nil, err
	}
	prefs, err := s.leads.GetPropertyPrefs(ctx, leadID)
	if err != nil {
		return nil, err
	}
	return s.ScoreSnapshot(ctx, lead, interactions, prefs, s.now())
}

// ScoreSnapshot scores inline lead data as of an explicit reference time.
// Given the same inputs and the same active artifact the score is
// bit-identical across calls; only the persisted history grows.
func (s *ScoringService) ScoreSnapshot(ctx context.Context, lead *LeadSnapshot, interactions []Interaction, prefs []PropertyPreference, now time.Time) (*ScoreResult, error) {
	started := s.now()

	if lead == nil || lead.ID == "" {
		return nil, NewValidationError("lead.id", "missing")
	}

	artifact, err := s.registry.GetActive()
	if err != nil {
		s.prom.ObserveScore(0, err)
		s.recordError(ctx, "")
		return nil, err
	}

	vector := s.extractor.Extract(lead, interactions, prefs, now)
	score, err := artifact.Model.Predict(vector.Ordered())
	if err != nil {
		s.prom.ObserveScore(0, err)
		s.recordError(ctx, artifact.ID)
		return nil, fmt.Errorf("model prediction failed: %w", err)
	}

	confidence := Confidence(score)
	scoredAt := s.now()

	record := &ScoreRecord{
		ID:           uuid.NewString(),
		LeadID:       lead.ID,
		ModelVersion: artifact.Version,
		Score:        score,
		Confidence:   confidence,
		FeaturesUsed: vector.Normalized,
		ScoredAt:     scoredAt,
	}
	if err := s.scores.Append(ctx, record); err != nil {
		s.prom.ObserveScore(0, err)
		s.recordError(ctx, artifact.ID)
		return nil, &PersistenceError{Op: "score append", Err: err}
	}

	elapsed := s.now().Sub(started)
	s.prom.ObserveScore(elapsed, nil)
	s.recordLatency(ctx, artifact.ID, elapsed)

	s.logger.Debug("Scored lead",
		zap.String("lead_id", lead.ID),
		zap.String("model_version", artifact.Version),
		zap.Float64("score", score),
		zap.Float64("confidence", confidence))

	return &ScoreResult{
		LeadID:       lead.ID,
		Score:        score,
		Confidence:   confidence,
		ModelVersion: artifact.Version,
		FeaturesUsed: vector.Normalized,
		ScoredAt:     scoredAt,
	}, nil
}

// ScoreBatch scores up to maxBatch leads. Oversized batches are rejected
// outright before any lead is scored.
func (s *ScoringService) ScoreBatch(ctx context.Context, leadIDs []string) ([]*ScoreResult, error) {
	if len(leadIDs) == 0 {
		return nil, NewValidationError("lead_ids", "empty batch")
	}
	if len(leadIDs) > s.maxBatch {
		if s.prom != nil {
			s.prom.BatchRejections.Inc()
		}
		return nil, NewValidationError("lead_ids",
			fmt.Sprintf("batch size %d exceeds maximum of %d", len(leadIDs), s.maxBatch))
	}

	results := make([]*ScoreResult, 0, len(leadIDs))
	for _, id := range leadIDs {
		result, err := s.Score(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("batch scoring failed at lead %s: %w", id, err)
		}
		results = append(results, result)
	}
	return results, nil
}

// Metrics summarizes metric history over [from, to], grouped by model id
func (s *ScoringService) Metrics(ctx context.Context, from, to time.Time) (map[string]map[string]MetricSummary, error) {
	summary, err := s.metrics.Aggregate(ctx, from, to)
	if err != nil {
		return nil, &PersistenceError{Op: "metric aggregate", Err: err}
	}
	return summary, nil
}

// recordLatency appends one latency sample; samples feed the drift
// monitor's health check.
func (s *ScoringService) recordLatency(ctx context.Context, modelID string, elapsed time.Duration) {
	sample := &MetricSample{
		ModelID:    modelID,
		Name:       MetricScoreLatencyMS,
		Value:      float64(elapsed.Milliseconds()),
		RecordedAt: s.now(),
	}
	if err := s.metrics.Append(ctx, sample); err != nil {
		s.logger.Warn("Failed to record latency sample", zap.Error(err))
	}
}

func (s *ScoringService) recordError(ctx context.Context, modelID string) {
	sample := &MetricSample{
		ModelID:    modelID,
		Name:       MetricScoreError,
		Value:      1,
		RecordedAt: s.now(),
	}
	if err := s.metrics.Append(ctx, sample); err != nil {
		s.logger.Warn("Failed to record error sample", zap.Error(err))
	}
}

// Confidence measures how far a score sits from the 0.5 decision
// boundary. It is not a calibrated probability.
func Confidence(score float64) float64 {
	return math.Min(math.Abs(score-0.5)*2, 1.0)
}
