package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/propio/lead-scoring/internal/core"
)

// MemoryStore is an in-memory implementation of the score, metric,
// artifact and alert stores. Suitable for tests and one-shot CLI runs;
// the daemon normally runs the SQLite or MySQL store.
type MemoryStore struct {
	mu        sync.RWMutex
	scores    []core.ScoreRecord
	samples   []core.MetricSample
	artifacts map[string]*core.ModelArtifact
	alerts    []core.DriftAlert
	logger    *zap.Logger
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		artifacts: make(map[string]*core.ModelArtifact),
		logger:    logger,
	}
}

// Append stores one score record
func (s *MemoryStore) Append(ctx context.Context, record *core.ScoreRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores = append(s.scores, *record)
	return nil
}

// Query returns score records within [from, to], newest first
func (s *MemoryStore) Query(ctx context.Context, leadID string, from, to time.Time) ([]core.ScoreRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.ScoreRecord
	for _, record := range s.scores {
		if leadID != "" && record.LeadID != leadID {
			continue
		}
		if record.ScoredAt.Before(from) || record.ScoredAt.After(to) {
			continue
		}
		out = append(out, record)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ScoredAt.After(out[j].ScoredAt)
	})
	return out, nil
}

// Latest returns the most recent record for a lead
func (s *MemoryStore) Latest(ctx context.Context, leadID string) (*core.ScoreRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *core.ScoreRecord
	for i := range s.scores {
		record := &s.scores[i]
		if record.LeadID != leadID {
			continue
		}
		if latest == nil || record.ScoredAt.After(latest.ScoredAt) {
			latest = record
		}
	}
	if latest == nil {
		return nil, core.ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (s *MemoryStore) appendSample(sample *core.MetricSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, *sample)
}

func (s *MemoryStore) querySamples(name string, from, to time.Time) []core.MetricSample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.MetricSample
	for _, sample := range s.samples {
		if name != "" && sample.Name != name {
			continue
		}
		if sample.RecordedAt.Before(from) || sample.RecordedAt.After(to) {
			continue
		}
		out = append(out, sample)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RecordedAt.Before(out[j].RecordedAt)
	})
	return out
}

// Metrics returns this store's MetricStore facet
func (s *MemoryStore) Metrics() core.MetricStore {
	return &memoryMetricStore{store: s}
}

// memoryMetricStore separates the MetricStore facet so its Append does
// not collide with ScoreStore's.
type memoryMetricStore struct {
	store *MemoryStore
}

func (m *memoryMetricStore) Append(ctx context.Context, sample *core.MetricSample) error {
	m.store.appendSample(sample)
	return nil
}

func (m *memoryMetricStore) Query(ctx context.Context, name string, from, to time.Time) ([]core.MetricSample, error) {
	return m.store.querySamples(name, from, to), nil
}

func (m *memoryMetricStore) Aggregate(ctx context.Context, from, to time.Time) (map[string]map[string]core.MetricSummary, error) {
	samples := m.store.querySamples("", from, to)
	return summarize(samples), nil
}

// Save inserts or updates a model artifact
func (s *MemoryStore) Save(ctx context.Context, artifact *core.ModelArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[artifact.ID] = artifact
	return nil
}

// List returns all stored artifacts
func (s *MemoryStore) List(ctx context.Context) ([]*core.ModelArtifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*core.ModelArtifact, 0, len(s.artifacts))
	for _, artifact := range s.artifacts {
		out = append(out, artifact)
	}
	return out, nil
}

// Publish appends a drift alert to the audit trail
func (s *MemoryStore) Publish(ctx context.Context, alert *core.DriftAlert) error {
	s.mu.Lock()
	s.alerts = append(s.alerts, *alert)
	s.mu.Unlock()

	s.logger.Debug("Drift alert recorded",
		zap.String("metric", alert.MetricName),
		zap.String("severity", string(alert.Severity)))
	return nil
}

// Alerts returns the stored alert trail, for tests and the CLI
func (s *MemoryStore) Alerts() []core.DriftAlert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.DriftAlert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// summarize groups samples by model id and metric name
func summarize(samples []core.MetricSample) map[string]map[string]core.MetricSummary {
	type agg struct {
		sum, min, max float64
		count         int
	}
	grouped := map[string]map[string]*agg{}
	for _, sample := range samples {
		byName, ok := grouped[sample.ModelID]
		if !ok {
			byName = map[string]*agg{}
			grouped[sample.ModelID] = byName
		}
		a, ok := byName[sample.Name]
		if !ok {
			a = &agg{min: sample.Value, max: sample.Value}
			byName[sample.Name] = a
		}
		a.sum += sample.Value
		a.count++
		if sample.Value < a.min {
			a.min = sample.Value
		}
		if sample.Value > a.max {
			a.max = sample.Value
		}
	}

	out := make(map[string]map[string]core.MetricSummary, len(grouped))
	for modelID, byName := range grouped {
		summaries := make(map[string]core.MetricSummary, len(byName))
		for name, a := range byName {
			summaries[name] = core.MetricSummary{
				Avg:         a.sum / float64(a.count),
				Min:         a.min,
				Max:         a.max,
				SampleCount: a.count,
			}
		}
		out[modelID] = summaries
	}
	return out
}
