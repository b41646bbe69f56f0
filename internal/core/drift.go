package core

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/propio/lead-scoring/internal/metrics"
)

// CycleState tracks where a monitoring cycle is in its lifecycle
type CycleState string

const (
	CycleIdle      CycleState = "idle"
	CycleRunning   CycleState = "running"
	CycleCompleted CycleState = "completed"
	CycleFailed    CycleState = "failed"
)

// Metric sample names written by the drift monitor
const (
	MetricModelAccuracy  = "model.accuracy"
	MetricModelPrecision = "model.precision"
	MetricModelRecall    = "model.recall"
	MetricModelF1        = "model.f1"
)

// Drift detection defaults
const (
	DefaultDriftThreshold = 0.10
	driftEpsilon          = 1e-9
	trailingWindowDays    = 7
	baselineWindowDays    = 30
	distributionBins      = 10
	dominantBucketShare   = 0.5
	maxBucketGap          = 0.2
	maxAlertHistory       = 100
	healthyErrorRate      = 0.1
	healthyLatencyMS      = 5000
)

// DriftMonitor recomputes trailing performance metrics on a schedule and
// raises alerts when they diverge from the historical baseline. It only
// reads score and metric history; it never mutates models.
type DriftMonitor struct {
	registry       *ModelRegistry
	scores         ScoreStore
	metricStore    MetricStore
	outcomes       OutcomeStore
	sink           AlertSink
	prom           *metrics.Set
	logger         *zap.Logger
	driftThreshold float64
	now            func() time.Time

	mu           sync.Mutex
	state        CycleState
	lastReport   *HealthReport
	recentAlerts []DriftAlert
}

// NewDriftMonitor creates a drift monitor. A zero threshold selects the
// default 10% relative change.
func NewDriftMonitor(
	registry *ModelRegistry,
	scores ScoreStore,
	metricStore MetricStore,
	outcomes OutcomeStore,
	sink AlertSink,
	prom *metrics.Set,
	logger *zap.Logger,
	driftThreshold float64,
) *DriftMonitor {
	if driftThreshold <= 0 {
		driftThreshold = DefaultDriftThreshold
	}
	return &DriftMonitor{
		registry:       registry,
		scores:         scores,
		metricStore:    metricStore,
		outcomes:       outcomes,
		sink:           sink,
		prom:           prom,
		logger:         logger,
		driftThreshold: driftThreshold,
		state:          CycleIdle,
		now:            time.Now,
	}
}

// State returns the current cycle state
func (m *DriftMonitor) State() CycleState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Health returns the report from the most recent cycle. Before the first
// cycle completes, the health check runs directly.
func (m *DriftMonitor) Health(ctx context.Context) *HealthReport {
	m.mu.Lock()
	report := m.lastReport
	m.mu.Unlock()

	if report != nil {
		return report
	}
	return m.healthCheck(ctx)
}

// RecentAlerts returns the alerts raised by recent cycles, newest first
func (m *DriftMonitor) RecentAlerts() []DriftAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DriftAlert, len(m.recentAlerts))
	copy(out, m.recentAlerts)
	return out
}

// TryRunCycle runs a cycle unless one is already in flight, in which case
// the tick is skipped rather than queued.
func (m *DriftMonitor) TryRunCycle(ctx context.Context) error {
	m.mu.Lock()
	if m.state == CycleRunning {
		m.mu.Unlock()
		m.logger.Warn("Skipping monitoring tick, previous cycle still running")
		return nil
	}
	m.state = CycleRunning
	m.mu.Unlock()

	return m.runCycle(ctx)
}

// runCycle executes the four monitoring sub-steps. Each step is
// error-isolated: a failure is logged, marks the cycle failed, and the
// remaining steps still run so their rows are not lost.
func (m *DriftMonitor) runCycle(ctx context.Context) error {
	started := m.now()
	var failures []error

	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"performance tracking", m.trackPerformance},
		{"drift detection", m.detectDrift},
		{"distribution check", m.checkDistribution},
		{"health check", m.runHealthCheck},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			failures = append(failures, fmt.Errorf("cycle cancelled before %s: %w", step.name, err))
			break
		}
		if err := step.run(ctx); err != nil {
			m.logger.Error("Monitoring step failed",
				zap.String("step", step.name),
				zap.Error(err))
			failures = append(failures, fmt.Errorf("%s: %w", step.name, err))
		}
	}

	m.mu.Lock()
	if len(failures) > 0 {
		m.state = CycleFailed
	} else {
		m.state = CycleCompleted
	}
	state := m.state
	m.mu.Unlock()

	if m.prom != nil {
		m.prom.MonitorCycles.WithLabelValues(string(state)).Inc()
	}
	m.logger.Info("Monitoring cycle finished",
		zap.String("state", string(state)),
		zap.Duration("elapsed", m.now().Sub(started)),
		zap.Int("failed_steps", len(failures)))

	if len(failures) > 0 {
		return failures[0]
	}
	return nil
}

// trackPerformance joins recent scores with known conversion outcomes and
// appends confusion-matrix metrics per model version.
func (m *DriftMonitor) trackPerformance(ctx context.Context) error {
	to := m.now()
	from := to.AddDate(0, 0, -1)

	records, err := m.scores.Query(ctx, "", from, to)
	if err != nil {
		return &PersistenceError{Op: "performance score query", Err: err}
	}
	if len(records) == 0 {
		return nil
	}

	outcomes, err := m.outcomes.GetOutcomes(ctx, from)
	if err != nil {
		return &PersistenceError{Op: "outcome query", Err: err}
	}

	byModel := map[string]*ConfusionMatrix{}
	for _, record := range records {
		converted, known := outcomes[record.LeadID]
		if !known {
			continue
		}
		cm, ok := byModel[record.ModelVersion]
		if !ok {
			cm = &ConfusionMatrix{}
			byModel[record.ModelVersion] = cm
		}
		cm.Observe(record.Score, converted)
	}

	for version, cm := range byModel {
		if cm.Total() == 0 {
			continue
		}
		samples := map[string]float64{
			MetricModelAccuracy:  cm.Accuracy(),
			MetricModelPrecision: cm.Precision(),
			MetricModelRecall:    cm.Recall(),
			MetricModelF1:        cm.F1(),
		}
		for name, value := range samples {
			sample := &MetricSample{
				ModelID:    version,
				Name:       name,
				Value:      value,
				RecordedAt: to,
			}
			if err := m.metricStore.Append(ctx, sample); err != nil {
				return &PersistenceError{Op: "metric append", Err: err}
			}
		}
		m.logger.Debug("Tracked model performance",
			zap.String("model_version", version),
			zap.Int("evaluated", cm.Total()),
			zap.Float64("accuracy", cm.Accuracy()))
	}
	return nil
}

// detectDrift compares the trailing-week metric average against the prior
// day 8-30 baseline and alerts on relative change strictly above the
// threshold.
func (m *DriftMonitor) detectDrift(ctx context.Context) error {
	modelID := ""
	if artifact, err := m.registry.GetActive(); err == nil {
		modelID = artifact.ID
	}

	now := m.now()
	for _, metricName := range []string{MetricModelAccuracy, MetricModelPrecision} {
		current, currentN, err := m.windowMean(ctx, metricName, now.AddDate(0, 0, -trailingWindowDays), now)
		if err != nil {
			return err
		}
		baseline, baselineN, err := m.windowMean(ctx, metricName,
			now.AddDate(0, 0, -baselineWindowDays), now.AddDate(0, 0, -trailingWindowDays-1))
		if err != nil {
			return err
		}
		if currentN == 0 || baselineN == 0 || baseline == 0 {
			continue
		}

		// Strictly-greater comparison with a small tolerance so a
		// change of exactly the threshold never alerts despite
		// float64 rounding.
		change := math.Abs(current-baseline) / baseline
		if change <= m.driftThreshold+driftEpsilon {
			continue
		}

		severity := SeverityWarning
		if change > 2*m.driftThreshold {
			severity = SeverityCritical
		}
		m.raiseAlert(ctx, &DriftAlert{
			ID:         uuid.NewString(),
			ModelID:    modelID,
			MetricName: metricName,
			Severity:   severity,
			Detail: fmt.Sprintf("%s drifted %.1f%% from baseline (current %.3f, baseline %.3f)",
				metricName, change*100, current, baseline),
			DetectedAt: now,
		})
	}
	return nil
}

// windowMean averages a metric over [from, to]
func (m *DriftMonitor) windowMean(ctx context.Context, name string, from, to time.Time) (float64, int, error) {
	samples, err := m.metricStore.Query(ctx, name, from, to)
	if err != nil {
		return 0, 0, &PersistenceError{Op: "metric query", Err: err}
	}
	if len(samples) == 0 {
		return 0, 0, nil
	}
	values := make([]float64, len(samples))
	for i, sample := range samples {
		values[i] = sample.Value
	}
	return stat.Mean(values, nil), len(values), nil
}

// checkDistribution buckets recent scores into 0.1-wide bins and alerts
// when one bucket dominates or populated buckets are separated by a wide
// gap.
func (m *DriftMonitor) checkDistribution(ctx context.Context) error {
	to := m.now()
	from := to.AddDate(0, 0, -1)

	records, err := m.scores.Query(ctx, "", from, to)
	if err != nil {
		return &PersistenceError{Op: "distribution score query", Err: err}
	}
	if len(records) == 0 {
		return nil
	}

	modelID := records[0].ModelVersion
	bins := make([]int, distributionBins)
	for _, record := range records {
		idx := int(record.Score * distributionBins)
		if idx >= distributionBins {
			idx = distributionBins - 1
		}
		bins[idx]++
	}

	total := len(records)
	for i, count := range bins {
		if float64(count)/float64(total) > dominantBucketShare {
			m.raiseAlert(ctx, &DriftAlert{
				ID:         uuid.NewString(),
				ModelID:    modelID,
				MetricName: "score.distribution",
				Severity:   SeverityWarning,
				Detail: fmt.Sprintf("bucket [%.1f,%.1f) holds %d of %d recent scores",
					float64(i)/distributionBins, float64(i+1)/distributionBins, count, total),
				DetectedAt: to,
			})
		}
	}

	prev := -1
	for i, count := range bins {
		if count == 0 {
			continue
		}
		if prev >= 0 {
			gap := float64(i-prev-1) / distributionBins
			if gap > maxBucketGap {
				m.raiseAlert(ctx, &DriftAlert{
					ID:         uuid.NewString(),
					ModelID:    modelID,
					MetricName: "score.distribution",
					Severity:   SeverityInfo,
					Detail: fmt.Sprintf("gap of %.1f between populated score buckets %d and %d",
						gap, prev, i),
					DetectedAt: to,
				})
			}
		}
		prev = i
	}
	return nil
}

// runHealthCheck executes the health probes and alerts on a degraded
// status.
func (m *DriftMonitor) runHealthCheck(ctx context.Context) error {
	report := m.healthCheck(ctx)

	m.mu.Lock()
	m.lastReport = report
	m.mu.Unlock()

	if report.Status == HealthHealthy {
		return nil
	}

	modelID := ""
	if artifact, err := m.registry.GetActive(); err == nil {
		modelID = artifact.ID
	}
	severity := SeverityWarning
	if report.Status == HealthUnhealthy {
		severity = SeverityCritical
	}

	var failing []string
	for _, check := range report.Checks {
		if !check.OK {
			failing = append(failing, check.Name)
		}
	}
	m.raiseAlert(ctx, &DriftAlert{
		ID:         uuid.NewString(),
		ModelID:    modelID,
		MetricName: "pipeline.health",
		Severity:   severity,
		Detail:     fmt.Sprintf("pipeline %s, failing checks: %v", report.Status, failing),
		DetectedAt: report.CheckedAt,
	})
	return nil
}

// healthCheck probes model availability, scoring freshness, error rate
// and latency. One or two failing checks is a warning; three or more is
// unhealthy.
func (m *DriftMonitor) healthCheck(ctx context.Context) *HealthReport {
	now := m.now()
	hourAgo := now.Add(-time.Hour)
	var checks []HealthCheck

	_, activeErr := m.registry.GetActive()
	checks = append(checks, HealthCheck{
		Name:   "active_model",
		OK:     activeErr == nil,
		Detail: checkDetail(activeErr == nil, "an active model is promoted", "no active model"),
	})

	recent, err := m.scores.Query(ctx, "", hourAgo, now)
	fresh := err == nil && len(recent) > 0
	checks = append(checks, HealthCheck{
		Name:   "recent_predictions",
		OK:     fresh,
		Detail: fmt.Sprintf("%d predictions in the last hour", len(recent)),
	})

	errorRate := m.rollingErrorRate(ctx, hourAgo, now, len(recent))
	checks = append(checks, HealthCheck{
		Name:   "error_rate",
		OK:     errorRate < healthyErrorRate,
		Detail: fmt.Sprintf("rolling error rate %.3f", errorRate),
	})

	latency := m.rollingLatency(ctx, hourAgo, now)
	checks = append(checks, HealthCheck{
		Name:   "response_time",
		OK:     latency < healthyLatencyMS,
		Detail: fmt.Sprintf("rolling average response time %.0fms", latency),
	})

	issues := 0
	for _, check := range checks {
		if !check.OK {
			issues++
		}
	}

	status := HealthHealthy
	switch {
	case issues >= 3:
		status = HealthUnhealthy
	case issues >= 1:
		status = HealthWarning
	}

	return &HealthReport{Status: status, Checks: checks, CheckedAt: now}
}

func (m *DriftMonitor) rollingErrorRate(ctx context.Context, from, to time.Time, successes int) float64 {
	samples, err := m.metricStore.Query(ctx, MetricScoreError, from, to)
	if err != nil {
		m.logger.Warn("Failed to query error samples", zap.Error(err))
		return 0
	}
	failures := len(samples)
	if failures+successes == 0 {
		return 0
	}
	return float64(failures) / float64(failures+successes)
}

func (m *DriftMonitor) rollingLatency(ctx context.Context, from, to time.Time) float64 {
	samples, err := m.metricStore.Query(ctx, MetricScoreLatencyMS, from, to)
	if err != nil || len(samples) == 0 {
		return 0
	}
	values := make([]float64, len(samples))
	for i, sample := range samples {
		values[i] = sample.Value
	}
	return stat.Mean(values, nil)
}

// raiseAlert publishes an alert and appends it to the in-memory history.
// Sink failures are logged and swallowed so they never fail the cycle.
func (m *DriftMonitor) raiseAlert(ctx context.Context, alert *DriftAlert) {
	m.logger.Warn("Drift alert raised",
		zap.String("metric", alert.MetricName),
		zap.String("severity", string(alert.Severity)),
		zap.String("detail", alert.Detail))

	if m.prom != nil {
		m.prom.DriftAlerts.WithLabelValues(string(alert.Severity)).Inc()
	}

	if err := m.sink.Publish(ctx, alert); err != nil {
		m.logger.Error("Alert sink publish failed", zap.Error(err), zap.String("alert_id", alert.ID))
	}

	m.mu.Lock()
	m.recentAlerts = append([]DriftAlert{*alert}, m.recentAlerts...)
	if len(m.recentAlerts) > maxAlertHistory {
		m.recentAlerts = m.recentAlerts[:maxAlertHistory]
	}
	m.mu.Unlock()
}

func checkDetail(ok bool, okDetail, failDetail string) string {
	if ok {
		return okDetail
	}
	return failDetail
}
