// Package metrics exposes the Prometheus instrumentation for the scoring
// pipeline. The set is explicitly constructed and injected rather than
// registered through package globals so tests can run isolated registries.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lead_scoring"

// Set holds every metric the pipeline emits
type Set struct {
	ScoresTotal      prometheus.Counter
	ScoreErrors      prometheus.Counter
	ScoreLatency     prometheus.Histogram
	BatchRejections  prometheus.Counter
	TrainingRuns     *prometheus.CounterVec
	TrainingDuration prometheus.Histogram
	DriftAlerts      *prometheus.CounterVec
	MonitorCycles    *prometheus.CounterVec
	ActiveModel      prometheus.Gauge
}

// NewSet creates and registers the metric set on the given registerer
func NewSet(reg prometheus.Registerer) *Set {
	factory := promauto.With(reg)

	return &Set{
		ScoresTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scores_total",
			Help:      "Total number of lead scores computed.",
		}),
		ScoreErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_errors_total",
			Help:      "Total number of failed scoring requests.",
		}),
		ScoreLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "score_duration_seconds",
			Help:      "Latency of single-lead scoring requests.",
			Buckets:   prometheus.DefBuckets,
		}),
		BatchRejections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_rejections_total",
			Help:      "Batch scoring requests rejected for exceeding the size cap.",
		}),
		TrainingRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_runs_total",
			Help:      "Training runs by terminal outcome.",
		}, []string{"outcome"}),
		TrainingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "training_duration_seconds",
			Help:      "Wall time of completed training runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
		}),
		DriftAlerts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drift_alerts_total",
			Help:      "Drift alerts raised, by severity.",
		}, []string{"severity"}),
		MonitorCycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_cycles_total",
			Help:      "Monitoring cycles by terminal state.",
		}, []string{"state"}),
		ActiveModel: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_model",
			Help:      "1 when an active model is available for scoring.",
		}),
	}
}

// ObserveScore records the outcome of one scoring request
func (s *Set) ObserveScore(elapsed time.Duration, err error) {
	if s == nil {
		return
	}
	if err != nil {
		s.ScoreErrors.Inc()
		return
	}
	s.ScoresTotal.Inc()
	s.ScoreLatency.Observe(elapsed.Seconds())
}
