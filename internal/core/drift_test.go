package core_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/zap"

	"github.com/propio/lead-scoring/internal/adapters/leads"
	"github.com/propio/lead-scoring/internal/adapters/store"
	"github.com/propio/lead-scoring/internal/core"
)

type driftFixture struct {
	leads    *leads.MemoryLeadStore
	store    *store.MemoryStore
	registry *core.ModelRegistry
	monitor  *core.DriftMonitor
}

func newDriftFixture(scores core.ScoreStore) *driftFixture {
	logger := zap.NewNop()
	leadStore := leads.NewMemoryLeadStore()
	memStore := store.NewMemoryStore(logger)
	registry := core.NewModelRegistry(nil, logger)
	if scores == nil {
		scores = memStore
	}
	monitor := core.NewDriftMonitor(registry, scores, memStore.Metrics(), leadStore, memStore, nil, logger, 0)
	return &driftFixture{leads: leadStore, store: memStore, registry: registry, monitor: monitor}
}

func alertsFor(alerts []core.DriftAlert, metricName string) []core.DriftAlert {
	var out []core.DriftAlert
	for _, a := range alerts {
		if a.MetricName == metricName {
			out = append(out, a)
		}
	}
	return out
}

func TestDriftMonitor_PerformanceTracking(t *testing.T) {
	Convey("Given recent scores with known conversion outcomes", t, func() {
		ctx := context.Background()
		f := newDriftFixture(nil)
		So(f.registry.Promote(ctx, fixedArtifact("m1", 0.5)), ShouldBeNil)

		now := time.Now()
		scores := []float64{0.15, 0.35, 0.55, 0.75, 0.95}
		for i, s := range scores {
			leadID := fmt.Sprintf("lead-%d", i)
			So(f.store.Append(ctx, &core.ScoreRecord{
				ID: fmt.Sprintf("r%d", i), LeadID: leadID, ModelVersion: "baseline-m1",
				Score: s, ScoredAt: now.Add(-time.Duration(i+1) * time.Minute),
			}), ShouldBeNil)
			f.leads.SetOutcome(leadID, s >= 0.5)
		}

		Convey("When a monitoring cycle runs", func() {
			So(f.monitor.TryRunCycle(ctx), ShouldBeNil)

			Convey("Then the cycle completes", func() {
				So(f.monitor.State(), ShouldEqual, core.CycleCompleted)
			})

			Convey("Then confusion metrics are appended per model version", func() {
				samples, err := f.store.Metrics().Query(ctx, core.MetricModelAccuracy, now.Add(-time.Hour), now.Add(time.Hour))
				So(err, ShouldBeNil)
				So(len(samples), ShouldEqual, 1)
				So(samples[0].ModelID, ShouldEqual, "baseline-m1")
				So(samples[0].Value, ShouldEqual, 1)
			})

			Convey("Then a model in agreement with outcomes raises no drift alerts", func() {
				So(alertsFor(f.monitor.RecentAlerts(), core.MetricModelAccuracy), ShouldBeEmpty)
			})
		})
	})
}

func TestDriftMonitor_DriftDetection(t *testing.T) {
	seedAccuracy := func(ctx context.Context, f *driftFixture, trailing float64) {
		now := time.Now()
		for day := 10; day <= 14; day++ {
			So(f.store.Metrics().Append(ctx, &core.MetricSample{
				ModelID: "m1", Name: core.MetricModelAccuracy, Value: 0.80,
				RecordedAt: now.AddDate(0, 0, -day),
			}), ShouldBeNil)
		}
		for day := 1; day <= 2; day++ {
			So(f.store.Metrics().Append(ctx, &core.MetricSample{
				ModelID: "m1", Name: core.MetricModelAccuracy, Value: trailing,
				RecordedAt: now.AddDate(0, 0, -day),
			}), ShouldBeNil)
		}
	}

	Convey("Given a trailing accuracy exactly 10% below the baseline", t, func() {
		ctx := context.Background()
		f := newDriftFixture(nil)
		seedAccuracy(ctx, f, 0.72)

		Convey("When a monitoring cycle runs", func() {
			So(f.monitor.TryRunCycle(ctx), ShouldBeNil)

			Convey("Then the boundary change does not alert", func() {
				So(alertsFor(f.monitor.RecentAlerts(), core.MetricModelAccuracy), ShouldBeEmpty)
			})
		})
	})

	Convey("Given a trailing accuracy just past the threshold", t, func() {
		ctx := context.Background()
		f := newDriftFixture(nil)
		seedAccuracy(ctx, f, 0.719)

		Convey("When a monitoring cycle runs", func() {
			So(f.monitor.TryRunCycle(ctx), ShouldBeNil)

			Convey("Then a warning drift alert is raised", func() {
				alerts := alertsFor(f.monitor.RecentAlerts(), core.MetricModelAccuracy)
				So(len(alerts), ShouldEqual, 1)
				So(alerts[0].Severity, ShouldEqual, core.SeverityWarning)
			})

			Convey("Then the alert reaches the sink", func() {
				So(len(alertsFor(f.store.Alerts(), core.MetricModelAccuracy)), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a trailing accuracy collapsed far below the baseline", t, func() {
		ctx := context.Background()
		f := newDriftFixture(nil)
		seedAccuracy(ctx, f, 0.55)

		Convey("When a monitoring cycle runs", func() {
			So(f.monitor.TryRunCycle(ctx), ShouldBeNil)

			Convey("Then the alert escalates to critical", func() {
				alerts := alertsFor(f.monitor.RecentAlerts(), core.MetricModelAccuracy)
				So(len(alerts), ShouldEqual, 1)
				So(alerts[0].Severity, ShouldEqual, core.SeverityCritical)
			})
		})
	})
}

func TestDriftMonitor_Distribution(t *testing.T) {
	Convey("Given recent scores piled into a single bucket", t, func() {
		ctx := context.Background()
		f := newDriftFixture(nil)
		now := time.Now()
		for i := 0; i < 6; i++ {
			So(f.store.Append(ctx, &core.ScoreRecord{
				ID: fmt.Sprintf("r%d", i), LeadID: fmt.Sprintf("lead-%d", i),
				ModelVersion: "m1", Score: 0.92, ScoredAt: now.Add(-time.Minute),
			}), ShouldBeNil)
		}

		Convey("When a monitoring cycle runs", func() {
			_ = f.monitor.TryRunCycle(ctx)

			Convey("Then a dominant-bucket warning is raised", func() {
				alerts := alertsFor(f.monitor.RecentAlerts(), "score.distribution")
				So(len(alerts), ShouldEqual, 1)
				So(alerts[0].Severity, ShouldEqual, core.SeverityWarning)
				So(alerts[0].Detail, ShouldContainSubstring, "6 of 6")
			})
		})
	})

	Convey("Given recent scores split across distant buckets", t, func() {
		ctx := context.Background()
		f := newDriftFixture(nil)
		now := time.Now()
		for i, s := range []float64{0.05, 0.95} {
			So(f.store.Append(ctx, &core.ScoreRecord{
				ID: fmt.Sprintf("r%d", i), LeadID: fmt.Sprintf("lead-%d", i),
				ModelVersion: "m1", Score: s, ScoredAt: now.Add(-time.Minute),
			}), ShouldBeNil)
		}

		Convey("When a monitoring cycle runs", func() {
			_ = f.monitor.TryRunCycle(ctx)

			Convey("Then a bucket-gap alert is raised at info severity", func() {
				alerts := alertsFor(f.monitor.RecentAlerts(), "score.distribution")
				So(len(alerts), ShouldEqual, 1)
				So(alerts[0].Severity, ShouldEqual, core.SeverityInfo)
			})
		})
	})
}

func TestDriftMonitor_Health(t *testing.T) {
	Convey("Given a healthy pipeline", t, func() {
		ctx := context.Background()
		f := newDriftFixture(nil)
		So(f.registry.Promote(ctx, fixedArtifact("m1", 0.5)), ShouldBeNil)
		So(f.store.Append(ctx, &core.ScoreRecord{
			ID: "r1", LeadID: "lead-1", ModelVersion: "m1",
			Score: 0.42, ScoredAt: time.Now().Add(-time.Minute),
		}), ShouldBeNil)

		Convey("When probing health before any cycle", func() {
			report := f.monitor.Health(ctx)

			Convey("Then the pipeline is healthy", func() {
				So(report.Status, ShouldEqual, core.HealthHealthy)
				So(len(report.Checks), ShouldEqual, 4)
			})
		})
	})

	Convey("Given a pipeline with no model, no traffic and recent errors", t, func() {
		ctx := context.Background()
		f := newDriftFixture(nil)
		for i := 0; i < 5; i++ {
			So(f.store.Metrics().Append(ctx, &core.MetricSample{
				Name: core.MetricScoreError, Value: 1, RecordedAt: time.Now().Add(-time.Minute),
			}), ShouldBeNil)
		}

		Convey("When probing health", func() {
			report := f.monitor.Health(ctx)

			Convey("Then three failing checks roll up to unhealthy", func() {
				So(report.Status, ShouldEqual, core.HealthUnhealthy)
			})
		})
	})

	Convey("Given a pipeline with a single failing check", t, func() {
		ctx := context.Background()
		f := newDriftFixture(nil)
		So(f.registry.Promote(ctx, fixedArtifact("m1", 0.5)), ShouldBeNil)

		Convey("When probing health", func() {
			report := f.monitor.Health(ctx)

			Convey("Then the status degrades to a warning", func() {
				So(report.Status, ShouldEqual, core.HealthWarning)
			})
		})
	})
}

// blockingScoreStore parks every Query until the gate is closed
type blockingScoreStore struct {
	gate chan struct{}
}

func (s *blockingScoreStore) Append(ctx context.Context, record *core.ScoreRecord) error {
	return nil
}

func (s *blockingScoreStore) Query(ctx context.Context, leadID string, from, to time.Time) ([]core.ScoreRecord, error) {
	<-s.gate
	return nil, nil
}

func (s *blockingScoreStore) Latest(ctx context.Context, leadID string) (*core.ScoreRecord, error) {
	return nil, core.ErrNotFound
}

// failingScoreStore errors on every read
type failingScoreStore struct{}

func (s *failingScoreStore) Append(ctx context.Context, record *core.ScoreRecord) error {
	return nil
}

func (s *failingScoreStore) Query(ctx context.Context, leadID string, from, to time.Time) ([]core.ScoreRecord, error) {
	return nil, errors.New("score backend unavailable")
}

func (s *failingScoreStore) Latest(ctx context.Context, leadID string) (*core.ScoreRecord, error) {
	return nil, errors.New("score backend unavailable")
}

func TestDriftMonitor_OverlapAndFailure(t *testing.T) {
	Convey("Given a cycle stuck on a slow score backend", t, func() {
		ctx := context.Background()
		blocking := &blockingScoreStore{gate: make(chan struct{})}
		f := newDriftFixture(blocking)

		done := make(chan error, 1)
		go func() { done <- f.monitor.TryRunCycle(ctx) }()
		time.Sleep(50 * time.Millisecond)

		Convey("When another tick fires", func() {
			err := f.monitor.TryRunCycle(ctx)

			Convey("Then the tick is skipped, not queued", func() {
				So(err, ShouldBeNil)
				So(f.monitor.State(), ShouldEqual, core.CycleRunning)
			})
		})

		Reset(func() {
			close(blocking.gate)
			<-done
		})
	})

	Convey("Given a failing score backend", t, func() {
		ctx := context.Background()
		f := newDriftFixture(&failingScoreStore{})

		Convey("When a monitoring cycle runs", func() {
			err := f.monitor.TryRunCycle(ctx)

			Convey("Then the cycle reports failure", func() {
				So(err, ShouldNotBeNil)
				So(f.monitor.State(), ShouldEqual, core.CycleFailed)
			})

			Convey("Then later steps still produced a health report", func() {
				So(f.monitor.Health(ctx), ShouldNotBeNil)
				So(f.monitor.Health(ctx).Status, ShouldNotEqual, core.HealthHealthy)
			})
		})
	})
}
