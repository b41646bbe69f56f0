package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/zap"

	"github.com/propio/lead-scoring/internal/adapters/store"
	"github.com/propio/lead-scoring/internal/core"
)

func TestMemoryStore_Scores(t *testing.T) {
	Convey("Given a memory store with score history", t, func() {
		ctx := context.Background()
		s := store.NewMemoryStore(zap.NewNop())
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		records := []*core.ScoreRecord{
			{ID: "r1", LeadID: "a", Score: 0.2, ScoredAt: base.Add(-3 * time.Hour)},
			{ID: "r2", LeadID: "b", Score: 0.5, ScoredAt: base.Add(-2 * time.Hour)},
			{ID: "r3", LeadID: "a", Score: 0.8, ScoredAt: base.Add(-1 * time.Hour)},
		}
		for _, r := range records {
			So(s.Append(ctx, r), ShouldBeNil)
		}

		Convey("When querying the full window", func() {
			out, err := s.Query(ctx, "", base.Add(-24*time.Hour), base)

			Convey("Then records come back newest first", func() {
				So(err, ShouldBeNil)
				So(len(out), ShouldEqual, 3)
				So(out[0].ID, ShouldEqual, "r3")
				So(out[2].ID, ShouldEqual, "r1")
			})
		})

		Convey("When filtering by lead", func() {
			out, err := s.Query(ctx, "a", base.Add(-24*time.Hour), base)

			Convey("Then only that lead's records match", func() {
				So(err, ShouldBeNil)
				So(len(out), ShouldEqual, 2)
				for _, r := range out {
					So(r.LeadID, ShouldEqual, "a")
				}
			})
		})

		Convey("When narrowing the time window", func() {
			out, err := s.Query(ctx, "", base.Add(-150*time.Minute), base)

			Convey("Then older records fall outside", func() {
				So(err, ShouldBeNil)
				So(len(out), ShouldEqual, 2)
			})
		})

		Convey("When asking for the latest record of a lead", func() {
			latest, err := s.Latest(ctx, "a")

			Convey("Then the newest record is returned", func() {
				So(err, ShouldBeNil)
				So(latest.ID, ShouldEqual, "r3")
			})
		})

		Convey("When asking for a lead that was never scored", func() {
			_, err := s.Latest(ctx, "ghost")

			Convey("Then it returns not found", func() {
				So(errors.Is(err, core.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestMemoryStore_Metrics(t *testing.T) {
	Convey("Given a memory store with metric samples", t, func() {
		ctx := context.Background()
		s := store.NewMemoryStore(zap.NewNop())
		metrics := s.Metrics()
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		for i, v := range []float64{10, 20, 60} {
			So(metrics.Append(ctx, &core.MetricSample{
				ModelID: "m1", Name: "scoring.latency_ms", Value: v,
				RecordedAt: base.Add(time.Duration(i) * time.Minute),
			}), ShouldBeNil)
		}
		So(metrics.Append(ctx, &core.MetricSample{
			ModelID: "m1", Name: "model.accuracy", Value: 0.9,
			RecordedAt: base,
		}), ShouldBeNil)

		Convey("When querying one metric", func() {
			out, err := metrics.Query(ctx, "scoring.latency_ms", base, base.Add(time.Hour))

			Convey("Then samples come back oldest first", func() {
				So(err, ShouldBeNil)
				So(len(out), ShouldEqual, 3)
				So(out[0].Value, ShouldEqual, 10)
				So(out[2].Value, ShouldEqual, 60)
			})
		})

		Convey("When aggregating over the window", func() {
			summary, err := metrics.Aggregate(ctx, base, base.Add(time.Hour))

			Convey("Then summaries are grouped by model and metric", func() {
				So(err, ShouldBeNil)
				latency := summary["m1"]["scoring.latency_ms"]
				So(latency.SampleCount, ShouldEqual, 3)
				So(latency.Avg, ShouldEqual, 30)
				So(latency.Min, ShouldEqual, 10)
				So(latency.Max, ShouldEqual, 60)

				accuracy := summary["m1"]["model.accuracy"]
				So(accuracy.SampleCount, ShouldEqual, 1)
				So(accuracy.Avg, ShouldEqual, 0.9)
			})
		})
	})
}

func TestMemoryStore_ArtifactsAndAlerts(t *testing.T) {
	Convey("Given a memory store", t, func() {
		ctx := context.Background()
		s := store.NewMemoryStore(zap.NewNop())

		Convey("When saving an artifact twice", func() {
			artifact := &core.ModelArtifact{ID: "m1", Status: core.StatusTrained}
			So(s.Save(ctx, artifact), ShouldBeNil)
			artifact.Status = core.StatusActive
			So(s.Save(ctx, artifact), ShouldBeNil)

			Convey("Then the second save overwrites the first", func() {
				stored, err := s.List(ctx)
				So(err, ShouldBeNil)
				So(len(stored), ShouldEqual, 1)
				So(stored[0].Status, ShouldEqual, core.StatusActive)
			})
		})

		Convey("When publishing alerts", func() {
			So(s.Publish(ctx, &core.DriftAlert{ID: "a1", MetricName: "model.accuracy"}), ShouldBeNil)
			So(s.Publish(ctx, &core.DriftAlert{ID: "a2", MetricName: "pipeline.health"}), ShouldBeNil)

			Convey("Then the audit trail keeps them in order", func() {
				alerts := s.Alerts()
				So(len(alerts), ShouldEqual, 2)
				So(alerts[0].ID, ShouldEqual, "a1")
				So(alerts[1].ID, ShouldEqual, "a2")
			})
		})
	})
}
