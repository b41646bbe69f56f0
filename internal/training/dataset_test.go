package training_test

import (
	"fmt"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/propio/lead-scoring/internal/core"
	"github.com/propio/lead-scoring/internal/domains"
	"github.com/propio/lead-scoring/internal/training"
)

var datasetNow = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func newExtractor() *core.FeatureExtractor {
	return core.NewFeatureExtractor(domains.NewClassifier(nil, nil))
}

// histories returns n leads created one day apart, oldest first
func histories(n int) []*training.LeadHistory {
	out := make([]*training.LeadHistory, n)
	for i := 0; i < n; i++ {
		out[i] = &training.LeadHistory{
			Lead: &core.LeadSnapshot{
				ID:        fmt.Sprintf("lead-%d", i),
				Email:     fmt.Sprintf("lead-%d@example.com", i),
				CreatedAt: datasetNow.AddDate(0, 0, -n+i),
			},
		}
	}
	return out
}

func TestPrepareDataset(t *testing.T) {
	Convey("Given ten leads created on consecutive days", t, func() {
		leads := histories(10)

		// Label the two newest leads positive so the split is observable.
		newest := map[string]bool{"lead-8": true, "lead-9": true}
		labelFn := func(h *training.LeadHistory) bool {
			return newest[h.Lead.ID]
		}

		Convey("When preparing the dataset", func() {
			dataset, err := training.PrepareDataset(newExtractor(), leads, labelFn, datasetNow)

			Convey("Then the newest fifth is held out for testing", func() {
				So(err, ShouldBeNil)
				So(len(dataset.TrainX), ShouldEqual, 8)
				So(len(dataset.TestX), ShouldEqual, 2)
			})

			Convey("Then the test set holds exactly the newest leads", func() {
				for _, y := range dataset.TestY {
					So(y, ShouldEqual, 1)
				}
				for _, y := range dataset.TrainY {
					So(y, ShouldEqual, 0)
				}
			})

			Convey("Then every example has the fixed feature width", func() {
				for _, row := range dataset.TrainX {
					So(len(row), ShouldEqual, core.FeatureCount())
				}
			})
		})

		Convey("When the input order is shuffled", func() {
			shuffled := []*training.LeadHistory{leads[7], leads[2], leads[9], leads[0], leads[5],
				leads[1], leads[8], leads[4], leads[6], leads[3]}
			dataset, err := training.PrepareDataset(newExtractor(), shuffled, labelFn, datasetNow)

			Convey("Then the chronological split is unchanged", func() {
				So(err, ShouldBeNil)
				for _, y := range dataset.TestY {
					So(y, ShouldEqual, 1)
				}
			})
		})
	})

	Convey("Given no training data", t, func() {
		Convey("When preparing the dataset", func() {
			_, err := training.PrepareDataset(newExtractor(), nil, func(*training.LeadHistory) bool { return false }, datasetNow)

			Convey("Then it is rejected", func() {
				So(core.IsValidationError(err), ShouldBeTrue)
			})
		})
	})

	Convey("Given a single lead", t, func() {
		Convey("When preparing the dataset", func() {
			_, err := training.PrepareDataset(newExtractor(), histories(1), func(*training.LeadHistory) bool { return false }, datasetNow)

			Convey("Then there is too little data for a split", func() {
				So(core.IsValidationError(err), ShouldBeTrue)
			})
		})
	})
}

func TestValidateDataset(t *testing.T) {
	Convey("Given a balanced dataset", t, func() {
		leads := histories(10)
		labelFn := func(h *training.LeadHistory) bool {
			return h.Lead.ID == "lead-1" || h.Lead.ID == "lead-3" ||
				h.Lead.ID == "lead-5" || h.Lead.ID == "lead-7"
		}
		dataset, err := training.PrepareDataset(newExtractor(), leads, labelFn, datasetNow)
		So(err, ShouldBeNil)

		Convey("When validating", func() {
			report := training.ValidateDataset(dataset)

			Convey("Then no warnings are reported", func() {
				So(report.Examples, ShouldEqual, 10)
				So(report.PositiveFraction, ShouldAlmostEqual, 0.4, 1e-12)
				So(report.Warnings, ShouldBeEmpty)
			})
		})
	})

	Convey("Given a dataset with every label positive", t, func() {
		leads := histories(10)
		dataset, err := training.PrepareDataset(newExtractor(), leads, func(*training.LeadHistory) bool { return true }, datasetNow)
		So(err, ShouldBeNil)

		Convey("When validating", func() {
			report := training.ValidateDataset(dataset)

			Convey("Then the class imbalance is flagged but not fatal", func() {
				So(report.PositiveFraction, ShouldEqual, 1)
				So(len(report.Warnings), ShouldEqual, 1)
				So(report.Warnings[0], ShouldContainSubstring, "class balance")
			})

			Convey("Then the report renders its warnings", func() {
				So(report.String(), ShouldContainSubstring, "warnings:")
			})
		})
	})
}
