package training

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/propio/lead-scoring/internal/core"
)

// Dataset validation thresholds
const (
	testFraction       = 0.2
	minPositiveBalance = 0.1
	maxPositiveBalance = 0.9
	maxMissingRate     = 0.1
)

// LeadHistory bundles everything needed to build one training example
type LeadHistory struct {
	Lead         *core.LeadSnapshot
	Interactions []core.Interaction
	Preferences  []core.PropertyPreference
}

// LabelFn assigns the ground-truth label to a historical lead
type LabelFn func(history *LeadHistory) bool

// Dataset is a chronologically split training corpus. The most recent
// fifth is held out so evaluation mirrors production staleness instead of
// a shuffled sample.
type Dataset struct {
	TrainX [][]float64
	TrainY []float64
	TestX  [][]float64
	TestY  []float64
}

// ValidationReport summarizes dataset quality checks. Findings are
// warnings, never hard failures; training proceeds and attaches the
// report to its logs.
type ValidationReport struct {
	Examples         int
	PositiveFraction float64
	MissingRate      float64
	Warnings         []string
}

// String renders the report for attachment to training logs and errors
func (r *ValidationReport) String() string {
	base := fmt.Sprintf("%d examples, %.2f positive, %.3f missing", r.Examples, r.PositiveFraction, r.MissingRate)
	if len(r.Warnings) == 0 {
		return base
	}
	return base + "; warnings: " + strings.Join(r.Warnings, "; ")
}

// PrepareDataset extracts features for every historical lead and splits
// the corpus 80/20 by creation time.
func PrepareDataset(extractor *core.FeatureExtractor, histories []*LeadHistory, labelFn LabelFn, now time.Time) (*Dataset, error) {
	if len(histories) == 0 {
		return nil, core.NewValidationError("histories", "no training data")
	}

	sorted := make([]*LeadHistory, len(histories))
	copy(sorted, histories)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Lead.CreatedAt.Before(sorted[j].Lead.CreatedAt)
	})

	features := make([][]float64, len(sorted))
	labels := make([]float64, len(sorted))
	for i, history := range sorted {
		vector := extractor.Extract(history.Lead, history.Interactions, history.Preferences, now)
		features[i] = vector.Ordered()
		if labelFn(history) {
			labels[i] = 1
		}
	}

	testSize := int(math.Round(float64(len(sorted)) * testFraction))
	if testSize < 1 {
		testSize = 1
	}
	split := len(sorted) - testSize
	if split < 1 {
		return nil, core.NewValidationError("histories", "too few examples for a train/test split")
	}

	return &Dataset{
		TrainX: features[:split],
		TrainY: labels[:split],
		TestX:  features[split:],
		TestY:  labels[split:],
	}, nil
}

// ValidateDataset checks class balance and the missing-value rate across
// the whole corpus.
func ValidateDataset(ds *Dataset) *ValidationReport {
	labels := append(append([]float64{}, ds.TrainY...), ds.TestY...)
	report := &ValidationReport{Examples: len(labels)}
	if len(labels) == 0 {
		report.Warnings = append(report.Warnings, "dataset is empty")
		return report
	}

	report.PositiveFraction = floats.Sum(labels) / float64(len(labels))
	if report.PositiveFraction < minPositiveBalance || report.PositiveFraction > maxPositiveBalance {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("class balance %.2f outside [%.1f, %.1f]",
				report.PositiveFraction, minPositiveBalance, maxPositiveBalance))
	}

	var cells, missing int
	for _, rows := range [][][]float64{ds.TrainX, ds.TestX} {
		for _, row := range rows {
			for _, v := range row {
				cells++
				if math.IsNaN(v) || math.IsInf(v, 0) {
					missing++
				}
			}
		}
	}
	if cells > 0 {
		report.MissingRate = float64(missing) / float64(cells)
	}
	if report.MissingRate > maxMissingRate {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("missing-value rate %.3f exceeds %.1f", report.MissingRate, maxMissingRate))
	}

	return report
}

// positiveStdDev is used in training logs to flag degenerate label sets
func positiveStdDev(labels []float64) float64 {
	if len(labels) < 2 {
		return 0
	}
	return stat.StdDev(labels, nil)
}
