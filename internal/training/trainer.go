package training

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/propio/lead-scoring/internal/core"
	"github.com/propio/lead-scoring/internal/metrics"
)

// Config pins every knob a training run depends on. A fixed seed makes
// runs reproducible end to end.
type Config struct {
	BaselineEpochs int
	AdvancedEpochs int
	BatchSize      int
	LearningRate   float64
	HiddenLayers   []int
	Dropout        float64
	Seed           int64
}

// DefaultConfig returns the training configuration used when none is
// supplied.
func DefaultConfig() Config {
	return Config{
		BaselineEpochs: 50,
		AdvancedEpochs: 100,
		BatchSize:      16,
		LearningRate:   0.1,
		HiddenLayers:   []int{16, 8},
		Dropout:        0.2,
		Seed:           42,
	}
}

// Trainer produces candidate model artifacts from historical leads and
// submits the best one to the registry. At most one training run may be
// in flight; concurrent triggers are rejected, never interleaved.
type Trainer struct {
	extractor *core.FeatureExtractor
	registry  *core.ModelRegistry
	prom      *metrics.Set
	logger    *zap.Logger
	cfg       Config
	now       func() time.Time

	mu      sync.Mutex
	running bool
}

// NewTrainer creates a trainer
func NewTrainer(extractor *core.FeatureExtractor, registry *core.ModelRegistry, prom *metrics.Set, logger *zap.Logger, cfg Config) *Trainer {
	if cfg.BaselineEpochs <= 0 {
		cfg = DefaultConfig()
	}
	return &Trainer{
		extractor: extractor,
		registry:  registry,
		prom:      prom,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Run is the handle returned by an asynchronous training trigger.
// Completion is observed through the handle or by polling the registry.
type Run struct {
	Trigger string

	done     chan struct{}
	artifact *core.ModelArtifact
	err      error
}

// Done is closed when the run reaches a terminal state
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Result returns the promoted artifact and the run error. Valid only
// after Done is closed.
func (r *Run) Result() (*core.ModelArtifact, error) {
	return r.artifact, r.err
}

// Train starts an asynchronous training run over the supplied histories.
// It returns ErrTrainingInProgress while another run is in flight.
func (t *Trainer) Train(ctx context.Context, histories []*LeadHistory, labelFn LabelFn, trigger string) (*Run, error) {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return nil, core.ErrTrainingInProgress
	}
	t.running = true
	t.mu.Unlock()

	run := &Run{Trigger: trigger, done: make(chan struct{})}
	go func() {
		defer func() {
			t.mu.Lock()
			t.running = false
			t.mu.Unlock()
			close(run.done)
		}()
		run.artifact, run.err = t.trainAndPromote(ctx, histories, labelFn)
	}()

	return run, nil
}

// trainAndPromote runs the full offline pipeline: dataset preparation,
// validation, both candidates, selection, promotion.
func (t *Trainer) trainAndPromote(ctx context.Context, histories []*LeadHistory, labelFn LabelFn) (*core.ModelArtifact, error) {
	started := t.now()

	dataset, err := PrepareDataset(t.extractor, histories, labelFn, t.now())
	if err != nil {
		t.observeOutcome("failed", started)
		return nil, err
	}

	report := ValidateDataset(dataset)
	for _, warning := range report.Warnings {
		t.logger.Warn("Dataset validation warning", zap.String("warning", warning))
	}
	t.logger.Info("Prepared training dataset",
		zap.Int("train_examples", len(dataset.TrainX)),
		zap.Int("test_examples", len(dataset.TestX)),
		zap.Float64("positive_fraction", report.PositiveFraction),
		zap.Float64("label_stddev", positiveStdDev(dataset.TrainY)))

	baseline, err := t.TrainBaseline(ctx, dataset, report)
	if err != nil {
		t.observeOutcome("failed", started)
		return nil, err
	}
	advanced, err := t.TrainAdvanced(ctx, dataset, report)
	if err != nil {
		t.observeOutcome("failed", started)
		return nil, err
	}

	winner, loser := selectWinner(baseline, advanced)
	loser.Status = core.StatusEvaluated
	if err := t.registry.Register(ctx, loser); err != nil {
		t.observeOutcome("failed", started)
		return nil, err
	}
	if err := t.registry.Promote(ctx, winner); err != nil {
		t.observeOutcome("failed", started)
		return nil, err
	}

	if t.prom != nil {
		t.prom.ActiveModel.Set(1)
	}
	t.observeOutcome("completed", started)
	t.logger.Info("Training run completed",
		zap.String("winner", string(winner.Type)),
		zap.Float64("winner_accuracy", winner.Metrics.Accuracy),
		zap.Float64("loser_accuracy", loser.Metrics.Accuracy),
		zap.Duration("elapsed", t.now().Sub(started)))

	return winner, nil
}

// TrainBaseline fits a logistic regression: one sigmoid layer over the
// feature vector.
func (t *Trainer) TrainBaseline(ctx context.Context, dataset *Dataset, report *ValidationReport) (*core.ModelArtifact, error) {
	net := NewNetwork(core.FeatureCount(), nil, 0, rand.New(rand.NewSource(t.cfg.Seed)))
	return t.fit(ctx, net, dataset, report, core.ModelTypeBaseline, t.cfg.BaselineEpochs)
}

// TrainAdvanced fits a multi-layer feed-forward network with dropout
func (t *Trainer) TrainAdvanced(ctx context.Context, dataset *Dataset, report *ValidationReport) (*core.ModelArtifact, error) {
	net := NewNetwork(core.FeatureCount(), t.cfg.HiddenLayers, t.cfg.Dropout, rand.New(rand.NewSource(t.cfg.Seed)))
	return t.fit(ctx, net, dataset, report, core.ModelTypeAdvanced, t.cfg.AdvancedEpochs)
}

// fit runs the epoch loop. Cancellation is honored at epoch boundaries; a
// NaN or infinite loss aborts the run with the validation report attached
// and leaves the active model untouched.
func (t *Trainer) fit(ctx context.Context, net *Network, dataset *Dataset, report *ValidationReport, modelType core.ModelType, epochs int) (*core.ModelArtifact, error) {
	rng := rand.New(rand.NewSource(t.cfg.Seed + 1))
	indices := make([]int, len(dataset.TrainX))
	for i := range indices {
		indices[i] = i
	}

	var lastLoss float64
	for epoch := 0; epoch < epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("training cancelled at epoch %d: %w", epoch, err)
		}

		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})

		var epochLoss float64
		batches := 0
		for start := 0; start < len(indices); start += t.cfg.BatchSize {
			end := start + t.cfg.BatchSize
			if end > len(indices) {
				end = len(indices)
			}
			batchX := make([][]float64, 0, end-start)
			batchY := make([]float64, 0, end-start)
			for _, idx := range indices[start:end] {
				batchX = append(batchX, dataset.TrainX[idx])
				batchY = append(batchY, dataset.TrainY[idx])
			}
			epochLoss += net.trainBatch(batchX, batchY, t.cfg.LearningRate, rng)
			batches++
		}
		lastLoss = epochLoss / float64(batches)

		if math.IsNaN(lastLoss) || math.IsInf(lastLoss, 0) {
			return nil, &core.TrainingError{
				Reason: fmt.Sprintf("%s loss diverged at epoch %d", modelType, epoch),
				Report: report.String(),
			}
		}
	}

	trainMetrics := evaluate(net, dataset.TrainX, dataset.TrainY)
	testMetrics := evaluate(net, dataset.TestX, dataset.TestY)
	t.logger.Info("Trained candidate model",
		zap.String("type", string(modelType)),
		zap.Int("epochs", epochs),
		zap.Float64("final_loss", lastLoss),
		zap.Float64("train_accuracy", trainMetrics.Accuracy),
		zap.Float64("test_accuracy", testMetrics.Accuracy),
		zap.Float64("test_f1", testMetrics.F1))

	weights, err := net.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s weights: %w", modelType, err)
	}

	trainedAt := t.now()
	return &core.ModelArtifact{
		ID:            uuid.NewString(),
		Type:          modelType,
		Version:       fmt.Sprintf("%s-%s", modelType, trainedAt.UTC().Format("20060102-150405")),
		SchemaVersion: core.ArtifactSchemaVersion,
		Status:        core.StatusTrained,
		Metrics:       testMetrics,
		TrainingDate:  trainedAt,
		FeatureCount:  core.FeatureCount(),
		Weights:       weights,
		Model:         net,
	}, nil
}

// evaluate thresholds raw sigmoid output at 0.5 and derives confusion
// metrics.
func evaluate(net *Network, xs [][]float64, ys []float64) core.ModelMetrics {
	var cm core.ConfusionMatrix
	for i, x := range xs {
		score, err := net.Predict(x)
		if err != nil {
			continue
		}
		cm.Observe(score, ys[i] == 1)
	}
	return cm.Metrics()
}

// selectWinner prefers higher test accuracy, breaking ties by F1
func selectWinner(a, b *core.ModelArtifact) (winner, loser *core.ModelArtifact) {
	if b.Metrics.Accuracy > a.Metrics.Accuracy {
		return b, a
	}
	if b.Metrics.Accuracy == a.Metrics.Accuracy && b.Metrics.F1 > a.Metrics.F1 {
		return b, a
	}
	return a, b
}

func (t *Trainer) observeOutcome(outcome string, started time.Time) {
	if t.prom == nil {
		return
	}
	t.prom.TrainingRuns.WithLabelValues(outcome).Inc()
	if outcome == "completed" {
		t.prom.TrainingDuration.Observe(t.now().Sub(started).Seconds())
	}
}
