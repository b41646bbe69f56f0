package factory

import (
	"go.uber.org/zap"

	"github.com/propio/lead-scoring/internal/config"
	"github.com/propio/lead-scoring/internal/core"
	"github.com/propio/lead-scoring/internal/metrics"
	"github.com/propio/lead-scoring/internal/training"
)

// TrainerFactory creates trainers from configuration
type TrainerFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewTrainerFactory creates a new trainer factory
func NewTrainerFactory(cfg *config.Config, logger *zap.Logger) *TrainerFactory {
	return &TrainerFactory{cfg: cfg, logger: logger}
}

// TrainingConfig maps the configured training section onto the trainer's
// config, falling back to defaults for unset fields.
func (f *TrainerFactory) TrainingConfig() training.Config {
	section := f.cfg.GetTraining()
	trainCfg := training.DefaultConfig()

	if section.BaselineEpochs > 0 {
		trainCfg.BaselineEpochs = section.BaselineEpochs
	}
	if section.AdvancedEpochs > 0 {
		trainCfg.AdvancedEpochs = section.AdvancedEpochs
	}
	if section.BatchSize > 0 {
		trainCfg.BatchSize = section.BatchSize
	}
	if section.LearningRate > 0 {
		trainCfg.LearningRate = section.LearningRate
	}
	if len(section.HiddenLayers) > 0 {
		trainCfg.HiddenLayers = section.HiddenLayers
	}
	if section.Dropout > 0 {
		trainCfg.Dropout = section.Dropout
	}
	if section.Seed != 0 {
		trainCfg.Seed = section.Seed
	}
	return trainCfg
}

// CreateTrainer creates a trainer bound to the registry
func (f *TrainerFactory) CreateTrainer(extractor *core.FeatureExtractor, registry *core.ModelRegistry, prom *metrics.Set) *training.Trainer {
	return training.NewTrainer(extractor, registry, prom, f.logger, f.TrainingConfig())
}
