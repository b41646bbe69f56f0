package di

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/propio/lead-scoring/internal/adapters/alert"
	"github.com/propio/lead-scoring/internal/adapters/leads"
	"github.com/propio/lead-scoring/internal/config"
	"github.com/propio/lead-scoring/internal/core"
	"github.com/propio/lead-scoring/internal/domains"
	"github.com/propio/lead-scoring/internal/factory"
	"github.com/propio/lead-scoring/internal/logging"
	"github.com/propio/lead-scoring/internal/metrics"
	"github.com/propio/lead-scoring/internal/training"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register prometheus registry and metric set
	if err := container.Provide(func() *prometheus.Registry {
		return prometheus.NewRegistry()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(reg *prometheus.Registry) *metrics.Set {
		return metrics.NewSet(reg)
	}); err != nil {
		return nil, err
	}

	// Register email domain classifier and feature extractor
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *domains.Classifier {
		return domains.NewClassifier(cfg.GetStringSlice("features.freemail_domains"), logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(core.NewFeatureExtractor); err != nil {
		return nil, err
	}

	// Register persistence stores
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.StoreFactory) (*factory.Stores, error) {
		return f.CreateStores()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(s *factory.Stores) core.ScoreStore {
		return s.Scores
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(s *factory.Stores) core.MetricStore {
		return s.Metrics
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(s *factory.Stores) core.ArtifactStore {
		return s.Artifacts
	}); err != nil {
		return nil, err
	}

	// Register lead store (fixture-backed; production deployments swap
	// in the CRM-backed implementation here)
	if err := container.Provide(leads.NewMemoryLeadStore); err != nil {
		return nil, err
	}
	if err := container.Provide(func(s *leads.MemoryLeadStore) core.LeadStore {
		return s
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(s *leads.MemoryLeadStore) core.OutcomeStore {
		return s
	}); err != nil {
		return nil, err
	}

	// Register alert sink: log sink plus the store-backed audit trail
	if err := container.Provide(func(s *factory.Stores, logger *zap.Logger) core.AlertSink {
		return alert.NewFanoutSink(logger, alert.NewLogSink(logger), s.AlertAudit)
	}); err != nil {
		return nil, err
	}

	// Register model registry
	if err := container.Provide(func(artifacts core.ArtifactStore, logger *zap.Logger) *core.ModelRegistry {
		return core.NewModelRegistry(artifacts, logger)
	}); err != nil {
		return nil, err
	}

	// Register scoring service
	if err := container.Provide(func(
		cfg *config.Config,
		leadStore core.LeadStore,
		extractor *core.FeatureExtractor,
		registry *core.ModelRegistry,
		scores core.ScoreStore,
		metricStore core.MetricStore,
		prom *metrics.Set,
		logger *zap.Logger,
	) *core.ScoringService {
		return core.NewScoringService(leadStore, extractor, registry, scores, metricStore, prom, logger,
			cfg.GetInt("scoring.max_batch"))
	}); err != nil {
		return nil, err
	}

	// Register explainability engine
	if err := container.Provide(func() *core.WeightTable {
		return core.DefaultWeightTable()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(core.NewExplainabilityEngine); err != nil {
		return nil, err
	}

	// Register trainer
	if err := container.Provide(factory.NewTrainerFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.TrainerFactory, extractor *core.FeatureExtractor, registry *core.ModelRegistry, prom *metrics.Set) *training.Trainer {
		return f.CreateTrainer(extractor, registry, prom)
	}); err != nil {
		return nil, err
	}

	// Register drift monitor
	if err := container.Provide(func(
		cfg *config.Config,
		registry *core.ModelRegistry,
		scores core.ScoreStore,
		metricStore core.MetricStore,
		outcomes core.OutcomeStore,
		sink core.AlertSink,
		prom *metrics.Set,
		logger *zap.Logger,
	) *core.DriftMonitor {
		return core.NewDriftMonitor(registry, scores, metricStore, outcomes, sink, prom, logger,
			cfg.GetFloat64("drift.threshold"))
	}); err != nil {
		return nil, err
	}

	return container, nil
}
