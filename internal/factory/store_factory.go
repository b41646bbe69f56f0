package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/propio/lead-scoring/internal/adapters/store"
	"github.com/propio/lead-scoring/internal/config"
	"github.com/propio/lead-scoring/internal/core"
	"github.com/propio/lead-scoring/internal/training"
)

// Stores bundles the persistence facets of a single backing store
type Stores struct {
	Scores     core.ScoreStore
	Metrics    core.MetricStore
	Artifacts  core.ArtifactStore
	AlertAudit core.AlertSink

	closer func() error
}

// Close releases the backing store, if it holds external resources
func (s *Stores) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// StoreFactory creates persistence stores based on configuration
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{cfg: cfg, logger: logger}
}

// decodeWeights rehydrates persisted model weights into a live predictor
func decodeWeights(weights []byte) (core.Model, error) {
	return training.DecodeNetwork(weights)
}

// CreateStores creates the persistence stores selected by the
// configuration.
func (f *StoreFactory) CreateStores() (*Stores, error) {
	storeCfg := f.cfg.GetStore()

	switch storeCfg.Type {
	case "memory":
		mem := store.NewMemoryStore(f.logger)
		return &Stores{
			Scores:     mem,
			Metrics:    mem.Metrics(),
			Artifacts:  mem,
			AlertAudit: mem,
		}, nil
	case "sqlite":
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(storeCfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		s, err := store.NewSQLiteStore(storeCfg.SQLitePath, decodeWeights, f.logger)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Scores:     s,
			Metrics:    s.Metrics(),
			Artifacts:  s,
			AlertAudit: s,
			closer:     s.Close,
		}, nil
	case "mysql":
		s, err := store.NewMySQLStore(storeCfg.MySQLDSN, decodeWeights, f.logger)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Scores:     s,
			Metrics:    s.Metrics(),
			Artifacts:  s,
			AlertAudit: s,
			closer:     s.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeCfg.Type)
	}
}
