package core

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ModelRegistry tracks model artifacts and owns every status transition.
// Exactly one artifact may be active at a time; promotion retires the
// previous active artifact in the same critical section so readers never
// observe zero or two active models.
type ModelRegistry struct {
	mu        sync.RWMutex
	artifacts map[string]*ModelArtifact
	activeID  string
	store     ArtifactStore
	logger    *zap.Logger
}

// NewModelRegistry creates a registry. The artifact store may be nil for
// purely in-memory operation (tests, one-shot CLI runs).
func NewModelRegistry(store ArtifactStore, logger *zap.Logger) *ModelRegistry {
	return &ModelRegistry{
		artifacts: make(map[string]*ModelArtifact),
		store:     store,
		logger:    logger,
	}
}

// Load rehydrates the registry from the artifact store
func (r *ModelRegistry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	stored, err := r.store.List(ctx)
	if err != nil {
		return &PersistenceError{Op: "registry load", Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, artifact := range stored {
		r.artifacts[artifact.ID] = artifact
		if artifact.Status == StatusActive {
			r.activeID = artifact.ID
		}
	}
	r.logger.Info("Loaded model registry",
		zap.Int("artifacts", len(stored)),
		zap.String("active_id", r.activeID))
	return nil
}

// Register records a freshly trained or evaluated artifact without
// touching the active model.
func (r *ModelRegistry) Register(ctx context.Context, artifact *ModelArtifact) error {
	if err := validateArtifact(artifact); err != nil {
		return err
	}

	stored := *artifact
	r.mu.Lock()
	r.artifacts[artifact.ID] = &stored
	r.mu.Unlock()

	r.persist(ctx, artifact)
	return nil
}

// Promote atomically retires the current active artifact and activates the
// given one. A malformed artifact is rejected before any state changes.
func (r *ModelRegistry) Promote(ctx context.Context, artifact *ModelArtifact) error {
	if err := validateArtifact(artifact); err != nil {
		return err
	}

	artifact.Status = StatusActive
	stored := *artifact

	r.mu.Lock()
	var retired *ModelArtifact
	if r.activeID != "" && r.activeID != artifact.ID {
		if prev, ok := r.artifacts[r.activeID]; ok {
			prev.Status = StatusRetired
			retired = prev
		}
	}
	r.artifacts[artifact.ID] = &stored
	r.activeID = artifact.ID
	r.mu.Unlock()

	r.logger.Info("Promoted model artifact",
		zap.String("model_id", artifact.ID),
		zap.String("version", artifact.Version),
		zap.String("type", string(artifact.Type)),
		zap.Float64("test_accuracy", artifact.Metrics.Accuracy))

	if retired != nil {
		r.persist(ctx, retired)
	}
	r.persist(ctx, artifact)
	return nil
}

// GetActive returns the currently active artifact, or ErrNoActiveModel.
// The returned artifact is a private copy; a later promotion never mutates
// it under the caller.
func (r *ModelRegistry) GetActive() (*ModelArtifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.activeID == "" {
		return nil, ErrNoActiveModel
	}
	artifact, ok := r.artifacts[r.activeID]
	if !ok {
		return nil, ErrNoActiveModel
	}
	copied := *artifact
	return &copied, nil
}

// Get returns a copy of the artifact with the given id, or ErrNotFound
func (r *ModelRegistry) Get(id string) (*ModelArtifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	artifact, ok := r.artifacts[id]
	if !ok {
		return nil, fmt.Errorf("model %s: %w", id, ErrNotFound)
	}
	copied := *artifact
	return &copied, nil
}

// List returns copies of the artifacts, optionally filtered by status
func (r *ModelRegistry) List(statuses ...ModelStatus) []*ModelArtifact {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*ModelArtifact
	for _, artifact := range r.artifacts {
		if len(statuses) == 0 {
			copied := *artifact
			out = append(out, &copied)
			continue
		}
		for _, status := range statuses {
			if artifact.Status == status {
				copied := *artifact
				out = append(out, &copied)
				break
			}
		}
	}
	return out
}

// persist writes an artifact through the store, logging failures. Registry
// state stays authoritative in memory; a failed write does not roll back
// the promotion.
func (r *ModelRegistry) persist(ctx context.Context, artifact *ModelArtifact) {
	if r.store == nil {
		return
	}
	if err := r.store.Save(ctx, artifact); err != nil {
		r.logger.Error("Failed to persist model artifact",
			zap.Error(err),
			zap.String("model_id", artifact.ID))
	}
}

func validateArtifact(artifact *ModelArtifact) error {
	if artifact == nil {
		return NewValidationError("artifact", "missing")
	}
	if artifact.ID == "" {
		return NewValidationError("artifact.id", "missing")
	}
	if artifact.Model == nil && len(artifact.Weights) == 0 {
		return NewValidationError("artifact.weights", "missing")
	}
	m := artifact.Metrics
	if m.Accuracy == 0 && m.Precision == 0 && m.Recall == 0 && m.F1 == 0 {
		return NewValidationError("artifact.metrics", "missing evaluation metrics")
	}
	return nil
}
