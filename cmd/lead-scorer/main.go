package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/propio/lead-scoring/internal/adapters/leads"
	"github.com/propio/lead-scoring/internal/adapters/store"
	"github.com/propio/lead-scoring/internal/core"
	"github.com/propio/lead-scoring/internal/domains"
	"github.com/propio/lead-scoring/internal/logging"
	"github.com/propio/lead-scoring/internal/training"
)

var (
	fixturePath = flag.String("fixtures", "", "JSON file with lead fixtures (required)")
	leadID      = flag.String("lead", "", "Lead id to score (scores every lead if omitted)")
	train       = flag.Bool("train", true, "Train a model over the fixtures before scoring")
	explain     = flag.Bool("explain", true, "Include an explanation with each score")
	seed        = flag.Int64("seed", 42, "Random seed for reproducible training")
	verbose     = flag.Bool("verbose", false, "Enable verbose logging")
	jsonLog     = flag.Bool("json-log", false, "Output logs in JSON format")
)

func main() {
	flag.Parse()

	// Initialize logger
	logger, err := logging.InitConsoleLogger(*verbose, *jsonLog)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *fixturePath == "" {
		logger.Fatal("No fixture file given; use -fixtures")
	}

	ctx := context.Background()

	// Wire an in-memory pipeline
	leadStore := leads.NewMemoryLeadStore()
	count, err := leadStore.LoadFixtures(*fixturePath)
	if err != nil {
		logger.Fatal("Failed to load lead fixtures", zap.Error(err))
	}
	logger.Info("Loaded lead fixtures", zap.Int("leads", count))

	memStore := store.NewMemoryStore(logger)
	extractor := core.NewFeatureExtractor(domains.NewClassifier(nil, logger))
	registry := core.NewModelRegistry(memStore, logger)
	scoring := core.NewScoringService(leadStore, extractor, registry, memStore, memStore.Metrics(), nil, logger, core.DefaultMaxBatch)
	engine := core.NewExplainabilityEngine(leadStore, memStore, extractor, core.DefaultWeightTable(), logger)

	if *train {
		if err := trainModel(ctx, leadStore, extractor, registry, logger); err != nil {
			logger.Fatal("Training failed", zap.Error(err))
		}
	}

	ids := flag.Args()
	if *leadID != "" {
		ids = append(ids, *leadID)
	}
	if len(ids) == 0 {
		for _, lead := range leadStore.All() {
			ids = append(ids, lead.ID)
		}
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")

	for start := 0; start < len(ids); start += core.DefaultMaxBatch {
		batch := ids[start:min(start+core.DefaultMaxBatch, len(ids))]
		results, err := scoring.ScoreBatch(ctx, batch)
		if err != nil {
			logger.Fatal("Failed to score leads", zap.Error(err))
		}

		for _, result := range results {
			if err := encoder.Encode(result); err != nil {
				logger.Error("Failed to print score", zap.Error(err))
			}

			if *explain {
				explanation, err := engine.ExplainLead(ctx, result.LeadID)
				if err != nil {
					logger.Error("Failed to explain lead", zap.Error(err), zap.String("lead_id", result.LeadID))
					continue
				}
				if err := encoder.Encode(explanation); err != nil {
					logger.Error("Failed to print explanation", zap.Error(err))
				}
			}
		}
	}

	if *verbose {
		summary, err := scoring.Metrics(ctx, time.Time{}, time.Now())
		if err != nil {
			logger.Error("Failed to summarize metrics", zap.Error(err))
			return
		}
		for modelID, byName := range summary {
			for name, s := range byName {
				logger.Debug("Metric summary",
					zap.String("model_id", modelID),
					zap.String("metric", name),
					zap.Float64("avg", s.Avg),
					zap.Int("samples", s.SampleCount))
			}
		}
	}
}

// trainModel runs a synchronous training pass over every fixture lead.
// Labels come from recorded outcomes; leads without one fall back to a
// simple engagement heuristic so scratch datasets still train.
func trainModel(ctx context.Context, leadStore *leads.MemoryLeadStore, extractor *core.FeatureExtractor, registry *core.ModelRegistry, logger *zap.Logger) error {
	outcomes, err := leadStore.GetOutcomes(ctx, time.Time{})
	if err != nil {
		return err
	}

	var histories []*training.LeadHistory
	for _, lead := range leadStore.All() {
		interactions, _ := leadStore.GetInteractions(ctx, lead.ID)
		prefs, _ := leadStore.GetPropertyPrefs(ctx, lead.ID)
		histories = append(histories, &training.LeadHistory{
			Lead:         lead,
			Interactions: interactions,
			Preferences:  prefs,
		})
	}

	labelFn := func(h *training.LeadHistory) bool {
		if converted, known := outcomes[h.Lead.ID]; known {
			return converted
		}
		return len(h.Interactions) >= 5
	}

	cfg := training.DefaultConfig()
	cfg.Seed = *seed
	trainer := training.NewTrainer(extractor, registry, nil, logger, cfg)

	run, err := trainer.Train(ctx, histories, labelFn, "cli")
	if err != nil {
		return err
	}
	<-run.Done()
	artifact, err := run.Result()
	if err != nil {
		return err
	}

	logger.Info("Trained and promoted model",
		zap.String("model_id", artifact.ID),
		zap.String("version", artifact.Version),
		zap.Float64("test_accuracy", artifact.Metrics.Accuracy),
		zap.Float64("test_f1", artifact.Metrics.F1))
	return nil
}
