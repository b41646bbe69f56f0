package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/propio/lead-scoring/internal/adapters/leads"
	"github.com/propio/lead-scoring/internal/config"
	"github.com/propio/lead-scoring/internal/core"
	"github.com/propio/lead-scoring/internal/di"
	"github.com/propio/lead-scoring/internal/factory"
	"github.com/propio/lead-scoring/internal/metrics"
	"github.com/propio/lead-scoring/internal/scheduler"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	cfg *config.Config,
	logger *zap.Logger,
	leadStore *leads.MemoryLeadStore,
	registry *core.ModelRegistry,
	monitor *core.DriftMonitor,
	stores *factory.Stores,
	prom *metrics.Set,
	registryProm *prometheus.Registry,
) error {
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load lead fixtures if configured
	if path := cfg.GetString("leads.fixture_path"); path != "" {
		count, err := leadStore.LoadFixtures(path)
		if err != nil {
			logger.Fatal("Failed to load lead fixtures", zap.Error(err), zap.String("path", path))
			return err
		}
		logger.Info("Loaded lead fixtures", zap.Int("leads", count), zap.String("path", path))
	}

	// Rehydrate the model registry from the artifact store
	if err := registry.Load(ctx); err != nil {
		logger.Error("Failed to load model registry", zap.Error(err))
	}
	if _, err := registry.GetActive(); err == nil {
		prom.ActiveModel.Set(1)
	} else {
		logger.Warn("No active model; scoring requests will fail until a model is trained")
	}

	// Start the drift monitoring schedule
	interval, err := cfg.GetDuration("drift.interval")
	if err != nil {
		return fmt.Errorf("invalid drift interval: %w", err)
	}
	driftScheduler := scheduler.New("drift-monitor", interval, monitor.TryRunCycle, logger)
	driftScheduler.Start(ctx)

	// Expose prometheus metrics
	metricsAddr := cfg.GetString("server.metrics_address")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registryProm, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		report := monitor.Health(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status == core.HealthUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(report); err != nil {
			logger.Error("Failed to write health report", zap.Error(err))
		}
	})
	server := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		logger.Info("Serving metrics", zap.String("address", metricsAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	if alerts := monitor.RecentAlerts(); len(alerts) > 0 {
		logger.Warn("Unresolved drift alerts at shutdown",
			zap.Int("count", len(alerts)),
			zap.String("latest", alerts[0].Detail))
	}

	driftScheduler.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to stop metrics server", zap.Error(err))
	}
	if err := stores.Close(); err != nil {
		logger.Error("Failed to close stores", zap.Error(err))
	}

	logger.Info("Shutdown complete")
	return nil
}
