package alert

import (
	"context"

	"go.uber.org/zap"

	"github.com/propio/lead-scoring/internal/core"
)

// LogSink publishes drift alerts to the structured log. The notification
// service that fans alerts out to agents consumes the same records from
// the alert audit table; this sink is the always-on fallback.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a log-backed alert sink
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish logs the alert
func (s *LogSink) Publish(ctx context.Context, a *core.DriftAlert) error {
	s.logger.Warn("Drift alert",
		zap.String("alert_id", a.ID),
		zap.String("model_id", a.ModelID),
		zap.String("metric", a.MetricName),
		zap.String("severity", string(a.Severity)),
		zap.String("detail", a.Detail),
		zap.Time("detected_at", a.DetectedAt))
	return nil
}

// FanoutSink publishes to several sinks in order. Individual sink
// failures are logged and do not stop the fanout.
type FanoutSink struct {
	sinks  []core.AlertSink
	logger *zap.Logger
}

// NewFanoutSink combines sinks
func NewFanoutSink(logger *zap.Logger, sinks ...core.AlertSink) *FanoutSink {
	return &FanoutSink{sinks: sinks, logger: logger}
}

// Publish delivers the alert to every sink
func (s *FanoutSink) Publish(ctx context.Context, a *core.DriftAlert) error {
	for _, sink := range s.sinks {
		if err := sink.Publish(ctx, a); err != nil {
			s.logger.Error("Alert sink failed", zap.Error(err), zap.String("alert_id", a.ID))
		}
	}
	return nil
}
