// Package scheduler runs a job on a fixed interval with overlap
// protection: a tick that fires while the previous run is still going is
// skipped rather than queued, so a slow job never builds a backlog.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is the unit of scheduled work. Returning an error only affects
// logging; the schedule keeps running.
type Job func(ctx context.Context) error

// Scheduler drives a job on an interval
type Scheduler struct {
	name     string
	interval time.Duration
	job      Job
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a scheduler for the given job
func New(name string, interval time.Duration, job Job, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		name:     name,
		interval: interval,
		job:      job,
		logger:   logger,
	}
}

// Start launches the schedule. Calling Start on a running scheduler is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(runCtx)
	s.logger.Info("Started scheduler",
		zap.String("name", s.name),
		zap.Duration("interval", s.interval))
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var inFlight sync.WaitGroup
	busy := make(chan struct{}, 1)

	for {
		select {
		case <-ticker.C:
			select {
			case busy <- struct{}{}:
			default:
				// Previous run still going; skip this tick.
				s.logger.Warn("Skipping scheduled tick, previous run still in progress",
					zap.String("name", s.name))
				continue
			}
			inFlight.Add(1)
			go func() {
				defer inFlight.Done()
				defer func() { <-busy }()
				if err := s.job(ctx); err != nil {
					s.logger.Error("Scheduled job failed",
						zap.String("name", s.name),
						zap.Error(err))
				}
			}()
		case <-ctx.Done():
			inFlight.Wait()
			return
		}
	}
}

// Stop cancels the schedule and waits for any in-flight run to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("Stopped scheduler", zap.String("name", s.name))
}
