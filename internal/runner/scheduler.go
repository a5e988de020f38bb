package runner

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"site-checker/internal/config"
	"site-checker/internal/domain"
)

type Scheduler interface {
	Start(ctx context.Context)
	Stop() error
	IsHealthy() bool
}

// defaultScheduler triggers a full check run immediately and then on every
// interval tick until the context is cancelled.
type defaultScheduler struct {
	interval time.Duration
	runner   *Runner
	metrics  domain.MetricsCollector
	logger   *zap.Logger
	mu       sync.RWMutex
	stopping bool
}

func NewScheduler(cfg *config.Config, runner *Runner, metrics domain.MetricsCollector, logger *zap.Logger) Scheduler {
	return &defaultScheduler{
		interval: cfg.Scheduler.Interval(),
		runner:   runner,
		metrics:  metrics,
		logger:   logger.With(zap.String("component", "scheduler")),
	}
}

func (s *defaultScheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.trigger(ctx)

	for {
		select {
		case <-ticker.C:
			s.trigger(ctx)
		case <-ctx.Done():
			s.logger.Debug("scheduler stopped", zap.Error(ctx.Err()))
			return
		}
	}
}

func (s *defaultScheduler) trigger(ctx context.Context) {
	s.mu.RLock()
	if s.stopping {
		s.mu.RUnlock()
		return
	}
	s.mu.RUnlock()

	s.metrics.RecordSchedulerTrigger()
	if _, err := s.runner.RunAll(ctx); err != nil {
		s.logger.Error("scheduled run failed", zap.Error(err))
	}
}

func (s *defaultScheduler) Stop() error {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()
	return nil
}

func (s *defaultScheduler) IsHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.stopping
}
