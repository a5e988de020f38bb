// Package runner orchestrates monitor execution: one run produces findings
// from every monitor in order, persists them and aggregates statistics.
package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"site-checker/internal/config"
	"site-checker/internal/domain"
)

type Runner struct {
	cfg      *config.Config
	monitors []domain.Monitor
	sink     domain.ResultSink
	alerter  domain.Alerter
	metrics  domain.MetricsCollector
	logger   *zap.Logger
}

func NewRunner(
	cfg *config.Config,
	monitors []domain.Monitor,
	sink domain.ResultSink,
	alerter domain.Alerter,
	metrics domain.MetricsCollector,
	logger *zap.Logger,
) *Runner {
	return &Runner{
		cfg:      cfg,
		monitors: monitors,
		sink:     sink,
		alerter:  alerter,
		metrics:  metrics,
		logger:   logger,
	}
}

// newRunID builds a sortable run identifier with a random suffix so two runs
// started in the same second stay distinct.
func newRunID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:6]
	return fmt.Sprintf("chk_%s_%s", now.Format("20060102_150405"), suffix)
}

// RunAll executes every monitor in sequence and returns the aggregated
// statistics. A run always completes with stats, even when monitors panic or
// the context is cancelled midway; only sink failures on run creation abort.
func (r *Runner) RunAll(ctx context.Context) (domain.RunStats, error) {
	started := time.Now().UTC()
	runID := newRunID(started)

	logger := r.logger.With(zap.String("run_id", runID))
	logger.Info("starting check run",
		zap.String("target", r.cfg.Website.URL),
		zap.Int("monitors", len(r.monitors)))

	if err := r.sink.CreateCheck(ctx, runID, r.cfg.Website.URL); err != nil {
		return domain.RunStats{}, fmt.Errorf("creating check run: %w", err)
	}

	rc := &domain.RunContext{
		ID:         runID,
		Scope:      r.cfg.Scope(),
		UseBrowser: r.cfg.UseBrowser,
		Headless:   r.cfg.Headless,
	}

	var all []domain.Finding
	for _, m := range r.monitors {
		findings := r.runMonitor(ctx, m, rc, logger)
		for _, f := range findings {
			r.metrics.RecordFinding(f)
			if err := r.sink.AddFinding(ctx, runID, f); err != nil {
				logger.Error("failed to persist finding",
					zap.String("monitor", f.Monitor),
					zap.Error(err))
			}
		}
		all = append(all, findings...)

		if ctx.Err() != nil {
			logger.Warn("run cancelled", zap.String("after_monitor", m.Name()))
			break
		}
	}

	stats := r.aggregate(runID, started, all)
	r.metrics.RecordRun(stats)

	// CompleteCheck runs on a fresh context so a cancelled run still gets
	// its stats written.
	completeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.sink.CompleteCheck(completeCtx, runID, stats); err != nil {
		logger.Error("failed to complete check run", zap.Error(err))
	}

	logger.Info("check run finished",
		zap.Duration("duration", stats.Duration),
		zap.Int("checks", stats.TotalChecks),
		zap.Int("issues", stats.TotalIssues),
		zap.Int("critical", stats.CriticalIssues),
		zap.Int("high", stats.HighIssues))

	if stats.CriticalIssues > 0 || stats.HighIssues > 0 {
		if err := r.alerter.Alert(completeCtx, stats, domain.Issues(all)); err != nil {
			logger.Error("failed to send alert", zap.Error(err))
		}
	}

	return stats, nil
}

// runMonitor isolates one monitor: a panic becomes a single error finding
// instead of taking down the run.
func (r *Runner) runMonitor(ctx context.Context, m domain.Monitor, rc *domain.RunContext, logger *zap.Logger) (findings []domain.Finding) {
	started := time.Now()
	defer func() {
		elapsed := time.Since(started)
		r.metrics.RecordMonitorDuration(m.Name(), elapsed)
		if rec := recover(); rec != nil {
			logger.Error("monitor panicked",
				zap.String("monitor", m.Name()),
				zap.Any("panic", rec))
			findings = append(findings, domain.Finding{
				Monitor:   m.Name(),
				Status:    domain.StatusError,
				Severity:  domain.SeverityHigh,
				Message:   fmt.Sprintf("Monitor %s failed: %v", m.Name(), rec),
				CreatedAt: time.Now().UTC(),
			})
		}
		logger.Info("monitor finished",
			zap.String("monitor", m.Name()),
			zap.Duration("duration", elapsed),
			zap.Int("findings", len(findings)))
	}()

	return m.Run(ctx, rc)
}

func (r *Runner) aggregate(runID string, started time.Time, findings []domain.Finding) domain.RunStats {
	finished := time.Now().UTC()
	stats := domain.RunStats{
		RunID:       runID,
		TargetURL:   r.cfg.Website.URL,
		StartedAt:   started,
		FinishedAt:  finished,
		Duration:    finished.Sub(started),
		TotalChecks: len(findings),
		PerMonitor:  make(map[string]domain.MonitorStats),
	}

	var timedCount int
	var timedTotal float64

	for _, f := range findings {
		ms := stats.PerMonitor[f.Monitor]
		ms.Total++

		switch f.Status {
		case domain.StatusSuccess:
			ms.Successful++
		case domain.StatusWarning:
			ms.Warnings++
		case domain.StatusCritical:
			ms.Critical++
		default:
			ms.Errors++
		}
		stats.PerMonitor[f.Monitor] = ms

		if f.ResponseTime > 0 {
			timedCount++
			timedTotal += f.ResponseTime
		}

		if f.Status == domain.StatusSuccess {
			continue
		}
		stats.TotalIssues++
		switch f.Severity {
		case domain.SeverityCritical:
			stats.CriticalIssues++
		case domain.SeverityHigh:
			stats.HighIssues++
		case domain.SeverityMedium:
			stats.MediumIssues++
		case domain.SeverityLow:
			stats.LowIssues++
		}
	}

	if timedCount > 0 {
		stats.AvgResponseTime = timedTotal / float64(timedCount)
	}
	return stats
}
