// Package monitor contains the checkers: the link/image/video verification
// core plus the uptime, seo, wordpress, performance, content and form
// checkers sequenced around them.
package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"site-checker/internal/domain"
)

// recorder accumulates findings for one monitor run and logs them at a
// level matching their severity.
type recorder struct {
	monitor  string
	logger   *zap.Logger
	findings []domain.Finding
}

func newRecorder(monitor string, logger *zap.Logger) *recorder {
	return &recorder{
		monitor: monitor,
		logger:  logger.With(zap.String("monitor", monitor)),
	}
}

func (r *recorder) add(status domain.Status, severity domain.Severity, message string, opts ...findingOption) {
	f := domain.Finding{
		Monitor:   r.monitor,
		Status:    status,
		Severity:  severity,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&f)
	}
	r.findings = append(r.findings, f)

	switch severity {
	case domain.SeverityCritical, domain.SeverityHigh:
		r.logger.Error(message)
	case domain.SeverityMedium:
		r.logger.Warn(message)
	default:
		r.logger.Info(message)
	}
}

func (r *recorder) success(message string, opts ...findingOption) {
	r.add(domain.StatusSuccess, domain.SeverityInfo, message, opts...)
}

type findingOption func(*domain.Finding)

func withURL(url string) findingOption {
	return func(f *domain.Finding) { f.URL = url }
}

func withResponseTime(ms float64) findingOption {
	return func(f *domain.Finding) { f.ResponseTime = ms }
}

func withDetails(details map[string]any) findingOption {
	return func(f *domain.Finding) { f.Details = details }
}

// cancelled is the cooperative cancellation check used before each page and
// each resource verification.
func cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// previewCap bounds the item lists embedded in site-wide summary findings.
// Full counts are always reported alongside the truncated preview.
const previewCap = 20

func preview[T any](items []T) []T {
	if len(items) > previewCap {
		return items[:previewCap]
	}
	return items
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
