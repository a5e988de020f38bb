package domain

import (
	"context"
	"time"
)

// Status is the overall outcome of a single check.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusWarning  Status = "warning"
	StatusError    Status = "error"
	StatusCritical Status = "critical"
)

// Severity ranks how urgently a non-success finding needs attention.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Finding is one reported outcome from a monitor. It is created during a
// monitor's Run and never mutated afterwards.
type Finding struct {
	Monitor      string
	Status       Status
	Severity     Severity
	Message      string
	URL          string
	ResponseTime float64 // milliseconds, 0 when not measured
	Details      map[string]any
	CreatedAt    time.Time
}

// ContentScope selects which part of a page's DOM is considered for
// resource extraction. MainContentOnly takes precedence over the
// header/footer exclusions when both are set.
type ContentScope struct {
	IgnoreHeader    bool
	IgnoreFooter    bool
	MainContentOnly bool
}

// RunContext carries per-invocation state into every monitor. Cancellation
// travels on the context passed to Run; monitors check it before each page
// and before each resource verification.
type RunContext struct {
	ID         string
	Pages      []string // effective page list; nil means the configured critical pages
	MaxPerPage int      // per-page resource cap override, 0 keeps the configured value
	Scope      ContentScope
	UseBrowser bool
	Headless   bool
}

// Monitor is the capability set shared by all checkers. Run never returns
// an error: single-page and resource failures are folded into Findings, and
// the orchestrator converts panics into one error Finding.
type Monitor interface {
	Name() string
	Run(ctx context.Context, rc *RunContext) []Finding
}

// MonitorStats is the per-monitor slice of a run's statistics.
type MonitorStats struct {
	Total      int
	Successful int
	Warnings   int
	Errors     int
	Critical   int
}

// RunStats is the aggregated statistics object a run always produces, even
// in the presence of partial failures.
type RunStats struct {
	RunID           string
	TargetURL       string
	StartedAt       time.Time
	FinishedAt      time.Time
	Duration        time.Duration
	TotalChecks     int
	TotalIssues     int
	CriticalIssues  int
	HighIssues      int
	MediumIssues    int
	LowIssues       int
	AvgResponseTime float64 // milliseconds, mean over findings that carry one
	PerMonitor      map[string]MonitorStats
}

// ResultSink persists findings. Implementations must tolerate partial runs:
// CompleteCheck is called even when monitors were cancelled midway.
type ResultSink interface {
	CreateCheck(ctx context.Context, runID, targetURL string) error
	AddFinding(ctx context.Context, runID string, f Finding) error
	CompleteCheck(ctx context.Context, runID string, stats RunStats) error
}

// Alerter dispatches a completed run to an external alerting channel.
type Alerter interface {
	Alert(ctx context.Context, stats RunStats, issues []Finding) error
}

// Issues filters the non-success findings out of a result set.
func Issues(findings []Finding) []Finding {
	var out []Finding
	for _, f := range findings {
		if f.Status != StatusSuccess {
			out = append(out, f)
		}
	}
	return out
}
