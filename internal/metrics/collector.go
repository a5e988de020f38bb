package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"site-checker/internal/domain"
)

// Module provides the metrics collector
var Module = fx.Options(
	fx.Provide(NewCollector),
	fx.Provide(func(c *Collector) domain.MetricsCollector { return c }),
)

type Collector struct {
	logger            *zap.Logger
	runsTotal         prometheus.Counter
	runIssues         *prometheus.GaugeVec
	runDuration       prometheus.Histogram
	avgResponseTime   prometheus.Gauge
	findingsTotal     *prometheus.CounterVec
	fetchesTotal      *prometheus.CounterVec
	fetchDuration     *prometheus.HistogramVec
	monitorDuration   *prometheus.HistogramVec
	schedulerTriggers prometheus.Counter
}

func NewCollector(logger *zap.Logger) *Collector {
	return &Collector{
		logger: logger,
		runsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sitecheck_runs_total",
				Help: "Total number of check runs performed",
			},
		),
		runIssues: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sitecheck_run_issues",
				Help: "Issues found in the latest run, by severity",
			},
			[]string{"severity"},
		),
		runDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sitecheck_run_duration_seconds",
				Help:    "Duration of full check runs",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		avgResponseTime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitecheck_avg_response_time_ms",
				Help: "Mean resource response time of the latest run",
			},
		),
		findingsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecheck_findings_total",
				Help: "Total findings reported, by monitor and severity",
			},
			[]string{"monitor", "severity"},
		),
		fetchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecheck_fetches_total",
				Help: "Total resource fetches performed, by outcome",
			},
			[]string{"outcome"},
		),
		fetchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitecheck_fetch_duration_seconds",
				Help:    "Duration of individual resource fetches",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		monitorDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitecheck_monitor_duration_seconds",
				Help:    "Duration of individual monitor runs",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"monitor"},
		),
		schedulerTriggers: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sitecheck_scheduler_triggers_total",
				Help: "Total number of scheduler-triggered runs",
			},
		),
	}
}

func (c *Collector) RecordRun(stats domain.RunStats) {
	c.runsTotal.Inc()
	c.runDuration.Observe(stats.Duration.Seconds())
	c.avgResponseTime.Set(stats.AvgResponseTime)
	c.runIssues.WithLabelValues(string(domain.SeverityCritical)).Set(float64(stats.CriticalIssues))
	c.runIssues.WithLabelValues(string(domain.SeverityHigh)).Set(float64(stats.HighIssues))
	c.runIssues.WithLabelValues(string(domain.SeverityMedium)).Set(float64(stats.MediumIssues))
	c.runIssues.WithLabelValues(string(domain.SeverityLow)).Set(float64(stats.LowIssues))
}

func (c *Collector) RecordFinding(f domain.Finding) {
	c.findingsTotal.WithLabelValues(f.Monitor, string(f.Severity)).Inc()
}

func (c *Collector) RecordFetch(kind domain.OutcomeKind, elapsed time.Duration) {
	c.fetchesTotal.WithLabelValues(string(kind)).Inc()
	c.fetchDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

func (c *Collector) RecordMonitorDuration(monitor string, elapsed time.Duration) {
	c.monitorDuration.WithLabelValues(monitor).Observe(elapsed.Seconds())
}

func (c *Collector) RecordSchedulerTrigger() {
	c.schedulerTriggers.Inc()
}
