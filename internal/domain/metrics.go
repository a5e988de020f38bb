package domain

import "time"

// MetricsCollector records operational metrics for runs and fetches.
type MetricsCollector interface {
	RecordRun(stats RunStats)
	RecordFinding(f Finding)
	RecordFetch(kind OutcomeKind, elapsed time.Duration)
	RecordMonitorDuration(monitor string, elapsed time.Duration)
	RecordSchedulerTrigger()
}
