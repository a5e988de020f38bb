// Package storage persists check runs and findings in SQLite so run history
// and uptime can be queried across restarts.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"site-checker/internal/domain"
)

var ErrNotFound = errors.New("not found")

// SQLiteSink implements domain.ResultSink on a local SQLite file.
type SQLiteSink struct {
	db     *sql.DB
	logger *zap.Logger
}

// New opens the database file, verifies the connection and ensures the
// schema exists.
func New(ctx context.Context, path string, logger *zap.Logger) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", path))
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	s := &SQLiteSink{db: db, logger: logger}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteSink) Close() error { return s.db.Close() }

func (s *SQLiteSink) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS checks (
	run_id           TEXT PRIMARY KEY,
	target_url       TEXT NOT NULL,
	started_at       TEXT NOT NULL,
	finished_at      TEXT,
	duration_ms      INTEGER,
	total_checks     INTEGER NOT NULL DEFAULT 0,
	total_issues     INTEGER NOT NULL DEFAULT 0,
	critical_issues  INTEGER NOT NULL DEFAULT 0,
	high_issues      INTEGER NOT NULL DEFAULT 0,
	medium_issues    INTEGER NOT NULL DEFAULT 0,
	low_issues       INTEGER NOT NULL DEFAULT 0,
	avg_response_ms  REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_checks_started_at ON checks (started_at DESC);

CREATE TABLE IF NOT EXISTS findings (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	monitor       TEXT NOT NULL,
	status        TEXT NOT NULL,
	severity      TEXT NOT NULL,
	message       TEXT NOT NULL,
	url           TEXT,
	response_ms   REAL,
	details       TEXT,
	created_at    TEXT NOT NULL,
	FOREIGN KEY(run_id) REFERENCES checks(run_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_findings_run_id ON findings (run_id);
CREATE INDEX IF NOT EXISTS idx_findings_severity ON findings (severity);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLiteSink) CreateCheck(ctx context.Context, runID, targetURL string) error {
	query := `INSERT INTO checks (run_id, target_url, started_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, runID, targetURL, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to create check: %w", err)
	}
	return nil
}

func (s *SQLiteSink) AddFinding(ctx context.Context, runID string, f domain.Finding) error {
	var details any
	if f.Details != nil {
		data, err := json.Marshal(f.Details)
		if err != nil {
			s.logger.Warn("failed to serialize finding details", zap.Error(err))
		} else {
			details = string(data)
		}
	}

	query := `
INSERT INTO findings (run_id, monitor, status, severity, message, url, response_ms, details, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		runID, f.Monitor, string(f.Status), string(f.Severity), f.Message,
		f.URL, f.ResponseTime, details, f.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to add finding: %w", err)
	}
	return nil
}

func (s *SQLiteSink) CompleteCheck(ctx context.Context, runID string, stats domain.RunStats) error {
	query := `
UPDATE checks SET
	finished_at = ?,
	duration_ms = ?,
	total_checks = ?,
	total_issues = ?,
	critical_issues = ?,
	high_issues = ?,
	medium_issues = ?,
	low_issues = ?,
	avg_response_ms = ?
WHERE run_id = ?`
	res, err := s.db.ExecContext(ctx, query,
		stats.FinishedAt.Format(time.RFC3339Nano),
		stats.Duration.Milliseconds(),
		stats.TotalChecks,
		stats.TotalIssues,
		stats.CriticalIssues,
		stats.HighIssues,
		stats.MediumIssues,
		stats.LowIssues,
		stats.AvgResponseTime,
		runID)
	if err != nil {
		return fmt.Errorf("failed to complete check: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CheckSummary is one row of run history.
type CheckSummary struct {
	RunID          string
	TargetURL      string
	StartedAt      time.Time
	TotalChecks    int
	TotalIssues    int
	CriticalIssues int
	HighIssues     int
}

// RecentChecks returns the latest runs, newest first.
func (s *SQLiteSink) RecentChecks(ctx context.Context, limit int) ([]CheckSummary, error) {
	query := `
SELECT run_id, target_url, started_at, total_checks, total_issues, critical_issues, high_issues
FROM checks ORDER BY started_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list checks: %w", err)
	}
	defer rows.Close()

	var out []CheckSummary
	for rows.Next() {
		var c CheckSummary
		var startedAt string
		if err := rows.Scan(&c.RunID, &c.TargetURL, &startedAt, &c.TotalChecks, &c.TotalIssues, &c.CriticalIssues, &c.HighIssues); err != nil {
			return nil, fmt.Errorf("failed to scan check row: %w", err)
		}
		c.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// UptimePercentage reports the share of completed runs since the given time
// that had no critical issues.
func (s *SQLiteSink) UptimePercentage(ctx context.Context, since time.Time) (float64, error) {
	query := `
SELECT COUNT(*), COALESCE(SUM(CASE WHEN critical_issues = 0 THEN 1 ELSE 0 END), 0)
FROM checks WHERE finished_at IS NOT NULL AND started_at >= ?`
	var total, up int
	err := s.db.QueryRowContext(ctx, query, since.UTC().Format(time.RFC3339Nano)).Scan(&total, &up)
	if err != nil {
		return 0, fmt.Errorf("failed to compute uptime: %w", err)
	}
	if total == 0 {
		return 100, nil
	}
	return float64(up) / float64(total) * 100, nil
}

// FindingsForRun returns the persisted findings of one run in insertion order.
func (s *SQLiteSink) FindingsForRun(ctx context.Context, runID string) ([]domain.Finding, error) {
	query := `
SELECT monitor, status, severity, message, url, response_ms, details, created_at
FROM findings WHERE run_id = ? ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list findings: %w", err)
	}
	defer rows.Close()

	var out []domain.Finding
	for rows.Next() {
		var f domain.Finding
		var status, severity, createdAt string
		var url, details sql.NullString
		var responseMS sql.NullFloat64
		if err := rows.Scan(&f.Monitor, &status, &severity, &f.Message, &url, &responseMS, &details, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan finding row: %w", err)
		}
		f.Status = domain.Status(status)
		f.Severity = domain.Severity(severity)
		f.URL = url.String
		f.ResponseTime = responseMS.Float64
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &f.Details); err != nil {
				s.logger.Warn("failed to decode finding details", zap.Error(err))
			}
		}
		f.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, f)
	}
	return out, rows.Err()
}
