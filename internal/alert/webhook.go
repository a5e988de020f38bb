// Package alert dispatches completed runs with critical or high findings to
// an external webhook.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"site-checker/internal/domain"
)

const requestTimeout = 10 * time.Second

// payloadIssueCap bounds the issue list in the webhook body.
const payloadIssueCap = 50

type issuePayload struct {
	Monitor  string `json:"monitor"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	URL      string `json:"url,omitempty"`
}

type payload struct {
	RunID          string         `json:"run_id"`
	TargetURL      string         `json:"target_url"`
	FinishedAt     time.Time      `json:"finished_at"`
	TotalChecks    int            `json:"total_checks"`
	TotalIssues    int            `json:"total_issues"`
	CriticalIssues int            `json:"critical_issues"`
	HighIssues     int            `json:"high_issues"`
	Issues         []issuePayload `json:"issues"`
}

// Webhook posts a JSON summary of the run to a configured URL.
type Webhook struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

func NewWebhook(url string, logger *zap.Logger) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: requestTimeout},
		logger: logger.With(zap.String("component", "webhook")),
	}
}

func (w *Webhook) Alert(ctx context.Context, stats domain.RunStats, issues []domain.Finding) error {
	if w.url == "" {
		w.logger.Debug("no webhook configured, skipping alert")
		return nil
	}

	p := payload{
		RunID:          stats.RunID,
		TargetURL:      stats.TargetURL,
		FinishedAt:     stats.FinishedAt,
		TotalChecks:    stats.TotalChecks,
		TotalIssues:    stats.TotalIssues,
		CriticalIssues: stats.CriticalIssues,
		HighIssues:     stats.HighIssues,
	}
	for i, f := range issues {
		if i >= payloadIssueCap {
			break
		}
		p.Issues = append(p.Issues, issuePayload{
			Monitor:  f.Monitor,
			Severity: string(f.Severity),
			Message:  f.Message,
			URL:      f.URL,
		})
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding alert payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	w.logger.Info("alert sent",
		zap.String("run_id", stats.RunID),
		zap.Int("issues", len(p.Issues)))
	return nil
}
