package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"site-checker/internal/domain"
)

func testStats() domain.RunStats {
	return domain.RunStats{
		RunID:          "chk_20260101_120000_abc123",
		TargetURL:      "https://example.com",
		FinishedAt:     time.Date(2026, 1, 1, 12, 0, 30, 0, time.UTC),
		TotalChecks:    12,
		TotalIssues:    3,
		CriticalIssues: 1,
		HighIssues:     2,
	}
}

func TestWebhookSendsPayload(t *testing.T) {
	var (
		gotContentType string
		gotBody        []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	issues := []domain.Finding{
		{
			Monitor:  "wordpress",
			Severity: domain.SeverityCritical,
			Message:  "2 sensitive files are publicly accessible",
		},
		{
			Monitor:  "links",
			Severity: domain.SeverityHigh,
			Message:  "Found 4 broken links",
			URL:      "https://example.com/about",
		},
	}

	hook := NewWebhook(srv.URL, zap.NewNop())
	require.NoError(t, hook.Alert(context.Background(), testStats(), issues))

	assert.Equal(t, "application/json", gotContentType)

	var p payload
	require.NoError(t, json.Unmarshal(gotBody, &p))
	assert.Equal(t, "chk_20260101_120000_abc123", p.RunID)
	assert.Equal(t, "https://example.com", p.TargetURL)
	assert.Equal(t, 12, p.TotalChecks)
	assert.Equal(t, 3, p.TotalIssues)
	assert.Equal(t, 1, p.CriticalIssues)
	assert.Equal(t, 2, p.HighIssues)

	require.Len(t, p.Issues, 2)
	assert.Equal(t, "wordpress", p.Issues[0].Monitor)
	assert.Equal(t, "critical", p.Issues[0].Severity)
	assert.Empty(t, p.Issues[0].URL)
	assert.Equal(t, "https://example.com/about", p.Issues[1].URL)
}

func TestWebhookNoURLConfigured(t *testing.T) {
	hook := NewWebhook("", zap.NewNop())
	assert.NoError(t, hook.Alert(context.Background(), testStats(), nil))
}

func TestWebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL, zap.NewNop())
	err := hook.Alert(context.Background(), testStats(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook returned status 500")
}

func TestWebhookUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	hook := NewWebhook(url, zap.NewNop())
	err := hook.Alert(context.Background(), testStats(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sending alert")
}

func TestWebhookCapsIssueList(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	issues := make([]domain.Finding, 75)
	for i := range issues {
		issues[i] = domain.Finding{
			Monitor:  "links",
			Severity: domain.SeverityHigh,
			Message:  fmt.Sprintf("broken link %d", i),
		}
	}

	hook := NewWebhook(srv.URL, zap.NewNop())
	require.NoError(t, hook.Alert(context.Background(), testStats(), issues))

	var p payload
	require.NoError(t, json.Unmarshal(gotBody, &p))
	assert.Len(t, p.Issues, payloadIssueCap)
	assert.Equal(t, "broken link 0", p.Issues[0].Message)
	assert.Equal(t, "broken link 49", p.Issues[payloadIssueCap-1].Message)
}
