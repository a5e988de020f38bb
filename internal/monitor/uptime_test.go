package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"site-checker/internal/domain"
)

func TestUptimeCheckerSiteUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	cfg := newTestConfig(t, srv.URL, "")
	checker := NewUptimeChecker(cfg, newTestFetcher(), zap.NewNop())
	findings := checker.Run(context.Background(), testRunContext(cfg))

	require.NotEmpty(t, findings)
	assert.True(t, hasFindingContaining(findings, "Website is up"))
	assert.True(t, hasFindingContaining(findings, "critical pages are accessible"))
	assert.Empty(t, findingsByStatus(findings, domain.StatusCritical))
}

func TestUptimeCheckerSiteDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	cfg := newTestConfig(t, srv.URL, `
retry:
  max_attempts: 1
`)
	checker := NewUptimeChecker(cfg, newTestFetcher(), zap.NewNop())
	findings := checker.Run(context.Background(), testRunContext(cfg))

	critical := findingsByStatus(findings, domain.StatusCritical)
	require.Len(t, critical, 1)
	assert.Equal(t, domain.SeverityCritical, critical[0].Severity)
	assert.Contains(t, critical[0].Message, "Website is DOWN")

	// A down site short-circuits: no page checks pile on.
	assert.Len(t, findings, 1)
}

func TestUptimeCheckerRetriesTransportFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := newTestConfig(t, srv.URL, `
retry:
  max_attempts: 3
`)
	checker := NewUptimeChecker(cfg, newTestFetcher(), zap.NewNop())
	checker.Run(context.Background(), testRunContext(cfg))

	// The server answered on the first attempt, so no retries happened:
	// one availability probe plus one critical-page probe.
	assert.Equal(t, int32(2), hits.Load())
}

func TestUptimeCheckerHTTPErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := newTestConfig(t, srv.URL, `
retry:
  max_attempts: 3
`)
	checker := NewUptimeChecker(cfg, newTestFetcher(), zap.NewNop())
	findings := checker.Run(context.Background(), testRunContext(cfg))

	errors := findingsByStatus(findings, domain.StatusError)
	require.NotEmpty(t, errors)
	assert.True(t, hasFindingContaining(errors, "HTTP 500"))
}

func TestUptimeCheckerSlowResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	// Thresholds of 1ms make any real round trip count as slow.
	cfg := newTestConfig(t, srv.URL, `
thresholds:
  response_time_warning: 1
  response_time_critical: 60000
`)
	checker := NewUptimeChecker(cfg, newTestFetcher(), zap.NewNop())
	findings := checker.Run(context.Background(), testRunContext(cfg))

	warnings := findingsByStatus(findings, domain.StatusWarning)
	require.NotEmpty(t, warnings)
	assert.True(t, hasFindingContaining(warnings, "Website is slow"))
}

func TestUptimeCheckerCriticalPageDown(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			http.NotFound(w, r)
			return
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := newTestConfig(t, srv.URL, `
critical_pages: ["/", "/broken"]
`)
	checker := NewUptimeChecker(cfg, newTestFetcher(), zap.NewNop())
	findings := checker.Run(context.Background(), testRunContext(cfg))

	errors := findingsByStatus(findings, domain.StatusError)
	require.NotEmpty(t, errors)
	assert.True(t, hasFindingContaining(errors, "1 of 2 critical pages are not accessible"))
}

func TestUptimeCheckerNoSSLCheckForHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	cfg := newTestConfig(t, srv.URL, "")
	checker := NewUptimeChecker(cfg, newTestFetcher(), zap.NewNop())
	findings := checker.Run(context.Background(), testRunContext(cfg))

	assert.False(t, hasFindingContaining(findings, "SSL certificate"))
}
