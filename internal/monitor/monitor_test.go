package monitor

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"site-checker/internal/config"
	"site-checker/internal/domain"
	"site-checker/internal/fetch"
)

// newTestConfig parses a config pointed at the given test server URL with
// extra YAML appended verbatim.
func newTestConfig(t *testing.T, siteURL, extra string) *config.Config {
	t.Helper()
	yaml := fmt.Sprintf("website:\n  url: %s\n%s", siteURL, extra)
	cfg, err := config.Parse([]byte(yaml))
	require.NoError(t, err)
	return cfg
}

func newTestFetcher() fetch.Fetcher {
	return fetch.NewHTTPFetcher(nil, zap.NewNop())
}

func testRunContext(cfg *config.Config) *domain.RunContext {
	return &domain.RunContext{
		ID:    "chk_20260101_000000_abcdef",
		Scope: cfg.Scope(),
	}
}

func findingsByStatus(findings []domain.Finding, status domain.Status) []domain.Finding {
	var out []domain.Finding
	for _, f := range findings {
		if f.Status == status {
			out = append(out, f)
		}
	}
	return out
}

func hasFindingContaining(findings []domain.Finding, substr string) bool {
	for _, f := range findings {
		if strings.Contains(f.Message, substr) {
			return true
		}
	}
	return false
}
