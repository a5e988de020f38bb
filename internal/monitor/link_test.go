package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"site-checker/internal/domain"
	"site-checker/internal/fetch"
)

func TestLinkCheckerDetectsBrokenLinks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>
			<a href="/ok">Fine</a>
			<a href="/missing">Gone</a>
		</body></html>`))
	})
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>leaf</body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := newTestConfig(t, srv.URL, `
link_checker:
  max_depth: 1
  check_external: false
`)
	checker := NewLinkChecker(cfg, newTestFetcher(), nil, zap.NewNop())
	findings := checker.Run(context.Background(), testRunContext(cfg))

	errors := findingsByStatus(findings, domain.StatusError)
	require.NotEmpty(t, errors)
	assert.True(t, hasFindingContaining(errors, "broken anchor links on /"))
	assert.True(t, hasFindingContaining(errors, "broken anchor links across site"))

	pageFinding := errors[0]
	assert.Equal(t, domain.SeverityHigh, pageFinding.Severity)
	broken, ok := pageFinding.Details["broken_links"].([]brokenItem)
	require.True(t, ok)
	require.Len(t, broken, 1)
	assert.Equal(t, srv.URL+"/missing", broken[0].URL)
	assert.Equal(t, "404", broken[0].Status)
	assert.Equal(t, "/", broken[0].FoundOnPage)
}

func TestLinkCheckerAllValid(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="/a">A</a><a href="/b">B</a>`))
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := newTestConfig(t, srv.URL, `
link_checker:
  max_depth: 1
  check_external: false
`)
	checker := NewLinkChecker(cfg, newTestFetcher(), nil, zap.NewNop())
	findings := checker.Run(context.Background(), testRunContext(cfg))

	assert.Empty(t, findingsByStatus(findings, domain.StatusError))
	assert.True(t, hasFindingContaining(findings, "anchor links valid on /"))
	assert.True(t, hasFindingContaining(findings, "anchor links are valid"))
}

func TestLinkCheckerDeduplicates(t *testing.T) {
	var sharedHits atomic.Int32
	mux := http.NewServeMux()
	page := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="/shared">S</a>`))
	}
	mux.HandleFunc("/", page)
	mux.HandleFunc("/two", page)
	mux.HandleFunc("/shared", func(w http.ResponseWriter, r *http.Request) {
		sharedHits.Add(1)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := newTestConfig(t, srv.URL, `
critical_pages: ["/", "/two"]
link_checker:
  max_depth: 0
  check_external: false
`)
	checker := NewLinkChecker(cfg, newTestFetcher(), nil, zap.NewNop())
	checker.Run(context.Background(), testRunContext(cfg))

	assert.Equal(t, int32(1), sharedHits.Load())
}

func TestLinkCheckerIgnorePatterns(t *testing.T) {
	var ignoredHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="/logout">Logout</a><a href="/ok">OK</a>`))
	})
	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		ignoredHits.Add(1)
	})
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := newTestConfig(t, srv.URL, `
link_checker:
  max_depth: 0
  check_external: false
  ignore_patterns: ["/logout"]
`)
	checker := NewLinkChecker(cfg, newTestFetcher(), nil, zap.NewNop())
	checker.Run(context.Background(), testRunContext(cfg))

	assert.Equal(t, int32(0), ignoredHits.Load())
}

func TestLinkCheckerCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<a href="/x">X</a>`))
	}))
	defer srv.Close()

	cfg := newTestConfig(t, srv.URL, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	checker := NewLinkChecker(cfg, newTestFetcher(), nil, zap.NewNop())
	findings := checker.Run(ctx, testRunContext(cfg))

	// A cancelled run still returns a coherent summary instead of hanging.
	assert.NotEmpty(t, findings)
}

func TestLinkCheckerSlowLinksStillHealthy(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="/fast">F</a><a href="/slow">S</a>`))
	})
	mux.HandleFunc("/fast", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(120 * time.Millisecond)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := newTestConfig(t, srv.URL, `
link_checker:
  max_depth: 0
  check_external: false
  slow_threshold_ms: 50
`)
	checker := NewLinkChecker(cfg, newTestFetcher(), nil, zap.NewNop())
	findings := checker.Run(context.Background(), testRunContext(cfg))

	warnings := findingsByStatus(findings, domain.StatusWarning)
	assert.True(t, hasFindingContaining(warnings, "1 slow anchor links on /"))

	// A slow link degrades the page, it does not break it.
	assert.Empty(t, findingsByStatus(findings, domain.StatusError))
	assert.True(t, hasFindingContaining(findings, "All 2 anchor links valid on /"))
	assert.True(t, hasFindingContaining(findings, "All 2 anchor links are valid"))
}

func TestLinkCheckerUnloadablePageWarns(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="/ok">OK</a>`))
	})
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := newTestConfig(t, srv.URL, `
critical_pages: ["/", "/down"]
link_checker:
  max_depth: 0
  check_external: false
`)
	checker := NewLinkChecker(cfg, newTestFetcher(), nil, zap.NewNop())
	findings := checker.Run(context.Background(), testRunContext(cfg))

	warnings := findingsByStatus(findings, domain.StatusWarning)
	assert.True(t, hasFindingContaining(warnings, "Could not load page /down, skipping link checks"))
	assert.True(t, hasFindingContaining(findings, "anchor links valid on /"))
}

// cancelAfterFetcher delegates to a real fetcher and cancels the run after a
// fixed number of requests have completed.
type cancelAfterFetcher struct {
	inner  fetch.Fetcher
	cancel context.CancelFunc
	after  int32
	calls  atomic.Int32
}

func (f *cancelAfterFetcher) track() {
	if f.calls.Add(1) >= f.after {
		f.cancel()
	}
}

func (f *cancelAfterFetcher) Fetch(ctx context.Context, url string, timeout time.Duration) fetch.Result {
	defer f.track()
	return f.inner.Fetch(ctx, url, timeout)
}

func (f *cancelAfterFetcher) Probe(ctx context.Context, url string, timeout time.Duration) fetch.Result {
	defer f.track()
	return f.inner.Probe(ctx, url, timeout)
}

func (f *cancelAfterFetcher) Head(ctx context.Context, url string, timeout time.Duration) fetch.Result {
	defer f.track()
	return f.inner.Head(ctx, url, timeout)
}

func TestLinkCheckerStopsAtPageBoundaryOnCancel(t *testing.T) {
	var pageTwoHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="/ok">OK</a>`))
	})
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/two", func(w http.ResponseWriter, r *http.Request) {
		pageTwoHits.Add(1)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := newTestConfig(t, srv.URL, `
critical_pages: ["/", "/two"]
link_checker:
  max_depth: 0
  check_external: false
`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Page fetch plus one link probe, then the run is cancelled.
	fetcher := &cancelAfterFetcher{inner: newTestFetcher(), cancel: cancel, after: 2}

	checker := NewLinkChecker(cfg, fetcher, nil, zap.NewNop())
	findings := checker.Run(ctx, testRunContext(cfg))

	// The page that finished before cancellation keeps its findings; the
	// next page is never touched and contributes none.
	assert.True(t, hasFindingContaining(findings, "All 1 anchor links valid on /"))
	assert.Equal(t, int32(0), pageTwoHits.Load())
	for _, f := range findings {
		assert.NotContains(t, f.Message, "/two")
	}
}

func TestLinkCheckerCrawlFindsDeepRot(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="/level1">Deeper</a>`))
	})
	mux.HandleFunc("/level1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="/level2-dead">Dead end</a>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := newTestConfig(t, srv.URL, `
link_checker:
  max_depth: 3
  check_external: false
`)
	checker := NewLinkChecker(cfg, newTestFetcher(), nil, zap.NewNop())
	findings := checker.Run(context.Background(), testRunContext(cfg))

	errors := findingsByStatus(findings, domain.StatusError)
	require.NotEmpty(t, errors)

	var found bool
	for _, f := range errors {
		if broken, ok := f.Details["broken_links"].([]brokenItem); ok {
			for _, b := range broken {
				if b.URL == srv.URL+"/level2-dead" {
					found = true
				}
			}
		}
	}
	assert.True(t, found, "crawl should surface the dead link two levels down")
}
