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
)

func pngHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	w.Write([]byte("not-really-a-png"))
}

func TestImageCheckerDetectsBrokenImages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>
			<img src="/good.png" alt="Good">
			<img src="/gone.png" alt="Gone">
		</body></html>`))
	})
	mux.HandleFunc("/good.png", pngHandler)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := newTestConfig(t, srv.URL, "")
	checker := NewImageChecker(cfg, newTestFetcher(), nil, zap.NewNop())
	findings := checker.Run(context.Background(), testRunContext(cfg))

	errors := findingsByStatus(findings, domain.StatusError)
	require.NotEmpty(t, errors)
	assert.True(t, hasFindingContaining(errors, "broken images on /"))
	assert.True(t, hasFindingContaining(errors, "broken images across site"))

	broken, ok := errors[0].Details["broken_images"].([]imageItem)
	require.True(t, ok)
	require.Len(t, broken, 1)
	assert.Equal(t, srv.URL+"/gone.png", broken[0].URL)
	assert.Equal(t, "404", broken[0].Status)
}

func TestImageCheckerInvalidContentType(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<img src="/fake.png" alt="fake">`))
	})
	mux.HandleFunc("/fake.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>an error page pretending to be an image</html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := newTestConfig(t, srv.URL, "")
	checker := NewImageChecker(cfg, newTestFetcher(), nil, zap.NewNop())
	findings := checker.Run(context.Background(), testRunContext(cfg))

	errors := findingsByStatus(findings, domain.StatusError)
	require.NotEmpty(t, errors)
	broken := errors[0].Details["broken_images"].([]imageItem)
	require.Len(t, broken, 1)
	assert.Equal(t, string(domain.OutcomeInvalidContentType), broken[0].Status)
	assert.Contains(t, broken[0].StatusMessage, "Not an image")
}

func TestImageCheckerSlowImages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>
			<img src="/1.png" alt="1">
			<img src="/2.png" alt="2">
			<img src="/3.png" alt="3">
			<img src="/4.png" alt="4">
			<img src="/slow.png" alt="Slow">
		</body></html>`))
	})
	for _, p := range []string{"/1.png", "/2.png", "/3.png", "/4.png"} {
		mux.HandleFunc(p, pngHandler)
	}
	mux.HandleFunc("/slow.png", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(150 * time.Millisecond)
		pngHandler(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := newTestConfig(t, srv.URL, `
image_checker:
  slow_threshold_ms: 100
`)
	checker := NewImageChecker(cfg, newTestFetcher(), nil, zap.NewNop())
	findings := checker.Run(context.Background(), testRunContext(cfg))

	warnings := findingsByStatus(findings, domain.StatusWarning)
	require.NotEmpty(t, warnings)
	assert.True(t, hasFindingContaining(warnings, "slow images on /"))
	slow := warnings[0].Details["slow_images"].([]imageItem)
	require.Len(t, slow, 1)
	assert.Equal(t, srv.URL+"/slow.png", slow[0].URL)

	// Slow images warn but do not break the page: the success summary for
	// all five loading images is still emitted.
	successes := findingsByStatus(findings, domain.StatusSuccess)
	assert.True(t, hasFindingContaining(successes, "All 5 images valid on /"))
	assert.True(t, hasFindingContaining(successes, "All 5 images are valid"))
}

func TestImageCheckerUnloadablePageWarns(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<img src="/good.png" alt="Good">`))
	})
	mux.HandleFunc("/good.png", pngHandler)
	mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := newTestConfig(t, srv.URL, "critical_pages: [\"/\", \"/down\"]\n")
	checker := NewImageChecker(cfg, newTestFetcher(), nil, zap.NewNop())
	findings := checker.Run(context.Background(), testRunContext(cfg))

	warnings := findingsByStatus(findings, domain.StatusWarning)
	assert.True(t, hasFindingContaining(warnings, "Could not load page /down, skipping image checks"))
	assert.True(t, hasFindingContaining(findings, "images valid on /"))
}

func TestImageCheckerMissingAlt(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<img src="/one.png"><img src="/two.png" alt="Described">`))
	})
	mux.HandleFunc("/one.png", pngHandler)
	mux.HandleFunc("/two.png", pngHandler)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := newTestConfig(t, srv.URL, "")
	checker := NewImageChecker(cfg, newTestFetcher(), nil, zap.NewNop())
	findings := checker.Run(context.Background(), testRunContext(cfg))

	warnings := findingsByStatus(findings, domain.StatusWarning)
	require.NotEmpty(t, warnings)
	assert.True(t, hasFindingContaining(warnings, "missing alt text"))

	missing := warnings[0].Details["missing_alt_images"].([]imageItem)
	require.Len(t, missing, 1)
	assert.Equal(t, srv.URL+"/one.png", missing[0].URL)

	// Missing alt text alone does not block the page success finding.
	assert.True(t, hasFindingContaining(findings, "images valid on /"))
}

func TestImageCheckerAltCheckDisabled(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<img src="/one.png">`))
	})
	mux.HandleFunc("/one.png", pngHandler)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := newTestConfig(t, srv.URL, `
image_checker:
  check_alt_tags: false
`)
	checker := NewImageChecker(cfg, newTestFetcher(), nil, zap.NewNop())
	findings := checker.Run(context.Background(), testRunContext(cfg))

	assert.False(t, hasFindingContaining(findings, "missing alt text"))
	assert.Empty(t, findingsByStatus(findings, domain.StatusWarning))
}

func TestImageCheckerDeduplicates(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<img src="/logo.png" alt="L"><img src="/logo.png" alt="L2">`))
	})
	mux.HandleFunc("/logo.png", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		pngHandler(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := newTestConfig(t, srv.URL, "")
	checker := NewImageChecker(cfg, newTestFetcher(), nil, zap.NewNop())
	checker.Run(context.Background(), testRunContext(cfg))

	assert.Equal(t, int32(1), hits.Load())
}

func TestImageCheckerPerPageCap(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<img src="/1.png" alt="1"><img src="/2.png" alt="2"><img src="/3.png" alt="3">`))
	})
	var hits atomic.Int32
	img := func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		pngHandler(w, r)
	}
	mux.HandleFunc("/1.png", img)
	mux.HandleFunc("/2.png", img)
	mux.HandleFunc("/3.png", img)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := newTestConfig(t, srv.URL, `
image_checker:
  max_images_per_page: 2
`)
	checker := NewImageChecker(cfg, newTestFetcher(), nil, zap.NewNop())
	checker.Run(context.Background(), testRunContext(cfg))

	assert.Equal(t, int32(2), hits.Load())
}
