package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"site-checker/internal/domain"
)

func newTestFetcher() Fetcher {
	return NewHTTPFetcher(nil, zap.NewNop())
}

func TestFetchOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>hello</html>"))
	}))
	defer srv.Close()

	res := newTestFetcher().Fetch(context.Background(), srv.URL, 5*time.Second)

	assert.True(t, res.OK)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, domain.OutcomeOK, res.Kind)
	assert.Contains(t, res.ContentType, "text/html")
	assert.Equal(t, "<html>hello</html>", string(res.Body))
	assert.Greater(t, res.Elapsed, time.Duration(0))
}

func TestFetchUsesGET(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
	}))
	defer srv.Close()

	newTestFetcher().Probe(context.Background(), srv.URL, 5*time.Second)
	assert.Equal(t, http.MethodGet, method)
}

func TestHeadUsesHEAD(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
	}))
	defer srv.Close()

	newTestFetcher().Head(context.Background(), srv.URL, 5*time.Second)
	assert.Equal(t, http.MethodHead, method)
}

func TestFetchSendsUserAgent(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	newTestFetcher().Probe(context.Background(), srv.URL, 5*time.Second)
	assert.Equal(t, "Site-Checker/1.0", ua)
}

func TestFetchHTTPErrors(t *testing.T) {
	tests := []struct {
		status  int
		message string
	}{
		{http.StatusNotFound, "Not Found - Resource does not exist"},
		{http.StatusForbidden, "Forbidden - Access Denied"},
		{http.StatusInternalServerError, "Internal Server Error"},
		{http.StatusServiceUnavailable, "Service Unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			res := newTestFetcher().Probe(context.Background(), srv.URL, 5*time.Second)

			assert.False(t, res.OK)
			assert.Equal(t, tt.status, res.StatusCode)
			assert.Equal(t, domain.OutcomeBroken, res.Kind)
			assert.Equal(t, tt.message, res.Message)
		})
	}
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	res := newTestFetcher().Probe(context.Background(), srv.URL, 50*time.Millisecond)

	assert.False(t, res.OK)
	assert.Equal(t, 0, res.StatusCode)
	assert.Equal(t, domain.OutcomeTimeout, res.Kind)
}

func TestFetchConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	res := newTestFetcher().Probe(context.Background(), srv.URL, 2*time.Second)

	assert.False(t, res.OK)
	assert.Equal(t, 0, res.StatusCode)
	assert.Equal(t, domain.OutcomeConnectionError, res.Kind)
}

func TestFetchSSLError(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	// The default client does not trust the test server's self-signed cert.
	res := newTestFetcher().Probe(context.Background(), srv.URL, 5*time.Second)

	assert.False(t, res.OK)
	assert.Equal(t, domain.OutcomeSSLError, res.Kind)
}

func TestFetchInvalidURL(t *testing.T) {
	res := newTestFetcher().Probe(context.Background(), "http://\x00bad", 2*time.Second)
	assert.False(t, res.OK)
	assert.Equal(t, domain.OutcomeOther, res.Kind)
}

func TestClassifyGenericErrorIsOther(t *testing.T) {
	res := classify(errors.New("stream error: PROTOCOL_ERROR"), 10*time.Millisecond)
	assert.False(t, res.OK)
	assert.Equal(t, domain.OutcomeOther, res.Kind)
	assert.Equal(t, "stream error: PROTOCOL_ERROR", res.Message)
}

func TestFetchFollowsRedirects(t *testing.T) {
	final := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("landed"))
	}))
	defer final.Close()

	redirecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL, http.StatusMovedPermanently)
	}))
	defer redirecting.Close()

	res := newTestFetcher().Fetch(context.Background(), redirecting.URL, 5*time.Second)

	require.True(t, res.OK)
	assert.Equal(t, "landed", string(res.Body))
}

func TestStatusMessage(t *testing.T) {
	assert.Equal(t, "Not Found - Resource does not exist", domain.StatusMessage(404))
	assert.Equal(t, "Too Many Requests", domain.StatusMessage(429))
	assert.Equal(t, "HTTP Error 418", domain.StatusMessage(418))
}
