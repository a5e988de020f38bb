// Package fetch provides the fetch capability the checkers verify resources
// through: a plain HTTP variant and a browser-rendered variant sharing one
// contract.
package fetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"site-checker/internal/domain"
)

const userAgent = "Site-Checker/1.0"

// maxBodyBytes caps how much of a page body is read into memory.
const maxBodyBytes = 5 << 20

// Result is the outcome of one fetch. When OK is false, Kind carries the
// typed failure classification and Message the human-readable cause.
type Result struct {
	OK          bool
	StatusCode  int
	Kind        domain.OutcomeKind
	Elapsed     time.Duration
	ContentType string
	Body        []byte
	Message     string
}

// Fetcher issues real GET requests. Verification deliberately uses GET, not
// HEAD: it must simulate an actual load, and some servers answer HEAD
// differently.
type Fetcher interface {
	// Fetch GETs url and returns the body (up to an internal cap).
	Fetch(ctx context.Context, url string, timeout time.Duration) Result
	// Probe GETs url but discards the body once status and headers are in,
	// for resources whose content is not inspected.
	Probe(ctx context.Context, url string, timeout time.Duration) Result
	// Head issues a best-effort HEAD, used only for lightweight external
	// link existence checks.
	Head(ctx context.Context, url string, timeout time.Duration) Result
}

type httpFetcher struct {
	client  *http.Client
	metrics domain.MetricsCollector
	logger  *zap.Logger
}

// NewHTTPFetcher returns the plain-HTTP fetch variant. Redirects are
// followed; each request carries its own timeout via context.
func NewHTTPFetcher(metrics domain.MetricsCollector, logger *zap.Logger) Fetcher {
	return &httpFetcher{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        30,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		metrics: metrics,
		logger:  logger.With(zap.String("component", "fetcher")),
	}
}

func (f *httpFetcher) Fetch(ctx context.Context, url string, timeout time.Duration) Result {
	return f.do(ctx, http.MethodGet, url, timeout, true)
}

func (f *httpFetcher) Probe(ctx context.Context, url string, timeout time.Duration) Result {
	return f.do(ctx, http.MethodGet, url, timeout, false)
}

func (f *httpFetcher) Head(ctx context.Context, url string, timeout time.Duration) Result {
	return f.do(ctx, http.MethodHead, url, timeout, false)
}

func (f *httpFetcher) do(ctx context.Context, method, url string, timeout time.Duration, readBody bool) Result {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(reqCtx, method, url, nil)
	if err != nil {
		return Result{Kind: domain.OutcomeOther, Message: "invalid URL: " + err.Error()}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		res := classify(err, elapsed)
		if f.metrics != nil {
			f.metrics.RecordFetch(res.Kind, elapsed)
		}
		return res
	}
	defer resp.Body.Close()

	res := Result{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Elapsed:     elapsed,
	}
	if readBody {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if readErr != nil {
			res.Kind = domain.OutcomeConnectionError
			res.Message = "failed reading response body: " + readErr.Error()
			if f.metrics != nil {
				f.metrics.RecordFetch(res.Kind, elapsed)
			}
			return res
		}
		res.Body = body
		res.Elapsed = time.Since(start)
	} else {
		// Drain a little so the connection can be reused, then drop it.
		io.CopyN(io.Discard, resp.Body, 512)
	}

	if resp.StatusCode >= 400 {
		res.Kind = domain.OutcomeBroken
		res.Message = domain.StatusMessage(resp.StatusCode)
	} else {
		res.OK = true
		res.Kind = domain.OutcomeOK
	}
	if f.metrics != nil {
		f.metrics.RecordFetch(res.Kind, res.Elapsed)
	}
	return res
}

// classify maps a transport error to a typed outcome, so the resulting
// Finding can tell an operator why the resource was unreachable.
func classify(err error, elapsed time.Duration) Result {
	res := Result{Elapsed: elapsed}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		res.Kind = domain.OutcomeTimeout
		res.Message = "Request timed out - resource may be unreachable"
	case isSSLError(err):
		res.Kind = domain.OutcomeSSLError
		res.Message = "SSL Certificate error"
	case isConnectionError(err):
		res.Kind = domain.OutcomeConnectionError
		res.Message = "Connection failed"
	default:
		res.Kind = domain.OutcomeOther
		res.Message = truncate(err.Error(), 100)
	}
	return res
}

func isSSLError(err error) bool {
	var (
		certErr      *tls.CertificateVerificationError
		unknownAuth  x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		certInvalid  x509.CertificateInvalidError
		recordHeader tls.RecordHeaderError
	)
	if errors.As(err, &certErr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &certInvalid) ||
		errors.As(err, &recordHeader) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "tls:") || strings.Contains(msg, "x509:")
}

func isConnectionError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
