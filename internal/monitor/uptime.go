package monitor

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"time"

	"go.uber.org/zap"

	"site-checker/internal/config"
	"site-checker/internal/domain"
	"site-checker/internal/fetch"
	"site-checker/internal/urlutil"
)

const uptimeTimeout = 10 * time.Second

// UptimeChecker verifies that the site answers at all: main URL availability
// with retries, response-time thresholds, certificate expiry and the
// reachability of every configured critical page.
type UptimeChecker struct {
	cfg     *config.Config
	fetcher fetch.Fetcher
	logger  *zap.Logger

	// dialTLS is swapped out in tests.
	dialTLS func(ctx context.Context, addr string) (*tls.Conn, error)
}

func NewUptimeChecker(cfg *config.Config, fetcher fetch.Fetcher, logger *zap.Logger) *UptimeChecker {
	return &UptimeChecker{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  logger,
		dialTLS: func(ctx context.Context, addr string) (*tls.Conn, error) {
			d := tls.Dialer{NetDialer: &net.Dialer{Timeout: uptimeTimeout}}
			conn, err := d.DialContext(ctx, "tcp", addr)
			if err != nil {
				return nil, err
			}
			return conn.(*tls.Conn), nil
		},
	}
}

func (c *UptimeChecker) Name() string { return "uptime" }

func (c *UptimeChecker) Run(ctx context.Context, rc *domain.RunContext) []domain.Finding {
	rec := newRecorder(c.Name(), c.logger)

	c.logger.Info("starting uptime checker", zap.String("url", c.cfg.Website.URL))

	res, attempts := c.fetchWithRetry(ctx, c.cfg.Website.URL)
	if !res.OK && res.StatusCode == 0 {
		rec.add(domain.StatusCritical, domain.SeverityCritical,
			fmt.Sprintf("Website is DOWN: %s", res.Message),
			withURL(c.cfg.Website.URL),
			withDetails(map[string]any{
				"attempts": attempts,
				"error":    res.Message,
			}))
		return rec.findings
	}

	c.recordResponse(rec, res, attempts)

	if cancelled(ctx) {
		return rec.findings
	}

	c.checkSSL(ctx, rec)
	c.checkCriticalPages(ctx, rec)

	return rec.findings
}

// fetchWithRetry retries transport-level failures with the configured backoff.
// HTTP error statuses are returned immediately: the server answered.
func (c *UptimeChecker) fetchWithRetry(ctx context.Context, target string) (fetch.Result, int) {
	delay := time.Duration(c.cfg.Retry.InitialDelaySeconds) * time.Second
	maxDelay := time.Duration(c.cfg.Retry.MaxDelaySeconds) * time.Second

	var res fetch.Result
	for attempt := 1; attempt <= c.cfg.Retry.MaxAttempts; attempt++ {
		res = c.fetcher.Probe(ctx, target, uptimeTimeout)
		if res.OK || res.StatusCode > 0 {
			return res, attempt
		}
		if attempt == c.cfg.Retry.MaxAttempts || cancelled(ctx) {
			return res, attempt
		}

		c.logger.Warn("site unreachable, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.String("error", res.Message))

		select {
		case <-ctx.Done():
			return res, attempt
		case <-time.After(delay):
		}
		if c.cfg.Retry.ExponentialBackoff {
			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
		}
	}
	return res, c.cfg.Retry.MaxAttempts
}

func (c *UptimeChecker) recordResponse(rec *recorder, res fetch.Result, attempts int) {
	elapsed := ms(res.Elapsed)
	warnMS := float64(c.cfg.Thresholds.ResponseTimeWarningMS)
	critMS := float64(c.cfg.Thresholds.ResponseTimeCriticalMS)

	details := map[string]any{
		"status_code":      res.StatusCode,
		"response_time_ms": elapsed,
		"attempts":         attempts,
	}

	switch {
	case !res.OK:
		rec.add(domain.StatusError, domain.SeverityHigh,
			fmt.Sprintf("Website returned HTTP %d: %s", res.StatusCode, res.Message),
			withURL(c.cfg.Website.URL),
			withResponseTime(elapsed),
			withDetails(details))

	case elapsed > critMS:
		details["threshold_ms"] = c.cfg.Thresholds.ResponseTimeCriticalMS
		rec.add(domain.StatusWarning, domain.SeverityHigh,
			fmt.Sprintf("Website is very slow: %.0fms (critical threshold %dms)", elapsed, c.cfg.Thresholds.ResponseTimeCriticalMS),
			withURL(c.cfg.Website.URL),
			withResponseTime(elapsed),
			withDetails(details))

	case elapsed > warnMS:
		details["threshold_ms"] = c.cfg.Thresholds.ResponseTimeWarningMS
		rec.add(domain.StatusWarning, domain.SeverityMedium,
			fmt.Sprintf("Website is slow: %.0fms (warning threshold %dms)", elapsed, c.cfg.Thresholds.ResponseTimeWarningMS),
			withURL(c.cfg.Website.URL),
			withResponseTime(elapsed),
			withDetails(details))

	default:
		rec.success(fmt.Sprintf("Website is up (%.0fms)", elapsed),
			withURL(c.cfg.Website.URL),
			withResponseTime(elapsed),
			withDetails(details))
	}
}

func (c *UptimeChecker) checkSSL(ctx context.Context, rec *recorder) {
	u, err := url.Parse(c.cfg.Website.URL)
	if err != nil || u.Scheme != "https" {
		return
	}
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "443"
	}

	conn, err := c.dialTLS(ctx, net.JoinHostPort(host, port))
	if err != nil {
		rec.add(domain.StatusError, domain.SeverityHigh,
			fmt.Sprintf("SSL certificate check failed: %v", err),
			withURL(c.cfg.Website.URL))
		return
	}
	defer conn.Close()

	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		rec.add(domain.StatusError, domain.SeverityHigh,
			"SSL certificate check failed: no certificate presented",
			withURL(c.cfg.Website.URL))
		return
	}

	expiry := certs[0].NotAfter
	daysLeft := int(time.Until(expiry).Hours() / 24)
	details := map[string]any{
		"expires_at": expiry.Format(time.RFC3339),
		"days_left":  daysLeft,
		"issuer":     certs[0].Issuer.CommonName,
	}

	switch {
	case daysLeft < 0:
		rec.add(domain.StatusCritical, domain.SeverityCritical,
			fmt.Sprintf("SSL certificate EXPIRED %d days ago", -daysLeft),
			withURL(c.cfg.Website.URL),
			withDetails(details))
	case daysLeft <= c.cfg.Thresholds.SSLExpiryCriticalDays:
		rec.add(domain.StatusCritical, domain.SeverityCritical,
			fmt.Sprintf("SSL certificate expires in %d days", daysLeft),
			withURL(c.cfg.Website.URL),
			withDetails(details))
	case daysLeft <= c.cfg.Thresholds.SSLExpiryWarningDays:
		rec.add(domain.StatusWarning, domain.SeverityMedium,
			fmt.Sprintf("SSL certificate expires in %d days", daysLeft),
			withURL(c.cfg.Website.URL),
			withDetails(details))
	default:
		rec.success(fmt.Sprintf("SSL certificate valid for %d more days", daysLeft),
			withURL(c.cfg.Website.URL),
			withDetails(details))
	}
}

func (c *UptimeChecker) checkCriticalPages(ctx context.Context, rec *recorder) {
	var failed []map[string]any
	checked := 0

	for _, page := range c.cfg.CriticalPages {
		if cancelled(ctx) {
			c.logger.Warn("uptime check cancelled")
			break
		}
		pageURL := urlutil.FullURL(c.cfg.Website.URL, page)
		res := c.fetcher.Probe(ctx, pageURL, uptimeTimeout)
		checked++
		if !res.OK {
			failed = append(failed, map[string]any{
				"page":           page,
				"status":         outcomeStatus(res),
				"status_message": res.Message,
			})
		}
	}

	if len(failed) > 0 {
		rec.add(domain.StatusError, domain.SeverityHigh,
			fmt.Sprintf("%d of %d critical pages are not accessible", len(failed), checked),
			withDetails(map[string]any{
				"failed_pages": failed,
				"total_pages":  checked,
			}))
		return
	}

	rec.success(fmt.Sprintf("All %d critical pages are accessible", checked),
		withDetails(map[string]any{"total_pages": checked}))
}
