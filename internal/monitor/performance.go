package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"site-checker/internal/config"
	"site-checker/internal/domain"
	"site-checker/internal/extract"
	"site-checker/internal/fetch"
	"site-checker/internal/urlutil"
)

// ttfbPageCap bounds how many critical pages get a TTFB measurement.
const ttfbPageCap = 5

// PerformanceChecker measures time to first byte on the critical pages,
// flags mixed content on HTTPS sites and, when an API key is configured,
// pulls PageSpeed Insights scores.
type PerformanceChecker struct {
	cfg     *config.Config
	fetcher fetch.Fetcher
	logger  *zap.Logger

	// Overridable for tests.
	pagespeedEndpoint string
}

func NewPerformanceChecker(cfg *config.Config, fetcher fetch.Fetcher, logger *zap.Logger) *PerformanceChecker {
	return &PerformanceChecker{
		cfg:               cfg,
		fetcher:           fetcher,
		logger:            logger,
		pagespeedEndpoint: "https://www.googleapis.com/pagespeedonline/v5/runPagespeed",
	}
}

func (c *PerformanceChecker) Name() string { return "performance" }

func (c *PerformanceChecker) Run(ctx context.Context, rc *domain.RunContext) []domain.Finding {
	rec := newRecorder(c.Name(), c.logger)

	c.logger.Info("starting performance checker")

	c.checkTTFB(ctx, rc, rec)
	if c.cfg.Performance.EnablePagespeed && !cancelled(ctx) {
		c.checkPagespeed(ctx, rec)
	}
	if !cancelled(ctx) {
		c.checkMixedContent(ctx, rec)
	}

	return rec.findings
}

// checkTTFB probes each critical page and reads the time until the response
// headers arrive, which is the closest a plain HTTP client gets to TTFB.
func (c *PerformanceChecker) checkTTFB(ctx context.Context, rc *domain.RunContext, rec *recorder) {
	pages := rc.Pages
	if len(pages) == 0 {
		pages = c.cfg.CriticalPages
	}
	if len(pages) > ttfbPageCap {
		pages = pages[:ttfbPageCap]
	}

	warnMS := float64(c.cfg.Thresholds.ResponseTimeWarningMS)
	critMS := float64(c.cfg.Thresholds.ResponseTimeCriticalMS)

	for _, pagePath := range pages {
		if cancelled(ctx) {
			c.logger.Warn("performance check cancelled")
			return
		}
		pageURL := urlutil.FullURL(c.cfg.Website.URL, pagePath)

		res := c.fetcher.Probe(ctx, pageURL, c.cfg.Performance.Timeout())
		ttfb := ms(res.Elapsed)

		if !res.OK {
			if res.Kind == domain.OutcomeTimeout {
				rec.add(domain.StatusCritical, domain.SeverityCritical,
					fmt.Sprintf("Page timeout: %s", pagePath),
					withURL(pageURL))
				continue
			}
			rec.add(domain.StatusError, domain.SeverityMedium,
				fmt.Sprintf("TTFB check failed for %s: %s", pagePath, res.Message),
				withURL(pageURL))
			continue
		}

		details := map[string]any{
			"ttfb_ms":     ttfb,
			"status_code": res.StatusCode,
		}

		switch {
		case ttfb > critMS:
			rec.add(domain.StatusWarning, domain.SeverityHigh,
				fmt.Sprintf("Slow TTFB on %s: %.0fms", pagePath, ttfb),
				withURL(pageURL), withResponseTime(ttfb), withDetails(details))
		case ttfb > warnMS:
			rec.add(domain.StatusWarning, domain.SeverityMedium,
				fmt.Sprintf("Elevated TTFB on %s: %.0fms", pagePath, ttfb),
				withURL(pageURL), withResponseTime(ttfb), withDetails(details))
		default:
			rec.success(fmt.Sprintf("Good TTFB on %s: %.0fms", pagePath, ttfb),
				withURL(pageURL), withResponseTime(ttfb), withDetails(details))
		}
	}
}

func (c *PerformanceChecker) checkPagespeed(ctx context.Context, rec *recorder) {
	apiKey := c.cfg.Performance.PagespeedAPIKey
	if apiKey == "" {
		apiKey = os.Getenv("PAGESPEED_API_KEY")
	}
	if apiKey == "" {
		c.logger.Info("pagespeed api key not configured, skipping")
		return
	}

	query := url.Values{}
	query.Set("url", c.cfg.Website.URL)
	query.Set("key", apiKey)
	query.Set("strategy", "mobile")

	res := c.fetcher.Fetch(ctx, c.pagespeedEndpoint+"?"+query.Encode(), c.cfg.Performance.Timeout())
	if !res.OK {
		c.logger.Warn("pagespeed request failed",
			zap.Int("status", res.StatusCode),
			zap.String("message", res.Message))
		return
	}

	var payload struct {
		LighthouseResult struct {
			Categories map[string]struct {
				Score float64 `json:"score"`
			} `json:"categories"`
		} `json:"lighthouseResult"`
	}
	if err := json.Unmarshal(res.Body, &payload); err != nil {
		c.logger.Warn("failed to decode pagespeed response", zap.Error(err))
		return
	}

	scores := make(map[string]any, len(payload.LighthouseResult.Categories))
	for name, cat := range payload.LighthouseResult.Categories {
		scores[name] = int(math.Round(cat.Score * 100))
	}
	perfScore, _ := scores["performance"].(int)

	switch {
	case perfScore >= 90:
		rec.success(fmt.Sprintf("PageSpeed score: %d/100", perfScore), withDetails(scores))
	case perfScore >= 50:
		rec.add(domain.StatusWarning, domain.SeverityMedium,
			fmt.Sprintf("PageSpeed score needs improvement: %d/100", perfScore),
			withDetails(scores))
	default:
		rec.add(domain.StatusWarning, domain.SeverityHigh,
			fmt.Sprintf("Poor PageSpeed score: %d/100", perfScore),
			withDetails(scores))
	}
}

var mixedContentSelectors = []struct {
	selector string
	attr     string
}{
	{"script", "src"},
	{"link", "href"},
	{"img", "src"},
	{"iframe", "src"},
}

// checkMixedContent flags plain-HTTP resources referenced from an HTTPS
// page, which browsers block or warn about.
func (c *PerformanceChecker) checkMixedContent(ctx context.Context, rec *recorder) {
	if !strings.HasPrefix(c.cfg.Website.URL, "https") {
		return
	}

	res := c.fetcher.Fetch(ctx, c.cfg.Website.URL, c.cfg.Performance.Timeout())
	if !res.OK {
		c.logger.Warn("mixed content check failed to load page", zap.String("message", res.Message))
		return
	}
	doc, err := extract.Parse(string(res.Body))
	if err != nil {
		c.logger.Warn("failed to parse page", zap.Error(err))
		return
	}

	var mixed []map[string]string
	for _, sel := range mixedContentSelectors {
		doc.Find(sel.selector).Each(func(_ int, s *goquery.Selection) {
			raw, _ := s.Attr(sel.attr)
			if strings.HasPrefix(raw, "http://") {
				mixed = append(mixed, map[string]string{
					"tag": sel.selector,
					"url": clipString(raw, 100),
				})
			}
		})
	}

	if len(mixed) > 0 {
		if len(mixed) > 5 {
			mixed = mixed[:5]
		}
		rec.add(domain.StatusWarning, domain.SeverityMedium,
			fmt.Sprintf("Found %d mixed content resources", len(mixed)),
			withDetails(map[string]any{"mixed_content": mixed}))
		return
	}
	rec.success("No mixed content found")
}

func clipString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
