package monitor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"site-checker/internal/config"
	"site-checker/internal/domain"
	"site-checker/internal/extract"
	"site-checker/internal/fetch"
	"site-checker/internal/urlutil"
)

// largeBase64Pattern matches inline base64 payloads big enough to hide
// injected scripts or obfuscated markup.
var largeBase64Pattern = regexp.MustCompile(`base64,[A-Za-z0-9+/=]{100,}`)

// ContentChecker scans the critical pages for suspicious embedded content
// and verifies the site exposes a navigation element with working links.
type ContentChecker struct {
	cfg     *config.Config
	fetcher fetch.Fetcher
	logger  *zap.Logger
}

func NewContentChecker(cfg *config.Config, fetcher fetch.Fetcher, logger *zap.Logger) *ContentChecker {
	return &ContentChecker{cfg: cfg, fetcher: fetcher, logger: logger}
}

func (c *ContentChecker) Name() string { return "content" }

func (c *ContentChecker) Run(ctx context.Context, rc *domain.RunContext) []domain.Finding {
	rec := newRecorder(c.Name(), c.logger)

	c.logger.Info("starting content checker")

	pages := rc.Pages
	if len(pages) == 0 {
		pages = c.cfg.CriticalPages
	}
	for _, pagePath := range pages {
		if cancelled(ctx) {
			c.logger.Warn("content check cancelled")
			return rec.findings
		}
		c.checkPage(ctx, rec, pagePath)
	}

	if !cancelled(ctx) {
		c.checkNavigation(ctx, rec)
	}

	return rec.findings
}

func (c *ContentChecker) checkPage(ctx context.Context, rec *recorder, pagePath string) {
	pageURL := urlutil.FullURL(c.cfg.Website.URL, pagePath)

	res := c.fetcher.Fetch(ctx, pageURL, c.cfg.LinkChecker.Timeout())
	if !res.OK {
		if cancelled(ctx) {
			return
		}
		if res.StatusCode > 0 {
			rec.add(domain.StatusError, domain.SeverityHigh,
				fmt.Sprintf("Page returned HTTP %d: %s", res.StatusCode, pagePath),
				withURL(pageURL))
		} else {
			rec.add(domain.StatusError, domain.SeverityMedium,
				fmt.Sprintf("Content check failed for %s: %s", pagePath, res.Message),
				withURL(pageURL))
		}
		return
	}

	doc, err := extract.Parse(string(res.Body))
	if err != nil {
		c.logger.Warn("failed to parse page", zap.String("page", pagePath), zap.Error(err))
		return
	}

	clean := true

	externalIframes := 0
	doc.Find("iframe").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if strings.HasPrefix(src, "http") {
			externalIframes++
		}
	})
	if externalIframes > 0 {
		clean = false
		rec.add(domain.StatusWarning, domain.SeverityLow,
			fmt.Sprintf("%d external iframes found on %s", externalIframes, pagePath),
			withURL(pageURL),
			withDetails(map[string]any{"iframe_count": externalIframes}))
	}

	if blocks := largeBase64Pattern.FindAllString(string(res.Body), -1); len(blocks) > 0 {
		clean = false
		rec.add(domain.StatusWarning, domain.SeverityLow,
			fmt.Sprintf("%d large base64 blocks found on %s", len(blocks), pagePath),
			withURL(pageURL),
			withDetails(map[string]any{"block_count": len(blocks)}))
	}

	if clean {
		rec.success(fmt.Sprintf("Content check passed for %s", pagePath), withURL(pageURL))
	}
}

// checkNavigation looks for a nav element on the home page, falling back
// to anything with a nav-ish class, and counts the links inside it.
func (c *ContentChecker) checkNavigation(ctx context.Context, rec *recorder) {
	res := c.fetcher.Fetch(ctx, c.cfg.Website.URL, c.cfg.LinkChecker.Timeout())
	if !res.OK {
		if !cancelled(ctx) {
			c.logger.Warn("navigation check failed to load page", zap.String("message", res.Message))
		}
		return
	}
	doc, err := extract.Parse(string(res.Body))
	if err != nil {
		c.logger.Warn("failed to parse page", zap.Error(err))
		return
	}

	nav := doc.Find("nav").First()
	if nav.Length() == 0 {
		nav = doc.Find("[class*=nav]").First()
	}
	if nav.Length() == 0 {
		rec.add(domain.StatusWarning, domain.SeverityLow, "No navigation element found")
		return
	}

	linkCount := nav.Find("a").Length()
	if linkCount == 0 {
		rec.add(domain.StatusWarning, domain.SeverityMedium, "Navigation found but no links")
		return
	}
	rec.success(fmt.Sprintf("Navigation found with %d links", linkCount),
		withDetails(map[string]any{"link_count": linkCount}))
}
