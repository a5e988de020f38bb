package monitor

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"site-checker/internal/config"
	"site-checker/internal/domain"
	"site-checker/internal/extract"
	"site-checker/internal/fetch"
	"site-checker/internal/urlutil"
)

const (
	titleMinLen = 30
	titleMaxLen = 60
	descMinLen  = 120
	descMaxLen  = 160
)

// SEOChecker audits the on-page SEO basics of the critical pages: title and
// meta description lengths, H1 usage, Open Graph tags and canonical links,
// plus the site-level sitemap and robots.txt.
type SEOChecker struct {
	cfg     *config.Config
	fetcher fetch.Fetcher
	logger  *zap.Logger
}

func NewSEOChecker(cfg *config.Config, fetcher fetch.Fetcher, logger *zap.Logger) *SEOChecker {
	return &SEOChecker{cfg: cfg, fetcher: fetcher, logger: logger}
}

func (c *SEOChecker) Name() string { return "seo" }

var sitemapCandidates = []string{"/sitemap_index.xml", "/sitemap.xml", "/wp-sitemap.xml"}

func (c *SEOChecker) Run(ctx context.Context, rc *domain.RunContext) []domain.Finding {
	rec := newRecorder(c.Name(), c.logger)

	c.logger.Info("starting seo checker")

	pages := rc.Pages
	if len(pages) == 0 {
		pages = c.cfg.CriticalPages
	}

	for _, pagePath := range pages {
		if cancelled(ctx) {
			c.logger.Warn("seo check cancelled")
			break
		}
		c.checkPage(ctx, rec, pagePath)
	}

	if !cancelled(ctx) {
		if enabled(c.cfg.SEOChecks.CheckSitemap) {
			c.checkSitemap(ctx, rec)
		}
		if enabled(c.cfg.SEOChecks.CheckRobotsTxt) {
			c.checkRobots(ctx, rec)
		}
	}

	return rec.findings
}

// enabled treats a nil toggle as on.
func enabled(b *bool) bool { return b == nil || *b }

func (c *SEOChecker) checkPage(ctx context.Context, rec *recorder, pagePath string) {
	pageURL := urlutil.FullURL(c.cfg.Website.URL, pagePath)

	res := c.fetcher.Fetch(ctx, pageURL, c.cfg.LinkChecker.Timeout())
	if !res.OK {
		rec.add(domain.StatusError, domain.SeverityMedium,
			fmt.Sprintf("Could not fetch %s for SEO analysis: %s", pagePath, res.Message),
			withURL(pageURL))
		return
	}

	doc, err := extract.Parse(string(res.Body))
	if err != nil {
		c.logger.Warn("failed to parse page", zap.String("url", pageURL), zap.Error(err))
		return
	}

	var issues []map[string]any
	addIssue := func(kind, msg string) {
		issues = append(issues, map[string]any{"check": kind, "issue": msg})
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	switch {
	case title == "":
		addIssue("title", "Page has no <title> tag")
	case len(title) < titleMinLen:
		addIssue("title", fmt.Sprintf("Title too short: %d chars (recommended %d-%d)", len(title), titleMinLen, titleMaxLen))
	case len(title) > titleMaxLen:
		addIssue("title", fmt.Sprintf("Title too long: %d chars (recommended %d-%d)", len(title), titleMinLen, titleMaxLen))
	}

	desc, _ := doc.Find(`meta[name="description"]`).First().Attr("content")
	desc = strings.TrimSpace(desc)
	switch {
	case desc == "":
		addIssue("meta_description", "Page has no meta description")
	case len(desc) < descMinLen:
		addIssue("meta_description", fmt.Sprintf("Meta description too short: %d chars (recommended %d-%d)", len(desc), descMinLen, descMaxLen))
	case len(desc) > descMaxLen:
		addIssue("meta_description", fmt.Sprintf("Meta description too long: %d chars (recommended %d-%d)", len(desc), descMinLen, descMaxLen))
	}

	h1Count := doc.Find("h1").Length()
	if h1Count == 0 {
		addIssue("h1", "Page has no H1 heading")
	} else if h1Count > 1 {
		addIssue("h1", fmt.Sprintf("Page has %d H1 headings (should have exactly 1)", h1Count))
	}

	var missingOG []string
	for _, tag := range []string{"og:title", "og:description", "og:image"} {
		if doc.Find(fmt.Sprintf(`meta[property="%s"]`, tag)).Length() == 0 {
			missingOG = append(missingOG, tag)
		}
	}
	if len(missingOG) > 0 {
		addIssue("open_graph", fmt.Sprintf("Missing Open Graph tags: %s", strings.Join(missingOG, ", ")))
	}

	if enabled(c.cfg.SEOChecks.CheckCanonical) {
		if doc.Find(`link[rel="canonical"]`).Length() == 0 {
			addIssue("canonical", "Page has no canonical link")
		}
	}

	if len(issues) > 0 {
		rec.add(domain.StatusWarning, domain.SeverityLow,
			fmt.Sprintf("%d SEO issues on %s", len(issues), pagePath),
			withURL(pageURL),
			withDetails(map[string]any{
				"issues": issues,
				"title":  title,
			}))
		return
	}

	rec.success(fmt.Sprintf("SEO basics look good on %s", pagePath),
		withURL(pageURL),
		withDetails(map[string]any{"title": title}))
}

func (c *SEOChecker) checkSitemap(ctx context.Context, rec *recorder) {
	candidates := sitemapCandidates
	if p := c.cfg.SEOChecks.SitemapPath; p != "" {
		candidates = append([]string{p}, candidates...)
	}

	var tried []string
	for _, path := range candidates {
		sitemapURL := urlutil.FullURL(c.cfg.Website.URL, path)
		if contains(tried, path) {
			continue
		}
		tried = append(tried, path)

		res := c.fetcher.Probe(ctx, sitemapURL, c.cfg.LinkChecker.Timeout())
		if res.OK {
			rec.success(fmt.Sprintf("Sitemap found at %s", path),
				withURL(sitemapURL))
			return
		}
	}

	rec.add(domain.StatusWarning, domain.SeverityMedium,
		"No sitemap found",
		withDetails(map[string]any{"tried": tried}))
}

func (c *SEOChecker) checkRobots(ctx context.Context, rec *recorder) {
	robotsURL := urlutil.FullURL(c.cfg.Website.URL, "/robots.txt")

	res := c.fetcher.Fetch(ctx, robotsURL, c.cfg.LinkChecker.Timeout())
	if !res.OK {
		rec.add(domain.StatusWarning, domain.SeverityMedium,
			"robots.txt not found",
			withURL(robotsURL))
		return
	}

	body := string(res.Body)
	if strings.Contains(body, "Disallow: /\n") || strings.HasSuffix(strings.TrimSpace(body), "Disallow: /") {
		rec.add(domain.StatusWarning, domain.SeverityHigh,
			"robots.txt blocks the entire site from crawling",
			withURL(robotsURL))
		return
	}

	rec.success("robots.txt present and does not block the site", withURL(robotsURL))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
