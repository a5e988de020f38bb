package monitor

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"site-checker/internal/config"
	"site-checker/internal/domain"
	"site-checker/internal/extract"
	"site-checker/internal/fetch"
	"site-checker/internal/urlutil"
)

// LinkChecker verifies every anchor target on the configured pages by
// actually GETting it, then crawls the site breadth-first for link rot
// beyond those pages.
type LinkChecker struct {
	cfg            *config.Config
	fetcher        fetch.Fetcher
	drivers        fetch.DriverFactory
	ignorePatterns []*regexp.Regexp
	logger         *zap.Logger
}

func NewLinkChecker(cfg *config.Config, fetcher fetch.Fetcher, drivers fetch.DriverFactory, logger *zap.Logger) *LinkChecker {
	var patterns []*regexp.Regexp
	for _, raw := range cfg.LinkChecker.IgnorePatterns {
		p, err := regexp.Compile(raw)
		if err != nil {
			logger.Warn("ignoring invalid link ignore pattern", zap.String("pattern", raw), zap.Error(err))
			continue
		}
		patterns = append(patterns, p)
	}
	return &LinkChecker{
		cfg:            cfg,
		fetcher:        fetcher,
		drivers:        drivers,
		ignorePatterns: patterns,
		logger:         logger,
	}
}

func (c *LinkChecker) Name() string { return "links" }

// linkState is the run-wide accumulation shared between the per-page scan
// and the site crawl. The mutex matters only during the crawl, which
// fetches concurrently.
type linkState struct {
	mu      sync.Mutex
	checked map[string]struct{}
	broken  []brokenItem
}

func (s *linkState) alreadyChecked(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.checked[url]; ok {
		return true
	}
	s.checked[url] = struct{}{}
	return false
}

func (s *linkState) addBroken(item brokenItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broken = append(s.broken, item)
}

func (s *linkState) snapshot() (int, []brokenItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.checked), s.broken
}

type brokenItem struct {
	URL           string `json:"url"`
	Text          string `json:"text,omitempty"`
	Status        string `json:"status"`
	StatusMessage string `json:"status_message"`
	FoundOnPage   string `json:"found_on_page"`
}

type slowItem struct {
	URL            string  `json:"url"`
	Text           string  `json:"text,omitempty"`
	ResponseTimeMS float64 `json:"response_time_ms"`
	FoundOnPage    string  `json:"found_on_page"`
}

type checkedItem struct {
	URL            string  `json:"url"`
	Text           string  `json:"text,omitempty"`
	StatusCode     int     `json:"status_code"`
	ResponseTimeMS float64 `json:"response_time_ms"`
}

func (c *LinkChecker) Run(ctx context.Context, rc *domain.RunContext) []domain.Finding {
	rec := newRecorder(c.Name(), c.logger)
	state := &linkState{checked: make(map[string]struct{})}

	c.logger.Info("starting link checker", zap.Int("max_depth", c.cfg.LinkChecker.MaxDepth))

	sess := newSession(ctx, c.fetcher, c.drivers, rc.UseBrowser, rc.Headless, c.logger)
	defer sess.close()

	c.scanPages(ctx, rc, rec, sess, state)

	// The full crawl only runs over plain HTTP; driving every internal page
	// through a browser is too slow to be useful.
	if sess.driver == nil && !cancelled(ctx) {
		c.crawlSite(ctx, state)
	}

	c.summarize(rec, state)
	return rec.findings
}

func (c *LinkChecker) scanPages(ctx context.Context, rc *domain.RunContext, rec *recorder, sess *session, state *linkState) {
	pages := rc.Pages
	if len(pages) == 0 {
		pages = c.cfg.CriticalPages
	}
	maxPerPage := rc.MaxPerPage
	if maxPerPage == 0 {
		maxPerPage = c.cfg.LinkChecker.MaxLinksPerPage
	}

	for _, pagePath := range pages {
		if cancelled(ctx) {
			c.logger.Warn("link check cancelled")
			return
		}
		c.checkPage(ctx, rc, rec, sess, state, pagePath, maxPerPage)
	}
}

// checkPage scans one page. Unexpected internal failures become one
// error finding scoped to the page; they never abort the run.
func (c *LinkChecker) checkPage(ctx context.Context, rc *domain.RunContext, rec *recorder, sess *session,
	state *linkState, pagePath string, maxPerPage int) {

	pageURL := urlutil.FullURL(c.cfg.Website.URL, pagePath)

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("link check panicked", zap.String("page", pagePath), zap.Any("panic", r))
			rec.add(domain.StatusError, domain.SeverityMedium,
				fmt.Sprintf("Link check failed for %s: %v", pagePath, r),
				withURL(pageURL))
		}
	}()

	links, ok := c.collectLinks(ctx, rc, sess, pageURL)
	if !ok {
		if !cancelled(ctx) {
			rec.add(domain.StatusWarning, domain.SeverityMedium,
				fmt.Sprintf("Could not load page %s, skipping link checks", pagePath),
				withURL(pageURL))
		}
		return
	}

	totalFound := len(links)
	if maxPerPage > 0 && len(links) > maxPerPage {
		links = links[:maxPerPage]
		c.logger.Info("limiting links on page",
			zap.String("page", pagePath),
			zap.Int("limit", maxPerPage),
			zap.Int("total", totalFound))
	}

	c.logger.Info("checking anchor links", zap.String("page", pagePath), zap.Int("count", len(links)))

	var (
		pageBroken  []brokenItem
		pageSlow    []slowItem
		pageChecked []checkedItem
		totalTime   float64
	)

	for _, link := range links {
		if cancelled(ctx) {
			c.logger.Warn("link check cancelled")
			break
		}
		if c.shouldIgnore(link.URL) || state.alreadyChecked(link.URL) {
			continue
		}

		res := c.fetcher.Probe(ctx, link.URL, c.cfg.LinkChecker.Timeout())
		elapsed := ms(res.Elapsed)

		if res.OK {
			totalTime += elapsed
			pageChecked = append(pageChecked, checkedItem{
				URL:            link.URL,
				Text:           link.Text,
				StatusCode:     res.StatusCode,
				ResponseTimeMS: elapsed,
			})
			if elapsed > float64(c.cfg.LinkChecker.SlowThresholdMS) {
				pageSlow = append(pageSlow, slowItem{
					URL:            link.URL,
					Text:           link.Text,
					ResponseTimeMS: elapsed,
					FoundOnPage:    pagePath,
				})
			}
			continue
		}

		// External link failures below HTTP (DNS, refused connections) are
		// noise for someone else's site; internal ones are ours to report.
		if res.StatusCode == 0 && res.Kind == domain.OutcomeConnectionError &&
			!urlutil.IsInternal(link.URL, c.cfg.Website.URL) {
			c.logger.Debug("external link check failed",
				zap.String("url", link.URL),
				zap.String("message", res.Message))
			continue
		}

		item := brokenItem{
			URL:           link.URL,
			Text:          link.Text,
			Status:        outcomeStatus(res),
			StatusMessage: res.Message,
			FoundOnPage:   pagePath,
		}
		pageBroken = append(pageBroken, item)
		state.addBroken(item)
	}

	avgTime := 0.0
	if len(pageChecked) > 0 {
		avgTime = totalTime / float64(len(pageChecked))
	}

	if len(pageBroken) > 0 {
		rec.add(domain.StatusError, domain.SeverityHigh,
			fmt.Sprintf("%d broken anchor links on %s", len(pageBroken), pagePath),
			withURL(pageURL),
			withDetails(map[string]any{
				"broken_links":       pageBroken,
				"total_anchor_links": len(links),
			}))
	}

	if len(pageSlow) > 0 {
		rec.add(domain.StatusWarning, domain.SeverityMedium,
			fmt.Sprintf("%d slow anchor links on %s (>%dms)", len(pageSlow), pagePath, c.cfg.LinkChecker.SlowThresholdMS),
			withURL(pageURL),
			withDetails(map[string]any{
				"slow_links":           pageSlow,
				"avg_response_time_ms": avgTime,
				"threshold_ms":         c.cfg.LinkChecker.SlowThresholdMS,
			}))
	}

	// Slow links only warn; the page still counts as healthy when nothing
	// is broken.
	if len(pageBroken) == 0 {
		slowest := append([]checkedItem(nil), pageChecked...)
		sort.Slice(slowest, func(i, j int) bool {
			return slowest[i].ResponseTimeMS > slowest[j].ResponseTimeMS
		})
		if len(slowest) > 5 {
			slowest = slowest[:5]
		}
		rec.success(fmt.Sprintf("All %d anchor links valid on %s (avg: %.0fms)", len(links), pagePath, avgTime),
			withURL(pageURL),
			withResponseTime(avgTime),
			withDetails(map[string]any{
				"total_anchor_links":   len(links),
				"checked":              len(pageChecked),
				"avg_response_time_ms": avgTime,
				"slowest_links":        slowest,
			}))
	}
}

// collectLinks extracts the in-scope anchors of a page, through the browser
// when one is active.
func (c *LinkChecker) collectLinks(ctx context.Context, rc *domain.RunContext, sess *session, pageURL string) ([]extract.Link, bool) {
	if sess.driver != nil {
		nav, err := sess.driver.Navigate(ctx, pageURL)
		if err != nil || !nav.OK {
			c.logger.Warn("page failed to load in browser", zap.String("url", pageURL), zap.Error(err))
			return nil, false
		}
		raw, err := sess.driver.Links(ctx)
		if err != nil {
			c.logger.Warn("failed to read links from browser", zap.String("url", pageURL), zap.Error(err))
			return nil, false
		}
		var links []extract.Link
		seen := make(map[string]struct{})
		for _, l := range raw {
			if urlutil.Skippable(l.URL) {
				continue
			}
			full, err := urlutil.Resolve(pageURL, l.URL)
			if err != nil {
				continue
			}
			if _, dup := seen[full]; dup {
				continue
			}
			seen[full] = struct{}{}
			links = append(links, extract.Link{URL: full, Text: l.Text})
		}
		return links, true
	}

	pg, ok := sess.loadPage(ctx, pageURL, c.cfg.LinkChecker.Timeout())
	if !ok {
		return nil, false
	}
	doc, err := extract.Parse(pg.html)
	if err != nil {
		c.logger.Warn("failed to parse page", zap.String("url", pageURL), zap.Error(err))
		return nil, false
	}
	scoped, desc := extract.Scope(doc, rc.Scope)
	if desc != "full page" {
		c.logger.Info("content scope applied", zap.String("scope", desc))
	}
	return extract.Links(scoped, pageURL), true
}

func (c *LinkChecker) summarize(rec *recorder, state *linkState) {
	totalChecked, broken := state.snapshot()

	if len(broken) > 0 {
		rec.add(domain.StatusError, domain.SeverityHigh,
			fmt.Sprintf("Found %d broken anchor links across site", len(broken)),
			withDetails(map[string]any{
				"summary":       fmt.Sprintf("Checked %d anchor links, found %d broken", totalChecked, len(broken)),
				"broken_links":  preview(broken),
				"broken_count":  len(broken),
				"total_checked": totalChecked,
			}))
		return
	}

	rec.success(fmt.Sprintf("All %d anchor links are valid", totalChecked),
		withDetails(map[string]any{
			"summary":       "All anchor tag links were validated successfully",
			"total_checked": totalChecked,
		}))
}

// outcomeStatus renders a broken result's status for detail payloads: the
// numeric code when HTTP answered, else the typed failure kind.
func outcomeStatus(res fetch.Result) string {
	if res.StatusCode >= 400 {
		return strconv.Itoa(res.StatusCode)
	}
	return string(res.Kind)
}

func (c *LinkChecker) shouldIgnore(url string) bool {
	for _, p := range c.ignorePatterns {
		if p.MatchString(url) {
			return true
		}
	}
	return false
}
