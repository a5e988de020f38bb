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

// ImageChecker verifies that every image referenced by the configured pages
// loads, serves an image content type, loads within the slow threshold, and
// carries alt text when alt checking is enabled.
type ImageChecker struct {
	cfg     *config.Config
	fetcher fetch.Fetcher
	drivers fetch.DriverFactory
	logger  *zap.Logger
}

func NewImageChecker(cfg *config.Config, fetcher fetch.Fetcher, drivers fetch.DriverFactory, logger *zap.Logger) *ImageChecker {
	return &ImageChecker{cfg: cfg, fetcher: fetcher, drivers: drivers, logger: logger}
}

func (c *ImageChecker) Name() string { return "images" }

type imageItem struct {
	URL           string  `json:"url"`
	Alt           string  `json:"alt,omitempty"`
	Status        string  `json:"status,omitempty"`
	StatusMessage string  `json:"status_message,omitempty"`
	LoadTimeMS    float64 `json:"load_time_ms"`
	ContentType   string  `json:"content_type,omitempty"`
	FoundOnPage   string  `json:"found_on_page"`
}

type imageState struct {
	checked    map[string]struct{}
	broken     []imageItem
	slow       []imageItem
	missingAlt []imageItem
}

func (c *ImageChecker) Run(ctx context.Context, rc *domain.RunContext) []domain.Finding {
	rec := newRecorder(c.Name(), c.logger)
	state := &imageState{checked: make(map[string]struct{})}

	c.logger.Info("starting image checker")

	sess := newSession(ctx, c.fetcher, c.drivers, rc.UseBrowser, rc.Headless, c.logger)
	defer sess.close()

	pages := rc.Pages
	if len(pages) == 0 {
		pages = c.cfg.CriticalPages
	}
	maxPerPage := rc.MaxPerPage
	if maxPerPage == 0 {
		maxPerPage = c.cfg.ImageChecker.MaxImagesPerPage
	}

	for _, pagePath := range pages {
		if cancelled(ctx) {
			c.logger.Warn("image check cancelled")
			break
		}
		c.checkPage(ctx, rc, rec, sess, state, pagePath, maxPerPage)
	}

	c.summarize(rec, state)
	return rec.findings
}

func (c *ImageChecker) checkPage(ctx context.Context, rc *domain.RunContext, rec *recorder, sess *session,
	state *imageState, pagePath string, maxPerPage int) {

	pageURL := urlutil.FullURL(c.cfg.Website.URL, pagePath)

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("image check panicked", zap.String("page", pagePath), zap.Any("panic", r))
			rec.add(domain.StatusError, domain.SeverityHigh,
				fmt.Sprintf("Failed to check images on %s: %v", pagePath, r),
				withURL(pageURL))
		}
	}()

	images, ok := c.collectImages(ctx, rc, sess, pageURL)
	if !ok {
		if !cancelled(ctx) {
			rec.add(domain.StatusWarning, domain.SeverityMedium,
				fmt.Sprintf("Could not load page %s, skipping image checks", pagePath),
				withURL(pageURL))
		}
		return
	}

	totalFound := len(images)
	if maxPerPage > 0 && len(images) > maxPerPage {
		images = images[:maxPerPage]
		c.logger.Info("limiting images on page",
			zap.String("page", pagePath),
			zap.Int("limit", maxPerPage),
			zap.Int("total", totalFound))
	}

	c.logger.Info("checking images", zap.String("page", pagePath), zap.Int("count", len(images)))

	checkAlt := c.cfg.ImageChecker.CheckAltTags != nil && *c.cfg.ImageChecker.CheckAltTags
	threshold := float64(c.cfg.ImageChecker.SlowThresholdMS)

	var (
		pageBroken     []imageItem
		pageSlow       []imageItem
		pageMissingAlt []imageItem
		pageValid      []imageItem
		totalTime      float64
	)

	for _, img := range images {
		if cancelled(ctx) {
			c.logger.Warn("image check cancelled")
			break
		}
		if _, dup := state.checked[img.URL]; dup {
			continue
		}
		state.checked[img.URL] = struct{}{}

		// Alt text is checked regardless of whether the image itself loads:
		// accessibility metadata and load health are independent defects.
		if checkAlt && !img.Background && img.Alt == "" {
			item := imageItem{URL: img.URL, FoundOnPage: pagePath, StatusMessage: "Missing alt attribute"}
			pageMissingAlt = append(pageMissingAlt, item)
			state.missingAlt = append(state.missingAlt, item)
		}

		res := c.fetcher.Probe(ctx, img.URL, c.cfg.ImageChecker.Timeout())
		elapsed := ms(res.Elapsed)

		switch {
		case !res.OK:
			item := imageItem{
				URL:           img.URL,
				Alt:           img.Alt,
				Status:        outcomeStatus(res),
				StatusMessage: res.Message,
				LoadTimeMS:    elapsed,
				FoundOnPage:   pagePath,
			}
			pageBroken = append(pageBroken, item)
			state.broken = append(state.broken, item)

		case res.ContentType != "" && !strings.Contains(strings.ToLower(res.ContentType), "image"):
			item := imageItem{
				URL:           img.URL,
				Alt:           img.Alt,
				Status:        string(domain.OutcomeInvalidContentType),
				StatusMessage: "Not an image: " + res.ContentType,
				LoadTimeMS:    elapsed,
				ContentType:   res.ContentType,
				FoundOnPage:   pagePath,
			}
			pageBroken = append(pageBroken, item)
			state.broken = append(state.broken, item)

		default:
			totalTime += elapsed
			item := imageItem{
				URL:         img.URL,
				Alt:         img.Alt,
				LoadTimeMS:  elapsed,
				ContentType: res.ContentType,
				FoundOnPage: pagePath,
			}
			pageValid = append(pageValid, item)
			if elapsed > threshold {
				pageSlow = append(pageSlow, item)
				state.slow = append(state.slow, item)
			}
		}
	}

	avgTime := 0.0
	if len(pageValid) > 0 {
		avgTime = totalTime / float64(len(pageValid))
	}

	if len(pageBroken) > 0 {
		rec.add(domain.StatusError, domain.SeverityHigh,
			fmt.Sprintf("%d broken images on %s", len(pageBroken), pagePath),
			withURL(pageURL),
			withDetails(map[string]any{
				"broken_images": pageBroken,
				"total_images":  totalFound,
			}))
	}

	if len(pageSlow) > 0 {
		rec.add(domain.StatusWarning, domain.SeverityMedium,
			fmt.Sprintf("%d slow images on %s (>%dms)", len(pageSlow), pagePath, c.cfg.ImageChecker.SlowThresholdMS),
			withURL(pageURL),
			withDetails(map[string]any{
				"slow_images":      pageSlow,
				"avg_load_time_ms": avgTime,
				"threshold_ms":     c.cfg.ImageChecker.SlowThresholdMS,
			}))
	}

	if len(pageMissingAlt) > 0 {
		rec.add(domain.StatusWarning, domain.SeverityLow,
			fmt.Sprintf("%d images missing alt text on %s", len(pageMissingAlt), pagePath),
			withURL(pageURL),
			withDetails(map[string]any{
				"missing_alt_images": pageMissingAlt,
				"seo_impact":         "Missing alt text hurts SEO and accessibility",
			}))
	}

	// Slow and missing-alt items only warn; the page still counts as healthy
	// when nothing is broken.
	if len(pageBroken) == 0 {
		rec.success(fmt.Sprintf("All %d images valid on %s (avg: %.0fms)", len(images), pagePath, avgTime),
			withURL(pageURL),
			withResponseTime(avgTime),
			withDetails(map[string]any{
				"total_images":     len(images),
				"checked":          len(pageValid),
				"avg_load_time_ms": avgTime,
			}))
	}
}

func (c *ImageChecker) collectImages(ctx context.Context, rc *domain.RunContext, sess *session, pageURL string) ([]extract.Image, bool) {
	if sess.driver != nil {
		nav, err := sess.driver.Navigate(ctx, pageURL)
		if err != nil || !nav.OK {
			c.logger.Warn("page failed to load in browser", zap.String("url", pageURL), zap.Error(err))
			return nil, false
		}
		raw, err := sess.driver.Images(ctx)
		if err != nil {
			c.logger.Warn("failed to read images from browser", zap.String("url", pageURL), zap.Error(err))
			return nil, false
		}
		var images []extract.Image
		seen := make(map[string]struct{})
		for _, img := range raw {
			if img.Src == "" || strings.HasPrefix(img.Src, "data:") {
				continue
			}
			full, err := urlutil.Resolve(pageURL, img.Src)
			if err != nil {
				continue
			}
			if _, dup := seen[full]; dup {
				continue
			}
			seen[full] = struct{}{}
			images = append(images, extract.Image{URL: full, Alt: strings.TrimSpace(img.Alt)})
		}
		return images, true
	}

	pg, ok := sess.loadPage(ctx, pageURL, c.cfg.ImageChecker.Timeout())
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
	return extract.Images(scoped, pageURL), true
}

func (c *ImageChecker) summarize(rec *recorder, state *imageState) {
	if len(state.broken) > 0 {
		rec.add(domain.StatusError, domain.SeverityHigh,
			fmt.Sprintf("Found %d broken images across site", len(state.broken)),
			withDetails(map[string]any{
				"summary":       fmt.Sprintf("Checked %d images, found %d broken", len(state.checked), len(state.broken)),
				"broken_images": preview(state.broken),
				"broken_count":  len(state.broken),
				"total_checked": len(state.checked),
			}))
	}

	if len(state.slow) > 0 {
		rec.add(domain.StatusWarning, domain.SeverityMedium,
			fmt.Sprintf("%d slow-loading images across site (>%dms)", len(state.slow), c.cfg.ImageChecker.SlowThresholdMS),
			withDetails(map[string]any{
				"slow_images":  preview(state.slow),
				"slow_count":   len(state.slow),
				"threshold_ms": c.cfg.ImageChecker.SlowThresholdMS,
			}))
	}

	if len(state.missingAlt) > 0 {
		rec.add(domain.StatusWarning, domain.SeverityLow,
			fmt.Sprintf("%d images missing alt text (SEO/accessibility issue)", len(state.missingAlt)),
			withDetails(map[string]any{
				"missing_alt_images": preview(state.missingAlt),
				"missing_alt_count":  len(state.missingAlt),
				"seo_impact":         "Alt text is important for SEO and screen readers",
			}))
	}

	if len(state.broken) == 0 {
		rec.success(fmt.Sprintf("All %d images are valid and loading properly", len(state.checked)),
			withDetails(map[string]any{
				"summary":           "All images loaded successfully",
				"total_checked":     len(state.checked),
				"missing_alt_count": len(state.missingAlt),
			}))
	}
}
