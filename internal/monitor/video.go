package monitor

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"site-checker/internal/config"
	"site-checker/internal/domain"
	"site-checker/internal/extract"
	"site-checker/internal/fetch"
	"site-checker/internal/urlutil"
)

// VideoChecker verifies embedded videos on the configured pages. YouTube and
// Vimeo embeds are checked against the provider oEmbed endpoint, which reports
// deleted, private and embedding-disabled videos without loading the player.
// Other embeds fall back to a plain availability probe.
type VideoChecker struct {
	cfg     *config.Config
	fetcher fetch.Fetcher
	drivers fetch.DriverFactory
	logger  *zap.Logger

	// oEmbed endpoints, overridable in tests.
	youtubeOEmbed string
	vimeoOEmbed   string
}

func NewVideoChecker(cfg *config.Config, fetcher fetch.Fetcher, drivers fetch.DriverFactory, logger *zap.Logger) *VideoChecker {
	return &VideoChecker{
		cfg:           cfg,
		fetcher:       fetcher,
		drivers:       drivers,
		logger:        logger,
		youtubeOEmbed: "https://www.youtube.com/oembed",
		vimeoOEmbed:   "https://vimeo.com/api/oembed.json",
	}
}

func (c *VideoChecker) Name() string { return "videos" }

var youtubeStatusMessages = map[int]string{
	401: "Video is private or restricted",
	403: "Video embedding disabled",
	404: "Video not found or deleted",
}

var vimeoStatusMessages = map[int]string{
	403: "Video is private",
	404: "Video not found",
}

type videoItem struct {
	URL           string `json:"url"`
	Provider      string `json:"provider"`
	VideoID       string `json:"video_id,omitempty"`
	Status        string `json:"status,omitempty"`
	StatusMessage string `json:"status_message,omitempty"`
	FoundOnPage   string `json:"found_on_page"`
}

type videoState struct {
	checked map[string]struct{}
	broken  []videoItem
}

func (c *VideoChecker) Run(ctx context.Context, rc *domain.RunContext) []domain.Finding {
	rec := newRecorder(c.Name(), c.logger)
	state := &videoState{checked: make(map[string]struct{})}

	c.logger.Info("starting video checker")

	sess := newSession(ctx, c.fetcher, c.drivers, rc.UseBrowser, rc.Headless, c.logger)
	defer sess.close()

	pages := rc.Pages
	if len(pages) == 0 {
		pages = c.cfg.CriticalPages
	}

	for _, pagePath := range pages {
		if cancelled(ctx) {
			c.logger.Warn("video check cancelled")
			break
		}
		c.checkPage(ctx, rc, rec, sess, state, pagePath)
	}

	c.summarize(rec, state)
	return rec.findings
}

func (c *VideoChecker) checkPage(ctx context.Context, rc *domain.RunContext, rec *recorder, sess *session,
	state *videoState, pagePath string) {

	pageURL := urlutil.FullURL(c.cfg.Website.URL, pagePath)

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("video check panicked", zap.String("page", pagePath), zap.Any("panic", r))
			rec.add(domain.StatusError, domain.SeverityHigh,
				fmt.Sprintf("Failed to check videos on %s: %v", pagePath, r),
				withURL(pageURL))
		}
	}()

	videos, ok := c.collectVideos(ctx, rc, sess, pageURL)
	if !ok {
		if !cancelled(ctx) {
			rec.add(domain.StatusWarning, domain.SeverityMedium,
				fmt.Sprintf("Could not load page %s, skipping video checks", pagePath),
				withURL(pageURL))
		}
		return
	}

	if len(videos) == 0 {
		rec.add(domain.StatusSuccess, domain.SeverityInfo,
			fmt.Sprintf("No videos found on %s", pagePath),
			withURL(pageURL))
		return
	}

	c.logger.Info("checking videos", zap.String("page", pagePath), zap.Int("count", len(videos)))

	var pageBroken []videoItem
	checkedOnPage := 0

	for _, v := range videos {
		if cancelled(ctx) {
			c.logger.Warn("video check cancelled")
			break
		}
		key := v.Provider + "|" + v.URL
		if _, dup := state.checked[key]; dup {
			continue
		}
		state.checked[key] = struct{}{}
		checkedOnPage++

		if item, bad := c.checkVideo(ctx, v, pagePath); bad {
			pageBroken = append(pageBroken, item)
			state.broken = append(state.broken, item)
		}
	}

	if len(pageBroken) > 0 {
		rec.add(domain.StatusError, domain.SeverityHigh,
			fmt.Sprintf("%d broken videos on %s", len(pageBroken), pagePath),
			withURL(pageURL),
			withDetails(map[string]any{
				"broken_videos": pageBroken,
				"total_videos":  len(videos),
			}))
		return
	}

	rec.success(fmt.Sprintf("All %d videos valid on %s", checkedOnPage, pagePath),
		withURL(pageURL),
		withDetails(map[string]any{
			"total_videos": len(videos),
			"checked":      checkedOnPage,
		}))
}

// checkVideo returns the broken item and true when the video fails its check.
func (c *VideoChecker) checkVideo(ctx context.Context, v extract.Video, pagePath string) (videoItem, bool) {
	timeout := c.cfg.VideoChecker.Timeout()

	switch v.Provider {
	case "youtube", "youtube_link":
		watchURL := "https://www.youtube.com/watch?v=" + v.ID
		endpoint := c.youtubeOEmbed + "?url=" + url.QueryEscape(watchURL) + "&format=json"
		res := c.fetcher.Probe(ctx, endpoint, timeout)
		if res.OK {
			return videoItem{}, false
		}
		msg := youtubeStatusMessages[res.StatusCode]
		if msg == "" {
			msg = res.Message
		}
		return videoItem{
			URL: v.URL, Provider: v.Provider, VideoID: v.ID,
			Status: outcomeStatus(res), StatusMessage: msg, FoundOnPage: pagePath,
		}, true

	case "vimeo":
		endpoint := c.vimeoOEmbed + "?url=" + url.QueryEscape("https://vimeo.com/"+v.ID)
		res := c.fetcher.Probe(ctx, endpoint, timeout)
		if res.OK {
			return videoItem{}, false
		}
		msg := vimeoStatusMessages[res.StatusCode]
		if msg == "" {
			msg = res.Message
		}
		return videoItem{
			URL: v.URL, Provider: v.Provider, VideoID: v.ID,
			Status: outcomeStatus(res), StatusMessage: msg, FoundOnPage: pagePath,
		}, true

	case "html5":
		res := c.fetcher.Head(ctx, v.EmbedURL, timeout)
		if !res.OK {
			return videoItem{
				URL: v.URL, Provider: v.Provider,
				Status: outcomeStatus(res), StatusMessage: res.Message, FoundOnPage: pagePath,
			}, true
		}
		if res.ContentType != "" && !strings.Contains(strings.ToLower(res.ContentType), "video") {
			return videoItem{
				URL: v.URL, Provider: v.Provider,
				Status:        string(domain.OutcomeInvalidContentType),
				StatusMessage: "Not a video: " + res.ContentType,
				FoundOnPage:   pagePath,
			}, true
		}
		return videoItem{}, false

	default:
		res := c.fetcher.Head(ctx, v.EmbedURL, timeout)
		if res.OK {
			return videoItem{}, false
		}
		return videoItem{
			URL: v.URL, Provider: v.Provider,
			Status: outcomeStatus(res), StatusMessage: res.Message, FoundOnPage: pagePath,
		}, true
	}
}

func (c *VideoChecker) collectVideos(ctx context.Context, rc *domain.RunContext, sess *session, pageURL string) ([]extract.Video, bool) {
	if sess.driver != nil {
		nav, err := sess.driver.Navigate(ctx, pageURL)
		if err != nil || !nav.OK {
			c.logger.Warn("page failed to load in browser", zap.String("url", pageURL), zap.Error(err))
			return nil, false
		}
		html, err := sess.driver.PageSource(ctx)
		if err != nil {
			c.logger.Warn("failed to read page source from browser", zap.String("url", pageURL), zap.Error(err))
			return nil, false
		}
		doc, err := extract.Parse(html)
		if err != nil {
			c.logger.Warn("failed to parse page", zap.String("url", pageURL), zap.Error(err))
			return nil, false
		}
		scoped, _ := extract.Scope(doc, rc.Scope)
		return extract.Videos(scoped, pageURL), true
	}

	pg, ok := sess.loadPage(ctx, pageURL, c.cfg.VideoChecker.Timeout())
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
	return extract.Videos(scoped, pageURL), true
}

func (c *VideoChecker) summarize(rec *recorder, state *videoState) {
	if len(state.broken) > 0 {
		rec.add(domain.StatusError, domain.SeverityHigh,
			fmt.Sprintf("Found %d broken videos across site", len(state.broken)),
			withDetails(map[string]any{
				"summary":       fmt.Sprintf("Checked %d videos, found %d broken", len(state.checked), len(state.broken)),
				"broken_videos": preview(state.broken),
				"broken_count":  len(state.broken),
				"total_checked": len(state.checked),
			}))
		return
	}

	if len(state.checked) == 0 {
		rec.add(domain.StatusSuccess, domain.SeverityInfo, "No videos found on checked pages")
		return
	}

	rec.success(fmt.Sprintf("All %d videos are valid", len(state.checked)),
		withDetails(map[string]any{
			"summary":       "All videos verified successfully",
			"total_checked": len(state.checked),
		}))
}
