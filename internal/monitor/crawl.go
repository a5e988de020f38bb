package monitor

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"site-checker/internal/extract"
	"site-checker/internal/urlutil"
)

// crawlSite walks the site breadth-first from the base URL, bounded by
// max_depth and max_links, fetching each level with a bounded pool so the
// target server is never hit by more than the configured number of
// simultaneous connections. External links get a best-effort HEAD only;
// their failures are swallowed and never abort the crawl.
func (c *LinkChecker) crawlSite(ctx context.Context, state *linkState) {
	type crawlItem struct {
		url   string
		depth int
	}

	maxLinks := c.cfg.LinkChecker.MaxLinks
	maxDepth := c.cfg.LinkChecker.MaxDepth
	checkExternal := c.cfg.LinkChecker.CheckExternal != nil && *c.cfg.LinkChecker.CheckExternal

	crawled := make(map[string]struct{})
	frontier := []crawlItem{{url: c.cfg.Website.URL, depth: 0}}

	c.logger.Info("starting site crawl",
		zap.Int("max_depth", maxDepth),
		zap.Int("max_links", maxLinks))

	for len(frontier) > 0 {
		if cancelled(ctx) {
			c.logger.Warn("site crawl cancelled")
			return
		}
		if n, _ := state.snapshot(); n >= maxLinks {
			c.logger.Info("site crawl reached link limit", zap.Int("checked", n))
			return
		}

		var (
			mu   sync.Mutex
			next []crawlItem
		)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.cfg.LinkChecker.Concurrency)

		for _, item := range frontier {
			if item.depth > maxDepth {
				continue
			}
			if _, done := crawled[item.url]; done {
				continue
			}
			crawled[item.url] = struct{}{}
			if c.shouldIgnore(item.url) {
				continue
			}

			item := item
			g.Go(func() error {
				if cancelled(gctx) {
					return nil
				}
				if n, _ := state.snapshot(); n >= maxLinks {
					return nil
				}

				links := c.crawlPage(gctx, state, item.url)
				for _, link := range links {
					if urlutil.IsInternal(link.URL, c.cfg.Website.URL) {
						mu.Lock()
						next = append(next, crawlItem{url: link.URL, depth: item.depth + 1})
						mu.Unlock()
					} else if checkExternal {
						c.checkExternalLink(gctx, state, link.URL, item.url)
					}
				}
				return nil
			})
		}

		g.Wait()
		frontier = next
	}
}

// crawlPage fetches one internal page, records its health, and returns the
// links found on it when it served HTML. A page that was already verified as
// an anchor target is still fetched here: the crawl needs its body to keep
// walking, it just must not be counted or reported twice.
func (c *LinkChecker) crawlPage(ctx context.Context, state *linkState, url string) []extract.Link {
	firstVisit := !state.alreadyChecked(url)

	res := c.fetcher.Fetch(ctx, url, c.cfg.LinkChecker.Timeout())
	if !res.OK {
		if firstVisit {
			state.addBroken(brokenItem{
				URL:           url,
				Status:        outcomeStatus(res),
				StatusMessage: res.Message,
				FoundOnPage:   "crawl",
			})
		}
		return nil
	}

	if !strings.Contains(res.ContentType, "text/html") {
		return nil
	}
	doc, err := extract.Parse(string(res.Body))
	if err != nil {
		c.logger.Debug("failed to parse crawled page", zap.String("url", url), zap.Error(err))
		return nil
	}
	return extract.Links(doc.Selection, url)
}

func (c *LinkChecker) checkExternalLink(ctx context.Context, state *linkState, url, source string) {
	if state.alreadyChecked(url) {
		return
	}
	res := c.fetcher.Head(ctx, url, c.cfg.LinkChecker.Timeout())
	if res.StatusCode >= 400 {
		state.addBroken(brokenItem{
			URL:           url,
			Status:        outcomeStatus(res),
			StatusMessage: res.Message,
			FoundOnPage:   source,
		})
	}
	// Transport-level failures on external hosts are swallowed: external
	// link rot is lower priority than internal and must never stop the crawl.
}
