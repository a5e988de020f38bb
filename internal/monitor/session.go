package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"site-checker/internal/fetch"
)

// session holds the per-run fetch state of one checker: the plain HTTP
// fetcher plus, when requested and startable, a browser driver. Browser
// startup failure fails open to plain HTTP rather than aborting the run.
type session struct {
	fetcher fetch.Fetcher
	driver  fetch.Driver
	logger  *zap.Logger
}

func newSession(ctx context.Context, fetcher fetch.Fetcher, factory fetch.DriverFactory,
	useBrowser, headless bool, logger *zap.Logger) *session {

	s := &session{fetcher: fetcher, logger: logger}
	if !useBrowser || factory == nil {
		return s
	}

	driver := factory(headless)
	if err := driver.Start(ctx); err != nil {
		logger.Warn("browser failed to start, falling back to HTTP requests", zap.Error(err))
		return s
	}
	mode := "headless"
	if !headless {
		mode = "visible"
	}
	logger.Info("browser started", zap.String("mode", mode))
	s.driver = driver
	return s
}

// close stops the browser driver when one was started. Always deferred, so
// teardown happens even when a page loop panics.
func (s *session) close() {
	if s.driver == nil {
		return
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.driver.Stop(stopCtx); err != nil {
		s.logger.Warn("failed to stop browser", zap.Error(err))
	}
	s.driver = nil
}

// page is a fetched page ready for extraction.
type page struct {
	html    string
	elapsed time.Duration
}

// loadPage fetches a page through the browser when active, otherwise over
// plain HTTP. ok is false when the page could not be loaded; the caller
// skips the page and moves on.
func (s *session) loadPage(ctx context.Context, url string, timeout time.Duration) (page, bool) {
	if s.driver != nil {
		nav, err := s.driver.Navigate(ctx, url)
		if err != nil || !nav.OK {
			s.logger.Warn("page failed to load in browser", zap.String("url", url), zap.Error(err))
			return page{}, false
		}
		source, err := s.driver.PageSource(ctx)
		if err != nil {
			s.logger.Warn("failed to read page source", zap.String("url", url), zap.Error(err))
			return page{}, false
		}
		return page{html: source, elapsed: nav.Elapsed}, true
	}

	res := s.fetcher.Fetch(ctx, url, timeout)
	if !res.OK || res.StatusCode != 200 {
		s.logger.Warn("page fetch failed",
			zap.String("url", url),
			zap.Int("status", res.StatusCode),
			zap.String("kind", string(res.Kind)))
		return page{}, false
	}
	return page{html: string(res.Body), elapsed: res.Elapsed}, true
}
