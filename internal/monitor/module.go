package monitor

import (
	"go.uber.org/fx"

	"site-checker/internal/domain"
)

// Module exports the monitor module
var Module = fx.Options(
	fx.Provide(NewUptimeChecker),
	fx.Provide(NewFormChecker),
	fx.Provide(NewLinkChecker),
	fx.Provide(NewImageChecker),
	fx.Provide(NewVideoChecker),
	fx.Provide(NewWordPressChecker),
	fx.Provide(NewPerformanceChecker),
	fx.Provide(NewContentChecker),
	fx.Provide(NewSEOChecker),
	fx.Provide(NewMonitors),
)

// NewMonitors assembles the monitors in execution order. Uptime runs first so
// a dead site is reported before the content checkers pile on secondary
// failures.
func NewMonitors(
	uptime *UptimeChecker,
	forms *FormChecker,
	links *LinkChecker,
	images *ImageChecker,
	videos *VideoChecker,
	wordpress *WordPressChecker,
	performance *PerformanceChecker,
	content *ContentChecker,
	seo *SEOChecker,
) []domain.Monitor {
	return []domain.Monitor{uptime, forms, links, images, videos, wordpress, performance, content, seo}
}
