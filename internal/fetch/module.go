package fetch

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"site-checker/internal/config"
)

// Module exports the fetch module
var Module = fx.Options(
	fx.Provide(NewHTTPFetcher),
	fx.Provide(NewDriverFactory),
)

// NewDriverFactory wires the configured browser-automation endpoint into a
// per-run driver constructor.
func NewDriverFactory(cfg *config.Config, logger *zap.Logger) DriverFactory {
	return func(headless bool) Driver {
		return NewRemoteDriver(cfg.Browser.DriverURL, headless, logger)
	}
}
