package alert

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"site-checker/internal/config"
	"site-checker/internal/domain"
)

// Module exports the alert module
var Module = fx.Options(
	fx.Provide(NewAlerter),
)

func NewAlerter(cfg *config.Config, logger *zap.Logger) domain.Alerter {
	return NewWebhook(cfg.Alerts.Webhook.URL, logger)
}
