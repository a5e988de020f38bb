package storage

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"site-checker/internal/config"
	"site-checker/internal/domain"
)

// Module exports the storage module
var Module = fx.Options(
	fx.Provide(NewSink),
)

// NewSink opens the configured database and closes it on shutdown.
func NewSink(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (domain.ResultSink, error) {
	sink, err := New(context.Background(), cfg.Database.Path, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return sink.Close()
		},
	})
	return sink, nil
}
