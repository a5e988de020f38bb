package app

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"site-checker/internal/alert"
	"site-checker/internal/common"
	"site-checker/internal/config"
	"site-checker/internal/fetch"
	"site-checker/internal/metrics"
	"site-checker/internal/monitor"
	"site-checker/internal/runner"
	"site-checker/internal/storage"
)

type Application struct {
	app    *fx.App
	logger *zap.Logger
}

func NewApplication(opts ...common.Option) *Application {
	options := &common.ServiceOptions{}
	for _, opt := range opts {
		opt(options)
	}

	// Ensure required options are set
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}

	app := &Application{
		logger: options.Logger,
	}

	// Build fx application
	app.app = fx.New(
		// Core modules
		config.Module,
		metrics.Module,
		fetch.Module,
		monitor.Module,
		storage.Module,
		alert.Module,
		runner.Module,

		// Provide base dependencies
		fx.Provide(
			func() *zap.Logger { return options.Logger },
			func() string { return options.Env },
		),

		// Configure fx
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),

		// Set timeouts
		fx.StopTimeout(30*time.Second),
		fx.StartTimeout(30*time.Second),

		// Register lifecycle hooks
		fx.Invoke(registerHooks),
	)

	return app
}

func (a *Application) Start(ctx context.Context) error {
	return a.app.Start(ctx)
}

func (a *Application) Stop(ctx context.Context) error {
	return a.app.Stop(ctx)
}

func (a *Application) Wait() <-chan fx.ShutdownSignal {
	return a.app.Wait()
}
