package app

import (
	"context"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"site-checker/internal/config"
	"site-checker/internal/runner"
)

type hookParams struct {
	fx.In

	Logger     *zap.Logger
	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Config     *config.Config
	Runner     *runner.Runner
	Scheduler  runner.Scheduler
}

// registerHooks wires the run loop: with the scheduler enabled the
// application keeps running checks on the configured interval; otherwise it
// performs a single run and shuts down.
func registerHooks(p hookParams) {
	runCtx, cancel := context.WithCancel(context.Background())

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p.Logger.Info("starting application",
				zap.String("target", p.Config.Website.URL),
				zap.Bool("scheduled", p.Config.Scheduler.Enabled))

			if addr := os.Getenv("METRICS_ADDR"); addr != "" {
				startMetricsServer(addr, p.Logger)
			}

			go func() {
				if p.Config.Scheduler.Enabled {
					p.Scheduler.Start(runCtx)
					return
				}
				if _, err := p.Runner.RunAll(runCtx); err != nil {
					p.Logger.Error("check run failed", zap.Error(err))
				}
				if err := p.Shutdowner.Shutdown(); err != nil {
					p.Logger.Error("failed to shut down", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.Logger.Info("stopping application")
			cancel()
			return p.Scheduler.Stop()
		},
	})
}

func startMetricsServer(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}
