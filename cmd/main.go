package main

import (
	"context"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"site-checker/app"
	"site-checker/internal/common"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	application := app.NewApplication(
		common.WithLogger(logger),
		common.WithEnv(os.Getenv("APP_ENV")),
	)

	// Start with background context
	if err := application.Start(context.Background()); err != nil {
		logger.Fatal("failed to start application", zap.Error(err))
	}

	// Wait for a shutdown signal or a finished one-shot run
	sig := <-application.Wait()
	if sig.Signal != nil {
		logger.Info("received shutdown signal", zap.String("signal", sig.Signal.String()))
	} else {
		logger.Info("run complete, shutting down")
	}

	// Stop with timeout
	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Stop(stopCtx); err != nil {
		logger.Fatal("failed to stop application gracefully", zap.Error(err))
	}
}
