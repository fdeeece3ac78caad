// cmd/worker/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/unclebandit/autoposter/internal/app"
	"github.com/unclebandit/autoposter/internal/config"
	"github.com/unclebandit/autoposter/internal/logging"
)

// The worker runs the scheduler and both queue stages without the HTTP surface.
func main() {
	config.LoadEnv(nil)
	cfg := config.Load()
	cfg.RunPipeline = true
	logger := logging.NewLoggerWithService("autoposter-worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to start worker")
	}
	defer a.Close()

	logger.WithField("windows", cfg.Windows).Info("Worker running, waiting for windows...")
	if err := a.RunPipeline(ctx); err != nil {
		logger.WithError(err).Error("Worker exited with error")
		return
	}
	logger.Info("Worker stopped")
}
