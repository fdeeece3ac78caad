// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/autoposter/internal/app"
	"github.com/unclebandit/autoposter/internal/config"
	"github.com/unclebandit/autoposter/internal/logging"
)

func main() {
	config.LoadEnv(nil)
	cfg := config.Load()
	logger := logging.NewLoggerWithService("autoposter-server", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to start")
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("port", cfg.Port).Info("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.RunPipeline {
		g.Go(func() error { return a.RunPipeline(gctx) })
	} else {
		logger.Info("RUN_PIPELINE=false, serving the API only")
	}

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("Server exited with error")
		return
	}
	logger.Info("Server stopped")
}
