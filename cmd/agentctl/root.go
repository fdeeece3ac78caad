package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/unclebandit/autoposter/internal/app"
	"github.com/unclebandit/autoposter/internal/config"
	"github.com/unclebandit/autoposter/internal/db"
	"github.com/unclebandit/autoposter/internal/logging"
	"github.com/unclebandit/autoposter/internal/queue"
	"github.com/unclebandit/autoposter/internal/service"
)

// runtime is what the commands operate on. Preview is only set when the command asked for it.
type runtime struct {
	Broker   queue.Broker
	Location *time.Location
	Preview  func(ctx context.Context) (*service.Preview, error)
	Close    func()
}

type opener func(ctx context.Context, withPreview bool) (*runtime, error)

var output string

func newRootCmd(open opener) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "agentctl",
		Short:         "Operate the autoposter pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "output format: json|text")

	rootCmd.AddCommand(newEnqueueCmd(open))
	rootCmd.AddCommand(newDLQCmd(open))
	rootCmd.AddCommand(newDryRunCmd(open))
	return rootCmd
}

// openRuntime connects to the configured store. The preview path builds the full pipeline in dry-run mode.
func openRuntime(ctx context.Context, withPreview bool) (*runtime, error) {
	config.LoadEnv(nil)
	cfg := config.Load()
	logger := logging.NewLoggerWithService("agentctl", cfg.LogLevel)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	if withPreview {
		cfg.DryRun = true
		a, err := app.Build(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return &runtime{Broker: a.Broker, Location: loc, Preview: a.Selection.Preview, Close: a.Close}, nil
	}

	conn, err := db.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &runtime{
		Broker:   queue.NewPostgresBroker(conn),
		Location: loc,
		Close:    func() { conn.Close() },
	}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
