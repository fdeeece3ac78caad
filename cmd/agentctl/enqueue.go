package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/unclebandit/autoposter/internal/model"
	"github.com/unclebandit/autoposter/internal/queue"
	"github.com/unclebandit/autoposter/internal/scheduler"
)

func newEnqueueCmd(open opener) *cobra.Command {
	var (
		window  int
		attempt int
		at      string
	)
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Enqueue a selection job for a window outside the schedule",
		Long: "Enqueue a selection job keyed like a scheduled one. Re-running a window that already " +
			"has a job needs a higher --attempt to get a fresh key.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if window < 0 {
				return fmt.Errorf("--window must not be negative")
			}
			if attempt < 0 {
				return fmt.Errorf("--attempt must not be negative")
			}
			ctx := cmd.Context()
			rt, err := open(ctx, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			when := time.Now().In(rt.Location)
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at %q: %w", at, err)
				}
				when = parsed.In(rt.Location)
			}

			key := scheduler.JobKey(when, window, attempt)
			enqueued, err := rt.Broker.Enqueue(ctx, queue.Request{
				Queue:       queue.SelectionQueue,
				Key:         key,
				MaxAttempts: queue.DefaultMaxAttempts(queue.SelectionQueue),
				Payload: model.SelectionPayload{
					JobKey:        key,
					WindowIndex:   window,
					ScheduledTime: when,
				},
			})
			if err != nil {
				return err
			}

			if output == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]any{"job_key": key, "enqueued": enqueued})
			}
			if !enqueued {
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s already exists, nothing enqueued\n", key)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Enqueued selection job %s\n", key)
			return nil
		},
	}
	cmd.Flags().IntVar(&window, "window", 0, "window index the job is keyed under")
	cmd.Flags().IntVar(&attempt, "attempt", 0, "manual attempt number used in the job key")
	cmd.Flags().StringVar(&at, "at", "", "scheduled time (RFC3339), defaults to now")
	return cmd
}
