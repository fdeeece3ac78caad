package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/unclebandit/autoposter/internal/queue"
)

func newDLQCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and retry jobs that exhausted their attempts",
	}
	cmd.AddCommand(newDLQListCmd(open))
	cmd.AddCommand(newDLQRetryCmd(open))
	return cmd
}

func validateQueue(name string) error {
	if name != queue.SelectionQueue && name != queue.PublishQueue {
		return fmt.Errorf("invalid queue %q: must be %q or %q", name, queue.SelectionQueue, queue.PublishQueue)
	}
	return nil
}

func newDLQListCmd(open opener) *cobra.Command {
	var (
		queueName string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List failed jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateQueue(queueName); err != nil {
				return err
			}
			ctx := cmd.Context()
			rt, err := open(ctx, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			jobs, err := rt.Broker.ListFailed(ctx, queueName, limit)
			if err != nil {
				return err
			}
			if output == "json" {
				return printJSON(cmd.OutOrStdout(), jobs)
			}
			if len(jobs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No failed %s jobs\n", queueName)
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tKEY\tATTEMPTS\tFAILED AT\tLAST ERROR")
			for _, j := range jobs {
				fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%s\n",
					j.ID, j.Key, j.Attempts, j.MaxAttempts, j.UpdatedAt.Format(time.RFC3339), truncate(j.LastError, 80))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&queueName, "queue", queue.PublishQueue, "queue to inspect: selection|publish")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of jobs to show")
	return cmd
}

func newDLQRetryCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>...",
		Short: "Move failed jobs back to the queue with a fresh attempt budget",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := open(ctx, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			for _, id := range args {
				if err := rt.Broker.Requeue(ctx, id); err != nil {
					return fmt.Errorf("requeue %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %s\n", id)
			}
			return nil
		},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
