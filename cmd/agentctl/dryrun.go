package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unclebandit/autoposter/internal/service"
)

func newDryRunCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "dry-run",
		Short: "Run selection, caption generation and the duplicate check without posting",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := open(ctx, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			p, err := rt.Preview(ctx)
			if err != nil {
				return err
			}
			if output == "json" {
				return printJSON(cmd.OutOrStdout(), p)
			}

			out := cmd.OutOrStdout()
			switch p.Outcome {
			case service.OutcomeCircuitOpen:
				fmt.Fprintln(out, "Circuit is open or the global kill switch is on. Aborting.")
				return nil
			case service.OutcomeNoCandidate:
				fmt.Fprintln(out, "No eligible candidates found for posting.")
				return nil
			}

			fmt.Fprintf(out, "Selected candidate: [%s] %s\n", p.Candidate.ID, p.Candidate.Title)
			fmt.Fprintf(out, "Generated text (%s): %q\n", p.Style, p.Text)
			if p.Fallback {
				fmt.Fprintf(out, "Template fallback: %s\n", p.Reason)
			}
			if p.Duplicate {
				fmt.Fprintln(out, "Candidate rejected by duplicate guard.")
				return nil
			}
			fmt.Fprintln(out, "Passed duplicate guard.")
			fmt.Fprintf(out, "Tracking link: %s\n", p.TrackingLink)
			fmt.Fprintf(out, "Final post content:\n%s\n", p.Body)
			return nil
		},
	}
}
