package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bluerov-ops/rovprep/internal/bootstrap"
	"github.com/bluerov-ops/rovprep/internal/history"
	"github.com/bluerov-ops/rovprep/internal/runtime"
	"github.com/bluerov-ops/rovprep/internal/viper"
)

func historyCmd() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded provisioning runs",
		Long:  "This command lists the provisioning runs recorded on this machine, newest first.",
		Args:  cobra.NoArgs,
		RunE:  historyRunE,
	}

	historyCmd.Flags().IntP("limit", "n", 10, "How many runs to list. Zero lists every run.")
	historyCmd.Flags().Bool("steps", false, "Show the steps of every run.")

	return historyCmd
}

func historyRunE(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := runtime.NewConfigFrom(*viper.Instance())
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	limit, _ := cmd.Flags().GetInt("limit")
	withSteps, _ := cmd.Flags().GetBool("steps")

	ledger, err := history.Open(ctx, cfg.HistoryPath())
	if err != nil {
		return err
	}
	defer ledger.Close()

	runs, err := ledger.List(ctx, limit)
	if err != nil {
		return err
	}

	return printRuns(cmd.OutOrStdout(), runs, withSteps)
}

// printRuns writes runs as a table to w.
func printRuns(w io.Writer, runs []history.Run, withSteps bool) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tRESULT\tWARNINGS\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n",
			r.ID, r.Started.Local().Format(time.DateTime), runResult(r), countWarnings(r.Steps), r.Error)
		if withSteps {
			for _, s := range r.Steps {
				fmt.Fprintf(tw, "\t  %s\t%s\t\t%s\n", s.Name, s.Status, s.Message)
			}
		}
	}
	return tw.Flush()
}

func runResult(r history.Run) string {
	if r.Completed {
		return "completed"
	}
	return "stopped"
}

func countWarnings(steps []bootstrap.StepResult) int {
	return len(bootstrap.Results{Steps: steps}.Warnings())
}
