package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/webrunhq/webrun/internal/tui"
)

// runsListFlags holds command-specific flags for runs list.
type runsListFlags struct {
	workflow string
	limit    int
}

// newRunsListCmd creates the runs list command.
func newRunsListCmd() *cobra.Command {
	flags := &runsListFlags{}

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List runs",
		Long: `List runs, newest first, optionally filtered to one workflow.

Examples:
  # The 20 most recent runs
  webrun runs list

  # All runs of one workflow
  webrun runs list --workflow "Daily price check" --limit 0

  # Machine-readable history
  webrun runs list -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRunsList(cmd.Context(), cmd, os.Stdout, flags)
		},
	}

	cmd.Flags().StringVar(&flags.workflow, "workflow", "", "only runs of this workflow (ID, prefix, or name)")
	cmd.Flags().IntVar(&flags.limit, "limit", 20, "maximum runs to show (0 for all)")

	return cmd
}

// runRunsList executes the runs list command logic.
func runRunsList(ctx context.Context, cmd *cobra.Command, w io.Writer, flags *runsListFlags) error {
	outputFormat := cmd.Flag("output").Value.String()
	out := tui.NewOutput(w, outputFormat)

	client := clientFromCmd(cmd)

	workflowID := ""
	if flags.workflow != "" {
		wf, err := resolveWorkflow(ctx, client, flags.workflow)
		if err != nil {
			return err
		}
		workflowID = wf.ID
	}

	runs, err := client.ListRuns(ctx, workflowID)
	if err != nil {
		return err
	}
	if flags.limit > 0 && len(runs) > flags.limit {
		runs = runs[:flags.limit]
	}

	if outputFormat == OutputJSON {
		return out.JSON(runs)
	}

	displayRunList(out, runs)
	return nil
}

// displayRunList renders runs in table format.
func displayRunList(out tui.Output, runs []runRecord) {
	if len(runs) == 0 {
		out.Info("No runs found. Trigger one with 'webrun workflows run <workflow>'.")
		return
	}

	headers := []string{"ID", "WORKFLOW", "STATUS", "TRIGGER", "STEPS", "STARTED", "DURATION"}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			shortID(run.ID),
			tui.Truncate(runWorkflowLabel(run), 32),
			tui.RenderRunStatus(run.Status),
			string(run.Trigger),
			fmt.Sprintf("%d/%d", run.CompletedSteps, run.TotalSteps),
			runStartedLabel(run),
			runDurationLabel(run),
		})
	}

	out.Table(headers, rows)
	out.Info("")
	out.Info(fmt.Sprintf("%d run(s)", len(runs)))
}

// runWorkflowLabel prefers the workflow name, falling back to its ID.
func runWorkflowLabel(run runRecord) string {
	if run.WorkflowName != "" {
		return run.WorkflowName
	}
	return shortID(run.WorkflowID)
}

// runStartedLabel renders when the run started, or its queue time.
func runStartedLabel(run runRecord) string {
	if run.StartedAt != nil {
		return tui.RelativeTime(*run.StartedAt)
	}
	return "queued " + tui.RelativeTime(run.CreatedAt)
}

// runDurationLabel renders the run's elapsed time, "-" before it starts.
func runDurationLabel(run runRecord) string {
	if run.StartedAt == nil {
		return "-"
	}
	end := tui.DefaultClock.Now()
	if run.CompletedAt != nil {
		end = *run.CompletedAt
	}
	return tui.FormatDuration(*run.StartedAt, end)
}
