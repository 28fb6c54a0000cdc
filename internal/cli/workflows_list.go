package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/webrunhq/webrun/internal/tui"
)

// newWorkflowsListCmd creates the workflows list command.
func newWorkflowsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List workflows",
		Long: `List every workflow on the server, newest first, with its trigger,
status, and most recent run.

Examples:
  # Table view
  webrun workflows list

  # Full definitions as JSON
  webrun workflows list -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorkflowsList(cmd.Context(), cmd, os.Stdout)
		},
	}
}

// runWorkflowsList executes the workflows list command logic.
func runWorkflowsList(ctx context.Context, cmd *cobra.Command, w io.Writer) error {
	outputFormat := cmd.Flag("output").Value.String()
	out := tui.NewOutput(w, outputFormat)

	client := clientFromCmd(cmd)
	workflows, err := client.ListWorkflows(ctx)
	if err != nil {
		return err
	}

	if outputFormat == OutputJSON {
		return out.JSON(workflows)
	}

	displayWorkflowList(out, workflows)
	return nil
}

// displayWorkflowList renders workflows in table format.
func displayWorkflowList(out tui.Output, workflows []workflowRecord) {
	if len(workflows) == 0 {
		out.Info("No workflows found. Create one with 'webrun workflows create -f <file>'.")
		return
	}

	headers := []string{"ID", "NAME", "TRIGGER", "STATUS", "STEPS", "RUNS", "LAST RUN"}
	rows := make([][]string, 0, len(workflows))
	for _, wf := range workflows {
		lastRun := "-"
		if wf.LastRun != nil {
			lastRun = fmt.Sprintf("%s (%s)", wf.LastRun.Status, tui.RelativeTime(wf.LastRun.CreatedAt))
		}
		rows = append(rows, []string{
			shortID(wf.ID),
			tui.Truncate(wf.Name, 32),
			string(wf.TriggerType),
			string(wf.Status),
			strconv.Itoa(len(wf.Steps)),
			strconv.Itoa(wf.RunCount),
			lastRun,
		})
	}

	out.Table(headers, rows)
	out.Info("")
	out.Info(fmt.Sprintf("%d workflow(s)", len(workflows)))
}
