package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/domain"
	"github.com/webrunhq/webrun/internal/tui"
)

// newRunsShowCmd creates the runs show command.
func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "show <run>",
		Aliases: []string{"get", "view"},
		Short:   "Show a run and its steps",
		Long: `Show one run: status, timing, and the outcome of every step.

Failed steps display their error; extract steps display a preview of
the extracted data.

Examples:
  # By ID prefix
  webrun runs show 7c0a2f

  # Full records including screenshots (base64) as JSON
  webrun runs show 7c0a2f -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsShow(cmd.Context(), cmd, os.Stdout, args[0])
		},
	}
}

// runRunsShow executes the runs show command logic.
func runRunsShow(ctx context.Context, cmd *cobra.Command, w io.Writer, ref string) error {
	outputFormat := cmd.Flag("output").Value.String()
	out := tui.NewOutput(w, outputFormat)

	client := clientFromCmd(cmd)
	run, err := resolveRun(ctx, client, ref)
	if err != nil {
		return err
	}

	if outputFormat == OutputJSON {
		return out.JSON(run)
	}

	displayRun(out, run)
	return nil
}

// displayRun renders one run in detail format.
func displayRun(out tui.Output, run *runRecord) {
	out.Info(fmt.Sprintf("Run: %s", run.ID))
	out.Info(fmt.Sprintf("  Workflow: %s", runWorkflowLabel(*run)))
	out.Info(fmt.Sprintf("  Status:   %s", tui.RenderRunStatus(run.Status)))
	out.Info(fmt.Sprintf("  Trigger:  %s", tui.TitleCase(string(run.Trigger))))
	out.Info(fmt.Sprintf("  Steps:    %d/%d completed", run.CompletedSteps, run.TotalSteps))
	out.Info(fmt.Sprintf("  Started:  %s", runStartedLabel(*run)))
	if run.CompletedAt != nil && run.StartedAt != nil {
		out.Info(fmt.Sprintf("  Duration: %s", tui.FormatDuration(*run.StartedAt, *run.CompletedAt)))
	}

	if len(run.Steps) == 0 {
		return
	}

	out.Info("")
	headers := []string{"#", "ACTION", "STATUS", "TARGET", "DETAIL"}
	rows := make([][]string, 0, len(run.Steps))
	for _, step := range run.Steps {
		rows = append(rows, []string{
			strconv.Itoa(step.StepNumber),
			string(step.Action),
			tui.RenderStepStatus(step.Status),
			tui.Truncate(stepTargetLabel(step), 40),
			tui.Truncate(stepDetailLabel(step), 48),
		})
	}
	out.Table(headers, rows)

	for _, step := range run.Steps {
		if step.Status == constants.StepStatusFailed && run.Status == constants.RunStatusRunning {
			out.Info("")
			out.Warning(fmt.Sprintf("Step %d is waiting for a decision.", step.StepNumber))
			out.Info(fmt.Sprintf("  resolve it with 'webrun runs resolve %s retry|skip|abort'", shortID(run.ID)))
			break
		}
	}
}

// stepTargetLabel picks the most informative step field for the table.
func stepTargetLabel(step *domain.Step) string {
	if step.Action == constants.ActionConditional && step.Condition != "" {
		return step.Condition
	}
	return step.Target
}

// stepDetailLabel summarizes the step outcome: the error for failures,
// extracted data for extract steps, otherwise the duration.
func stepDetailLabel(step *domain.Step) string {
	if step.ErrorMessage != "" {
		return step.ErrorMessage
	}
	if step.ResultData != "" {
		return step.ResultData
	}
	if step.StartedAt != nil && step.CompletedAt != nil {
		return tui.FormatDuration(*step.StartedAt, *step.CompletedAt)
	}
	return ""
}
