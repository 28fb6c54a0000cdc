package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/tui"
)

// newWorkflowsShowCmd creates the workflows show command.
func newWorkflowsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "show <workflow>",
		Aliases: []string{"get", "view"},
		Short:   "Show a workflow definition",
		Long: `Show one workflow: its trigger, schedule, variables, and the full
step program. The workflow may be referenced by ID, unique ID prefix,
or exact name.

Examples:
  # By name
  webrun workflows show "Daily price check"

  # By ID prefix
  webrun workflows show 0b1f8a9e

  # Raw definition for editing
  webrun workflows show 0b1f8a9e -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflowsShow(cmd.Context(), cmd, os.Stdout, args[0])
		},
	}
}

// runWorkflowsShow executes the workflows show command logic.
func runWorkflowsShow(ctx context.Context, cmd *cobra.Command, w io.Writer, ref string) error {
	outputFormat := cmd.Flag("output").Value.String()
	out := tui.NewOutput(w, outputFormat)

	client := clientFromCmd(cmd)
	wf, err := resolveWorkflow(ctx, client, ref)
	if err != nil {
		return err
	}

	if outputFormat == OutputJSON {
		return out.JSON(wf)
	}

	displayWorkflow(out, wf)
	return nil
}

// displayWorkflow renders one workflow in detail format.
func displayWorkflow(out tui.Output, wf *workflowRecord) {
	out.Info(fmt.Sprintf("Workflow: %s", wf.Name))
	out.Info(fmt.Sprintf("  ID:      %s", wf.ID))
	if wf.Description != "" {
		out.Info(fmt.Sprintf("  About:   %s", wf.Description))
	}
	out.Info(fmt.Sprintf("  Trigger: %s%s", tui.TitleCase(string(wf.TriggerType)), cronSuffix(wf.ScheduleCron)))
	out.Info(fmt.Sprintf("  Status:  %s", wf.Status))
	out.Info(fmt.Sprintf("  Runs:    %d", wf.RunCount))
	if wf.LastRun != nil {
		out.Info(fmt.Sprintf("  Last:    %s (%s)", wf.LastRun.Status, tui.RelativeTime(wf.LastRun.CreatedAt)))
	}
	out.Info(fmt.Sprintf("  Created: %s", tui.RelativeTime(wf.CreatedAt)))

	if len(wf.Variables) > 0 {
		out.Info("")
		out.Info("Variables:")
		for name, v := range wf.Variables {
			value := v.Value
			if v.Secret {
				value = "********"
			}
			out.Info(fmt.Sprintf("  %s = %s", name, value))
		}
	}

	out.Info("")
	headers := []string{"#", "ACTION", "TARGET", "VALUE", "DESCRIPTION"}
	rows := make([][]string, 0, len(wf.Steps))
	for _, step := range wf.Steps {
		target := step.Target
		if step.Action == constants.ActionConditional && step.Condition != "" {
			target = step.Condition
		}
		rows = append(rows, []string{
			strconv.Itoa(step.StepNumber),
			string(step.Action),
			tui.Truncate(target, 40),
			tui.Truncate(step.Value, 24),
			tui.Truncate(step.Description, 40),
		})
	}
	out.Table(headers, rows)
}

// cronSuffix formats a cron expression for inline display.
func cronSuffix(expr string) string {
	if expr == "" {
		return ""
	}
	return fmt.Sprintf(" (%s)", expr)
}
