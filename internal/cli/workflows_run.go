package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/webrunhq/webrun/internal/tui"
)

// workflowsRunFlags holds command-specific flags for workflows run.
type workflowsRunFlags struct {
	watch bool
}

// newWorkflowsRunCmd creates the workflows run command.
func newWorkflowsRunCmd() *cobra.Command {
	flags := &workflowsRunFlags{}

	cmd := &cobra.Command{
		Use:     "run <workflow>",
		Aliases: []string{"trigger", "start"},
		Short:   "Trigger a workflow run",
		Long: `Trigger a manual run of a workflow. The run executes on the server;
this command returns as soon as it is accepted unless --watch is given.

With --watch the live event stream is attached: each step appears as it
executes, heals, or fails. Press q to detach without affecting the run.

Examples:
  # Fire and forget
  webrun workflows run "Daily price check"

  # Trigger and watch live
  webrun workflows run "Daily price check" --watch

  # Stream raw events for scripts
  webrun workflows run 0b1f8a9e --watch -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflowsRun(cmd.Context(), cmd, os.Stdout, args[0], flags)
		},
	}

	cmd.Flags().BoolVarP(&flags.watch, "watch", "w", false, "attach to the run's live event stream")

	return cmd
}

// runWorkflowsRun executes the workflows run command logic.
func runWorkflowsRun(ctx context.Context, cmd *cobra.Command, w io.Writer, ref string, flags *workflowsRunFlags) error {
	outputFormat := cmd.Flag("output").Value.String()
	out := tui.NewOutput(w, outputFormat)

	client := clientFromCmd(cmd)
	wf, err := resolveWorkflow(ctx, client, ref)
	if err != nil {
		return err
	}

	started, err := client.TriggerRun(ctx, wf.ID)
	if err != nil {
		return err
	}

	if flags.watch {
		return watchRun(ctx, client, w, outputFormat, started.RunID, wf.Name)
	}

	if outputFormat == OutputJSON {
		return out.JSON(started)
	}

	out.Success(fmt.Sprintf("Run %s started for workflow %q", started.RunID, wf.Name))
	out.Info(fmt.Sprintf("  watch it with 'webrun runs watch %s'", shortID(started.RunID)))
	return nil
}
