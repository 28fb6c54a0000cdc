package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/webrunhq/webrun/internal/tui"
)

// workflowsDeleteFlags holds command-specific flags for workflows delete.
type workflowsDeleteFlags struct {
	force bool
}

// newWorkflowsDeleteCmd creates the workflows delete command.
func newWorkflowsDeleteCmd() *cobra.Command {
	flags := &workflowsDeleteFlags{}

	cmd := &cobra.Command{
		Use:     "delete <workflow>",
		Aliases: []string{"rm", "remove"},
		Short:   "Delete a workflow",
		Long: `Delete a workflow and unregister its schedule. Run history is kept.

Asks for confirmation before deleting. Non-interactive sessions must
pass --force; without a terminal the prompt cannot run and the command
refuses.

Examples:
  # Interactive delete
  webrun workflows delete "Daily price check"

  # Non-interactive delete for scripts
  webrun workflows delete 0b1f8a9e --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflowsDelete(cmd.Context(), cmd, os.Stdout, args[0], flags)
		},
	}

	cmd.Flags().BoolVar(&flags.force, "force", false, "skip the confirmation prompt")

	return cmd
}

// runWorkflowsDelete executes the workflows delete command logic.
func runWorkflowsDelete(ctx context.Context, cmd *cobra.Command, w io.Writer, ref string, flags *workflowsDeleteFlags) error {
	outputFormat := cmd.Flag("output").Value.String()
	out := tui.NewOutput(w, outputFormat)

	client := clientFromCmd(cmd)
	wf, err := resolveWorkflow(ctx, client, ref)
	if err != nil {
		return err
	}

	if !flags.force {
		confirmed, err := tui.PromptConfirm(fmt.Sprintf("Delete workflow %q?", wf.Name), false)
		if err != nil {
			if stderrors.Is(err, tui.ErrPromptCanceled) {
				return fmt.Errorf("confirmation required, re-run with --force to delete non-interactively")
			}
			return err
		}
		if !confirmed {
			out.Info("Delete canceled.")
			return nil
		}
	}

	if err := client.DeleteWorkflow(ctx, wf.ID); err != nil {
		return err
	}

	if outputFormat == OutputJSON {
		return out.JSON(map[string]string{"deleted": wf.ID})
	}

	out.Success(fmt.Sprintf("Deleted workflow %q (%s)", wf.Name, wf.ID))
	return nil
}
