package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/webrunhq/webrun/internal/tui"
)

// newRunsAbortCmd creates the runs abort command.
func newRunsAbortCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "abort <run>",
		Aliases: []string{"cancel", "stop"},
		Short:   "Abort an active run",
		Long: `Abort an active run. The current step is interrupted, remaining steps
are skipped, and the run is marked cancelled. Finished runs cannot be
aborted.

Examples:
  webrun runs abort 7c0a2f`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsAbort(cmd.Context(), cmd, os.Stdout, args[0])
		},
	}
}

// runRunsAbort executes the runs abort command logic.
func runRunsAbort(ctx context.Context, cmd *cobra.Command, w io.Writer, ref string) error {
	outputFormat := cmd.Flag("output").Value.String()
	out := tui.NewOutput(w, outputFormat)

	client := clientFromCmd(cmd)
	run, err := resolveRun(ctx, client, ref)
	if err != nil {
		return err
	}

	if err := client.Abort(ctx, run.ID); err != nil {
		return err
	}

	if outputFormat == OutputJSON {
		return out.JSON(map[string]string{"aborted": run.ID})
	}

	out.Success(fmt.Sprintf("Abort submitted for run %s", shortID(run.ID)))
	return nil
}
