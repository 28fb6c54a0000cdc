package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// AddRunsCommand adds the runs command group to the root command.
func AddRunsCommand(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:     "runs",
		Aliases: []string{"run"},
		Short:   "Inspect and control workflow runs",
		Long: `Inspect and control workflow runs on the webrun server.

A run is one execution of a workflow. Runs stream live events while
active; failed steps wait for a retry/skip/abort decision when
interactive resolution is enabled.

Examples:
  # Recent runs
  webrun runs list

  # Attach to a running execution
  webrun runs watch 7c0a2f

  # Resolve a failed step
  webrun runs resolve 7c0a2f retry`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newRunsListCmd())
	cmd.AddCommand(newRunsShowCmd())
	cmd.AddCommand(newRunsWatchCmd())
	cmd.AddCommand(newRunsResolveCmd())
	cmd.AddCommand(newRunsAbortCmd())
	cmd.AddCommand(newRunsSummaryCmd())

	root.AddCommand(cmd)
}

// resolveRun turns a CLI run reference (full ID or unique ID prefix) into
// the run record, steps included.
func resolveRun(ctx context.Context, client *apiClient, ref string) (*runRecord, error) {
	run, err := client.GetRun(ctx, ref)
	if err == nil {
		return run, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	runs, listErr := client.ListRuns(ctx, "")
	if listErr != nil {
		return nil, listErr
	}

	var match *runRecord
	for i := range runs {
		if hasIDPrefix(runs[i].ID, ref) {
			if match != nil {
				return nil, fmt.Errorf("run reference %q is ambiguous, use the full ID", ref)
			}
			match = &runs[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("run %q not found", ref)
	}

	// Listings omit step records; re-fetch the matched run for them.
	return client.GetRun(ctx, match.ID)
}
