package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

// AddWorkflowsCommand adds the workflows command group to the root command.
func AddWorkflowsCommand(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:     "workflows",
		Aliases: []string{"workflow", "wf"},
		Short:   "Manage workflows",
		Long: `Manage workflow definitions on the webrun server.

A workflow is a named, ordered program of browser steps (navigate, click,
type, extract, wait, conditional). Workflows are created from YAML files
and executed manually, on a cron schedule, or by webhook.

Examples:
  # List all workflows
  webrun workflows list

  # Create a workflow from a YAML definition
  webrun workflows create -f checkout.yaml

  # Trigger a run and watch it live
  webrun workflows run "Daily price check" --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newWorkflowsListCmd())
	cmd.AddCommand(newWorkflowsShowCmd())
	cmd.AddCommand(newWorkflowsCreateCmd())
	cmd.AddCommand(newWorkflowsDeleteCmd())
	cmd.AddCommand(newWorkflowsRunCmd())

	root.AddCommand(cmd)
}

// clientFromCmd builds an API client from the persistent --server flag.
func clientFromCmd(cmd *cobra.Command) *apiClient {
	return newAPIClient(cmd.Flag("server").Value.String())
}

// shortID returns the first segment of a UUID for compact display.
func shortID(id string) string {
	if i := strings.Index(id, "-"); i > 0 {
		return id[:i]
	}
	return id
}

// isNotFound reports whether err is a 404 from the API.
func isNotFound(err error) bool {
	var apiErr *apiError
	return stderrors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// hasIDPrefix reports whether id begins with ref. Bare prefixes shorter
// than four characters are rejected as too ambiguous.
func hasIDPrefix(id, ref string) bool {
	return len(ref) >= 4 && strings.HasPrefix(id, ref)
}

// resolveWorkflow turns a CLI workflow reference (full ID, unique ID
// prefix, or exact name) into the workflow record. The server only knows
// IDs; names and prefixes are resolved here against the listing.
func resolveWorkflow(ctx context.Context, client *apiClient, ref string) (*workflowRecord, error) {
	wf, err := client.GetWorkflow(ctx, ref)
	if err == nil {
		return wf, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	workflows, listErr := client.ListWorkflows(ctx)
	if listErr != nil {
		return nil, listErr
	}

	var matches []workflowRecord
	for _, candidate := range workflows {
		if candidate.Name == ref || hasIDPrefix(candidate.ID, ref) {
			matches = append(matches, candidate)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("workflow %q not found", ref)
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("workflow reference %q is ambiguous (%d matches), use the full ID", ref, len(matches))
	}
}
