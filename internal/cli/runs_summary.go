package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/webrunhq/webrun/internal/tui"
)

// Markdown renderer is cached; building glamour styles is expensive.
var (
	markdownRenderer     *glamour.TermRenderer
	markdownRendererOnce sync.Once
	markdownRendererErr  error
)

// getMarkdownRenderer returns the shared terminal markdown renderer.
func getMarkdownRenderer() (*glamour.TermRenderer, error) {
	markdownRendererOnce.Do(func() {
		markdownRenderer, markdownRendererErr = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)
	})
	return markdownRenderer, markdownRendererErr
}

// newRunsSummaryCmd creates the runs summary command.
func newRunsSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <run>",
		Short: "Show a run's narrative summary",
		Long: `Show a narrative summary of a finished run: what was attempted, what
was extracted, what healed, and what failed.

When AI is enabled on the server the summary is model-written;
otherwise a deterministic digest of the step records is composed.

Examples:
  webrun runs summary 7c0a2f
  webrun runs summary 7c0a2f -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsSummary(cmd.Context(), cmd, os.Stdout, args[0])
		},
	}
}

// runRunsSummary executes the runs summary command logic.
func runRunsSummary(ctx context.Context, cmd *cobra.Command, w io.Writer, ref string) error {
	outputFormat := cmd.Flag("output").Value.String()
	out := tui.NewOutput(w, outputFormat)

	client := clientFromCmd(cmd)
	run, err := resolveRun(ctx, client, ref)
	if err != nil {
		return err
	}

	summary, err := client.RunSummary(ctx, run.ID)
	if err != nil {
		return err
	}

	if outputFormat == OutputJSON {
		return out.JSON(summary)
	}

	displayRunSummary(out, run, summary)
	return nil
}

// displayRunSummary renders the summary, as markdown when possible.
func displayRunSummary(out tui.Output, run *runRecord, summary *summaryRecord) {
	out.Info(fmt.Sprintf("Run %s (%s) %s", shortID(run.ID), runWorkflowLabel(*run), tui.RenderRunStatus(run.Status)))
	out.Info("")

	rendered := summary.Summary
	if renderer, err := getMarkdownRenderer(); err == nil {
		if md, renderErr := renderer.Render(summary.Summary); renderErr == nil {
			rendered = md
		}
	}
	out.Info(rendered)

	if summary.AIGenerated {
		out.Info("(AI-generated)")
	}
}
