package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/domain"
	"github.com/webrunhq/webrun/internal/tui"
)

// newRunsWatchCmd creates the runs watch command.
func newRunsWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "watch <run>",
		Aliases: []string{"attach", "follow"},
		Short:   "Watch a run's live event stream",
		Long: `Attach to a run's event stream. Completed steps are replayed first,
then live events follow: step starts, completions, failures, heals, and
skips. Press q to detach; the run keeps executing on the server.

Already-finished runs replay their history and exit immediately.

In JSON mode, or when stdout is not a terminal, events are printed as
they arrive instead of rendering the interactive view.

Examples:
  # Interactive view
  webrun runs watch 7c0a2f

  # Stream events as JSON lines
  webrun runs watch 7c0a2f -o json

Exit codes:
  0  - Run completed (or detached before it finished)
  1  - Run failed or was cancelled`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsWatch(cmd.Context(), cmd, os.Stdout, args[0])
		},
	}
}

// runRunsWatch executes the runs watch command logic.
func runRunsWatch(ctx context.Context, cmd *cobra.Command, w io.Writer, ref string) error {
	outputFormat := cmd.Flag("output").Value.String()

	client := clientFromCmd(cmd)
	run, err := resolveRun(ctx, client, ref)
	if err != nil {
		return err
	}

	return watchRun(ctx, client, w, outputFormat, run.ID, runWorkflowLabel(*run))
}

// watchRun attaches to the run's event stream and renders it until a
// terminal event arrives. Interactive rendering needs a terminal; JSON
// mode and piped output fall back to line-per-event streaming.
func watchRun(ctx context.Context, client *apiClient, w io.Writer, outputFormat, runID, workflowName string) error {
	events, err := client.StreamEvents(ctx, runID)
	if err != nil {
		return err
	}

	if outputFormat == OutputJSON {
		return streamEventsJSON(w, events)
	}
	if f, ok := w.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		return streamEventsText(w, events, runID)
	}

	model := tui.NewWatchModel(runID, workflowName, events)
	program := tea.NewProgram(model, tea.WithOutput(w), tea.WithContext(ctx))
	final, err := program.Run()
	if err != nil {
		return fmt.Errorf("watch display failed: %w", err)
	}

	if m, ok := final.(*tui.WatchModel); ok && m.Done() {
		return runOutcomeError(runID, m.Status())
	}
	return nil
}

// streamEventsJSON writes each event as one JSON line.
func streamEventsJSON(w io.Writer, events <-chan domain.Event) error {
	enc := json.NewEncoder(w)
	status := constants.RunStatusRunning
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			return err
		}
		status = eventStatus(ev, status)
	}
	return runOutcomeError("", status)
}

// streamEventsText writes a plain line per event for piped output.
func streamEventsText(w io.Writer, events <-chan domain.Event, runID string) error {
	status := constants.RunStatusRunning
	for ev := range events {
		if line := eventLine(ev); line != "" {
			fmt.Fprintln(w, line)
		}
		status = eventStatus(ev, status)
	}
	return runOutcomeError(runID, status)
}

// eventLine renders one event for non-interactive output. Heartbeats and
// unknown types render nothing.
func eventLine(ev domain.Event) string {
	switch ev.Type {
	case domain.EventRunStarted:
		suffix := ""
		if ev.Mode == constants.ModeSimulation {
			suffix = " [simulation]"
		}
		return fmt.Sprintf("run started, %d step(s)%s", ev.TotalSteps, suffix)
	case domain.EventStepStarted:
		return fmt.Sprintf("step %d %s: %s", ev.StepNumber, ev.Action, ev.Description)
	case domain.EventStepCompleted:
		return fmt.Sprintf("step %d completed", ev.StepNumber)
	case domain.EventStepFailed:
		return fmt.Sprintf("step %d failed: %s", ev.StepNumber, ev.Error)
	case domain.EventStepSkipped:
		return fmt.Sprintf("step %d skipped (%s)", ev.StepNumber, ev.Reason)
	case domain.EventStepHealed:
		return fmt.Sprintf("step %d healed: %s", ev.StepNumber, ev.Fix)
	case domain.EventRunCompleted:
		return "run completed"
	case domain.EventRunFailed:
		return "run failed"
	default:
		return ""
	}
}

// eventStatus folds terminal events into the tracked run status.
func eventStatus(ev domain.Event, current constants.RunStatus) constants.RunStatus {
	switch ev.Type {
	case domain.EventRunCompleted:
		return constants.RunStatusCompleted
	case domain.EventRunFailed:
		return constants.RunStatusFailed
	default:
		return current
	}
}

// runOutcomeError maps the final run status to the command's exit
// behavior: failures become errors so scripts observe a non-zero exit.
func runOutcomeError(runID string, status constants.RunStatus) error {
	if status != constants.RunStatusFailed {
		return nil
	}
	if runID == "" {
		return fmt.Errorf("run failed")
	}
	return fmt.Errorf("run %s failed", shortID(runID))
}
