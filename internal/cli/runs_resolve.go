package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/domain"
	"github.com/webrunhq/webrun/internal/errors"
	"github.com/webrunhq/webrun/internal/tui"
)

// newRunsResolveCmd creates the runs resolve command.
func newRunsResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <run> [retry|skip|abort]",
		Short: "Resolve a run's failed step",
		Long: `Resolve the failed step a run is paused on.

  retry  re-executes the failed step
  skip   marks it skipped and continues with the next step
  abort  fails the run

Without a decision argument an interactive picker opens, showing the
step's error and, when AI is enabled, a fix suggestion.

Examples:
  # Interactive picker
  webrun runs resolve 7c0a2f

  # Scripted decision
  webrun runs resolve 7c0a2f retry

Exit codes:
  0  - Decision submitted
  1  - No failed step waiting, or server error
  2  - Invalid decision`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			decision := ""
			if len(args) == 2 {
				decision = args[1]
			}
			return runRunsResolve(cmd.Context(), cmd, os.Stdout, args[0], decision)
		},
	}
}

// runRunsResolve executes the runs resolve command logic.
func runRunsResolve(ctx context.Context, cmd *cobra.Command, w io.Writer, ref, decisionArg string) error {
	outputFormat := cmd.Flag("output").Value.String()
	out := tui.NewOutput(w, outputFormat)

	client := clientFromCmd(cmd)
	run, err := resolveRun(ctx, client, ref)
	if err != nil {
		return err
	}

	step := pendingStep(run)
	if step == nil {
		return fmt.Errorf("run %s has no failed step waiting for a decision", shortID(run.ID))
	}

	decision := constants.Decision(decisionArg)
	if decisionArg == "" {
		decision, err = promptForDecision(ctx, client, run, step, out)
		if err != nil {
			return err
		}
	} else if !decision.IsValid() {
		return errors.Wrapf(errors.ErrInvalidDecision, "%q is not retry, skip, or abort", decisionArg)
	}

	if err := client.Resolve(ctx, run.ID, step.ID, decision); err != nil {
		return err
	}

	if outputFormat == OutputJSON {
		return out.JSON(map[string]string{
			"run_id":   run.ID,
			"step_id":  step.ID,
			"decision": string(decision),
		})
	}

	out.Success(fmt.Sprintf("Step %d of run %s: %s submitted", step.StepNumber, shortID(run.ID), decision))
	return nil
}

// promptForDecision shows the failure, fetches a fix suggestion, and opens
// the interactive picker.
func promptForDecision(ctx context.Context, client *apiClient, run *runRecord, step *domain.Step, out tui.Output) (constants.Decision, error) {
	out.Error(fmt.Errorf("step %d (%s %s) failed: %s", step.StepNumber, step.Action, tui.Truncate(step.Target, 40), step.ErrorMessage))

	// The suggestion is advisory; resolution works without it.
	if suggestion, err := client.StepSuggestions(ctx, run.ID, step.ID); err == nil && suggestion.Suggestion != "" {
		out.Info(fmt.Sprintf("  suggestion: %s", suggestion.Suggestion))
	}

	label := fmt.Sprintf("step %d (%s)", step.StepNumber, step.Action)
	decision, err := tui.PromptDecision(label, step.ErrorMessage)
	if err != nil {
		return "", fmt.Errorf("no decision given (%w), pass one explicitly: webrun runs resolve %s retry|skip|abort", err, shortID(run.ID))
	}
	return decision, nil
}

// pendingStep finds the failed step an active run is paused on.
func pendingStep(run *runRecord) *domain.Step {
	if run.Status != constants.RunStatusRunning {
		return nil
	}
	for _, step := range run.Steps {
		if step.Status == constants.StepStatusFailed {
			return step
		}
	}
	return nil
}
