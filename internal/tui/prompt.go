package tui

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/webrunhq/webrun/internal/constants"
)

// ErrPromptCanceled is returned when the user cancels an interactive prompt
// with q, Esc, or Ctrl+C.
var ErrPromptCanceled = errors.New("prompt canceled")

// webrunTheme returns the huh theme matching the CLI's semantic colors.
func webrunTheme() *huh.Theme {
	CheckNoColor()

	t := huh.ThemeBase()

	t.Focused.Base = t.Focused.Base.BorderForeground(ColorPrimary)
	t.Focused.Title = t.Focused.Title.Foreground(ColorPrimary)
	t.Focused.SelectSelector = t.Focused.SelectSelector.Foreground(ColorPrimary)
	t.Focused.SelectedOption = t.Focused.SelectedOption.Foreground(ColorPrimary)
	t.Focused.SelectedPrefix = t.Focused.SelectedPrefix.Foreground(ColorSuccess)
	t.Focused.ErrorMessage = t.Focused.ErrorMessage.Foreground(ColorError)
	t.Blurred.Title = t.Blurred.Title.Foreground(ColorMuted)
	t.Focused.Description = t.Focused.Description.Foreground(ColorMuted)

	return t
}

// runPrompt runs a single-field form with the webrun theme. Returns
// ErrPromptCanceled when stdin is not a terminal, so scripted callers fail
// fast instead of hanging.
func runPrompt(field huh.Field) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return ErrPromptCanceled
	}

	form := huh.NewForm(huh.NewGroup(field)).
		WithTheme(webrunTheme()).
		WithShowHelp(true)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return ErrPromptCanceled
		}
		return fmt.Errorf("prompt failed: %w", err)
	}
	return nil
}

// PromptDecision asks the operator how to resolve a failed step. The error
// message is shown as the prompt description so the choice is informed.
func PromptDecision(stepLabel, errMsg string) (constants.Decision, error) {
	options := []huh.Option[string]{
		huh.NewOption("Retry - re-execute the failed step", string(constants.DecisionRetry)),
		huh.NewOption("Skip - mark it skipped and continue", string(constants.DecisionSkip)),
		huh.NewOption("Abort - fail the run", string(constants.DecisionAbort)),
	}

	var selected string
	field := huh.NewSelect[string]().
		Title(fmt.Sprintf("Resolve %s", stepLabel)).
		Description(Truncate(errMsg, 120)).
		Options(options...).
		Value(&selected)

	if err := runPrompt(field); err != nil {
		return "", err
	}
	return constants.Decision(selected), nil
}

// PromptConfirm asks a yes/no question. Used before destructive commands
// such as workflow deletion.
func PromptConfirm(message string, defaultYes bool) (bool, error) {
	confirmed := defaultYes

	field := huh.NewConfirm().
		Title(message).
		Affirmative("Yes").
		Negative("No").
		Value(&confirmed)

	if err := runPrompt(field); err != nil {
		return false, err
	}
	return confirmed, nil
}
