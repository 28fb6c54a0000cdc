// Package tui provides terminal output components for the webrun CLI.
//
// All colors use AdaptiveColor for light/dark terminal support. Call
// CheckNoColor() before rendering to honor the NO_COLOR convention and
// TERM=dumb.
package tui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/webrunhq/webrun/internal/constants"
)

//nolint:gochecknoglobals // Package-level constants for the TUI styling API
var (
	// ColorPrimary is blue, used for active states and primary values.
	ColorPrimary = lipgloss.AdaptiveColor{Light: "#0087AF", Dark: "#00D7FF"}

	// ColorSuccess is green, used for completed runs and passed steps.
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#008700", Dark: "#00FF87"}

	// ColorWarning is yellow, used for pending work and paused workflows.
	ColorWarning = lipgloss.AdaptiveColor{Light: "#AF8700", Dark: "#FFD700"}

	// ColorError is red, used for failed runs and failed steps.
	ColorError = lipgloss.AdaptiveColor{Light: "#AF0000", Dark: "#FF5F5F"}

	// ColorMuted is gray, used for skipped steps and secondary text.
	ColorMuted = lipgloss.AdaptiveColor{Light: "#585858", Dark: "#6C6C6C"}
)

// OutputStyles holds the lipgloss styles for message-level output.
type OutputStyles struct {
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
	Dim     lipgloss.Style
}

// NewOutputStyles creates the default output styles.
func NewOutputStyles() *OutputStyles {
	return &OutputStyles{
		Success: lipgloss.NewStyle().Foreground(ColorSuccess),
		Error:   lipgloss.NewStyle().Foreground(ColorError),
		Warning: lipgloss.NewStyle().Foreground(ColorWarning),
		Info:    lipgloss.NewStyle().Foreground(ColorPrimary),
		Dim:     lipgloss.NewStyle().Foreground(ColorMuted),
	}
}

// TableStyles holds the lipgloss styles for table rendering.
type TableStyles struct {
	Header lipgloss.Style
	Cell   lipgloss.Style
}

// NewTableStyles creates the default table styles.
func NewTableStyles() *TableStyles {
	return &TableStyles{
		Header: lipgloss.NewStyle().Bold(true),
		Cell:   lipgloss.NewStyle(),
	}
}

// CheckNoColor disables color rendering when the terminal does not support
// it. Safe to call multiple times.
func CheckNoColor() {
	if !HasColorSupport() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// HasColorSupport returns true if the terminal supports colors.
// Returns false if NO_COLOR is set (any value, per https://no-color.org/)
// or TERM=dumb.
func HasColorSupport() bool {
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return true
}

// RunStatusIcon returns the icon for a run status. Icons pair with color
// and the status word itself so state is readable without color.
func RunStatusIcon(status constants.RunStatus) string {
	switch status {
	case constants.RunStatusPending:
		return "○"
	case constants.RunStatusRunning:
		return "◐"
	case constants.RunStatusCompleted:
		return "✓"
	case constants.RunStatusFailed:
		return "✗"
	case constants.RunStatusCancelled:
		return "⊘"
	default:
		return "?"
	}
}

// RunStatusColor returns the semantic color for a run status.
func RunStatusColor(status constants.RunStatus) lipgloss.AdaptiveColor {
	switch status {
	case constants.RunStatusPending:
		return ColorWarning
	case constants.RunStatusRunning:
		return ColorPrimary
	case constants.RunStatusCompleted:
		return ColorSuccess
	case constants.RunStatusFailed:
		return ColorError
	case constants.RunStatusCancelled:
		return ColorMuted
	default:
		return ColorMuted
	}
}

// RenderRunStatus renders a run status with icon and color.
func RenderRunStatus(status constants.RunStatus) string {
	style := lipgloss.NewStyle().Foreground(RunStatusColor(status))
	return style.Render(RunStatusIcon(status) + " " + string(status))
}

// StepStatusIcon returns the icon for a step status.
func StepStatusIcon(status constants.StepStatus) string {
	switch status {
	case constants.StepStatusPending:
		return "○"
	case constants.StepStatusRunning:
		return "◐"
	case constants.StepStatusCompleted:
		return "✓"
	case constants.StepStatusFailed:
		return "✗"
	case constants.StepStatusSkipped:
		return "↷"
	default:
		return "?"
	}
}

// StepStatusColor returns the semantic color for a step status.
func StepStatusColor(status constants.StepStatus) lipgloss.AdaptiveColor {
	switch status {
	case constants.StepStatusPending:
		return ColorMuted
	case constants.StepStatusRunning:
		return ColorPrimary
	case constants.StepStatusCompleted:
		return ColorSuccess
	case constants.StepStatusFailed:
		return ColorError
	case constants.StepStatusSkipped:
		return ColorMuted
	default:
		return ColorMuted
	}
}

// RenderStepStatus renders a step status with icon and color.
func RenderStepStatus(status constants.StepStatus) string {
	style := lipgloss.NewStyle().Foreground(StepStatusColor(status))
	return style.Render(StepStatusIcon(status) + " " + string(status))
}

// TitleCase renders a machine token such as "scheduled" or "manual" as a
// human-readable label.
func TitleCase(s string) string {
	return cases.Title(language.English).String(s)
}

// padRight pads s with spaces to the given display width. Width is measured
// in terminal cells, so wide characters count as two.
func padRight(s string, width int) string {
	gap := width - runewidth.StringWidth(s)
	if gap <= 0 {
		return s
	}
	return s + strings.Repeat(" ", gap)
}

// Truncate shortens s to at most width terminal cells, appending "..." when
// content is cut. Widths of 3 or less return the bare cut.
func Truncate(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, "...")
}
