package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/domain"
)

// WatchRow is the rendered state of one step in the watch view. Rows are
// built incrementally from the run's event stream.
type WatchRow struct {
	StepNumber  int
	Action      constants.Action
	Description string
	Status      constants.StepStatus
	Detail      string
}

// EventMsg carries the next event from the run's live stream.
type EventMsg domain.Event

// StreamClosedMsg signals that the event stream ended without a terminal
// event, typically because the server connection dropped.
type StreamClosedMsg struct{}

// WatchModel is the Bubble Tea model for following a run live. It consumes
// the run's event stream and renders a per-step status table that updates
// as steps start, complete, fail, heal, and skip.
type WatchModel struct {
	runID        string
	workflowName string

	events <-chan domain.Event

	rows       []WatchRow
	status     constants.RunStatus
	mode       constants.Mode
	totalSteps int
	healNotes  []string
	lastEvent  time.Time

	spinner  spinner.Model
	quitting bool
	done     bool
	width    int
}

// NewWatchModel creates a watch model consuming the given event channel.
// The channel must close when the stream ends.
func NewWatchModel(runID, workflowName string, events <-chan domain.Event) *WatchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(ColorPrimary)

	return &WatchModel{
		runID:        runID,
		workflowName: workflowName,
		events:       events,
		status:       constants.RunStatusRunning,
		spinner:      sp,
		width:        80,
	}
}

// Init starts the spinner and the first event read.
func (m *WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.nextEvent())
}

// nextEvent returns a command that blocks on the event channel and delivers
// the next event as a message. Update re-issues it after every event so the
// stream is consumed one message at a time.
func (m *WatchModel) nextEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return StreamClosedMsg{}
		}
		return EventMsg(ev)
	}
}

// Update handles messages and returns the updated model and next command.
func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case EventMsg:
		m.apply(domain.Event(msg))
		if m.done {
			return m, tea.Quit
		}
		return m, m.nextEvent()

	case StreamClosedMsg:
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// apply folds one event into the model's step table.
func (m *WatchModel) apply(ev domain.Event) {
	m.lastEvent = time.Now()

	switch ev.Type {
	case domain.EventRunStarted:
		m.totalSteps = ev.TotalSteps
		m.mode = ev.Mode
		if len(m.rows) == 0 {
			m.rows = make([]WatchRow, ev.TotalSteps)
			for i := range m.rows {
				m.rows[i] = WatchRow{StepNumber: i + 1, Status: constants.StepStatusPending}
			}
		}

	case domain.EventStepStarted:
		row := m.row(ev.StepNumber)
		row.Action = ev.Action
		row.Description = ev.Description
		row.Status = constants.StepStatusRunning
		row.Detail = ""

	case domain.EventStepCompleted:
		m.row(ev.StepNumber).Status = constants.StepStatusCompleted

	case domain.EventStepFailed:
		row := m.row(ev.StepNumber)
		row.Status = constants.StepStatusFailed
		row.Detail = ev.Error

	case domain.EventStepSkipped:
		row := m.row(ev.StepNumber)
		row.Status = constants.StepStatusSkipped
		if ev.Reason == domain.SkipReasonBranch {
			row.Detail = "condition false"
		}

	case domain.EventStepHealed:
		row := m.row(ev.StepNumber)
		row.Status = constants.StepStatusRunning
		row.Detail = "healed"
		if ev.Fix != "" {
			m.healNotes = append(m.healNotes, fmt.Sprintf("step %d: %s", ev.StepNumber, ev.Fix))
		}

	case domain.EventRunCompleted:
		m.status = constants.RunStatusCompleted
		m.done = true

	case domain.EventRunFailed:
		m.status = constants.RunStatusFailed
		m.done = true

	case domain.EventHeartbeat:
		// Keeps the stream alive; nothing to render.
	}
}

// row returns the row for a 1-indexed step number, growing the table when
// events arrive before run_started announced the total.
func (m *WatchModel) row(stepNumber int) *WatchRow {
	for stepNumber > len(m.rows) {
		m.rows = append(m.rows, WatchRow{
			StepNumber: len(m.rows) + 1,
			Status:     constants.StepStatusPending,
		})
	}
	return &m.rows[stepNumber-1]
}

// View renders the current state.
func (m *WatchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(m.headerLine())
	b.WriteString("\n\n")

	for _, row := range m.rows {
		b.WriteString(m.renderRow(row))
		b.WriteString("\n")
	}

	if len(m.healNotes) > 0 {
		dim := lipgloss.NewStyle().Foreground(ColorMuted)
		b.WriteString("\n")
		for _, note := range m.healNotes {
			b.WriteString(dim.Render("  ⚕ " + note))
			b.WriteString("\n")
		}
	}

	if !m.done {
		b.WriteString("\nPress 'q' to quit\n")
	}

	return b.String()
}

// headerLine renders the run identity, mode, and live status.
func (m *WatchModel) headerLine() string {
	name := m.workflowName
	if name == "" {
		name = shortID(m.runID)
	}

	var status string
	if m.done {
		status = RenderRunStatus(m.status)
	} else {
		status = m.spinner.View() + " running"
	}

	line := fmt.Sprintf("%s  %s", lipgloss.NewStyle().Bold(true).Render(name), status)
	if m.mode == constants.ModeSimulation {
		line += lipgloss.NewStyle().Foreground(ColorWarning).Render("  [simulation]")
	}
	return line
}

// renderRow renders one step line: icon, number, action, description, and
// any failure or heal detail.
func (m *WatchModel) renderRow(row WatchRow) string {
	style := lipgloss.NewStyle().Foreground(StepStatusColor(row.Status))
	label := fmt.Sprintf("Step %d", row.StepNumber)
	if row.Action != "" {
		label += " " + string(row.Action)
	}
	if row.Description != "" {
		label += ": " + Truncate(row.Description, 50)
	}

	line := "  " + style.Render(StepStatusIcon(row.Status)+" "+label)
	if row.Detail != "" {
		line += lipgloss.NewStyle().Foreground(ColorMuted).Render("  (" + Truncate(row.Detail, 60) + ")")
	}
	return line
}

// Rows returns the current step table. Useful for tests.
func (m *WatchModel) Rows() []WatchRow {
	return m.rows
}

// Status returns the run status as derived from the stream.
func (m *WatchModel) Status() constants.RunStatus {
	return m.status
}

// Done reports whether a terminal event has been consumed.
func (m *WatchModel) Done() bool {
	return m.done
}

// shortID returns the first segment of a UUID for compact display.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
