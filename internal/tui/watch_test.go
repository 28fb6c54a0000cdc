package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/domain"
)

// feed applies a sequence of events to the model the way Update would.
// Update mutates the pointer receiver, so the returned model is discarded.
func feed(m *WatchModel, events ...domain.Event) {
	for _, ev := range events {
		_, _ = m.Update(EventMsg(ev))
	}
}

// TestWatchModelRunStarted tests that run_started sizes the step table.
func TestWatchModelRunStarted(t *testing.T) {
	t.Parallel()

	ch := make(chan domain.Event)
	m := NewWatchModel("run-1", "checkout smoke", ch)

	feed(m, domain.NewRunStarted("run-1", 3, constants.ModeSimulation))

	rows := m.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, 1, rows[0].StepNumber)
	assert.Equal(t, constants.StepStatusPending, rows[0].Status)
	assert.False(t, m.Done())
}

// TestWatchModelStepLifecycle tests step events update the right rows.
func TestWatchModelStepLifecycle(t *testing.T) {
	t.Parallel()

	ch := make(chan domain.Event)
	m := NewWatchModel("run-1", "", ch)

	step1 := &domain.Step{RunID: "run-1", ID: "s1", StepNumber: 1, Action: constants.ActionNavigate, Description: "open the store"}
	step2 := &domain.Step{RunID: "run-1", ID: "s2", StepNumber: 2, Action: constants.ActionClick, Description: "add to cart"}

	feed(m,
		domain.NewRunStarted("run-1", 2, constants.ModeBrowser),
		domain.NewStepStarted(step1, constants.ModeBrowser),
		domain.NewStepCompleted(step1, []byte(`{"url":"https://shop.test"}`), ""),
		domain.NewStepStarted(step2, constants.ModeBrowser),
		domain.NewStepFailed(step2, "ElementNotFound: add to cart"),
	)

	rows := m.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, constants.StepStatusCompleted, rows[0].Status)
	assert.Equal(t, constants.ActionNavigate, rows[0].Action)
	assert.Equal(t, constants.StepStatusFailed, rows[1].Status)
	assert.Equal(t, "ElementNotFound: add to cart", rows[1].Detail)
}

// TestWatchModelHealAndSkip tests heal notes and branch-skip detail.
func TestWatchModelHealAndSkip(t *testing.T) {
	t.Parallel()

	ch := make(chan domain.Event)
	m := NewWatchModel("run-1", "", ch)

	step := &domain.Step{RunID: "run-1", ID: "s1", StepNumber: 1, Action: constants.ActionClick}
	next := &domain.Step{RunID: "run-1", ID: "s2", StepNumber: 2, Action: constants.ActionExtract}

	feed(m,
		domain.NewRunStarted("run-1", 2, constants.ModeBrowser),
		domain.NewStepStarted(step, constants.ModeBrowser),
		domain.NewStepHealed(step, "switched selector to #buy-now"),
		domain.NewStepCompleted(step, nil, ""),
		domain.NewStepSkipped(next, domain.SkipReasonBranch),
	)

	rows := m.Rows()
	assert.Equal(t, constants.StepStatusCompleted, rows[0].Status)
	assert.Equal(t, constants.StepStatusSkipped, rows[1].Status)
	assert.Equal(t, "condition false", rows[1].Detail)

	view := m.View()
	assert.Contains(t, view, "switched selector to #buy-now")
}

// TestWatchModelTerminalEvent tests that a terminal event quits the program.
func TestWatchModelTerminalEvent(t *testing.T) {
	t.Parallel()

	ch := make(chan domain.Event)
	m := NewWatchModel("run-1", "", ch)

	updated, cmd := m.Update(EventMsg(domain.NewRunCompleted("run-1")))
	model := updated.(*WatchModel)

	assert.True(t, model.Done())
	assert.Equal(t, constants.RunStatusCompleted, model.Status())
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd(), "terminal event should quit")
}

// TestWatchModelStreamClosed tests that a dropped stream quits cleanly.
func TestWatchModelStreamClosed(t *testing.T) {
	t.Parallel()

	ch := make(chan domain.Event)
	m := NewWatchModel("run-1", "", ch)

	updated, cmd := m.Update(StreamClosedMsg{})
	model := updated.(*WatchModel)

	assert.True(t, model.Done())
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

// TestWatchModelQuitKey tests the q key exits.
func TestWatchModelQuitKey(t *testing.T) {
	t.Parallel()

	ch := make(chan domain.Event)
	m := NewWatchModel("run-1", "", ch)

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	model := updated.(*WatchModel)

	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Empty(t, model.View(), "quitting model renders nothing")
}

// TestWatchModelNextEvent tests the channel-to-message bridge.
func TestWatchModelNextEvent(t *testing.T) {
	t.Parallel()

	ch := make(chan domain.Event, 1)
	m := NewWatchModel("run-1", "", ch)

	ch <- domain.NewRunStarted("run-1", 1, constants.ModeSimulation)
	msg := m.nextEvent()()
	ev, ok := msg.(EventMsg)
	require.True(t, ok)
	assert.Equal(t, domain.EventRunStarted, ev.Type)

	close(ch)
	msg = m.nextEvent()()
	_, ok = msg.(StreamClosedMsg)
	assert.True(t, ok, "closed channel yields StreamClosedMsg")
}

// TestWatchModelRowGrowth tests events arriving before run_started.
func TestWatchModelRowGrowth(t *testing.T) {
	t.Parallel()

	ch := make(chan domain.Event)
	m := NewWatchModel("run-1", "", ch)

	step := &domain.Step{RunID: "run-1", ID: "s3", StepNumber: 3, Action: constants.ActionWait}
	feed(m, domain.NewStepStarted(step, constants.ModeSimulation))

	rows := m.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, constants.StepStatusRunning, rows[2].Status)
	assert.Equal(t, constants.StepStatusPending, rows[0].Status)
}

// TestWatchModelView tests the rendered view includes header and steps.
func TestWatchModelView(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	ch := make(chan domain.Event)
	m := NewWatchModel("a1b2c3d4-0000-0000-0000-000000000000", "nightly sync", ch)

	step := &domain.Step{RunID: "run-1", ID: "s1", StepNumber: 1, Action: constants.ActionNavigate, Description: "open dashboard"}
	feed(m,
		domain.NewRunStarted("run-1", 1, constants.ModeSimulation),
		domain.NewStepStarted(step, constants.ModeSimulation),
		domain.NewStepCompleted(step, nil, ""),
		domain.NewRunCompleted("run-1"),
	)

	view := m.View()
	assert.Contains(t, view, "nightly sync")
	assert.Contains(t, view, "[simulation]")
	assert.Contains(t, view, "Step 1 navigate: open dashboard")
	assert.Contains(t, view, "completed")
	assert.NotContains(t, view, "Press 'q'", "finished view drops the quit hint")
}
