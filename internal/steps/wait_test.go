package steps

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webrunhq/webrun/internal/constants"
	"github.com/webrunhq/webrun/internal/domain"
)

// TestWaitDuration verifies value parsing and its fallbacks.
func TestWaitDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "whole seconds", value: "3", want: 3 * time.Second},
		{name: "fractional seconds", value: "1.5", want: 1500 * time.Millisecond},
		{name: "surrounding whitespace", value: " 2.5 ", want: 2500 * time.Millisecond},
		{name: "zero", value: "0", want: 0},
		{name: "empty falls back", value: "", want: 2 * time.Second},
		{name: "malformed falls back", value: "soon", want: 2 * time.Second},
		{name: "negative falls back", value: "-4", want: 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, waitDuration(tt.value))
		})
	}
}

// TestWaitLive verifies the live path pauses, lets the network settle and
// reports the page URL.
func TestWaitLive(t *testing.T) {
	rec := stubSleep(t)
	session := &mockSession{currentURL: "https://example.com/results"}
	rc := &RunContext{Session: session}

	step := newStep(constants.ActionWait)
	step.Value = "1.5"

	got, err := NewWaitExecutor().Execute(context.Background(), rc, step)
	require.NoError(t, err)

	result, ok := got.(*domain.WaitResult)
	require.True(t, ok)
	assert.Equal(t, int64(1500), result.WaitedMS)
	assert.True(t, result.PageReady)
	assert.Equal(t, "https://example.com/results", result.CurrentURL)
	assert.True(t, result.Live)
	assert.False(t, result.Simulated)

	assert.Equal(t, []time.Duration{1500 * time.Millisecond}, rec.durations())
	assert.Equal(t, 1, session.idleCalls)
	assert.Equal(t, constants.PostWaitIdleTimeout, session.idleLimit)
}

// TestWaitSimulated verifies the fabricated wait record pauses for the same
// span it reports.
func TestWaitSimulated(t *testing.T) {
	rec := stubSleep(t)
	rc := &RunContext{}

	step := newStep(constants.ActionWait)
	step.Value = "3"

	got, err := NewWaitExecutor().Execute(context.Background(), rc, step)
	require.NoError(t, err)

	result, ok := got.(*domain.WaitResult)
	require.True(t, ok)
	assert.Equal(t, int64(3000), result.WaitedMS)
	assert.True(t, result.PageReady)
	assert.True(t, result.Simulated)
	assert.Empty(t, result.CurrentURL)

	assert.Equal(t, []time.Duration{3 * time.Second}, rec.durations())
}

// TestWaitSimulatedDefault verifies an absent value pauses for the default
// two seconds.
func TestWaitSimulatedDefault(t *testing.T) {
	rec := stubSleep(t)

	got, err := NewWaitExecutor().Execute(context.Background(), &RunContext{}, newStep(constants.ActionWait))
	require.NoError(t, err)

	assert.Equal(t, int64(2000), got.(*domain.WaitResult).WaitedMS)
	assert.Equal(t, []time.Duration{2 * time.Second}, rec.durations())
}

// TestWaitCanceled verifies cancellation interrupts the pause.
func TestWaitCanceled(t *testing.T) {
	stubSleep(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewWaitExecutor().Execute(ctx, &RunContext{}, newStep(constants.ActionWait))
	require.ErrorIs(t, err, context.Canceled)
}
