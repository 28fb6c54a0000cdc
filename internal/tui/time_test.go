package tui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/webrunhq/webrun/internal/clock"
)

// TestRelativeTimeWith tests the relative time buckets.
func TestRelativeTimeWith(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	c := clock.Fixed{At: now}

	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{name: "seconds ago", t: now.Add(-30 * time.Second), want: "just now"},
		{name: "one minute", t: now.Add(-61 * time.Second), want: "1 minute ago"},
		{name: "minutes", t: now.Add(-5 * time.Minute), want: "5 minutes ago"},
		{name: "one hour", t: now.Add(-90 * time.Minute), want: "1 hour ago"},
		{name: "hours", t: now.Add(-7 * time.Hour), want: "7 hours ago"},
		{name: "one day", t: now.Add(-25 * time.Hour), want: "1 day ago"},
		{name: "days", t: now.Add(-3 * 24 * time.Hour), want: "3 days ago"},
		{name: "one week", t: now.Add(-8 * 24 * time.Hour), want: "1 week ago"},
		{name: "weeks", t: now.Add(-20 * 24 * time.Hour), want: "2 weeks ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, RelativeTimeWith(tt.t, c))
		})
	}
}

// TestFormatDuration tests duration rendering at both scales.
func TestFormatDuration(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "3.5s", FormatDuration(start, start.Add(3500*time.Millisecond)))
	assert.Equal(t, "2m05s", FormatDuration(start, start.Add(125*time.Second)))
	assert.Equal(t, "0.0s", FormatDuration(start, start.Add(-time.Second)), "negative clamps to zero")
}
