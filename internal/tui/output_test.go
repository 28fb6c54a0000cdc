package tui

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewOutput tests format-based output selection.
func TestNewOutput(t *testing.T) {
	var buf bytes.Buffer

	out := NewOutput(&buf, "json")
	_, ok := out.(*JSONOutput)
	assert.True(t, ok, "json format should select JSONOutput")

	out = NewOutput(&buf, "text")
	_, ok = out.(*TTYOutput)
	assert.True(t, ok, "text format should select TTYOutput")
}

// TestTTYOutputMessages tests the message methods include icon and text.
func TestTTYOutputMessages(t *testing.T) {
	var buf bytes.Buffer
	out := NewTTYOutput(&buf)

	out.Success("workflow created")
	assert.Contains(t, buf.String(), "✓")
	assert.Contains(t, buf.String(), "workflow created")

	buf.Reset()
	out.Error(errors.New("connection refused"))
	assert.Contains(t, buf.String(), "✗")
	assert.Contains(t, buf.String(), "connection refused")

	buf.Reset()
	out.Warning("browser unavailable, using simulation")
	assert.Contains(t, buf.String(), "⚠")
	assert.Contains(t, buf.String(), "simulation")

	buf.Reset()
	out.Info("2 workflows")
	assert.Contains(t, buf.String(), "2 workflows")
}

// TestTTYOutputTable tests column alignment against the widest cell.
func TestTTYOutputTable(t *testing.T) {
	var buf bytes.Buffer
	out := NewTTYOutput(&buf)

	out.Table(
		[]string{"ID", "STATUS"},
		[][]string{
			{"a1b2", "completed"},
			{"c3d4-longer", "failed"},
		},
	)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "ID")
	assert.Contains(t, lines[0], "STATUS")
	// The status column starts at the same offset on every line.
	assert.Equal(t,
		strings.Index(lines[1], "completed"),
		strings.Index(lines[2], "failed"))
}

// TestTTYOutputTableNoHeaders tests that an empty header set renders nothing.
func TestTTYOutputTableNoHeaders(t *testing.T) {
	var buf bytes.Buffer
	out := NewTTYOutput(&buf)

	out.Table(nil, [][]string{{"a"}})
	assert.Empty(t, buf.String())
}

// TestJSONOutputMessages tests the structured message shapes.
func TestJSONOutputMessages(t *testing.T) {
	var buf bytes.Buffer
	out := NewJSONOutput(&buf)

	out.Success("run started")
	var msg map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &msg))
	assert.Equal(t, "success", msg["type"])
	assert.Equal(t, "run started", msg["message"])

	buf.Reset()
	out.Error(errors.New("run not found"))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &msg))
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "run not found", msg["message"])
}

// TestJSONOutputTable tests rows keyed by header name.
func TestJSONOutputTable(t *testing.T) {
	var buf bytes.Buffer
	out := NewJSONOutput(&buf)

	out.Table([]string{"id", "status"}, [][]string{{"r1", "running"}, {"r2"}})

	var rows []map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "running", rows[0]["status"])
	assert.Equal(t, "", rows[1]["status"], "missing cells fill with empty strings")
}

// TestJSONOutputJSON tests arbitrary value encoding.
func TestJSONOutputJSON(t *testing.T) {
	var buf bytes.Buffer
	out := NewJSONOutput(&buf)

	require.NoError(t, out.JSON(map[string]int{"total_steps": 4}))

	var v map[string]int
	require.NoError(t, json.Unmarshal(buf.Bytes(), &v))
	assert.Equal(t, 4, v["total_steps"])
}
