package cli

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestServeCommandStructure verifies registration and flag set.
func TestServeCommandStructure(t *testing.T) {
	root := &cobra.Command{Use: "webrun"}
	AddServeCommand(root)

	cmd, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "serve", cmd.Name())

	for _, name := range []string{"addr", "data-dir", "no-browser", "no-ai", "no-scheduler"} {
		assert.NotNil(t, cmd.Flag(name), "flag %s should exist", name)
	}
}

// TestServeCommandRejectsArgs verifies serve takes no positional input.
func TestServeCommandRejectsArgs(t *testing.T) {
	root := &cobra.Command{Use: "webrun"}
	AddServeCommand(root)

	root.SetArgs([]string{"serve", "extra"})
	err := root.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

// TestServeCommandHelp verifies the documented toggles.
func TestServeCommandHelp(t *testing.T) {
	root := &cobra.Command{Use: "webrun"}
	AddServeCommand(root)

	cmd, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)

	assert.Contains(t, cmd.Long, "--no-browser")
	assert.Contains(t, cmd.Flag("no-browser").Usage, "simulation")
	assert.Contains(t, cmd.Short, "daemon")
}
