package cli

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/webrunhq/webrun/internal/tui"
)

// AddVersionCommand adds the version command to the root command.
func AddVersionCommand(root *cobra.Command, info BuildInfo) {
	root.AddCommand(newVersionCmd(info))
}

// newVersionCmd creates the version command.
func newVersionCmd(info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Show the webrun version, git commit, build date, and platform.

Examples:
  # Human-readable version
  webrun version

  # Machine-readable version for scripts
  webrun version -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVersion(cmd, os.Stdout, info)
		},
	}
}

// versionDetails is the JSON shape of the version command output.
type versionDetails struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// runVersion executes the version command logic.
func runVersion(cmd *cobra.Command, w io.Writer, info BuildInfo) error {
	outputFormat := cmd.Flag("output").Value.String()
	out := tui.NewOutput(w, outputFormat)

	details := versionDetails{
		Version:   orUnknown(info.Version, "dev"),
		Commit:    orUnknown(info.Commit, "none"),
		BuildDate: orUnknown(info.Date, "unknown"),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	if outputFormat == OutputJSON {
		return out.JSON(details)
	}

	out.Info(fmt.Sprintf("webrun %s", details.Version))
	out.Info(fmt.Sprintf("  commit:     %s", details.Commit))
	out.Info(fmt.Sprintf("  built:      %s", details.BuildDate))
	out.Info(fmt.Sprintf("  go version: %s", details.GoVersion))
	out.Info(fmt.Sprintf("  platform:   %s", details.Platform))
	return nil
}

// orUnknown returns fallback when value is empty.
func orUnknown(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
