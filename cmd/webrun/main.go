// Package main provides the entry point for the webrun CLI.
package main

import (
	"context"
	"os"

	"github.com/webrunhq/webrun/internal/cli"
)

// Build metadata, injected via -ldflags at release time.
var (
	version = ""
	commit  = ""
	date    = ""
)

func main() {
	ctx := context.Background()

	err := cli.Execute(ctx, cli.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	})
	cli.CloseLogFile()

	os.Exit(cli.ExitCodeForError(err))
}
