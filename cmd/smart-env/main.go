// Package main is the entry point for the smart-env CLI.
//
// It delegates all functionality to the internal/cli package, which defines
// the cobra commands. Build-time variables (version, commit, date) are
// injected via ldflags and default to "dev", "none" and "unknown".
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/smart-env/obsidian-smart-env/internal/cli"
)

// version, commit, and date are set at build time via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	// Interrupts cancel the command context so watchers and API calls stop
	// cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cli.NewRootCommand()
	cli.Execute(ctx, rootCmd)
}
