// Package cli implements the cobra-based CLI commands for smart-env.
//
// Each command group (generate, watch, bundle, plugin, notes, release,
// vault) is defined in its own file within this package. This file defines
// the root command that serves as the parent for all subcommands, handles
// global flags and owns the lifecycle of the app.App shared by them.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/smart-env/obsidian-smart-env/internal/app"
	"github.com/smart-env/obsidian-smart-env/internal/model"
)

// Global flag variables shared across all subcommands.
// These are bound to cobra persistent flags on the root command,
// which makes them available to every subcommand automatically.
var (
	// jsonOutput switches command results and logs to JSON.
	jsonOutput bool

	// verbose enables debug logging on stderr.
	verbose bool

	// configPath is an explicit config file. Empty searches the XDG
	// config directories.
	configPath string
)

// Version, Commit, and Date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
//
// The root command itself does not perform any action. Before any
// subcommand runs it loads the configuration, builds the logger and
// attaches an app.App to the command context; afterwards it closes the App.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "smart-env",
		Short: "Build, bundle and release tooling for Smart Environment plugins",
		Long: `smart-env generates the environment config module from source roots,
reads and installs plugin bundles, formats release notes and publishes
GitHub releases for Smart Environment Obsidian plugins.`,

		// Errors are printed by Execute in text or JSON form.
		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Tests may attach their own App.
			if app.FromContext(cmd.Context()) != nil {
				return nil
			}
			a, err := app.New(app.Options{
				ConfigPath: configPath,
				JSON:       jsonOutput,
				Verbose:    verbose,
				Out:        cmd.OutOrStdout(),
				ErrOut:     cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			cmd.SetContext(app.WithContext(cmd.Context(), a))
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a := app.FromContext(cmd.Context()); a != nil {
				return a.Close()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/smart-env/config.yaml)")

	rootCmd.AddCommand(NewGenerateCommand())
	rootCmd.AddCommand(NewScanCommand())
	rootCmd.AddCommand(NewWatchCommand())
	rootCmd.AddCommand(NewBundleCommand())
	rootCmd.AddCommand(NewPluginCommand())
	rootCmd.AddCommand(NewNotesCommand())
	rootCmd.AddCommand(NewReleaseCommand())
	rootCmd.AddCommand(NewVaultCommand())

	return rootCmd
}

// Execute runs the root command and handles exit codes.
// This is the main entry point called from main.go.
//
// CLIError types carry their own exit codes; other errors default to
// exit code 1.
func Execute(ctx context.Context, rootCmd *cobra.Command) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var cliErr *model.CLIError
		if errors.As(err, &cliErr) {
			printError(os.Stderr, cliErr.Message, cliErr.Err)
			os.Exit(int(cliErr.Code))
		}

		printError(os.Stderr, err.Error(), nil)
		os.Exit(int(model.ExitGeneralError))
	}
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag.
func printError(w io.Writer, message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	red := color.New(color.FgRed).SprintFunc()
	if underlying != nil {
		fmt.Fprintf(w, "%s %s: %v\n", red("Error:"), message, underlying)
	} else {
		fmt.Fprintf(w, "%s %s\n", red("Error:"), message)
	}
}

// appFrom returns the App attached by the root command.
func appFrom(cmd *cobra.Command) (*app.App, error) {
	a := app.FromContext(cmd.Context())
	if a == nil {
		return nil, model.NewCLIError(model.ExitGeneralError, "command run without an app environment")
	}
	return a, nil
}

// printJSON writes v to w as indented JSON.
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// Color helpers for human-readable output.
var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)
