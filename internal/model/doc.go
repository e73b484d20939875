// Package model defines the domain types and value objects for the
// smart-env CLI.
//
// This package contains pure data structures with no external dependencies:
// generator categories, watcher event kinds, the plugin Manifest and the
// PluginInfo records served by the distribution endpoint.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
