// Package model defines the domain types for the smart-env CLI.
//
// The types here are shared between the generator, the bundle reader, the
// plugin client, the release tooling and the watchers. None of them is
// persisted by this repository; they describe data owned by plugin bundles,
// manifest files and the remote distribution endpoint.
package model

import (
	"fmt"
	"regexp"
	"strings"
)

// Category is one of the conventional source subfolders scanned by the
// config generator.
type Category string

const (
	// CategoryCollections holds collection classes, one per file.
	CategoryCollections Category = "collections"

	// CategoryItems holds item classes, one per file. Each item also gets a
	// PascalCase class identifier in the generated config.
	CategoryItems Category = "items"

	// CategoryModules holds standalone modules, one per file.
	CategoryModules Category = "modules"

	// CategoryComponents holds render components, scanned recursively.
	// A file qualifies only when it exports "render".
	CategoryComponents Category = "components"

	// CategoryActions holds actions, scanned recursively. A file qualifies
	// when it exports a function named after itself.
	CategoryActions Category = "actions"
)

// Categories lists every category in the order the generator emits them.
var Categories = []Category{
	CategoryCollections,
	CategoryItems,
	CategoryModules,
	CategoryComponents,
	CategoryActions,
}

// String returns the folder name of the category.
func (c Category) String() string {
	return string(c)
}

// IsValid reports whether c is one of the known categories.
func (c Category) IsValid() bool {
	switch c {
	case CategoryCollections, CategoryItems, CategoryModules, CategoryComponents, CategoryActions:
		return true
	default:
		return false
	}
}

// IsRecursive reports whether the category is scanned through nested folders.
// Flat categories only look at direct children of their folder.
func (c Category) IsRecursive() bool {
	return c == CategoryComponents || c == CategoryActions
}

// ParseCategory converts a folder name to a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(s))
	if !c.IsValid() {
		return "", fmt.Errorf("invalid category: %q (valid: collections, items, modules, components, actions)", s)
	}
	return c, nil
}

// EventKind classifies a file-system change observed by a watcher.
type EventKind string

const (
	// EventCreate is a newly created file or directory.
	EventCreate EventKind = "create"

	// EventModify is a content change to an existing file.
	EventModify EventKind = "modify"

	// EventRename is the old path of a renamed file. The new path arrives
	// separately as EventCreate.
	EventRename EventKind = "rename"

	// EventDelete is a removed file.
	EventDelete EventKind = "delete"
)

// String returns the string form of the event kind.
func (k EventKind) String() string {
	return string(k)
}

// IsValid reports whether k is a known event kind.
func (k EventKind) IsValid() bool {
	switch k {
	case EventCreate, EventModify, EventRename, EventDelete:
		return true
	default:
		return false
	}
}

// ParseEventKind converts a string to an EventKind.
func ParseEventKind(s string) (EventKind, error) {
	k := EventKind(strings.ToLower(s))
	if !k.IsValid() {
		return "", fmt.Errorf("invalid event kind: %q (valid: create, modify, rename, delete)", s)
	}
	return k, nil
}

// Manifest is the plugin descriptor found at the root of a plugin bundle and
// next to the built plugin in a release checkout (manifest.json).
type Manifest struct {
	// ID is the plugin identifier and the name of its folder under
	// .obsidian/plugins/.
	ID string `json:"id"`

	// Name is the display name.
	Name string `json:"name"`

	// Version is the plugin version without a "v" prefix (e.g. "2.1.0").
	Version string `json:"version"`

	// MinAppVersion is the lowest host application version supported.
	MinAppVersion string `json:"minAppVersion,omitempty"`

	Description string `json:"description,omitempty"`
	Author      string `json:"author,omitempty"`
	AuthorURL   string `json:"authorUrl,omitempty"`

	// IsDesktopOnly marks plugins that rely on desktop-only APIs.
	IsDesktopOnly bool `json:"isDesktopOnly,omitempty"`
}

// pluginIDRegex matches lowercase kebab-case plugin identifiers.
var pluginIDRegex = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidatePluginID checks that id is safe to use as a folder name under
// .obsidian/plugins/.
func ValidatePluginID(id string) error {
	if id == "" {
		return fmt.Errorf("plugin id must not be empty")
	}
	if !pluginIDRegex.MatchString(id) {
		return fmt.Errorf("invalid plugin id %q: must be lowercase alphanumeric words separated by hyphens", id)
	}
	return nil
}

// PluginInfo describes one plugin offered by the distribution endpoint.
type PluginInfo struct {
	// Repo is the identifier passed back to /plugin_download and /plugin_readme.
	Repo string `json:"repo"`

	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
}

// ExitCode defines the process exit codes of the CLI.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitNotFound indicates a required file (config, manifest.json,
	// package.json) does not exist.
	ExitNotFound ExitCode = 2

	// ExitVersionMismatch indicates package.json and manifest.json disagree
	// on the version being released.
	ExitVersionMismatch ExitCode = 3

	// ExitMissingCredentials indicates no API token was available.
	ExitMissingCredentials ExitCode = 4

	// ExitGitError indicates a git invocation failed.
	ExitGitError ExitCode = 5

	// ExitRemoteError indicates the GitHub API or the plugin server
	// returned an error.
	ExitRemoteError ExitCode = 6

	// ExitUserCancelled indicates the user declined an interactive prompt.
	ExitUserCancelled ExitCode = 7

	// ExitInvalidBundle indicates a plugin bundle could not be read or had
	// no usable manifest.
	ExitInvalidBundle ExitCode = 8
)

// CLIError is an error that carries the exit code the process should use.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error returns the message, followed by the underlying error when present.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
