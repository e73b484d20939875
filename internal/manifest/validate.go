package manifest

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/smart-env/obsidian-smart-env/internal/model"
)

// ValidationError represents a specific validation failure in a manifest.
type ValidationError struct {
	// Field is the JSON field that failed validation (e.g., "version").
	Field string

	// Message describes what's wrong with the field value.
	Message string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("manifest.json validation error: %s: %s", e.Field, e.Message)
}

// Validate checks a manifest before it is installed or released and returns
// every problem found (an empty list means the manifest is usable).
//
// Checks performed:
//   - id: present and usable as a plugin folder name
//   - name: present
//   - version: a semantic version, with or without a "v" prefix
//   - minAppVersion: a semantic version when set
func Validate(m *model.Manifest) []ValidationError {
	var errs []ValidationError

	if err := model.ValidatePluginID(m.ID); err != nil {
		errs = append(errs, ValidationError{Field: "id", Message: err.Error()})
	}

	if strings.TrimSpace(m.Name) == "" {
		errs = append(errs, ValidationError{Field: "name", Message: "name is required"})
	}

	if m.Version == "" {
		errs = append(errs, ValidationError{Field: "version", Message: "version is required"})
	} else if !IsSemver(m.Version) {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("%q is not a semantic version", m.Version),
		})
	}

	if m.MinAppVersion != "" && !IsSemver(m.MinAppVersion) {
		errs = append(errs, ValidationError{
			Field:   "minAppVersion",
			Message: fmt.Sprintf("%q is not a semantic version", m.MinAppVersion),
		})
	}

	return errs
}

// Canonical returns v with a "v" prefix, the form golang.org/x/mod/semver
// expects. Plugin manifests store versions without the prefix.
func Canonical(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// IsSemver reports whether v is a semantic version, prefix optional.
func IsSemver(v string) bool {
	return semver.IsValid(Canonical(v))
}

// Bare strips a leading "v" from a version string.
func Bare(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}
