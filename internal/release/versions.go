package release

import (
	"fmt"

	"github.com/smart-env/obsidian-smart-env/internal/manifest"
	"github.com/smart-env/obsidian-smart-env/internal/model"
)

// CheckVersions returns the release version after verifying that
// package.json and manifest.json agree on it.
func CheckVersions(m *model.Manifest, pkg *manifest.PackageJSON) (string, error) {
	if m.Version == "" {
		return "", model.NewCLIError(model.ExitVersionMismatch, "manifest.json has no version")
	}
	if manifest.Bare(m.Version) != manifest.Bare(pkg.Version) {
		return "", model.NewCLIError(
			model.ExitVersionMismatch,
			fmt.Sprintf("version mismatch: package.json is %q, manifest.json is %q", pkg.Version, m.Version),
		)
	}
	if !manifest.IsSemver(m.Version) {
		return "", model.NewCLIError(
			model.ExitVersionMismatch,
			fmt.Sprintf("version %q is not a semantic version", m.Version),
		)
	}
	return m.Version, nil
}
