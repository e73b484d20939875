package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"

	"github.com/smart-env/obsidian-smart-env/internal/model"
)

// FileName is the name of the plugin descriptor at the root of a plugin
// checkout and of a plugin bundle.
const FileName = "manifest.json"

// PackageFileName is the npm package descriptor that carries the build version.
const PackageFileName = "package.json"

// PackageJSON holds the fields of package.json that the release flow reads.
// Everything else in the file is ignored during parsing.
type PackageJSON struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Parse decodes manifest.json contents into a Manifest.
//
// Comments and trailing commas are stripped with github.com/tidwall/jsonc
// first. Hand-edited manifests in plugin repos occasionally carry them, and
// the host application tolerates them too.
func Parse(data []byte) (*model.Manifest, error) {
	var m model.Manifest
	if err := json.Unmarshal(jsonc.ToJSON(data), &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
	}
	return &m, nil
}

// Load reads and parses a manifest.json file.
//
// Returns a CLIError with ExitNotFound if the file does not exist.
func Load(path string) (*model.Manifest, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// LoadPackageJSON reads the name and version from a package.json file.
//
// Returns a CLIError with ExitNotFound if the file does not exist.
func LoadPackageJSON(path string) (*PackageJSON, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	var pkg PackageJSON
	if err := json.Unmarshal(jsonc.ToJSON(data), &pkg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &pkg, nil
}

// LoadDir loads manifest.json and package.json from a plugin checkout.
func LoadDir(dir string) (*model.Manifest, *PackageJSON, error) {
	m, err := Load(filepath.Join(dir, FileName))
	if err != nil {
		return nil, nil, err
	}
	pkg, err := LoadPackageJSON(filepath.Join(dir, PackageFileName))
	if err != nil {
		return nil, nil, err
	}
	return m, pkg, nil
}

// readFile wraps os.ReadFile so that a missing file maps to ExitNotFound.
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapCLIError(
				model.ExitNotFound,
				fmt.Sprintf("%s not found", path),
				err,
			)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
