package bundle

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrUnsafePath is returned by Install for entries whose name would escape
// the target directory.
var ErrUnsafePath = errors.New("unsafe path in bundle")

// Install writes files under dir, creating directories as needed. Existing
// files are overwritten.
//
// Every name is validated before anything is written: absolute names,
// backslashes and ".." segments are rejected with ErrUnsafePath.
func Install(dir string, files []File) error {
	targets := make([]string, len(files))
	for i, f := range files {
		rel, err := safeRelPath(f.Name)
		if err != nil {
			return err
		}
		targets[i] = filepath.Join(dir, rel)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	for i, f := range files {
		if err := os.MkdirAll(filepath.Dir(targets[i]), 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", f.Name, err)
		}
		if err := os.WriteFile(targets[i], f.Data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.Name, err)
		}
	}
	return nil
}

// safeRelPath validates an archive entry name and returns it as an OS path
// relative to the install directory.
func safeRelPath(name string) (string, error) {
	if name == "" || strings.Contains(name, `\`) || path.IsAbs(name) || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
		}
	}
	clean := path.Clean(name)
	if clean == "." {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return filepath.FromSlash(clean), nil
}
