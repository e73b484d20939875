package envgen

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/smart-env/obsidian-smart-env/internal/model"
)

// DefaultOutputName is the file name of the generated module.
const DefaultOutputName = "smart_env.config.js"

// GenerateOptions configures Generate.
type GenerateOptions struct {
	Options

	// OutputName is the generated file's name inside the destination
	// directory. Defaults to DefaultOutputName.
	OutputName string
}

// Result summarises one generator run.
type Result struct {
	// Path is the absolute path of the generated file.
	Path string

	// Changed is false when the file already had identical content and
	// was left untouched.
	Changed bool

	// Counts holds the number of entries per category.
	Counts map[model.Category]int
}

// Generate scans roots, renders the module and writes it to destDir.
//
// The file is only rewritten when its content differs, so a file watcher
// on the destination does not see spurious modifications.
func Generate(ctx context.Context, roots []string, destDir string, opts GenerateOptions) (*Result, error) {
	catalog, err := Scan(ctx, roots, opts.Options)
	if err != nil {
		return nil, err
	}

	content, err := Render(catalog, destDir)
	if err != nil {
		return nil, err
	}

	name := opts.OutputName
	if name == "" {
		name = DefaultOutputName
	}
	outPath, err := filepath.Abs(filepath.Join(destDir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output path: %w", err)
	}

	changed, err := writeIfChanged(outPath, content)
	if err != nil {
		return nil, err
	}

	counts := make(map[model.Category]int, len(model.Categories))
	for _, cat := range model.Categories {
		counts[cat] = len(catalog.Section(cat))
	}

	return &Result{Path: outPath, Changed: changed, Counts: counts}, nil
}

// writeIfChanged writes data to path unless the file already holds exactly
// data. Parent directories are created as needed.
func writeIfChanged(path string, data []byte) (bool, error) {
	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, data) {
		return false, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}
