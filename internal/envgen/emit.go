// emit.go renders a Catalog as the generated JavaScript module.
//
// The output is a pure function of the catalog and the destination
// directory: imports are ordered by section then key, every section is
// always present, and object keys are sorted. Running the generator twice
// over an unchanged tree therefore produces byte-identical files.
package envgen

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/smart-env/obsidian-smart-env/internal/model"
)

// Header is the first line of every generated module.
const Header = "// Generated by smart-env generate. DO NOT EDIT."

// ConfigExportName is the name of the exported configuration object.
const ConfigExportName = "smart_env_config"

// Render produces the generated module for catalog. Import paths are made
// relative to destDir.
func Render(catalog *Catalog, destDir string) ([]byte, error) {
	absDest, err := filepath.Abs(destDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve destination %q: %w", destDir, err)
	}

	var b strings.Builder
	b.WriteString(Header)
	b.WriteString("\n\n")

	// Imports, one statement per binding.
	imports := 0
	for _, cat := range model.Categories {
		for _, e := range catalog.Section(cat) {
			spec, err := importPath(absDest, e.Path)
			if err != nil {
				return nil, err
			}
			writeImport(&b, e.Export, e.Ident, spec)
			imports++
			for _, c := range e.Companions {
				writeImport(&b, c, e.CompanionIdent(c), spec)
				imports++
			}
		}
	}
	if imports > 0 {
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "export const %s = {\n", ConfigExportName)

	writeSection(&b, "collections", flatLines(catalog.Section(model.CategoryCollections)))
	writeSection(&b, "item_types", itemTypeLines(catalog.Section(model.CategoryItems)))
	writeSection(&b, "items", itemLines(catalog.Section(model.CategoryItems)))
	writeSection(&b, "modules", flatLines(catalog.Section(model.CategoryModules)))
	writeSection(&b, "components", componentLines(catalog.Section(model.CategoryComponents)))
	writeSection(&b, "actions", actionLines(catalog.Section(model.CategoryActions)))

	b.WriteString("};\n")
	return []byte(b.String()), nil
}

func writeImport(b *strings.Builder, export, ident, spec string) {
	fmt.Fprintf(b, "import { %s as %s } from '%s';\n", export, ident, spec)
}

// sectionLine is one "key: value" line of a config section.
type sectionLine struct {
	key   string
	value string
}

// writeSection writes a section with its lines sorted by key. An empty
// section is written as "{}".
func writeSection(b *strings.Builder, name string, lines []sectionLine) {
	if len(lines) == 0 {
		fmt.Fprintf(b, "  %s: {},\n", name)
		return
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].key < lines[j].key })

	fmt.Fprintf(b, "  %s: {\n", name)
	for _, l := range lines {
		fmt.Fprintf(b, "    %s: %s,\n", objectKey(l.key), l.value)
	}
	b.WriteString("  },\n")
}

func flatLines(entries []Entry) []sectionLine {
	lines := make([]sectionLine, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, sectionLine{key: e.Key, value: e.Ident})
	}
	return lines
}

func itemTypeLines(entries []Entry) []sectionLine {
	lines := make([]sectionLine, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, sectionLine{key: e.Class, value: e.Ident})
	}
	return lines
}

func itemLines(entries []Entry) []sectionLine {
	lines := make([]sectionLine, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, sectionLine{key: e.Key, value: fmt.Sprintf("{ class: %s }", e.Ident)})
	}
	return lines
}

func componentLines(entries []Entry) []sectionLine {
	lines := make([]sectionLine, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, sectionLine{key: e.Key, value: fmt.Sprintf("{ render: %s }", e.Ident)})
	}
	return lines
}

func actionLines(entries []Entry) []sectionLine {
	lines := make([]sectionLine, 0, len(entries))
	for _, e := range entries {
		fields := []string{"action: " + e.Ident}
		for _, c := range e.Companions {
			fields = append(fields, c+": "+e.CompanionIdent(c))
		}
		lines = append(lines, sectionLine{key: e.Key, value: "{ " + strings.Join(fields, ", ") + " }"})
	}
	return lines
}

// importPath returns the module specifier of target relative to destDir,
// using forward slashes and a "./" prefix for paths inside destDir.
func importPath(destDir, target string) (string, error) {
	rel, err := filepath.Rel(destDir, target)
	if err != nil {
		return "", fmt.Errorf("failed to compute import path for %s: %w", target, err)
	}
	rel = filepath.ToSlash(rel)
	if !strings.HasPrefix(rel, "../") {
		rel = "./" + rel
	}
	return rel, nil
}
