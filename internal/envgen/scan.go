package envgen

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/smart-env/obsidian-smart-env/internal/model"
)

// CompanionExports are the optional exports probed on every action. Each
// one that is present becomes an extra import and an extra field on the
// action's config entry, in this order.
var CompanionExports = []string{
	"default_settings",
	"settings_config",
	"display_name",
	"display_description",
	"pre_process",
}

// Options configures a scan.
type Options struct {
	// Extension is the source file extension, including the dot.
	// Defaults to ".js".
	Extension string

	// Cache, when set, is used to look up named exports of components and
	// actions. A nil cache reads every file on each scan.
	Cache *ExportCache
}

func (o Options) extension() string {
	if o.Extension == "" {
		return DefaultExtension
	}
	if !strings.HasPrefix(o.Extension, ".") {
		return "." + o.Extension
	}
	return o.Extension
}

// DefaultExtension is the source extension scanned when none is configured.
const DefaultExtension = ".js"

// Entry is one discovered unit that the generated module imports.
type Entry struct {
	// Category is the subfolder the entry was found in.
	Category model.Category

	// Key is the entry's key in its config section.
	Key string

	// Export is the original export name bound by the import
	// ("default", "render", a class name or an action name).
	Export string

	// Ident is the globally unique identifier the export is imported as.
	Ident string

	// Class is the PascalCase class identifier of an item. Empty otherwise.
	Class string

	// Path is the absolute path of the source file.
	Path string

	// Companions lists the companion exports found on an action, in
	// CompanionExports order. Empty otherwise.
	Companions []string

	// Root is the root directory the entry came from.
	Root string
}

// CompanionIdent returns the import identifier of an action companion.
func (e Entry) CompanionIdent(companion string) string {
	return e.Ident + "__" + companion
}

// overrideID is the identity under which later roots replace earlier ones:
// the import identifier for components and actions, the key otherwise.
func (e Entry) overrideID() string {
	if e.Category.IsRecursive() {
		return e.Ident
	}
	return e.Key
}

// Catalog holds the merged entries of every category, each list sorted by key.
type Catalog struct {
	Entries map[model.Category][]Entry
}

// Section returns the sorted entries of one category.
func (c *Catalog) Section(cat model.Category) []Entry {
	return c.Entries[cat]
}

// Count returns the total number of entries.
func (c *Catalog) Count() int {
	n := 0
	for _, entries := range c.Entries {
		n += len(entries)
	}
	return n
}

// Scan discovers entries under every root and merges them, later roots
// overriding earlier ones.
//
// Each (root, category) pair is scanned concurrently; results are merged in
// root order afterwards, so the outcome does not depend on scheduling.
// A root or category folder that does not exist contributes nothing.
func Scan(ctx context.Context, roots []string, opts Options) (*Catalog, error) {
	absRoots := make([]string, len(roots))
	for i, r := range roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root %q: %w", r, err)
		}
		absRoots[i] = abs
	}

	// results[rootIndex][categoryIndex]
	results := make([][][]Entry, len(absRoots))
	for i := range results {
		results[i] = make([][]Entry, len(model.Categories))
	}

	g, gctx := errgroup.WithContext(ctx)
	for ri, root := range absRoots {
		ri, root := ri, root
		for ci, cat := range model.Categories {
			ci, cat := ci, cat
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				entries, err := scanCategory(root, cat, opts)
				if err != nil {
					return err
				}
				results[ri][ci] = entries
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	catalog := &Catalog{Entries: make(map[model.Category][]Entry, len(model.Categories))}
	for ci, cat := range model.Categories {
		merged := make(map[string]Entry)
		for ri := range absRoots {
			for _, e := range results[ri][ci] {
				merged[e.overrideID()] = e
			}
		}

		entries := make([]Entry, 0, len(merged))
		for _, e := range merged {
			entries = append(entries, e)
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].Key != entries[j].Key {
				return entries[i].Key < entries[j].Key
			}
			return entries[i].Ident < entries[j].Ident
		})
		if cat == model.CategoryItems {
			if err := checkItemClasses(entries); err != nil {
				return nil, err
			}
		}
		catalog.Entries[cat] = entries
	}

	return catalog, nil
}

// checkItemClasses rejects items whose keys map to the same class name,
// since item_types is keyed by class.
func checkItemClasses(entries []Entry) error {
	seen := make(map[string]string, len(entries))
	for _, e := range entries {
		if prev, ok := seen[e.Class]; ok {
			return fmt.Errorf("items %q and %q both map to class %s; rename one of them", prev, e.Key, e.Class)
		}
		seen[e.Class] = e.Key
	}
	return nil
}

// scanCategory scans one category folder of one root.
func scanCategory(root string, cat model.Category, opts Options) ([]Entry, error) {
	dir := filepath.Join(root, cat.String())
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, nil
	}

	if cat.IsRecursive() {
		return scanRecursive(root, dir, cat, opts)
	}
	return scanFlat(root, dir, cat, opts)
}

// scanFlat handles collections, items and modules: direct children only.
func scanFlat(root, dir string, cat model.Category, opts Options) ([]Entry, error) {
	// os.ReadDir returns entries sorted by filename.
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	ext := opts.extension()
	var entries []Entry
	for _, de := range dirEntries {
		if de.IsDir() || !isSourceFile(de.Name(), ext) {
			continue
		}

		key := ToSnakeCase(strings.TrimSuffix(de.Name(), ext))
		if key == "" {
			continue
		}

		e := Entry{
			Category: cat,
			Key:      key,
			Export:   "default",
			Ident:    cat.String() + "_" + key,
			Path:     filepath.Join(dir, de.Name()),
			Root:     root,
		}
		if cat == model.CategoryItems {
			e.Class = ToPascalCase(key)
			e.Export = e.Class
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// scanRecursive handles components and actions: every nested source file
// whose contents declare the qualifying export.
func scanRecursive(root, dir string, cat model.Category, opts Options) ([]Entry, error) {
	ext := opts.extension()
	var entries []Entry

	// filepath.WalkDir visits entries in lexical order, which keeps the
	// within-root override order deterministic.
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path != dir && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !isSourceFile(d.Name(), ext) {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		segments := strings.Split(filepath.ToSlash(rel), "/")
		stem := strings.TrimSuffix(segments[len(segments)-1], ext)
		key := FlattenKey(segments[:len(segments)-1], stem)
		if key == "" {
			return nil
		}

		names, err := exportsOf(path, opts.Cache)
		if err != nil {
			return fmt.Errorf("failed to scan exports of %s: %w", path, err)
		}

		e, ok := qualify(cat, key, stem, names)
		if !ok {
			return nil
		}
		e.Path = path
		e.Root = root
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// qualify decides whether a component or action file is registered and
// fills in its import binding.
func qualify(cat model.Category, key, stem string, names map[string]struct{}) (Entry, bool) {
	switch cat {
	case model.CategoryComponents:
		if _, ok := names["render"]; !ok {
			return Entry{}, false
		}
		return Entry{
			Category: cat,
			Key:      key,
			Export:   "render",
			Ident:    "components_" + key + "__render",
		}, true

	case model.CategoryActions:
		export := ""
		if _, ok := names[stem]; ok {
			export = stem
		} else if _, ok := names[key]; ok {
			export = key
		}
		if export == "" {
			return Entry{}, false
		}

		var companions []string
		for _, c := range CompanionExports {
			if _, ok := names[c]; ok {
				companions = append(companions, c)
			}
		}
		return Entry{
			Category:   cat,
			Key:        key,
			Export:     export,
			Ident:      "actions_" + key,
			Companions: companions,
		}, true
	}
	return Entry{}, false
}

func exportsOf(path string, cache *ExportCache) (map[string]struct{}, error) {
	if cache != nil {
		return cache.Names(path)
	}
	return readExports(path)
}

// isSourceFile reports whether name is a non-hidden source file that is not
// a test or spec file.
func isSourceFile(name, ext string) bool {
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ext) {
		return false
	}
	if strings.HasSuffix(name, ".test"+ext) || strings.HasSuffix(name, ".spec"+ext) {
		return false
	}
	return true
}

// skipDir reports whether a nested folder is ignored by recursive scans.
func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules"
}
