package envgen

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smart-env/obsidian-smart-env/internal/model"
)

// writeTree creates files (relative path → content) under root.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestGenerate_Golden(t *testing.T) {
	dest := t.TempDir()
	writeTree(t, dest, map[string]string{
		"src/collections/SmartSources.js":          "export default class SmartSources {}",
		"src/items/smart-source.js":                "export class SmartSource {}",
		"src/components/settings/env-panel.js":     "export function render(scope) {}",
		"src/actions/lookup.js":                    "export async function lookup() {}\nexport const display_name = 'Lookup';",
		"src/components/settings/env-panel.test.js": "export function render() {}",
	})

	result, err := Generate(context.Background(), []string{filepath.Join(dest, "src")}, dest, GenerateOptions{})
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, filepath.Join(dest, DefaultOutputName), result.Path)
	assert.Equal(t, 1, result.Counts[model.CategoryCollections])
	assert.Equal(t, 1, result.Counts[model.CategoryItems])
	assert.Equal(t, 0, result.Counts[model.CategoryModules])
	assert.Equal(t, 1, result.Counts[model.CategoryComponents])
	assert.Equal(t, 1, result.Counts[model.CategoryActions])

	want := `// Generated by smart-env generate. DO NOT EDIT.

import { default as collections_smart_sources } from './src/collections/SmartSources.js';
import { SmartSource as items_smart_source } from './src/items/smart-source.js';
import { render as components_settings_env_panel__render } from './src/components/settings/env-panel.js';
import { lookup as actions_lookup } from './src/actions/lookup.js';
import { display_name as actions_lookup__display_name } from './src/actions/lookup.js';

export const smart_env_config = {
  collections: {
    smart_sources: collections_smart_sources,
  },
  item_types: {
    SmartSource: items_smart_source,
  },
  items: {
    smart_source: { class: items_smart_source },
  },
  modules: {},
  components: {
    settings_env_panel: { render: components_settings_env_panel__render },
  },
  actions: {
    lookup: { action: actions_lookup, display_name: actions_lookup__display_name },
  },
};
`
	got, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	assert.Equal(t, want, string(got))
}

func TestGenerate_Idempotent(t *testing.T) {
	dest := t.TempDir()
	root := filepath.Join(dest, "src")
	writeTree(t, root, map[string]string{
		"collections/smart_sources.js": "export default {}",
		"collections/smart_blocks.js":  "export default {}",
		"modules/smart_fs.js":          "export default {}",
		"components/a/b/view.js":       "export function render() {}",
		"components/z.js":              "export { build as render };",
		"actions/context/copy.js":      "export function copy() {}\nexport const pre_process = () => {};",
	})

	cache, err := NewExportCache(0)
	require.NoError(t, err)
	opts := GenerateOptions{Options: Options{Cache: cache}}

	first, err := Generate(context.Background(), []string{root}, dest, opts)
	require.NoError(t, err)
	assert.True(t, first.Changed)
	firstContent, err := os.ReadFile(first.Path)
	require.NoError(t, err)

	info1, err := os.Stat(first.Path)
	require.NoError(t, err)

	second, err := Generate(context.Background(), []string{root}, dest, opts)
	require.NoError(t, err)
	assert.False(t, second.Changed, "unchanged tree must not rewrite the file")

	secondContent, err := os.ReadFile(second.Path)
	require.NoError(t, err)
	assert.Equal(t, firstContent, secondContent)

	info2, err := os.Stat(second.Path)
	require.NoError(t, err)
	assert.Equal(t, info1.ModTime(), info2.ModTime())

	// Both passes must render identically when rendered directly too.
	catalog, err := Scan(context.Background(), []string{root}, opts.Options)
	require.NoError(t, err)
	rendered, err := Render(catalog, dest)
	require.NoError(t, err)
	assert.Equal(t, firstContent, rendered)
}

func TestScan_ComponentWithoutRenderExcluded(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"components/with_render.js":    "export function render() {}",
		"components/without_render.js": "export function draw() {}",
		"components/default_only.js":   "export default function render() {}",
	})

	catalog, err := Scan(context.Background(), []string{root}, Options{})
	require.NoError(t, err)

	section := catalog.Section(model.CategoryComponents)
	require.Len(t, section, 1)
	assert.Equal(t, "with_render", section[0].Key)

	out, err := Render(catalog, root)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "without_render")
	assert.NotContains(t, string(out), "default_only")
}

func TestScan_ActionQualification(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		// Export named after the stem.
		"actions/search/lookup.js": "export function lookup() {}",
		// Export named after the flattened key.
		"actions/context/copy.js": "export function context_copy() {}",
		// Neither.
		"actions/helpers.js": "export function helper() {}",
	})

	catalog, err := Scan(context.Background(), []string{root}, Options{})
	require.NoError(t, err)

	section := catalog.Section(model.CategoryActions)
	require.Len(t, section, 2)

	assert.Equal(t, "context_copy", section[0].Key)
	assert.Equal(t, "context_copy", section[0].Export)
	assert.Equal(t, "actions_context_copy", section[0].Ident)

	assert.Equal(t, "search_lookup", section[1].Key)
	assert.Equal(t, "lookup", section[1].Export)
}

func TestScan_ActionCompanions(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"actions/lookup.js": strings.Join([]string{
			"export async function lookup() {}",
			"export const pre_process = () => {};",
			"export const display_name = 'Lookup';",
			"export const unrelated = 1;",
		}, "\n"),
	})

	catalog, err := Scan(context.Background(), []string{root}, Options{})
	require.NoError(t, err)

	section := catalog.Section(model.CategoryActions)
	require.Len(t, section, 1)
	assert.Equal(t, []string{"display_name", "pre_process"}, section[0].Companions)

	out, err := Render(catalog, root)
	require.NoError(t, err)
	s := string(out)
	assert.Contains(t, s, "import { display_name as actions_lookup__display_name } from './actions/lookup.js';")
	assert.Contains(t, s, "import { pre_process as actions_lookup__pre_process } from './actions/lookup.js';")
	assert.NotContains(t, s, "default_settings")
	assert.NotContains(t, s, "unrelated")
	assert.Contains(t, s, "lookup: { action: actions_lookup, display_name: actions_lookup__display_name, pre_process: actions_lookup__pre_process },")
}

func TestScan_LaterRootOverrides(t *testing.T) {
	base := t.TempDir()
	first := filepath.Join(base, "core")
	second := filepath.Join(base, "plugin")

	writeTree(t, first, map[string]string{
		"collections/SmartSources.js": "export default {}",
		"collections/smart_blocks.js": "export default {}",
		"components/view.js":          "export function render() {}",
	})
	writeTree(t, second, map[string]string{
		"collections/smart_sources.js": "export default {}",
		"components/view.js":           "export function render() {}",
	})

	catalog, err := Scan(context.Background(), []string{first, second}, Options{})
	require.NoError(t, err)

	collections := catalog.Section(model.CategoryCollections)
	require.Len(t, collections, 2)
	assert.Equal(t, "smart_blocks", collections[0].Key)
	assert.Equal(t, first, collections[0].Root)
	assert.Equal(t, "smart_sources", collections[1].Key)
	assert.Equal(t, second, collections[1].Root)

	out, err := Render(catalog, base)
	require.NoError(t, err)
	s := string(out)
	assert.Equal(t, 1, strings.Count(s, "as collections_smart_sources "))
	assert.Contains(t, s, "from './plugin/collections/smart_sources.js';")
	assert.NotContains(t, s, "./core/collections/SmartSources.js")
	assert.Equal(t, 1, strings.Count(s, "as components_view__render "))
	assert.Contains(t, s, "from './plugin/components/view.js';")
}

func TestScan_MissingFolders(t *testing.T) {
	root := t.TempDir()

	catalog, err := Scan(context.Background(), []string{root, filepath.Join(root, "does-not-exist")}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, catalog.Count())

	out, err := Render(catalog, root)
	require.NoError(t, err)

	want := `// Generated by smart-env generate. DO NOT EDIT.

export const smart_env_config = {
  collections: {},
  item_types: {},
  items: {},
  modules: {},
  components: {},
  actions: {},
};
`
	assert.Equal(t, want, string(out))
}

func TestScan_ItemClassCollision(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"items/v2.js":  "export class V2 {}",
		"items/v_2.js": "export class V2 {}",
	})

	_, err := Scan(context.Background(), []string{root}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "class V2")
}

func TestScan_ItemOverrideIsNotCollision(t *testing.T) {
	base, plugin := t.TempDir(), t.TempDir()
	writeTree(t, base, map[string]string{"items/smart_source.js": "export class SmartSource {}"})
	writeTree(t, plugin, map[string]string{"items/smart_source.js": "export class SmartSource {}"})

	catalog, err := Scan(context.Background(), []string{base, plugin}, Options{})
	require.NoError(t, err)
	items := catalog.Section(model.CategoryItems)
	require.Len(t, items, 1)
	assert.Equal(t, plugin, items[0].Root)
}

func TestScan_SkipsHiddenAndVendored(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"components/.hidden/view.js":       "export function render() {}",
		"components/node_modules/x/y.js":   "export function render() {}",
		"components/.draft.js":             "export function render() {}",
		"components/panel.spec.js":         "export function render() {}",
		"components/panel.js":              "export function render() {}",
		"collections/nested/deep_thing.js": "export default {}",
		"collections/readme.md":            "# not a source",
	})

	catalog, err := Scan(context.Background(), []string{root}, Options{})
	require.NoError(t, err)

	components := catalog.Section(model.CategoryComponents)
	require.Len(t, components, 1)
	assert.Equal(t, "panel", components[0].Key)
	assert.Empty(t, catalog.Section(model.CategoryCollections), "collections are not scanned recursively")
}

func TestScan_CustomExtension(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"modules/smart_fs.mjs": "export default {}",
		"modules/ignored.js":   "export default {}",
	})

	catalog, err := Scan(context.Background(), []string{root}, Options{Extension: "mjs"})
	require.NoError(t, err)

	modules := catalog.Section(model.CategoryModules)
	require.Len(t, modules, 1)
	assert.Equal(t, "smart_fs", modules[0].Key)
	assert.Equal(t, "modules_smart_fs", modules[0].Ident)
}

func TestScan_CancelledContext(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"modules/a.js": "export default {}"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Scan(ctx, []string{root}, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestImportPath(t *testing.T) {
	base := t.TempDir()
	dest := filepath.Join(base, "out")

	got, err := importPath(dest, filepath.Join(dest, "src", "a.js"))
	require.NoError(t, err)
	assert.Equal(t, "./src/a.js", got)

	got, err = importPath(dest, filepath.Join(base, "lib", "b.js"))
	require.NoError(t, err)
	assert.Equal(t, "../lib/b.js", got)
}
