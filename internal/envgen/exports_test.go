package envgen

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// names returns the sorted keys of an export set for easy comparison.
func names(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func TestExportedNames(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{name: "function", src: "export function render(env) {}", want: []string{"render"}},
		{name: "async function", src: "export async function lookup() {}", want: []string{"lookup"}},
		{name: "generator function", src: "export function* walk() {}", want: []string{"walk"}},
		{name: "const", src: "export const display_name = 'Lookup';", want: []string{"display_name"}},
		{name: "let var class", src: "export let a = 1;\nexport var b;\nexport class SmartThing {}", want: []string{"SmartThing", "a", "b"}},
		{name: "export list", src: "function render() {}\nexport { render, pre_process };", want: []string{"pre_process", "render"}},
		{name: "export list with alias", src: "export { build_html as render, x as default };", want: []string{"default", "render"}},
		{name: "re-export from module", src: "export { render } from './base.js';", want: []string{"render"}},
		{name: "default export is not named", src: "export default function render() {}", want: []string{}},
		{name: "no exports", src: "function render() {}", want: []string{}},
		{
			name: "multiline list",
			src:  "export {\n  lookup,\n  default_settings,\n  settings_config,\n};",
			want: []string{"default_settings", "lookup", "settings_config"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, names(ExportedNames(tt.src)))
		})
	}
}

// TestExportCache_ReusesUntilModified verifies that cached names are served
// while the file is unchanged and refreshed after a modification.
func TestExportCache_ReusesUntilModified(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "view.js")
	require.NoError(t, os.WriteFile(path, []byte("export function render() {}"), 0o644))

	cache, err := NewExportCache(8)
	require.NoError(t, err)

	got, err := cache.Names(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"render"}, names(got))
	assert.Equal(t, 1, cache.Len())

	// Different size and a later mtime: the cache must re-read the file.
	require.NoError(t, os.WriteFile(path, []byte("export function draw() {}\nexport const x = 1;"), 0o644))
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	got, err = cache.Names(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"draw", "x"}, names(got))
}

func TestExportCache_MissingFile(t *testing.T) {
	cache, err := NewExportCache(0)
	require.NoError(t, err)

	_, err = cache.Names(filepath.Join(t.TempDir(), "missing.js"))
	assert.Error(t, err)
}
