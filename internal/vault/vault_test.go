package vault

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSource(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"note.md", true},
		{"Projects/Plan.MD", true},
		{"boards/roadmap.canvas", true},
		{"image.png", false},
		{".obsidian/workspace.md", false},
		{"notes/.trash/old.md", false},
		{"./notes/a.md", true},
		{"README", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSource(tt.path))
		})
	}
}

func TestListSources(t *testing.T) {
	root := t.TempDir()
	files := []string{
		"b.md",
		"a/z.md",
		"a/board.canvas",
		"attachments/pic.png",
		".obsidian/plugins/smart-context/data.md",
		".trash/deleted.md",
	}
	for _, f := range files {
		path := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))
	}

	sources, err := ListSources(root)
	require.NoError(t, err)

	var paths []string
	for _, s := range sources {
		paths = append(paths, s.Path)
	}
	assert.Equal(t, []string{"a/board.canvas", "a/z.md", "b.md"}, paths)
	assert.Equal(t, int64(len("content")), sources[0].Size)
	assert.Equal(t, ".canvas", sources[0].Ext())
}

func TestListSources_MissingRoot(t *testing.T) {
	_, err := ListSources(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestCanvasLinks(t *testing.T) {
	canvas := `{
  "nodes": [
    {"id": "1", "type": "file", "file": "Projects/Plan.md", "x": 0, "y": 0},
    {"id": "2", "type": "text", "text": "See [[Ideas]] and [[Daily/2024-01-01|yesterday]]"},
    {"id": "3", "type": "text", "text": "Back to [[Projects/Plan.md]] and [[Ideas#Later]]"},
    {"id": "4", "type": "link", "url": "https://example.com"},
    {"id": "5", "type": "group", "label": "[[not a text node]]"}
  ],
  "edges": []
}`

	assert.Equal(t, []string{"Projects/Plan.md", "Ideas", "Daily/2024-01-01"}, CanvasLinks([]byte(canvas)))
}

func TestCanvasLinks_InvalidJSON(t *testing.T) {
	for _, input := range []string{"", "{", "not json", `{"nodes": "oops"}`} {
		links := CanvasLinks([]byte(input))
		assert.NotNil(t, links, input)
		assert.Empty(t, links, input)
	}
}

func TestFind(t *testing.T) {
	sources := []Source{
		{Path: "Daily/2024-01-01.md"},
		{Path: "Projects/Smart Context.md"},
		{Path: "Projects/smart-env notes.md"},
		{Path: "boards/roadmap.canvas"},
	}

	matches := Find("smctx", sources, 0)
	require.NotEmpty(t, matches)
	assert.Equal(t, "Projects/Smart Context.md", matches[0].Source.Path)

	limited := Find("md", sources, 2)
	assert.Len(t, limited, 2)

	assert.Nil(t, Find("  ", sources, 0))
	assert.Empty(t, Find("zzzz", sources, 0))
}
