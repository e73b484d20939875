package cli

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/smart-env/obsidian-smart-env/internal/app"
	"github.com/smart-env/obsidian-smart-env/internal/config"
	"github.com/smart-env/obsidian-smart-env/internal/model"
	"github.com/smart-env/obsidian-smart-env/internal/plugins"
	"github.com/smart-env/obsidian-smart-env/internal/watch"
)

// newTestApp returns an App writing results to a buffer.
func newTestApp(t *testing.T, asJSON bool) (*app.App, *bytes.Buffer) {
	t.Helper()
	color.NoColor = true

	var out bytes.Buffer
	return &app.App{
		Config: config.Default(),
		Logger: zerolog.Nop(),
		Out:    &out,
		JSON:   asJSON,
	}, &out
}

// runCommand executes the root command with args against a.
func runCommand(t *testing.T, a *app.App, args ...string) error {
	t.Helper()
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(a.Out)
	cmd.SetErr(&bytes.Buffer{})
	return cmd.ExecuteContext(app.WithContext(context.Background(), a))
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func zipFiles(t *testing.T, names []string, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range names {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestGenerateCommand(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/collections/smart_sources.js": "export default class SmartSources {}",
		"src/actions/lookup.js":            "export function lookup() {}",
	})
	a, out := newTestApp(t, false)

	err := runCommand(t, a, "generate", "--root", filepath.Join(dir, "src"), "--dest", dir)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "wrote "+filepath.Join(dir, "smart_env.config.js"))
	assert.Contains(t, out.String(), "collections=1 items=0 modules=0 components=0 actions=1")

	out.Reset()
	require.NoError(t, runCommand(t, a, "generate", "--root", filepath.Join(dir, "src"), "--dest", dir))
	assert.Contains(t, out.String(), "unchanged")
}

func TestGenerateCommand_JSON(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"src/modules/smart_fs.js": "export default {}"})
	a, out := newTestApp(t, true)

	require.NoError(t, runCommand(t, a, "generate", "-r", filepath.Join(dir, "src"), "-d", dir, "-o", "env.js"))

	var got generateJSON
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, filepath.Join(dir, "env.js"), got.Path)
	assert.True(t, got.Changed)
	assert.Equal(t, 1, got.Counts["modules"])
}

func TestBundleCommands(t *testing.T) {
	dir := t.TempDir()
	data := zipFiles(t, []string{"manifest.json", "main.js"}, map[string]string{
		"manifest.json": `{"id": "smart-context", "name": "Smart Context", "version": "1.2.0"}`,
		"main.js":       "module.exports = {}",
	})
	zipPath := filepath.Join(dir, "smart-context.zip")
	require.NoError(t, os.WriteFile(zipPath, data, 0o644))

	a, out := newTestApp(t, true)
	require.NoError(t, runCommand(t, a, "bundle", "inspect", zipPath))

	var got bundleJSON
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.NotNil(t, got.Manifest)
	assert.Equal(t, "smart-context", got.Manifest.ID)
	assert.Equal(t, []bundleFileJSON{{Name: "manifest.json", Size: 68}, {Name: "main.js", Size: 19}}, got.Files)
	assert.Empty(t, got.Problems)
	assert.Empty(t, got.Skipped)

	target := filepath.Join(dir, "out")
	out.Reset()
	require.NoError(t, runCommand(t, a, "bundle", "extract", zipPath, target))
	content, err := os.ReadFile(filepath.Join(target, "main.js"))
	require.NoError(t, err)
	assert.Equal(t, "module.exports = {}", string(content))
}

func TestBundleInspect_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.zip")
	require.NoError(t, os.WriteFile(bad, []byte("PK\x03\x04"), 0o644))

	tests := []struct {
		name string
		path string
		code model.ExitCode
	}{
		{name: "missing", path: filepath.Join(dir, "nope.zip"), code: model.ExitNotFound},
		{name: "truncated", path: bad, code: model.ExitInvalidBundle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestApp(t, false)
			err := runCommand(t, a, "bundle", "inspect", tt.path)

			var cliErr *model.CLIError
			require.True(t, errors.As(err, &cliErr))
			assert.Equal(t, tt.code, cliErr.Code)
		})
	}
}

func TestNotesFormatCommand(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"manifest.json":              `{"id": "smart-context", "name": "Smart Context", "version": "1.3.0"}`,
		"releases/latest_release.md": "## next patch\n\n- new\n\n## patch `v1.2.0`\n\n- old\n",
	})
	a, _ := newTestApp(t, false)

	require.NoError(t, runCommand(t, a, "notes", "format", "--dir", dir, "-m", "- more"))

	got, err := os.ReadFile(filepath.Join(dir, "releases", "latest_release.md"))
	require.NoError(t, err)
	want := "## patch `v1.3.0`\n\n- new\n\n- more\n\n" +
		"<details><summary>Previous patches</summary>\n\n" +
		"## patch `v1.2.0`\n\n- old\n\n" +
		"</details>\n"
	assert.Equal(t, want, string(got))

	a, out := newTestApp(t, false)
	require.NoError(t, runCommand(t, a, "notes", "show", "--dir", dir, "--version", "1.2.0"))
	assert.Equal(t, "- old\n", out.String())
}

func TestNotesFormatCommand_NoNotes(t *testing.T) {
	a, _ := newTestApp(t, false)
	err := runCommand(t, a, "notes", "format", "--dir", t.TempDir(), "--version", "1.0.0")

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitNotFound, cliErr.Code)
}

func TestVaultCommands(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"notes/smart context.md": "# Smart Context",
		"notes/other.md":         "x",
		"boards/plan.canvas":     `{"nodes": [{"type": "file", "file": "notes/other.md"}, {"type": "text", "text": "see [[smart context|SC]]"}]}`,
		".obsidian/app.json":     "{}",
	})

	a, out := newTestApp(t, true)
	require.NoError(t, runCommand(t, a, "vault", "list", dir))
	var listed struct {
		Sources []struct {
			Path string `json:"path"`
		} `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &listed))
	require.Len(t, listed.Sources, 3)
	assert.Equal(t, "boards/plan.canvas", listed.Sources[0].Path)

	out.Reset()
	require.NoError(t, runCommand(t, a, "vault", "links", filepath.Join(dir, "boards", "plan.canvas")))
	assert.JSONEq(t, `{"links": ["notes/other.md", "smart context"]}`, out.String())

	a, out = newTestApp(t, false)
	require.NoError(t, runCommand(t, a, "vault", "find", "smctx", "--vault", dir))
	assert.Equal(t, "notes/smart context.md\n", out.String())
}

func TestPluginInstallCommand(t *testing.T) {
	bundleData := zipFiles(t, []string{"manifest.json", "main.js"}, map[string]string{
		"manifest.json": `{"id": "smart-context", "name": "Smart Context", "version": "1.2.0"}`,
		"main.js":       "module.exports = {}",
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/plugin_download", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer saved-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Write(bundleData)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	a, out := newTestApp(t, false)
	a.Config.Plugins.Server = server.URL
	a.Config.Plugins.TokenFile = filepath.Join(t.TempDir(), "auth.json")
	vaultDir := t.TempDir()

	err := runCommand(t, a, "plugin", "install", "brianpetro/smart-context", "--vault", vaultDir)
	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitMissingCredentials, cliErr.Code)

	require.NoError(t, plugins.SaveToken(a.Config.Plugins.TokenFile, &oauth2.Token{AccessToken: "saved-token"}))
	require.NoError(t, runCommand(t, a, "plugin", "install", "brianpetro/smart-context", "--vault", vaultDir))
	assert.Contains(t, out.String(), "installed smart-context 1.2.0")

	content, err := os.ReadFile(filepath.Join(vaultDir, ".obsidian", "plugins", "smart-context", "main.js"))
	require.NoError(t, err)
	assert.Equal(t, "module.exports = {}", string(content))
}

func TestPluginLogin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/plugin_list", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"list": []}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	a, _ := newTestApp(t, false)
	a.Config.Plugins.Server = server.URL
	a.Config.Plugins.TokenFile = filepath.Join(t.TempDir(), "auth.json")

	err := runPluginLogin(context.Background(), a, &pluginLoginFlags{token: "bad"}, nil)
	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitMissingCredentials, cliErr.Code)
	_, statErr := os.Stat(a.Config.Plugins.TokenFile)
	assert.True(t, os.IsNotExist(statErr))

	require.NoError(t, runPluginLogin(context.Background(), a, &pluginLoginFlags{token: "good"}, nil))
	tok, err := plugins.LoadToken(a.Config.Plugins.TokenFile)
	require.NoError(t, err)
	assert.Equal(t, "good", tok.AccessToken)
}

func TestScanCommand(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/collections/smart_sources.js": "export default class SmartSources {}",
		"src/actions/lookup.js":            "export function lookup() {}\nexport const display_name = 'Lookup';",
	})
	a, out := newTestApp(t, true)

	require.NoError(t, runCommand(t, a, "scan", "--root", filepath.Join(dir, "src"), "--category", "Actions"))

	var got struct {
		Entries []scanEntryJSON `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "actions", got.Entries[0].Category)
	assert.Equal(t, "lookup", got.Entries[0].Key)
	assert.Equal(t, []string{"display_name"}, got.Entries[0].Companions)

	_, err := os.Stat(filepath.Join(dir, "smart_env.config.js"))
	assert.True(t, os.IsNotExist(err))

	err = runCommand(t, a, "scan", "--root", filepath.Join(dir, "src"), "--category", "views")
	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitGeneralError, cliErr.Code)
}

func TestSourceFilter_DirectoryMovedOutOfRoot(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"components/settings/panel.js": "export function render() {}",
	})
	settings := filepath.Join(root, "components", "settings")

	events := make(chan watch.Event, 16)
	w, err := watch.New([]string{root}, func(ev watch.Event) { events <- ev }, watch.Options{
		Delays: watch.Delays{
			model.EventRename: 50 * time.Millisecond,
			model.EventDelete: 0,
		},
		Filter: sourceFilter(filepath.Join(root, "smart_env.config.js"), ".js"),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
		w.Close()
	})

	require.NoError(t, os.Rename(settings, filepath.Join(t.TempDir(), "settings")))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Path == settings {
				assert.Contains(t, []model.EventKind{model.EventRename, model.EventDelete}, ev.Kind)
				return
			}
		case <-deadline:
			t.Fatal("no event for the moved directory")
		}
	}
}
