// Package config loads the smart-env configuration file.
//
// The file is YAML. Without --config it is looked up as
// smart-env/config.yaml in the XDG config directories; when none exists the
// defaults apply. Relative paths in the generate and plugins sections are
// resolved against the directory holding the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/smart-env/obsidian-smart-env/internal/model"
	"github.com/smart-env/obsidian-smart-env/internal/watch"
)

// RelPath is the config file below the XDG config directories.
const RelPath = "smart-env/config.yaml"

// ServerEnvVar overrides plugins.server.
const ServerEnvVar = "SMART_ENV_PLUGIN_SERVER"

// Config is the parsed configuration file.
type Config struct {
	Generate Generate `yaml:"generate"`
	Plugins  Plugins  `yaml:"plugins"`
	Release  Release  `yaml:"release"`
	Watch    Watch    `yaml:"watch"`

	// Path is the file the configuration was loaded from, empty for
	// defaults.
	Path string `yaml:"-"`
}

// Generate configures `smart-env generate` and `smart-env watch`.
type Generate struct {
	// Roots are scanned in order; later roots override earlier ones.
	Roots []string `yaml:"roots"`

	// Dest is the directory the module is written to.
	Dest string `yaml:"dest"`

	// Output is the generated file name.
	Output string `yaml:"output"`

	// Extension is the source file extension.
	Extension string `yaml:"extension"`
}

// Plugins configures the plugin distribution client.
type Plugins struct {
	// Server is the base URL of the distribution endpoint.
	Server string `yaml:"server"`

	// TokenFile overrides the XDG state location of the login token.
	TokenFile string `yaml:"token_file"`
}

// Release configures `smart-env release`.
type Release struct {
	Owner     string   `yaml:"owner"`
	Repo      string   `yaml:"repo"`
	Remote    string   `yaml:"remote"`
	NotesFile string   `yaml:"notes_file"`
	Assets    []string `yaml:"assets"`
	APIURL    string   `yaml:"api_url"`
	UploadURL string   `yaml:"upload_url"`
}

// Watch configures the debounce windows of the file watchers, keyed by
// event kind (create, modify, rename, delete).
type Watch struct {
	Delays map[string]time.Duration `yaml:"delays"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Generate: Generate{
			Roots:     []string{"."},
			Dest:      ".",
			Output:    "smart_env.config.js",
			Extension: ".js",
		},
		Release: Release{
			Remote:    "origin",
			NotesFile: "releases/latest_release.md",
		},
	}
}

// Load reads the configuration at path. An empty path searches the XDG
// config directories and falls back to Default when nothing is found. An
// explicit path that does not exist is a CLIError with ExitNotFound.
func Load(path string) (*Config, error) {
	if path == "" {
		found, err := xdg.SearchConfigFile(RelPath)
		if err != nil {
			cfg := Default()
			cfg.applyEnv()
			return cfg, nil
		}
		path = found
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapCLIError(model.ExitNotFound, fmt.Sprintf("config file %s not found", path), err)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Path = path
	if err := cfg.resolvePaths(filepath.Dir(path)); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Generate.Roots) == 0 {
		errs = append(errs, errors.New("generate.roots must not be empty"))
	}
	if strings.ContainsAny(c.Generate.Output, `/\`) {
		errs = append(errs, fmt.Errorf("generate.output %q must be a file name", c.Generate.Output))
	}

	kinds := make([]string, 0, len(c.Watch.Delays))
	for k := range c.Watch.Delays {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		if _, err := model.ParseEventKind(k); err != nil {
			errs = append(errs, fmt.Errorf("watch.delays: %w", err))
			continue
		}
		if c.Watch.Delays[k] < 0 {
			errs = append(errs, fmt.Errorf("watch.delays.%s must not be negative", k))
		}
	}
	return errors.Join(errs...)
}

// KindDelays returns the watcher delays: the defaults with configured kinds
// replaced.
func (w Watch) KindDelays() watch.Delays {
	d := watch.DefaultDelays()
	for k, v := range w.Delays {
		kind, err := model.ParseEventKind(k)
		if err != nil {
			continue
		}
		d[kind] = v
	}
	return d
}

func (c *Config) resolvePaths(dir string) error {
	resolve := func(p string) (string, error) {
		if p == "" || filepath.IsAbs(p) {
			return p, nil
		}
		return filepath.Abs(filepath.Join(dir, p))
	}

	var err error
	for i, root := range c.Generate.Roots {
		if c.Generate.Roots[i], err = resolve(root); err != nil {
			return err
		}
	}
	if c.Generate.Dest, err = resolve(c.Generate.Dest); err != nil {
		return err
	}
	if c.Plugins.TokenFile, err = resolve(c.Plugins.TokenFile); err != nil {
		return err
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(ServerEnvVar)); v != "" {
		c.Plugins.Server = v
	}
}
