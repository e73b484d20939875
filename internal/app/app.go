// Package app holds the per-invocation environment shared by CLI commands:
// the loaded configuration, the logger and the output streams.
//
// The root command builds one App before a subcommand runs and attaches it
// to the command context. Commands retrieve it with FromContext; tests build
// their own with New or by filling the struct directly.
package app

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/smart-env/obsidian-smart-env/internal/config"
	"github.com/smart-env/obsidian-smart-env/internal/envgen"
	"github.com/smart-env/obsidian-smart-env/internal/plugins"
)

// Options configure New.
type Options struct {
	// ConfigPath is an explicit config file; empty searches XDG dirs.
	ConfigPath string

	JSON    bool
	Verbose bool

	// Out receives command results. Defaults to os.Stdout.
	Out io.Writer

	// ErrOut receives logs. Defaults to os.Stderr.
	ErrOut io.Writer
}

// App is the environment of one CLI invocation.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
	JSON   bool

	mu      sync.Mutex
	closers []func() error
	cache   *envgen.ExportCache
	closed  bool
}

// New loads the configuration and sets up logging.
func New(opts Options) (*App, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.ErrOut == nil {
		opts.ErrOut = os.Stderr
	}

	logger := NewLogger(opts.ErrOut, opts.JSON, opts.Verbose)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if cfg.Path != "" {
		logger.Debug().Str("path", cfg.Path).Msg("loaded config")
	}

	return &App{
		Config: cfg,
		Logger: logger,
		Out:    opts.Out,
		JSON:   opts.JSON,
	}, nil
}

// NewLogger returns a logger writing to w: JSON lines when json is set,
// console output otherwise. Debug messages are only emitted when verbose.
func NewLogger(w io.Writer, json, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	if !json {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Stamp}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Log returns a pointer to the logger for APIs that take one.
func (a *App) Log() *zerolog.Logger {
	return &a.Logger
}

// ExportCache returns the generator's export cache, creating it on first
// use. It lives as long as the App so watch-mode regenerations reuse it.
func (a *App) ExportCache() (*envgen.ExportCache, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cache == nil {
		c, err := envgen.NewExportCache(envgen.DefaultCacheSize)
		if err != nil {
			return nil, err
		}
		a.cache = c
	}
	return a.cache, nil
}

// TokenPath returns where the plugin server token is stored.
func (a *App) TokenPath() (string, error) {
	if a.Config.Plugins.TokenFile != "" {
		return a.Config.Plugins.TokenFile, nil
	}
	return plugins.DefaultTokenPath()
}

// PluginClient returns a client for the configured plugin server. When
// authenticated is set the saved login token is required.
func (a *App) PluginClient(authenticated bool) (*plugins.Client, error) {
	var ts oauth2.TokenSource
	if authenticated {
		path, err := a.TokenPath()
		if err != nil {
			return nil, err
		}
		if ts, err = plugins.TokenSource(path); err != nil {
			return nil, err
		}
	}
	return plugins.NewClient(a.Config.Plugins.Server, ts)
}

// OnClose registers fn to run when the App is closed. Functions run in
// reverse registration order.
func (a *App) OnClose(fn func() error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, fn)
}

// Close runs the registered close functions once and returns their joined
// errors.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type ctxKey struct{}

// WithContext returns a copy of ctx carrying a.
func WithContext(ctx context.Context, a *App) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// FromContext returns the App attached to ctx, or nil.
func FromContext(ctx context.Context) *App {
	a, _ := ctx.Value(ctxKey{}).(*App)
	return a
}
