package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/smart-env/obsidian-smart-env/internal/app"
	"github.com/smart-env/obsidian-smart-env/internal/envgen"
	"github.com/smart-env/obsidian-smart-env/internal/model"
	"github.com/smart-env/obsidian-smart-env/internal/watch"
)

// watchFlags holds the flag values for the watch command.
type watchFlags struct {
	generateFlags

	// delay, when non-zero, replaces the configured per-kind delays.
	delay time.Duration
}

// NewWatchCommand creates the "watch" cobra command.
func NewWatchCommand() *cobra.Command {
	flags := &watchFlags{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Regenerate the config module whenever a source file changes",
		Long: `Generate the config module once, then watch every source root and
regenerate it after changes settle. Runs until interrupted.

Examples:
  smart-env watch --root ../smart-env --root . --dest dist
  smart-env watch --delay 500ms`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFrom(cmd)
			if err != nil {
				return err
			}
			return runWatch(cmd.Context(), a, flags)
		},
	}
	flags.bind(cmd)
	cmd.Flags().DurationVar(&flags.delay, "delay", 0, "Debounce window for every event kind (default: config watch.delays)")
	return cmd
}

func runWatch(ctx context.Context, a *app.App, flags *watchFlags) error {
	if err := runGenerate(ctx, a, &flags.generateFlags); err != nil {
		return err
	}

	roots, dest, opts, err := flags.options(a)
	if err != nil {
		return err
	}

	outPath, err := filepath.Abs(filepath.Join(dest, firstNonEmpty(opts.OutputName, envgen.DefaultOutputName)))
	if err != nil {
		return err
	}

	var mu sync.Mutex
	handler := func(ev watch.Event) {
		mu.Lock()
		defer mu.Unlock()

		a.Logger.Debug().Str("path", ev.Path).Str("kind", ev.Kind.String()).Msg("source changed")
		if err := runGenerate(ctx, a, &flags.generateFlags); err != nil {
			a.Logger.Error().Err(err).Msg("regeneration failed")
		}
	}

	w, err := watch.New(roots, handler, watch.Options{
		Delays: watchDelays(a, flags.delay),
		Filter: sourceFilter(outPath, opts.Extension),
		Logger: a.Log(),
	})
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to watch source roots", err)
	}
	a.OnClose(w.Close)

	a.Logger.Info().Strs("roots", roots).Msg("watching for changes")
	return w.Run(ctx)
}

// watchDelays returns the configured delays, or delay for every kind when
// it is set.
func watchDelays(a *app.App, delay time.Duration) watch.Delays {
	if delay <= 0 {
		return a.Config.Watch.KindDelays()
	}
	d := watch.Delays{}
	for _, k := range []model.EventKind{model.EventCreate, model.EventModify, model.EventRename, model.EventDelete} {
		d[k] = delay
	}
	return d
}

// sourceFilter accepts generator sources: files with the source extension
// other than the generated module itself. Paths inside a category folder
// that are not regular files also pass, so a directory renamed or removed
// out of a root still triggers regeneration.
func sourceFilter(outPath, ext string) watch.Filter {
	if ext == "" {
		ext = envgen.DefaultExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return func(path string) bool {
		if abs, err := filepath.Abs(path); err == nil && abs == outPath {
			return false
		}
		if strings.HasSuffix(path, ext) {
			return true
		}
		return inCategory(path) && !isRegularFile(path)
	}
}

// inCategory reports whether any element of path names a source category.
func inCategory(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if model.Category(part).IsValid() {
			return true
		}
	}
	return false
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
