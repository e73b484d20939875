// Package watch turns file-system notifications into debounced per-path
// events.
//
// fsnotify reports every write separately; editors and sync tools emit many
// of them for a single save. Events are funnelled through a debounce.Queue
// keyed by path, with a delay chosen by event kind, and the handler sees one
// Event per quiet period.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/smart-env/obsidian-smart-env/internal/debounce"
	"github.com/smart-env/obsidian-smart-env/internal/model"
)

// Event is a debounced change to one path.
type Event struct {
	Path string
	Kind model.EventKind
}

// Handler receives debounced events. It runs on a timer goroutine, or on
// the caller's goroutine during Flush.
type Handler func(Event)

// Filter reports whether events for path are of interest. Directories are
// always watched regardless of the filter.
type Filter func(path string) bool

// Delays maps each event kind to its debounce window.
type Delays map[model.EventKind]time.Duration

// DefaultDelays returns the stock windows: modifications wait for the file to
// be quiet for 23 seconds, creations and renames for 1 second, deletions are
// reported immediately.
func DefaultDelays() Delays {
	return Delays{
		model.EventCreate: time.Second,
		model.EventModify: 23 * time.Second,
		model.EventRename: time.Second,
		model.EventDelete: 0,
	}
}

// Delay returns the window for kind, falling back to DefaultDelays.
func (d Delays) Delay(kind model.EventKind) time.Duration {
	if v, ok := d[kind]; ok {
		return v
	}
	return DefaultDelays()[kind]
}

// Options configures a Watcher.
type Options struct {
	Delays Delays
	Filter Filter

	// Clock drives the debounce timers. Defaults to debounce.SystemClock.
	Clock debounce.Clock

	Logger *zerolog.Logger
}

// Watcher watches directory trees and reports debounced events.
type Watcher struct {
	fs      *fsnotify.Watcher
	queue   *debounce.Queue[model.EventKind]
	delays  Delays
	filter  Filter
	log     zerolog.Logger
	handler Handler
}

// New creates a Watcher over roots. Every directory below each root is
// watched, except hidden ones and node_modules; directories created later
// are added as they appear.
func New(roots []string, handler Handler, opts Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		fs:      fsw,
		delays:  opts.Delays,
		filter:  opts.Filter,
		log:     zerolog.Nop(),
		handler: handler,
	}
	if opts.Logger != nil {
		w.log = *opts.Logger
	}
	if w.delays == nil {
		w.delays = DefaultDelays()
	}
	w.queue = debounce.New(opts.Clock, w.deliver, debounce.WithMerge(mergeKinds))

	for _, root := range roots {
		if err := w.addTree(root); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Run processes notifications until ctx is done or the underlying watcher
// fails. Pending events are dropped on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.queue.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handleFS(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("file watcher error")
		}
	}
}

// Flush delivers every pending event immediately.
func (w *Watcher) Flush() {
	w.queue.Flush()
}

// Pending returns the paths with an event waiting to be delivered.
func (w *Watcher) Pending() []string {
	return w.queue.Pending()
}

// Close stops the underlying watcher and drops pending events.
func (w *Watcher) Close() error {
	w.queue.Stop()
	return w.fs.Close()
}

// handleFS translates one fsnotify event.
func (w *Watcher) handleFS(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.log.Warn().Err(err).Str("path", ev.Name).Msg("failed to watch new directory")
			}
			return
		}
	}

	kind, ok := kindOf(ev.Op)
	if !ok {
		return
	}
	w.Dispatch(ev.Name, kind)
}

// Dispatch feeds an event into the debounce queue as if fsnotify had
// reported it.
func (w *Watcher) Dispatch(path string, kind model.EventKind) {
	if w.filter != nil && !w.filter(path) {
		return
	}
	w.log.Debug().Str("path", path).Str("kind", kind.String()).Msg("file event")
	if err := w.queue.Schedule(path, w.delays.Delay(kind), kind); err != nil && !errors.Is(err, debounce.ErrStopped) {
		w.log.Warn().Err(err).Str("path", path).Msg("failed to schedule event")
	}
}

func (w *Watcher) deliver(path string, kind model.EventKind) {
	w.handler(Event{Path: path, Kind: kind})
}

// addTree watches root and every directory below it.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("failed to watch %s: %w", root, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules"
}

// kindOf maps an fsnotify operation to an event kind. Chmod is ignored.
func kindOf(op fsnotify.Op) (model.EventKind, bool) {
	switch {
	case op.Has(fsnotify.Remove):
		return model.EventDelete, true
	case op.Has(fsnotify.Rename):
		return model.EventRename, true
	case op.Has(fsnotify.Create):
		return model.EventCreate, true
	case op.Has(fsnotify.Write):
		return model.EventModify, true
	default:
		return "", false
	}
}

// mergeKinds combines a pending event with a new one for the same path.
// A delete always wins. A file created and then written is still new. A
// file deleted and recreated within the window has changed.
func mergeKinds(pending, next model.EventKind) model.EventKind {
	switch {
	case next == model.EventDelete:
		return model.EventDelete
	case pending == model.EventCreate && next == model.EventModify:
		return model.EventCreate
	case pending == model.EventDelete && next == model.EventCreate:
		return model.EventModify
	default:
		return next
	}
}
