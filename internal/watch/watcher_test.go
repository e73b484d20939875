package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smart-env/obsidian-smart-env/internal/debounce"
	"github.com/smart-env/obsidian-smart-env/internal/model"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) handle(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) get() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func newManualWatcher(t *testing.T, opts Options) (*Watcher, *debounce.ManualClock, *collector) {
	t.Helper()
	clock := debounce.NewManualClock(time.Unix(0, 0))
	opts.Clock = clock
	col := &collector{}
	w, err := New([]string{t.TempDir()}, col.handle, opts)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w, clock, col
}

func TestDefaultDelays(t *testing.T) {
	d := DefaultDelays()
	assert.Equal(t, time.Second, d.Delay(model.EventCreate))
	assert.Equal(t, 23*time.Second, d.Delay(model.EventModify))
	assert.Equal(t, time.Second, d.Delay(model.EventRename))
	assert.Equal(t, time.Duration(0), d.Delay(model.EventDelete))

	partial := Delays{model.EventModify: 5 * time.Second}
	assert.Equal(t, 5*time.Second, partial.Delay(model.EventModify))
	assert.Equal(t, time.Second, partial.Delay(model.EventCreate))
}

func TestWatcher_ModifyDebounced(t *testing.T) {
	w, clock, col := newManualWatcher(t, Options{})

	w.Dispatch("notes/a.md", model.EventModify)
	clock.Advance(20 * time.Second)
	w.Dispatch("notes/a.md", model.EventModify)
	clock.Advance(20 * time.Second)
	assert.Empty(t, col.get())
	assert.Equal(t, []string{"notes/a.md"}, w.Pending())

	clock.Advance(3 * time.Second)
	assert.Equal(t, []Event{{Path: "notes/a.md", Kind: model.EventModify}}, col.get())
}

func TestWatcher_DeleteIsImmediate(t *testing.T) {
	w, clock, col := newManualWatcher(t, Options{})

	w.Dispatch("notes/a.md", model.EventModify)
	w.Dispatch("notes/a.md", model.EventDelete)
	clock.Advance(0)

	assert.Equal(t, []Event{{Path: "notes/a.md", Kind: model.EventDelete}}, col.get())
}

func TestWatcher_CreateThenModifyStaysCreate(t *testing.T) {
	w, clock, col := newManualWatcher(t, Options{
		Delays: Delays{model.EventCreate: time.Second, model.EventModify: time.Second},
	})

	w.Dispatch("a.md", model.EventCreate)
	w.Dispatch("a.md", model.EventModify)
	clock.Advance(time.Second)

	assert.Equal(t, []Event{{Path: "a.md", Kind: model.EventCreate}}, col.get())
}

func TestWatcher_Filter(t *testing.T) {
	w, clock, col := newManualWatcher(t, Options{
		Filter: func(path string) bool { return strings.HasSuffix(path, ".md") },
	})

	w.Dispatch("a.md", model.EventCreate)
	w.Dispatch("image.png", model.EventCreate)
	clock.Advance(time.Second)

	assert.Equal(t, []Event{{Path: "a.md", Kind: model.EventCreate}}, col.get())
}

func TestWatcher_Flush(t *testing.T) {
	w, _, col := newManualWatcher(t, Options{})

	w.Dispatch("b.md", model.EventModify)
	w.Dispatch("a.md", model.EventRename)
	w.Flush()

	assert.Equal(t, []Event{
		{Path: "a.md", Kind: model.EventRename},
		{Path: "b.md", Kind: model.EventModify},
	}, col.get())
	assert.Empty(t, w.Pending())
}

func TestMergeKinds(t *testing.T) {
	tests := []struct {
		pending, next, want model.EventKind
	}{
		{model.EventCreate, model.EventModify, model.EventCreate},
		{model.EventModify, model.EventDelete, model.EventDelete},
		{model.EventCreate, model.EventDelete, model.EventDelete},
		{model.EventDelete, model.EventCreate, model.EventModify},
		{model.EventModify, model.EventRename, model.EventRename},
		{model.EventModify, model.EventModify, model.EventModify},
	}

	for _, tt := range tests {
		t.Run(tt.pending.String()+"_"+tt.next.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, mergeKinds(tt.pending, tt.next))
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		op   fsnotify.Op
		want model.EventKind
		ok   bool
	}{
		{fsnotify.Create, model.EventCreate, true},
		{fsnotify.Write, model.EventModify, true},
		{fsnotify.Rename, model.EventRename, true},
		{fsnotify.Remove, model.EventDelete, true},
		{fsnotify.Create | fsnotify.Write, model.EventCreate, true},
		{fsnotify.Chmod, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			got, ok := kindOf(tt.op)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_MissingRoot(t *testing.T) {
	_, err := New([]string{filepath.Join(t.TempDir(), "missing")}, func(Event) {}, Options{})
	assert.Error(t, err)
}

func TestWatcher_RealFileSystem(t *testing.T) {
	root := t.TempDir()
	events := make(chan Event, 16)

	w, err := New([]string{root}, func(ev Event) { events <- ev }, Options{
		Delays: Delays{
			model.EventCreate: 50 * time.Millisecond,
			model.EventModify: 50 * time.Millisecond,
		},
		Filter: func(path string) bool { return strings.HasSuffix(path, ".md") },
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

	path := filepath.Join(root, "note.md")
	require.NoError(t, os.WriteFile(path, []byte("# hello"), 0o644))

	select {
	case ev := <-events:
		assert.Equal(t, path, ev.Path)
		assert.Equal(t, model.EventCreate, ev.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}
}
