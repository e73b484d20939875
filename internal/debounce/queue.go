// Package debounce coalesces bursts of work keyed by a string, typically a
// file path.
//
// Scheduling a key that is already pending replaces its value and restarts
// its delay, so a burst of events for one path results in a single callback
// once the path has been quiet for the delay. Timing goes through a Clock,
// and tests drive the queue with a ManualClock instead of sleeping.
package debounce

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrStopped is returned by Schedule after Stop.
var ErrStopped = errors.New("debounce queue stopped")

// Func is called once per key when its delay expires.
type Func[T any] func(key string, value T)

// MergeFunc combines the pending value of a key with a newly scheduled one.
type MergeFunc[T any] func(pending, next T) T

// Queue delays and coalesces work per key. It is safe for concurrent use.
type Queue[T any] struct {
	clock Clock
	fn    Func[T]
	merge MergeFunc[T]

	mu      sync.Mutex
	gen     uint64
	pending map[string]*entry[T]
	stopped bool
}

type entry[T any] struct {
	gen   uint64
	value T
	timer Timer
}

// Option configures a Queue.
type Option[T any] func(*Queue[T])

// WithMerge sets how a new value combines with a pending one for the same
// key. By default the new value replaces the pending one.
func WithMerge[T any](merge MergeFunc[T]) Option[T] {
	return func(q *Queue[T]) {
		q.merge = merge
	}
}

// New creates a Queue that calls fn for each expired key. A nil clock uses
// SystemClock.
func New[T any](clock Clock, fn Func[T], opts ...Option[T]) *Queue[T] {
	if clock == nil {
		clock = SystemClock{}
	}
	q := &Queue[T]{
		clock:   clock,
		fn:      fn,
		pending: make(map[string]*entry[T]),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Schedule arranges for fn(key, value) to run after delay. A pending entry
// for key is superseded: its timer is stopped, its value merged, and the
// delay starts over.
func (q *Queue[T]) Schedule(key string, delay time.Duration, value T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return ErrStopped
	}

	if prev, ok := q.pending[key]; ok {
		prev.timer.Stop()
		if q.merge != nil {
			value = q.merge(prev.value, value)
		}
	}

	q.gen++
	gen := q.gen
	e := &entry[T]{gen: gen, value: value}
	e.timer = q.clock.AfterFunc(delay, func() { q.fire(key, gen) })
	q.pending[key] = e
	return nil
}

// fire runs the callback for key if gen is still the current generation.
// A timer that could not be stopped in time is a no-op here.
func (q *Queue[T]) fire(key string, gen uint64) {
	q.mu.Lock()
	e, ok := q.pending[key]
	if !ok || e.gen != gen {
		q.mu.Unlock()
		return
	}
	delete(q.pending, key)
	q.mu.Unlock()

	q.fn(key, e.value)
}

// Cancel drops the pending entry for key. It reports whether one existed.
func (q *Queue[T]) Cancel(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.pending[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(q.pending, key)
	return true
}

// Pending returns the keys waiting to fire, sorted.
func (q *Queue[T]) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	keys := make([]string, 0, len(q.pending))
	for k := range q.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of pending keys.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Flush runs every pending callback now, in key order, on the calling
// goroutine.
func (q *Queue[T]) Flush() {
	q.mu.Lock()
	keys := make([]string, 0, len(q.pending))
	for k := range q.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]*entry[T], len(keys))
	for i, k := range keys {
		e := q.pending[k]
		e.timer.Stop()
		entries[i] = e
	}
	clear(q.pending)
	q.mu.Unlock()

	for i, k := range keys {
		q.fn(k, entries[i].value)
	}
}

// Stop cancels every pending entry and rejects further schedules.
func (q *Queue[T]) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.stopped = true
	for _, e := range q.pending {
		e.timer.Stop()
	}
	clear(q.pending)
}
