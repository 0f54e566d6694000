// Package coalesce batches rapid writes to the same key: a value is only
// written once no newer value for its key arrived within the window.
package coalesce

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrClosed is returned by Put after Close.
var ErrClosed = errors.New("coalesce: writer closed")

type entry[V any] struct {
	value V
	timer *time.Timer
	gen   uint64
	seq   uint64
}

// Writer holds pending values per key and hands them to a flush function
// once their window expires. Flush calls never overlap.
type Writer[K comparable, V any] struct {
	// OnError receives errors of timer-driven flushes. Nil drops them.
	OnError func(K, error)

	window time.Duration
	flush  func(K, V) error

	mu      sync.Mutex
	pending map[K]*entry[V]
	gen     uint64
	seq     uint64
	closed  bool

	writeMu sync.Mutex
}

// New returns a writer that calls flush for a key window after its last Put.
func New[K comparable, V any](window time.Duration, flush func(K, V) error) *Writer[K, V] {
	return &Writer[K, V]{
		window:  window,
		flush:   flush,
		pending: make(map[K]*entry[V]),
	}
}

// Put schedules v for k, replacing any pending value and restarting k's timer.
func (w *Writer[K, V]) Put(k K, v V) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}

	w.gen++
	gen := w.gen
	e, ok := w.pending[k]
	if ok {
		e.timer.Stop()
		e.value = v
		e.gen = gen
	} else {
		w.seq++
		e = &entry[V]{value: v, gen: gen, seq: w.seq}
		w.pending[k] = e
	}
	e.timer = time.AfterFunc(w.window, func() { w.fire(k, gen) })
	return nil
}

// fire writes k if gen is still its latest generation. writeMu is held from
// the generation check through the write, so a newer value put meanwhile is
// always written after this one.
func (w *Writer[K, V]) fire(k K, gen uint64) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.Lock()
	e, ok := w.pending[k]
	if !ok || e.gen != gen {
		w.mu.Unlock()
		return
	}
	delete(w.pending, k)
	v := e.value
	w.mu.Unlock()

	if err := w.flush(k, v); err != nil && w.OnError != nil {
		w.OnError(k, err)
	}
}

func (w *Writer[K, V]) write(k K, v V) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.flush(k, v)
}

// Pending returns the number of keys waiting to be written.
func (w *Writer[K, V]) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Flush writes every pending value now, in first-Put order.
func (w *Writer[K, V]) Flush() error {
	type item struct {
		key K
		e   *entry[V]
	}

	w.mu.Lock()
	items := make([]item, 0, len(w.pending))
	for k, e := range w.pending {
		e.timer.Stop()
		items = append(items, item{k, e})
	}
	w.pending = make(map[K]*entry[V])
	w.mu.Unlock()

	sort.Slice(items, func(i, j int) bool { return items[i].e.seq < items[j].e.seq })

	var errs []error
	for _, it := range items {
		if err := w.write(it.key, it.e.value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close flushes pending values and rejects further Puts.
func (w *Writer[K, V]) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return w.Flush()
}
