// Package dedupe collapses identical-content submissions arriving within a
// short window into one record, absorbing accidental double-submissions
// from the UI.
package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	id      string
	seenAt  time.Time
	element *list.Element
}

// Window is a thread-safe, TTL-based, size-limited map from source digest
// to the record id created for that digest. Insertion order is kept in a
// linked list for O(1) eviction of the oldest entry.
type Window struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a dedup window with the given TTL and maximum size. A
// background goroutine sweeps expired entries.
func New(ttl time.Duration, maxSize int) *Window {
	w := &Window{
		entries: make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go w.sweep()
	return w
}

// CheckOrPut atomically looks up digest. If a live entry exists its record
// id is returned with ok=true; otherwise id is recorded for the digest and
// ok is false. Single lock acquisition, so two concurrent submissions of
// the same digest cannot both create records.
func (w *Window) CheckOrPut(digest, id string) (existing string, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if e, found := w.entries[digest]; found && time.Since(e.seenAt) < w.ttl {
		return e.id, true
	}

	if e, found := w.entries[digest]; found {
		// Expired entry for the same digest: reuse its slot.
		e.id = id
		e.seenAt = time.Now()
		w.order.MoveToBack(e.element)
		return "", false
	}

	if len(w.entries) >= w.maxSize {
		w.evictOldest()
	}

	elem := w.order.PushBack(digest)
	w.entries[digest] = &entry{id: id, seenAt: time.Now(), element: elem}
	return "", false
}

// Remove drops the entry for digest, if any. Callers unwind a registration
// when the record it points at was never persisted, so later submissions of
// the same content are not deduplicated against a phantom id.
func (w *Window) Remove(digest string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if e, found := w.entries[digest]; found {
		w.order.Remove(e.element)
		delete(w.entries, digest)
	}
}

func (w *Window) evictOldest() {
	front := w.order.Front()
	if front == nil {
		return
	}
	digest, _ := front.Value.(string)
	w.order.Remove(front)
	delete(w.entries, digest)
}

func (w *Window) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.mu.Lock()
			now := time.Now()
			for digest, e := range w.entries {
				if now.Sub(e.seenAt) > w.ttl {
					w.order.Remove(e.element)
					delete(w.entries, digest)
				}
			}
			w.mu.Unlock()
		case <-w.done:
			return
		}
	}
}

// Close stops the background sweeper. Safe to call multiple times.
func (w *Window) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		close(w.done)
		w.closed = true
	}
}
