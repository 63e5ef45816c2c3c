package resource

import (
	"math"
	"sync"

	"github.com/wippyai/wasi-crypto/errors"
)

// Table maps handles to values of a single resource kind.
// Insert, Get and Remove are O(1); freed slots are reused.
// All methods are safe for concurrent use.
type Table[T any] struct {
	entries   []entry[T]
	freeList  []Handle
	observers []Observer
	kind      Kind
	limit     int
	live      int
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

type entry[T any] struct {
	value T
	valid bool
}

// NewTable creates an empty table for kind. A limit <= 0 selects
// DefaultMaxHandles; limits beyond the u32 handle space are clamped.
func NewTable[T any](kind Kind, limit int) *Table[T] {
	if limit <= 0 {
		limit = DefaultMaxHandles
	}
	if uint64(limit) > math.MaxUint32 {
		limit = math.MaxUint32
	}
	return &Table[T]{
		kind:     kind,
		limit:    limit,
		entries:  make([]entry[T], 0, 16),
		freeList: make([]Handle, 0, 16),
	}
}

// Kind returns the resource kind stored in the table.
func (t *Table[T]) Kind() Kind {
	return t.kind
}

// Limit returns the maximum number of live handles.
func (t *Table[T]) Limit() int {
	return t.limit
}

// Insert stores a value and returns its handle.
func (t *Table[T]) Insert(value T) (Handle, error) {
	t.mu.Lock()

	if t.closed {
		t.mu.Unlock()
		return 0, errors.New(errors.PhaseHandle, errors.KindClosed).
			Detail("%s table closed", t.kind).
			Build()
	}
	if t.live >= t.limit {
		t.mu.Unlock()
		return 0, errors.Exhausted(errors.PhaseHandle, string(t.kind), t.limit)
	}

	var handle Handle
	if n := len(t.freeList); n > 0 {
		handle = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		t.entries[handle-1] = entry[T]{value: value, valid: true}
	} else {
		t.entries = append(t.entries, entry[T]{value: value, valid: true})
		handle = Handle(len(t.entries))
	}
	t.live++
	live := t.live
	t.mu.Unlock()

	t.notify(Event{
		Type:   EventCreated,
		Kind:   t.kind,
		Handle: handle,
		Live:   live,
		Value:  value,
	})

	return handle, nil
}

// Get retrieves a value by handle.
func (t *Table[T]) Get(handle Handle) (T, error) {
	var zero T
	t.mu.RLock()
	defer t.mu.RUnlock()

	idx, ok := t.slot(handle)
	if !ok {
		return zero, t.invalid(handle)
	}
	return t.entries[idx].value, nil
}

// Remove tombstones a handle and returns its value. If the value
// implements Dropper, Drop is called after the handle is released.
func (t *Table[T]) Remove(handle Handle) (T, error) {
	var zero T
	t.mu.Lock()
	idx, ok := t.slot(handle)
	if !ok {
		t.mu.Unlock()
		return zero, t.invalid(handle)
	}

	value := t.entries[idx].value
	t.entries[idx] = entry[T]{}
	t.freeList = append(t.freeList, handle)
	t.live--
	live := t.live
	t.mu.Unlock()

	if d, ok := any(value).(Dropper); ok {
		d.Drop()
	}

	t.notify(Event{
		Type:   EventDropped,
		Kind:   t.kind,
		Handle: handle,
		Live:   live,
		Value:  value,
	})

	return value, nil
}

// Len returns the number of live handles.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.live
}

// Each iterates over live handles in ascending order until fn returns false.
// fn must not modify the table.
func (t *Table[T]) Each(fn func(Handle, T) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i, e := range t.entries {
		if e.valid {
			if !fn(Handle(i+1), e.value) {
				break
			}
		}
	}
}

// Clear removes every live handle, dropping values as Remove does.
func (t *Table[T]) Clear() {
	// Collect handles first to avoid holding the lock during Remove
	var handles []Handle
	t.Each(func(h Handle, _ T) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		_, _ = t.Remove(h)
	}
}

// Close clears the table and rejects further inserts.
func (t *Table[T]) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.Clear()
	return nil
}

// Subscribe adds an observer for lifecycle events.
func (t *Table[T]) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table[T]) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

func (t *Table[T]) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}

// slot returns the entry index for a live handle. Caller holds mu.
func (t *Table[T]) slot(h Handle) (int, bool) {
	if h == 0 || uint64(h) > uint64(len(t.entries)) {
		return 0, false
	}
	idx := int(h - 1)
	return idx, t.entries[idx].valid
}

func (t *Table[T]) invalid(h Handle) error {
	return errors.InvalidHandle(errors.PhaseHandle, string(t.kind), uint32(h))
}
