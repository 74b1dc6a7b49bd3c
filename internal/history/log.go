// Package history provides the append-only logs that back signal and index
// history. A Log is owned by whoever constructs it and is handed to the
// components that append to it; there is no process-wide history.
package history

import "sync"

// Log is an append-only sequence of immutable records.
// Safe for concurrent use: appends take the write lock, reads take the read
// lock and always return copies.
type Log[T any] struct {
	mu    sync.RWMutex
	items []T
}

// New creates an empty log.
func New[T any]() *Log[T] {
	return &Log[T]{}
}

// From creates a log seeded with existing records (e.g. loaded from the store).
// The slice is copied.
func From[T any](items []T) *Log[T] {
	l := &Log[T]{items: make([]T, len(items))}
	copy(l.items, items)
	return l
}

// Append adds a record to the end of the log.
func (l *Log[T]) Append(v T) {
	l.mu.Lock()
	l.items = append(l.items, v)
	l.mu.Unlock()
}

// Len returns the number of records.
func (l *Log[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Last returns a copy of the last n records in append order.
// n <= 0 returns every record.
func (l *Log[T]) Last(n int) []T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	start := 0
	if n > 0 && n < len(l.items) {
		start = len(l.items) - n
	}
	out := make([]T, len(l.items)-start)
	copy(out, l.items[start:])
	return out
}

// Latest returns the most recent record, if any.
func (l *Log[T]) Latest() (T, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var zero T
	if len(l.items) == 0 {
		return zero, false
	}
	return l.items[len(l.items)-1], true
}
