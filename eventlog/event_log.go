// Package eventlog provides an append-only, concurrency-safe log of events.
// Readers receive copies, so iteration never happens under the log's lock.
package eventlog

import "sync"

// Log is an ordered, append-only sequence of entries of type T. Appends are
// all-or-nothing and entries are never removed. It is safe for concurrent
// use by multiple goroutines.
type Log[T any] struct {
	entries []T
	sync.RWMutex
}

// NewLog creates and returns a new empty Log.
func NewLog[T any]() *Log[T] {
	return &Log[T]{entries: make([]T, 0)}
}

// Append adds an entry to the end of the log.
//
// Parameters:
//   - value: The entry to append
func (l *Log[T]) Append(value T) {
	l.Lock()
	defer l.Unlock()
	l.entries = append(l.entries, value)
}

// Len returns the number of entries appended so far.
//
// Returns:
//   - The number of entries in the log
func (l *Log[T]) Len() int {
	l.RLock()
	defer l.RUnlock()
	return len(l.entries)
}

// Snapshot returns a copy of the log in append order. The copy is not
// affected by later appends.
//
// Returns:
//   - A new slice holding every entry appended so far
func (l *Log[T]) Snapshot() []T {
	l.RLock()
	defer l.RUnlock()
	out := make([]T, len(l.entries))
	copy(out, l.entries)
	return out
}

// Range calls f for each entry of a snapshot of the log, in append order.
// Iteration stops if f returns false. f may append to the log; those entries
// are not visited.
//
// Parameters:
//   - f: Function called for each entry; return false to stop iteration
func (l *Log[T]) Range(f func(index int, value T) bool) {
	for i, v := range l.Snapshot() {
		if !f(i, v) {
			return
		}
	}
}
