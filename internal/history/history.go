package history

import "sync"

// Log is a concurrent per-key append log with a hard size bound. When a key
// reaches the limit, appending evicts the oldest entry first, so the log
// always holds the most recent entries in insertion order.
type Log[T any] struct {
	mu      sync.RWMutex
	entries map[string][]T
	limit   int
}

func NewLog[T any](limit int) *Log[T] {
	if limit <= 0 {
		limit = 100
	}
	return &Log[T]{
		entries: make(map[string][]T),
		limit:   limit,
	}
}

// Append adds v to key's log, enforcing the size bound atomically so
// concurrent appenders can never push a key past the limit.
func (l *Log[T]) Append(key string, v T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := append(l.entries[key], v)
	if len(entries) > l.limit {
		// Shift rather than re-slice so the evicted head can be collected.
		copy(entries, entries[1:])
		entries = entries[:l.limit]
	}
	l.entries[key] = entries
}

// Get returns a copy of key's entries, oldest first.
func (l *Log[T]) Get(key string) []T {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := l.entries[key]
	if len(entries) == 0 {
		return nil
	}
	out := make([]T, len(entries))
	copy(out, entries)
	return out
}

// All returns a copy of every key's entries.
func (l *Log[T]) All() map[string][]T {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string][]T, len(l.entries))
	for k, entries := range l.entries {
		cp := make([]T, len(entries))
		copy(cp, entries)
		out[k] = cp
	}
	return out
}

// Len reports how many entries key currently holds.
func (l *Log[T]) Len(key string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries[key])
}
