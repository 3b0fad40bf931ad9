// Package keylock provides mutual exclusion per key.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Map hands out one mutex per key and forgets keys nobody holds or waits on.
// The zero value is ready to use.
type Map[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*entry
}

// Lock blocks until the caller holds key and returns the matching unlock func.
func (m *Map[K]) Lock(key K) (unlock func()) {
	m.mu.Lock()
	if m.entries == nil {
		m.entries = make(map[K]*entry)
	}
	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		m.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(m.entries, key)
		}
		m.mu.Unlock()
	}
}

// size returns the number of keys currently held or awaited.
func (m *Map[K]) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
