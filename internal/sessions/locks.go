// Package sessions serializes agent turns per conversation thread.
// Locks are refcounted: an entry exists only while some goroutine holds
// or waits for it, so the table stays bounded by concurrent threads
// rather than growing with every thread ever seen.
package sessions

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Locks is a set of named mutual-exclusion locks.
type Locks struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewLocks() *Locks {
	return &Locks{entries: make(map[string]*entry)}
}

// Acquire blocks until the named lock is held and returns its release
// function. Release must be called exactly once.
func (l *Locks) Acquire(name string) (release func()) {
	l.mu.Lock()
	e, ok := l.entries[name]
	if !ok {
		e = &entry{}
		l.entries[name] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			l.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(l.entries, name)
			}
			l.mu.Unlock()
		})
	}
}

// Len reports the number of live entries. For tests and introspection.
func (l *Locks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
