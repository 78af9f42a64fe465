package pipeline

import "sync"

// keyedMutex hands out named locks. Holders of one key serialize;
// different keys proceed independently. Entries are reference counted and
// removed when their last holder unlocks, so the map is bounded by the
// number of in-flight holders, not by every key ever locked — action IDs
// are unique per decision and would otherwise accumulate forever. The
// orchestrator keys one instance by action ID (in-flight duplicate
// suppression) and one by subject ID (frequency read-increment and
// first-assignment ordering).
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyLock)}
}

// Lock blocks until the named lock is held and returns its unlock func,
// which must be called exactly once.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	// Counted before blocking on l.mu, so the entry cannot be dropped
	// while a waiter is queued on it.
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// size returns the number of live entries.
func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
