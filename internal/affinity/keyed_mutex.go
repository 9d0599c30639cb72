package affinity

import "sync"

// keyedMutex hands out one mutex per key. Entries are reference counted and dropped
// once nobody holds or waits for them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu       sync.Mutex
	refCount int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

func (km *keyedMutex) Lock(key string) {
	km.mu.Lock()
	e, ok := km.locks[key]
	if !ok {
		e = &keyedEntry{}
		km.locks[key] = e
	}
	e.refCount++
	km.mu.Unlock()

	e.mu.Lock()
}

func (km *keyedMutex) Unlock(key string) {
	km.mu.Lock()
	defer km.mu.Unlock()

	e, ok := km.locks[key]
	if !ok {
		panic("affinity: unlock of unlocked session " + key)
	}
	e.refCount--
	if e.refCount == 0 {
		delete(km.locks, key)
	}
	e.mu.Unlock()
}

// Len returns the number of keys currently held or awaited.
func (km *keyedMutex) Len() int {
	km.mu.Lock()
	defer km.mu.Unlock()
	return len(km.locks)
}

// sessionLock adapts one key of a keyedMutex to sync.Locker.
type sessionLock struct {
	locks *keyedMutex
	key   string
}

func (l sessionLock) Lock()   { l.locks.Lock(l.key) }
func (l sessionLock) Unlock() { l.locks.Unlock(l.key) }
