package session

import (
	"context"
	"sync"
)

// lockEntry holds the per-id mutex and its reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// KeyedLock serializes work per session id so concurrent webhook
// deliveries for the same user cannot interleave a load-mutate-save
// pass. Entries are reference counted and removed once unused, keeping
// the map bounded by the number of in-flight users.
type KeyedLock struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

// NewKeyedLock returns an empty keyed lock.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{locks: make(map[string]*lockEntry)}
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must lock entry.mu and call release(id) after unlocking.
func (l *KeyedLock) acquire(id string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.locks[id]
	if !exists {
		entry = &lockEntry{}
		l.locks[id] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry at zero.
func (l *KeyedLock) release(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.locks[id]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(l.locks, id)
	}
}

// WithLock executes fn while holding the lock for id.
func (l *KeyedLock) WithLock(ctx context.Context, id string, fn func(context.Context) error) error {
	entry := l.acquire(id)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		l.release(id)
	}()
	return fn(ctx)
}

// active reports how many ids currently hold lock entries. Test hook.
func (l *KeyedLock) active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
