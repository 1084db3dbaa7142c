package session

import (
	"context"
	"sync"
)

// memoryStore keeps sessions in process memory. Snapshots are cloned on
// both read and write so mutations after a pass cannot leak into the
// stored state.
type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore returns an in-memory store suitable for tests and
// single-process bots without persistence requirements.
func NewMemoryStore() Store {
	return &memoryStore{sessions: make(map[string]*Session)}
}

func (m *memoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored, ok := m.sessions[id]
	if !ok {
		return New(), nil
	}
	return stored.Clone(), nil
}

func (m *memoryStore) Set(_ context.Context, id string, sess *Session) error {
	if sess == nil {
		sess = New()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = sess.Clone()
	return nil
}

func (m *memoryStore) Clear(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}
