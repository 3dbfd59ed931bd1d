package state

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*DialogState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]*DialogState)}
}

func (m *MemoryStore) Load(_ context.Context, sessionID string) (*DialogState, error) {
	if sessionID == "" {
		return nil, ErrInvalidSession
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[sessionID]
	if !ok {
		return nil, ErrStateNotFound
	}
	return st.Snapshot(), nil
}

func (m *MemoryStore) Save(_ context.Context, st *DialogState) error {
	if st == nil {
		return ErrNilState
	}
	if st.SessionID == "" {
		return ErrInvalidSession
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.SessionID] = st.Snapshot()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, sessionID)
	return nil
}
