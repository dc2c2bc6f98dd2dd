package session

import (
	"context"
	"slices"
	"sync"
)

// InMemoryStore is a volatile SessionStore keeping snapshots in a process
// local map. It is safe for concurrent access and suited for tests or single
// process runners. Snapshots are copied on save and load.
type InMemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string][]byte
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{snapshots: make(map[string][]byte)}
}

// Load returns a copy of the stored snapshot or ErrNotFound.
func (s *InMemoryStore) Load(_ context.Context, sessionID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.snapshots[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(data), nil
}

// Save stores (or overwrites) the snapshot for the session.
func (s *InMemoryStore) Save(_ context.Context, sessionID string, snapshot []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[sessionID] = slices.Clone(snapshot)
	return nil
}

// Delete removes the session snapshot. Deleting an unknown session is a no-op.
func (s *InMemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, sessionID)
	return nil
}

// IDs returns the ids of all stored sessions.
func (s *InMemoryStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.snapshots))
	for id := range s.snapshots {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
