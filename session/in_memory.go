package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/sgrlabs/sgragent/core"
)

// InMemoryStore is a volatile SessionStore implementation holding sessions in
// a process local map. It is safe for concurrent access and best suited for
// tests or ephemeral servers. Sessions are cloned on the way in and out so
// store contents are never mutated behind the store's back.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*core.Session)}
}

// Create stores a new session. It fails when the id is already taken.
func (s *InMemoryStore) Create(_ context.Context, session *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return fmt.Errorf("session %q already exists", session.ID)
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

// Get returns a clone of the stored session, or core.ErrSessionNotFound.
func (s *InMemoryStore) Get(_ context.Context, id string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	return session.Clone(), nil
}

// Update replaces the stored snapshot for an existing session.
func (s *InMemoryStore) Update(_ context.Context, session *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; !ok {
		return core.ErrSessionNotFound
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

// Delete removes a session. Deleting an unknown id is not an error.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Len reports the number of stored sessions.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
