package memory

import (
	"context"
	"sync"

	"wellness-quiz-engine/internal/domain"
)

// SessionStore is an in-memory implementation of flow.SessionStore, keyed by
// user id.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.SessionState
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]domain.SessionState)}
}

func (s *SessionStore) Get(_ context.Context, userID string) (domain.SessionState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sessions[userID]
	return state, ok, nil
}

func (s *SessionStore) Set(_ context.Context, userID string, state domain.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID] = state
	return nil
}

func (s *SessionStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}
