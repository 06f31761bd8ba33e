package handler

import (
	"sync"

	"otpbot/internal/domain"
)

// SessionStore keeps one session per user for the process lifetime
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[int64]*domain.Session
}

// NewSessionStore creates an empty session store
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[int64]*domain.Session)}
}

// Get returns user's session, creating an idle one on first interaction
func (s *SessionStore) Get(userID int64) *domain.Session {
	s.mu.RLock()
	session, exists := s.sessions[userID]
	s.mu.RUnlock()
	if exists {
		return session
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if session, exists = s.sessions[userID]; !exists {
		session = domain.NewSession()
		s.sessions[userID] = session
	}
	return session
}

// Peek returns user's session without creating one
func (s *SessionStore) Peek(userID int64) (*domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, exists := s.sessions[userID]
	return session, exists
}

// Len returns the number of known sessions
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
