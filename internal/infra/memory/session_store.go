package memory

import (
	"context"
	"sync"
	"time"

	"quizapp-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionStore.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState
}

type sessionState struct {
	userID  int64
	hasUser bool
	started time.Time
	running bool
	forms   map[int]domain.FormSnapshot
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*sessionState),
	}
}

// getOrCreateLocked must be called with s.mu held for writing.
func (s *SessionStore) getOrCreateLocked(sessionID string) *sessionState {
	if state, ok := s.sessions[sessionID]; ok {
		return state
	}
	state := &sessionState{forms: make(map[int]domain.FormSnapshot)}
	s.sessions[sessionID] = state
	return state
}

func (s *SessionStore) SaveForm(_ context.Context, sessionID string, snap domain.FormSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap.Answers = append([]string(nil), snap.Answers...)
	s.getOrCreateLocked(sessionID).forms[snap.CurrentStep] = snap
	return nil
}

func (s *SessionStore) Form(_ context.Context, sessionID string, step int) (domain.FormSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sessions[sessionID]
	if !ok {
		return domain.FormSnapshot{}, false, nil
	}
	snap, ok := state.forms[step]
	if !ok {
		return domain.FormSnapshot{}, false, nil
	}
	snap.Answers = append([]string(nil), snap.Answers...)
	return snap, true, nil
}

func (s *SessionStore) ClearForms(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.sessions[sessionID]; ok {
		state.forms = make(map[int]domain.FormSnapshot)
	}
	return nil
}

func (s *SessionStore) StartTimer(_ context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.getOrCreateLocked(sessionID)
	state.started = at
	state.running = true
	return nil
}

func (s *SessionStore) TakeTimer(_ context.Context, sessionID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.sessions[sessionID]
	if !ok || !state.running {
		return time.Time{}, false, nil
	}
	started := state.started
	state.started = time.Time{}
	state.running = false
	return started, true, nil
}

func (s *SessionStore) SetUser(_ context.Context, sessionID string, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.getOrCreateLocked(sessionID)
	state.userID = userID
	state.hasUser = true
	return nil
}

func (s *SessionStore) User(_ context.Context, sessionID string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sessions[sessionID]
	if !ok || !state.hasUser {
		return 0, false, nil
	}
	return state.userID, true, nil
}

func (s *SessionStore) Reset(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
