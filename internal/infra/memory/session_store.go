package memory

import (
	"sync"

	"pfp-quiz-service/internal/app"
)

// SessionStore is an in-memory implementation of app.ControllerRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[int64]*app.Controller
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[int64]*app.Controller),
	}
}

func (s *SessionStore) Put(fid int64, c *app.Controller) *app.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.sessions[fid]
	s.sessions[fid] = c
	return prev
}

func (s *SessionStore) Get(fid int64) (*app.Controller, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.sessions[fid]
	return c, ok
}

func (s *SessionStore) Delete(fid int64, c *app.Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.sessions[fid]; ok && current == c {
		delete(s.sessions, fid)
	}
}

// Len reports how many players are signed in.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
