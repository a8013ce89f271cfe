package redis

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"pfp-quiz-service/internal/app"
)

// SessionStore is a Redis-aware implementation of app.ControllerRepository.
// Controllers hold timers and a live connection, so they stay in a local map;
// Redis only carries a presence marker per signed-in player so other
// instances (and operators) can see who is online.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[int64]*app.Controller
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[int64]*app.Controller),
	}
}

func (s *SessionStore) Put(fid int64, c *app.Controller) *app.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.sessions[fid]
	s.sessions[fid] = c
	// best-effort presence marker
	if err := s.client.Set(context.Background(), s.key(fid), c.Profile().Username, s.ttl).Err(); err != nil {
		log.Printf("mark player %d online: %v", fid, err)
	}
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
	current, ok := s.sessions[fid]
	if !ok || current != c {
		return
	}
	delete(s.sessions, fid)
	_ = s.client.Del(context.Background(), s.key(fid)).Err()
}

// Touch extends the presence marker of a player signed in on this instance,
// recreating it if it already expired.
func (s *SessionStore) Touch(ctx context.Context, fid int64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.sessions[fid]
	if !ok {
		return nil
	}
	return s.client.Set(ctx, s.key(fid), c.Profile().Username, s.ttl).Err()
}

// Online reports whether any instance has fid marked as signed in.
func (s *SessionStore) Online(ctx context.Context, fid int64) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(fid)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SessionStore) key(fid int64) string {
	return "quiz:player:" + strconv.FormatInt(fid, 10)
}
