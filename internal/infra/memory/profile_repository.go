package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"pfp-quiz-service/internal/app"
	"pfp-quiz-service/internal/domain"
)

// ProfileLoader fetches the candidate profiles for a mode from a backing store (e.g., Postgres).
type ProfileLoader interface {
	LoadProfiles(ctx context.Context, mode domain.Mode) ([]domain.Profile, error)
}

// ProfileRepository caches profile pools with TTL to avoid repeated DB hits.
type ProfileRepository struct {
	loader ProfileLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[domain.Mode]cachedPool
}

type cachedPool struct {
	profiles  []domain.Profile
	expiresAt time.Time
}

func NewProfileRepository(loader ProfileLoader, ttl time.Duration) *ProfileRepository {
	return &ProfileRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[domain.Mode]cachedPool),
	}
}

func (r *ProfileRepository) GetProfiles(ctx context.Context, mode domain.Mode) ([]domain.Profile, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[mode]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.profiles, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(string(mode), func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[mode]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.profiles, nil
		}
		r.mu.RUnlock()

		profiles, err := r.loader.LoadProfiles(ctx, mode)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache[mode] = cachedPool{
			profiles:  profiles,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return profiles, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Profile), nil
}

func (r *ProfileRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticProfileLoader serves fixed pools per mode (useful for tests/demos).
type StaticProfileLoader struct {
	pools map[domain.Mode][]domain.Profile
}

func NewStaticProfileLoader(pools map[domain.Mode][]domain.Profile) *StaticProfileLoader {
	return &StaticProfileLoader{pools: pools}
}

func (l *StaticProfileLoader) LoadProfiles(_ context.Context, mode domain.Mode) ([]domain.Profile, error) {
	if pool, ok := l.pools[mode]; ok {
		return pool, nil
	}
	return nil, fmt.Errorf("%w: mode %s", domain.ErrNoProfiles, mode)
}

// MockPools generates count placeholder profiles for every mode.
func MockPools(count int) map[domain.Mode][]domain.Profile {
	pools := make(map[domain.Mode][]domain.Profile, len(domain.Modes))
	for m, mode := range domain.Modes {
		pool := make([]domain.Profile, 0, count)
		for i := 0; i < count; i++ {
			handle := m*count + i + 1
			pool = append(pool, app.MockProfile(int64(1000+handle), handle))
		}
		pools[mode] = pool
	}
	return pools
}
