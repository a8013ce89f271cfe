package redis

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"pfp-quiz-service/internal/domain"
)

// ProfileLoader fetches the candidate profiles for a mode from a backing store.
type ProfileLoader interface {
	LoadProfiles(ctx context.Context, mode domain.Mode) ([]domain.Profile, error)
}

// ProfileRepository caches profile pools in Redis (hash per mode) and falls back to a loader on cache miss.
// Profiles are stored as: HSET quiz:profiles:{mode} {username} {profile json}
type ProfileRepository struct {
	client *redis.Client
	loader ProfileLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewProfileRepository(client *redis.Client, loader ProfileLoader, ttl time.Duration) *ProfileRepository {
	return &ProfileRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *ProfileRepository) GetProfiles(ctx context.Context, mode domain.Mode) ([]domain.Profile, error) {
	key := r.poolKey(mode)

	cached, err := r.client.HGetAll(ctx, key).Result()
	if err == nil && len(cached) > 0 {
		return decodePool(key, cached), nil
	}

	result, err, _ := r.sf.Do(string(mode), func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		cached, err := r.client.HGetAll(ctx, key).Result()
		if err == nil && len(cached) > 0 {
			return decodePool(key, cached), nil
		}

		profiles, err := r.loader.LoadProfiles(ctx, mode)
		if err != nil {
			return nil, err
		}

		ttl := r.ttlWithJitter()
		pipe := r.client.Pipeline()
		for _, p := range profiles {
			raw, err := json.Marshal(p)
			if err != nil {
				continue
			}
			pipe.HSet(ctx, key, p.Username, raw)
		}
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			log.Printf("cache profiles for %s: %v", mode, err)
		}

		return profiles, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Profile), nil
}

func (r *ProfileRepository) poolKey(mode domain.Mode) string {
	return "quiz:profiles:" + string(mode)
}

// decodePool rebuilds a pool from the hash, ordered by fid for stable sampling.
func decodePool(key string, cached map[string]string) []domain.Profile {
	profiles := make([]domain.Profile, 0, len(cached))
	for username, raw := range cached {
		var p domain.Profile
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			log.Printf("skipping cached profile %s in %s: %v", username, key, err)
			continue
		}
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].FID < profiles[j].FID })
	return profiles
}

func (r *ProfileRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
