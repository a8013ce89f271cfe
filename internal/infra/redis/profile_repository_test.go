package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"pfp-quiz-service/internal/domain"
	"pfp-quiz-service/internal/infra/memory"
)

func TestProfileRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{ProfileLoader: memory.NewStaticProfileLoader(memory.MockPools(5))}
	repo := NewProfileRepository(newClient(mr), loader, time.Minute)

	pool, err := repo.GetProfiles(context.Background(), domain.ModeFollowing)
	if err != nil {
		t.Fatalf("get profiles: %v", err)
	}
	if len(pool) != 5 {
		t.Fatalf("expected 5 profiles, got %d", len(pool))
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("quiz:profiles:following") {
		t.Fatalf("expected cached hash")
	}
	if ttl := mr.TTL("quiz:profiles:following"); ttl < time.Minute {
		t.Fatalf("expected ttl >= 1m, got %v", ttl)
	}

	// Second call should hit cache, loader not incremented.
	cached, err := repo.GetProfiles(context.Background(), domain.ModeFollowing)
	if err != nil {
		t.Fatalf("get cached: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if len(cached) != 5 || cached[0].FID > cached[4].FID {
		t.Fatalf("expected 5 fid-ordered profiles, got %+v", cached)
	}
}

func TestProfileRepositorySkipsCorruptCacheEntries(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	mr.HSet("quiz:profiles:followers", "good", `{"fid":1,"username":"good"}`)
	mr.HSet("quiz:profiles:followers", "bad", `{not json`)

	loader := &countingLoader{ProfileLoader: memory.NewStaticProfileLoader(nil)}
	repo := NewProfileRepository(newClient(mr), loader, time.Minute)
	pool, err := repo.GetProfiles(context.Background(), domain.ModeFollowers)
	if err != nil {
		t.Fatalf("get profiles: %v", err)
	}
	if len(pool) != 1 || pool[0].Username != "good" {
		t.Fatalf("expected only the valid profile, got %+v", pool)
	}
	if loader.calls != 0 {
		t.Fatalf("expected no loader call, got %d", loader.calls)
	}
}

type countingLoader struct {
	memory.ProfileLoader
	calls int
}

func (l *countingLoader) LoadProfiles(ctx context.Context, mode domain.Mode) ([]domain.Profile, error) {
	l.calls++
	return l.ProfileLoader.LoadProfiles(ctx, mode)
}
