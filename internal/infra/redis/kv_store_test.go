package redis

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestKVStoreRoundTripAndListing(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	backend := NewKVStore(newClient(mr))
	alice := backend.ForOwner("1")
	bob := backend.ForOwner("2")

	if _, ok, err := alice.Get(ctx, "user:1", false); err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}
	if err := alice.Set(ctx, "user:1", `{"totalScore":10}`, false); err != nil {
		t.Fatalf("set private: %v", err)
	}
	if v, ok, err := alice.Get(ctx, "user:1", false); err != nil || !ok || v != `{"totalScore":10}` {
		t.Fatalf("unexpected private value %q ok=%v err=%v", v, ok, err)
	}
	if _, ok, _ := bob.Get(ctx, "user:1", false); ok {
		t.Fatalf("private value leaked to another owner")
	}

	for _, key := range []string{"daily:2024-01-02:2", "daily:2024-01-02:1", "daily:2024-01-03:1", "alltime:1"} {
		if err := bob.Set(ctx, key, "{}", true); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	// Overwrites must not duplicate index entries.
	if err := alice.Set(ctx, "alltime:1", `{"totalScore":5}`, true); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	keys, err := alice.List(ctx, "daily:2024-01-02:", true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 2 || keys[0] != "daily:2024-01-02:1" || keys[1] != "daily:2024-01-02:2" {
		t.Fatalf("unexpected daily keys %v", keys)
	}
	all, err := alice.List(ctx, "", true)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 shared keys, got %v", all)
	}
	if !mr.Exists("kv:val:shared:alltime:1") {
		t.Fatalf("expected shared value key")
	}
}

func TestKVStoreSurfacesConnectionErrors(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := newClient(mr)
	mr.Close()

	store := NewKVStore(client).ForOwner("1")
	if _, _, err := store.Get(context.Background(), "user:1", false); err == nil {
		t.Fatalf("expected error from closed server")
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:       mr.Addr(),
		MaxRetries: -1,
	})
}
