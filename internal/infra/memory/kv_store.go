package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"pfp-quiz-service/internal/app"
)

// KVStore keeps the private and shared keyspaces in process memory.
type KVStore struct {
	mu      sync.RWMutex
	private map[string]map[string]string
	shared  map[string]string
}

func NewKVStore() *KVStore {
	return &KVStore{
		private: make(map[string]map[string]string),
		shared:  make(map[string]string),
	}
}

// ForOwner returns a view whose private keyspace belongs to owner.
func (s *KVStore) ForOwner(owner string) app.KVStore {
	return ownerView{store: s, owner: owner}
}

type ownerView struct {
	store *KVStore
	owner string
}

func (v ownerView) Get(ctx context.Context, key string, shared bool) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	value, ok := v.store.space(v.owner, shared)[key]
	return value, ok, nil
}

func (v ownerView) Set(ctx context.Context, key, value string, shared bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	if shared {
		v.store.shared[key] = value
		return nil
	}
	space, ok := v.store.private[v.owner]
	if !ok {
		space = make(map[string]string)
		v.store.private[v.owner] = space
	}
	space[key] = value
	return nil
}

func (v ownerView) List(ctx context.Context, prefix string, shared bool) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	keys := make([]string, 0)
	for key := range v.store.space(v.owner, shared) {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// space returns the map for a keyspace; callers hold at least the read lock.
func (s *KVStore) space(owner string, shared bool) map[string]string {
	if shared {
		return s.shared
	}
	return s.private[owner]
}
