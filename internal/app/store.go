package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pfp-quiz-service/internal/domain"
)

// KVStore is the asynchronous key-value store split into a private keyspace
// owned by one player and a shared keyspace visible to everyone.
type KVStore interface {
	// Get returns ok=false when the key is absent.
	Get(ctx context.Context, key string, shared bool) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, shared bool) error
	// List returns the keys under prefix in ascending order.
	List(ctx context.Context, prefix string, shared bool) ([]string, error)
}

// KVBackend hands out stores whose private keyspace belongs to owner.
type KVBackend interface {
	ForOwner(owner string) KVStore
}

// getJSON reads key and decodes it into out. Missing keys report ok=false.
func getJSON(ctx context.Context, store KVStore, key string, shared bool, out any) (bool, error) {
	raw, ok, err := store.Get(ctx, key, shared)
	if err != nil {
		return false, storageErr("get "+key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("%w: %s: %v", domain.ErrMalformedRecord, key, err)
	}
	return true, nil
}

func setJSON(ctx context.Context, store KVStore, key string, shared bool, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := store.Set(ctx, key, string(data), shared); err != nil {
		return storageErr("set "+key, err)
	}
	return nil
}

// storageErr tags backend failures so callers can degrade with errors.Is.
func storageErr(op string, err error) error {
	if errors.Is(err, domain.ErrStorageUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageUnavailable, err)
}

// WithTimeout bounds every call on store by d. A zero d returns store unchanged.
func WithTimeout(store KVStore, d time.Duration) KVStore {
	if d <= 0 {
		return store
	}
	return timeoutStore{next: store, d: d}
}

type timeoutStore struct {
	next KVStore
	d    time.Duration
}

func (s timeoutStore) Get(ctx context.Context, key string, shared bool) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.d)
	defer cancel()
	return s.next.Get(ctx, key, shared)
}

func (s timeoutStore) Set(ctx context.Context, key, value string, shared bool) error {
	ctx, cancel := context.WithTimeout(ctx, s.d)
	defer cancel()
	return s.next.Set(ctx, key, value, shared)
}

func (s timeoutStore) List(ctx context.Context, prefix string, shared bool) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.d)
	defer cancel()
	return s.next.List(ctx, prefix, shared)
}
