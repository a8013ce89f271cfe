package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"pfp-quiz-service/internal/app"
)

// KVStore maps the private and shared keyspaces onto Redis strings.
// Values live under kv:val:<space>:<key>; every keyspace keeps a ZSET of its
// keys (all scored 0) so prefix listing is a ZRANGEBYLEX instead of a SCAN.
type KVStore struct {
	client *redis.Client
}

func NewKVStore(client *redis.Client) *KVStore {
	return &KVStore{client: client}
}

func (s *KVStore) ForOwner(owner string) app.KVStore {
	return ownerView{store: s, owner: owner}
}

type ownerView struct {
	store *KVStore
	owner string
}

func (v ownerView) space(shared bool) string {
	if shared {
		return "shared"
	}
	return "private:" + v.owner
}

func valueKey(space, key string) string {
	return "kv:val:" + space + ":" + key
}

func indexKey(space string) string {
	return "kv:idx:" + space
}

func (v ownerView) Get(ctx context.Context, key string, shared bool) (string, bool, error) {
	value, err := v.store.client.Get(ctx, valueKey(v.space(shared), key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (v ownerView) Set(ctx context.Context, key, value string, shared bool) error {
	space := v.space(shared)
	pipe := v.store.client.TxPipeline()
	pipe.Set(ctx, valueKey(space, key), value, 0)
	pipe.ZAdd(ctx, indexKey(space), redis.Z{Score: 0, Member: key})
	_, err := pipe.Exec(ctx)
	return err
}

func (v ownerView) List(ctx context.Context, prefix string, shared bool) ([]string, error) {
	rng := &redis.ZRangeBy{Min: "-", Max: "+"}
	if prefix != "" {
		rng = &redis.ZRangeBy{Min: "[" + prefix, Max: "(" + prefix + "\xff"}
	}
	keys, err := v.store.client.ZRangeByLex(ctx, indexKey(v.space(shared)), rng).Result()
	if err != nil {
		return nil, err
	}
	return keys, nil
}
