package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"pfp-quiz-service/internal/app"
)

const sharedNamespace = "shared"

// KVStore keeps both keyspaces in the kv_entries table, one namespace per owner.
type KVStore struct {
	pool *pgxpool.Pool
}

func NewKVStore(pool *pgxpool.Pool) *KVStore {
	return &KVStore{pool: pool}
}

func (s *KVStore) ForOwner(owner string) app.KVStore {
	return ownerView{pool: s.pool, owner: owner}
}

type ownerView struct {
	pool  *pgxpool.Pool
	owner string
}

func (v ownerView) namespace(shared bool) string {
	if shared {
		return sharedNamespace
	}
	return "private:" + v.owner
}

func (v ownerView) Get(ctx context.Context, key string, shared bool) (string, bool, error) {
	var value string
	err := v.pool.QueryRow(ctx,
		`SELECT value FROM kv_entries WHERE namespace=$1 AND key=$2`,
		v.namespace(shared), key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (v ownerView) Set(ctx context.Context, key, value string, shared bool) error {
	_, err := v.pool.Exec(ctx,
		`INSERT INTO kv_entries (namespace, key, value, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		v.namespace(shared), key, value,
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (v ownerView) List(ctx context.Context, prefix string, shared bool) ([]string, error) {
	rows, err := v.pool.Query(ctx,
		`SELECT key FROM kv_entries WHERE namespace=$1 AND key LIKE $2 ESCAPE '\' ORDER BY key`,
		v.namespace(shared), likePrefix(prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
