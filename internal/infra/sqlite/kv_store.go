package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"pfp-quiz-service/internal/app"
)

// KVStore keeps both keyspaces in a single-file SQLite database.
type KVStore struct {
	db *sql.DB
}

func NewKVStore(path string) (*KVStore, error) {
	if strings.TrimSpace(path) == "" {
		path = "pfp-quiz.db"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	store := &KVStore{db: db}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *KVStore) Close() error {
	return s.db.Close()
}

func (s *KVStore) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS kv_entries (
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at_unix INTEGER NOT NULL,
			PRIMARY KEY (namespace, key)
		);`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *KVStore) ForOwner(owner string) app.KVStore {
	return ownerView{db: s.db, owner: owner}
}

type ownerView struct {
	db    *sql.DB
	owner string
}

func (v ownerView) namespace(shared bool) string {
	if shared {
		return "shared"
	}
	return "private:" + v.owner
}

func (v ownerView) Get(ctx context.Context, key string, shared bool) (string, bool, error) {
	var value string
	err := v.db.QueryRowContext(ctx,
		`SELECT value FROM kv_entries WHERE namespace = ? AND key = ?`,
		v.namespace(shared), key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (v ownerView) Set(ctx context.Context, key, value string, shared bool) error {
	_, err := v.db.ExecContext(ctx,
		`INSERT INTO kv_entries (namespace, key, value, updated_at_unix)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at_unix = excluded.updated_at_unix`,
		v.namespace(shared), key, value, time.Now().Unix(),
	)
	return err
}

func (v ownerView) List(ctx context.Context, prefix string, shared bool) ([]string, error) {
	// substr keeps the match case-sensitive, unlike LIKE.
	rows, err := v.db.QueryContext(ctx,
		`SELECT key FROM kv_entries WHERE namespace = ? AND substr(key, 1, length(?)) = ? ORDER BY key`,
		v.namespace(shared), prefix, prefix,
	)
	if err != nil {
		return nil, err
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
