// ABOUTME: SQLite-backed implementation of the local key-value store
// ABOUTME: Each Set is a single upsert, so a crash leaves either the old or the new value
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/harper/om/internal/localstore"
)

// KV stores opaque values in the kv table
type KV struct {
	db *DB
}

var _ localstore.Store = (*KV)(nil)

// NewKV ensures the kv table exists and returns a store over it
func NewKV(db *DB) (*KV, error) {
	if err := db.Apply(KVSchema); err != nil {
		return nil, err
	}
	return &KV{db: db}, nil
}

func (s *KV) Get(key string) ([]byte, error) {
	var value []byte
	err := s.db.conn.Get(&value, `SELECT value FROM kv WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, localstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return value, nil
}

func (s *KV) Set(key string, value []byte) error {
	_, err := s.db.conn.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

func (s *KV) Delete(key string) error {
	if _, err := s.db.conn.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Keys lists stored keys with the given prefix
func (s *KV) Keys(prefix string) ([]string, error) {
	var keys []string
	err := s.db.conn.Select(&keys, `SELECT key FROM kv WHERE substr(key, 1, length(?)) = ? ORDER BY key`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return keys, nil
}
