package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Put JSON-encodes value and stores it under key, replacing any previous value.
func (s *Store) Put(ctx context.Context, key, collection string, value any) error {
	return s.put(ctx, s.db, key, collection, value)
}

func (s *Store) put(ctx context.Context, ex execer, key, collection string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO cache_entries (key, collection, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			collection = excluded.collection,
			value = excluded.value,
			updated_at = excluded.updated_at`,
		key, collection, string(raw), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Get decodes the value stored under key into dst. It reports false when the
// key is absent.
func (s *Store) Get(ctx context.Context, key string, dst any) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM cache_entries WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// Remove deletes key. Removing an absent key is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	return s.remove(ctx, s.db, key)
}

func (s *Store) remove(ctx context.Context, ex execer, key string) error {
	if _, err := ex.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Keys lists the keys of a collection in key order.
func (s *Store) Keys(ctx context.Context, collection string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM cache_entries WHERE collection = ? ORDER BY key`, collection)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Clear drops every entry of the given collections, or the whole cache when
// none are given. The mutation queue is untouched.
func (s *Store) Clear(ctx context.Context, collections ...string) error {
	if len(collections) == 0 {
		_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries`)
		return err
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(collections)), ",")
	args := make([]any, len(collections))
	for i, c := range collections {
		args[i] = c
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE collection IN (`+marks+`)`, args...)
	return err
}
