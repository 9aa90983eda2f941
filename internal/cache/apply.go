package cache

import (
	"context"
	"fmt"

	"github.com/matheus3301/smartcart/internal/mutation"
)

// Write is one cache change inside Apply. A nil Value removes the key.
type Write struct {
	Key        string
	Collection string
	Value      any
}

// Set builds a Write storing v under key.
func Set(key, collection string, v any) Write {
	return Write{Key: key, Collection: collection, Value: v}
}

// Del builds a Write removing key.
func Del(key string) Write {
	return Write{Key: key}
}

// Apply performs writes and, when a is non-nil, enqueues it, all in one
// transaction. It returns the queued mutation id ("" when a is nil).
func (s *Store) Apply(ctx context.Context, writes []Write, a mutation.Action) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, w := range writes {
		if w.Value == nil {
			err = s.remove(ctx, tx, w.Key)
		} else {
			err = s.put(ctx, tx, w.Key, w.Collection, w.Value)
		}
		if err != nil {
			return "", err
		}
	}

	var id string
	if a != nil {
		if id, err = s.enqueue(ctx, tx, a); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}
