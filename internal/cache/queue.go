package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/smartcart/internal/model"
	"github.com/matheus3301/smartcart/internal/mutation"
)

// EnqueueMutation appends a to the queue and returns its id.
func (s *Store) EnqueueMutation(ctx context.Context, a mutation.Action) (string, error) {
	return s.enqueue(ctx, s.db, a)
}

func (s *Store) enqueue(ctx context.Context, ex execer, a mutation.Action) (string, error) {
	kind, payload, err := mutation.Encode(a)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = ex.ExecContext(ctx, `
		INSERT INTO mutation_queue (id, kind, payload, enqueued_at, retry_count)
		VALUES (?, ?, ?, ?, 0)`,
		id, string(kind), string(payload), s.now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", kind, err)
	}
	return id, nil
}

// ListQueuedMutations returns the queue oldest first. Rows whose payload no
// longer decodes are returned with Err set so the caller can drop them.
func (s *Store) ListQueuedMutations(ctx context.Context) ([]mutation.Queued, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, payload, enqueued_at, retry_count
		FROM mutation_queue ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []mutation.Queued
	for rows.Next() {
		var (
			q          mutation.Queued
			kind       string
			payload    string
			enqueuedAt int64
		)
		if err := rows.Scan(&q.ID, &kind, &payload, &enqueuedAt, &q.RetryCount); err != nil {
			return nil, err
		}
		if q.Action, err = mutation.Decode(mutation.Kind(kind), []byte(payload)); err != nil {
			q.Err = fmt.Errorf("queued mutation %s: %w", q.ID, err)
		}
		q.EnqueuedAt = time.UnixMilli(enqueuedAt)
		out = append(out, q)
	}
	return out, rows.Err()
}

// DequeueMutation removes a mutation. Removing an absent id is not an error.
func (s *Store) DequeueMutation(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM mutation_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("dequeue %s: %w", id, err)
	}
	return nil
}

// IncrementRetry bumps the retry count of a mutation and returns the new value.
func (s *Store) IncrementRetry(ctx context.Context, id string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		UPDATE mutation_queue SET retry_count = retry_count + 1
		WHERE id = ? RETURNING retry_count`, id).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("mutation %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("increment retry %s: %w", id, err)
	}
	return count, nil
}

// QueueSize returns the number of pending mutations.
func (s *Store) QueueSize(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mutation_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("queue size: %w", err)
	}
	return n, nil
}
