package backend

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/matheus3301/smartcart/internal/auth"
	"github.com/matheus3301/smartcart/internal/model"
)

const tripSelect = `
SELECT t.id, t.user_id, t.retailer_id, t.name, t.date, t.status,
       t.estimated_total, t.actual_total, t.completed_at, t.created_at, t.updated_at,
       r.name, r.location, r.created_at, r.updated_at
FROM trips t
JOIN retailers r ON r.id = t.retailer_id`

func scanTrip(row scanner) (model.Trip, error) {
	var (
		t         model.Trip
		r         model.Retailer
		completed sql.NullTime
		location  sql.NullString
	)
	err := row.Scan(&t.ID, &t.UserID, &t.RetailerID, &t.Name, &t.Date, &t.Status,
		&t.EstimatedTotal, &t.ActualTotal, &completed, &t.CreatedAt, &t.UpdatedAt,
		&r.Name, &location, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return model.Trip{}, err
	}
	t.Date = model.Day(t.Date)
	t.CompletedAt = timePtr(completed)
	t.CreatedAt, t.UpdatedAt = t.CreatedAt.UTC(), t.UpdatedAt.UTC()

	r.ID, r.UserID = t.RetailerID, t.UserID
	r.Location = stringPtr(location)
	r.CreatedAt, r.UpdatedAt = r.CreatedAt.UTC(), r.UpdatedAt.UTC()
	t.Retailer = &r
	return t, nil
}

func (s *Store) CreateTrip(ctx context.Context, in model.TripInput) (model.Trip, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return model.Trip{}, err
	}
	in = in.Normalize(s.now())
	if err := model.Validate(in); err != nil {
		return model.Trip{}, err
	}

	var out model.Trip
	err = s.withTx(ctx, func(tx querier) error {
		if err := ownsRetailer(ctx, tx, userID, in.RetailerID); err != nil {
			return err
		}
		now := s.stamp()
		id := uuid.NewString()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO trips (id, user_id, retailer_id, name, date, status, estimated_total, actual_total, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7, $7)`,
			id, userID, in.RetailerID, in.Name, model.Day(in.Date), string(model.StatusPlanned), now)
		if err != nil {
			return translate(err)
		}
		out, err = getTrip(ctx, tx, userID, id, false)
		return err
	})
	return out, err
}

func (s *Store) ListTrips(ctx context.Context, f model.TripFilter) ([]model.Trip, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}

	where := []string{"t.user_id = $1"}
	args := []any{userID}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("t.status = $%d", string(f.Status))
	}
	if f.RetailerID != "" {
		add("t.retailer_id = $%d", f.RetailerID)
	}
	if f.ExcludeID != "" {
		add("t.id <> $%d", f.ExcludeID)
	}
	if f.DateFrom != nil {
		add("t.date >= $%d::date", model.Day(*f.DateFrom))
	}
	if f.DateTo != nil {
		add("t.date <= $%d::date", model.Day(*f.DateTo))
	}
	query := tripSelect + " WHERE " + strings.Join(where, " AND ") + " ORDER BY t.date DESC, t.created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	out := []model.Trip{}
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) GetTrip(ctx context.Context, id string) (model.Trip, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return model.Trip{}, err
	}
	t, err := getTrip(ctx, s.db, userID, id, false)
	if err != nil {
		return model.Trip{}, err
	}
	if t.Items, err = listItems(ctx, s.db, userID, id); err != nil {
		return model.Trip{}, err
	}
	return t, nil
}

func getTrip(ctx context.Context, q querier, userID, id string, lock bool) (model.Trip, error) {
	query := tripSelect + ` WHERE t.id = $1 AND t.user_id = $2`
	if lock {
		query += ` FOR UPDATE OF t`
	}
	t, err := scanTrip(q.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		return model.Trip{}, translate(err)
	}
	return t, nil
}

func (s *Store) UpdateTrip(ctx context.Context, id string, p model.TripPatch) (model.Trip, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return model.Trip{}, err
	}
	if err := model.Validate(p); err != nil {
		return model.Trip{}, err
	}

	var out model.Trip
	err = s.withTx(ctx, func(tx querier) error {
		t, err := getTrip(ctx, tx, userID, id, true)
		if err != nil {
			return err
		}
		if p.RetailerID != nil {
			if err := ownsRetailer(ctx, tx, userID, *p.RetailerID); err != nil {
				return err
			}
		}
		if p.Status != "" {
			if p.Status == model.StatusActive && t.Status != model.StatusActive {
				if err := noOtherActive(ctx, tx, userID, id); err != nil {
					return err
				}
			}
			if err := t.Transition(p.Status, s.stamp()); err != nil {
				return err
			}
		}
		p.Apply(&t)
		t.UpdatedAt = s.stamp()

		var completed sql.NullTime
		if t.CompletedAt != nil {
			completed = sql.NullTime{Time: *t.CompletedAt, Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE trips SET name = $1, date = $2, retailer_id = $3, status = $4, completed_at = $5, updated_at = $6
			WHERE id = $7`,
			t.Name, t.Date, t.RetailerID, string(t.Status), completed, t.UpdatedAt, t.ID)
		if err != nil {
			return translate(err)
		}
		out, err = getTrip(ctx, tx, userID, id, false)
		return err
	})
	return out, err
}

// noOtherActive returns ErrActiveTripExists when a trip other than id is
// active. The partial unique index backs this up under concurrency.
func noOtherActive(ctx context.Context, q querier, userID, id string) error {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM trips WHERE user_id = $1 AND status = 'active' AND id <> $2)`,
		userID, id).Scan(&exists)
	if err != nil {
		return translate(err)
	}
	if exists {
		return model.ErrActiveTripExists
	}
	return nil
}

func (s *Store) DeleteTrip(ctx context.Context, id string) error {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM trips WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return translate(err)
	}
	return affected(res)
}

// recomputeTotals rewrites a trip's totals from its items.
func recomputeTotals(ctx context.Context, q querier, tripID string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE trips SET
		    estimated_total = COALESCE((SELECT SUM(quantity::numeric * estimated_price) FROM trip_items WHERE trip_id = $1), 0),
		    actual_total    = COALESCE((SELECT SUM(quantity::numeric * actual_price) FROM trip_items WHERE trip_id = $1), 0)
		WHERE id = $1`, tripID)
	if err != nil {
		return fmt.Errorf("recompute totals: %w", translate(err))
	}
	return nil
}
