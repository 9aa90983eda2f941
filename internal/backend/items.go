package backend

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/matheus3301/smartcart/internal/auth"
	"github.com/matheus3301/smartcart/internal/model"
	"github.com/shopspring/decimal"
)

const itemSelect = `
SELECT i.id, i.trip_id, i.item_name, i.quantity, i.estimated_price, i.actual_price,
       i.is_completed, i.created_at, i.updated_at
FROM trip_items i
JOIN trips t ON t.id = i.trip_id`

func scanItem(row scanner) (model.TripItem, error) {
	var it model.TripItem
	err := row.Scan(&it.ID, &it.TripID, &it.ItemName, &it.Quantity, &it.EstimatedPrice, &it.ActualPrice,
		&it.IsCompleted, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return model.TripItem{}, err
	}
	it.CreatedAt, it.UpdatedAt = it.CreatedAt.UTC(), it.UpdatedAt.UTC()
	return it, nil
}

func (s *Store) CreateItem(ctx context.Context, tripID string, in model.ItemInput) (model.TripItem, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return model.TripItem{}, err
	}
	in = in.Normalize()
	if err := model.Validate(in); err != nil {
		return model.TripItem{}, err
	}

	now := s.stamp()
	it := model.TripItem{ID: uuid.NewString(), TripID: tripID, ItemName: in.ItemName, Quantity: in.Quantity, CreatedAt: now, UpdatedAt: now}
	if in.EstimatedPrice != nil {
		it.EstimatedPrice = decimal.NewNullDecimal(*in.EstimatedPrice)
	}
	err = s.withTx(ctx, func(tx querier) error {
		if _, err := getTrip(ctx, tx, userID, tripID, true); err != nil {
			return fmt.Errorf("trip %s: %w", tripID, err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO trip_items (id, trip_id, item_name, quantity, estimated_price, actual_price, is_completed, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, NULL, false, $6, $6)`,
			it.ID, it.TripID, it.ItemName, it.Quantity, it.EstimatedPrice, now)
		if err != nil {
			return translate(err)
		}
		return recomputeTotals(ctx, tx, tripID)
	})
	if err != nil {
		return model.TripItem{}, err
	}
	return it, nil
}

func (s *Store) ListItems(ctx context.Context, tripID string) ([]model.TripItem, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	return listItems(ctx, s.db, userID, tripID)
}

func listItems(ctx context.Context, q querier, userID, tripID string) ([]model.TripItem, error) {
	rows, err := q.QueryContext(ctx, itemSelect+` WHERE i.trip_id = $1 AND t.user_id = $2 ORDER BY i.created_at, i.id`, tripID, userID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	out := []model.TripItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) GetItem(ctx context.Context, id string) (model.TripItem, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return model.TripItem{}, err
	}
	return getItem(ctx, s.db, userID, id, false)
}

func getItem(ctx context.Context, q querier, userID, id string, lock bool) (model.TripItem, error) {
	query := itemSelect + ` WHERE i.id = $1 AND t.user_id = $2`
	if lock {
		query += ` FOR UPDATE OF i`
	}
	it, err := scanItem(q.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		return model.TripItem{}, translate(err)
	}
	return it, nil
}

// UpdateItem applies p and recomputes the trip totals. Setting an actual
// price also appends a price history record dated today.
func (s *Store) UpdateItem(ctx context.Context, id string, p model.ItemPatch) (model.TripItem, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return model.TripItem{}, err
	}
	if err := model.Validate(p); err != nil {
		return model.TripItem{}, err
	}

	var out model.TripItem
	err = s.withTx(ctx, func(tx querier) error {
		it, err := getItem(ctx, tx, userID, id, true)
		if err != nil {
			return err
		}
		p.Apply(&it)
		it.UpdatedAt = s.stamp()
		_, err = tx.ExecContext(ctx, `
			UPDATE trip_items SET item_name = $1, quantity = $2, estimated_price = $3, actual_price = $4,
			    is_completed = $5, updated_at = $6
			WHERE id = $7`,
			it.ItemName, it.Quantity, it.EstimatedPrice, it.ActualPrice, it.IsCompleted, it.UpdatedAt, it.ID)
		if err != nil {
			return translate(err)
		}
		if err := recomputeTotals(ctx, tx, it.TripID); err != nil {
			return err
		}
		if p.ActualPrice != nil {
			if err := s.recordPrice(ctx, tx, userID, it, *p.ActualPrice); err != nil {
				return err
			}
		}
		out = it
		return nil
	})
	return out, err
}

func (s *Store) DeleteItem(ctx context.Context, id string) error {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx querier) error {
		it, err := getItem(ctx, tx, userID, id, true)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM trip_items WHERE id = $1`, id); err != nil {
			return translate(err)
		}
		return recomputeTotals(ctx, tx, it.TripID)
	})
}
