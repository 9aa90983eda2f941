package backend

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/matheus3301/smartcart/internal/auth"
	"github.com/matheus3301/smartcart/internal/model"
	"github.com/shopspring/decimal"
)

// recordPrice appends a history row for an item's actual price, attributed
// to the trip's retailer.
func (s *Store) recordPrice(ctx context.Context, tx querier, userID string, it model.TripItem, price decimal.Decimal) error {
	now := s.stamp()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO price_history (id, user_id, item_name, price, retailer_id, retailer_name, trip_id, date, created_at)
		SELECT $1, $2, $3, $4, t.retailer_id, r.name, t.id, $5, $6
		FROM trips t JOIN retailers r ON r.id = t.retailer_id
		WHERE t.id = $7`,
		uuid.NewString(), userID, model.NormalizeItemName(it.ItemName), price, model.Day(now), now, it.TripID)
	if err != nil {
		return fmt.Errorf("record price: %w", translate(err))
	}
	return nil
}

func (s *Store) QueryPrices(ctx context.Context, q model.PriceQuery) ([]model.PriceRecord, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}

	where := []string{"user_id = $1"}
	args := []any{userID}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if name := model.NormalizeItemName(q.ItemName); name != "" {
		add("item_name = $%d", name)
	}
	if q.RetailerID != "" {
		add("retailer_id = $%d", q.RetailerID)
	}
	if q.Since != nil {
		add("date >= $%d::date", model.Day(*q.Since))
	}
	query := `
		SELECT id, user_id, item_name, price, retailer_id, retailer_name, trip_id, date, created_at
		FROM price_history
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY date DESC, created_at DESC`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	out := []model.PriceRecord{}
	for rows.Next() {
		var (
			p              model.PriceRecord
			retailer, trip sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.ItemName, &p.Price, &retailer, &p.RetailerName, &trip, &p.Date, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.RetailerID, p.TripID = retailer.String, trip.String
		p.Date = model.Day(p.Date)
		p.CreatedAt = p.CreatedAt.UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}
