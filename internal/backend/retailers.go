package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/matheus3301/smartcart/internal/auth"
	"github.com/matheus3301/smartcart/internal/model"
)

const retailerSelect = `
SELECT r.id, r.user_id, r.name, r.location, r.created_at, r.updated_at,
       (SELECT count(*) FROM trips t WHERE t.retailer_id = r.id)
FROM retailers r`

func scanRetailer(row scanner) (model.Retailer, error) {
	var (
		r        model.Retailer
		location sql.NullString
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.Name, &location, &r.CreatedAt, &r.UpdatedAt, &r.TripCount); err != nil {
		return model.Retailer{}, err
	}
	r.Location = stringPtr(location)
	r.CreatedAt, r.UpdatedAt = r.CreatedAt.UTC(), r.UpdatedAt.UTC()
	return r, nil
}

func (s *Store) CreateRetailer(ctx context.Context, in model.RetailerInput) (model.Retailer, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return model.Retailer{}, err
	}
	in = in.Normalize()
	if err := model.Validate(in); err != nil {
		return model.Retailer{}, err
	}
	now := s.stamp()
	r := model.Retailer{ID: uuid.NewString(), UserID: userID, Name: in.Name, Location: in.Location, CreatedAt: now, UpdatedAt: now}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO retailers (id, user_id, name, location, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.UserID, r.Name, nullString(r.Location), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return model.Retailer{}, translate(err)
	}
	return r, nil
}

func (s *Store) ListRetailers(ctx context.Context) ([]model.Retailer, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, retailerSelect+` WHERE r.user_id = $1 ORDER BY lower(r.name), r.created_at`, userID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	out := []model.Retailer{}
	for rows.Next() {
		r, err := scanRetailer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) GetRetailer(ctx context.Context, id string) (model.Retailer, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return model.Retailer{}, err
	}
	return getRetailer(ctx, s.db, userID, id, false)
}

func getRetailer(ctx context.Context, q querier, userID, id string, lock bool) (model.Retailer, error) {
	query := retailerSelect + ` WHERE r.id = $1 AND r.user_id = $2`
	if lock {
		query += ` FOR UPDATE OF r`
	}
	r, err := scanRetailer(q.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		return model.Retailer{}, translate(err)
	}
	return r, nil
}

func (s *Store) UpdateRetailer(ctx context.Context, id string, p model.RetailerPatch) (model.Retailer, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return model.Retailer{}, err
	}
	p = p.Normalize()
	if err := model.Validate(p); err != nil {
		return model.Retailer{}, err
	}

	var out model.Retailer
	err = s.withTx(ctx, func(tx querier) error {
		r, err := getRetailer(ctx, tx, userID, id, true)
		if err != nil {
			return err
		}
		p.Apply(&r)
		r.UpdatedAt = s.stamp()
		_, err = tx.ExecContext(ctx,
			`UPDATE retailers SET name = $1, location = $2, updated_at = $3 WHERE id = $4`,
			r.Name, nullString(r.Location), r.UpdatedAt, r.ID)
		if err != nil {
			return translate(err)
		}
		out = r
		return nil
	})
	return out, err
}

func (s *Store) DeleteRetailer(ctx context.Context, id string) error {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx querier) error {
		r, err := getRetailer(ctx, tx, userID, id, true)
		if err != nil {
			return err
		}
		if r.TripCount > 0 {
			return model.ErrRetailerHasTrips
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM retailers WHERE id = $1`, id)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation {
			return model.ErrRetailerHasTrips
		}
		if err != nil {
			return fmt.Errorf("delete retailer: %w", translate(err))
		}
		return nil
	})
}

// ownsRetailer returns a wrapped ErrNotFound when retailerID is not one of
// the user's retailers.
func ownsRetailer(ctx context.Context, q querier, userID, retailerID string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM retailers WHERE id = $1 AND user_id = $2`, retailerID, userID).Scan(&one)
	if err != nil {
		return fmt.Errorf("retailer %s: %w", retailerID, translate(err))
	}
	return nil
}
