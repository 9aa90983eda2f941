// Package backend is the Postgres implementation of the remote services.
// Every query is scoped to the user carried by the request context.
package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/matheus3301/smartcart/internal/auth"
	"github.com/matheus3301/smartcart/internal/backend/migrations"
	"github.com/matheus3301/smartcart/internal/metrics"
	"github.com/matheus3301/smartcart/internal/model"
	"github.com/matheus3301/smartcart/internal/remote"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

var (
	_ remote.Services = (*Store)(nil)
	_ auth.UserStore  = (*Store)(nil)
)

// Store serves retailers, trips, items, price history and accounts from Postgres.
type Store struct {
	pool   *pgxpool.Pool
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// Open connects to dsn and applies pending migrations.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Store{pool: pool, db: stdlib.OpenDBFromPool(pool), logger: logger, now: time.Now}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies the embedded goose migrations.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "."); err != nil {
		return fmt.Errorf("migrate postgres: %w", err)
	}
	version, err := goose.GetDBVersionContext(ctx, s.db)
	if err == nil {
		s.logger.Info("backend schema ready", zap.Int64("version", version))
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// PoolStats reports connection pool usage for the daemon's metrics.
func (s *Store) PoolStats() metrics.PoolSnapshot {
	st := s.pool.Stat()
	return metrics.PoolSnapshot{
		Acquired: st.AcquiredConns(),
		Idle:     st.IdleConns(),
		Total:    st.TotalConns(),
		Max:      st.MaxConns(),
	}
}

func (s *Store) Close() error {
	err := s.db.Close()
	s.pool.Close()
	return err
}

func (s *Store) stamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// withTx runs fn in a transaction, committing when it returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx querier) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}

// Postgres error codes the backend translates.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeInvalidText         = "22P02"
)

// translate maps constraint violations to domain errors.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		switch pgErr.ConstraintName {
		case "users_email_key":
			return auth.ErrEmailExists
		case "retailers_user_name_key":
			return model.ErrDuplicateRetailer
		case "trips_one_active":
			return model.ErrActiveTripExists
		}
	case codeForeignKeyViolation:
		return model.ErrNotFound
	case codeCheckViolation:
		return fmt.Errorf("%w: %s", model.ErrInvalidInput, pgErr.Message)
	case codeInvalidText:
		// Ids that are not uuids cannot name a stored row.
		return model.ErrNotFound
	}
	return err
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
