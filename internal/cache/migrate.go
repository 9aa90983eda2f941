package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/matheus3301/smartcart/internal/cache/migrations"
)

// ErrDirtySchema means an earlier schema upgrade was interrupted. The
// cache is left untouched since the queue may hold unsynced changes.
var ErrDirtySchema = errors.New("cache schema is dirty")

// Schema is the state of the cache database once it is opened.
type Schema struct {
	Version uint
	Dirty   bool
	// Upgraded is set when migrations ran during this open.
	Upgraded bool
	Entries  int
	Pending  int
}

// Migrate brings the cache schema up to date and reports what the cache
// holds: cached records and changes still waiting to sync.
func (s *Store) Migrate(ctx context.Context) (Schema, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return Schema{}, fmt.Errorf("cache schema source: %w", err)
	}
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return Schema{}, fmt.Errorf("cache schema driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return Schema{}, fmt.Errorf("cache schema: %w", err)
	}

	var sc Schema
	var dirty migrate.ErrDirty
	switch err := m.Up(); {
	case err == nil:
		sc.Upgraded = true
	case errors.Is(err, migrate.ErrNoChange):
	case errors.As(err, &dirty):
		return Schema{Version: uint(dirty.Version), Dirty: true},
			fmt.Errorf("%w at version %d", ErrDirtySchema, dirty.Version)
	default:
		return Schema{}, fmt.Errorf("upgrade cache schema: %w", err)
	}

	if sc.Version, sc.Dirty, err = m.Version(); err != nil {
		return Schema{}, fmt.Errorf("cache schema version: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&sc.Entries); err != nil {
		return Schema{}, fmt.Errorf("count cache entries: %w", err)
	}
	if sc.Pending, err = s.QueueSize(ctx); err != nil {
		return Schema{}, err
	}
	return sc, nil
}
