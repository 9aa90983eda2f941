// Package cache is the client's local cache store: last-known copies of
// remote collections plus the queue of mutations waiting to be replayed.
package cache

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Collections group cache keys.
const (
	CollectionRetailers  = "retailers"
	CollectionTrips      = "trips"
	CollectionTripItems  = "trip_items"
	CollectionActiveTrip = "active_trip"
	CollectionMeta       = "meta"
)

// Well-known keys.
const (
	KeyRetailers  = "retailers"
	KeyTrips      = "trips"
	KeyActiveTrip = "active_trip"
	KeyIDMap      = "id_map"
	KeyAuthToken  = "auth_token"
)

// ItemsKey is the key of the item list cached for a trip.
func ItemsKey(tripID string) string {
	return "trip_items_" + tripID
}

// Store wraps the SQLite database backing the cache.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open creates a SQLite connection with WAL mode and recommended pragmas.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping cache: %w", err)
	}
	s := &Store{db: db, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}
