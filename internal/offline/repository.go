// Package offline implements repositories that keep working without a
// connection: writes go to the backend when reachable and otherwise land in
// the local cache together with a queued mutation for later replay.
package offline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/matheus3301/smartcart/internal/cache"
	"github.com/matheus3301/smartcart/internal/connectivity"
	"github.com/matheus3301/smartcart/internal/model"
	"github.com/matheus3301/smartcart/internal/mutation"
	"github.com/matheus3301/smartcart/internal/remote"
	"go.uber.org/zap"
)

// Deps are the collaborators shared by every repository.
type Deps struct {
	Store    *cache.Store
	Remote   remote.Services
	Signal   connectivity.Signal
	Identity remote.Identity
	Logger   *zap.Logger
	Now      func() time.Time
}

// QueuedError reports that a remote write failed and the change was applied
// locally and queued for replay. Its message is the remote failure's.
type QueuedError struct {
	MutationID string
	Err        error
}

func (e *QueuedError) Error() string { return e.Err.Error() }
func (e *QueuedError) Unwrap() error { return e.Err }

// IsQueued reports whether err means the change is pending sync.
func IsQueued(err error) bool {
	var q *QueuedError
	return errors.As(err, &q)
}

type base struct {
	store    *cache.Store
	remote   remote.Services
	signal   connectivity.Signal
	identity remote.Identity
	logger   *zap.Logger
	now      func() time.Time
}

func newBase(d Deps, component string) base {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return base{
		store:    d.Store,
		remote:   d.Remote,
		signal:   d.Signal,
		identity: d.Identity,
		logger:   logger.With(zap.String("repo", component)),
		now:      func() time.Time { return now().UTC() },
	}
}

func (b *base) online() bool {
	return b.signal != nil && b.signal.Online()
}

// commit applies writes and queues a. With a nil cause (offline) it returns
// the queue error only; otherwise it reports the cause as a *QueuedError.
func (b *base) commit(ctx context.Context, writes []cache.Write, a mutation.Action, cause error) error {
	id, err := b.store.Apply(ctx, writes, a)
	if err != nil {
		if cause != nil {
			return fmt.Errorf("%w (queueing %s: %v)", cause, a.Kind(), err)
		}
		return fmt.Errorf("queue %s: %w", a.Kind(), err)
	}
	if cause == nil {
		b.logger.Debug("queued offline change", zap.String("kind", string(a.Kind())), zap.String("mutation_id", id))
		return nil
	}
	b.logger.Warn("remote write failed, queued for sync",
		zap.String("kind", string(a.Kind())),
		zap.String("mutation_id", id),
		zap.Error(cause))
	return &QueuedError{MutationID: id, Err: cause}
}

// queueUncached handles a change to a record the cache does not hold.
// Offline there is nothing to apply it to. After a failed remote call the
// change is queued as-is, unless the backend reported a non-pending id as
// missing: then neither side has the record.
func (b *base) queueUncached(ctx context.Context, id string, a mutation.Action, cause error) error {
	if cause == nil {
		return model.ErrNotFoundInCache
	}
	if errors.Is(cause, model.ErrNotFound) && !model.IsTempID(id) {
		return cause
	}
	return b.commit(ctx, nil, a, cause)
}

// refresh writes canonical remote data to the cache. Failures are logged:
// the remote call already succeeded.
func (b *base) refresh(ctx context.Context, writes []cache.Write) {
	if len(writes) == 0 {
		return
	}
	if _, err := b.store.Apply(ctx, writes, nil); err != nil {
		b.logger.Warn("cache refresh failed", zap.Error(err))
	}
}

// terminal reports remote errors that must not trigger the offline fallback.
func terminal(err error) bool {
	return errors.Is(err, model.ErrNotAuthenticated) ||
		errors.Is(err, context.Canceled)
}

// readFallback reports whether a failed remote read should be served from
// the cache instead of returned.
func readFallback(err error) bool {
	return !terminal(err) && !errors.Is(err, model.ErrNotFound)
}

// cached loads a collection, reporting model.ErrNoCachedData when absent.
func cached[T any](ctx context.Context, s *cache.Store, key string) (T, error) {
	var v T
	found, err := s.Get(ctx, key, &v)
	if err != nil {
		return v, err
	}
	if !found {
		return v, model.ErrNoCachedData
	}
	return v, nil
}

// cachedOrEmpty loads a collection, treating absence as empty.
func cachedOrEmpty[T any](ctx context.Context, s *cache.Store, key string) ([]T, bool, error) {
	var v []T
	found, err := s.Get(ctx, key, &v)
	if err != nil {
		return nil, false, err
	}
	return v, found, nil
}

func indexOf[T any](list []T, id func(T) string, want string) int {
	return slices.IndexFunc(list, func(v T) bool { return id(v) == want })
}

func idOfRetailer(r model.Retailer) string { return r.ID }
func idOfTrip(t model.Trip) string         { return t.ID }
func idOfItem(it model.TripItem) string    { return it.ID }

// tripWrites stores the full trip list and keeps active_trip in line with it.
func tripWrites(trips []model.Trip) []cache.Write {
	model.SortTrips(trips)
	writes := []cache.Write{cache.Set(cache.KeyTrips, cache.CollectionTrips, trips)}
	for _, t := range trips {
		if t.Status == model.StatusActive {
			return append(writes, cache.Set(cache.KeyActiveTrip, cache.CollectionActiveTrip, t))
		}
	}
	return append(writes, cache.Del(cache.KeyActiveTrip))
}

func upsert[T any](list []T, v T, id func(T) string) []T {
	if i := indexOf(list, id, id(v)); i >= 0 {
		list[i] = v
		return list
	}
	return append(list, v)
}
