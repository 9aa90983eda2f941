// Package sync replays queued offline mutations against the backend and
// resynchronizes the local cache afterwards.
package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/matheus3301/smartcart/internal/bus"
	"github.com/matheus3301/smartcart/internal/cache"
	"github.com/matheus3301/smartcart/internal/connectivity"
	"github.com/matheus3301/smartcart/internal/metrics"
	"github.com/matheus3301/smartcart/internal/model"
	"github.com/matheus3301/smartcart/internal/mutation"
	"github.com/matheus3301/smartcart/internal/remote"
	"go.uber.org/zap"
)

// MaxRetries is how many failed replays a mutation survives. The attempt
// after the last retry that fails drops it.
const MaxRetries = 3

// Stats summarizes one drain.
type Stats struct {
	Synced   int  `json:"synced"`
	Failed   int  `json:"failed"`
	Retrying int  `json:"retrying"`
	Skipped  bool `json:"skipped,omitempty"`
}

// Engine drains the mutation queue when connectivity returns.
type Engine struct {
	store    *cache.Store
	remote   remote.Services
	signal   connectivity.Signal
	bus      *bus.Bus
	metrics  *metrics.Sync
	logger   *zap.Logger
	interval time.Duration

	draining atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithInterval also drains on a timer while online, picking up mutations
// left queued after failed attempts. Zero disables the timer.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) { e.interval = d }
}

// WithMetrics records drain metrics.
func WithMetrics(m *metrics.Sync) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates a sync engine. b may be nil when no events are wanted.
func NewEngine(store *cache.Store, svc remote.Services, signal connectivity.Signal, b *bus.Bus, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		remote: svc,
		signal: signal,
		bus:    b,
		logger: logger,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Start drains the queue on every connectivity.online event until Stop.
// The engine must have been given a bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	ch, unsub := e.bus.Subscribe(bus.TopicConnectivityOnline, 16)

	go func() {
		defer close(e.done)
		defer unsub()

		var tick <-chan time.Time
		if e.interval > 0 {
			ticker := time.NewTicker(e.interval)
			defer ticker.Stop()
			tick = ticker.C
		}

		for {
			select {
			case <-ch:
				e.SyncPendingChanges(ctx)
			case <-tick:
				if n, err := e.store.QueueSize(ctx); err == nil && n > 0 {
					e.SyncPendingChanges(ctx)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine and waits for a running drain to return.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

// SyncPendingChanges replays the mutations queued at the moment of the call,
// in enqueue order. It never fails: per-mutation errors are counted and a
// storage failure is logged and leaves the rest for the next trigger.
func (e *Engine) SyncPendingChanges(ctx context.Context) Stats {
	if !e.signal.Online() {
		return Stats{}
	}
	if !e.draining.CompareAndSwap(false, true) {
		e.logger.Debug("drain already running, skipped")
		e.metrics.IncSkipped()
		return Stats{Skipped: true}
	}
	defer e.draining.Store(false)

	start := time.Now()
	stats, touched, err := e.drain(ctx)
	if err != nil {
		e.logger.Error("drain aborted", zap.Error(err))
	}
	e.resync(ctx, touched)
	e.metrics.ObserveDrain(time.Since(start))
	if n, err := e.store.QueueSize(ctx); err == nil {
		e.metrics.SetQueueSize(n)
	}

	e.logger.Info("sync finished",
		zap.Int("synced", stats.Synced),
		zap.Int("failed", stats.Failed),
		zap.Int("retrying", stats.Retrying),
		zap.Duration("took", time.Since(start)))
	if e.bus != nil {
		e.bus.Emit(bus.TopicSyncCompleted, stats)
	}
	return stats
}

func (e *Engine) drain(ctx context.Context) (Stats, map[string]bool, error) {
	var stats Stats
	touched := map[string]bool{}

	queued, err := e.store.ListQueuedMutations(ctx)
	if err != nil {
		return stats, touched, err
	}
	if len(queued) == 0 {
		return stats, touched, nil
	}
	ids, err := LoadIDMap(ctx, e.store)
	if err != nil {
		return stats, touched, err
	}

	for _, q := range queued {
		if err := ctx.Err(); err != nil {
			return stats, touched, err
		}
		if q.Err != nil {
			if err := e.store.DequeueMutation(ctx, q.ID); err != nil {
				return stats, touched, err
			}
			stats.Failed++
			e.logger.Error("dropped undecodable mutation", zap.String("mutation_id", q.ID), zap.Error(q.Err))
			continue
		}
		a := q.Action.Rewrite(ids.Resolve)
		if trip := a.TripID(); trip != "" && !model.IsTempID(trip) {
			touched[trip] = true
		}

		serverID, err := e.replay(ctx, a)
		if err == nil {
			if model.IsTempID(a.Target()) && serverID != "" {
				if err := ids.Record(ctx, a.Target(), serverID); err != nil {
					return stats, touched, err
				}
			}
			if err := e.store.DequeueMutation(ctx, q.ID); err != nil {
				return stats, touched, err
			}
			stats.Synced++
			e.metrics.ObserveReplay(string(a.Kind()), metrics.OutcomeSynced)
			continue
		}

		count, rerr := e.store.IncrementRetry(ctx, q.ID)
		if rerr != nil {
			return stats, touched, rerr
		}
		if count > MaxRetries {
			if err := e.store.DequeueMutation(ctx, q.ID); err != nil {
				return stats, touched, err
			}
			stats.Failed++
			e.metrics.ObserveReplay(string(a.Kind()), metrics.OutcomeDropped)
			e.logger.Warn("mutation dropped after retries",
				zap.String("mutation_id", q.ID),
				zap.String("kind", string(a.Kind())),
				zap.Int("attempts", count),
				zap.Error(err))
			continue
		}
		stats.Retrying++
		e.metrics.ObserveReplay(string(a.Kind()), metrics.OutcomeRetrying)
		e.logger.Info("mutation replay failed, will retry",
			zap.String("mutation_id", q.ID),
			zap.String("kind", string(a.Kind())),
			zap.Int("retry_count", count),
			zap.Error(err))
	}

	if size, err := e.store.QueueSize(ctx); err == nil && size == 0 && ids.Len() > 0 {
		if err := ids.Reset(ctx); err != nil {
			e.logger.Warn("reset id map", zap.Error(err))
		}
	}
	return stats, touched, nil
}

// errUnresolved marks an action whose temp references have no server id yet.
var errUnresolved = errors.New("references a record that has not been synced")

func (e *Engine) replay(ctx context.Context, a mutation.Action) (string, error) {
	if refs := mutation.Unresolved(a); len(refs) > 0 {
		return "", fmt.Errorf("%s %v: %w", a.Kind(), refs, errUnresolved)
	}
	return a.Replay(ctx, e.remote)
}

// resync reloads the collections a drain may have changed. Item lists are
// reloaded for trips the drain touched. Records under temp ids survive
// while their create is still queued; otherwise they are dropped.
func (e *Engine) resync(ctx context.Context, touched map[string]bool) {
	pending := e.pendingTargets(ctx)

	if retailers, err := e.remote.ListRetailers(ctx); err == nil {
		retailers = keepPending(cachedList[model.Retailer](ctx, e, cache.KeyRetailers), retailers, pending,
			func(r model.Retailer) string { return r.ID })
		model.SortRetailers(retailers)
		e.put(ctx, cache.KeyRetailers, cache.CollectionRetailers, retailers)
	} else {
		e.logger.Warn("refresh retailers", zap.Error(err))
	}

	if trips, err := e.remote.ListTrips(ctx, model.TripFilter{}); err == nil {
		all := keepPending(cachedList[model.Trip](ctx, e, cache.KeyTrips), trips, pending,
			func(t model.Trip) string { return t.ID })
		model.SortTrips(all)
		e.put(ctx, cache.KeyTrips, cache.CollectionTrips, all)
		e.syncActive(ctx, all)
	} else {
		e.logger.Warn("refresh trips", zap.Error(err))
	}

	keys, err := e.store.Keys(ctx, cache.CollectionTripItems)
	if err != nil {
		e.logger.Warn("list item caches", zap.Error(err))
		return
	}
	for _, key := range keys {
		if trip := strings.TrimPrefix(key, cache.ItemsKey("")); model.IsTempID(trip) && !pending[trip] {
			if err := e.store.Remove(ctx, key); err != nil {
				e.logger.Warn("drop temp item cache", zap.String("key", key), zap.Error(err))
			}
		}
	}
	for trip := range touched {
		items, err := e.remote.ListItems(ctx, trip)
		if err != nil {
			e.logger.Warn("refresh items", zap.String("trip_id", trip), zap.Error(err))
			continue
		}
		e.put(ctx, cache.ItemsKey(trip), cache.CollectionTripItems, items)
	}
	if e.bus != nil {
		e.bus.Emit(bus.TopicCacheRefreshed, len(touched))
	}
}

// pendingTargets returns the temp ids that queued mutations still create.
func (e *Engine) pendingTargets(ctx context.Context) map[string]bool {
	pending := make(map[string]bool)
	queued, err := e.store.ListQueuedMutations(ctx)
	if err != nil {
		e.logger.Warn("list queue for resync", zap.Error(err))
		return pending
	}
	for _, q := range queued {
		if q.Action != nil && model.IsTempID(q.Action.Target()) {
			pending[q.Action.Target()] = true
		}
	}
	return pending
}

func cachedList[T any](ctx context.Context, e *Engine, key string) []T {
	var list []T
	if _, err := e.store.Get(ctx, key, &list); err != nil {
		e.logger.Warn("read cache for resync", zap.String("key", key), zap.Error(err))
	}
	return list
}

// keepPending appends to fresh the cached records whose temp id is pending.
func keepPending[T any](cached, fresh []T, pending map[string]bool, id func(T) string) []T {
	for _, v := range cached {
		if k := id(v); model.IsTempID(k) && pending[k] {
			fresh = append(fresh, v)
		}
	}
	return fresh
}

func (e *Engine) syncActive(ctx context.Context, trips []model.Trip) {
	for _, t := range trips {
		if t.Status == model.StatusActive {
			e.put(ctx, cache.KeyActiveTrip, cache.CollectionActiveTrip, t)
			return
		}
	}
	if err := e.store.Remove(ctx, cache.KeyActiveTrip); err != nil {
		e.logger.Warn("clear active trip", zap.Error(err))
	}
}

func (e *Engine) put(ctx context.Context, key, collection string, v any) {
	if err := e.store.Put(ctx, key, collection, v); err != nil {
		e.logger.Warn("cache refresh failed", zap.String("key", key), zap.Error(err))
	}
}

// QueueSize returns the number of pending mutations.
func (e *Engine) QueueSize(ctx context.Context) (int, error) {
	return e.store.QueueSize(ctx)
}

// ClearCache drops every cached collection. Queued mutations are kept.
func (e *Engine) ClearCache(ctx context.Context) error {
	return e.store.Clear(ctx,
		cache.CollectionRetailers,
		cache.CollectionTrips,
		cache.CollectionTripItems,
		cache.CollectionActiveTrip)
}
