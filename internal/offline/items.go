package offline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/matheus3301/smartcart/internal/cache"
	"github.com/matheus3301/smartcart/internal/model"
	"github.com/matheus3301/smartcart/internal/mutation"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Items is the offline-aware trip item repository. Item lists are cached per
// trip; changes also recompute the owning trip's totals in the cache.
type Items struct {
	base
}

func NewItems(d Deps) *Items {
	return &Items{base: newBase(d, "items")}
}

// GetByTripID lists the items of a trip.
func (r *Items) GetByTripID(ctx context.Context, tripID string) ([]model.TripItem, error) {
	if r.online() {
		items, err := r.remote.ListItems(ctx, tripID)
		if err == nil {
			r.refresh(ctx, r.itemWrites(ctx, tripID, items))
			return items, nil
		}
		if !readFallback(err) {
			return nil, err
		}
		r.logger.Warn("list items failed, using cache", zap.String("trip_id", tripID), zap.Error(err))
	}
	return cached[[]model.TripItem](ctx, r.store, cache.ItemsKey(tripID))
}

// itemWrites stores a trip's item list and, when the trip is cached,
// its recomputed totals.
func (r *Items) itemWrites(ctx context.Context, tripID string, items []model.TripItem) []cache.Write {
	model.SortItems(items)
	writes := []cache.Write{cache.Set(cache.ItemsKey(tripID), cache.CollectionTripItems, items)}
	all, found, err := cachedOrEmpty[model.Trip](ctx, r.store, cache.KeyTrips)
	if err != nil || !found {
		return writes
	}
	i := indexOf(all, idOfTrip, tripID)
	if i < 0 {
		return writes
	}
	all[i].EstimatedTotal, all[i].ActualTotal = model.Totals(items)
	return append(writes, tripWrites(all)...)
}

// refreshItem folds a canonical item into the cached list of its trip, if
// that list is cached.
func (r *Items) refreshItem(ctx context.Context, it model.TripItem) {
	items, found, err := cachedOrEmpty[model.TripItem](ctx, r.store, cache.ItemsKey(it.TripID))
	if err != nil || !found {
		return
	}
	r.refresh(ctx, r.itemWrites(ctx, it.TripID, upsert(items, it, idOfItem)))
}

// locate finds the cached list holding item id.
func (r *Items) locate(ctx context.Context, id string) (string, []model.TripItem, int, error) {
	keys, err := r.store.Keys(ctx, cache.CollectionTripItems)
	if err != nil {
		return "", nil, -1, err
	}
	for _, key := range keys {
		var items []model.TripItem
		if _, err := r.store.Get(ctx, key, &items); err != nil {
			return "", nil, -1, err
		}
		if i := indexOf(items, idOfItem, id); i >= 0 {
			return strings.TrimPrefix(key, "trip_items_"), items, i, nil
		}
	}
	return "", nil, -1, model.ErrNotFoundInCache
}

// Create adds an item to a trip.
func (r *Items) Create(ctx context.Context, tripID string, in model.ItemInput) (model.TripItem, error) {
	in = in.Normalize()
	if err := model.Validate(in); err != nil {
		return model.TripItem{}, err
	}
	if _, err := r.identity.CurrentUser(ctx); err != nil {
		return model.TripItem{}, err
	}

	var cause error
	if r.online() {
		it, err := r.remote.CreateItem(ctx, tripID, in)
		if err == nil {
			r.refreshItem(ctx, it)
			return it, nil
		}
		if terminal(err) {
			return model.TripItem{}, err
		}
		cause = err
	}

	items, _, err := cachedOrEmpty[model.TripItem](ctx, r.store, cache.ItemsKey(tripID))
	if err != nil {
		return model.TripItem{}, err
	}
	now := r.now()
	it := model.TripItem{
		ID:        model.NewTempID(now),
		TripID:    tripID,
		ItemName:  in.ItemName,
		Quantity:  in.Quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.EstimatedPrice != nil {
		it.EstimatedPrice = decimal.NewNullDecimal(*in.EstimatedPrice)
	}
	err = r.commit(ctx,
		r.itemWrites(ctx, tripID, append(items, it)),
		mutation.CreateItem{TempID: it.ID, Trip: tripID, Input: in},
		cause)
	if err != nil && !IsQueued(err) {
		return model.TripItem{}, err
	}
	return it, err
}

// Update edits an item.
func (r *Items) Update(ctx context.Context, id string, p model.ItemPatch) (model.TripItem, error) {
	if err := model.Validate(p); err != nil {
		return model.TripItem{}, err
	}
	return r.change(ctx, id,
		func(ctx context.Context) (model.TripItem, error) { return r.remote.UpdateItem(ctx, id, p) },
		func(it *model.TripItem, tripID string) mutation.Action {
			p.Apply(it)
			return mutation.UpdateItem{ID: id, Trip: tripID, Patch: p}
		},
		mutation.UpdateItem{ID: id, Patch: p})
}

// UpdatePrice records the price actually paid. The backend also appends it
// to the price history.
func (r *Items) UpdatePrice(ctx context.Context, id string, price decimal.Decimal) (model.TripItem, error) {
	if price.IsNegative() {
		return model.TripItem{}, &model.ValidationError{Fields: map[string]string{"actual_price": "must be at least 0"}}
	}
	return r.change(ctx, id,
		func(ctx context.Context) (model.TripItem, error) {
			return r.remote.UpdateItem(ctx, id, model.ItemPatch{ActualPrice: &price})
		},
		func(it *model.TripItem, tripID string) mutation.Action {
			it.ActualPrice = decimal.NewNullDecimal(price)
			return mutation.UpdateItemPrice{ID: id, Trip: tripID, ActualPrice: price}
		},
		mutation.UpdateItemPrice{ID: id, ActualPrice: price})
}

// ToggleCompleted flips an item's completion flag.
func (r *Items) ToggleCompleted(ctx context.Context, id string) (model.TripItem, error) {
	return r.change(ctx, id,
		func(ctx context.Context) (model.TripItem, error) {
			cur, err := r.remote.GetItem(ctx, id)
			if err != nil {
				return model.TripItem{}, err
			}
			completed := !cur.IsCompleted
			return r.remote.UpdateItem(ctx, id, model.ItemPatch{IsCompleted: &completed})
		},
		func(it *model.TripItem, tripID string) mutation.Action {
			it.IsCompleted = !it.IsCompleted
			return mutation.ToggleItem{ID: id, Trip: tripID, Completed: it.IsCompleted}
		},
		mutation.ToggleItem{ID: id, Flip: true})
}

// change runs the shared update policy: remote call when online, otherwise
// (or on failure) apply locally via local and queue the action it returns.
// uncached is queued instead when the item is not in the cache.
func (r *Items) change(
	ctx context.Context,
	id string,
	viaRemote func(context.Context) (model.TripItem, error),
	local func(it *model.TripItem, tripID string) mutation.Action,
	uncached mutation.Action,
) (model.TripItem, error) {
	var cause error
	if r.online() {
		it, err := viaRemote(ctx)
		if err == nil {
			r.refreshItem(ctx, it)
			return it, nil
		}
		if terminal(err) {
			return model.TripItem{}, err
		}
		cause = err
	}

	tripID, items, i, err := r.locate(ctx, id)
	if errors.Is(err, model.ErrNotFoundInCache) {
		err = r.queueUncached(ctx, id, uncached, cause)
		if !IsQueued(err) {
			return model.TripItem{}, err
		}
		return model.TripItem{ID: id}, err
	}
	if err != nil {
		return model.TripItem{}, err
	}
	a := local(&items[i], tripID)
	items[i].UpdatedAt = r.now()
	it := items[i]
	err = r.commit(ctx, r.itemWrites(ctx, tripID, items), a, cause)
	if err != nil && !IsQueued(err) {
		return model.TripItem{}, fmt.Errorf("item %s: %w", id, err)
	}
	return it, err
}

// Delete removes an item.
func (r *Items) Delete(ctx context.Context, id string) error {
	var cause error
	if r.online() {
		err := r.remote.DeleteItem(ctx, id)
		if err == nil {
			if tripID, items, i, err := r.locate(ctx, id); err == nil {
				r.refresh(ctx, r.itemWrites(ctx, tripID, append(items[:i], items[i+1:]...)))
			}
			return nil
		}
		if terminal(err) {
			return err
		}
		cause = err
	}

	tripID, items, i, err := r.locate(ctx, id)
	if errors.Is(err, model.ErrNotFoundInCache) {
		return r.queueUncached(ctx, id, mutation.DeleteItem{ID: id}, cause)
	}
	if err != nil {
		return err
	}
	return r.commit(ctx,
		r.itemWrites(ctx, tripID, append(items[:i], items[i+1:]...)),
		mutation.DeleteItem{ID: id, Trip: tripID},
		cause)
}
