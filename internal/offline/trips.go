package offline

import (
	"context"
	"errors"

	"github.com/matheus3301/smartcart/internal/cache"
	"github.com/matheus3301/smartcart/internal/model"
	"github.com/matheus3301/smartcart/internal/mutation"
	"go.uber.org/zap"
)

// Trips is the offline-aware trip repository.
type Trips struct {
	base
}

func NewTrips(d Deps) *Trips {
	return &Trips{base: newBase(d, "trips")}
}

// GetAll lists trips matching f. Only an unfiltered listing refreshes the
// cached collection; offline the filter is applied to the cached trips.
func (r *Trips) GetAll(ctx context.Context, f model.TripFilter) ([]model.Trip, error) {
	if r.online() {
		list, err := r.remote.ListTrips(ctx, f)
		if err == nil {
			if f.IsZero() {
				r.refresh(ctx, tripWrites(list))
			}
			return list, nil
		}
		if !readFallback(err) {
			return nil, err
		}
		r.logger.Warn("list trips failed, using cache", zap.Error(err))
	}
	all, err := cached[[]model.Trip](ctx, r.store, cache.KeyTrips)
	if err != nil {
		return nil, err
	}
	var out []model.Trip
	for _, t := range all {
		if f.Matches(t) {
			out = append(out, t)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// GetByID returns a trip with its retailer and items.
func (r *Trips) GetByID(ctx context.Context, id string) (model.Trip, error) {
	if r.online() {
		t, err := r.remote.GetTrip(ctx, id)
		if err == nil {
			r.refreshTrip(ctx, t, true)
			return t, nil
		}
		if !readFallback(err) {
			return model.Trip{}, err
		}
		r.logger.Warn("get trip failed, using cache", zap.String("id", id), zap.Error(err))
	}
	all, err := cached[[]model.Trip](ctx, r.store, cache.KeyTrips)
	if err != nil {
		return model.Trip{}, err
	}
	i := indexOf(all, idOfTrip, id)
	if i < 0 {
		return model.Trip{}, model.ErrNotFoundInCache
	}
	t := all[i]
	var items []model.TripItem
	if found, err := r.store.Get(ctx, cache.ItemsKey(id), &items); err == nil && found {
		t.Items = items
	}
	return t, nil
}

// GetActive returns the user's active trip, or nil when there is none.
func (r *Trips) GetActive(ctx context.Context) (*model.Trip, error) {
	if r.online() {
		list, err := r.remote.ListTrips(ctx, model.TripFilter{Status: model.StatusActive, Limit: 1})
		if err == nil {
			if len(list) == 0 {
				r.refresh(ctx, []cache.Write{cache.Del(cache.KeyActiveTrip)})
				return nil, nil
			}
			r.refresh(ctx, []cache.Write{cache.Set(cache.KeyActiveTrip, cache.CollectionActiveTrip, list[0])})
			return &list[0], nil
		}
		if !readFallback(err) {
			return nil, err
		}
		r.logger.Warn("get active trip failed, using cache", zap.Error(err))
	}
	var active model.Trip
	found, err := r.store.Get(ctx, cache.KeyActiveTrip, &active)
	if err != nil {
		return nil, err
	}
	if found {
		return &active, nil
	}
	all, err := cached[[]model.Trip](ctx, r.store, cache.KeyTrips)
	if err != nil {
		return nil, err
	}
	for _, t := range all {
		if t.Status == model.StatusActive {
			return &t, nil
		}
	}
	return nil, nil
}

// refreshTrip replaces t in the cached trips; withItems also stores its items.
func (r *Trips) refreshTrip(ctx context.Context, t model.Trip, withItems bool) {
	var writes []cache.Write
	all, found, err := cachedOrEmpty[model.Trip](ctx, r.store, cache.KeyTrips)
	if err == nil && found {
		stored := t
		stored.Items = nil
		writes = tripWrites(upsert(all, stored, idOfTrip))
	}
	if withItems && t.Items != nil {
		writes = append(writes, cache.Set(cache.ItemsKey(t.ID), cache.CollectionTripItems, t.Items))
	}
	r.refresh(ctx, writes)
}

// Create plans a new trip.
func (r *Trips) Create(ctx context.Context, in model.TripInput) (model.Trip, error) {
	in = in.Normalize(r.now())
	if err := model.Validate(in); err != nil {
		return model.Trip{}, err
	}
	userID, err := r.identity.CurrentUser(ctx)
	if err != nil {
		return model.Trip{}, err
	}

	var cause error
	if r.online() {
		t, err := r.remote.CreateTrip(ctx, in)
		if err == nil {
			r.refreshTrip(ctx, t, false)
			return t, nil
		}
		if terminal(err) {
			return model.Trip{}, err
		}
		cause = err
	}

	all, _, err := cachedOrEmpty[model.Trip](ctx, r.store, cache.KeyTrips)
	if err != nil {
		return model.Trip{}, err
	}
	now := r.now()
	t := model.Trip{
		ID:         model.NewTempID(now),
		UserID:     userID,
		RetailerID: in.RetailerID,
		Name:       in.Name,
		Date:       model.Day(in.Date),
		Status:     model.StatusPlanned,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	t.Retailer = r.cachedRetailer(ctx, in.RetailerID)
	err = r.commit(ctx, tripWrites(append(all, t)), mutation.CreateTrip{TempID: t.ID, Input: in}, cause)
	if err != nil && !IsQueued(err) {
		return model.Trip{}, err
	}
	return t, err
}

func (r *Trips) cachedRetailer(ctx context.Context, id string) *model.Retailer {
	list, _, err := cachedOrEmpty[model.Retailer](ctx, r.store, cache.KeyRetailers)
	if err != nil {
		return nil
	}
	if i := indexOf(list, idOfRetailer, id); i >= 0 {
		return &list[i]
	}
	return nil
}

// UpdateStatus moves a trip through its lifecycle.
func (r *Trips) UpdateStatus(ctx context.Context, id string, status model.TripStatus) (model.Trip, error) {
	return r.Update(ctx, id, model.TripPatch{Status: status})
}

// Update edits a trip. A status change is checked against the lifecycle and
// the single-active rule before anything is written or queued.
func (r *Trips) Update(ctx context.Context, id string, p model.TripPatch) (model.Trip, error) {
	if err := model.Validate(p); err != nil {
		return model.Trip{}, err
	}

	var cause error
	if r.online() {
		t, err := r.updateRemote(ctx, id, p)
		if err == nil {
			r.refreshTrip(ctx, t, false)
			return t, nil
		}
		if terminal(err) || errors.Is(err, model.ErrActiveTripExists) || errors.Is(err, model.ErrInvalidTransition) {
			return model.Trip{}, err
		}
		cause = err
	}

	all, _, err := cachedOrEmpty[model.Trip](ctx, r.store, cache.KeyTrips)
	if err != nil {
		return model.Trip{}, err
	}
	i := indexOf(all, idOfTrip, id)
	if i < 0 {
		err := r.queueUncached(ctx, id, mutation.UpdateTrip{ID: id, Patch: p}, cause)
		if !IsQueued(err) {
			return model.Trip{}, err
		}
		return model.Trip{ID: id}, err
	}
	t := all[i]
	if p.Status == model.StatusActive && t.Status != model.StatusActive {
		for _, other := range all {
			if other.ID != id && other.Status == model.StatusActive {
				return model.Trip{}, model.ErrActiveTripExists
			}
		}
	}
	if p.Status != "" {
		if err := t.Transition(p.Status, r.now()); err != nil {
			return model.Trip{}, err
		}
	}
	p.Apply(&t)
	t.UpdatedAt = r.now()
	if p.RetailerID != nil {
		t.Retailer = r.cachedRetailer(ctx, *p.RetailerID)
	}
	all[i] = t
	err = r.commit(ctx, tripWrites(all), mutation.UpdateTrip{ID: id, Patch: p}, cause)
	if err != nil && !IsQueued(err) {
		return model.Trip{}, err
	}
	return t, err
}

func (r *Trips) updateRemote(ctx context.Context, id string, p model.TripPatch) (model.Trip, error) {
	if p.Status == model.StatusActive {
		others, err := r.remote.ListTrips(ctx, model.TripFilter{Status: model.StatusActive, ExcludeID: id, Limit: 1})
		if err != nil {
			return model.Trip{}, err
		}
		if len(others) > 0 {
			return model.Trip{}, model.ErrActiveTripExists
		}
	}
	return r.remote.UpdateTrip(ctx, id, p)
}

// Delete removes a trip and its cached items.
func (r *Trips) Delete(ctx context.Context, id string) error {
	var cause error
	if r.online() {
		err := r.remote.DeleteTrip(ctx, id)
		if err == nil {
			r.refresh(ctx, r.deleteWrites(ctx, id))
			return nil
		}
		if terminal(err) {
			return err
		}
		cause = err
	}

	all, _, err := cachedOrEmpty[model.Trip](ctx, r.store, cache.KeyTrips)
	if err != nil {
		return err
	}
	if indexOf(all, idOfTrip, id) < 0 {
		return r.queueUncached(ctx, id, mutation.DeleteTrip{ID: id}, cause)
	}
	return r.commit(ctx, r.deleteWrites(ctx, id), mutation.DeleteTrip{ID: id}, cause)
}

func (r *Trips) deleteWrites(ctx context.Context, id string) []cache.Write {
	writes := []cache.Write{cache.Del(cache.ItemsKey(id))}
	all, found, err := cachedOrEmpty[model.Trip](ctx, r.store, cache.KeyTrips)
	if err != nil || !found {
		var active model.Trip
		if ok, _ := r.store.Get(ctx, cache.KeyActiveTrip, &active); ok && active.ID == id {
			writes = append(writes, cache.Del(cache.KeyActiveTrip))
		}
		return writes
	}
	if i := indexOf(all, idOfTrip, id); i >= 0 {
		all = append(all[:i], all[i+1:]...)
	}
	return append(writes, tripWrites(all)...)
}
