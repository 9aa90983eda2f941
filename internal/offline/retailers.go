package offline

import (
	"context"
	"errors"
	"strings"

	"github.com/matheus3301/smartcart/internal/cache"
	"github.com/matheus3301/smartcart/internal/model"
	"github.com/matheus3301/smartcart/internal/mutation"
	"go.uber.org/zap"
)

// Retailers is the offline-aware retailer repository.
type Retailers struct {
	base
}

func NewRetailers(d Deps) *Retailers {
	return &Retailers{base: newBase(d, "retailers")}
}

// GetAll returns every retailer, from the backend when reachable.
func (r *Retailers) GetAll(ctx context.Context) ([]model.Retailer, error) {
	if r.online() {
		list, err := r.remote.ListRetailers(ctx)
		if err == nil {
			r.refresh(ctx, []cache.Write{cache.Set(cache.KeyRetailers, cache.CollectionRetailers, list)})
			return list, nil
		}
		if !readFallback(err) {
			return nil, err
		}
		r.logger.Warn("list retailers failed, using cache", zap.Error(err))
	}
	return cached[[]model.Retailer](ctx, r.store, cache.KeyRetailers)
}

// GetByID returns one retailer.
func (r *Retailers) GetByID(ctx context.Context, id string) (model.Retailer, error) {
	if r.online() {
		ret, err := r.remote.GetRetailer(ctx, id)
		if err == nil {
			r.refreshOne(ctx, ret)
			return ret, nil
		}
		if !readFallback(err) {
			return model.Retailer{}, err
		}
		r.logger.Warn("get retailer failed, using cache", zap.String("id", id), zap.Error(err))
	}
	list, err := cached[[]model.Retailer](ctx, r.store, cache.KeyRetailers)
	if err != nil {
		return model.Retailer{}, err
	}
	i := indexOf(list, idOfRetailer, id)
	if i < 0 {
		return model.Retailer{}, model.ErrNotFoundInCache
	}
	return list[i], nil
}

// refreshOne replaces ret in the cached list when a list is cached.
func (r *Retailers) refreshOne(ctx context.Context, ret model.Retailer) {
	list, found, err := cachedOrEmpty[model.Retailer](ctx, r.store, cache.KeyRetailers)
	if err != nil || !found {
		return
	}
	list = upsert(list, ret, idOfRetailer)
	model.SortRetailers(list)
	r.refresh(ctx, []cache.Write{cache.Set(cache.KeyRetailers, cache.CollectionRetailers, list)})
}

func (r *Retailers) removeOne(ctx context.Context, id string) {
	list, found, err := cachedOrEmpty[model.Retailer](ctx, r.store, cache.KeyRetailers)
	if err != nil || !found {
		return
	}
	if i := indexOf(list, idOfRetailer, id); i >= 0 {
		list = append(list[:i], list[i+1:]...)
		r.refresh(ctx, []cache.Write{cache.Set(cache.KeyRetailers, cache.CollectionRetailers, list)})
	}
}

// Create adds a retailer. Offline, or when the backend call fails, it
// returns a record with a temporary id; in the failure case the error is a
// *QueuedError.
func (r *Retailers) Create(ctx context.Context, in model.RetailerInput) (model.Retailer, error) {
	in = in.Normalize()
	if err := model.Validate(in); err != nil {
		return model.Retailer{}, err
	}
	userID, err := r.identity.CurrentUser(ctx)
	if err != nil {
		return model.Retailer{}, err
	}

	var cause error
	if r.online() {
		ret, err := r.remote.CreateRetailer(ctx, in)
		if err == nil {
			r.refreshOne(ctx, ret)
			return ret, nil
		}
		if terminal(err) {
			return model.Retailer{}, err
		}
		cause = err
	}

	list, _, err := cachedOrEmpty[model.Retailer](ctx, r.store, cache.KeyRetailers)
	if err != nil {
		return model.Retailer{}, err
	}
	if cause == nil {
		for _, existing := range list {
			if strings.EqualFold(existing.Name, in.Name) {
				return model.Retailer{}, model.ErrDuplicateRetailer
			}
		}
	}
	now := r.now()
	ret := model.Retailer{
		ID:        model.NewTempID(now),
		UserID:    userID,
		Name:      in.Name,
		Location:  in.Location,
		CreatedAt: now,
		UpdatedAt: now,
	}
	list = append(list, ret)
	model.SortRetailers(list)
	err = r.commit(ctx,
		[]cache.Write{cache.Set(cache.KeyRetailers, cache.CollectionRetailers, list)},
		mutation.CreateRetailer{TempID: ret.ID, Input: in},
		cause)
	if err != nil && !IsQueued(err) {
		return model.Retailer{}, err
	}
	return ret, err
}

// Update edits a retailer.
func (r *Retailers) Update(ctx context.Context, id string, p model.RetailerPatch) (model.Retailer, error) {
	p = p.Normalize()
	if err := model.Validate(p); err != nil {
		return model.Retailer{}, err
	}

	var cause error
	if r.online() {
		ret, err := r.remote.UpdateRetailer(ctx, id, p)
		if err == nil {
			r.refreshOne(ctx, ret)
			return ret, nil
		}
		if terminal(err) {
			return model.Retailer{}, err
		}
		cause = err
	}

	list, _, err := cachedOrEmpty[model.Retailer](ctx, r.store, cache.KeyRetailers)
	if err != nil {
		return model.Retailer{}, err
	}
	i := indexOf(list, idOfRetailer, id)
	if i < 0 {
		err := r.queueUncached(ctx, id, mutation.UpdateRetailer{ID: id, Patch: p}, cause)
		if !IsQueued(err) {
			return model.Retailer{}, err
		}
		return model.Retailer{ID: id}, err
	}
	p.Apply(&list[i])
	list[i].UpdatedAt = r.now()
	ret := list[i]
	model.SortRetailers(list)
	err = r.commit(ctx,
		[]cache.Write{cache.Set(cache.KeyRetailers, cache.CollectionRetailers, list)},
		mutation.UpdateRetailer{ID: id, Patch: p},
		cause)
	if err != nil && !IsQueued(err) {
		return model.Retailer{}, err
	}
	return ret, err
}

// Delete removes a retailer that no trip references.
func (r *Retailers) Delete(ctx context.Context, id string) error {
	var cause error
	if r.online() {
		cause = r.deleteRemote(ctx, id)
		if cause == nil {
			r.removeOne(ctx, id)
			return nil
		}
		if terminal(cause) || errors.Is(cause, model.ErrRetailerHasTrips) {
			return cause
		}
	}

	trips, tripsCached, err := cachedOrEmpty[model.Trip](ctx, r.store, cache.KeyTrips)
	if err != nil {
		return err
	}
	if tripsCached {
		for _, t := range trips {
			if t.RetailerID == id {
				return model.ErrRetailerHasTrips
			}
		}
	}
	list, _, err := cachedOrEmpty[model.Retailer](ctx, r.store, cache.KeyRetailers)
	if err != nil {
		return err
	}
	i := indexOf(list, idOfRetailer, id)
	if i < 0 {
		return r.queueUncached(ctx, id, mutation.DeleteRetailer{ID: id}, cause)
	}
	list = append(list[:i], list[i+1:]...)
	return r.commit(ctx,
		[]cache.Write{cache.Set(cache.KeyRetailers, cache.CollectionRetailers, list)},
		mutation.DeleteRetailer{ID: id},
		cause)
}

func (r *Retailers) deleteRemote(ctx context.Context, id string) error {
	trips, err := r.remote.ListTrips(ctx, model.TripFilter{RetailerID: id, Limit: 1})
	if err != nil {
		return err
	}
	if len(trips) > 0 {
		return model.ErrRetailerHasTrips
	}
	return r.remote.DeleteRetailer(ctx, id)
}
