// Package remotetest provides an in-memory remote.Services for tests.
package remotetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/smartcart/internal/model"
	"github.com/matheus3301/smartcart/internal/remote"
	"github.com/shopspring/decimal"
)

var (
	_ remote.Services = (*Fake)(nil)
	_ remote.Identity = (*Fake)(nil)
)

// Fake is an in-memory backend for a single user. It enforces the same
// integrity rules as the real backend. SetError and FailOn inject failures.
type Fake struct {
	mu sync.Mutex

	UserID string
	Now    func() time.Time

	retailers map[string]model.Retailer
	trips     map[string]model.Trip
	items     map[string]model.TripItem
	prices    []model.PriceRecord
	seq       int

	err    error
	failOn map[string]error
	calls  []string
}

// New returns an empty fake signed in as "user-1".
func New() *Fake {
	return &Fake{
		UserID:    "user-1",
		Now:       time.Now,
		retailers: map[string]model.Retailer{},
		trips:     map[string]model.Trip{},
		items:     map[string]model.TripItem{},
		failOn:    map[string]error{},
	}
}

// SetError makes every subsequent call fail with err; nil restores service.
func (f *Fake) SetError(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// FailOn makes calls to the named method fail with err; nil clears it.
func (f *Fake) FailOn(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failOn, method)
		return
	}
	f.failOn[method] = err
}

// Calls returns the names of methods invoked so far.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// ResetCalls clears the call log.
func (f *Fake) ResetCalls() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

// AddPrice seeds a price history record.
func (f *Fake) AddPrice(p model.PriceRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID == "" {
		p.ID = f.newID("p")
	}
	if p.UserID == "" {
		p.UserID = f.UserID
	}
	p.ItemName = model.NormalizeItemName(p.ItemName)
	f.prices = append(f.prices, p)
}

// Retailers returns a snapshot of stored retailers.
func (f *Fake) Retailers() []model.Retailer {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Retailer, 0, len(f.retailers))
	for _, r := range f.retailers {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CurrentUser implements remote.Identity.
func (f *Fake) CurrentUser(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UserID == "" {
		return "", model.ErrNotAuthenticated
	}
	return f.UserID, nil
}

// enter logs the call and returns the injected failure, if any. Callers hold f.mu.
func (f *Fake) enter(ctx context.Context, method string) error {
	f.calls = append(f.calls, method)
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.err != nil {
		return f.err
	}
	if err := f.failOn[method]; err != nil {
		return err
	}
	if f.UserID == "" {
		return model.ErrNotAuthenticated
	}
	return nil
}

func (f *Fake) newID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *Fake) now() time.Time { return f.Now().UTC() }

func (f *Fake) CreateRetailer(ctx context.Context, in model.RetailerInput) (model.Retailer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "CreateRetailer"); err != nil {
		return model.Retailer{}, err
	}
	in = in.Normalize()
	if err := model.Validate(in); err != nil {
		return model.Retailer{}, err
	}
	if f.nameTaken(in.Name, "") {
		return model.Retailer{}, model.ErrDuplicateRetailer
	}
	now := f.now()
	r := model.Retailer{ID: f.newID("r"), UserID: f.UserID, Name: in.Name, Location: in.Location, CreatedAt: now, UpdatedAt: now}
	f.retailers[r.ID] = r
	return r, nil
}

func (f *Fake) nameTaken(name, except string) bool {
	for _, r := range f.retailers {
		if r.ID != except && strings.EqualFold(r.Name, name) {
			return true
		}
	}
	return false
}

func (f *Fake) ListRetailers(ctx context.Context) ([]model.Retailer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "ListRetailers"); err != nil {
		return nil, err
	}
	out := make([]model.Retailer, 0, len(f.retailers))
	for _, r := range f.retailers {
		r.TripCount = f.tripCount(r.ID)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *Fake) tripCount(retailerID string) int {
	n := 0
	for _, t := range f.trips {
		if t.RetailerID == retailerID {
			n++
		}
	}
	return n
}

func (f *Fake) GetRetailer(ctx context.Context, id string) (model.Retailer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "GetRetailer"); err != nil {
		return model.Retailer{}, err
	}
	r, ok := f.retailers[id]
	if !ok {
		return model.Retailer{}, model.ErrNotFound
	}
	r.TripCount = f.tripCount(id)
	return r, nil
}

func (f *Fake) UpdateRetailer(ctx context.Context, id string, p model.RetailerPatch) (model.Retailer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "UpdateRetailer"); err != nil {
		return model.Retailer{}, err
	}
	r, ok := f.retailers[id]
	if !ok {
		return model.Retailer{}, model.ErrNotFound
	}
	p = p.Normalize()
	if err := model.Validate(p); err != nil {
		return model.Retailer{}, err
	}
	if p.Name != nil && f.nameTaken(*p.Name, id) {
		return model.Retailer{}, model.ErrDuplicateRetailer
	}
	p.Apply(&r)
	r.UpdatedAt = f.now()
	f.retailers[id] = r
	return r, nil
}

func (f *Fake) DeleteRetailer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "DeleteRetailer"); err != nil {
		return err
	}
	if _, ok := f.retailers[id]; !ok {
		return model.ErrNotFound
	}
	if f.tripCount(id) > 0 {
		return model.ErrRetailerHasTrips
	}
	delete(f.retailers, id)
	return nil
}

func (f *Fake) CreateTrip(ctx context.Context, in model.TripInput) (model.Trip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "CreateTrip"); err != nil {
		return model.Trip{}, err
	}
	in = in.Normalize(f.now())
	if err := model.Validate(in); err != nil {
		return model.Trip{}, err
	}
	if _, ok := f.retailers[in.RetailerID]; !ok {
		return model.Trip{}, fmt.Errorf("retailer %s: %w", in.RetailerID, model.ErrNotFound)
	}
	now := f.now()
	t := model.Trip{
		ID:             f.newID("t"),
		UserID:         f.UserID,
		RetailerID:     in.RetailerID,
		Name:           in.Name,
		Date:           model.Day(in.Date),
		Status:         model.StatusPlanned,
		EstimatedTotal: decimal.Zero,
		ActualTotal:    decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	f.trips[t.ID] = t
	return f.withRetailer(t), nil
}

func (f *Fake) withRetailer(t model.Trip) model.Trip {
	if r, ok := f.retailers[t.RetailerID]; ok {
		t.Retailer = &r
	}
	return t
}

func (f *Fake) ListTrips(ctx context.Context, flt model.TripFilter) ([]model.Trip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "ListTrips"); err != nil {
		return nil, err
	}
	var out []model.Trip
	for _, t := range f.trips {
		if flt.Matches(t) {
			out = append(out, f.withRetailer(t))
		}
	}
	model.SortTrips(out)
	if flt.Limit > 0 && len(out) > flt.Limit {
		out = out[:flt.Limit]
	}
	return out, nil
}

func (f *Fake) GetTrip(ctx context.Context, id string) (model.Trip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "GetTrip"); err != nil {
		return model.Trip{}, err
	}
	t, ok := f.trips[id]
	if !ok {
		return model.Trip{}, model.ErrNotFound
	}
	t = f.withRetailer(t)
	t.Items = f.tripItems(id)
	return t, nil
}

func (f *Fake) UpdateTrip(ctx context.Context, id string, p model.TripPatch) (model.Trip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "UpdateTrip"); err != nil {
		return model.Trip{}, err
	}
	t, ok := f.trips[id]
	if !ok {
		return model.Trip{}, model.ErrNotFound
	}
	if err := model.Validate(p); err != nil {
		return model.Trip{}, err
	}
	if p.RetailerID != nil {
		if _, ok := f.retailers[*p.RetailerID]; !ok {
			return model.Trip{}, fmt.Errorf("retailer %s: %w", *p.RetailerID, model.ErrNotFound)
		}
	}
	if p.Status != "" {
		if p.Status == model.StatusActive && t.Status != model.StatusActive {
			for _, other := range f.trips {
				if other.ID != id && other.Status == model.StatusActive {
					return model.Trip{}, model.ErrActiveTripExists
				}
			}
		}
		if err := t.Transition(p.Status, f.now()); err != nil {
			return model.Trip{}, err
		}
	}
	p.Apply(&t)
	t.UpdatedAt = f.now()
	f.trips[id] = t
	return f.withRetailer(t), nil
}

func (f *Fake) DeleteTrip(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "DeleteTrip"); err != nil {
		return err
	}
	if _, ok := f.trips[id]; !ok {
		return model.ErrNotFound
	}
	delete(f.trips, id)
	for iid, it := range f.items {
		if it.TripID == id {
			delete(f.items, iid)
		}
	}
	return nil
}

func (f *Fake) tripItems(tripID string) []model.TripItem {
	out := []model.TripItem{}
	for _, it := range f.items {
		if it.TripID == tripID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	model.SortItems(out)
	return out
}

func (f *Fake) recomputeTotals(tripID string) {
	t, ok := f.trips[tripID]
	if !ok {
		return
	}
	t.EstimatedTotal, t.ActualTotal = model.Totals(f.tripItems(tripID))
	f.trips[tripID] = t
}

func (f *Fake) CreateItem(ctx context.Context, tripID string, in model.ItemInput) (model.TripItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "CreateItem"); err != nil {
		return model.TripItem{}, err
	}
	if _, ok := f.trips[tripID]; !ok {
		return model.TripItem{}, fmt.Errorf("trip %s: %w", tripID, model.ErrNotFound)
	}
	in = in.Normalize()
	if err := model.Validate(in); err != nil {
		return model.TripItem{}, err
	}
	now := f.now()
	it := model.TripItem{ID: f.newID("i"), TripID: tripID, ItemName: in.ItemName, Quantity: in.Quantity, CreatedAt: now, UpdatedAt: now}
	if in.EstimatedPrice != nil {
		it.EstimatedPrice = decimal.NewNullDecimal(*in.EstimatedPrice)
	}
	f.items[it.ID] = it
	f.recomputeTotals(tripID)
	return it, nil
}

func (f *Fake) ListItems(ctx context.Context, tripID string) ([]model.TripItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "ListItems"); err != nil {
		return nil, err
	}
	return f.tripItems(tripID), nil
}

func (f *Fake) GetItem(ctx context.Context, id string) (model.TripItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "GetItem"); err != nil {
		return model.TripItem{}, err
	}
	it, ok := f.items[id]
	if !ok {
		return model.TripItem{}, model.ErrNotFound
	}
	return it, nil
}

func (f *Fake) UpdateItem(ctx context.Context, id string, p model.ItemPatch) (model.TripItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "UpdateItem"); err != nil {
		return model.TripItem{}, err
	}
	it, ok := f.items[id]
	if !ok {
		return model.TripItem{}, model.ErrNotFound
	}
	if err := model.Validate(p); err != nil {
		return model.TripItem{}, err
	}
	p.Apply(&it)
	it.UpdatedAt = f.now()
	f.items[id] = it
	f.recomputeTotals(it.TripID)
	if p.ActualPrice != nil {
		t := f.trips[it.TripID]
		rec := model.PriceRecord{
			ID:         f.newID("p"),
			UserID:     f.UserID,
			ItemName:   model.NormalizeItemName(it.ItemName),
			Price:      *p.ActualPrice,
			RetailerID: t.RetailerID,
			TripID:     t.ID,
			Date:       model.Day(f.now()),
			CreatedAt:  f.now(),
		}
		if r, ok := f.retailers[t.RetailerID]; ok {
			rec.RetailerName = r.Name
		}
		f.prices = append(f.prices, rec)
	}
	return it, nil
}

func (f *Fake) DeleteItem(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "DeleteItem"); err != nil {
		return err
	}
	it, ok := f.items[id]
	if !ok {
		return model.ErrNotFound
	}
	delete(f.items, id)
	f.recomputeTotals(it.TripID)
	return nil
}

func (f *Fake) QueryPrices(ctx context.Context, q model.PriceQuery) ([]model.PriceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(ctx, "QueryPrices"); err != nil {
		return nil, err
	}
	name := model.NormalizeItemName(q.ItemName)
	var out []model.PriceRecord
	for _, p := range f.prices {
		switch {
		case name != "" && p.ItemName != name:
			continue
		case q.RetailerID != "" && p.RetailerID != q.RetailerID:
			continue
		case q.Since != nil && p.Date.Before(*q.Since):
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}
