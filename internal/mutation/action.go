// Package mutation defines the changes recorded while offline and replayed
// against the remote services by the sync engine.
package mutation

import (
	"context"
	"time"

	"github.com/matheus3301/smartcart/internal/model"
	"github.com/matheus3301/smartcart/internal/remote"
	"github.com/shopspring/decimal"
)

// Kind tags a queued mutation.
type Kind string

const (
	KindCreateRetailer  Kind = "create_retailer"
	KindUpdateRetailer  Kind = "update_retailer"
	KindDeleteRetailer  Kind = "delete_retailer"
	KindCreateTrip      Kind = "create_trip"
	KindUpdateTrip      Kind = "update_trip"
	KindDeleteTrip      Kind = "delete_trip"
	KindCreateItem      Kind = "create_item"
	KindUpdateItem      Kind = "update_item"
	KindDeleteItem      Kind = "delete_item"
	KindToggleItem      Kind = "toggle_item"
	KindUpdateItemPrice Kind = "update_item_price"
)

// Action is one replayable change. The set of implementations is closed:
// only this package can add one, and each must know how to replay itself.
type Action interface {
	Kind() Kind
	// Replay performs the change remotely. Create actions return the id the
	// backend assigned; others return "".
	Replay(ctx context.Context, svc remote.Services) (string, error)
	// Target is the id of the record acted on (the temp id for creates).
	Target() string
	// TripID is the trip whose item list the action changes, if any.
	TripID() string
	// Refs lists the existing records the action depends on. A create's own
	// temp id is not among them.
	Refs() []string
	// Rewrite returns a copy with every id passed through resolve.
	Rewrite(resolve func(string) string) Action

	sealed()
}

// Queued is an action waiting in the local queue.
type Queued struct {
	ID         string
	Action     Action
	EnqueuedAt time.Time
	RetryCount int
	// Err is set, and Action nil, when the stored payload cannot be decoded.
	Err error
}

// Unresolved returns the temp ids a still references.
func Unresolved(a Action) []string {
	var out []string
	for _, id := range a.Refs() {
		if model.IsTempID(id) {
			out = append(out, id)
		}
	}
	return out
}

type CreateRetailer struct {
	TempID string              `json:"temp_id"`
	Input  model.RetailerInput `json:"input"`
}

func (CreateRetailer) Kind() Kind { return KindCreateRetailer }

func (a CreateRetailer) Replay(ctx context.Context, svc remote.Services) (string, error) {
	r, err := svc.CreateRetailer(ctx, a.Input)
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

func (a CreateRetailer) Target() string { return a.TempID }
func (CreateRetailer) TripID() string { return "" }
func (CreateRetailer) Refs() []string { return nil }
func (a CreateRetailer) Rewrite(func(string) string) Action { return a }
func (CreateRetailer) sealed()                              {}

type UpdateRetailer struct {
	ID    string              `json:"id"`
	Patch model.RetailerPatch `json:"patch"`
}

func (UpdateRetailer) Kind() Kind { return KindUpdateRetailer }

func (a UpdateRetailer) Replay(ctx context.Context, svc remote.Services) (string, error) {
	_, err := svc.UpdateRetailer(ctx, a.ID, a.Patch)
	return "", err
}

func (a UpdateRetailer) Target() string { return a.ID }
func (UpdateRetailer) TripID() string { return "" }
func (a UpdateRetailer) Refs() []string { return []string{a.ID} }

func (a UpdateRetailer) Rewrite(resolve func(string) string) Action {
	a.ID = resolve(a.ID)
	return a
}

func (UpdateRetailer) sealed() {}

type DeleteRetailer struct {
	ID string `json:"id"`
}

func (DeleteRetailer) Kind() Kind { return KindDeleteRetailer }

func (a DeleteRetailer) Replay(ctx context.Context, svc remote.Services) (string, error) {
	return "", svc.DeleteRetailer(ctx, a.ID)
}

func (a DeleteRetailer) Target() string { return a.ID }
func (DeleteRetailer) TripID() string { return "" }
func (a DeleteRetailer) Refs() []string { return []string{a.ID} }

func (a DeleteRetailer) Rewrite(resolve func(string) string) Action {
	a.ID = resolve(a.ID)
	return a
}

func (DeleteRetailer) sealed() {}

type CreateTrip struct {
	TempID string          `json:"temp_id"`
	Input  model.TripInput `json:"input"`
}

func (CreateTrip) Kind() Kind { return KindCreateTrip }

func (a CreateTrip) Replay(ctx context.Context, svc remote.Services) (string, error) {
	t, err := svc.CreateTrip(ctx, a.Input)
	if err != nil {
		return "", err
	}
	return t.ID, nil
}

func (a CreateTrip) Target() string { return a.TempID }
func (CreateTrip) TripID() string { return "" }
func (a CreateTrip) Refs() []string { return []string{a.Input.RetailerID} }

func (a CreateTrip) Rewrite(resolve func(string) string) Action {
	a.Input.RetailerID = resolve(a.Input.RetailerID)
	return a
}

func (CreateTrip) sealed() {}

// UpdateTrip covers field edits and status changes.
type UpdateTrip struct {
	ID    string          `json:"id"`
	Patch model.TripPatch `json:"patch"`
}

func (UpdateTrip) Kind() Kind { return KindUpdateTrip }

func (a UpdateTrip) Replay(ctx context.Context, svc remote.Services) (string, error) {
	_, err := svc.UpdateTrip(ctx, a.ID, a.Patch)
	return "", err
}

func (a UpdateTrip) Target() string { return a.ID }
func (UpdateTrip) TripID() string { return "" }

func (a UpdateTrip) Refs() []string {
	if a.Patch.RetailerID != nil {
		return []string{a.ID, *a.Patch.RetailerID}
	}
	return []string{a.ID}
}

func (a UpdateTrip) Rewrite(resolve func(string) string) Action {
	a.ID = resolve(a.ID)
	if a.Patch.RetailerID != nil {
		rid := resolve(*a.Patch.RetailerID)
		a.Patch.RetailerID = &rid
	}
	return a
}

func (UpdateTrip) sealed() {}

type DeleteTrip struct {
	ID string `json:"id"`
}

func (DeleteTrip) Kind() Kind { return KindDeleteTrip }

func (a DeleteTrip) Replay(ctx context.Context, svc remote.Services) (string, error) {
	return "", svc.DeleteTrip(ctx, a.ID)
}

func (a DeleteTrip) Target() string { return a.ID }
func (DeleteTrip) TripID() string { return "" }
func (a DeleteTrip) Refs() []string { return []string{a.ID} }

func (a DeleteTrip) Rewrite(resolve func(string) string) Action {
	a.ID = resolve(a.ID)
	return a
}

func (DeleteTrip) sealed() {}

type CreateItem struct {
	TempID string          `json:"temp_id"`
	Trip   string          `json:"trip_id"`
	Input  model.ItemInput `json:"input"`
}

func (CreateItem) Kind() Kind { return KindCreateItem }

func (a CreateItem) Replay(ctx context.Context, svc remote.Services) (string, error) {
	it, err := svc.CreateItem(ctx, a.Trip, a.Input)
	if err != nil {
		return "", err
	}
	return it.ID, nil
}

func (a CreateItem) Target() string { return a.TempID }
func (a CreateItem) TripID() string { return a.Trip }
func (a CreateItem) Refs() []string { return []string{a.Trip} }

func (a CreateItem) Rewrite(resolve func(string) string) Action {
	a.Trip = resolve(a.Trip)
	return a
}

func (CreateItem) sealed() {}

type UpdateItem struct {
	ID    string          `json:"id"`
	Trip  string          `json:"trip_id"`
	Patch model.ItemPatch `json:"patch"`
}

func (UpdateItem) Kind() Kind { return KindUpdateItem }

func (a UpdateItem) Replay(ctx context.Context, svc remote.Services) (string, error) {
	_, err := svc.UpdateItem(ctx, a.ID, a.Patch)
	return "", err
}

func (a UpdateItem) Target() string { return a.ID }
func (a UpdateItem) TripID() string { return a.Trip }
func (a UpdateItem) Refs() []string { return []string{a.ID, a.Trip} }

func (a UpdateItem) Rewrite(resolve func(string) string) Action {
	a.ID, a.Trip = resolve(a.ID), resolve(a.Trip)
	return a
}

func (UpdateItem) sealed() {}

type DeleteItem struct {
	ID   string `json:"id"`
	Trip string `json:"trip_id"`
}

func (DeleteItem) Kind() Kind { return KindDeleteItem }

func (a DeleteItem) Replay(ctx context.Context, svc remote.Services) (string, error) {
	return "", svc.DeleteItem(ctx, a.ID)
}

func (a DeleteItem) Target() string { return a.ID }
func (a DeleteItem) TripID() string { return a.Trip }
func (a DeleteItem) Refs() []string { return []string{a.ID, a.Trip} }

func (a DeleteItem) Rewrite(resolve func(string) string) Action {
	a.ID, a.Trip = resolve(a.ID), resolve(a.Trip)
	return a
}

func (DeleteItem) sealed() {}

// ToggleItem records the completion state the user toggled to, so replaying
// it twice is harmless. Flip is set when that state was unknown locally:
// replay then inverts whatever the backend holds.
type ToggleItem struct {
	ID        string `json:"id"`
	Trip      string `json:"trip_id"`
	Completed bool   `json:"is_completed"`
	Flip      bool   `json:"flip,omitempty"`
}

func (ToggleItem) Kind() Kind { return KindToggleItem }

func (a ToggleItem) Replay(ctx context.Context, svc remote.Services) (string, error) {
	completed := a.Completed
	if a.Flip {
		cur, err := svc.GetItem(ctx, a.ID)
		if err != nil {
			return "", err
		}
		completed = !cur.IsCompleted
	}
	_, err := svc.UpdateItem(ctx, a.ID, model.ItemPatch{IsCompleted: &completed})
	return "", err
}

func (a ToggleItem) Target() string { return a.ID }
func (a ToggleItem) TripID() string { return a.Trip }
func (a ToggleItem) Refs() []string { return []string{a.ID, a.Trip} }

func (a ToggleItem) Rewrite(resolve func(string) string) Action {
	a.ID, a.Trip = resolve(a.ID), resolve(a.Trip)
	return a
}

func (ToggleItem) sealed() {}

type UpdateItemPrice struct {
	ID          string          `json:"id"`
	Trip        string          `json:"trip_id"`
	ActualPrice decimal.Decimal `json:"actual_price"`
}

func (UpdateItemPrice) Kind() Kind { return KindUpdateItemPrice }

func (a UpdateItemPrice) Replay(ctx context.Context, svc remote.Services) (string, error) {
	price := a.ActualPrice
	_, err := svc.UpdateItem(ctx, a.ID, model.ItemPatch{ActualPrice: &price})
	return "", err
}

func (a UpdateItemPrice) Target() string { return a.ID }
func (a UpdateItemPrice) TripID() string { return a.Trip }
func (a UpdateItemPrice) Refs() []string { return []string{a.ID, a.Trip} }

func (a UpdateItemPrice) Rewrite(resolve func(string) string) Action {
	a.ID, a.Trip = resolve(a.ID), resolve(a.Trip)
	return a
}

func (UpdateItemPrice) sealed() {}
