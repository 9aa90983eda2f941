// Package remote declares the backend collaborators the offline layer talks
// to. Implementations live in transport (gRPC client) and backend (Postgres).
package remote

import (
	"context"

	"github.com/matheus3301/smartcart/internal/model"
)

// Identity resolves the signed-in user.
type Identity interface {
	// CurrentUser returns the user id or model.ErrNotAuthenticated.
	CurrentUser(ctx context.Context) (string, error)
}

type RetailerService interface {
	CreateRetailer(ctx context.Context, in model.RetailerInput) (model.Retailer, error)
	ListRetailers(ctx context.Context) ([]model.Retailer, error)
	GetRetailer(ctx context.Context, id string) (model.Retailer, error)
	UpdateRetailer(ctx context.Context, id string, p model.RetailerPatch) (model.Retailer, error)
	DeleteRetailer(ctx context.Context, id string) error
}

type TripService interface {
	CreateTrip(ctx context.Context, in model.TripInput) (model.Trip, error)
	// ListTrips returns trips newest date first, with Retailer populated.
	ListTrips(ctx context.Context, f model.TripFilter) ([]model.Trip, error)
	// GetTrip returns the trip with Retailer and Items populated.
	GetTrip(ctx context.Context, id string) (model.Trip, error)
	// UpdateTrip applies field edits and, when p.Status is set, a status
	// transition including the single-active rule.
	UpdateTrip(ctx context.Context, id string, p model.TripPatch) (model.Trip, error)
	DeleteTrip(ctx context.Context, id string) error
}

type ItemService interface {
	CreateItem(ctx context.Context, tripID string, in model.ItemInput) (model.TripItem, error)
	ListItems(ctx context.Context, tripID string) ([]model.TripItem, error)
	GetItem(ctx context.Context, id string) (model.TripItem, error)
	UpdateItem(ctx context.Context, id string, p model.ItemPatch) (model.TripItem, error)
	DeleteItem(ctx context.Context, id string) error
}

type PriceHistoryService interface {
	QueryPrices(ctx context.Context, q model.PriceQuery) ([]model.PriceRecord, error)
}

// Services is everything the offline layer and the price engine need.
type Services interface {
	RetailerService
	TripService
	ItemService
	PriceHistoryService
}
