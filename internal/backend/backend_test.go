package backend

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/smartcart/internal/auth"
	"github.com/matheus3301/smartcart/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// openTestStore connects to SMARTCART_TEST_DSN and signs in a fresh user, so
// tests sharing a database never see each other's rows.
func openTestStore(t *testing.T) (*Store, context.Context) {
	t.Helper()
	dsn := os.Getenv("SMARTCART_TEST_DSN")
	if dsn == "" {
		t.Skip("SMARTCART_TEST_DSN not set")
	}
	s, err := Open(context.Background(), dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	u, err := s.CreateUser(context.Background(), uuid.NewString()+"@example.com", "hash")
	require.NoError(t, err)
	return s, auth.WithUser(context.Background(), u.ID)
}

func ptr[T any](v T) *T { return &v }

func TestRequiresUser(t *testing.T) {
	s, _ := openTestStore(t)
	_, err := s.ListRetailers(context.Background())
	assert.ErrorIs(t, err, model.ErrNotAuthenticated)
}

func TestUsers(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	email := uuid.NewString() + "@example.com"

	u, err := s.CreateUser(ctx, email, "hash")
	require.NoError(t, err)

	got, err := s.UserByEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "hash", got.PasswordHash)

	_, err = s.CreateUser(ctx, email, "other")
	assert.ErrorIs(t, err, auth.ErrEmailExists)

	_, err = s.UserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRetailerLifecycle(t *testing.T) {
	s, ctx := openTestStore(t)

	r, err := s.CreateRetailer(ctx, model.RetailerInput{Name: "  Aldi ", Location: ptr("Main St")})
	require.NoError(t, err)
	assert.Equal(t, "Aldi", r.Name)

	_, err = s.CreateRetailer(ctx, model.RetailerInput{Name: "ALDI"})
	assert.ErrorIs(t, err, model.ErrDuplicateRetailer)

	_, err = s.CreateRetailer(ctx, model.RetailerInput{Name: "Lidl"})
	require.NoError(t, err)

	list, err := s.ListRetailers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Aldi", list[0].Name)
	assert.Equal(t, "Main St", *list[0].Location)

	_, err = s.UpdateRetailer(ctx, r.ID, model.RetailerPatch{Name: ptr("lidl")})
	assert.ErrorIs(t, err, model.ErrDuplicateRetailer)

	updated, err := s.UpdateRetailer(ctx, r.ID, model.RetailerPatch{Location: ptr("")})
	require.NoError(t, err)
	assert.Nil(t, updated.Location)

	require.NoError(t, s.DeleteRetailer(ctx, r.ID))
	_, err = s.GetRetailer(ctx, r.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRetailerWithTripsCannotBeDeleted(t *testing.T) {
	s, ctx := openTestStore(t)
	r, err := s.CreateRetailer(ctx, model.RetailerInput{Name: "Aldi"})
	require.NoError(t, err)
	_, err = s.CreateTrip(ctx, model.TripInput{Name: "Weekly", RetailerID: r.ID})
	require.NoError(t, err)

	got, err := s.GetRetailer(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TripCount)

	assert.ErrorIs(t, s.DeleteRetailer(ctx, r.ID), model.ErrRetailerHasTrips)
}

func TestUsersAreIsolated(t *testing.T) {
	s, ctx := openTestStore(t)
	r, err := s.CreateRetailer(ctx, model.RetailerInput{Name: "Aldi"})
	require.NoError(t, err)

	other, err := s.CreateUser(context.Background(), uuid.NewString()+"@example.com", "hash")
	require.NoError(t, err)
	otherCtx := auth.WithUser(context.Background(), other.ID)

	_, err = s.GetRetailer(otherCtx, r.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = s.CreateTrip(otherCtx, model.TripInput{Name: "Sneaky", RetailerID: r.ID})
	assert.ErrorIs(t, err, model.ErrNotFound)

	// Same name is fine for a different user.
	_, err = s.CreateRetailer(otherCtx, model.RetailerInput{Name: "Aldi"})
	assert.NoError(t, err)
}

func TestMalformedIDIsNotFound(t *testing.T) {
	s, ctx := openTestStore(t)
	_, err := s.GetTrip(ctx, "temp_1700000000000_abcd1234")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestTripStatusRules(t *testing.T) {
	s, ctx := openTestStore(t)
	r, err := s.CreateRetailer(ctx, model.RetailerInput{Name: "Aldi"})
	require.NoError(t, err)

	first, err := s.CreateTrip(ctx, model.TripInput{Name: "First", RetailerID: r.ID})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPlanned, first.Status)
	require.NotNil(t, first.Retailer)
	assert.Equal(t, "Aldi", first.Retailer.Name)

	second, err := s.CreateTrip(ctx, model.TripInput{Name: "Second", RetailerID: r.ID})
	require.NoError(t, err)

	_, err = s.UpdateTrip(ctx, first.ID, model.TripPatch{Status: model.StatusActive})
	require.NoError(t, err)
	_, err = s.UpdateTrip(ctx, second.ID, model.TripPatch{Status: model.StatusActive})
	assert.ErrorIs(t, err, model.ErrActiveTripExists)

	_, err = s.UpdateTrip(ctx, second.ID, model.TripPatch{Status: model.StatusCompleted})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	done, err := s.UpdateTrip(ctx, first.ID, model.TripPatch{Status: model.StatusCompleted})
	require.NoError(t, err)
	assert.NotNil(t, done.CompletedAt)

	reopened, err := s.UpdateTrip(ctx, first.ID, model.TripPatch{Status: model.StatusActive})
	require.NoError(t, err)
	assert.Nil(t, reopened.CompletedAt)
}

func TestListTripsFilters(t *testing.T) {
	s, ctx := openTestStore(t)
	aldi, err := s.CreateRetailer(ctx, model.RetailerInput{Name: "Aldi"})
	require.NoError(t, err)
	lidl, err := s.CreateRetailer(ctx, model.RetailerInput{Name: "Lidl"})
	require.NoError(t, err)

	day := func(d int) time.Time { return time.Date(2026, 5, d, 0, 0, 0, 0, time.UTC) }
	_, err = s.CreateTrip(ctx, model.TripInput{Name: "a", Date: day(1), RetailerID: aldi.ID})
	require.NoError(t, err)
	b, err := s.CreateTrip(ctx, model.TripInput{Name: "b", Date: day(3), RetailerID: lidl.ID})
	require.NoError(t, err)
	_, err = s.CreateTrip(ctx, model.TripInput{Name: "c", Date: day(5), RetailerID: aldi.ID})
	require.NoError(t, err)

	all, err := s.ListTrips(ctx, model.TripFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].Name, all[1].Name, all[2].Name})
	assert.True(t, day(5).Equal(all[0].Date))

	byShop, err := s.ListTrips(ctx, model.TripFilter{RetailerID: aldi.ID})
	require.NoError(t, err)
	assert.Len(t, byShop, 2)

	ranged, err := s.ListTrips(ctx, model.TripFilter{DateFrom: ptr(day(2)), DateTo: ptr(day(4))})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, b.ID, ranged[0].ID)

	limited, err := s.ListTrips(ctx, model.TripFilter{Limit: 1, ExcludeID: all[0].ID})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "b", limited[0].Name)
}

func TestItemsKeepTotalsAndRecordPrices(t *testing.T) {
	s, ctx := openTestStore(t)
	today := time.Date(2026, 5, 4, 15, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return today }

	r, err := s.CreateRetailer(ctx, model.RetailerInput{Name: "Aldi"})
	require.NoError(t, err)
	trip, err := s.CreateTrip(ctx, model.TripInput{Name: "Weekly", RetailerID: r.ID})
	require.NoError(t, err)

	milk, err := s.CreateItem(ctx, trip.ID, model.ItemInput{ItemName: "Milk", Quantity: 2, EstimatedPrice: ptr(decimal.RequireFromString("1.50"))})
	require.NoError(t, err)
	_, err = s.CreateItem(ctx, trip.ID, model.ItemInput{ItemName: "Bread", Quantity: 1, EstimatedPrice: ptr(decimal.RequireFromString("2.25"))})
	require.NoError(t, err)

	got, err := s.GetTrip(ctx, trip.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "Milk", got.Items[0].ItemName)
	assert.True(t, decimal.RequireFromString("5.25").Equal(got.EstimatedTotal), got.EstimatedTotal.String())
	assert.True(t, got.ActualTotal.IsZero())

	updated, err := s.UpdateItem(ctx, milk.ID, model.ItemPatch{ActualPrice: ptr(decimal.RequireFromString("1.40")), IsCompleted: ptr(true)})
	require.NoError(t, err)
	assert.True(t, updated.IsCompleted)

	got, err = s.GetTrip(ctx, trip.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("2.80").Equal(got.ActualTotal), got.ActualTotal.String())

	recs, err := s.QueryPrices(ctx, model.PriceQuery{ItemName: "MILK"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "milk", recs[0].ItemName)
	assert.Equal(t, r.ID, recs[0].RetailerID)
	assert.Equal(t, "Aldi", recs[0].RetailerName)
	assert.Equal(t, trip.ID, recs[0].TripID)
	assert.True(t, model.Day(today).Equal(recs[0].Date))

	require.NoError(t, s.DeleteItem(ctx, milk.ID))
	got, err = s.GetTrip(ctx, trip.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("2.25").Equal(got.EstimatedTotal))
	assert.True(t, got.ActualTotal.IsZero())
}

func TestQueryPricesFilters(t *testing.T) {
	s, ctx := openTestStore(t)
	today := time.Date(2026, 5, 4, 15, 0, 0, 0, time.UTC)

	r, err := s.CreateRetailer(ctx, model.RetailerInput{Name: "Aldi"})
	require.NoError(t, err)
	trip, err := s.CreateTrip(ctx, model.TripInput{Name: "Weekly", RetailerID: r.ID})
	require.NoError(t, err)
	item, err := s.CreateItem(ctx, trip.ID, model.ItemInput{ItemName: "Eggs", Quantity: 1})
	require.NoError(t, err)

	for i, price := range []string{"3.00", "3.20", "3.10"} {
		when := today.AddDate(0, 0, -40+i*20)
		s.now = func() time.Time { return when }
		_, err := s.UpdateItem(ctx, item.ID, model.ItemPatch{ActualPrice: ptr(decimal.RequireFromString(price))})
		require.NoError(t, err)
	}

	all, err := s.QueryPrices(ctx, model.PriceQuery{ItemName: "eggs"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "3.1", all[0].Price.String())

	since := today.AddDate(0, 0, -30)
	recent, err := s.QueryPrices(ctx, model.PriceQuery{ItemName: "eggs", Since: &since})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	one, err := s.QueryPrices(ctx, model.PriceQuery{RetailerID: r.ID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, all[0].ID, one[0].ID)

	none, err := s.QueryPrices(ctx, model.PriceQuery{ItemName: "caviar"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeleteTripCascadesItems(t *testing.T) {
	s, ctx := openTestStore(t)
	r, err := s.CreateRetailer(ctx, model.RetailerInput{Name: "Aldi"})
	require.NoError(t, err)
	trip, err := s.CreateTrip(ctx, model.TripInput{Name: "Weekly", RetailerID: r.ID})
	require.NoError(t, err)
	item, err := s.CreateItem(ctx, trip.ID, model.ItemInput{ItemName: "Milk", Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, s.DeleteTrip(ctx, trip.ID))
	_, err = s.GetItem(ctx, item.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, s.DeleteTrip(ctx, trip.ID), model.ErrNotFound)

	require.NoError(t, s.DeleteRetailer(ctx, r.ID))
}
