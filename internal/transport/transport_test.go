package transport

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/smartcart/internal/auth"
	"github.com/matheus3301/smartcart/internal/cache"
	"github.com/matheus3301/smartcart/internal/connectivity"
	"github.com/matheus3301/smartcart/internal/metrics"
	"github.com/matheus3301/smartcart/internal/model"
	"github.com/matheus3301/smartcart/internal/remote/remotetest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

var _ connectivity.StateSource = (*grpc.ClientConn)(nil)

type harness struct {
	fake   *remotetest.Fake
	tokens *auth.TokenManager
	store  *cache.Store
	client *Client
	reg    *prometheus.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fake := remotetest.New()
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	reg := prometheus.NewRegistry()

	lis := bufconn.Listen(bufSize)
	srv := NewServer(ServerDeps{
		Services: fake,
		Accounts: auth.NewAccounts(remotetest.NewUsers(), tokens),
		Tokens:   tokens,
		Logger:   zap.NewNop(),
		Metrics:  metrics.NewRPC(reg),
	})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	store, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	_, err = store.Migrate(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	client, err := Dial("passthrough:///bufnet", store, zap.NewNop(), nil,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return &harness{fake: fake, tokens: tokens, store: store, client: client, reg: reg}
}

func (h *harness) login(t *testing.T) auth.Session {
	t.Helper()
	s, err := h.client.Register(context.Background(), auth.Credentials{Email: "ann@example.com", Password: "correct horse"})
	require.NoError(t, err)
	return s
}

func TestCallsRequireToken(t *testing.T) {
	h := newHarness(t)

	_, err := h.client.ListRetailers(context.Background())
	assert.ErrorIs(t, err, model.ErrNotAuthenticated)

	_, err = h.client.CurrentUser(context.Background())
	assert.ErrorIs(t, err, model.ErrNotAuthenticated)
}

func TestRegisterStoresToken(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.login(t)

	tok, err := h.store.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.Token, tok)

	user, err := h.client.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.UserID, user)

	require.NoError(t, h.client.Logout(ctx))
	_, err = h.client.CurrentUser(ctx)
	assert.ErrorIs(t, err, model.ErrNotAuthenticated)
}

func TestLoginWrongPassword(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.login(t)

	_, err := h.client.Login(ctx, auth.Credentials{Email: "ann@example.com", Password: "wrong password"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestForgedTokenRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	forged, err := auth.NewTokenManager("other-secret", time.Hour).Issue("user-1", "")
	require.NoError(t, err)
	require.NoError(t, h.store.SetToken(ctx, forged))

	_, err = h.client.ListRetailers(ctx)
	assert.ErrorIs(t, err, model.ErrNotAuthenticated)
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.login(t)

	loc := "Main St"
	r, err := h.client.CreateRetailer(ctx, model.RetailerInput{Name: "Aldi", Location: &loc})
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	require.NotNil(t, r.Location)
	assert.Equal(t, "Main St", *r.Location)

	list, err := h.client.ListRetailers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, r.ID, list[0].ID)

	trip, err := h.client.CreateTrip(ctx, model.TripInput{Name: "Weekly", RetailerID: r.ID, Date: time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPlanned, trip.Status)

	est := decimal.RequireFromString("1.99")
	item, err := h.client.CreateItem(ctx, trip.ID, model.ItemInput{ItemName: "Milk", Quantity: 2, EstimatedPrice: &est})
	require.NoError(t, err)
	require.True(t, item.EstimatedPrice.Valid)
	assert.True(t, item.EstimatedPrice.Decimal.Equal(est))
	assert.Equal(t, 2.0, item.Quantity)

	actual := decimal.RequireFromString("2.05")
	item, err = h.client.UpdateItem(ctx, item.ID, model.ItemPatch{ActualPrice: &actual})
	require.NoError(t, err)
	assert.True(t, item.ActualPrice.Decimal.Equal(actual))

	got, err := h.client.GetTrip(ctx, trip.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	require.NotNil(t, got.Retailer)
	assert.Equal(t, "Aldi", got.Retailer.Name)

	prices, err := h.client.QueryPrices(ctx, model.PriceQuery{ItemName: "milk"})
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.True(t, prices[0].Price.Equal(actual))

	require.NoError(t, h.client.DeleteItem(ctx, item.ID))
	items, err := h.client.ListItems(ctx, trip.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDomainErrorsSurviveTheWire(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.login(t)

	r, err := h.client.CreateRetailer(ctx, model.RetailerInput{Name: "Aldi"})
	require.NoError(t, err)

	_, err = h.client.CreateRetailer(ctx, model.RetailerInput{Name: "aldi"})
	assert.ErrorIs(t, err, model.ErrDuplicateRetailer)

	_, err = h.client.GetTrip(ctx, "t-missing")
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = h.client.CreateTrip(ctx, model.TripInput{Name: "A", RetailerID: r.ID})
	require.NoError(t, err)
	err = h.client.DeleteRetailer(ctx, r.ID)
	assert.ErrorIs(t, err, model.ErrRetailerHasTrips)

	_, err = h.client.CreateRetailer(ctx, model.RetailerInput{Name: ""})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "name")
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestUnavailableBackend(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.fake.SetError(errors.New("database is down"))

	_, err := h.client.ListRetailers(context.Background())
	require.Error(t, err)
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.Contains(t, err.Error(), "database is down")
	assert.NotErrorIs(t, err, model.ErrNotAuthenticated)
}

func TestServerRecordsMetrics(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	_, _ = h.client.ListRetailers(context.Background())

	mfs, err := h.reg.Gather()
	require.NoError(t, err)
	calls := map[string]float64{}
	for _, mf := range mfs {
		if mf.GetName() != "smartcart_rpc_calls_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			var key string
			for _, lp := range m.GetLabel() {
				key += lp.GetValue() + "/"
			}
			calls[key] = m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, calls["OK/Register/"])
	assert.Equal(t, 1.0, calls["OK/ListRetailers/"])
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
		want error
	}{
		{"not found", model.ErrNotFound, codes.NotFound, model.ErrNotFound},
		{"active trip", model.ErrActiveTripExists, codes.FailedPrecondition, model.ErrActiveTripExists},
		{"transition", model.ErrInvalidTransition, codes.FailedPrecondition, model.ErrInvalidTransition},
		{"wrapped", errors.Join(errors.New("ctx"), model.ErrRetailerHasTrips), codes.FailedPrecondition, model.ErrRetailerHasTrips},
		{"canceled", context.Canceled, codes.Canceled, context.Canceled},
		{"token", auth.ErrInvalidToken, codes.Unauthenticated, model.ErrNotAuthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := toStatus(tt.err)
			assert.Equal(t, tt.code, status.Code(st))
			assert.ErrorIs(t, fromStatus(st), tt.want)
		})
	}
}

func TestUnknownErrorIsInternal(t *testing.T) {
	st := toStatus(errors.New("boom"))
	assert.Equal(t, codes.Internal, status.Code(st))
	assert.Equal(t, codes.Internal, status.Code(fromStatus(st)))
}

func TestUnavailableMapsToSentinel(t *testing.T) {
	err := fromStatus(status.Error(codes.Unavailable, "connection refused"))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, "connection refused", err.Error())
}
