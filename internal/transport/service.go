package transport

import (
	"context"

	"github.com/matheus3301/smartcart/internal/auth"
	"github.com/matheus3301/smartcart/internal/model"
	"github.com/matheus3301/smartcart/internal/remote"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "smartcart.v1.SmartCart"

func fullMethod(name string) string { return "/" + serviceName + "/" + name }

// AccountService signs users up and in. Its methods are callable without a token.
type AccountService interface {
	Register(ctx context.Context, c auth.Credentials) (auth.Session, error)
	Login(ctx context.Context, c auth.Credentials) (auth.Session, error)
}

// handler is registered with the gRPC server. Embedding remote.Services
// lets the service descriptor check it by interface.
type handler struct {
	remote.Services
	accounts AccountService
}

type empty struct{}

type idRequest struct {
	ID string `json:"id"`
}

type tripIDRequest struct {
	TripID string `json:"trip_id"`
}

type retailerUpdate struct {
	ID    string              `json:"id"`
	Patch model.RetailerPatch `json:"patch"`
}

type tripUpdate struct {
	ID    string          `json:"id"`
	Patch model.TripPatch `json:"patch"`
}

type itemCreate struct {
	TripID string          `json:"trip_id"`
	Input  model.ItemInput `json:"input"`
}

type itemUpdate struct {
	ID    string          `json:"id"`
	Patch model.ItemPatch `json:"patch"`
}

type method struct {
	name   string
	public bool
	call   func(h *handler, ctx context.Context, in *structpb.Struct) (any, error)
}

func rpc[Req, Resp any](name string, fn func(h *handler, ctx context.Context, req Req) (Resp, error)) method {
	return method{
		name: name,
		call: func(h *handler, ctx context.Context, in *structpb.Struct) (any, error) {
			var req Req
			if err := decode(in, &req); err != nil {
				return nil, status.Error(codes.InvalidArgument, err.Error())
			}
			return fn(h, ctx, req)
		},
	}
}

func public(m method) method {
	m.public = true
	return m
}

var errNoAccounts = status.Error(codes.Unimplemented, "accounts are not served here")

func done(err error) (empty, error) { return empty{}, err }

var methods = []method{
	public(rpc("Register", func(h *handler, ctx context.Context, c auth.Credentials) (auth.Session, error) {
		if h.accounts == nil {
			return auth.Session{}, errNoAccounts
		}
		return h.accounts.Register(ctx, c)
	})),
	public(rpc("Login", func(h *handler, ctx context.Context, c auth.Credentials) (auth.Session, error) {
		if h.accounts == nil {
			return auth.Session{}, errNoAccounts
		}
		return h.accounts.Login(ctx, c)
	})),

	rpc("CreateRetailer", func(h *handler, ctx context.Context, in model.RetailerInput) (model.Retailer, error) {
		return h.CreateRetailer(ctx, in)
	}),
	rpc("ListRetailers", func(h *handler, ctx context.Context, _ empty) ([]model.Retailer, error) {
		return h.ListRetailers(ctx)
	}),
	rpc("GetRetailer", func(h *handler, ctx context.Context, r idRequest) (model.Retailer, error) {
		return h.GetRetailer(ctx, r.ID)
	}),
	rpc("UpdateRetailer", func(h *handler, ctx context.Context, r retailerUpdate) (model.Retailer, error) {
		return h.UpdateRetailer(ctx, r.ID, r.Patch)
	}),
	rpc("DeleteRetailer", func(h *handler, ctx context.Context, r idRequest) (empty, error) {
		return done(h.DeleteRetailer(ctx, r.ID))
	}),

	rpc("CreateTrip", func(h *handler, ctx context.Context, in model.TripInput) (model.Trip, error) {
		return h.CreateTrip(ctx, in)
	}),
	rpc("ListTrips", func(h *handler, ctx context.Context, f model.TripFilter) ([]model.Trip, error) {
		return h.ListTrips(ctx, f)
	}),
	rpc("GetTrip", func(h *handler, ctx context.Context, r idRequest) (model.Trip, error) {
		return h.GetTrip(ctx, r.ID)
	}),
	rpc("UpdateTrip", func(h *handler, ctx context.Context, r tripUpdate) (model.Trip, error) {
		return h.UpdateTrip(ctx, r.ID, r.Patch)
	}),
	rpc("DeleteTrip", func(h *handler, ctx context.Context, r idRequest) (empty, error) {
		return done(h.DeleteTrip(ctx, r.ID))
	}),

	rpc("CreateItem", func(h *handler, ctx context.Context, r itemCreate) (model.TripItem, error) {
		return h.CreateItem(ctx, r.TripID, r.Input)
	}),
	rpc("ListItems", func(h *handler, ctx context.Context, r tripIDRequest) ([]model.TripItem, error) {
		return h.ListItems(ctx, r.TripID)
	}),
	rpc("GetItem", func(h *handler, ctx context.Context, r idRequest) (model.TripItem, error) {
		return h.GetItem(ctx, r.ID)
	}),
	rpc("UpdateItem", func(h *handler, ctx context.Context, r itemUpdate) (model.TripItem, error) {
		return h.UpdateItem(ctx, r.ID, r.Patch)
	}),
	rpc("DeleteItem", func(h *handler, ctx context.Context, r idRequest) (empty, error) {
		return done(h.DeleteItem(ctx, r.ID))
	}),

	rpc("QueryPrices", func(h *handler, ctx context.Context, q model.PriceQuery) ([]model.PriceRecord, error) {
		return h.QueryPrices(ctx, q)
	}),
}

// publicMethods are the full method names that skip token checks.
var publicMethods = func() map[string]bool {
	out := map[string]bool{}
	for _, m := range methods {
		if m.public {
			out[fullMethod(m.name)] = true
		}
	}
	return out
}()

func (m method) desc() grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: m.name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			h := srv.(*handler)
			invoke := func(ctx context.Context, req any) (any, error) {
				out, err := m.call(h, ctx, req.(*structpb.Struct))
				if err != nil {
					return nil, toStatus(err)
				}
				return encode(out)
			}
			if interceptor == nil {
				return invoke(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(m.name)}
			return interceptor(ctx, in, info, invoke)
		},
	}
}

var serviceDesc = func() grpc.ServiceDesc {
	sd := grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*remote.Services)(nil),
	}
	for _, m := range methods {
		sd.Methods = append(sd.Methods, m.desc())
	}
	return sd
}()
