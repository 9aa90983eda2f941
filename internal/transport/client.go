package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/smartcart/internal/auth"
	"github.com/matheus3301/smartcart/internal/model"
	"github.com/matheus3301/smartcart/internal/remote"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// TokenStore persists the session token between runs.
type TokenStore interface {
	Token(ctx context.Context) (string, error)
	SetToken(ctx context.Context, token string) error
	ClearToken(ctx context.Context) error
}

// Client implements remote.Services and remote.Identity over gRPC.
type Client struct {
	conn    *grpc.ClientConn
	tokens  TokenStore
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time
}

var (
	_ remote.Services = (*Client)(nil)
	_ remote.Identity = (*Client)(nil)
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout bounds every call. Zero leaves calls to the caller's context.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// Dial creates a client for target. The connection is lazy: Dial does not
// fail when the backend is down.
func Dial(target string, tokens TokenStore, logger *zap.Logger, opts []ClientOption, dialOpts ...grpc.DialOption) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{tokens: tokens, logger: logger, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	dialOpts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.attachToken),
	}, dialOpts...)
	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	c.conn = conn
	return c, nil
}

// Conn exposes the connection for connectivity watching.
func (c *Client) Conn() *grpc.ClientConn { return c.conn }

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) attachToken(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
	if c.tokens != nil {
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}
		if tok != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+tok)
		}
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

func (c *Client) call(ctx context.Context, name string, req, resp any) error {
	in, err := encode(req)
	if err != nil {
		return err
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, fullMethod(name), in, out); err != nil {
		err = fromStatus(err)
		c.logger.Debug("rpc failed", zap.String("method", name), zap.Error(err))
		return err
	}
	if resp == nil {
		return nil
	}
	return decode(out, resp)
}

// CurrentUser reads the signed-in user from the stored token without a
// round trip, so it works offline.
func (c *Client) CurrentUser(ctx context.Context) (string, error) {
	if c.tokens == nil {
		return "", model.ErrNotAuthenticated
	}
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return "", err
	}
	if tok == "" {
		return "", model.ErrNotAuthenticated
	}
	claims, err := auth.Inspect(tok, c.now())
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrNotAuthenticated, err)
	}
	return claims.Subject, nil
}

// Register creates an account and stores its token.
func (c *Client) Register(ctx context.Context, cr auth.Credentials) (auth.Session, error) {
	return c.signIn(ctx, "Register", cr)
}

// Login signs in and stores the token.
func (c *Client) Login(ctx context.Context, cr auth.Credentials) (auth.Session, error) {
	return c.signIn(ctx, "Login", cr)
}

func (c *Client) signIn(ctx context.Context, name string, cr auth.Credentials) (auth.Session, error) {
	var s auth.Session
	if err := c.call(ctx, name, cr, &s); err != nil {
		return auth.Session{}, err
	}
	if c.tokens != nil {
		if err := c.tokens.SetToken(ctx, s.Token); err != nil {
			return auth.Session{}, fmt.Errorf("store token: %w", err)
		}
	}
	return s, nil
}

// Logout forgets the stored token.
func (c *Client) Logout(ctx context.Context) error {
	if c.tokens == nil {
		return nil
	}
	return c.tokens.ClearToken(ctx)
}

func (c *Client) CreateRetailer(ctx context.Context, in model.RetailerInput) (model.Retailer, error) {
	var out model.Retailer
	err := c.call(ctx, "CreateRetailer", in, &out)
	return out, err
}

func (c *Client) ListRetailers(ctx context.Context) ([]model.Retailer, error) {
	var out []model.Retailer
	err := c.call(ctx, "ListRetailers", empty{}, &out)
	return out, err
}

func (c *Client) GetRetailer(ctx context.Context, id string) (model.Retailer, error) {
	var out model.Retailer
	err := c.call(ctx, "GetRetailer", idRequest{ID: id}, &out)
	return out, err
}

func (c *Client) UpdateRetailer(ctx context.Context, id string, p model.RetailerPatch) (model.Retailer, error) {
	var out model.Retailer
	err := c.call(ctx, "UpdateRetailer", retailerUpdate{ID: id, Patch: p}, &out)
	return out, err
}

func (c *Client) DeleteRetailer(ctx context.Context, id string) error {
	return c.call(ctx, "DeleteRetailer", idRequest{ID: id}, nil)
}

func (c *Client) CreateTrip(ctx context.Context, in model.TripInput) (model.Trip, error) {
	var out model.Trip
	err := c.call(ctx, "CreateTrip", in, &out)
	return out, err
}

func (c *Client) ListTrips(ctx context.Context, f model.TripFilter) ([]model.Trip, error) {
	var out []model.Trip
	err := c.call(ctx, "ListTrips", f, &out)
	return out, err
}

func (c *Client) GetTrip(ctx context.Context, id string) (model.Trip, error) {
	var out model.Trip
	err := c.call(ctx, "GetTrip", idRequest{ID: id}, &out)
	return out, err
}

func (c *Client) UpdateTrip(ctx context.Context, id string, p model.TripPatch) (model.Trip, error) {
	var out model.Trip
	err := c.call(ctx, "UpdateTrip", tripUpdate{ID: id, Patch: p}, &out)
	return out, err
}

func (c *Client) DeleteTrip(ctx context.Context, id string) error {
	return c.call(ctx, "DeleteTrip", idRequest{ID: id}, nil)
}

func (c *Client) CreateItem(ctx context.Context, tripID string, in model.ItemInput) (model.TripItem, error) {
	var out model.TripItem
	err := c.call(ctx, "CreateItem", itemCreate{TripID: tripID, Input: in}, &out)
	return out, err
}

func (c *Client) ListItems(ctx context.Context, tripID string) ([]model.TripItem, error) {
	var out []model.TripItem
	err := c.call(ctx, "ListItems", tripIDRequest{TripID: tripID}, &out)
	return out, err
}

func (c *Client) GetItem(ctx context.Context, id string) (model.TripItem, error) {
	var out model.TripItem
	err := c.call(ctx, "GetItem", idRequest{ID: id}, &out)
	return out, err
}

func (c *Client) UpdateItem(ctx context.Context, id string, p model.ItemPatch) (model.TripItem, error) {
	var out model.TripItem
	err := c.call(ctx, "UpdateItem", itemUpdate{ID: id, Patch: p}, &out)
	return out, err
}

func (c *Client) DeleteItem(ctx context.Context, id string) error {
	return c.call(ctx, "DeleteItem", idRequest{ID: id}, nil)
}

func (c *Client) QueryPrices(ctx context.Context, q model.PriceQuery) ([]model.PriceRecord, error) {
	var out []model.PriceRecord
	err := c.call(ctx, "QueryPrices", q, &out)
	return out, err
}
