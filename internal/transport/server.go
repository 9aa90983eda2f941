package transport

import (
	"context"
	"strings"
	"time"

	"github.com/matheus3301/smartcart/internal/auth"
	"github.com/matheus3301/smartcart/internal/metrics"
	"github.com/matheus3301/smartcart/internal/model"
	"github.com/matheus3301/smartcart/internal/remote"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// ServerDeps are what NewServer needs to serve the remote services.
type ServerDeps struct {
	Services remote.Services
	Accounts AccountService
	Tokens   *auth.TokenManager
	Logger   *zap.Logger
	Metrics  *metrics.RPC
}

// NewServer returns a gRPC server exposing d.Services. Every call except
// Register and Login must carry a bearer token; the verified user id is put
// on the context with auth.WithUser.
func NewServer(d ServerDeps, opts ...grpc.ServerOption) *grpc.Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = append(opts, grpc.ChainUnaryInterceptor(
		observe(logger, d.Metrics),
		authenticate(d.Tokens),
	))
	srv := grpc.NewServer(opts...)
	srv.RegisterService(&serviceDesc, &handler{Services: d.Services, accounts: d.Accounts})
	return srv
}

func observe(logger *zap.Logger, m *metrics.RPC) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		code := status.Code(err)
		name := info.FullMethod[strings.LastIndex(info.FullMethod, "/")+1:]
		m.Observe(name, code.String(), time.Since(start))

		fields := []zap.Field{
			zap.String("method", name),
			zap.String("code", code.String()),
			zap.Duration("took", time.Since(start)),
		}
		switch code {
		case codes.OK:
			logger.Debug("rpc", fields...)
		case codes.Internal, codes.Unknown:
			logger.Error("rpc failed", append(fields, zap.Error(err))...)
		default:
			logger.Info("rpc rejected", append(fields, zap.Error(err))...)
		}
		return resp, err
	}
}

func authenticate(tokens *auth.TokenManager) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if publicMethods[info.FullMethod] {
			return next(ctx, req)
		}
		token := bearer(ctx)
		if token == "" || tokens == nil {
			return nil, toStatus(model.ErrNotAuthenticated)
		}
		claims, err := tokens.Verify(token)
		if err != nil {
			return nil, toStatus(err)
		}
		return next(auth.WithUser(ctx, claims.Subject), req)
	}
}

func bearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get("authorization") {
		if tok, ok := strings.CutPrefix(v, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	return ""
}
