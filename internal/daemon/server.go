package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/matheus3301/smartcart/internal/auth"
	"github.com/matheus3301/smartcart/internal/metrics"
	"github.com/matheus3301/smartcart/internal/remote"
	"github.com/matheus3301/smartcart/internal/transport"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Server manages the gRPC listener serving the backend.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	logger     *zap.Logger
}

// NewServer creates a gRPC server bound to the configured TCP address.
func NewServer(
	p Params,
	logger *zap.Logger,
	services remote.Services,
	accounts *auth.Accounts,
	tokens *auth.TokenManager,
	rpcMetrics *metrics.RPC,
) (*Server, error) {
	listener, err := net.Listen("tcp", p.Config.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", p.Config.Listen, err)
	}

	srv := transport.NewServer(transport.ServerDeps{
		Services: services,
		Accounts: accounts,
		Tokens:   tokens,
		Logger:   logger.Named("rpc"),
		Metrics:  rpcMetrics,
	})

	return &Server{
		grpcServer: srv,
		listener:   listener,
		logger:     logger,
	}, nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Start begins serving gRPC requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("gRPC server starting", zap.Stringer("addr", s.listener.Addr()))
	err := s.grpcServer.Serve(s.listener)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Stop drains in-flight calls, forcing the shutdown if ctx ends first.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("gRPC server stopping")
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
		<-done
	}
}
