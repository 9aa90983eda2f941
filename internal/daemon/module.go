// Package daemon wires smartcartd: the Postgres backend served over gRPC,
// with Prometheus metrics and a health endpoint over HTTP.
package daemon

import (
	"context"
	"path/filepath"
	"time"

	"github.com/matheus3301/smartcart/internal/auth"
	"github.com/matheus3301/smartcart/internal/backend"
	"github.com/matheus3301/smartcart/internal/bus"
	"github.com/matheus3301/smartcart/internal/config"
	"github.com/matheus3301/smartcart/internal/lock"
	"github.com/matheus3301/smartcart/internal/logging"
	"github.com/matheus3301/smartcart/internal/metrics"
	"github.com/matheus3301/smartcart/internal/paths"
	"github.com/matheus3301/smartcart/internal/remote"
	"github.com/matheus3301/smartcart/internal/status"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved configuration passed to the fx module.
type Params struct {
	Config  config.ServerConfig
	DataDir string // empty means paths.ServerDir()
	Console bool
}

func (p Params) dataDir() string {
	if p.DataDir != "" {
		return p.DataDir
	}
	return paths.ServerDir()
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideRegistry,
			provideRPCMetrics,
			fx.Annotate(
				provideBackend,
				fx.As(new(remote.Services)),
				fx.As(new(auth.UserStore)),
				fx.As(new(Pinger)),
			),
			provideTokens,
			provideAccounts,
			NewServer,
			NewHTTPServer,
			provideProber,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	path := paths.ServerLogPath()
	if p.DataDir != "" {
		path = filepath.Join(p.DataDir, "logs", "smartcartd.log")
	}
	return logging.New(path, "smartcartd", p.Console)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring data dir lock", zap.String("dir", p.dataDir()))
	l, err := lock.Acquire(p.dataDir(), "smartcartd")
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired")
	return l, nil
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideRPCMetrics(reg *prometheus.Registry) *metrics.RPC {
	return metrics.NewRPC(reg)
}

func provideBackend(lc fx.Lifecycle, p Params, reg *prometheus.Registry, logger *zap.Logger) (*backend.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	store, err := backend.Open(ctx, p.Config.DatabaseURL, logger.Named("backend"))
	if err != nil {
		return nil, err
	}
	metrics.RegisterPool(reg, store.PoolStats)
	lc.Append(fx.StopHook(store.Close))
	return store, nil
}

func provideTokens(p Params) *auth.TokenManager {
	return auth.NewTokenManager(p.Config.JWTSecret, p.Config.TokenTTL)
}

func provideAccounts(users auth.UserStore, tokens *auth.TokenManager) *auth.Accounts {
	return auth.NewAccounts(users, tokens)
}

func provideProber(db Pinger, machine *status.Machine, logger *zap.Logger) *Prober {
	return NewProber(db, machine, logger, defaultProbeInterval)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, httpSrv *HTTPServer, prober *Prober, machine *status.Machine, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			prober.Check(ctx)
			prober.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			go func() {
				if err := httpSrv.Start(); err != nil {
					logger.Error("HTTP server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			_ = machine.Transition(status.Stopping, "shutdown")
			prober.Stop()
			httpSrv.Stop(ctx)
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
