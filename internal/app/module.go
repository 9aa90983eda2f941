// Package app wires the smartcart client: local cache, gRPC transport,
// connectivity tracking, offline repositories and the sync and price engines.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/smartcart/internal/bus"
	"github.com/matheus3301/smartcart/internal/cache"
	"github.com/matheus3301/smartcart/internal/config"
	"github.com/matheus3301/smartcart/internal/connectivity"
	"github.com/matheus3301/smartcart/internal/lock"
	"github.com/matheus3301/smartcart/internal/logging"
	"github.com/matheus3301/smartcart/internal/metrics"
	"github.com/matheus3301/smartcart/internal/offline"
	"github.com/matheus3301/smartcart/internal/paths"
	"github.com/matheus3301/smartcart/internal/price"
	"github.com/matheus3301/smartcart/internal/remote"
	intsync "github.com/matheus3301/smartcart/internal/sync"
	"github.com/matheus3301/smartcart/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile string
	Command string
	Config  config.ClientConfig

	// Background keeps the sync engine draining on reconnects and on a
	// timer, for long-running commands.
	Background bool
	// DrainOnStart replays queued changes once the backend is reachable,
	// before the command runs.
	DrainOnStart bool

	// DialOptions are appended to the transport's, mostly for tests.
	DialOptions []grpc.DialOption
}

// App is everything a command may use.
type App struct {
	fx.In

	Logger    *zap.Logger
	Bus       *bus.Bus
	Store     *cache.Store
	Client    *transport.Client
	Monitor   *connectivity.Monitor
	Retailers *offline.Retailers
	Trips     *offline.Trips
	Items     *offline.Items
	Sync      *intsync.Engine
	Prices    *price.Engine
}

// Module returns the fx module for the client.
func Module(p Params) fx.Option {
	return fx.Module("app",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideCache,
			provideRegistry,
			provideSyncMetrics,
			provideClient,
			provideMonitor,
			provideDeps,
			offline.NewRetailers,
			offline.NewTrips,
			offline.NewItems,
			provideSyncEngine,
			providePriceEngine,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	if err := paths.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger, err := logging.New(paths.LogPath(p.Profile), "smartcart", p.Config.LogToStderr)
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("profile", p.Profile), zap.String("command", p.Command)), nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(lc fx.Lifecycle, p Params, logger *zap.Logger) (*lock.Lock, error) {
	l, err := lock.Acquire(paths.LockDir(p.Profile), "smartcart "+p.Command)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(func() {
		if err := l.Release(); err != nil {
			logger.Warn("error releasing lock", zap.Error(err))
		}
	}))
	return l, nil
}

func provideCache(lc fx.Lifecycle, p Params, _ *lock.Lock, logger *zap.Logger) (*cache.Store, error) {
	path := paths.CachePath(p.Profile)
	store, err := cache.Open(path)
	if err != nil {
		return nil, err
	}
	sc, err := store.Migrate(context.Background())
	if err != nil {
		_ = store.Close()
		if errors.Is(err, cache.ErrDirtySchema) {
			logger.Error("cache schema needs repair", zap.String("path", path), zap.Uint("version", sc.Version))
		}
		return nil, err
	}
	logger.Debug("cache opened",
		zap.String("path", path),
		zap.Uint("schema", sc.Version),
		zap.Bool("upgraded", sc.Upgraded),
		zap.Int("entries", sc.Entries),
		zap.Int("pending", sc.Pending))
	lc.Append(fx.StopHook(store.Close))
	return store, nil
}

func provideRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func provideSyncMetrics(reg *prometheus.Registry) *metrics.Sync {
	return metrics.NewSync(reg)
}

func provideClient(lc fx.Lifecycle, p Params, store *cache.Store, logger *zap.Logger) (*transport.Client, error) {
	client, err := transport.Dial(p.Config.Server, store, logger.Named("transport"),
		[]transport.ClientOption{transport.WithTimeout(p.Config.Timeout)},
		p.DialOptions...)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(client.Close))
	return client, nil
}

func provideMonitor(b *bus.Bus, logger *zap.Logger) *connectivity.Monitor {
	return connectivity.NewMonitor(b, logger.Named("connectivity"), false)
}

func provideDeps(store *cache.Store, client *transport.Client, monitor *connectivity.Monitor, logger *zap.Logger) offline.Deps {
	return offline.Deps{
		Store:    store,
		Remote:   client,
		Signal:   monitor,
		Identity: client,
		Logger:   logger,
	}
}

func provideSyncEngine(p Params, store *cache.Store, client *transport.Client, monitor *connectivity.Monitor, b *bus.Bus, m *metrics.Sync, logger *zap.Logger) *intsync.Engine {
	opts := []intsync.Option{intsync.WithMetrics(m)}
	if p.Background {
		opts = append(opts, intsync.WithInterval(p.Config.SyncInterval))
	}
	return intsync.NewEngine(store, remote.Services(client), monitor, b, logger.Named("sync"), opts...)
}

func providePriceEngine(client *transport.Client, logger *zap.Logger) *price.Engine {
	return price.NewEngine(client, logger.Named("price"))
}

func registerLifecycle(lc fx.Lifecycle, p Params, client *transport.Client, monitor *connectivity.Monitor, b *bus.Bus, engine *intsync.Engine, reg *prometheus.Registry, logger *zap.Logger) {
	var cancel context.CancelFunc
	watchDone := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			online, unsub := b.Subscribe(bus.TopicConnectivityOnline, 1)
			defer unsub()

			var watchCtx context.Context
			watchCtx, cancel = context.WithCancel(context.Background())
			go func() {
				defer close(watchDone)
				monitor.Watch(watchCtx, client.Conn())
			}()

			waitOnline(ctx, online, p.Config.ConnectWait)
			if !monitor.Online() {
				logger.Info("backend unreachable, working offline", zap.String("server", p.Config.Server))
			}
			if p.DrainOnStart && monitor.Online() {
				engine.SyncPendingChanges(ctx)
			}
			if p.Background {
				engine.Start(context.Background())
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			engine.Stop()
			if cancel != nil {
				cancel()
				<-watchDone
			}
			if p.Config.MetricsFile != "" {
				if err := prometheus.WriteToTextfile(p.Config.MetricsFile, reg); err != nil {
					logger.Warn("write metrics textfile", zap.Error(err))
				}
			}
			return nil
		},
	})
}

func waitOnline(ctx context.Context, online <-chan bus.Event, wait time.Duration) {
	if wait <= 0 {
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-online:
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Run builds the client, runs fn with it and shuts everything down.
func Run(ctx context.Context, p Params, fn func(ctx context.Context, a App) error, extra ...fx.Option) error {
	var a App
	opts := append([]fx.Option{
		Module(p),
		fx.Invoke(func(in App) { a = in }),
		fx.NopLogger,
	}, extra...)
	fxApp := fx.New(opts...)
	if err := fxApp.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, p.Config.ConnectWait+30*time.Second)
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	runErr := fn(ctx, a)

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelStop()
	if err := fxApp.Stop(stopCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("stop: %w", err)
	}
	return runErr
}
