// Package connectivity tracks whether the backend is reachable and announces
// transitions on the bus.
package connectivity

import (
	"context"
	"sync/atomic"

	"github.com/matheus3301/smartcart/internal/bus"
	"go.uber.org/zap"
	grpcstate "google.golang.org/grpc/connectivity"
)

// Signal reports current connectivity. It is read on every repository call.
type Signal interface {
	Online() bool
}

// Monitor is a Signal that publishes connectivity.online and
// connectivity.offline when the state flips.
type Monitor struct {
	online atomic.Bool
	bus    *bus.Bus
	logger *zap.Logger
}

// NewMonitor creates a monitor starting in the given state. b may be nil.
func NewMonitor(b *bus.Bus, logger *zap.Logger, online bool) *Monitor {
	m := &Monitor{bus: b, logger: logger}
	m.online.Store(online)
	return m
}

func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Set records the current state and publishes an event on a change.
func (m *Monitor) Set(online bool) {
	if m.online.Swap(online) == online {
		return
	}
	kind := bus.TopicConnectivityOffline
	if online {
		kind = bus.TopicConnectivityOnline
	}
	m.logger.Info("connectivity changed", zap.Bool("online", online))
	if m.bus != nil {
		m.bus.Emit(kind, online)
	}
}

// StateSource is the part of *grpc.ClientConn the watcher needs.
type StateSource interface {
	GetState() grpcstate.State
	WaitForStateChange(ctx context.Context, s grpcstate.State) bool
	Connect()
}

// Watch follows the channel state of conn until ctx is done: Ready means
// online, TransientFailure and Shutdown mean offline. Idle channels are
// kicked so a reconnect is attempted.
func (m *Monitor) Watch(ctx context.Context, conn StateSource) {
	state := conn.GetState()
	for {
		switch state {
		case grpcstate.Ready:
			m.Set(true)
		case grpcstate.TransientFailure, grpcstate.Shutdown:
			m.Set(false)
		case grpcstate.Idle:
			conn.Connect()
		}
		if state == grpcstate.Shutdown {
			return
		}
		if !conn.WaitForStateChange(ctx, state) {
			return
		}
		state = conn.GetState()
	}
}
