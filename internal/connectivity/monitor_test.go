package connectivity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/smartcart/internal/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	grpcstate "google.golang.org/grpc/connectivity"
)

func TestSetPublishesOnlyEdges(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("connectivity.", 10)
	defer unsub()

	m := NewMonitor(b, zap.NewNop(), false)
	m.Set(false)
	m.Set(true)
	m.Set(true)
	m.Set(false)

	var kinds []string
	for len(kinds) < 2 {
		select {
		case evt := <-ch:
			kinds = append(kinds, evt.Kind)
		case <-time.After(time.Second):
			t.Fatalf("got %v, want two events", kinds)
		}
	}
	assert.Equal(t, []string{bus.TopicConnectivityOnline, bus.TopicConnectivityOffline}, kinds)

	select {
	case evt := <-ch:
		t.Errorf("unexpected event %s", evt.Kind)
	case <-time.After(50 * time.Millisecond):
	}
	assert.False(t, m.Online())
}

func TestMonitorWithoutBus(t *testing.T) {
	m := NewMonitor(nil, zap.NewNop(), true)
	m.Set(false)
	assert.False(t, m.Online())
}

// scriptedConn replays a fixed sequence of channel states.
type scriptedConn struct {
	mu       sync.Mutex
	states   []grpcstate.State
	pos      int
	connects int
}

func (c *scriptedConn) GetState() grpcstate.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[c.pos]
}

func (c *scriptedConn) WaitForStateChange(ctx context.Context, _ grpcstate.State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pos+1 >= len(c.states) {
		return false
	}
	c.pos++
	return ctx.Err() == nil
}

func (c *scriptedConn) Connect() {
	c.mu.Lock()
	c.connects++
	c.mu.Unlock()
}

func TestWatchFollowsChannelState(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("connectivity.", 10)
	defer unsub()

	conn := &scriptedConn{states: []grpcstate.State{
		grpcstate.Idle,
		grpcstate.Connecting,
		grpcstate.Ready,
		grpcstate.TransientFailure,
		grpcstate.Connecting,
		grpcstate.Ready,
	}}
	m := NewMonitor(b, zap.NewNop(), false)
	m.Watch(context.Background(), conn)

	require.True(t, m.Online())
	assert.Equal(t, 1, conn.connects)

	var kinds []string
	for len(kinds) < 3 {
		select {
		case evt := <-ch:
			kinds = append(kinds, evt.Kind)
		case <-time.After(time.Second):
			t.Fatalf("got %v, want three events", kinds)
		}
	}
	assert.Equal(t, []string{
		bus.TopicConnectivityOnline,
		bus.TopicConnectivityOffline,
		bus.TopicConnectivityOnline,
	}, kinds)
}

func TestWatchStopsOnShutdown(t *testing.T) {
	conn := &scriptedConn{states: []grpcstate.State{grpcstate.Ready, grpcstate.Shutdown, grpcstate.Ready}}
	m := NewMonitor(nil, zap.NewNop(), false)
	m.Watch(context.Background(), conn)
	assert.False(t, m.Online())
}
