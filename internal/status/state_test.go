package status

import (
	"testing"

	"github.com/matheus3301/smartcart/internal/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	assert.Equal(t, Starting, m.Current())
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		path []State
	}{
		{[]State{Ready}},
		{[]State{Degraded}},
		{[]State{Ready, Degraded, Ready}},
		{[]State{Degraded, Ready, Stopping}},
		{[]State{Stopping}},
	}
	for _, tt := range tests {
		m := NewMachine(nil)
		for _, s := range tt.path {
			require.NoError(t, m.Transition(s, ""), "path %v", tt.path)
		}
		assert.Equal(t, tt.path[len(tt.path)-1], m.Current())
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	require.NoError(t, m.Transition(Stopping, "shutdown"))
	assert.Error(t, m.Transition(Ready, ""))
	assert.Equal(t, Stopping, m.Current())
}

func TestSameStateIsNoop(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("daemon.", 10)
	defer unsub()

	m := NewMachine(b)
	require.NoError(t, m.Transition(Ready, ""))
	require.NoError(t, m.Transition(Ready, "again"))

	<-ch
	select {
	case evt := <-ch:
		t.Fatalf("unexpected second event %v", evt)
	default:
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("daemon.", 10)
	defer unsub()

	m := NewMachine(b)
	require.NoError(t, m.Transition(Degraded, "database unreachable"))

	evt := <-ch
	assert.Equal(t, bus.TopicDaemonStatus, evt.Kind)
	change, ok := evt.Payload.(StatusChange)
	require.True(t, ok, "payload type = %T", evt.Payload)
	assert.Equal(t, StatusChange{From: Starting, To: Degraded, Reason: "database unreachable"}, change)

	snap := m.Snapshot()
	assert.Equal(t, Degraded, snap.State)
	assert.Equal(t, "database unreachable", snap.Reason)
}
