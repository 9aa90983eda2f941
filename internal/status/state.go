// Package status tracks the daemon's health as a small state machine.
package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/smartcart/internal/bus"
)

// State represents a daemon runtime state.
type State string

const (
	Starting State = "STARTING"
	Ready    State = "READY"
	Degraded State = "DEGRADED"
	Stopping State = "STOPPING"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Starting: {Ready, Degraded, Stopping},
	Ready:    {Degraded, Stopping},
	Degraded: {Ready, Stopping},
	Stopping: {},
}

// Machine tracks and enforces daemon runtime state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	since   time.Time
	reason  string
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Starting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Starting,
		since:   time.Now(),
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Snapshot is the state with when and why it was entered.
type Snapshot struct {
	State  State     `json:"state"`
	Since  time.Time `json:"since"`
	Reason string    `json:"reason,omitempty"`
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{State: m.current, Since: m.since, Reason: m.reason}
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
// Moving to the current state is a no-op.
func (m *Machine) Transition(to State, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if to == m.current {
		return nil
	}
	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.since = time.Now()
	m.reason = reason
	if m.bus != nil {
		m.bus.Emit(bus.TopicDaemonStatus, StatusChange{From: from, To: to, Reason: reason})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From   State
	To     State
	Reason string
}
