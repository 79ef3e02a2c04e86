package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gabomarinc/konsul-console/internal/bus"
)

// State represents a sync runtime state.
type State string

const (
	// Stopped: no timer scheduled, no cycle in flight.
	Stopped State = "STOPPED"
	// Polling: idle between ticks.
	Polling State = "POLLING"
	// Fetching: a poll cycle is in flight. A tick arriving here is skipped.
	Fetching State = "FETCHING"
	// AuthRequired: the gateway rejected the credential mid-session.
	AuthRequired State = "AUTH_REQUIRED"
)

// validTransitions defines allowed state transitions. Fetching→Fetching is
// deliberately absent: overlapping cycles are impossible by construction.
var validTransitions = map[State][]State{
	Stopped:      {Polling},
	Polling:      {Fetching, Stopped, AuthRequired},
	Fetching:     {Polling, Stopped, AuthRequired},
	AuthRequired: {Polling, Stopped},
}

// Machine tracks and enforces sync state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Stopped state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Stopped,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if the transition
// is invalid; the state is left unchanged in that case.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Emit(bus.KindStatusChanged, Change{From: from, To: to})
	}
	return nil
}

// Change is the payload for status change events.
type Change struct {
	From State `json:"from"`
	To   State `json:"to"`
}
