package status

import (
	"testing"

	"github.com/gabomarinc/konsul-console/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Stopped {
		t.Errorf("initial state = %s, want STOPPED", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Stopped, Polling},
		{Polling, Fetching},
		{Fetching, Polling},
		{Polling, Stopped},
		{Fetching, Stopped},
		{Polling, AuthRequired},
		{Fetching, AuthRequired},
		{AuthRequired, Polling},
		{AuthRequired, Stopped},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

// TestNoDirectStoppedToFetching verifies a cycle cannot begin without the
// timer being scheduled first.
func TestNoDirectStoppedToFetching(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Fetching); err == nil {
		t.Error("Transition(STOPPED -> FETCHING) should fail")
	}
	if m.Current() != Stopped {
		t.Errorf("state = %s, want STOPPED (unchanged on invalid transition)", m.Current())
	}
}

// TestNoOverlappingFetch verifies FETCHING cannot re-enter itself: a tick
// firing while a cycle is in flight has no legal transition to take.
func TestNoOverlappingFetch(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Fetching)
	if err := m.Transition(Fetching); err == nil {
		t.Error("Transition(FETCHING -> FETCHING) should fail")
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("status.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Polling); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.KindStatusChanged {
		t.Errorf("event kind = %q, want %q", evt.Kind, bus.KindStatusChanged)
	}
	change, ok := evt.Payload.(Change)
	if !ok {
		t.Fatalf("payload type = %T, want Change", evt.Payload)
	}
	if change.From != Stopped || change.To != Polling {
		t.Errorf("change = %v -> %v, want STOPPED -> POLLING", change.From, change.To)
	}
}

// TestPollLifecycle simulates a full run: start, two cycles, stop.
func TestPollLifecycle(t *testing.T) {
	m := NewMachine(nil)
	steps := []State{Polling, Fetching, Polling, Fetching, Polling, Stopped}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Current() != Stopped {
		t.Errorf("final state = %s, want STOPPED", m.Current())
	}
}

// TestAuthExpiryAndRecovery verifies a 401 mid-cycle parks the machine until
// a restart brings it back to polling.
func TestAuthExpiryAndRecovery(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Fetching)

	if err := m.Transition(AuthRequired); err != nil {
		t.Fatalf("FETCHING -> AUTH_REQUIRED: %v", err)
	}
	if err := m.Transition(Polling); err != nil {
		t.Fatalf("AUTH_REQUIRED -> POLLING: %v", err)
	}
	if m.Current() != Polling {
		t.Errorf("state = %s, want POLLING", m.Current())
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Stopped:      {},
		Polling:      {Polling},
		Fetching:     {Polling, Fetching},
		AuthRequired: {Polling, AuthRequired},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
