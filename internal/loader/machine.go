package loader

import "github.com/jonathan/netmirror/internal/connectivity"

// Event is an input to the Machine. The concrete types are LoadStarted,
// Resolved, Failed and ConnectivityChanged.
type Event interface {
	isEvent()
}

// LoadStarted begins load number Generation.
type LoadStarted struct {
	Generation uint64
}

// Resolved reports a decoded destination for load Generation.
type Resolved struct {
	Generation  uint64
	Destination string
}

// Failed reports that load Generation did not produce a destination.
type Failed struct {
	Generation uint64
	Err        error
}

// ConnectivityChanged carries a new reading from the connectivity oracle.
type ConnectivityChanged struct {
	Status connectivity.Status
}

func (LoadStarted) isEvent()         {}
func (Resolved) isEvent()            {}
func (Failed) isEvent()              {}
func (ConnectivityChanged) isEvent() {}

// Outcome describes what Apply did with an event.
type Outcome int

const (
	// Applied means the event produced the returned state (which may equal
	// the previous one).
	Applied Outcome = iota
	// Stale means the event belonged to a superseded load and was dropped.
	Stale
	// Masked means the event was current but the offline view took
	// precedence over it.
	Masked
	// Ignored means the event has no effect in this configuration.
	Ignored
)

// Machine is the pure transition table behind the controller. It is not
// safe for concurrent use; the Controller serializes access.
type Machine struct {
	state        State
	generation   uint64
	connected    bool
	checkNetwork bool
	retained     *State
}

// NewMachine returns a machine in the initial Loading state. When
// checkNetwork is false, connectivity events are ignored.
func NewMachine(checkNetwork bool) *Machine {
	return &Machine{
		state:        LoadingState(0),
		connected:    true,
		checkNetwork: checkNetwork,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Generation returns the generation of the most recent load.
func (m *Machine) Generation() uint64 {
	return m.generation
}

// Connected returns the last connectivity reading.
func (m *Machine) Connected() bool {
	return m.connected
}

// Retained returns a Ready state that was hidden by the offline view, if
// any. It is never rendered.
func (m *Machine) Retained() (State, bool) {
	if m.retained == nil {
		return State{}, false
	}
	return *m.retained, true
}

// Apply feeds one event through the transition table and returns the
// resulting state.
func (m *Machine) Apply(ev Event) (State, Outcome) {
	switch e := ev.(type) {
	case LoadStarted:
		if e.Generation > m.generation {
			m.generation = e.Generation
		}
		m.retained = nil
		m.state = LoadingState(m.generation)
		return m.state, Applied

	case Resolved:
		if e.Generation != m.generation {
			return m.state, Stale
		}
		next := ReadyState(e.Generation, e.Destination)
		if m.state.Kind != KindLoading {
			// Offline took over while the load was in flight.
			m.retained = &next
			return m.state, Masked
		}
		if m.checkNetwork && !m.connected {
			m.retained = &next
			m.state = OfflineState(e.Generation)
			return m.state, Masked
		}
		m.state = next
		return m.state, Applied

	case Failed:
		if e.Generation != m.generation {
			return m.state, Stale
		}
		if m.state.Kind != KindLoading {
			return m.state, Masked
		}
		if m.checkNetwork && !m.connected {
			m.state = OfflineState(e.Generation)
			return m.state, Masked
		}
		m.state = ErrorState(e.Generation)
		return m.state, Applied

	case ConnectivityChanged:
		if !m.checkNetwork {
			return m.state, Ignored
		}
		m.connected = e.Status == connectivity.Connected
		if !m.connected && m.state.Kind != KindOffline {
			if m.state.Kind == KindReady {
				prev := m.state
				m.retained = &prev
			}
			m.state = OfflineState(m.state.Generation)
		}
		// Regaining the network never retries on its own.
		return m.state, Applied
	}

	return m.state, Ignored
}
