package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/pvieira/imsgd/internal/bus"
)

// State represents a daemon runtime state.
type State string

const (
	// Booting covers process startup before any check has run.
	Booting State = "BOOTING"
	// Starting means the Messages database and scripting access are
	// being verified.
	Starting State = "STARTING"
	// Watching is normal operation: the filesystem watcher is live and
	// poll passes run on change.
	Watching State = "WATCHING"
	// Degraded means poll passes are failing but the watcher still runs;
	// the daemon recovers on its own when the database cooperates again.
	Degraded State = "DEGRADED"
	Stopping State = "STOPPING"
	Error    State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:  {Starting, Error},
	Starting: {Watching, Error},
	Watching: {Degraded, Stopping, Error},
	Degraded: {Watching, Stopping, Error},
	Stopping: {},
	Error:    {Booting},
}

// Machine tracks and enforces daemon runtime state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
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
		m.bus.Publish(bus.New("daemon.status_changed", StatusChange{
			From: from,
			To:   to,
		}))
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
