package orchestrator

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Iron-Ham/phyling/internal/errors"
	"github.com/Iron-Ham/phyling/internal/event"
)

// State is a step of the run lifecycle.
type State string

const (
	StateLoaded         State = "LOADED"
	StateSearched       State = "SEARCHED"
	StateAggregated     State = "AGGREGATED"
	StatePerMarkerDone  State = "PER_MARKER_DONE"
	StateConsensusBuilt State = "CONSENSUS_BUILT"
	StateReported       State = "REPORTED"
	StateFailed         State = "FAILED"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// IsTerminal returns true if no transition leaves this state.
func (s State) IsTerminal() bool {
	return s == StateReported || s == StateFailed
}

// ValidTransitions defines which state transitions are allowed.
var ValidTransitions = map[State][]State{
	StateLoaded:         {StateSearched, StateFailed},
	StateSearched:       {StateAggregated, StateFailed},
	StateAggregated:     {StatePerMarkerDone, StateFailed},
	StatePerMarkerDone:  {StateConsensusBuilt, StateFailed},
	StateConsensusBuilt: {StateReported, StateFailed},

	// Terminal states: no transitions out
	StateReported: {},
	StateFailed:   {},
}

// CanTransition checks whether a transition from one state to another is
// valid according to the ValidTransitions map.
func CanTransition(from, to State) bool {
	targets, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	return slices.Contains(targets, to)
}

// Transition records one state change.
type Transition struct {
	From State
	To   State
	At   time.Time
}

// machine tracks the run state and publishes every change.
type machine struct {
	mu      sync.Mutex
	runID   string
	state   State
	history []Transition
	bus     *event.Bus
}

func newMachine(runID string, bus *event.Bus) *machine {
	m := &machine{runID: runID, state: StateLoaded, bus: bus}
	m.history = append(m.history, Transition{To: StateLoaded, At: time.Now().UTC()})
	bus.Publish(event.NewStateChangedEvent(runID, "", string(StateLoaded)))
	return m
}

// to moves the machine to next. An illegal transition is a programming
// error and leaves the state unchanged.
func (m *machine) to(next State) error {
	m.mu.Lock()
	from := m.state
	if !CanTransition(from, next) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", errors.ErrInvalidTransition, from, next)
	}
	m.state = next
	m.history = append(m.history, Transition{From: from, To: next, At: time.Now().UTC()})
	m.mu.Unlock()

	m.bus.Publish(event.NewStateChangedEvent(m.runID, string(from), string(next)))
	return nil
}

func (m *machine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *machine) transitions() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.history)
}
