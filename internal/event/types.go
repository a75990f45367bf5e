package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "run.state", "marker.finished")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeStateChanged   = "run.state"
	TypeGenomeSearched = "genome.searched"
	TypeMarkerFinished = "marker.finished"
	TypeConsensusBuilt = "consensus.built"
	typeWildcard       = "*"
)

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Run Lifecycle Events
// -----------------------------------------------------------------------------

// StateChangedEvent is emitted on every run state transition.
type StateChangedEvent struct {
	baseEvent
	RunID string
	From  string
	To    string
}

// NewStateChangedEvent creates a StateChangedEvent.
func NewStateChangedEvent(runID, from, to string) StateChangedEvent {
	return StateChangedEvent{
		baseEvent: newBaseEvent(TypeStateChanged),
		RunID:     runID,
		From:      from,
		To:        to,
	}
}

// -----------------------------------------------------------------------------
// Unit Events
// -----------------------------------------------------------------------------

// GenomeSearchedEvent is emitted when the profile search of one genome ends.
type GenomeSearchedEvent struct {
	baseEvent
	Genome  string
	Success bool
	Hits    int  // Best hits kept, one per marker
	Cached  bool // The hit table was reused from a previous run
	Reason  string
}

// NewGenomeSearchedEvent creates a GenomeSearchedEvent.
func NewGenomeSearchedEvent(genome string, success bool, hits int, cached bool, reason string) GenomeSearchedEvent {
	return GenomeSearchedEvent{
		baseEvent: newBaseEvent(TypeGenomeSearched),
		Genome:    genome,
		Success:   success,
		Hits:      hits,
		Cached:    cached,
		Reason:    reason,
	}
}

// MarkerFinishedEvent is emitted when the per-marker pipeline of one marker ends.
type MarkerFinishedEvent struct {
	baseEvent
	Marker   string
	Success  bool
	Stage    string // Failing stage; empty on success
	Duration time.Duration
}

// NewMarkerFinishedEvent creates a MarkerFinishedEvent.
func NewMarkerFinishedEvent(marker string, success bool, stage string, d time.Duration) MarkerFinishedEvent {
	return MarkerFinishedEvent{
		baseEvent: newBaseEvent(TypeMarkerFinished),
		Marker:    marker,
		Success:   success,
		Stage:     stage,
		Duration:  d,
	}
}

// -----------------------------------------------------------------------------
// Result Events
// -----------------------------------------------------------------------------

// ConsensusBuiltEvent is emitted once the species tree has been written.
type ConsensusBuiltEvent struct {
	baseEvent
	Strategy string
	Markers  int // Markers contributing to the tree
	Path     string
}

// NewConsensusBuiltEvent creates a ConsensusBuiltEvent.
func NewConsensusBuiltEvent(strategy string, markers int, path string) ConsensusBuiltEvent {
	return ConsensusBuiltEvent{
		baseEvent: newBaseEvent(TypeConsensusBuilt),
		Strategy:  strategy,
		Markers:   markers,
		Path:      path,
	}
}
