package profiler

import (
	"sync"
	"time"
)

// SessionState is the lifecycle state of a profiler session.
// Transitions happen only on peer notification, never by client
// inference.
type SessionState int

const (
	StateNotStarted SessionState = iota
	StateCreating
	StateRunning
	StatePaused
	StateStopped
	StateFailed
)

// String serializes the state in the wire form used by the tool
// surface.
func (s SessionState) String() string {
	switch s {
	case StateCreating:
		return "creating"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "notStarted"
	}
}

// ParseSessionState maps a wire state string back to a SessionState.
// Unrecognized strings map to StateNotStarted.
func ParseSessionState(s string) SessionState {
	switch s {
	case "creating":
		return StateCreating
	case "running":
		return StateRunning
	case "paused":
		return StatePaused
	case "stopped":
		return StateStopped
	case "failed":
		return StateFailed
	default:
		return StateNotStarted
	}
}

// Session is one active or historical profiling session: metadata,
// lifecycle state, and an owned event ring.
type Session struct {
	ID           string
	Name         string
	TemplateName string
	OwnerURI     string
	CreatedAt    time.Time

	mu          sync.Mutex
	state       SessionState
	buffer      *EventBuffer
	eventCount  uint64
	nextEventID int64
}

// SessionDescriptor carries the peer's session-created payload.
type SessionDescriptor struct {
	ID             string
	Name           string
	TemplateName   string
	OwnerURI       string
	State          SessionState
	BufferCapacity int
}

func newSession(desc SessionDescriptor, now time.Time) *Session {
	return &Session{
		ID:           desc.ID,
		Name:         desc.Name,
		TemplateName: desc.TemplateName,
		OwnerURI:     desc.OwnerURI,
		CreatedAt:    now,
		state:        desc.State,
		buffer:       NewEventBuffer(desc.BufferCapacity),
		nextEventID:  1,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState applies a peer-notified state transition.
func (s *Session) SetState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// EventCount returns the cumulative number of events ever ingested,
// independent of buffer retention.
func (s *Session) EventCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventCount
}

// BufferCapacity returns the session's fixed ring capacity.
func (s *Session) BufferCapacity() int {
	return s.buffer.Capacity()
}

// Ingest assigns the next event id and appends the row, evicting the
// oldest retained row if the ring is full.
func (s *Session) Ingest(row EventRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row.ID = s.nextEventID
	s.nextEventID++
	s.buffer.Append(row)
	s.eventCount++
}

// Snapshot returns an isolated copy of the retained rows in ascending
// id order.
func (s *Session) Snapshot() []EventRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.Snapshot()
}
