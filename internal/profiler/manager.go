package profiler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/remora-db/remora/internal/constants"
)

// SessionManager is the registry of active sessions, keyed by the
// peer-issued session id. It routes inbound trace events into the
// correct session's buffer.
type SessionManager struct {
	logger zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session

	// defaultBufferCapacity applies when the peer's session descriptor
	// does not carry a capacity.
	defaultBufferCapacity int

	// Diagnostics counters. Event ingestion is on a hot path driven by
	// the peer, so protocol anomalies are counted and logged rather
	// than raised.
	droppedEvents          uint64
	duplicateRegistrations uint64
}

// NewSessionManager creates an empty session registry.
func NewSessionManager(logger zerolog.Logger) *SessionManager {
	return &SessionManager{
		logger:                logger.With().Str("component", "profiler_sessions").Logger(),
		sessions:              make(map[string]*Session),
		defaultBufferCapacity: constants.DefaultSessionBufferCapacity,
	}
}

// SetDefaultBufferCapacity overrides the fallback ring capacity for
// sessions whose descriptor omits one.
func (m *SessionManager) SetDefaultBufferCapacity(capacity int) {
	if capacity < 1 {
		return
	}
	m.mu.Lock()
	m.defaultBufferCapacity = capacity
	m.mu.Unlock()
}

// RegisterSession creates and indexes a new session from the peer's
// descriptor. A duplicate id is a protocol violation: the existing
// session (and its buffer) is kept, the registration is rejected, and
// the violation is logged and counted. Last-wins would silently
// orphan a live event buffer.
func (m *SessionManager) RegisterSession(desc SessionDescriptor) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if desc.BufferCapacity <= 0 {
		desc.BufferCapacity = m.defaultBufferCapacity
	}

	if _, exists := m.sessions[desc.ID]; exists {
		m.duplicateRegistrations++
		m.logger.Warn().
			Str("session_id", desc.ID).
			Str("session_name", desc.Name).
			Msg("Rejected duplicate session registration")
		return nil, fmt.Errorf("session already registered: %s", desc.ID)
	}

	session := newSession(desc, time.Now())
	m.sessions[desc.ID] = session

	m.logger.Info().
		Str("session_id", desc.ID).
		Str("session_name", desc.Name).
		Str("template", desc.TemplateName).
		Int("buffer_capacity", desc.BufferCapacity).
		Msg("Profiler session registered")

	return session, nil
}

// IngestEvent appends a trace event to the identified session's
// buffer. Events for unknown sessions are dropped with a diagnostic;
// this path must never panic or error since a crash here would sever
// the trace stream.
func (m *SessionManager) IngestEvent(sessionID string, row EventRow) {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if !ok {
		m.droppedEvents++
		dropped := m.droppedEvents
		m.mu.Unlock()
		m.logger.Warn().
			Str("session_id", sessionID).
			Uint64("dropped_total", dropped).
			Msg("Dropped event for unknown session")
		return
	}
	m.mu.Unlock()

	session.Ingest(row)
}

// GetSession returns the session for an id, or nil when unknown.
func (m *SessionManager) GetSession(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// Sessions returns all registered sessions ordered by id.
func (m *SessionManager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RemoveSession tears down a session entry. Buffer contents are
// discarded with it; any in-flight snapshot already taken stays
// valid. Subsequent ingests for the id behave as unknown-session.
func (m *SessionManager) RemoveSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	m.logger.Info().Str("session_id", id).Msg("Profiler session removed")
	return true
}

// DroppedEvents reports how many events were dropped for unknown
// session ids.
func (m *SessionManager) DroppedEvents() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.droppedEvents
}

// DuplicateRegistrations reports how many session registrations were
// rejected as duplicates.
func (m *SessionManager) DuplicateRegistrations() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duplicateRegistrations
}
