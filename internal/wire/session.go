package wire

import (
	"slices"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Session holds per-connection state.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	conn *websocket.Conn

	mu           sync.Mutex
	lastActiveAt time.Time
	reports      map[string]bool
}

func newSession(conn *websocket.Conn) *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.New().String(),
		CreatedAt:    now,
		conn:         conn,
		lastActiveAt: now,
		reports:      make(map[string]bool),
	}
}

// Touch updates the last activity timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActiveAt = time.Now()
	s.mu.Unlock()
}

// LastActiveAt returns when the session last received a message.
func (s *Session) LastActiveAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActiveAt
}

// Subscribe marks reportID as watched by the session.
func (s *Session) Subscribe(reportID string) {
	s.mu.Lock()
	s.reports[reportID] = true
	s.mu.Unlock()
}

// Unsubscribe stops watching reportID.
func (s *Session) Unsubscribe(reportID string) {
	s.mu.Lock()
	delete(s.reports, reportID)
	s.mu.Unlock()
}

// Watches reports whether the session is subscribed to reportID.
func (s *Session) Watches(reportID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reports[reportID]
}

// Reports returns the watched report ids, sorted.
func (s *Session) Reports() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.reports))
	for id := range s.reports {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Manager tracks the open sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Create registers a session for conn.
func (m *Manager) Create(conn *websocket.Conn) *Session {
	s := newSession(conn)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get retrieves a session by ID. Returns nil if not found.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// Remove deletes a session.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Watching returns the sessions subscribed to reportID.
func (m *Manager) Watching(reportID string) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Session
	for _, s := range m.sessions {
		if s.Watches(reportID) {
			out = append(out, s)
		}
	}
	return out
}
