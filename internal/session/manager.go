package session

import (
	"sync"
	"time"

	"github.com/instrolab/lims-portal-api/internal/models"
	appErrors "github.com/instrolab/lims-portal-api/pkg/errors"
)

// Manager is the in-memory registry of open intake sessions. Sessions
// never survive a gateway restart; resuming goes through the draft
// entry protocol instead.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager returns an empty registry.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Put registers a session under its id.
func (m *Manager) Put(s *Session) {
	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
}

// Get looks a session up and refreshes its idle clock.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "intake session not found")
	}
	s.Touch()
	return s, nil
}

// GetOwned is Get plus an ownership check: only the staff member who
// opened a session may operate on it.
func (m *Manager) GetOwned(id string, actor models.StaffActor) (*Session, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if s.Owner().UserID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "session belongs to another user")
	}
	return s, nil
}

// Remove deregisters a session, reporting whether it was present.
func (m *Manager) Remove(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	return s, ok
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CollectIdle removes and returns sessions inactive for longer than
// maxIdle so the caller can tear them down.
func (m *Manager) CollectIdle(maxIdle time.Duration) []*Session {
	cutoff := time.Now().UTC().Add(-maxIdle)

	m.mu.Lock()
	defer m.mu.Unlock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.IdleSince().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	return idle
}

// Drain removes and returns every session, used at shutdown.
func (m *Manager) Drain() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	return all
}
