package eventbuf

import (
	"sort"
	"sync"
)

// Manager holds one buffer per session, created on first use.
type Manager struct {
	mu       sync.RWMutex
	capacity int
	buffers  map[string]*Buffer
}

// NewManager creates a manager whose buffers hold capacity events each.
func NewManager(capacity int) *Manager {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Manager{
		capacity: capacity,
		buffers:  make(map[string]*Buffer),
	}
}

// Get returns the session's buffer, creating it if needed.
func (m *Manager) Get(sessionID string) *Buffer {
	m.mu.RLock()
	b, ok := m.buffers[sessionID]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.buffers[sessionID]; ok {
		return b
	}
	b = New(m.capacity)
	m.buffers[sessionID] = b
	bufferedSessions.Set(float64(len(m.buffers)))
	return b
}

// Lookup returns the session's buffer without creating one.
func (m *Manager) Lookup(sessionID string) (*Buffer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.buffers[sessionID]
	return b, ok
}

// Remove drops the session's buffer. Removing an unknown session is a no-op.
func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buffers, sessionID)
	bufferedSessions.Set(float64(len(m.buffers)))
}

// Sessions returns the ids of sessions with a buffer, sorted.
func (m *Manager) Sessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.buffers))
	for id := range m.buffers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
