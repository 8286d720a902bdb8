package workqueue

import "sync"

// Manager maps symbols to priority levels, decoupling urgency assignment
// from queue mechanics. Unknown symbols default to MEDIUM.
type Manager struct {
	mu     sync.RWMutex
	levels map[string]Priority
}

// NewManager creates an empty priority manager.
func NewManager() *Manager {
	return &Manager{levels: make(map[string]Priority)}
}

// SetPriority assigns a symbol's level.
func (m *Manager) SetPriority(symbol string, p Priority) {
	m.mu.Lock()
	m.levels[symbol] = p
	m.mu.Unlock()
}

// PriorityFor returns the symbol's level, defaulting to MEDIUM.
func (m *Manager) PriorityFor(symbol string) Priority {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.levels[symbol]; ok {
		return p
	}
	return PriorityMedium
}

// Snapshot returns a copy of all explicit assignments.
func (m *Manager) Snapshot() map[string]Priority {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Priority, len(m.levels))
	for sym, p := range m.levels {
		out[sym] = p
	}
	return out
}
