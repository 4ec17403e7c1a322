package audit

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory audit trail for databaseless runs and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemoryStore constructs an empty in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// AppendEvent records an audit event.
func (m *MemoryStore) AppendEvent(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// ListRecentEvents returns the newest events of the given kind, newest first.
// An empty kind matches all events.
func (m *MemoryStore) ListRecentEvents(_ context.Context, kind Kind, limit int) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]Event, 0, limit)
	for i := len(m.events) - 1; i >= 0 && len(events) < limit; i-- {
		if kind == "" || m.events[i].Kind == kind {
			events = append(events, m.events[i])
		}
	}
	return events, nil
}

var _ Store = (*MemoryStore)(nil)
