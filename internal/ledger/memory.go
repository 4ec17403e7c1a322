package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used when no database is configured and
// throughout the test suites.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryStore constructs an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// AppendSpend records an executed spend.
func (m *MemoryStore) AppendSpend(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

// SumSpentBetween totals spends with from <= recorded_at < to.
func (m *MemoryStore) SumSpentBetween(_ context.Context, from, to time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, e := range m.entries {
		if inWindow(e.RecordedAt, from, to) {
			total += e.AmountSats
		}
	}
	return total, nil
}

// SumSpentToBetween totals spends to a destination within the window.
func (m *MemoryStore) SumSpentToBetween(_ context.Context, destination string, from, to time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, e := range m.entries {
		if e.Destination == destination && inWindow(e.RecordedAt, from, to) {
			total += e.AmountSats
		}
	}
	return total, nil
}

// ListSpendsBetween returns entries within the window ordered by time.
func (m *MemoryStore) ListSpendsBetween(_ context.Context, from, to time.Time) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]Entry, 0)
	for _, e := range m.entries {
		if inWindow(e.RecordedAt, from, to) {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].RecordedAt.Before(entries[j].RecordedAt) })
	return entries, nil
}

func inWindow(at, from, to time.Time) bool {
	return !at.Before(from) && at.Before(to)
}

var _ Store = (*MemoryStore)(nil)
