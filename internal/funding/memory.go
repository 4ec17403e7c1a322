package funding

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is the in-process proposal store used when no database is
// configured, and by tests.
type MemoryStore struct {
	mu        sync.RWMutex
	proposals map[string]Proposal
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{proposals: make(map[string]Proposal)}
}

// SaveProposal inserts or replaces a proposal.
func (s *MemoryStore) SaveProposal(_ context.Context, p Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals[p.ID] = p
	return nil
}

// GetProposal returns one proposal or ErrNotFound.
func (s *MemoryStore) GetProposal(_ context.Context, id string) (Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.proposals[id]
	if !ok {
		return Proposal{}, ErrNotFound
	}
	return p, nil
}

// ListProposals returns all proposals, newest first.
func (s *MemoryStore) ListProposals(_ context.Context) ([]Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Proposal, 0, len(s.proposals))
	for _, p := range s.proposals {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
