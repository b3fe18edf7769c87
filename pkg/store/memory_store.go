package store

import (
	"context"
	"sort"
	"sync"

	"github.com/yashannadate/stellar-pay/pkg/contracts"
)

// MemoryStore implements Store in process memory. It is safe for concurrent
// use and never shares slices with callers.
type MemoryStore struct {
	mu        sync.RWMutex
	count     uint32
	proposals map[uint32]*contracts.Proposal
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		proposals: make(map[uint32]*contracts.Proposal),
	}
}

func (s *MemoryStore) Count(ctx context.Context) (uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count, nil
}

func (s *MemoryStore) Create(ctx context.Context, p *contracts.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID != s.count+1 {
		return ErrConflict
	}
	if _, exists := s.proposals[p.ID]; exists {
		return ErrConflict
	}
	s.proposals[p.ID] = p.Clone()
	s.count = p.ID
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uint32) (*contracts.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proposals[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) Put(ctx context.Context, p *contracts.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.proposals[p.ID]; !ok {
		return ErrNotFound
	}
	s.proposals[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*contracts.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*contracts.Proposal, 0, len(s.proposals))
	for _, p := range s.proposals {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
