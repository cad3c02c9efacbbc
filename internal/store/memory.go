package store

import (
	"context"
	"fmt"
	"sync"

	"synapse/internal/domain"
)

// Compile-time interface checks.
var _ ConfigStore = (*MemoryStore)(nil)
var _ PositionStore = (*MemoryStore)(nil)

// MemoryStore implements ConfigStore and PositionStore in memory. It is the
// backing store for tests, the demo binary, and single-process deployments
// that do not need durability.
type MemoryStore struct {
	mu        sync.RWMutex
	cfg       *domain.MarketConfig
	positions map[uint64]*domain.Position
	byAccount map[string][]uint64
	lastID    uint64
	openCount uint64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		positions: make(map[uint64]*domain.Position),
		byAccount: make(map[string][]uint64),
	}
}

// InitConfig stores the configuration once.
func (s *MemoryStore) InitConfig(_ context.Context, cfg *domain.MarketConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg != nil {
		return domain.ErrAlreadyInitialized
	}
	c := *cfg
	s.cfg = &c
	return nil
}

// Config returns a copy of the stored configuration.
func (s *MemoryStore) Config(_ context.Context) (*domain.MarketConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg == nil {
		return nil, domain.ErrNotInitialized
	}
	c := *s.cfg
	return &c, nil
}

// SetOracleRef updates the oracle reference.
func (s *MemoryStore) SetOracleRef(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == nil {
		return domain.ErrNotInitialized
	}
	s.cfg.OracleRef = ref
	return nil
}

// NextID issues the next position ID, starting at 1.
func (s *MemoryStore) NextID(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID++
	return s.lastID, nil
}

// Put inserts a new position and updates the account index and open counter.
func (s *MemoryStore) Put(_ context.Context, p *domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.positions[p.ID]; exists {
		return fmt.Errorf("position %d already exists", p.ID)
	}
	cp := *p
	s.positions[p.ID] = &cp
	s.byAccount[p.Account] = append(s.byAccount[p.Account], p.ID)
	if p.IsOpen {
		s.openCount++
	}
	return nil
}

// Get returns a copy of the position.
func (s *MemoryStore) Get(_ context.Context, id uint64) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[id]
	if !ok {
		return nil, domain.ErrPositionNotFound
	}
	cp := *p
	return &cp, nil
}

// ListForAccount returns the account's position IDs in insertion order.
func (s *MemoryStore) ListForAccount(_ context.Context, account string) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byAccount[account]
	out := make([]uint64, len(ids))
	copy(out, ids)
	return out, nil
}

// OpenCount returns the incrementally maintained open-position counter.
func (s *MemoryStore) OpenCount(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.openCount, nil
}

// MarkClosed flips the position to closed; only the first caller for a
// given ID succeeds.
func (s *MemoryStore) MarkClosed(_ context.Context, id uint64) (*domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[id]
	if !ok || !p.IsOpen {
		return nil, domain.ErrPositionNotFound
	}
	snapshot := *p
	p.IsOpen = false
	s.openCount--
	return &snapshot, nil
}

// ListOpen returns all open positions in ID order.
func (s *MemoryStore) ListOpen(_ context.Context) ([]domain.Position, error) {
	return s.list(true)
}

// ListClosed returns all closed positions in ID order.
func (s *MemoryStore) ListClosed(_ context.Context) ([]domain.Position, error) {
	return s.list(false)
}

func (s *MemoryStore) list(open bool) ([]domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Position
	for id := uint64(1); id <= s.lastID; id++ {
		if p, ok := s.positions[id]; ok && p.IsOpen == open {
			out = append(out, *p)
		}
	}
	return out, nil
}
