package account

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for tests and the demo command.
type MemoryStore struct {
	mu        sync.Mutex
	balances  map[string]int64
	blacklist map[string]bool
}

// NewMemoryStore creates a MemoryStore populated with the given seed.
func NewMemoryStore(seed Seed) *MemoryStore {
	balances := make(map[string]int64, len(seed.Balances))
	for id, b := range seed.Balances {
		balances[id] = b
	}
	blacklist := make(map[string]bool, len(seed.Blacklist))
	for _, id := range seed.Blacklist {
		blacklist[id] = true
	}
	return &MemoryStore{balances: balances, blacklist: blacklist}
}

func (s *MemoryStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.balances[id]
	return ok, nil
}

func (s *MemoryStore) Balance(ctx context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[id]
	if !ok {
		return 0, fmt.Errorf("account: balance %s: %w", id, ErrNotFound)
	}
	return b, nil
}

func (s *MemoryStore) SetBalance(ctx context.Context, id string, balance int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.balances[id]; !ok {
		return fmt.Errorf("account: set balance %s: %w", id, ErrNotFound)
	}
	s.balances[id] = balance
	return nil
}

func (s *MemoryStore) IsBlacklisted(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blacklist[id], nil
}

func (s *MemoryStore) ListAccounts(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.balances))
	for id := range s.balances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Transfer moves funds under one lock acquisition, so the debit and
// credit are never observable separately.
func (s *MemoryStore) Transfer(ctx context.Context, from, to string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fromBalance, ok := s.balances[from]
	if !ok {
		return fmt.Errorf("account: transfer from %s: %w", from, ErrNotFound)
	}
	if _, ok := s.balances[to]; !ok {
		return fmt.Errorf("account: transfer to %s: %w", to, ErrNotFound)
	}
	if fromBalance < amount {
		return fmt.Errorf("account: transfer from %s: balance %d below amount %d",
			from, fromBalance, amount)
	}

	s.balances[from] -= amount
	s.balances[to] += amount
	return nil
}
