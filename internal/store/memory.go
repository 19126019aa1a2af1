package store

import (
	"context"
	"sync"

	"dex_trader/internal/core"
)

// MemoryStore keeps the fill history in memory. Used for paper trading and
// tests, where durability across restarts is not wanted.
type MemoryStore struct {
	mu    sync.Mutex
	fills []*core.Fill
}

// NewMemoryStore creates an empty in-memory fill store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// SaveFill appends one fill.
func (s *MemoryStore) SaveFill(_ context.Context, fill *core.Fill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *fill
	s.fills = append(s.fills, &cp)
	return nil
}

// LoadFills returns the history in append order.
func (s *MemoryStore) LoadFills(_ context.Context) ([]*core.Fill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*core.Fill, len(s.fills))
	copy(out, s.fills)
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
