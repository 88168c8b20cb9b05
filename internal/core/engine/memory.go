package engine

import (
	"context"
	"sync"

	"github.com/greater-social/greater/internal/core"
)

// MemoryStore keeps rate limit state in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	state map[string]core.RateLimitState
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: make(map[string]core.RateLimitState)}
}

func (m *MemoryStore) GetRateLimit(ctx context.Context, key string) (*core.RateLimitState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.state[key]
	if !ok {
		return nil, nil
	}
	return &val, nil
}

func (m *MemoryStore) UpdateRateLimit(ctx context.Context, key string, state *core.RateLimitState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		m.state = make(map[string]core.RateLimitState)
	}
	m.state[key] = *state
	return nil
}

func (m *MemoryStore) DeleteRateLimit(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state, key)
	return nil
}

func (m *MemoryStore) ClearRateLimits(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = make(map[string]core.RateLimitState)
	return nil
}
