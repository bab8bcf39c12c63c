// Package cache stores embedding vectors keyed by content hash.
package cache

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is how long an embedding stays cached.
const DefaultTTL = 7 * 24 * time.Hour

// Store is an embedding cache. Implementations are safe for concurrent use
// and treat Set as idempotent.
type Store interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32) error
	Close() error
}

type entry struct {
	val []float32
	exp time.Time
}

// Memory is an in-process TTL map.
type Memory struct {
	mu  sync.RWMutex
	m   map[string]entry
	ttl time.Duration
	now func() time.Time
}

// NewMemory returns a Memory cache. ttl <= 0 selects DefaultTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{m: make(map[string]entry), ttl: ttl, now: time.Now}
}

func (c *Memory) Get(_ context.Context, key string) ([]float32, bool, error) {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if c.now().After(e.exp) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return append([]float32(nil), e.val...), true, nil
}

func (c *Memory) Set(_ context.Context, key string, vec []float32) error {
	v := append([]float32(nil), vec...)
	c.mu.Lock()
	c.m[key] = entry{val: v, exp: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

// Len returns the number of entries, expired ones included.
func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

func (c *Memory) Close() error { return nil }
