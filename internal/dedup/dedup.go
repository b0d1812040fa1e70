package dedup

import (
	"context"
	"sync"
	"time"
)

// Store records which alert keys were already emitted. Exists must be a
// point lookup; implementations that persist must survive restarts.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key string, at time.Time) error
}

// Memory is an in-process Store. It does not survive restarts and is meant
// for tests and one-shot runs.
type Memory struct {
	mu      sync.RWMutex
	markers map[string]time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{markers: make(map[string]time.Time)}
}

func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.markers[key]
	return ok, nil
}

func (m *Memory) Set(ctx context.Context, key string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.markers[key]; !ok {
		m.markers[key] = at
	}
	return nil
}

// Prune drops markers set before cutoff and returns how many were removed.
func (m *Memory) Prune(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, at := range m.markers {
		if at.Before(cutoff) {
			delete(m.markers, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored markers.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.markers)
}
