// Package lock provides per-tenant mutual exclusion for poll cycles.
//
// A tenant's processing takes its lock with try-semantics: when a previous,
// overlapping cycle still holds it, the tenant is skipped instead of queued.
package lock

import (
	"context"
	"sync"
)

// Memory is an in-process lock table, suitable for a single replica.
type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{held: make(map[string]struct{})}
}

// TryLock acquires tenantID's lock if free. The returned release func is
// idempotent.
func (m *Memory) TryLock(_ context.Context, tenantID string) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.held[tenantID]; ok {
		return nil, false, nil
	}
	m.held[tenantID] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, tenantID)
			m.mu.Unlock()
		})
	}
	return release, true, nil
}
