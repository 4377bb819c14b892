package indexer

import "sync"

// scopeLocks serializes indexing runs per (tenant, tag) scope. Locks are
// created on demand and never discarded; the scope cardinality is bounded
// by tenants x tags, so the map stays small.
type scopeLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newScopeLocks() *scopeLocks {
	return &scopeLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for the scope and returns its unlock func.
func (s *scopeLocks) lock(scope string) func() {
	s.mu.Lock()
	m, ok := s.locks[scope]
	if !ok {
		m = &sync.Mutex{}
		s.locks[scope] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}
