package host

import (
	"context"
	"sort"
	"sync"
)

// MemoryCaches is a process-local CacheStorage. Cache names come back in
// insertion order, requests sorted.
type MemoryCaches struct {
	mu     sync.RWMutex
	order  []string
	caches map[string][]string
}

// NewMemoryCaches creates empty storage.
func NewMemoryCaches() *MemoryCaches {
	return &MemoryCaches{caches: make(map[string][]string)}
}

// Put implements CacheWriter. Duplicate requests are ignored.
func (m *MemoryCaches) Put(_ context.Context, name, request string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	reqs, ok := m.caches[name]
	if !ok {
		m.order = append(m.order, name)
	}
	for _, r := range reqs {
		if r == request {
			return nil
		}
	}
	m.caches[name] = append(reqs, request)
	return nil
}

// Keys implements CacheStorage.
func (m *MemoryCaches) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...), nil
}

// Requests implements CacheStorage. Unknown caches yield an empty list.
func (m *MemoryCaches) Requests(_ context.Context, name string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reqs := append([]string(nil), m.caches[name]...)
	sort.Strings(reqs)
	return reqs, nil
}
