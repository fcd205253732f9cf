package cache

import (
	"strings"
	"sync"
)

// MemoryStore is the in-process backend used by tests and as a
// fallback when no durable store is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	// Copy so callers never alias the stored slice.
	out := make([]byte, len(data))
	copy(out, data)
	return out, true
}

func (s *MemoryStore) Put(key string, data []byte) error {
	stored := make([]byte, len(data))
	copy(stored, data)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = stored
	return nil
}

func (s *MemoryStore) Clear(prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
		}
	}
	return nil
}
