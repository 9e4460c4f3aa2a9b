package storage

import (
	"context"
	"sync"

	"veritas-hq/warden/pkg/audit"
)

// MemoryStore keeps mirrored entries in memory. Intended for tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*audit.Entry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Store appends a copy of the entry.
func (s *MemoryStore) Store(ctx context.Context, entry *audit.Entry) error {
	copied := *entry
	if entry.Details != nil {
		copied.Details = make(map[string]string, len(entry.Details))
		for k, v := range entry.Details {
			copied.Details[k] = v
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, &copied)
	return nil
}

// Entries returns the stored entries in arrival order.
func (s *MemoryStore) Entries() []*audit.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*audit.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
