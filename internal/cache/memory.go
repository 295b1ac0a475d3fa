package cache

import (
	"context"
	"sync"

	"property-hub/internal/models"
)

type memoryKey struct {
	addr   string
	source models.SourceID
}

// MemoryStore keeps entries in process memory
type MemoryStore struct {
	opts    Options
	mu      sync.RWMutex
	entries map[memoryKey]models.CacheEntry
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		opts:    opts.withDefaults(),
		entries: make(map[memoryKey]models.CacheEntry),
	}
}

func (s *MemoryStore) Get(_ context.Context, addr models.Address, source models.SourceID) (*models.CacheEntry, bool) {
	s.mu.RLock()
	e, ok := s.entries[memoryKey{addr.Key(), source}]
	s.mu.RUnlock()

	if !ok || e.Expired(s.opts.Now(), s.opts.TTL) {
		return nil, false
	}
	return &e, true
}

func (s *MemoryStore) Set(_ context.Context, addr models.Address, source models.SourceID, data models.RawResult) error {
	e := models.CacheEntry{
		Data:      data,
		Timestamp: s.opts.Now(),
		Address:   addr,
		Source:    source,
	}

	s.mu.Lock()
	s.entries[memoryKey{addr.Key(), source}] = e
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Has(ctx context.Context, addr models.Address, source models.SourceID) bool {
	_, ok := s.Get(ctx, addr, source)
	return ok
}

func (s *MemoryStore) Delete(_ context.Context, addr models.Address, source models.SourceID) error {
	s.mu.Lock()
	delete(s.entries, memoryKey{addr.Key(), source})
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	s.entries = make(map[memoryKey]models.CacheEntry)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ClearExpired(context.Context) (int, error) {
	now := s.opts.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, e := range s.entries {
		if e.Expired(now, s.opts.TTL) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored entries, fresh or not
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
