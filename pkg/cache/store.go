package cache

import (
	"context"
	"sync"
	"time"

	"github.com/intentql/intentql-engine/pkg/models"
)

// Store is the backing cache storage. Get returns (nil, nil) on a miss so
// callers can distinguish absence from failure.
type Store interface {
	Get(ctx context.Context, key string) (*models.CacheEntry, error)
	Set(ctx context.Context, entry *models.CacheEntry) error
	Delete(ctx context.Context, key string) error

	// DeleteFunc removes every entry the predicate matches and returns the
	// number removed.
	DeleteFunc(ctx context.Context, match func(*models.CacheEntry) bool) (int, error)
}

// MemoryStore is an in-process Store. Reads and writes may race across
// requests; last write wins, which is safe because entries are idempotent
// for a given key.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*models.CacheEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*models.CacheEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*models.CacheEntry, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if entry.Expired(s.now()) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, nil
	}
	return entry, nil
}

func (s *MemoryStore) Set(_ context.Context, entry *models.CacheEntry) error {
	s.mu.Lock()
	s.entries[entry.Key] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) DeleteFunc(_ context.Context, match func(*models.CacheEntry) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if match(entry) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
