package ledger

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryStore keeps records in a bounded LRU for a single process.
// Expiry is not tracked per key: stale days are replaced on the next call
// and removed in bulk by Prune.
type MemoryStore struct {
	mu    sync.Mutex
	cache *lru.Cache[string, Record]
}

func NewMemoryStore(capacity int) (*MemoryStore, error) {
	if capacity <= 0 {
		capacity = 100000
	}
	cache, err := lru.New[string, Record](capacity)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{cache: cache}, nil
}

func (s *MemoryStore) Get(_ context.Context, deviceID string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.cache.Get(deviceID)
	return rec, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, deviceID string, rec Record, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(deviceID, rec)
	return nil
}

func (s *MemoryStore) Increment(_ context.Context, deviceID string, _ time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, _ := s.cache.Get(deviceID)
	rec.Count++
	s.cache.Add(deviceID, rec)
	return rec.Count, nil
}

// Prune drops every record not dated today and returns how many were removed.
func (s *MemoryStore) Prune(today string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, key := range s.cache.Keys() {
		rec, ok := s.cache.Peek(key)
		if ok && rec.Date != today {
			s.cache.Remove(key)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}
