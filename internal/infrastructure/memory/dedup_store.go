package memory

import (
	"context"
	"sync"
	"time"
)

// DedupStore is the in-memory counterpart of the redis-backed webhook
// dedup store. TTLs are honored lazily on lookup.
type DedupStore struct {
	mu   sync.Mutex
	keys map[string]time.Time
}

func NewDedupStore() *DedupStore {
	return &DedupStore{keys: make(map[string]time.Time)}
}

func (s *DedupStore) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if expiry, ok := s.keys[key]; ok && now.Before(expiry) {
		return false, nil
	}
	s.keys[key] = now.Add(ttl)
	return true, nil
}
