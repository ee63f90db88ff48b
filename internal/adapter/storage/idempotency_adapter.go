package storage

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LocalIdempotencyStore keeps idempotency keys in a bounded expiring LRU.
// It is used when no Redis address is configured.
type LocalIdempotencyStore struct {
	mu   sync.Mutex
	keys *expirable.LRU[string, struct{}]
}

func NewLocalIdempotencyStore(size int, ttl time.Duration) *LocalIdempotencyStore {
	return &LocalIdempotencyStore{
		keys: expirable.NewLRU[string, struct{}](size, nil, ttl),
	}
}

func (s *LocalIdempotencyStore) SetIdempotency(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys.Get(key); ok {
		return false, nil
	}
	s.keys.Add(key, struct{}{})
	return true, nil
}
