package session

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps sessions in process memory. It is safe for concurrent
// use; Consume holds the store lock across read and delete so two payloads
// racing for the same session cannot both obtain it.
type MemoryStore struct {
	mu    sync.Mutex
	cache *cache.Cache
}

// NewMemoryStore returns an in-memory store. ttl <= 0 disables expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	exp, cleanup := cache.NoExpiration, time.Duration(0)
	if ttl > 0 {
		exp, cleanup = ttl, ttl
	}
	return &MemoryStore{cache: cache.New(exp, cleanup)}
}

// Open implements Store.
func (s *MemoryStore) Open(_ context.Context, senderID int64, p Pending) error {
	s.mu.Lock()
	s.cache.Set(senderKey(senderID), p, cache.DefaultExpiration)
	s.mu.Unlock()
	return nil
}

// Consume implements Store.
func (s *MemoryStore) Consume(_ context.Context, senderID int64) (Pending, bool, error) {
	key := senderKey(senderID)

	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cache.Get(key)
	if !ok {
		return Pending{}, false, nil
	}
	s.cache.Delete(key)
	p, ok := v.(Pending)
	return p, ok, nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context, senderID int64) error {
	s.mu.Lock()
	s.cache.Delete(senderKey(senderID))
	s.mu.Unlock()
	return nil
}

// Len reports the number of pending sessions.
func (s *MemoryStore) Len() int {
	return s.cache.ItemCount()
}
