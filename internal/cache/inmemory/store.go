// Package inmemory is a process-local cache.Store.
package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/dvloznov/moneychat-nlp/internal/cache"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// Store is an in-memory implementation of cache.Store.
// It is safe for concurrent use. Entries are lost on restart.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get implements cache.Store. Expired entries are evicted on read.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return "", false, nil
	}

	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		s.mu.Lock()
		if cur, ok := s.entries[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return "", false, nil
	}

	return e.value, true, nil
}

// Set implements cache.Store. A non-positive ttl stores the value without expiry.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = e
	return nil
}

// Len returns the number of stored entries, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Ensure Store implements cache.Store interface.
var _ cache.Store = (*Store)(nil)
