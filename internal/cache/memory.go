package cache

import (
	"context"

	expirable "github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore is the volatile tier: an in-process map with O(1) operations.
// Capacity and TTL are enforced by the Manager, so the underlying LRU runs
// unbounded with expiry disabled; it is used purely as a concurrency-safe
// ordered map, matching the Manager's own access-time bookkeeping.
type MemoryStore struct {
	lru *expirable.LRU[string, *Entry]
}

// NewMemoryStore creates an empty volatile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lru: expirable.NewLRU[string, *Entry](0, nil, 0),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, bool) {
	return s.lru.Get(key)
}

func (s *MemoryStore) Set(_ context.Context, key string, e *Entry) {
	s.lru.Add(key, e)
}

func (s *MemoryStore) Delete(_ context.Context, key string) bool {
	return s.lru.Remove(key)
}

func (s *MemoryStore) Clear(_ context.Context) {
	s.lru.Purge()
}

func (s *MemoryStore) Keys(_ context.Context) []string {
	return s.lru.Keys()
}

func (s *MemoryStore) Len(_ context.Context) int {
	return s.lru.Len()
}

var _ Store = (*MemoryStore)(nil)
