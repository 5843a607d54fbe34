package cache

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// HybridStore layers a volatile tier over a durable tier. Reads check the
// volatile tier first and promote durable hits into it. Writes fan out to
// both tiers concurrently with no cross-tier rollback: the tiers may
// transiently disagree, and the next read reconciles them via promotion or
// overwrite.
type HybridStore struct {
	fast *MemoryStore
	slow Store
}

// NewHybridStore creates a two-tier store over the given durable tier.
func NewHybridStore(durable Store) *HybridStore {
	return &HybridStore{fast: NewMemoryStore(), slow: durable}
}

func (s *HybridStore) Get(ctx context.Context, key string) (*Entry, bool) {
	if e, ok := s.fast.Get(ctx, key); ok {
		return e, true
	}
	e, ok := s.slow.Get(ctx, key)
	if !ok {
		return nil, false
	}
	// Promote so the next read never touches the durable tier.
	s.fast.Set(ctx, key, e)
	return e, true
}

func (s *HybridStore) Set(ctx context.Context, key string, e *Entry) {
	var g errgroup.Group
	g.Go(func() error { s.fast.Set(ctx, key, e); return nil })
	g.Go(func() error { s.slow.Set(ctx, key, e); return nil })
	g.Wait()
}

func (s *HybridStore) Delete(ctx context.Context, key string) bool {
	var fastOK, slowOK bool
	var g errgroup.Group
	g.Go(func() error { fastOK = s.fast.Delete(ctx, key); return nil })
	g.Go(func() error { slowOK = s.slow.Delete(ctx, key); return nil })
	g.Wait()
	return fastOK || slowOK
}

func (s *HybridStore) Clear(ctx context.Context) {
	var g errgroup.Group
	g.Go(func() error { s.fast.Clear(ctx); return nil })
	g.Go(func() error { s.slow.Clear(ctx); return nil })
	g.Wait()
}

// Keys returns the set union of both tiers.
func (s *HybridStore) Keys(ctx context.Context) []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, k := range s.fast.Keys(ctx) {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	for _, k := range s.slow.Keys(ctx) {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys
}

func (s *HybridStore) Len(ctx context.Context) int {
	return len(s.Keys(ctx))
}

var _ Store = (*HybridStore)(nil)
