package cache

import (
	"context"
	"sort"
	"sync/atomic"
	"testing"
	"time"
)

// spyStore wraps a Store and counts calls into it.
type spyStore struct {
	inner   Store
	gets    atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
}

func newSpyStore() *spyStore {
	return &spyStore{inner: NewMemoryStore()}
}

func (s *spyStore) Get(ctx context.Context, key string) (*Entry, bool) {
	s.gets.Add(1)
	return s.inner.Get(ctx, key)
}

func (s *spyStore) Set(ctx context.Context, key string, e *Entry) {
	s.sets.Add(1)
	s.inner.Set(ctx, key, e)
}

func (s *spyStore) Delete(ctx context.Context, key string) bool {
	s.deletes.Add(1)
	return s.inner.Delete(ctx, key)
}

func (s *spyStore) Clear(ctx context.Context)         { s.inner.Clear(ctx) }
func (s *spyStore) Keys(ctx context.Context) []string { return s.inner.Keys(ctx) }
func (s *spyStore) Len(ctx context.Context) int       { return s.inner.Len(ctx) }

func TestHybridStore_PromotionSkipsDurableTier(t *testing.T) {
	ctx := context.Background()
	spy := newSpyStore()
	h := NewHybridStore(spy)

	// Seed the durable tier only, simulating a restart that lost the
	// volatile tier.
	spy.inner.Set(ctx, "k1", testEntry("k1", "v1", time.Now()))

	if _, ok := h.Get(ctx, "k1"); !ok {
		t.Fatal("expected durable-tier hit")
	}
	if got := spy.gets.Load(); got != 1 {
		t.Fatalf("expected 1 durable get, got %d", got)
	}

	// Promoted: the second read must not touch the durable tier.
	if _, ok := h.Get(ctx, "k1"); !ok {
		t.Fatal("expected volatile-tier hit after promotion")
	}
	if got := spy.gets.Load(); got != 1 {
		t.Errorf("expected promotion to absorb the second read, durable gets = %d", got)
	}
}

func TestHybridStore_SetWritesBothTiers(t *testing.T) {
	ctx := context.Background()
	spy := newSpyStore()
	h := NewHybridStore(spy)

	h.Set(ctx, "k1", testEntry("k1", "v1", time.Now()))

	if got := spy.sets.Load(); got != 1 {
		t.Errorf("expected durable write, got %d", got)
	}
	if _, ok := h.fast.Get(ctx, "k1"); !ok {
		t.Error("expected volatile write")
	}
}

func TestHybridStore_DeleteBothTiers(t *testing.T) {
	ctx := context.Background()
	spy := newSpyStore()
	h := NewHybridStore(spy)

	h.Set(ctx, "k1", testEntry("k1", "v1", time.Now()))
	if !h.Delete(ctx, "k1") {
		t.Fatal("expected delete to report presence")
	}
	if _, ok := h.Get(ctx, "k1"); ok {
		t.Error("expected miss from both tiers after delete")
	}
	if _, ok := spy.inner.Get(ctx, "k1"); ok {
		t.Error("expected durable tier cleared")
	}
}

func TestHybridStore_KeysUnion(t *testing.T) {
	ctx := context.Background()
	spy := newSpyStore()
	h := NewHybridStore(spy)
	now := time.Now()

	// One key only volatile, one only durable, one in both.
	h.fast.Set(ctx, "fast", testEntry("fast", "1", now))
	spy.inner.Set(ctx, "slow", testEntry("slow", "2", now))
	h.Set(ctx, "both", testEntry("both", "3", now))

	keys := h.Keys(ctx)
	sort.Strings(keys)
	want := []string{"both", "fast", "slow"}
	if len(keys) != len(want) {
		t.Fatalf("expected %v, got %v", want, keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, keys)
		}
	}
	if h.Len(ctx) != 3 {
		t.Errorf("expected union len 3, got %d", h.Len(ctx))
	}
}
