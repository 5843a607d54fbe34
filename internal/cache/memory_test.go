package cache

import (
	"context"
	"testing"
	"time"
)

func testEntry(key, value string, now time.Time) *Entry {
	return &Entry{
		Key:            key,
		Value:          []byte(value),
		WrittenAt:      now,
		TTL:            time.Minute,
		SizeBytes:      int64(len(value)),
		LastAccessedAt: now,
	}
}

func TestMemoryStore_GetSet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	if _, ok := s.Get(ctx, "missing"); ok {
		t.Fatal("expected miss on empty store")
	}

	s.Set(ctx, "k1", testEntry("k1", "v1", now))
	got, ok := s.Get(ctx, "k1")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(got.Value) != "v1" {
		t.Errorf("expected v1, got %s", got.Value)
	}
}

func TestMemoryStore_Overwrite(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	s.Set(ctx, "k1", testEntry("k1", "old", now))
	s.Set(ctx, "k1", testEntry("k1", "new", now))

	got, ok := s.Get(ctx, "k1")
	if !ok || string(got.Value) != "new" {
		t.Errorf("expected new value, got %v %v", got, ok)
	}
	if s.Len(ctx) != 1 {
		t.Errorf("expected 1 entry, got %d", s.Len(ctx))
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Set(ctx, "k1", testEntry("k1", "v1", time.Now()))
	if !s.Delete(ctx, "k1") {
		t.Error("expected delete to report presence")
	}
	if s.Delete(ctx, "k1") {
		t.Error("expected second delete to report absence")
	}
	if _, ok := s.Get(ctx, "k1"); ok {
		t.Error("expected miss after delete")
	}
}

func TestMemoryStore_KeysAndClear(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	for _, k := range []string{"a", "b", "c"} {
		s.Set(ctx, k, testEntry(k, k, now))
	}

	keys := s.Keys(ctx)
	if len(keys) != 3 {
		t.Fatalf("expected 3 keys, got %d", len(keys))
	}
	if s.Len(ctx) != 3 {
		t.Errorf("expected len 3, got %d", s.Len(ctx))
	}

	s.Clear(ctx)
	if s.Len(ctx) != 0 {
		t.Errorf("expected empty store after clear, got %d", s.Len(ctx))
	}
}
