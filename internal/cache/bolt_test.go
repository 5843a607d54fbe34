package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

func openTestBolt(t *testing.T) *BoltDB {
	t.Helper()
	db, err := OpenBolt(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBoltStore_GetSetDelete(t *testing.T) {
	db := openTestBolt(t)
	s, err := NewBoltStore(db, "test")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, ok := s.Get(ctx, "missing"); ok {
		t.Fatal("expected miss on empty store")
	}

	now := time.Now().Truncate(0)
	s.Set(ctx, "k1", testEntry("k1", "v1", now))

	got, ok := s.Get(ctx, "k1")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(got.Value) != "v1" {
		t.Errorf("expected v1, got %s", got.Value)
	}
	if !got.WrittenAt.Equal(now) {
		t.Errorf("expected written at %v, got %v", now, got.WrittenAt)
	}

	if !s.Delete(ctx, "k1") {
		t.Error("expected delete to report presence")
	}
	if s.Delete(ctx, "k1") {
		t.Error("expected second delete to report absence")
	}
}

func TestBoltStore_KeysLenClear(t *testing.T) {
	db := openTestBolt(t)
	s, err := NewBoltStore(db, "test")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	now := time.Now()

	for _, k := range []string{"a", "b", "c"} {
		s.Set(ctx, k, testEntry(k, k, now))
	}
	if s.Len(ctx) != 3 {
		t.Errorf("expected len 3, got %d", s.Len(ctx))
	}
	if keys := s.Keys(ctx); len(keys) != 3 {
		t.Errorf("expected 3 keys, got %v", keys)
	}

	s.Clear(ctx)
	if s.Len(ctx) != 0 {
		t.Errorf("expected empty store after clear, got %d", s.Len(ctx))
	}
	// The store stays usable after a clear.
	s.Set(ctx, "d", testEntry("d", "d", now))
	if s.Len(ctx) != 1 {
		t.Errorf("expected store usable after clear, len %d", s.Len(ctx))
	}
}

func TestBoltStore_OldestKeysUsesWrittenAtIndex(t *testing.T) {
	db := openTestBolt(t)
	s, err := NewBoltStore(db, "test")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	base := time.Now()
	// Insert out of chronological order; the index must still return
	// oldest-first.
	s.Set(ctx, "newest", testEntry("newest", "3", base.Add(2*time.Hour)))
	s.Set(ctx, "oldest", testEntry("oldest", "1", base))
	s.Set(ctx, "middle", testEntry("middle", "2", base.Add(time.Hour)))

	keys := s.OldestKeys(ctx, 2)
	if len(keys) != 2 || keys[0] != "oldest" || keys[1] != "middle" {
		t.Errorf("expected [oldest middle], got %v", keys)
	}
}

func TestBoltStore_OverwriteReplacesIndexRow(t *testing.T) {
	db := openTestBolt(t)
	s, err := NewBoltStore(db, "test")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	base := time.Now()

	s.Set(ctx, "k", testEntry("k", "old", base))
	s.Set(ctx, "other", testEntry("other", "x", base.Add(time.Minute)))
	// Rewriting k moves it to the newest index position.
	s.Set(ctx, "k", testEntry("k", "new", base.Add(time.Hour)))

	keys := s.OldestKeys(ctx, 10)
	if len(keys) != 2 {
		t.Fatalf("expected 2 index rows after overwrite, got %v", keys)
	}
	if keys[0] != "other" || keys[1] != "k" {
		t.Errorf("expected [other k], got %v", keys)
	}
}

func TestBoltStore_CorruptedRecordIsMissAndRemoved(t *testing.T) {
	db := openTestBolt(t)
	s, err := NewBoltStore(db, "test")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	s.Set(ctx, "k", testEntry("k", "v", time.Now()))

	// Replace the record with unparseable bytes underneath the store.
	err = db.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte("ns:test")).Bucket(bucketEntries).Put([]byte("k"), []byte("garbage"))
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := s.Get(ctx, "k"); ok {
		t.Fatal("expected corrupted record to read as a miss")
	}
	if _, ok := s.Get(ctx, "k"); ok {
		t.Fatal("expected corrupted record to stay gone")
	}
	for _, key := range s.Keys(ctx) {
		if key == "k" {
			t.Error("expected corrupted record to be deleted")
		}
	}
}

func TestBoltStore_CorruptedRecordCleanupDropsIndexRow(t *testing.T) {
	db := openTestBolt(t)
	s, err := NewBoltStore(db, "test")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	s.Set(ctx, "k", testEntry("k", "v", time.Now()))

	err = db.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte("ns:test")).Bucket(bucketEntries).Put([]byte("k"), []byte("garbage"))
	})
	if err != nil {
		t.Fatal(err)
	}

	// Get removes the corrupted record; the index must not keep a row for it.
	if _, ok := s.Get(ctx, "k"); ok {
		t.Fatal("expected corrupted record to read as a miss")
	}
	if keys := s.OldestKeys(ctx, 10); len(keys) != 0 {
		t.Errorf("expected no index rows after cleanup, got %v", keys)
	}
	if s.Len(ctx) != 0 {
		t.Errorf("expected empty store, len %d", s.Len(ctx))
	}
}

func TestBoltStore_NamespacesAreIsolated(t *testing.T) {
	db := openTestBolt(t)
	a, err := NewBoltStore(db, "a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewBoltStore(db, "b")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	a.Set(ctx, "k", testEntry("k", "from-a", time.Now()))
	if _, ok := b.Get(ctx, "k"); ok {
		t.Error("expected namespaces not to share records")
	}
	b.Clear(ctx)
	if _, ok := a.Get(ctx, "k"); !ok {
		t.Error("expected clear of one namespace not to affect another")
	}
}

func TestOpenBolt_WritesSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	db, err := OpenBolt(path)
	if err != nil {
		t.Fatal(err)
	}
	db.Close()

	// Reopening an existing file succeeds and keeps the schema.
	db, err = OpenBolt(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	err = db.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if meta == nil {
			t.Error("expected meta bucket")
			return nil
		}
		if v := meta.Get(keySchema); len(v) != 8 {
			t.Errorf("expected schema version record, got %v", v)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
