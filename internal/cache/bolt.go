package cache

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	cacheerrors "github.com/wudi/respcache/internal/errors"
	"github.com/wudi/respcache/internal/logging"
)

const (
	boltOpenTimeout = 5 * time.Second
	boltSchema      = 1
)

var (
	bucketMeta      = []byte("meta")
	bucketEntries   = []byte("entries")
	bucketByWritten = []byte("written_at")
	keySchema       = []byte("schema")
)

// BoltDB is a shared handle to the durable indexed engine. Opening is an
// explicit step bounded by a file-lock timeout; schema migrations happen only
// here.
type BoltDB struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the indexed store file and migrates its schema.
func OpenBolt(path string) (*BoltDB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		return nil, cacheerrors.Wrap(err, cacheerrors.KindStorageUnavailable, "bolt open failed")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		current := 0
		if v := meta.Get(keySchema); len(v) == 8 {
			current = int(binary.BigEndian.Uint64(v))
		}
		if current > boltSchema {
			return fmt.Errorf("bolt schema %d newer than supported %d", current, boltSchema)
		}
		// Migrations between versions would run here; v1 is the baseline.
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], boltSchema)
		return meta.Put(keySchema, buf[:])
	})
	if err != nil {
		db.Close()
		return nil, cacheerrors.Wrap(err, cacheerrors.KindStorageUnavailable, "bolt schema migration failed")
	}
	return &BoltDB{db: db}, nil
}

// Close releases the underlying file handle.
func (b *BoltDB) Close() error {
	return b.db.Close()
}

// BoltStore is the durable indexed tier: records keyed by cache key in a
// per-namespace bucket, with a secondary index over WrittenAt supporting
// oldest-first scans without enumerating every key.
type BoltStore struct {
	db *BoltDB
	ns []byte
}

// NewBoltStore creates the namespace buckets and returns a store bound to them.
func NewBoltStore(db *BoltDB, namespace string) (*BoltStore, error) {
	ns := []byte("ns:" + namespace)
	err := db.db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists(ns)
		if err != nil {
			return err
		}
		if _, err := root.CreateBucketIfNotExists(bucketEntries); err != nil {
			return err
		}
		_, err = root.CreateBucketIfNotExists(bucketByWritten)
		return err
	})
	if err != nil {
		return nil, cacheerrors.Wrap(err, cacheerrors.KindStorageUnavailable, "bolt bucket create failed")
	}
	return &BoltStore{db: db, ns: ns}, nil
}

// indexKey is the secondary index key: big-endian WrittenAt nanos followed by
// the cache key, so cursor order is oldest-first and keys never collide.
func indexKey(writtenAt time.Time, key string) []byte {
	buf := make([]byte, 8+len(key))
	binary.BigEndian.PutUint64(buf, uint64(writtenAt.UnixNano()))
	copy(buf[8:], key)
	return buf
}

// purgeIndexRows removes every index row pointing at key. Needed when the old
// record does not decode: its WrittenAt, and with it the exact index key, is
// unrecoverable.
func purgeIndexRows(index *bolt.Bucket, key string) error {
	c := index.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if string(v) != key {
			continue
		}
		if err := c.Delete(); err != nil {
			return err
		}
	}
	return nil
}

func (s *BoltStore) buckets(tx *bolt.Tx) (entries, index *bolt.Bucket) {
	root := tx.Bucket(s.ns)
	if root == nil {
		return nil, nil
	}
	return root.Bucket(bucketEntries), root.Bucket(bucketByWritten)
}

func (s *BoltStore) Get(ctx context.Context, key string) (*Entry, bool) {
	var data []byte
	err := s.db.db.View(func(tx *bolt.Tx) error {
		entries, _ := s.buckets(tx)
		if entries == nil {
			return nil
		}
		if v := entries.Get([]byte(key)); v != nil {
			data = bytes.Clone(v)
		}
		return nil
	})
	if err != nil {
		logging.Warn("bolt get failed, treating as miss", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if data == nil {
		return nil, false
	}

	e, err := decodeEntry(data)
	if err != nil {
		cerr := cacheerrors.Wrap(err, cacheerrors.KindCorruptedEntry, "bolt record decode failed")
		logging.Warn("deleting corrupted bolt record", zap.String("key", key), zap.Error(cerr))
		s.Delete(ctx, key)
		return nil, false
	}
	return e, true
}

func (s *BoltStore) Set(_ context.Context, key string, e *Entry) {
	payload, err := encodeEntry(e)
	if err != nil {
		logging.Warn("bolt record encode failed", zap.String("key", key), zap.Error(err))
		return
	}

	err = s.db.db.Update(func(tx *bolt.Tx) error {
		entries, index := s.buckets(tx)
		if entries == nil {
			return fmt.Errorf("namespace bucket missing")
		}
		// Replacing a record must also replace its index row.
		if old := entries.Get([]byte(key)); old != nil {
			if oldEntry, err := decodeEntry(old); err == nil {
				if err := index.Delete(indexKey(oldEntry.WrittenAt, key)); err != nil {
					return err
				}
			} else if err := purgeIndexRows(index, key); err != nil {
				return err
			}
		}
		if err := entries.Put([]byte(key), payload); err != nil {
			return err
		}
		return index.Put(indexKey(e.WrittenAt, key), []byte(key))
	})
	if err != nil {
		logging.Warn("bolt set failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *BoltStore) Delete(_ context.Context, key string) bool {
	var present bool
	err := s.db.db.Update(func(tx *bolt.Tx) error {
		entries, index := s.buckets(tx)
		if entries == nil {
			return nil
		}
		old := entries.Get([]byte(key))
		if old == nil {
			return nil
		}
		present = true
		if oldEntry, err := decodeEntry(old); err == nil {
			if err := index.Delete(indexKey(oldEntry.WrittenAt, key)); err != nil {
				return err
			}
		} else if err := purgeIndexRows(index, key); err != nil {
			return err
		}
		return entries.Delete([]byte(key))
	})
	if err != nil {
		logging.Warn("bolt delete failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return present
}

func (s *BoltStore) Clear(_ context.Context) {
	err := s.db.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(s.ns)
		if root == nil {
			return nil
		}
		if err := root.DeleteBucket(bucketEntries); err != nil {
			return err
		}
		if err := root.DeleteBucket(bucketByWritten); err != nil {
			return err
		}
		if _, err := root.CreateBucket(bucketEntries); err != nil {
			return err
		}
		_, err := root.CreateBucket(bucketByWritten)
		return err
	})
	if err != nil {
		logging.Warn("bolt clear failed", zap.Error(err))
	}
}

func (s *BoltStore) Keys(_ context.Context) []string {
	var keys []string
	err := s.db.db.View(func(tx *bolt.Tx) error {
		entries, _ := s.buckets(tx)
		if entries == nil {
			return nil
		}
		return entries.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		logging.Warn("bolt keys scan failed", zap.Error(err))
	}
	return keys
}

func (s *BoltStore) Len(_ context.Context) int {
	var n int
	err := s.db.db.View(func(tx *bolt.Tx) error {
		entries, _ := s.buckets(tx)
		if entries != nil {
			n = entries.Stats().KeyN
		}
		return nil
	})
	if err != nil {
		logging.Warn("bolt len failed", zap.Error(err))
	}
	return n
}

// OldestKeys returns up to n keys in ascending WrittenAt order using the
// secondary index, without materializing the full key set.
func (s *BoltStore) OldestKeys(_ context.Context, n int) []string {
	var keys []string
	err := s.db.db.View(func(tx *bolt.Tx) error {
		_, index := s.buckets(tx)
		if index == nil {
			return nil
		}
		c := index.Cursor()
		for k, v := c.First(); k != nil && len(keys) < n; k, v = c.Next() {
			keys = append(keys, string(v))
		}
		return nil
	})
	if err != nil {
		logging.Warn("bolt index scan failed", zap.Error(err))
	}
	return keys
}

var _ Store = (*BoltStore)(nil)
