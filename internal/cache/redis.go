package cache

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	cacheerrors "github.com/wudi/respcache/internal/errors"
	"github.com/wudi/respcache/internal/logging"
)

const (
	redisOpTimeout   = 100 * time.Millisecond
	redisScanTimeout = 5 * time.Second
	redisScanBatch   = 100
)

// redisClient is the subset of commands the store issues. Satisfied by
// *redis.Client; tests substitute a fake to drive error paths.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// RedisStore is the durable key-value tier: one gob-encoded record per key
// under a namespaced prefix, e.g. "rc:products:".
type RedisStore struct {
	client redisClient
	prefix string
}

// NewRedisStore creates a Redis-backed store. prefix should include the
// namespace, e.g. "rc:products:".
func NewRedisStore(client redisClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, bool) {
	opctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	data, err := s.client.Get(opctx, s.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logging.Warn("redis get failed, treating as miss", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	e, err := decodeEntry(data)
	if err != nil {
		// Corrupted record: remove it so the corruption is not re-encountered.
		cerr := cacheerrors.Wrap(err, cacheerrors.KindCorruptedEntry, "redis record decode failed")
		logging.Warn("deleting corrupted redis record", zap.String("key", key), zap.Error(cerr))
		s.Delete(ctx, key)
		return nil, false
	}
	return e, true
}

func (s *RedisStore) Set(ctx context.Context, key string, e *Entry) {
	payload, err := encodeEntry(e)
	if err != nil {
		logging.Warn("redis record encode failed", zap.String("key", key), zap.Error(err))
		return
	}

	err = s.write(ctx, key, payload, e.TTL)
	if err == nil {
		return
	}
	if !isQuotaError(err) {
		logging.Warn("redis set failed", zap.String("key", key), zap.Error(err))
		return
	}

	// Quota exhausted: evict the least-recently-accessed record and retry the
	// write exactly once. A second failure drops the write, never the caller.
	qerr := cacheerrors.Wrap(err, cacheerrors.KindQuotaExceeded, "redis write over capacity")
	logging.Warn("evicting oldest record to make room", zap.String("key", key), zap.Error(qerr))
	if victim, ok := s.oldestByAccess(ctx); ok {
		s.Delete(ctx, victim)
	}
	if err := s.write(ctx, key, payload, e.TTL); err != nil {
		logging.Warn("redis write dropped after quota eviction", zap.String("key", key), zap.Error(err))
	}
}

func (s *RedisStore) write(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	opctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	return s.client.Set(opctx, s.prefix+key, payload, ttl).Err()
}

// isQuotaError reports whether a redis error indicates capacity exhaustion.
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.HasPrefix(msg, "OOM") || strings.Contains(msg, "maxmemory")
}

// oldestByAccess scans all records and returns the key with the earliest
// LastAccessedAt.
func (s *RedisStore) oldestByAccess(ctx context.Context) (string, bool) {
	var (
		victim string
		oldest time.Time
		found  bool
	)
	for _, key := range s.Keys(ctx) {
		e, ok := s.Get(ctx, key)
		if !ok {
			continue
		}
		if !found || e.LastAccessedAt.Before(oldest) {
			victim, oldest, found = key, e.LastAccessedAt, true
		}
	}
	return victim, found
}

func (s *RedisStore) Delete(ctx context.Context, key string) bool {
	opctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	n, err := s.client.Del(opctx, s.prefix+key).Result()
	if err != nil {
		logging.Warn("redis delete failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return n > 0
}

func (s *RedisStore) Clear(ctx context.Context) {
	opctx, cancel := context.WithTimeout(ctx, redisScanTimeout)
	defer cancel()

	var cursor uint64
	for {
		keys, next, err := s.client.Scan(opctx, cursor, s.prefix+"*", redisScanBatch).Result()
		if err != nil {
			logging.Warn("redis clear scan failed", zap.Error(err))
			return
		}
		if len(keys) > 0 {
			if err := s.client.Del(opctx, keys...).Err(); err != nil {
				logging.Warn("redis bulk delete failed", zap.Error(err))
				return
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}

func (s *RedisStore) Keys(ctx context.Context) []string {
	opctx, cancel := context.WithTimeout(ctx, redisScanTimeout)
	defer cancel()

	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.client.Scan(opctx, cursor, s.prefix+"*", redisScanBatch).Result()
		if err != nil {
			logging.Warn("redis keys scan failed", zap.Error(err))
			return keys
		}
		for _, k := range batch {
			keys = append(keys, strings.TrimPrefix(k, s.prefix))
		}
		cursor = next
		if cursor == 0 {
			return keys
		}
	}
}

func (s *RedisStore) Len(ctx context.Context) int {
	return len(s.Keys(ctx))
}

var _ Store = (*RedisStore)(nil)
