package cache

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	cacheerrors "github.com/wudi/respcache/internal/errors"
	"github.com/wudi/respcache/internal/logging"
	"github.com/wudi/respcache/internal/metrics"
)

// namespace is one logical cache partition: its policy, backend, compiled
// invalidation rules and lifetime counters.
type namespace struct {
	name  string
	cfg   Config
	store Store
	codec Codec
	rules []compiledRule

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// Manager orchestrates namespaces over pluggable storage backends. It is the
// only public entry point: callers never see backend identity. The cache is
// an optimization layer: no internal storage failure ever reaches a caller,
// the only observable failure mode is an increased miss rate.
//
// Concurrent calls for the same key are not serialized: the contract is
// last-write-wins, and a Get racing a Set may observe either value.
type Manager struct {
	mu         sync.RWMutex
	namespaces map[string]*namespace

	redis         *redis.Client
	bolt          *BoltDB
	encryptionKey []byte
	metrics       *metrics.Metrics
	now           func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithRedis provides the client backing durable-kv namespaces.
func WithRedis(client *redis.Client) Option {
	return func(m *Manager) { m.redis = client }
}

// WithBolt provides the handle backing durable-indexed namespaces.
func WithBolt(db *BoltDB) Option {
	return func(m *Manager) { m.bolt = db }
}

// WithEncryptionKey provides the 32-byte key for namespaces with encryption
// enabled.
func WithEncryptionKey(key []byte) Option {
	return func(m *Manager) { m.encryptionKey = key }
}

// WithMetrics attaches prometheus instrumentation.
func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mx }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates an empty manager. Namespaces are registered with
// SetConfig.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespaces: make(map[string]*namespace),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetConfig registers or replaces the policy for a namespace and
// (re)instantiates its backend. Invalid configs are rejected with an error
// and a log line; registration never panics. Replacing a namespace resets
// its counters.
func (m *Manager) SetConfig(ctx context.Context, name string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		logging.Warn("rejecting namespace config", zap.String("namespace", name), zap.Error(err))
		return err
	}
	if cfg.Encryption && len(m.encryptionKey) == 0 {
		err := cacheerrors.New(cacheerrors.KindInvalidConfig, "encryption enabled without a key")
		logging.Warn("rejecting namespace config", zap.String("namespace", name), zap.Error(err))
		return err
	}

	rules, err := compileRules(cfg.Rules)
	if err != nil {
		werr := cacheerrors.Wrap(err, cacheerrors.KindInvalidConfig, "rule compilation failed")
		logging.Warn("rejecting namespace config", zap.String("namespace", name), zap.Error(werr))
		return werr
	}

	codec, err := newCodec(cfg, m.encryptionKey)
	if err != nil {
		werr := cacheerrors.Wrap(err, cacheerrors.KindInvalidConfig, "codec construction failed")
		logging.Warn("rejecting namespace config", zap.String("namespace", name), zap.Error(werr))
		return werr
	}

	n := &namespace{
		name:  name,
		cfg:   cfg,
		store: m.buildStore(name, cfg),
		codec: codec,
		rules: rules,
	}

	m.mu.Lock()
	m.namespaces[name] = n
	m.mu.Unlock()

	logging.Info("namespace registered",
		zap.String("namespace", name),
		zap.String("strategy", string(cfg.Strategy)),
		zap.Duration("ttl", cfg.TTL),
		zap.Int("max_entries", cfg.MaxEntries),
	)
	return nil
}

// buildStore instantiates the backend for a strategy. When the durable engine
// is unavailable in this runtime the namespace degrades to a fresh volatile
// store with a warning; registration itself never fails for backend reasons.
func (m *Manager) buildStore(name string, cfg Config) Store {
	fallback := func(reason string) Store {
		err := cacheerrors.New(cacheerrors.KindStorageUnavailable, reason)
		logging.Warn("falling back to volatile store",
			zap.String("namespace", name),
			zap.String("strategy", string(cfg.Strategy)),
			zap.Error(err))
		return NewMemoryStore()
	}

	switch cfg.Strategy {
	case StrategyDurableKV:
		if m.redis == nil {
			return fallback("no redis client configured")
		}
		return NewRedisStore(m.redis, "rc:"+name+":")

	case StrategyDurableIndexed:
		if m.bolt == nil {
			return fallback("no bolt handle configured")
		}
		s, err := NewBoltStore(m.bolt, name)
		if err != nil {
			return fallback(err.Error())
		}
		return s

	case StrategyHybrid:
		var durable Store
		if m.redis != nil {
			durable = NewRedisStore(m.redis, "rc:"+name+":")
		} else if m.bolt != nil {
			s, err := NewBoltStore(m.bolt, name)
			if err != nil {
				return fallback(err.Error())
			}
			durable = s
		} else {
			return fallback("no durable backend configured")
		}
		return NewHybridStore(durable)

	default:
		return NewMemoryStore()
	}
}

func (m *Manager) namespace(name string) *namespace {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.namespaces[name]
}

// Namespaces lists registered namespace names.
func (m *Manager) Namespaces() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.namespaces))
	for name := range m.namespaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the decoded value for key, or (nil, false) on a miss. Expired
// and corrupted records are lazily removed and reported as misses; a hit
// updates the entry's access bookkeeping.
func (m *Manager) Get(ctx context.Context, name, key string) ([]byte, bool) {
	n := m.namespace(name)
	if n == nil {
		return nil, false
	}

	e, ok := n.store.Get(ctx, key)
	if !ok {
		n.misses.Add(1)
		m.metrics.Miss(name)
		return nil, false
	}

	now := m.now()
	if !e.Live(now) {
		// Lazy expiry: the record is removed so a later get cannot
		// re-materialize it.
		n.store.Delete(ctx, key)
		n.misses.Add(1)
		m.metrics.Miss(name)
		return nil, false
	}

	decoded, err := n.codec.Decode(e.Value)
	if err != nil {
		cerr := cacheerrors.Wrap(err, cacheerrors.KindCorruptedEntry, "value decode failed")
		logging.Warn("deleting undecodable entry",
			zap.String("namespace", name), zap.String("key", key), zap.Error(cerr))
		n.store.Delete(ctx, key)
		n.misses.Add(1)
		m.metrics.Miss(name)
		return nil, false
	}

	// Stores may return a pointer they still hold (the memory tier does, and
	// the hybrid tier shares one across both tiers after promotion), so the
	// bookkeeping write goes to a copy.
	touched := *e
	touched.Touch(now)
	n.store.Set(ctx, key, &touched)

	n.hits.Add(1)
	m.metrics.Hit(name)
	return decoded, true
}

// SetOptions are per-write overrides.
type SetOptions struct {
	TTL          time.Duration
	ETag         string
	LastModified string
}

// SetOption customizes a single Set call.
type SetOption func(*SetOptions)

// WithTTL overrides the namespace TTL for this entry.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *SetOptions) { o.TTL = ttl }
}

// WithETag attaches a validator tag to the entry.
func WithETag(etag string) SetOption {
	return func(o *SetOptions) { o.ETag = etag }
}

// WithLastModified attaches a Last-Modified validator to the entry.
func WithLastModified(v string) SetOption {
	return func(o *SetOptions) { o.LastModified = v }
}

// Set stores a value. Capacity eviction runs first, on the caller's path, so
// its cost is paid by whoever crosses the threshold. Backend failures are
// logged, never returned.
func (m *Manager) Set(ctx context.Context, name, key string, value []byte, opts ...SetOption) {
	n := m.namespace(name)
	if n == nil {
		logging.Debug("set on unregistered namespace", zap.String("namespace", name))
		return
	}

	m.evictIfNecessary(ctx, n)

	var so SetOptions
	for _, opt := range opts {
		opt(&so)
	}

	encoded, err := n.codec.Encode(value)
	if err != nil {
		logging.Warn("value encode failed, dropping write",
			zap.String("namespace", name), zap.String("key", key), zap.Error(err))
		return
	}

	ttl := n.cfg.TTL
	if so.TTL > 0 {
		ttl = so.TTL
	}

	now := m.now()
	n.store.Set(ctx, key, &Entry{
		Key:            key,
		Value:          encoded,
		WrittenAt:      now,
		TTL:            ttl,
		ETag:           so.ETag,
		LastModified:   so.LastModified,
		SizeBytes:      int64(len(encoded)),
		LastAccessedAt: now,
	})
}

// evictIfNecessary enforces the capacity bound: at or above MaxEntries it
// removes the ceil(25%) least-recently-accessed entries in one batch. The
// batch (rather than a single slot) is hysteresis: it keeps every subsequent
// insert from paying an eviction pass once the threshold is first crossed.
func (m *Manager) evictIfNecessary(ctx context.Context, n *namespace) {
	size := n.store.Len(ctx)
	if size < n.cfg.MaxEntries {
		return
	}

	type candidate struct {
		key        string
		accessedAt time.Time
	}
	candidates := make([]candidate, 0, size)
	for _, key := range n.store.Keys(ctx) {
		e, ok := n.store.Get(ctx, key)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{key: key, accessedAt: e.LastAccessedAt})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].accessedAt.Before(candidates[j].accessedAt)
	})

	batch := (size + 3) / 4 // ceil(0.25 * size)
	if batch > len(candidates) {
		batch = len(candidates)
	}

	removed := 0
	for _, c := range candidates[:batch] {
		if n.store.Delete(ctx, c.key) {
			removed++
		}
	}
	n.evictions.Add(int64(removed))
	m.metrics.Evicted(n.name, removed)
	logging.Debug("evicted entry batch",
		zap.String("namespace", n.name),
		zap.Int("removed", removed),
		zap.Int("size_before", size))
}

// Delete removes a single key and reports whether it existed.
func (m *Manager) Delete(ctx context.Context, name, key string) bool {
	n := m.namespace(name)
	if n == nil {
		return false
	}
	return n.store.Delete(ctx, key)
}

// Clear empties a namespace and resets its hit/miss/eviction counters.
func (m *Manager) Clear(ctx context.Context, name string) {
	n := m.namespace(name)
	if n == nil {
		return
	}
	n.store.Clear(ctx)
	n.hits.Store(0)
	n.misses.Store(0)
	n.evictions.Store(0)
}

// Invalidate fires every rule bound to trigger across all namespaces,
// removing each key matching the rule's pattern (and its condition, when
// present). A rule matching zero keys is a no-op.
func (m *Manager) Invalidate(ctx context.Context, trigger string) {
	m.mu.RLock()
	targets := make([]*namespace, 0, len(m.namespaces))
	for _, n := range m.namespaces {
		targets = append(targets, n)
	}
	m.mu.RUnlock()

	for _, n := range targets {
		removed := 0
		for i := range n.rules {
			rule := &n.rules[i]
			if !rule.firesOn(trigger) {
				continue
			}
			for _, key := range n.store.Keys(ctx) {
				if !rule.matchesKey(key) {
					continue
				}
				if rule.condition != nil {
					e, ok := n.store.Get(ctx, key)
					if !ok {
						continue
					}
					decoded, err := n.codec.Decode(e.Value)
					if err != nil || !rule.matchesValue(decoded) {
						continue
					}
				}
				if n.store.Delete(ctx, key) {
					removed++
				}
			}
		}
		if removed > 0 {
			m.metrics.Invalidated(n.name, removed)
			logging.Info("invalidation removed entries",
				zap.String("namespace", n.name),
				zap.String("trigger", trigger),
				zap.Int("removed", removed))
		}
	}
}

// Stats aggregates a namespace snapshot: live entries and bytes from backend
// enumeration combined with the in-memory counters. Returns false for an
// unregistered namespace.
func (m *Manager) Stats(ctx context.Context, name string) (*Stats, bool) {
	n := m.namespace(name)
	if n == nil {
		return nil, false
	}

	now := m.now()
	var (
		entries        int
		sizeBytes      int64
		oldest, newest time.Time
	)
	for _, key := range n.store.Keys(ctx) {
		e, ok := n.store.Get(ctx, key)
		if !ok || !e.Live(now) {
			continue
		}
		entries++
		sizeBytes += e.SizeBytes
		if oldest.IsZero() || e.WrittenAt.Before(oldest) {
			oldest = e.WrittenAt
		}
		if newest.IsZero() || e.WrittenAt.After(newest) {
			newest = e.WrittenAt
		}
	}

	hits := n.hits.Load()
	misses := n.misses.Load()
	var hitRate, missRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
		missRate = float64(misses) / float64(total)
	}

	m.metrics.Observe(name, entries, sizeBytes)
	return &Stats{
		TotalEntries:   entries,
		TotalSizeBytes: sizeBytes,
		Hits:           hits,
		Misses:         misses,
		HitRate:        hitRate,
		MissRate:       missRate,
		EvictionCount:  n.evictions.Load(),
		OldestEntry:    oldest,
		NewestEntry:    newest,
	}, true
}

// writtenAtOrdered is implemented by stores with a secondary index over
// WrittenAt.
type writtenAtOrdered interface {
	OldestKeys(ctx context.Context, n int) []string
}

// Oldest returns up to limit keys in ascending write order. Indexed stores
// answer from their secondary index; others fall back to a full scan.
func (m *Manager) Oldest(ctx context.Context, name string, limit int) []string {
	n := m.namespace(name)
	if n == nil || limit <= 0 {
		return nil
	}
	if ordered, ok := n.store.(writtenAtOrdered); ok {
		return ordered.OldestKeys(ctx, limit)
	}

	type candidate struct {
		key       string
		writtenAt time.Time
	}
	var candidates []candidate
	for _, key := range n.store.Keys(ctx) {
		if e, ok := n.store.Get(ctx, key); ok {
			candidates = append(candidates, candidate{key: key, writtenAt: e.WrittenAt})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].writtenAt.Before(candidates[j].writtenAt)
	})
	if limit > len(candidates) {
		limit = len(candidates)
	}
	keys := make([]string, 0, limit)
	for _, c := range candidates[:limit] {
		keys = append(keys, c.key)
	}
	return keys
}
