package cache

import (
	"fmt"
	"time"

	cacheerrors "github.com/wudi/respcache/internal/errors"
)

// Strategy selects the storage backend for a namespace.
type Strategy string

const (
	// StrategyVolatile keeps entries in process memory only.
	StrategyVolatile Strategy = "volatile"
	// StrategyDurableKV persists entries in the flat key-value store (Redis).
	StrategyDurableKV Strategy = "durable-kv"
	// StrategyDurableIndexed persists entries in the indexed store (bbolt).
	StrategyDurableIndexed Strategy = "durable-indexed"
	// StrategyHybrid layers a volatile tier over a durable tier with
	// read-through promotion.
	StrategyHybrid Strategy = "hybrid"
)

func validStrategy(s Strategy) bool {
	switch s {
	case StrategyVolatile, StrategyDurableKV, StrategyDurableIndexed, StrategyHybrid:
		return true
	}
	return false
}

// Config is the per-namespace cache policy.
type Config struct {
	TTL         time.Duration
	MaxEntries  int
	Strategy    Strategy
	Compression bool
	Encryption  bool
	Rules       []Rule
}

// Rule declares trigger-driven invalidation: when Invalidate is called with a
// trigger in Triggers, every key in the namespace matching Pattern (and
// satisfying Condition, when present) is removed.
type Rule struct {
	// Pattern is a regular expression over cache keys.
	Pattern string
	// Triggers are opaque identifiers, typically write-endpoint identifiers.
	Triggers []string
	// Condition is an optional expr boolean over the decoded value, bound as
	// "value", e.g. `value.stock < 10`.
	Condition string
}

// Validate rejects policies the manager must refuse at registration time.
func (c Config) Validate() error {
	if c.TTL <= 0 {
		return cacheerrors.New(cacheerrors.KindInvalidConfig, fmt.Sprintf("ttl must be positive, got %s", c.TTL))
	}
	if c.MaxEntries <= 0 {
		return cacheerrors.New(cacheerrors.KindInvalidConfig, fmt.Sprintf("max entries must be positive, got %d", c.MaxEntries))
	}
	if !validStrategy(c.Strategy) {
		return cacheerrors.New(cacheerrors.KindInvalidConfig, fmt.Sprintf("unknown strategy %q", c.Strategy))
	}
	for i, r := range c.Rules {
		if r.Pattern == "" {
			return cacheerrors.New(cacheerrors.KindInvalidConfig, fmt.Sprintf("rule %d: empty pattern", i))
		}
		if len(r.Triggers) == 0 {
			return cacheerrors.New(cacheerrors.KindInvalidConfig, fmt.Sprintf("rule %d: no triggers", i))
		}
	}
	return nil
}
