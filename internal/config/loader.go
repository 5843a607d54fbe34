package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/goccy/go-yaml"
)

var validStrategies = map[string]bool{
	"volatile":        true,
	"durable-kv":      true,
	"durable-indexed": true,
	"hybrid":          true,
}

// Loader handles configuration loading and parsing.
type Loader struct {
	envPattern *regexp.Regexp
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPattern: regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`),
	}
}

// Load reads and parses a configuration file.
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return l.Parse(data)
}

// Parse parses configuration from YAML bytes.
func (l *Loader) Parse(data []byte) (*Config, error) {
	expanded := l.expandEnvVars(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := l.validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} with environment variable values.
func (l *Loader) expandEnvVars(input string) string {
	return l.envPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${")
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

func (l *Loader) validate(cfg *Config) error {
	needsRedis := false
	needsBolt := false
	needsKey := false

	for name, ns := range cfg.Namespaces {
		if ns.TTL <= 0 {
			return fmt.Errorf("namespace %s: ttl must be positive", name)
		}
		if ns.MaxEntries <= 0 {
			return fmt.Errorf("namespace %s: max_entries must be positive", name)
		}
		if !validStrategies[ns.Strategy] {
			return fmt.Errorf("namespace %s: unknown strategy %q", name, ns.Strategy)
		}
		switch ns.Strategy {
		case "durable-kv":
			needsRedis = true
		case "durable-indexed":
			needsBolt = true
		case "hybrid":
			if cfg.Redis.Addr == "" && cfg.Bolt.Path == "" {
				return fmt.Errorf("namespace %s: hybrid strategy requires redis.addr or bolt.path", name)
			}
		}
		if ns.Encryption {
			needsKey = true
		}
		for i, r := range ns.Rules {
			if r.Pattern == "" {
				return fmt.Errorf("namespace %s: rule %d: pattern is required", name, i)
			}
			if _, err := regexp.Compile(r.Pattern); err != nil {
				return fmt.Errorf("namespace %s: rule %d: invalid pattern: %w", name, i, err)
			}
			if len(r.Triggers) == 0 {
				return fmt.Errorf("namespace %s: rule %d: at least one trigger is required", name, i)
			}
		}
	}

	if needsRedis && cfg.Redis.Addr == "" {
		return fmt.Errorf("durable-kv strategy in use but redis.addr is not set")
	}
	if needsBolt && cfg.Bolt.Path == "" {
		return fmt.Errorf("durable-indexed strategy in use but bolt.path is not set")
	}
	if needsKey {
		if _, err := cfg.DecodedEncryptionKey(); err != nil {
			return err
		}
	}
	return nil
}

// DecodedEncryptionKey returns the configured key as raw bytes. The key must
// be base64 and decode to exactly 32 bytes.
func (c *Config) DecodedEncryptionKey() ([]byte, error) {
	if c.EncryptionKey == "" {
		return nil, fmt.Errorf("encryption enabled but encryption_key is not set")
	}
	key, err := base64.StdEncoding.DecodeString(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption_key is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption_key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}
