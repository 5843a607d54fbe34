package config

import "time"

// Config is the top-level daemon configuration.
type Config struct {
	Admin         AdminConfig                `yaml:"admin"`
	Logging       LoggingConfig              `yaml:"logging"`
	Redis         RedisConfig                `yaml:"redis"`
	Bolt          BoltConfig                 `yaml:"bolt"`
	EncryptionKey string                     `yaml:"encryption_key"` // base64, 32 bytes decoded
	Namespaces    map[string]NamespaceConfig `yaml:"namespaces"`
}

// AdminConfig defines the operational HTTP listener.
type AdminConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig defines logger settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// RedisConfig defines the durable key-value engine connection.
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// BoltConfig defines the durable indexed engine location.
type BoltConfig struct {
	Path string `yaml:"path"`
}

// NamespaceConfig is the per-namespace cache policy as written in YAML.
type NamespaceConfig struct {
	TTL         time.Duration `yaml:"ttl"`
	MaxEntries  int           `yaml:"max_entries"`
	Strategy    string        `yaml:"strategy"` // volatile, durable-kv, durable-indexed, hybrid
	Compression bool          `yaml:"compression"`
	Encryption  bool          `yaml:"encryption"`
	Rules       []RuleConfig  `yaml:"invalidation_rules"`
}

// RuleConfig declares one invalidation rule.
type RuleConfig struct {
	Pattern   string   `yaml:"pattern"`
	Triggers  []string `yaml:"triggers"`
	Condition string   `yaml:"condition"`
}

// DefaultConfig returns the baseline configuration before YAML overrides.
func DefaultConfig() *Config {
	return &Config{
		Admin: AdminConfig{
			Addr: ":8380",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Redis: RedisConfig{
			DialTimeout: 2 * time.Second,
		},
	}
}
