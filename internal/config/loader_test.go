package config

import (
	"encoding/base64"
	"os"
	"strings"
	"testing"
	"time"
)

const validYAML = `
admin:
  addr: ":9000"
logging:
  level: debug
redis:
  addr: "localhost:6379"
bolt:
  path: /tmp/cache.db
namespaces:
  products:
    ttl: 5m
    max_entries: 1000
    strategy: hybrid
    compression: true
    invalidation_rules:
      - pattern: '^/api/products/'
        triggers:
          - /api/admin/products
  sessions:
    ttl: 30m
    max_entries: 500
    strategy: durable-kv
`

func TestLoader_ParseValid(t *testing.T) {
	cfg, err := NewLoader().Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Admin.Addr != ":9000" {
		t.Errorf("expected admin addr override, got %s", cfg.Admin.Addr)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Logging.Level)
	}

	ns, ok := cfg.Namespaces["products"]
	if !ok {
		t.Fatal("expected products namespace")
	}
	if ns.TTL != 5*time.Minute {
		t.Errorf("expected 5m ttl, got %v", ns.TTL)
	}
	if ns.MaxEntries != 1000 {
		t.Errorf("expected 1000 max entries, got %d", ns.MaxEntries)
	}
	if !ns.Compression {
		t.Error("expected compression enabled")
	}
	if len(ns.Rules) != 1 || ns.Rules[0].Triggers[0] != "/api/admin/products" {
		t.Errorf("unexpected rules %+v", ns.Rules)
	}
}

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().Parse([]byte("{}"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Admin.Addr != ":8380" {
		t.Errorf("expected default admin addr, got %s", cfg.Admin.Addr)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default info level, got %s", cfg.Logging.Level)
	}
	if cfg.Redis.DialTimeout != 2*time.Second {
		t.Errorf("expected default dial timeout, got %v", cfg.Redis.DialTimeout)
	}
}

func TestLoader_EnvExpansion(t *testing.T) {
	os.Setenv("TEST_REDIS_ADDR", "redis.internal:6379")
	defer os.Unsetenv("TEST_REDIS_ADDR")

	cfg, err := NewLoader().Parse([]byte(`
redis:
  addr: "${TEST_REDIS_ADDR}"
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Redis.Addr != "redis.internal:6379" {
		t.Errorf("expected env expansion, got %s", cfg.Redis.Addr)
	}
}

func TestLoader_ValidationFailures(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "zero ttl",
			yaml: `
namespaces:
  bad:
    ttl: 0s
    max_entries: 10
    strategy: volatile
`,
			wantErr: "ttl must be positive",
		},
		{
			name: "zero max entries",
			yaml: `
namespaces:
  bad:
    ttl: 1m
    max_entries: 0
    strategy: volatile
`,
			wantErr: "max_entries must be positive",
		},
		{
			name: "unknown strategy",
			yaml: `
namespaces:
  bad:
    ttl: 1m
    max_entries: 10
    strategy: quantum
`,
			wantErr: "unknown strategy",
		},
		{
			name: "durable-kv without redis",
			yaml: `
namespaces:
  bad:
    ttl: 1m
    max_entries: 10
    strategy: durable-kv
`,
			wantErr: "redis.addr is not set",
		},
		{
			name: "durable-indexed without bolt",
			yaml: `
namespaces:
  bad:
    ttl: 1m
    max_entries: 10
    strategy: durable-indexed
`,
			wantErr: "bolt.path is not set",
		},
		{
			name: "hybrid without any durable backend",
			yaml: `
namespaces:
  bad:
    ttl: 1m
    max_entries: 10
    strategy: hybrid
`,
			wantErr: "requires redis.addr or bolt.path",
		},
		{
			name: "invalid rule pattern",
			yaml: `
namespaces:
  bad:
    ttl: 1m
    max_entries: 10
    strategy: volatile
    invalidation_rules:
      - pattern: '(['
        triggers: [t]
`,
			wantErr: "invalid pattern",
		},
		{
			name: "rule without triggers",
			yaml: `
namespaces:
  bad:
    ttl: 1m
    max_entries: 10
    strategy: volatile
    invalidation_rules:
      - pattern: '^/x'
`,
			wantErr: "at least one trigger",
		},
		{
			name: "encryption without key",
			yaml: `
namespaces:
  bad:
    ttl: 1m
    max_entries: 10
    strategy: volatile
    encryption: true
`,
			wantErr: "encryption_key is not set",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewLoader().Parse([]byte(tc.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestConfig_DecodedEncryptionKey(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	cfg := &Config{EncryptionKey: base64.StdEncoding.EncodeToString(key)}
	got, err := cfg.DecodedEncryptionKey()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 32 || got[31] != 31 {
		t.Errorf("unexpected decoded key %v", got)
	}

	cfg = &Config{EncryptionKey: "not base64!!"}
	if _, err := cfg.DecodedEncryptionKey(); err == nil {
		t.Error("expected error for invalid base64")
	}

	cfg = &Config{EncryptionKey: base64.StdEncoding.EncodeToString([]byte("short"))}
	if _, err := cfg.DecodedEncryptionKey(); err == nil {
		t.Error("expected error for wrong key length")
	}
}
