package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wudi/respcache/internal/admin"
	"github.com/wudi/respcache/internal/cache"
	"github.com/wudi/respcache/internal/config"
	"github.com/wudi/respcache/internal/logging"
	"github.com/wudi/respcache/internal/metrics"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/respcache.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	validateOnly := flag.Bool("validate", false, "Validate configuration and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("respcache %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *validateOnly {
		fmt.Println("Configuration is valid")
		os.Exit(0)
	}

	logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, File: cfg.Logging.File})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logging.SetGlobal(logger)

	logging.Info("starting respcache",
		zap.String("version", version),
		zap.String("config", *configPath),
		zap.Int("namespaces", len(cfg.Namespaces)),
	)

	opts := []cache.Option{}

	if cfg.Redis.Addr != "" {
		client, err := dialRedis(cfg.Redis)
		if err != nil {
			// Degraded start: durable-kv namespaces fall back to volatile.
			logging.Warn("redis unreachable, durable-kv namespaces degrade to volatile", zap.Error(err))
		} else {
			defer client.Close()
			opts = append(opts, cache.WithRedis(client))
		}
	}

	if cfg.Bolt.Path != "" {
		db, err := cache.OpenBolt(cfg.Bolt.Path)
		if err != nil {
			logging.Warn("bolt unavailable, durable-indexed namespaces degrade to volatile", zap.Error(err))
		} else {
			defer db.Close()
			opts = append(opts, cache.WithBolt(db))
		}
	}

	if cfg.EncryptionKey != "" {
		key, err := cfg.DecodedEncryptionKey()
		if err != nil {
			logging.Error("invalid encryption key", zap.Error(err))
			os.Exit(1)
		}
		opts = append(opts, cache.WithEncryptionKey(key))
	}

	mx := metrics.New()
	opts = append(opts, cache.WithMetrics(mx))

	mgr := cache.NewManager(opts...)
	ctx := context.Background()
	for name, ns := range cfg.Namespaces {
		if err := mgr.SetConfig(ctx, name, namespacePolicy(ns)); err != nil {
			logging.Error("namespace registration failed", zap.String("namespace", name), zap.Error(err))
			os.Exit(1)
		}
	}

	server := admin.NewServer(cfg.Admin.Addr, mgr, mx)
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logging.Error("admin server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error("shutdown error", zap.Error(err))
	}
}

// dialRedis connects with bounded exponential backoff so a slow engine start
// cannot hang the daemon indefinitely.
func dialRedis(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 15 * time.Second

	err := backoff.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
		defer cancel()
		return client.Ping(ctx).Err()
	}, policy)
	if err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// namespacePolicy converts YAML namespace settings to the manager's policy.
func namespacePolicy(ns config.NamespaceConfig) cache.Config {
	rules := make([]cache.Rule, 0, len(ns.Rules))
	for _, r := range ns.Rules {
		rules = append(rules, cache.Rule{
			Pattern:   r.Pattern,
			Triggers:  r.Triggers,
			Condition: r.Condition,
		})
	}
	return cache.Config{
		TTL:         ns.TTL,
		MaxEntries:  ns.MaxEntries,
		Strategy:    cache.Strategy(ns.Strategy),
		Compression: ns.Compression,
		Encryption:  ns.Encryption,
		Rules:       rules,
	}
}
