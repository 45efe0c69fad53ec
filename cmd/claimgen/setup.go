package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/pgendreau/aavegotchi-ptd/pkg/config"
	"github.com/pgendreau/aavegotchi-ptd/pkg/logger"
	"github.com/pgendreau/aavegotchi-ptd/pkg/persistence"
	"github.com/pgendreau/aavegotchi-ptd/pkg/persistence/badger"
	"github.com/pgendreau/aavegotchi-ptd/pkg/persistence/memory"
	"github.com/pgendreau/aavegotchi-ptd/pkg/persistence/redis"
)

// loadConfig reads the config file and applies flags and env vars over it.
func loadConfig(c *cli.Context) (*config.ClaimGenConfig, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	setString := func(name string, dst *string) {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}

	setString("input", &cfg.Input.Path)
	setString("format", &cfg.Input.Format)
	setString("address-column", &cfg.Input.AddressColumn)
	setString("amount-column", &cfg.Input.AmountColumn)
	setString("unit", &cfg.Unit)
	setString("output", &cfg.Output.Document)
	setString("audit-output", &cfg.Output.Audit)
	setString("round-id", &cfg.RoundID)
	setString("aws-region", &cfg.AWSRegion)
	setString("log-file", &cfg.Log.File)
	setString("badger-path", &cfg.Store.BadgerPath)
	setString("redis-address", &cfg.Store.Redis.Address)
	setString("redis-password", &cfg.Store.Redis.Password)
	setString("redis-key-prefix", &cfg.Store.Redis.KeyPrefix)

	if c.IsSet("decimals") {
		d := c.Uint("decimals")
		if d > 255 {
			return nil, fmt.Errorf("decimals %d out of range", d)
		}
		cfg.Decimals = uint8(d)
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if c.IsSet("redis-db") {
		cfg.Store.Redis.DB = c.Int("redis-db")
	}
	if c.IsSet("verbose") {
		cfg.Log.Debug = c.Bool("verbose")
	}
	if c.IsSet("store") {
		storeType, err := config.ParseStoreType(c.String("store"))
		if err != nil {
			return nil, err
		}
		cfg.Store.Type = storeType
	}

	return cfg, nil
}

func newLogger(cfg *config.ClaimGenConfig) (*zap.Logger, error) {
	l, err := logger.NewLogger(&logger.LoggerConfig{
		Debug:      cfg.Log.Debug,
		OutputPath: cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return l, nil
}

// openStore returns nil when no store is configured.
func openStore(cfg *config.ClaimGenConfig, l *zap.Logger) (persistence.IRoundStore, error) {
	storeType, err := config.ParseStoreType(cfg.Store.Type.String())
	if err != nil {
		return nil, err
	}

	var store persistence.IRoundStore
	switch storeType {
	case config.StoreTypeNone:
		return nil, nil
	case config.StoreTypeMemory:
		store = memory.NewMemoryPersistence(l)
	case config.StoreTypeBadger:
		store, err = badger.NewBadgerPersistence(cfg.Store.BadgerPath, l)
	case config.StoreTypeRedis:
		store, err = redis.NewRedisPersistence(&redis.RedisConfig{
			Address:   cfg.Store.Redis.Address,
			Password:  cfg.Store.Redis.Password,
			DB:        cfg.Store.Redis.DB,
			KeyPrefix: cfg.Store.Redis.KeyPrefix,
		}, l)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s round store: %w", storeType, err)
	}

	if err := store.HealthCheck(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("round store health check failed: %w", err)
	}
	return store, nil
}

// requireStore is openStore for commands that cannot run without a store.
func requireStore(cfg *config.ClaimGenConfig, l *zap.Logger) (persistence.IRoundStore, error) {
	store, err := openStore(cfg, l)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("no round store configured, set --store")
	}
	return store, nil
}
