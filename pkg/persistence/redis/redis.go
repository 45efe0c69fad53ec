package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pgendreau/aavegotchi-ptd/pkg/persistence"
)

// Key prefixes for namespacing in Redis
const (
	keyPrefixRound       = "claimgen:round:"
	keySchemaVersion     = "claimgen:metadata:schema_version"
	currentSchemaVersion = "v1"

	// Redis has no prefix iteration, so round ids are also kept in a set
	keySetRounds = "claimgen:rounds:index"
)

const (
	operationTimeout = 5 * time.Second
	maxSaveAttempts  = 5
)

// RedisPersistence is a round store shared by every host pointing at the same Redis.
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

var _ persistence.IRoundStore = (*RedisPersistence)(nil)

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address  string
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is prepended to every key, e.g. "tenant-a:" gives
	// "tenant-a:claimgen:round:<id>".
	KeyPrefix string
}

// NewRedisPersistence connects to Redis and initializes the schema version key.
func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rp := &RedisPersistence{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rp.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis round store initialized",
		"address", cfg.Address,
		"db", cfg.DB,
		"key_prefix", cfg.KeyPrefix,
	)

	return rp, nil
}

func (r *RedisPersistence) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

func (r *RedisPersistence) roundKey(roundID string) string {
	return r.prefixKey(keyPrefixRound + roundID)
}

// initSchema initializes or validates the schema version
func (r *RedisPersistence) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	set, err := r.client.SetNX(ctx, schemaKey, currentSchemaVersion, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to write schema version: %w", err)
	}
	if set {
		return nil
	}

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}
	return nil
}

// SaveRound persists a round record. The round key is WATCHed so the
// immutability check and the write are atomic across clients.
func (r *RedisPersistence) SaveRound(round *persistence.RoundRecord) error {
	if err := round.Validate(); err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrStoreClosed
	}

	data, err := persistence.MarshalRoundRecord(round)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	key := r.roundKey(round.RoundID)
	save := func(tx *redis.Tx) error {
		existingData, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to read existing round: %w", err)
		}
		if err == nil {
			existing, err := persistence.UnmarshalRoundRecord(existingData)
			if err != nil {
				return err
			}
			if skip, err := persistence.CheckOverwrite(existing, round); skip || err != nil {
				return err
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, r.prefixKey(keySetRounds), round.RoundID)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		err = r.client.Watch(ctx, save, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		r.logger.Sugar().Debugw("Round key changed during save, retrying", "round_id", round.RoundID, "attempt", attempt+1)
	}
	return fmt.Errorf("failed to save round %s after %d attempts: %w", round.RoundID, maxSaveAttempts, err)
}

// LoadRound retrieves a round by id
func (r *RedisPersistence) LoadRound(roundID string) (*persistence.RoundRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrStoreClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.roundKey(roundID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load RoundRecord: %w", err)
	}
	return persistence.UnmarshalRoundRecord(data)
}

// ListRounds returns all rounds sorted by creation time
func (r *RedisPersistence) ListRounds() ([]*persistence.RoundRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrStoreClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	indexKey := r.prefixKey(keySetRounds)
	ids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list round index: %w", err)
	}

	rounds := make([]*persistence.RoundRecord, 0, len(ids))
	if len(ids) == 0 {
		return rounds, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.roundKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch RoundRecords: %w", err)
	}

	for i, val := range values {
		if val == nil {
			// Indexed but gone: drop the stale index entry
			r.client.SRem(ctx, indexKey, ids[i])
			continue
		}

		data, ok := val.(string)
		if !ok {
			r.logger.Sugar().Warnw("Unexpected value type for RoundRecord", "key", keys[i])
			continue
		}

		round, err := persistence.UnmarshalRoundRecord([]byte(data))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal RoundRecord, skipping", "key", keys[i], "error", err)
			continue
		}
		rounds = append(rounds, round)
	}

	persistence.SortRounds(rounds)
	return rounds, nil
}

// DeleteRound removes a round and its index entry
func (r *RedisPersistence) DeleteRound(roundID string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrStoreClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.roundKey(roundID))
		pipe.SRem(ctx, r.prefixKey(keySetRounds), roundID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete RoundRecord: %w", err)
	}
	return nil
}

// Close shuts down the Redis client
func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis round store closed")
	return nil
}

// HealthCheck pings Redis and checks the schema version key
func (r *RedisPersistence) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrStoreClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	_, err := r.client.Get(ctx, r.prefixKey(keySchemaVersion)).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}

	return nil
}
