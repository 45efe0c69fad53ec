package badger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"

	"github.com/pgendreau/aavegotchi-ptd/pkg/persistence"
)

// Key prefixes for namespacing
const (
	keyPrefixRound       = "round:"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "v1"
)

const gcInterval = 5 * time.Minute

// BadgerPersistence is a disk-backed round store.
type BadgerPersistence struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

var _ persistence.IRoundStore = (*BadgerPersistence)(nil)

// NewBadgerPersistence opens (or creates) a Badger database at dataPath with
// SyncWrites enabled and starts the value log GC loop.
func NewBadgerPersistence(dataPath string, logger *zap.Logger) (*BadgerPersistence, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bp := &BadgerPersistence{
		db:     db,
		logger: logger,
	}

	if err := bp.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bp.gcCancel = cancel
	bp.gcWg.Add(1)
	go bp.runGC(ctx)

	logger.Sugar().Infow("Badger round store initialized", "path", absPath)

	return bp, nil
}

// initSchema initializes or validates the schema version
func (b *BadgerPersistence) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}

		return nil
	})
}

func (b *BadgerPersistence) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(0.5)
			if err != nil && !errors.Is(err, badgerdb.ErrNoRewrite) {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func roundKey(roundID string) []byte {
	return []byte(keyPrefixRound + roundID)
}

// getRound reads a round inside txn. Returns nil when the key is absent.
func getRound(txn *badgerdb.Txn, roundID string) (*persistence.RoundRecord, error) {
	item, err := txn.Get(roundKey(roundID))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var data []byte
	err = item.Value(func(val []byte) error {
		data = append([]byte{}, val...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return persistence.UnmarshalRoundRecord(data)
}

// SaveRound persists a round record; the existence check and the write share one transaction.
func (b *BadgerPersistence) SaveRound(round *persistence.RoundRecord) error {
	if err := round.Validate(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrStoreClosed
	}

	data, err := persistence.MarshalRoundRecord(round)
	if err != nil {
		return err
	}

	err = b.db.Update(func(txn *badgerdb.Txn) error {
		existing, err := getRound(txn, round.RoundID)
		if err != nil {
			return fmt.Errorf("failed to read existing round: %w", err)
		}
		if skip, err := persistence.CheckOverwrite(existing, round); skip || err != nil {
			return err
		}
		return txn.Set(roundKey(round.RoundID), data)
	})
	if errors.Is(err, badgerdb.ErrConflict) {
		// A concurrent transaction wrote the same round first; re-check against it.
		return b.saveAfterConflict(round)
	}
	return err
}

func (b *BadgerPersistence) saveAfterConflict(round *persistence.RoundRecord) error {
	return b.db.View(func(txn *badgerdb.Txn) error {
		existing, err := getRound(txn, round.RoundID)
		if err != nil {
			return fmt.Errorf("failed to read existing round: %w", err)
		}
		if existing == nil {
			return fmt.Errorf("failed to save round %s: %w", round.RoundID, badgerdb.ErrConflict)
		}
		_, err = persistence.CheckOverwrite(existing, round)
		return err
	})
}

// LoadRound retrieves a round by id
func (b *BadgerPersistence) LoadRound(roundID string) (*persistence.RoundRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrStoreClosed
	}

	var round *persistence.RoundRecord
	err := b.db.View(func(txn *badgerdb.Txn) error {
		var err error
		round, err = getRound(txn, roundID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load RoundRecord: %w", err)
	}
	return round, nil
}

// ListRounds returns all rounds sorted by creation time
func (b *BadgerPersistence) ListRounds() ([]*persistence.RoundRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrStoreClosed
	}

	rounds := make([]*persistence.RoundRecord, 0)

	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixRound)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			var data []byte
			err := item.Value(func(val []byte) error {
				data = append([]byte{}, val...)
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}

			round, err := persistence.UnmarshalRoundRecord(data)
			if err != nil {
				b.logger.Sugar().Warnw("Failed to unmarshal RoundRecord, skipping",
					"key", string(item.Key()), "error", err)
				continue
			}

			rounds = append(rounds, round)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list RoundRecords: %w", err)
	}

	persistence.SortRounds(rounds)
	return rounds, nil
}

// DeleteRound removes a round
func (b *BadgerPersistence) DeleteRound(roundID string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrStoreClosed
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(roundKey(roundID))
	})
}

// Close stops the GC loop and closes the database
func (b *BadgerPersistence) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger round store closed")
	return nil
}

// HealthCheck verifies the database is readable
func (b *BadgerPersistence) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrStoreClosed
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}
