package memory

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/pgendreau/aavegotchi-ptd/pkg/persistence"
)

// MemoryPersistence is an in-memory implementation of IRoundStore.
// This implementation is intended for TESTING and dry runs only.
//
// Records are kept serialized so callers never share memory with the store.
type MemoryPersistence struct {
	mu     sync.RWMutex
	rounds map[string][]byte
	closed bool
}

// NewMemoryPersistence creates a new in-memory round store.
// Logs a warning since nothing survives the process.
func NewMemoryPersistence(logger *zap.Logger) *MemoryPersistence {
	if logger != nil {
		logger.Sugar().Warnw("Using in-memory round store, rounds are lost on exit")
	}
	return &MemoryPersistence{
		rounds: make(map[string][]byte),
	}
}

var _ persistence.IRoundStore = (*MemoryPersistence)(nil)

// SaveRound persists a round record.
func (m *MemoryPersistence) SaveRound(round *persistence.RoundRecord) error {
	if err := round.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrStoreClosed
	}

	if data, ok := m.rounds[round.RoundID]; ok {
		existing, err := persistence.UnmarshalRoundRecord(data)
		if err != nil {
			return fmt.Errorf("failed to unmarshal existing RoundRecord: %w", err)
		}
		if skip, err := persistence.CheckOverwrite(existing, round); skip || err != nil {
			return err
		}
	}

	data, err := persistence.MarshalRoundRecord(round)
	if err != nil {
		return err
	}
	m.rounds[round.RoundID] = data
	return nil
}

// LoadRound retrieves a round by id.
func (m *MemoryPersistence) LoadRound(roundID string) (*persistence.RoundRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrStoreClosed
	}

	data, ok := m.rounds[roundID]
	if !ok {
		return nil, nil // Not found is not an error
	}
	return persistence.UnmarshalRoundRecord(data)
}

// ListRounds returns all rounds sorted by creation time.
func (m *MemoryPersistence) ListRounds() ([]*persistence.RoundRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrStoreClosed
	}

	result := make([]*persistence.RoundRecord, 0, len(m.rounds))
	for _, data := range m.rounds {
		round, err := persistence.UnmarshalRoundRecord(data)
		if err != nil {
			return nil, err
		}
		result = append(result, round)
	}
	persistence.SortRounds(result)
	return result, nil
}

// DeleteRound removes a round.
func (m *MemoryPersistence) DeleteRound(roundID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrStoreClosed
	}

	delete(m.rounds, roundID)
	return nil
}

// Close marks the store closed and drops its contents.
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil // Already closed, idempotent
	}
	m.closed = true
	m.rounds = nil
	return nil
}

// HealthCheck verifies the store is open.
func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return persistence.ErrStoreClosed
	}
	return nil
}
