package persistence

// IRoundStore persists the commitment document of every distribution round.
// All implementations must be thread-safe.
//
// A round is immutable once saved: the same round id may be saved again only
// with the same root.
type IRoundStore interface {
	// SaveRound persists a round record keyed by its round id.
	// Saving a round that already exists with the same root is a no-op.
	// Saving it with a different root returns ErrRoundImmutable.
	SaveRound(round *RoundRecord) error

	// LoadRound retrieves a round by id.
	// Returns nil if the round doesn't exist, error only on storage failure.
	LoadRound(roundID string) (*RoundRecord, error)

	// ListRounds returns all rounds sorted by creation time, then round id.
	// Returns empty slice if no rounds exist.
	ListRounds() ([]*RoundRecord, error)

	// DeleteRound removes a round. Idempotent.
	DeleteRound(roundID string) error

	// Close cleanly shuts down the store. Idempotent; every other call fails afterwards.
	Close() error

	// HealthCheck verifies the store is operational.
	HealthCheck() error
}
