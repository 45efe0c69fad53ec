// Package storetest holds the behaviour every IRoundStore backend must share.
package storetest

import (
	"fmt"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgendreau/aavegotchi-ptd/pkg/persistence"
	"github.com/pgendreau/aavegotchi-ptd/pkg/types"
)

// Factory opens a fresh, empty store for one test.
type Factory func(t *testing.T) persistence.IRoundStore

// SampleRound builds a small valid round whose root is derived from seed.
func SampleRound(roundID string, createdAt int64, seed string) *persistence.RoundRecord {
	root := crypto.Keccak256Hash([]byte(seed))
	account := common.HexToAddress("0x1111111111111111111111111111111111111111")
	doc := &types.CommitmentDocument{
		Root:         root,
		Unit:         types.UnitMinor,
		Decimals:     18,
		LeafEncoding: types.LeafEncoding,
		LeafHash:     types.LeafHashDescription,
		NodeHash:     types.NodeHashDescription,
		Claims: map[string]*types.ClaimRecord{
			account.Hex(): {Index: 0, Amount: "1000", Proof: []common.Hash{}},
		},
		Stats: types.Stats{IncludedWallets: 1, InputRows: 1, TotalAmount: "1000"},
	}
	return &persistence.RoundRecord{
		RoundID:   roundID,
		CreatedAt: createdAt,
		Root:      root,
		Source:    "rewards.csv",
		Document:  doc,
	}
}

// Run exercises the IRoundStore contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("SaveAndLoad", func(t *testing.T) {
		store := newStore(t)
		round := SampleRound("round-1", 100, "a")

		require.NoError(t, store.SaveRound(round))

		loaded, err := store.LoadRound("round-1")
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, round.RoundID, loaded.RoundID)
		assert.Equal(t, round.CreatedAt, loaded.CreatedAt)
		assert.Equal(t, round.Root, loaded.Root)
		assert.Equal(t, round.Source, loaded.Source)
		assert.Equal(t, round.Document, loaded.Document)
	})

	t.Run("LoadNotFound", func(t *testing.T) {
		store := newStore(t)
		loaded, err := store.LoadRound("missing")
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("SaveInvalid", func(t *testing.T) {
		store := newStore(t)
		require.Error(t, store.SaveRound(nil))

		noID := SampleRound("", 1, "a")
		require.Error(t, store.SaveRound(noID))

		mismatch := SampleRound("round-x", 1, "a")
		mismatch.Root = crypto.Keccak256Hash([]byte("other"))
		require.Error(t, store.SaveRound(mismatch))
	})

	t.Run("SameRootIsIdempotent", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.SaveRound(SampleRound("round-1", 100, "a")))
		require.NoError(t, store.SaveRound(SampleRound("round-1", 200, "a")))

		loaded, err := store.LoadRound("round-1")
		require.NoError(t, err)
		assert.Equal(t, int64(100), loaded.CreatedAt, "first save wins")
	})

	t.Run("DifferentRootIsRejected", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.SaveRound(SampleRound("round-1", 100, "a")))

		err := store.SaveRound(SampleRound("round-1", 100, "b"))
		require.ErrorIs(t, err, persistence.ErrRoundImmutable)

		loaded, err := store.LoadRound("round-1")
		require.NoError(t, err)
		assert.Equal(t, crypto.Keccak256Hash([]byte("a")), loaded.Root)
	})

	t.Run("ListSorted", func(t *testing.T) {
		store := newStore(t)
		rounds, err := store.ListRounds()
		require.NoError(t, err)
		assert.Empty(t, rounds)

		require.NoError(t, store.SaveRound(SampleRound("round-c", 300, "c")))
		require.NoError(t, store.SaveRound(SampleRound("round-b", 100, "b")))
		require.NoError(t, store.SaveRound(SampleRound("round-a", 100, "a")))

		rounds, err = store.ListRounds()
		require.NoError(t, err)
		require.Len(t, rounds, 3)
		assert.Equal(t, "round-a", rounds[0].RoundID)
		assert.Equal(t, "round-b", rounds[1].RoundID)
		assert.Equal(t, "round-c", rounds[2].RoundID)
	})

	t.Run("Delete", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.SaveRound(SampleRound("round-1", 100, "a")))

		require.NoError(t, store.DeleteRound("round-1"))
		loaded, err := store.LoadRound("round-1")
		require.NoError(t, err)
		assert.Nil(t, loaded)

		require.NoError(t, store.DeleteRound("round-1"), "delete is idempotent")

		rounds, err := store.ListRounds()
		require.NoError(t, err)
		assert.Empty(t, rounds)

		// a deleted round id can be reused for a new root
		require.NoError(t, store.SaveRound(SampleRound("round-1", 200, "b")))
	})

	t.Run("HealthCheck", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.HealthCheck())
	})

	t.Run("Close", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Close())
		require.NoError(t, store.Close(), "close is idempotent")

		require.ErrorIs(t, store.SaveRound(SampleRound("round-1", 1, "a")), persistence.ErrStoreClosed)
		_, err := store.LoadRound("round-1")
		require.ErrorIs(t, err, persistence.ErrStoreClosed)
		_, err = store.ListRounds()
		require.ErrorIs(t, err, persistence.ErrStoreClosed)
		require.ErrorIs(t, store.DeleteRound("round-1"), persistence.ErrStoreClosed)
		require.ErrorIs(t, store.HealthCheck(), persistence.ErrStoreClosed)
	})

	t.Run("ConcurrentSaves", func(t *testing.T) {
		store := newStore(t)
		const n = 20

		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := fmt.Sprintf("round-%02d", i)
				errs <- store.SaveRound(SampleRound(id, int64(i), id))
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		rounds, err := store.ListRounds()
		require.NoError(t, err)
		assert.Len(t, rounds, n)
	})

	t.Run("ConcurrentConflictingSaves", func(t *testing.T) {
		store := newStore(t)
		const n = 10

		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- store.SaveRound(SampleRound("contested", 1, fmt.Sprintf("seed-%d", i)))
			}(i)
		}
		wg.Wait()
		close(errs)

		succeeded := 0
		for err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			require.ErrorIs(t, err, persistence.ErrRoundImmutable)
		}
		assert.Equal(t, 1, succeeded, "exactly one root wins a round id")
	})
}
