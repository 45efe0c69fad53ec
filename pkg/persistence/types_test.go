package persistence

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgendreau/aavegotchi-ptd/pkg/types"
)

func testDocument(root string) *types.CommitmentDocument {
	return &types.CommitmentDocument{
		Root:   common.HexToHash(root),
		Unit:   types.UnitMinor,
		Claims: map[string]*types.ClaimRecord{},
	}
}

func TestNewRoundRecord(t *testing.T) {
	doc := testDocument("0x01")

	named, err := NewRoundRecord("2024-q3", "rewards.csv", doc)
	require.NoError(t, err)
	assert.Equal(t, "2024-q3", named.RoundID)
	assert.Equal(t, doc.Root, named.Root)
	assert.NotZero(t, named.CreatedAt)
	require.NoError(t, named.Validate())

	generated, err := NewRoundRecord("", "", doc)
	require.NoError(t, err)
	_, err = uuid.Parse(generated.RoundID)
	require.NoError(t, err, "generated round ids are uuids")

	_, err = NewRoundRecord("x", "", nil)
	require.Error(t, err)
}

func TestRoundRecord_Validate(t *testing.T) {
	var nilRecord *RoundRecord
	require.Error(t, nilRecord.Validate())

	require.Error(t, (&RoundRecord{RoundID: "r"}).Validate())

	rec := &RoundRecord{RoundID: "r", Root: common.HexToHash("0x02"), Document: testDocument("0x01")}
	err := rec.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}

func TestCheckOverwrite(t *testing.T) {
	a := &RoundRecord{RoundID: "r", Root: common.HexToHash("0x01")}
	b := &RoundRecord{RoundID: "r", Root: common.HexToHash("0x02")}

	skip, err := CheckOverwrite(nil, a)
	require.NoError(t, err)
	assert.False(t, skip)

	skip, err = CheckOverwrite(a, a)
	require.NoError(t, err)
	assert.True(t, skip)

	_, err = CheckOverwrite(a, b)
	require.ErrorIs(t, err, ErrRoundImmutable)
}

func TestSortRounds(t *testing.T) {
	rounds := []*RoundRecord{
		{RoundID: "c", CreatedAt: 2},
		{RoundID: "b", CreatedAt: 1},
		{RoundID: "a", CreatedAt: 1},
	}
	SortRounds(rounds)
	assert.Equal(t, "a", rounds[0].RoundID)
	assert.Equal(t, "b", rounds[1].RoundID)
	assert.Equal(t, "c", rounds[2].RoundID)
}

func TestUnmarshalRoundRecord_Errors(t *testing.T) {
	_, err := UnmarshalRoundRecord(nil)
	require.Error(t, err)

	_, err = UnmarshalRoundRecord([]byte("{"))
	require.Error(t, err)

	_, err = MarshalRoundRecord(nil)
	require.Error(t, err)
}
