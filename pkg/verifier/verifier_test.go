package verifier

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgendreau/aavegotchi-ptd/pkg/distribution"
	"github.com/pgendreau/aavegotchi-ptd/pkg/merkle"
	"github.com/pgendreau/aavegotchi-ptd/pkg/types"
)

var (
	acct1 = common.HexToAddress("0x1111111111111111111111111111111111111111")
	acct2 = common.HexToAddress("0x2222222222222222222222222222222222222222")
	acct3 = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e17))
}

func goldenDocument(t *testing.T) *types.CommitmentDocument {
	t.Helper()
	rows := []types.InputRow{
		{Row: 1, Account: acct1.Hex(), Amount: eth(10).String()},
		{Row: 2, Account: acct2.Hex(), Amount: eth(25).String()},
		{Row: 3, Account: acct3.Hex(), Amount: "1"},
	}
	result, err := distribution.NewCompiler(distribution.DefaultOptions(), nil).Compile(rows)
	require.NoError(t, err)
	return result.Document
}

func TestLeafHash_GoldenVectors(t *testing.T) {
	tests := []struct {
		account common.Address
		amount  *big.Int
		want    string
	}{
		{acct1, eth(10), "0xb38ec842db1cd54e5e5ce48491f1a404551e9726ebda349d0478e189e0996dd4"},
		{acct2, eth(25), "0xb92c48e9d7abe27fd8dfd6b5dfdbfb1c9a463f80c712b66f3a5180a090cccafc"},
		{acct3, big.NewInt(1), "0xc3d2e29c8ded2ca4aa700f83273d097a3fb1683f4b5f291a8ee7d74ff26fc6b3"},
	}
	for _, tt := range tests {
		t.Run(tt.account.Hex(), func(t *testing.T) {
			got, err := LeafHash(tt.account, tt.amount)
			require.NoError(t, err)
			assert.Equal(t, tt.want, common.Hash(got).Hex())
		})
	}
}

func TestLeafHash_AgreesWithTreeBuilder(t *testing.T) {
	maxUint := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	for i, amt := range []*big.Int{big.NewInt(0), big.NewInt(1), eth(123456), maxUint} {
		account := common.BigToAddress(big.NewInt(int64(i*977 + 5)))
		want, err := merkle.LeafHash(account, amt)
		require.NoError(t, err)
		got, err := LeafHash(account, amt)
		require.NoError(t, err)
		assert.Equal(t, want, got, "amount %s", amt)
	}
}

func TestLeafHash_RejectsOutOfRange(t *testing.T) {
	_, err := LeafHash(acct1, big.NewInt(-1))
	require.ErrorIs(t, err, types.ErrInvalidAmount)

	_, err = LeafHash(acct1, nil)
	require.ErrorIs(t, err, types.ErrInvalidAmount)

	_, err = LeafHash(acct1, new(big.Int).Lsh(big.NewInt(1), 256))
	require.ErrorIs(t, err, types.ErrInvalidAmount)
}

func TestExpectedDepth(t *testing.T) {
	for n, want := range map[int]int{1: 0, 2: 1, 3: 2, 4: 2, 5: 3, 8: 3, 9: 4, 33: 6} {
		assert.Equal(t, want, expectedDepth(n), "n=%d", n)
	}
}

func TestVerifyDocument_Golden(t *testing.T) {
	doc := goldenDocument(t)

	report, err := VerifyDocument(doc)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 3, report.Checked)
	assert.Equal(t, "0x003b7244686c9908a56a01ce68781d590a133a733472488b15b0cc0ff3fdcdfc", report.Root.Hex())
}

func TestVerifyDocument_ManySizes(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 5, 7, 16, 17, 100} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			rows := make([]types.InputRow, n)
			for i := range rows {
				rows[i] = types.InputRow{
					Row:     i + 1,
					Account: common.BigToAddress(big.NewInt(int64(i + 1))).Hex(),
					Amount:  fmt.Sprintf("%d", 1000+i),
				}
			}
			result, err := distribution.NewCompiler(distribution.DefaultOptions(), nil).Compile(rows)
			require.NoError(t, err)

			report, err := VerifyDocument(result.Document)
			require.NoError(t, err)
			assert.True(t, report.OK())
			assert.Equal(t, n, report.Checked)
		})
	}
}

func TestVerifyDocument_DetectsTampering(t *testing.T) {
	t.Run("amount changed", func(t *testing.T) {
		doc := goldenDocument(t)
		doc.Claims[acct2.Hex()].Amount = eth(26).String()
		doc.Stats.TotalAmount = ""

		report, err := VerifyDocument(doc)
		require.NoError(t, err)
		assert.False(t, report.OK())
		assert.Equal(t, []string{acct2.Hex()}, report.Failures)
	})

	t.Run("root changed", func(t *testing.T) {
		doc := goldenDocument(t)
		doc.Root[0] ^= 0xff

		report, err := VerifyDocument(doc)
		require.NoError(t, err)
		assert.Len(t, report.Failures, 3)
	})

	t.Run("proof sibling changed", func(t *testing.T) {
		doc := goldenDocument(t)
		doc.Claims[acct3.Hex()].Proof[1][31] ^= 0x01

		report, err := VerifyDocument(doc)
		require.NoError(t, err)
		assert.Equal(t, []string{acct3.Hex()}, report.Failures)
	})

	t.Run("proof truncated", func(t *testing.T) {
		doc := goldenDocument(t)
		doc.Claims[acct1.Hex()].Proof = doc.Claims[acct1.Hex()].Proof[:1]

		_, err := VerifyDocument(doc)
		require.ErrorIs(t, err, types.ErrInternal)
	})

	t.Run("duplicate index", func(t *testing.T) {
		doc := goldenDocument(t)
		doc.Claims[acct2.Hex()].Index = 0

		_, err := VerifyDocument(doc)
		require.ErrorIs(t, err, types.ErrInternal)
	})

	t.Run("index out of range", func(t *testing.T) {
		doc := goldenDocument(t)
		doc.Claims[acct2.Hex()].Index = 3

		_, err := VerifyDocument(doc)
		require.ErrorIs(t, err, types.ErrIndexOutOfRange)
	})

	t.Run("stats total mismatch", func(t *testing.T) {
		doc := goldenDocument(t)
		doc.Stats.TotalAmount = "1"

		_, err := VerifyDocument(doc)
		require.ErrorIs(t, err, types.ErrInternal)
	})

	t.Run("wrong unit", func(t *testing.T) {
		doc := goldenDocument(t)
		doc.Unit = "display"

		_, err := VerifyDocument(doc)
		require.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := VerifyDocument(&types.CommitmentDocument{Unit: types.UnitMinor})
		require.ErrorIs(t, err, types.ErrEmptyInput)
	})
}

func TestVerifyClaim_SingleLeaf(t *testing.T) {
	leaf, err := LeafHash(acct1, big.NewInt(42))
	require.NoError(t, err)

	ok, err := VerifyClaim(common.Hash(leaf), acct1, big.NewInt(42), nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyClaim(common.Hash(leaf), acct1, big.NewInt(43), nil)
	require.NoError(t, err)
	assert.False(t, ok)
}
