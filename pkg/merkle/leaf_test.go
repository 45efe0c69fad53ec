package merkle

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgendreau/aavegotchi-ptd/pkg/types"
)

func TestEncodeLeaf_Layout(t *testing.T) {
	account := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	encoded, err := EncodeLeaf(account, big.NewInt(258))
	require.NoError(t, err)
	require.Len(t, encoded, 64)

	want := make([]byte, 64)
	want[31] = 0xaa
	want[62] = 0x01
	want[63] = 0x02
	require.Equal(t, want, encoded)
}

func TestLeafHash_IsDoubleKeccak(t *testing.T) {
	account := goldenAccounts[1]
	amt := goldenAmounts[1]

	encoded, err := EncodeLeaf(account, amt)
	require.NoError(t, err)

	leaf, err := LeafHash(account, amt)
	require.NoError(t, err)

	single := crypto.Keccak256Hash(encoded)
	require.NotEqual(t, [32]byte(single), leaf)
	require.Equal(t, [32]byte(crypto.Keccak256Hash(single.Bytes())), leaf)
}

func TestLeafHash_IndependentOfPosition(t *testing.T) {
	a, err := LeafHash(goldenAccounts[2], goldenAmounts[2])
	require.NoError(t, err)
	b, err := LeafHash(goldenAccounts[2], goldenAmounts[2])
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestLeafHash_RejectsOutOfRangeAmounts(t *testing.T) {
	tooLarge := new(big.Int).Lsh(big.NewInt(1), 256)

	for name, amt := range map[string]*big.Int{
		"nil":      nil,
		"negative": big.NewInt(-1),
		"2^256":    tooLarge,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LeafHash(goldenAccounts[0], amt)
			require.ErrorIs(t, err, types.ErrInvalidAmount)
		})
	}

	maxValue := new(big.Int).Sub(tooLarge, big.NewInt(1))
	_, err := LeafHash(goldenAccounts[0], maxValue)
	require.NoError(t, err)
}

func TestParseAccount(t *testing.T) {
	canonical := "0x52908400098527886E0F7030069857D2E4169EE7"

	for _, in := range []string{
		canonical,
		"0x52908400098527886e0f7030069857d2e4169ee7",
		"0X52908400098527886E0F7030069857D2E4169EE7",
		"52908400098527886e0f7030069857d2e4169ee7",
		"  0x52908400098527886e0f7030069857d2e4169ee7 ",
	} {
		addr, err := ParseAccount(in)
		require.NoError(t, err, in)
		assert.Equal(t, canonical, addr.Hex(), in)
	}

	for _, in := range []string{
		"",
		"0x",
		"0x1234",
		"0x52908400098527886e0f7030069857d2e4169ee7aa",
		"0xZZ908400098527886e0f7030069857d2e4169ee7",
		"vitalik.eth",
	} {
		_, err := ParseAccount(in)
		require.ErrorIs(t, err, types.ErrInvalidAddress, in)
	}
}
