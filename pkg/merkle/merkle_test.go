package merkle

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/pgendreau/aavegotchi-ptd/pkg/types"
)

// Golden values computed with an independent keccak256 implementation.
var (
	goldenAccounts = []common.Address{
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
		common.HexToAddress("0x3333333333333333333333333333333333333333"),
	}
	goldenAmounts = []*big.Int{
		big.NewInt(1_000_000_000_000_000_000),
		big.NewInt(2_500_000_000_000_000_000),
		big.NewInt(1),
	}
	goldenLeaves = []common.Hash{
		common.HexToHash("0xb38ec842db1cd54e5e5ce48491f1a404551e9726ebda349d0478e189e0996dd4"),
		common.HexToHash("0xb92c48e9d7abe27fd8dfd6b5dfdbfb1c9a463f80c712b66f3a5180a090cccafc"),
		common.HexToHash("0xc3d2e29c8ded2ca4aa700f83273d097a3fb1683f4b5f291a8ee7d74ff26fc6b3"),
	}
	goldenRoot    = common.HexToHash("0x003b7244686c9908a56a01ce68781d590a133a733472488b15b0cc0ff3fdcdfc")
	goldenTwoRoot = common.HexToHash("0x5aafa111a8add43a7c11e121dc72ce8d1e138114e148625f6411b4cf96664fd7")
	goldenDupOfL2 = common.HexToHash("0x765adff394137693d6b95055b08da14698435b722178db8a24125a018c6006fb")
	goldenProofs  = [][]common.Hash{
		{goldenLeaves[1], goldenDupOfL2},
		{goldenLeaves[0], goldenDupOfL2},
		{goldenLeaves[2], goldenTwoRoot},
	}
)

func goldenLeafHashes(t *testing.T) [][32]byte {
	t.Helper()
	leaves := make([][32]byte, len(goldenAccounts))
	for i := range goldenAccounts {
		leaf, err := LeafHash(goldenAccounts[i], goldenAmounts[i])
		require.NoError(t, err)
		leaves[i] = leaf
	}
	return leaves
}

// randomHash generates a random 32-byte hash for testing
func randomHash() [32]byte {
	var hash [32]byte
	_, _ = rand.Read(hash[:]) // Ignore error in test helper
	return hash
}

func randomLeaves(n int) [][32]byte {
	leaves := make([][32]byte, n)
	for i := range leaves {
		leaves[i] = randomHash()
	}
	return leaves
}

func TestLeafHash_GoldenVectors(t *testing.T) {
	for i, leaf := range goldenLeafHashes(t) {
		require.Equal(t, [32]byte(goldenLeaves[i]), leaf, "leaf %d", i)
	}
}

func TestBuildTree_GoldenRootAndProofs(t *testing.T) {
	tree, err := BuildTree(goldenLeafHashes(t))
	require.NoError(t, err)
	require.Equal(t, [32]byte(goldenRoot), tree.Root)

	for i, want := range goldenProofs {
		proof, err := tree.GenerateProof(i)
		require.NoError(t, err)
		require.Len(t, proof.Proof, len(want))
		for j := range want {
			require.Equal(t, [32]byte(want[j]), proof.Proof[j], "proof %d element %d", i, j)
		}
	}
}

// TestBuildTree tests merkle tree construction with various numbers of leaves
func TestBuildTree(t *testing.T) {
	testCases := []struct {
		name      string
		numLeaves int
		numLevels int
	}{
		{"Single leaf", 1, 1},
		{"Two leaves", 2, 2},
		{"Three leaves", 3, 3},
		{"Four leaves (power of 2)", 4, 3},
		{"Five leaves", 5, 4},
		{"Seven leaves", 7, 4},
		{"Eight leaves (power of 2)", 8, 4},
		{"Nine leaves", 9, 5},
		{"Fifteen leaves", 15, 5},
		{"Sixteen leaves (power of 2)", 16, 5},
		{"Thirty three leaves", 33, 7},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			leaves := randomLeaves(tc.numLeaves)
			tree, err := BuildTree(leaves)
			require.NoError(t, err)
			require.NotNil(t, tree)

			layers := tree.Layers()
			require.Len(t, layers, tc.numLevels)
			for k := 0; k+1 < len(layers); k++ {
				require.Len(t, layers[k+1], (len(layers[k])+1)/2, "level %d", k+1)
			}
			require.Len(t, layers[len(layers)-1], 1)
			require.Equal(t, layers[len(layers)-1][0], tree.Root)

			// Generate and verify proofs for all leaves
			for i := 0; i < tc.numLeaves; i++ {
				proof, err := tree.GenerateProof(i)
				require.NoError(t, err)
				require.Equal(t, i, proof.LeafIndex)
				require.Equal(t, leaves[i], proof.Leaf)
				require.Len(t, proof.Proof, len(layers)-1)
				require.True(t, VerifyProof(proof, tree.Root), "Proof for leaf %d should be valid", i)
			}
		})
	}
}

func TestBuildLayers_OddLayerDuplication(t *testing.T) {
	leaves := randomLeaves(3)

	layers, err := BuildLayers(leaves)
	require.NoError(t, err)
	require.Len(t, layers, 3)

	require.Equal(t, [][32]byte{
		HashPair(leaves[0], leaves[1]),
		HashPair(leaves[2], leaves[2]),
	}, layers[1])
	require.Len(t, layers[2], 1)
	require.Equal(t, HashPair(layers[1][0], layers[1][1]), layers[2][0])
}

func TestBuildLayers_DuplicatesAtEveryLevel(t *testing.T) {
	// 5 -> 3 -> 2 -> 1: levels 0 and 1 are both odd
	leaves := randomLeaves(5)

	layers, err := BuildLayers(leaves)
	require.NoError(t, err)
	require.Len(t, layers, 4)

	require.Equal(t, HashPair(leaves[4], leaves[4]), layers[1][2])
	require.Equal(t, HashPair(layers[1][2], layers[1][2]), layers[2][1])

	proof, err := ProofFor(layers, 4)
	require.NoError(t, err)
	require.Equal(t, [][32]byte{leaves[4], layers[1][2], layers[2][0]}, proof)
}

func TestBuildLayers_DoesNotAliasInput(t *testing.T) {
	leaves := randomLeaves(4)
	layers, err := BuildLayers(leaves)
	require.NoError(t, err)

	leaves[0][0] ^= 0xFF
	require.NotEqual(t, leaves[0], layers[0][0])
}

// TestBuildTreeEmpty tests that building a tree from no leaves fails
func TestBuildTreeEmpty(t *testing.T) {
	tree, err := BuildTree(nil)
	require.ErrorIs(t, err, types.ErrEmptyInput)
	require.Nil(t, tree)

	_, err = BuildLayers([][32]byte{})
	require.ErrorIs(t, err, types.ErrEmptyInput)
}

func TestBuildTree_SingleLeaf(t *testing.T) {
	leaf, err := LeafHash(goldenAccounts[0], goldenAmounts[0])
	require.NoError(t, err)

	tree, err := BuildTree([][32]byte{leaf})
	require.NoError(t, err)
	require.Equal(t, leaf, tree.Root)
	require.Equal(t, [32]byte(goldenLeaves[0]), tree.Root)

	proof, err := tree.GenerateProof(0)
	require.NoError(t, err)
	require.Empty(t, proof.Proof)
	require.True(t, VerifyProof(proof, tree.Root))
}

func TestBuildTree_Deterministic(t *testing.T) {
	leaves := randomLeaves(11)

	first, err := BuildTree(leaves)
	require.NoError(t, err)
	second, err := BuildTree(leaves)
	require.NoError(t, err)

	require.Equal(t, first.Root, second.Root)
	for i := range leaves {
		p1, err := first.GenerateProof(i)
		require.NoError(t, err)
		p2, err := second.GenerateProof(i)
		require.NoError(t, err)
		require.Equal(t, p1.Proof, p2.Proof)
	}
}

func TestBuildTree_OrderMatters(t *testing.T) {
	leaves := randomLeaves(3)
	swapped := [][32]byte{leaves[0], leaves[2], leaves[1]}

	a, err := BuildTree(leaves)
	require.NoError(t, err)
	b, err := BuildTree(swapped)
	require.NoError(t, err)
	require.NotEqual(t, a.Root, b.Root)
}

func TestHashPair_Commutative(t *testing.T) {
	for i := 0; i < 32; i++ {
		a, b := randomHash(), randomHash()
		require.Equal(t, HashPair(a, b), HashPair(b, a))
	}

	a := randomHash()
	require.Equal(t, HashPair(a, a), HashPair(a, a))
}

func TestHashPair_SortsBigEndian(t *testing.T) {
	var low, high [32]byte
	low[31] = 0xFF // 0x00..ff
	high[0] = 0x01 // 0x01..00

	require.Equal(t, [32]byte(goldenTwoRoot), HashPair(goldenLeaves[0], goldenLeaves[1]))
	require.Equal(t, [32]byte(goldenTwoRoot), HashPair(goldenLeaves[1], goldenLeaves[0]))

	ordered := crypto.Keccak256Hash(append(low[:], high[:]...))
	require.Equal(t, [32]byte(ordered), HashPair(high, low))
}

func TestProofFor_OutOfRange(t *testing.T) {
	layers, err := BuildLayers(randomLeaves(4))
	require.NoError(t, err)

	for _, idx := range []int{-1, 4, 100} {
		t.Run(fmt.Sprintf("index_%d", idx), func(t *testing.T) {
			proof, err := ProofFor(layers, idx)
			require.ErrorIs(t, err, types.ErrIndexOutOfRange)
			require.Nil(t, proof)
		})
	}

	_, err = ProofFor(nil, 0)
	require.ErrorIs(t, err, types.ErrIndexOutOfRange)
}

// TestMerkleProofVerification tests proof verification with valid and invalid cases
func TestMerkleProofVerification(t *testing.T) {
	tree, err := BuildTree(randomLeaves(4))
	require.NoError(t, err)

	t.Run("Valid proof", func(t *testing.T) {
		proof, err := tree.GenerateProof(0)
		require.NoError(t, err)
		require.True(t, VerifyProof(proof, tree.Root))
	})

	t.Run("Invalid proof - wrong root", func(t *testing.T) {
		proof, err := tree.GenerateProof(0)
		require.NoError(t, err)
		require.False(t, VerifyProof(proof, [32]byte{1, 2, 3, 4, 5}))
	})

	t.Run("Invalid proof - tampered leaf", func(t *testing.T) {
		proof, err := tree.GenerateProof(0)
		require.NoError(t, err)
		proof.Leaf[0] ^= 0xFF
		require.False(t, VerifyProof(proof, tree.Root))
	})

	t.Run("Invalid proof - tampered sibling", func(t *testing.T) {
		proof, err := tree.GenerateProof(0)
		require.NoError(t, err)
		proof.Proof[1][0] ^= 0xFF
		require.False(t, VerifyProof(proof, tree.Root))
	})

	t.Run("Nil proof", func(t *testing.T) {
		require.False(t, VerifyProof(nil, tree.Root))
	})
}
