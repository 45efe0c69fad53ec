package merkle

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/pgendreau/aavegotchi-ptd/pkg/types"
)

// BuildLayers builds every level of the tree bottom-up.
// layers[0] is a copy of leaves and layers[len-1] holds only the root.
//
// If there's an odd number of nodes at any level, the last node is paired with
// itself. It is never carried up unchanged.
func BuildLayers(leaves [][32]byte) ([][][32]byte, error) {
	if len(leaves) == 0 {
		return nil, fmt.Errorf("%w: cannot build merkle tree from empty leaf list", types.ErrEmptyInput)
	}

	currentLevel := make([][32]byte, len(leaves))
	copy(currentLevel, leaves)

	levels := [][][32]byte{currentLevel}
	for len(currentLevel) > 1 {
		nextLevel := make([][32]byte, 0, (len(currentLevel)+1)/2)

		for i := 0; i < len(currentLevel); i += 2 {
			left := currentLevel[i]
			right := left
			if i+1 < len(currentLevel) {
				right = currentLevel[i+1]
			}
			nextLevel = append(nextLevel, HashPair(left, right))
		}

		levels = append(levels, nextLevel)
		currentLevel = nextLevel
	}

	return levels, nil
}

// BuildTree creates a merkle tree from leaves kept in the given order.
func BuildTree(leaves [][32]byte) (*MerkleTree, error) {
	levels, err := BuildLayers(leaves)
	if err != nil {
		return nil, err
	}

	top := levels[len(levels)-1]
	if len(top) != 1 {
		return nil, fmt.Errorf("%w: final level has %d nodes instead of 1", types.ErrInternal, len(top))
	}

	return &MerkleTree{
		Leaves: levels[0],
		Root:   top[0],
		levels: levels,
	}, nil
}

// Layers returns the stored levels of the tree. Callers must not modify them.
func (mt *MerkleTree) Layers() [][][32]byte {
	return mt.levels
}

// ProofFor returns the sibling path of the leaf at leafIndex, from the leaf level
// up to (excluding) the root.
func ProofFor(layers [][][32]byte, leafIndex int) ([][32]byte, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("%w: no layers", types.ErrIndexOutOfRange)
	}
	if leafIndex < 0 || leafIndex >= len(layers[0]) {
		return nil, fmt.Errorf("%w: leaf index %d out of bounds (tree has %d leaves)",
			types.ErrIndexOutOfRange, leafIndex, len(layers[0]))
	}

	proof := make([][32]byte, 0, len(layers)-1)
	index := leafIndex

	for level := 0; level < len(layers)-1; level++ {
		currentLevel := layers[level]
		if index >= len(currentLevel) {
			return nil, fmt.Errorf("%w: index %d outside level %d of size %d",
				types.ErrIndexOutOfRange, index, level, len(currentLevel))
		}

		siblingIndex := index ^ 1
		if siblingIndex >= len(currentLevel) {
			// Odd last node, its sibling was itself during building
			siblingIndex = index
		}
		proof = append(proof, currentLevel[siblingIndex])

		index /= 2
	}

	return proof, nil
}

// GenerateProof creates a merkle proof for the leaf at the given index.
func (mt *MerkleTree) GenerateProof(leafIndex int) (*MerkleProof, error) {
	proof, err := ProofFor(mt.levels, leafIndex)
	if err != nil {
		return nil, err
	}

	return &MerkleProof{
		LeafIndex: leafIndex,
		Leaf:      mt.Leaves[leafIndex],
		Proof:     proof,
	}, nil
}

// ProcessProof folds proof into leaf with HashPair and returns the resulting root.
func ProcessProof(leaf [32]byte, proof [][32]byte) [32]byte {
	computed := leaf
	for _, sibling := range proof {
		computed = HashPair(computed, sibling)
	}
	return computed
}

// VerifyProof verifies that a leaf is included in the merkle tree with the given root.
// LeafIndex is not consulted: sorted pairs make the position irrelevant.
func VerifyProof(proof *MerkleProof, root [32]byte) bool {
	if proof == nil {
		return false
	}
	return ProcessProof(proof.Leaf, proof.Proof) == root
}

// HashPair computes keccak256(min(a,b) || max(a,b)), comparing the two hashes as
// big-endian unsigned integers. HashPair(a, b) == HashPair(b, a).
func HashPair(a, b [32]byte) [32]byte {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}

	data := make([]byte, 64)
	copy(data[0:32], a[:])
	copy(data[32:64], b[:])

	return crypto.Keccak256Hash(data)
}
