package merkle

// MerkleTree is a binary keccak256 merkle tree over claim leaves.
// Node hashes use the sorted-pair convention, so a proof carries no
// left/right flags.
type MerkleTree struct {
	// Leaves contains the leaf hashes in claim-index order
	Leaves [][32]byte

	// Root is the merkle root hash
	Root [32]byte

	// levels stores all tree levels for proof generation
	// levels[0] = leaves, levels[len-1] = root
	levels [][][32]byte
}

// MerkleProof represents a proof that a leaf is included in the tree.
type MerkleProof struct {
	// LeafIndex is the index of the leaf in the leaves array
	LeafIndex int

	// Leaf is the hash of the leaf being proven
	Leaf [32]byte

	// Proof contains the sibling hashes from leaf to root
	// proof[0] is the sibling of the leaf, proof[len-1] is near the root
	Proof [][32]byte
}
