// Package verifier re-checks commitment documents the way the claim contract does,
// without sharing code with the tree builder. A document that passes here is safe
// to publish.
package verifier

import (
	"bytes"
	"fmt"
	"math/big"
	"math/bits"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"

	"github.com/pgendreau/aavegotchi-ptd/pkg/types"
)

func keccak256(data ...[]byte) (out [32]byte) {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	h.Sum(out[:0])
	return out
}

// LeafHash mirrors keccak256(bytes.concat(keccak256(abi.encode(account, amount)))).
func LeafHash(account common.Address, amount *big.Int) ([32]byte, error) {
	if amount == nil || amount.Sign() < 0 {
		return [32]byte{}, fmt.Errorf("%w: negative or missing amount", types.ErrInvalidAmount)
	}
	word, overflow := uint256.FromBig(amount)
	if overflow {
		return [32]byte{}, fmt.Errorf("%w: %s overflows uint256", types.ErrInvalidAmount, amount)
	}

	var accountWord [32]byte
	copy(accountWord[12:], account.Bytes())
	amountWord := word.Bytes32()

	inner := keccak256(accountWord[:], amountWord[:])
	return keccak256(inner[:]), nil
}

// VerifyClaim is MerkleProof.verify: fold the proof into the leaf with sorted pairs.
func VerifyClaim(root common.Hash, account common.Address, amount *big.Int, proof []common.Hash) (bool, error) {
	computed, err := LeafHash(account, amount)
	if err != nil {
		return false, err
	}
	for _, sibling := range proof {
		if bytes.Compare(computed[:], sibling[:]) <= 0 {
			computed = keccak256(computed[:], sibling[:])
		} else {
			computed = keccak256(sibling[:], computed[:])
		}
	}
	return computed == root, nil
}

// Report summarizes a document verification.
type Report struct {
	Root    common.Hash
	Checked int
	// Failures lists accounts whose proof does not reproduce the root, sorted
	Failures []string
}

func (r *Report) OK() bool {
	return len(r.Failures) == 0
}

// expectedDepth is the proof length for a tree of n leaves built with odd-node
// duplication: 0 for a single leaf, ceil(log2(n)) otherwise.
func expectedDepth(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

// VerifyDocument checks every claim of doc against its root and checks the
// document's structural invariants (unit, contiguous indices, proof depth, stats).
// Structural problems are returned as errors; bad proofs are listed in the report.
func VerifyDocument(doc *types.CommitmentDocument) (*Report, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", types.ErrEmptyInput)
	}
	if doc.Unit != types.UnitMinor {
		return nil, fmt.Errorf("unsupported document unit %q", doc.Unit)
	}
	if len(doc.Claims) == 0 {
		return nil, fmt.Errorf("%w: document has no claims", types.ErrEmptyInput)
	}

	n := len(doc.Claims)
	depth := expectedDepth(n)
	seenIndex := make(map[uint64]string, n)
	total := new(big.Int)
	report := &Report{Root: doc.Root}

	accounts := make([]string, 0, n)
	for account := range doc.Claims {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)

	for _, account := range accounts {
		claim := doc.Claims[account]
		if !common.IsHexAddress(account) {
			return nil, fmt.Errorf("%w: claim key %q", types.ErrInvalidAddress, account)
		}
		if claim.Index >= uint64(n) {
			return nil, fmt.Errorf("%w: %s has index %d but the document has %d claims",
				types.ErrIndexOutOfRange, account, claim.Index, n)
		}
		if other, ok := seenIndex[claim.Index]; ok {
			return nil, fmt.Errorf("%w: index %d is used by %s and %s", types.ErrInternal, claim.Index, other, account)
		}
		seenIndex[claim.Index] = account

		if len(claim.Proof) != depth {
			return nil, fmt.Errorf("%w: %s has a proof of length %d, expected %d",
				types.ErrInternal, account, len(claim.Proof), depth)
		}

		amt, err := claim.AmountInt()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", account, err)
		}
		if amt.Sign() == 0 {
			return nil, fmt.Errorf("%w: %s has a zero amount", types.ErrInvalidAmount, account)
		}
		total.Add(total, amt)

		ok, err := VerifyClaim(doc.Root, common.HexToAddress(account), amt, claim.Proof)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", account, err)
		}
		report.Checked++
		if !ok {
			report.Failures = append(report.Failures, account)
		}
	}

	if doc.Stats.IncludedWallets != n {
		return nil, fmt.Errorf("%w: stats report %d included wallets, document has %d",
			types.ErrInternal, doc.Stats.IncludedWallets, n)
	}
	if doc.Stats.TotalAmount != "" && doc.Stats.TotalAmount != total.String() {
		return nil, fmt.Errorf("%w: stats total %s does not match claims total %s",
			types.ErrInternal, doc.Stats.TotalAmount, total)
	}

	return report, nil
}
