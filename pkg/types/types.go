package types

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// UnitMinor is the only unit a commitment document is expressed in.
	UnitMinor = "minor"

	LeafHashDescription = "keccak256(bytes.concat(keccak256(abi.encode(account, amount))))"
	NodeHashDescription = "keccak256(min(a,b) || max(a,b))  // sorted-pair hash"
)

// LeafEncoding is the ABI tuple hashed into every leaf.
var LeafEncoding = []string{"address", "uint256"}

// InputRow is one raw entry of a claims table before normalization.
type InputRow struct {
	// Row is the 1-based data row number used in error messages
	Row int

	Account string
	Amount  string

	// Metadata holds every column of the source row for the audit sidecar
	Metadata map[string]string
}

// Claim is a normalized entry that made it into the tree.
type Claim struct {
	// Index is the leaf position; it is not part of the leaf hash
	Index   uint64
	Account common.Address
	// Amount in minor units
	Amount *big.Int
	Row    int
}

// ClaimRecord is the per-wallet entry of a commitment document.
type ClaimRecord struct {
	Index         uint64        `json:"index,string"`
	Amount        string        `json:"amount"`
	AmountDisplay string        `json:"amountDisplay,omitempty"`
	Proof         []common.Hash `json:"proof"`
}

// AmountInt parses the minor-unit amount of the record.
func (c *ClaimRecord) AmountInt() (*big.Int, error) {
	v, ok := new(big.Int).SetString(c.Amount, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, c.Amount)
	}
	return v, nil
}

type Stats struct {
	IncludedWallets          int    `json:"includedWallets"`
	SkippedZeroAmountWallets int    `json:"skippedZeroAmountWallets"`
	InputRows                int    `json:"inputRows"`
	TotalAmount              string `json:"totalAmount"`
}

// CommitmentDocument is the published output of one distribution round.
// It is built once and never mutated; a new round gets a new document.
type CommitmentDocument struct {
	Root         common.Hash             `json:"root"`
	Unit         string                  `json:"unit"`
	Decimals     uint8                   `json:"decimals"`
	LeafEncoding []string                `json:"leafEncoding"`
	LeafHash     string                  `json:"leafHash"`
	NodeHash     string                  `json:"nodeHash"`
	Claims       map[string]*ClaimRecord `json:"claims"`
	Stats        Stats                   `json:"stats"`
}

// ClaimFor looks up a claim by account regardless of the casing used by the caller.
// Documents written elsewhere may key claims by lower-case addresses.
func (d *CommitmentDocument) ClaimFor(account common.Address) (*ClaimRecord, bool) {
	key := account.Hex()
	if c, ok := d.Claims[key]; ok {
		return c, true
	}
	for k, c := range d.Claims {
		if strings.EqualFold(strings.TrimSpace(k), key) {
			return c, true
		}
	}
	return nil, false
}

// AuditEntry keeps the raw source row of an included claim for operator review.
type AuditEntry struct {
	Row     int               `json:"row"`
	Index   uint64            `json:"index,string"`
	Columns map[string]string `json:"columns,omitempty"`
}

// AuditLog maps checksummed accounts to their audit entry. It is never hashed.
type AuditLog map[string]*AuditEntry
