// Package distribution assembles a claims table into the commitment document of a
// distribution round: one merkle root plus one inclusion proof per wallet.
package distribution

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pgendreau/aavegotchi-ptd/pkg/amount"
	"github.com/pgendreau/aavegotchi-ptd/pkg/merkle"
	"github.com/pgendreau/aavegotchi-ptd/pkg/types"
)

// Options controls how raw rows are interpreted.
type Options struct {
	// Unit of the amounts in the input table
	Unit amount.Unit
	// Decimals between the display and minor unit
	Decimals uint8
	// Workers bounds parallel leaf hashing; values below 2 hash sequentially
	Workers int
}

// DefaultOptions matches the ether/wei convention of the reward tables.
func DefaultOptions() Options {
	return Options{
		Unit:     amount.UnitMinor,
		Decimals: amount.DefaultDecimals,
		Workers:  1,
	}
}

// Result is everything produced for one round.
type Result struct {
	Document *types.CommitmentDocument
	// Claims are the included claims in index order
	Claims []*types.Claim
	// Audit holds the source rows of the included claims; it is not part of the commitment
	Audit types.AuditLog
}

// Compiler turns input rows into a commitment document for one round.
type Compiler struct {
	opts   Options
	logger *zap.Logger
}

// NewCompiler returns a Compiler; a nil logger disables logging.
func NewCompiler(opts Options, logger *zap.Logger) *Compiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compiler{opts: opts, logger: logger}
}

// Compile normalizes rows and assembles the commitment document.
// Any invalid row aborts the whole compilation.
func (c *Compiler) Compile(rows []types.InputRow) (*Result, error) {
	claims, err := NormalizeRows(rows, c.opts.Unit, c.opts.Decimals)
	if err != nil {
		return nil, err
	}

	result, err := Assemble(claims, c.opts)
	if err != nil {
		return nil, err
	}

	metadata := make(map[int]map[string]string, len(rows))
	for _, row := range rows {
		metadata[row.Row] = row.Metadata
	}
	for _, claim := range result.Claims {
		result.Audit[claim.Account.Hex()] = &types.AuditEntry{
			Row:     claim.Row,
			Index:   claim.Index,
			Columns: metadata[claim.Row],
		}
	}

	stats := result.Document.Stats
	c.logger.Sugar().Infow("Compiled claims table",
		"root", result.Document.Root.Hex(),
		"input_rows", stats.InputRows,
		"included_wallets", stats.IncludedWallets,
		"skipped_zero_amount_wallets", stats.SkippedZeroAmountWallets,
		"total_amount", stats.TotalAmount,
	)

	return result, nil
}

// NormalizeRows parses the account and amount of every row. Errors carry the row
// number and the raw account so the source data can be fixed.
func NormalizeRows(rows []types.InputRow, unit amount.Unit, decimals uint8) ([]*types.Claim, error) {
	claims := make([]*types.Claim, 0, len(rows))
	for _, row := range rows {
		account, err := merkle.ParseAccount(row.Account)
		if err != nil {
			return nil, &types.RowError{Row: row.Row, Account: row.Account, Err: err}
		}

		amt, err := amount.Normalize(row.Amount, unit, decimals)
		if err != nil {
			return nil, &types.RowError{Row: row.Row, Account: account.Hex(), Err: err}
		}

		claims = append(claims, &types.Claim{
			Account: account,
			Amount:  amt,
			Row:     row.Row,
		})
	}
	return claims, nil
}

// Assemble builds the commitment document from normalized claims.
//
// Zero-amount claims are dropped before indices are assigned; the remaining claims
// keep their input order and get indices 0..n-1. The input slice is not modified.
func Assemble(claims []*types.Claim, opts Options) (*Result, error) {
	seen := make(map[common.Address]int, len(claims))
	included := make([]*types.Claim, 0, len(claims))
	skippedZero := 0
	total := new(big.Int)

	for _, claim := range claims {
		if claim == nil {
			return nil, fmt.Errorf("%w: nil claim", types.ErrInternal)
		}
		if !amount.FitsUint256(claim.Amount) {
			return nil, &types.RowError{Row: claim.Row, Account: claim.Account.Hex(),
				Err: fmt.Errorf("%w: %v is outside the uint256 range", types.ErrInvalidAmount, claim.Amount)}
		}
		if firstRow, ok := seen[claim.Account]; ok {
			return nil, &types.RowError{Row: claim.Row, Account: claim.Account.Hex(),
				Err: fmt.Errorf("%w: already listed at row %d", types.ErrDuplicateAccount, firstRow)}
		}
		seen[claim.Account] = claim.Row

		if claim.Amount.Sign() == 0 {
			skippedZero++
			continue
		}

		included = append(included, &types.Claim{
			Index:   uint64(len(included)),
			Account: claim.Account,
			Amount:  new(big.Int).Set(claim.Amount),
			Row:     claim.Row,
		})
		total.Add(total, claim.Amount)
	}

	if len(included) == 0 {
		return nil, fmt.Errorf("%w: all %d rows were skipped (no wallets with a non-zero amount)",
			types.ErrEmptyInput, len(claims))
	}

	leaves, err := hashLeaves(included, opts.Workers)
	if err != nil {
		return nil, err
	}

	tree, err := merkle.BuildTree(leaves)
	if err != nil {
		return nil, err
	}

	doc := &types.CommitmentDocument{
		Root:         common.Hash(tree.Root),
		Unit:         types.UnitMinor,
		Decimals:     opts.Decimals,
		LeafEncoding: append([]string(nil), types.LeafEncoding...),
		LeafHash:     types.LeafHashDescription,
		NodeHash:     types.NodeHashDescription,
		Claims:       make(map[string]*types.ClaimRecord, len(included)),
		Stats: types.Stats{
			IncludedWallets:          len(included),
			SkippedZeroAmountWallets: skippedZero,
			InputRows:                len(claims),
			TotalAmount:              total.String(),
		},
	}

	for _, claim := range included {
		proof, err := merkle.ProofFor(tree.Layers(), int(claim.Index))
		if err != nil {
			return nil, fmt.Errorf("proof extraction for %s: %w", claim.Account.Hex(), err)
		}
		if merkle.ProcessProof(leaves[claim.Index], proof) != tree.Root {
			return nil, fmt.Errorf("%w: proof for %s (index %d) does not reproduce the root",
				types.ErrInternal, claim.Account.Hex(), claim.Index)
		}

		record := &types.ClaimRecord{
			Index:  claim.Index,
			Amount: claim.Amount.String(),
			Proof:  make([]common.Hash, len(proof)),
		}
		for i, sibling := range proof {
			record.Proof[i] = common.Hash(sibling)
		}
		if opts.Unit == amount.UnitDisplay {
			record.AmountDisplay = amount.FormatDisplay(claim.Amount, opts.Decimals)
		}
		doc.Claims[claim.Account.Hex()] = record
	}

	return &Result{
		Document: doc,
		Claims:   included,
		Audit:    make(types.AuditLog, len(included)),
	}, nil
}

// hashLeaves computes the leaf of every claim. Leaves are independent of each
// other, so they may be hashed concurrently; the output keeps index order.
func hashLeaves(claims []*types.Claim, workers int) ([][32]byte, error) {
	leaves := make([][32]byte, len(claims))

	if workers < 2 {
		for i, claim := range claims {
			leaf, err := merkle.LeafHash(claim.Account, claim.Amount)
			if err != nil {
				return nil, &types.RowError{Row: claim.Row, Account: claim.Account.Hex(), Err: err}
			}
			leaves[i] = leaf
		}
		return leaves, nil
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, claim := range claims {
		g.Go(func() error {
			leaf, err := merkle.LeafHash(claim.Account, claim.Amount)
			if err != nil {
				return &types.RowError{Row: claim.Row, Account: claim.Account.Hex(), Err: err}
			}
			leaves[i] = leaf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return leaves, nil
}
