package merkle

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/pgendreau/aavegotchi-ptd/pkg/amount"
	"github.com/pgendreau/aavegotchi-ptd/pkg/types"
)

// leafArguments is abi.encode(address, uint256): both words left padded to 32 bytes.
var leafArguments = func() abi.Arguments {
	addressType, _ := abi.NewType("address", "", nil)
	uint256Type, _ := abi.NewType("uint256", "", nil)
	return abi.Arguments{{Type: addressType}, {Type: uint256Type}}
}()

// ParseAccount decodes a hex address in any casing. The canonical form of the
// result is its EIP-55 checksum string (common.Address.Hex).
func ParseAccount(s string) (common.Address, error) {
	v := strings.TrimSpace(s)
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("%w: %q is not a 20-byte hex address", types.ErrInvalidAddress, s)
	}
	return common.HexToAddress(v), nil
}

// EncodeLeaf returns abi.encode(account, amount).
func EncodeLeaf(account common.Address, amt *big.Int) ([]byte, error) {
	if !amount.FitsUint256(amt) {
		return nil, fmt.Errorf("%w: %v is outside the uint256 range", types.ErrInvalidAmount, amt)
	}
	encoded, err := leafArguments.Pack(account, amt)
	if err != nil {
		return nil, fmt.Errorf("failed to abi encode leaf: %w", err)
	}
	return encoded, nil
}

// LeafHash computes keccak256(bytes.concat(keccak256(abi.encode(account, amount)))).
// The second hash is what the claim contract expects; a single hash is not
// interchangeable with it.
func LeafHash(account common.Address, amt *big.Int) ([32]byte, error) {
	encoded, err := EncodeLeaf(account, amt)
	if err != nil {
		return [32]byte{}, err
	}
	inner := crypto.Keccak256(encoded)
	return crypto.Keccak256Hash(inner), nil
}
