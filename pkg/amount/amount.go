// Package amount converts human-supplied reward quantities into exact minor-unit
// integers. Nothing in this package rounds: an input that cannot be represented
// exactly is rejected.
package amount

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	gethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/holiman/uint256"

	"github.com/pgendreau/aavegotchi-ptd/pkg/types"
)

// DefaultDecimals is the exponent between wei and ether.
const DefaultDecimals uint8 = 18

// maxUint256Digits is the number of decimal digits of 2^256-1.
const maxUint256Digits = 78

// Unit names the denomination of an input amount.
type Unit string

func (u Unit) String() string {
	return string(u)
}

const (
	UnitMinor   Unit = "minor"
	UnitDisplay Unit = "display"
)

// ParseUnit accepts the canonical unit names and the ethereum aliases used by
// upstream reward tables ("wei", "eth", "ether").
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minor", "wei":
		return UnitMinor, nil
	case "display", "eth", "ether":
		return UnitDisplay, nil
	default:
		return "", fmt.Errorf("unsupported unit %q: expected minor|wei or display|eth", s)
	}
}

// Normalize converts value expressed in unit into minor units.
// decimals is the exponent between the display and the minor unit.
func Normalize(value string, unit Unit, decimals uint8) (*big.Int, error) {
	v := strings.TrimSpace(value)

	var (
		out *big.Int
		err error
	)
	switch unit {
	case UnitMinor:
		out, err = parseMinor(v)
	case UnitDisplay:
		out, err = parseDisplay(v, decimals)
	default:
		return nil, fmt.Errorf("%w: unsupported unit %q", types.ErrInvalidAmount, unit)
	}
	if err != nil {
		return nil, err
	}
	if !FitsUint256(out) {
		return nil, fmt.Errorf("%w: %q exceeds uint256", types.ErrInvalidAmount, value)
	}
	return out, nil
}

// FitsUint256 reports whether x is a valid uint256 value.
func FitsUint256(x *big.Int) bool {
	if x == nil || x.Sign() < 0 {
		return false
	}
	_, overflow := uint256.FromBig(x)
	return !overflow
}

func parseMinor(v string) (*big.Int, error) {
	digits := strings.TrimPrefix(v, "+")
	if !isDigits(digits) {
		return nil, fmt.Errorf("%w: %q must be an integer minor-unit string", types.ErrInvalidAmount, v)
	}
	out, ok := gethmath.ParseBig256(digits)
	if !ok {
		return nil, fmt.Errorf("%w: %q exceeds uint256", types.ErrInvalidAmount, v)
	}
	return out, nil
}

// parseDisplay parses an exact decimal of the form [+-]digits[.digits][e[+-]digits].
// The number of fractional digits is taken literally, so "1.50" has two and
// "15e-1" has one; trailing zeros count against the decimals budget.
func parseDisplay(v string, decimals uint8) (*big.Int, error) {
	invalid := func(reason string) error {
		return fmt.Errorf("%w: %q %s", types.ErrInvalidAmount, v, reason)
	}

	s := v
	negative := false
	if len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		negative = s[0] == '-'
		s = s[1:]
	}

	exp := int64(0)
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		e, err := strconv.ParseInt(s[i+1:], 10, 32)
		if err != nil {
			return nil, invalid("is not a valid decimal")
		}
		exp = e
		s = s[:i]
	}

	intPart, fracPart := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
	}
	if intPart == "" && fracPart == "" {
		return nil, invalid("is not a valid decimal")
	}
	if (intPart != "" && !isDigits(intPart)) || (fracPart != "" && !isDigits(fracPart)) {
		return nil, invalid("is not a valid decimal")
	}

	coefficient, ok := new(big.Int).SetString(intPart+fracPart, 10)
	if !ok {
		return nil, invalid("is not a valid decimal")
	}
	// value = coefficient * 10^scale with scale = exp - len(fracPart)
	scale := exp - int64(len(fracPart))
	if -scale > int64(decimals) {
		return nil, invalid(fmt.Sprintf("has more than %d decimals", decimals))
	}
	// "-0" is zero, not a negative amount
	if coefficient.Sign() == 0 {
		return new(big.Int), nil
	}
	if negative {
		return nil, invalid("cannot be negative")
	}
	shift := scale + int64(decimals)
	if shift+int64(len(coefficient.String())) > maxUint256Digits {
		return nil, invalid("exceeds uint256")
	}

	multiplier := new(big.Int).Exp(big.NewInt(10), big.NewInt(shift), nil)
	return coefficient.Mul(coefficient, multiplier), nil
}

// FormatDisplay renders a minor-unit amount as a plain decimal in the display
// unit, without trailing zeros.
func FormatDisplay(minor *big.Int, decimals uint8) string {
	if minor == nil {
		return "0"
	}
	base := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(minor, base, new(big.Int))
	if frac.Sign() == 0 {
		return whole.String()
	}
	fracStr := frac.String()
	fracStr = strings.Repeat("0", int(decimals)-len(fracStr)) + fracStr
	return whole.String() + "." + strings.TrimRight(fracStr, "0")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
