// Package amount converts human-entered token amounts into ledger base units.
package amount

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// DefaultDecimals is the fixed-point scale used by earn-contract tokens.
const DefaultDecimals = 18

const (
	// maxInputLen bounds the raw input; any uint256 amount at 18 decimals fits well within it.
	maxInputLen = 256
	// maxUint256Digits is the number of decimal digits in 2^256-1.
	maxUint256Digits = 78
)

// ErrInvalidAmount is returned for empty, non-numeric, non-positive or out-of-range input.
var ErrInvalidAmount = errors.New("invalid amount")

// ToBaseUnits converts a decimal string to base units at DefaultDecimals.
func ToBaseUnits(input string) (*big.Int, error) {
	return ToBaseUnitsWithDecimals(input, DefaultDecimals)
}

// ToBaseUnitsWithDecimals returns round(input * 10^decimals). Fractional digits beyond
// the scale are rounded half away from zero. The result must be positive and fit in
// a uint256.
func ToBaseUnitsWithDecimals(input string, decimals int32) (*big.Int, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	if len(s) > maxInputLen {
		return nil, fmt.Errorf("%w: longer than %d characters", ErrInvalidAmount, maxInputLen)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, input)
	}
	if !d.IsPositive() {
		return nil, fmt.Errorf("%w: %q must be greater than zero", ErrInvalidAmount, input)
	}

	// intDigits is the integer digit count once scaled to base units. It is
	// checked before Shift and Round, which materialize 10^|exponent|.
	intDigits := int64(d.NumDigits()) + int64(d.Exponent()) + int64(decimals)
	if intDigits > maxUint256Digits {
		return nil, fmt.Errorf("%w: %q exceeds uint256", ErrInvalidAmount, input)
	}
	if intDigits < 0 {
		return nil, fmt.Errorf("%w: %q is below the smallest unit", ErrInvalidAmount, input)
	}

	units := d.Shift(decimals).Round(0).BigInt()
	if units.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %q is below the smallest unit", ErrInvalidAmount, input)
	}
	if _, overflow := uint256.FromBig(units); overflow {
		return nil, fmt.Errorf("%w: %q exceeds uint256", ErrInvalidAmount, input)
	}
	return units, nil
}

// FromBaseUnits renders base units as an exact decimal string at DefaultDecimals.
func FromBaseUnits(units *big.Int) string {
	return FromBaseUnitsWithDecimals(units, DefaultDecimals)
}

// FromBaseUnitsWithDecimals renders base units as an exact decimal string.
func FromBaseUnitsWithDecimals(units *big.Int, decimals int32) string {
	if units == nil {
		return "0"
	}
	return decimal.NewFromBigInt(units, -decimals).String()
}
