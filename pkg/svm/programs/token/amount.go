package token

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ErrInvalidUIAmount is returned when a human-readable amount cannot be
// represented in raw units.
var ErrInvalidUIAmount = errors.New("invalid ui amount")

// UIAmount converts raw units to a decimal token amount.
func UIAmount(raw uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(raw), -int32(decimals))
}

// UIAmountString formats raw units with exactly decimals fractional digits.
func UIAmountString(raw uint64, decimals uint8) string {
	return UIAmount(raw, decimals).StringFixed(int32(decimals))
}

// ParseUIAmount converts a decimal string such as "12.5" to raw units.
// More fractional digits than decimals is an error, not a rounding.
func ParseUIAmount(s string, decimals uint8) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidUIAmount, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: negative amount %s", ErrInvalidUIAmount, s)
	}
	raw := d.Shift(int32(decimals))
	if !raw.Equal(raw.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidUIAmount, s, decimals)
	}
	bi := raw.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("%w: %s overflows u64", ErrInvalidUIAmount, s)
	}
	return bi.Uint64(), nil
}
