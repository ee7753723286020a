// Package types provides common types used across the reimbursement ledger.
package types

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// Amount is a non-negative monetary value in the smallest currency unit.
// All arithmetic is integer-only, no floating point.
//
// Amounts are capped at MaxAmount so every storage backend can keep them in
// a signed 64-bit column.
type Amount uint64

// MaxAmount is the largest representable Amount.
const MaxAmount Amount = math.MaxInt64

// DefaultDecimals is the number of fractional digits used when an amount is
// rendered in major units and no other precision is configured.
const DefaultDecimals = 6

var (
	// ErrOverflow is returned when an operation would exceed MaxAmount.
	ErrOverflow = errors.New("amount: overflow")

	// ErrUnderflow is returned when a subtraction would go below zero.
	ErrUnderflow = errors.New("amount: underflow")

	// ErrInvalid is returned when a value cannot be parsed as an Amount.
	ErrInvalid = errors.New("amount: invalid")
)

// Valid reports whether a is within [0, MaxAmount].
func (a Amount) Valid() bool { return a <= MaxAmount }

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a == 0 }

// CheckedAdd returns a+b, or ErrOverflow if the sum exceeds MaxAmount.
func (a Amount) CheckedAdd(b Amount) (Amount, error) {
	if !a.Valid() || !b.Valid() || a > MaxAmount-b {
		return 0, fmt.Errorf("%w: %d + %d", ErrOverflow, a, b)
	}
	return a + b, nil
}

// CheckedSub returns a-b, or ErrUnderflow if b is larger than a.
func (a Amount) CheckedSub(b Amount) (Amount, error) {
	if b > a {
		return 0, fmt.Errorf("%w: %d - %d", ErrUnderflow, a, b)
	}
	return a - b, nil
}

// Cmp compares a and b and returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Int64 returns the amount as a signed integer for storage drivers.
func (a Amount) Int64() int64 { return int64(a) }

// AmountFromInt64 converts a stored signed value back to an Amount.
func AmountFromInt64(v int64) (Amount, error) {
	if v < 0 {
		return 0, fmt.Errorf("%w: negative value %d", ErrInvalid, v)
	}
	return Amount(v), nil
}

// String returns the amount in smallest units.
func (a Amount) String() string { return strconv.FormatUint(uint64(a), 10) }

// Decimal returns the amount expressed in major units with the given number of
// fractional digits.
func (a Amount) Decimal(decimals int32) decimal.Decimal {
	return decimal.New(int64(a), -decimals)
}

// Format renders the amount in major units, e.g. Amount(1500).Format(3) is
// "1.500".
func (a Amount) Format(decimals int32) string {
	return a.Decimal(decimals).StringFixed(decimals)
}

// ParseAmount parses a major-unit decimal string ("0.001") into smallest units.
// Values with more fractional digits than decimals are rejected rather than
// rounded.
func ParseAmount(s string, decimals int32) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalid, s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalid, s)
	}

	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalid, s, decimals)
	}
	if scaled.GreaterThan(decimal.NewFromInt(int64(MaxAmount))) {
		return 0, fmt.Errorf("%w: %q", ErrOverflow, s)
	}

	return Amount(scaled.IntPart()), nil
}

// MustParseAmount is like ParseAmount but panics on error. Use for constants.
func MustParseAmount(s string, decimals int32) Amount {
	a, err := ParseAmount(s, decimals)
	if err != nil {
		panic(err)
	}
	return a
}

// SumAmounts adds values with overflow checking.
func SumAmounts(values ...Amount) (Amount, error) {
	var total Amount
	for _, v := range values {
		next, err := total.CheckedAdd(v)
		if err != nil {
			return 0, err
		}
		total = next
	}
	return total, nil
}
