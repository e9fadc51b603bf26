// Package money represents currency-agnostic amounts as whole minimum units.
//
// All ledger arithmetic happens on Amount (an int64 count of cents) so that
// split remainders can be distributed exactly. Decimal parsing and formatting
// at the edges go through shopspring/decimal.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a signed number of minimum currency units (cents).
type Amount int64

// MaxAmount bounds a single expense or settlement. It keeps amount*shares and
// amount*percentage products well inside int64.
const MaxAmount Amount = 100_000_000_000

// limit rejects decimals whose cent value cannot be represented safely.
var limit = decimal.New(1, 15)

// ErrInvalid is returned for text that is not a decimal amount.
var ErrInvalid = errors.New("invalid amount")

// FromDecimal converts a decimal in major units to cents, rounding half away
// from zero on the third fraction digit.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	cents := d.Shift(2).Round(0)
	if cents.Abs().GreaterThan(limit) {
		return 0, fmt.Errorf("%w: %s is too large", ErrInvalid, d.String())
	}
	return Amount(cents.IntPart()), nil
}

// Parse reads a decimal string such as "12.34" or "12,34".
func Parse(s string) (Amount, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return 0, ErrInvalid
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	return FromDecimal(d)
}

// Cents builds an Amount from a raw cent count.
func Cents(c int64) Amount { return Amount(c) }

// Decimal returns the amount in major units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -2)
}

// String formats the amount with exactly two fraction digits.
func (a Amount) String() string {
	return a.Decimal().StringFixed(2)
}

// Abs returns the magnitude of a.
func (a Amount) Abs() Amount {
	if a < 0 {
		return -a
	}
	return a
}

// Payable reports whether a is a positive amount no larger than MaxAmount.
func (a Amount) Payable() bool {
	return a > 0 && a <= MaxAmount
}

// Min returns the smaller of a and b.
func Min(a, b Amount) Amount {
	if a < b {
		return a
	}
	return b
}

// Sum adds up amounts.
func Sum(amounts ...Amount) Amount {
	var total Amount
	for _, a := range amounts {
		total += a
	}
	return total
}

// MarshalJSON writes the amount as a JSON number in major units.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalid, string(data))
	}
	v, err := FromDecimal(d)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
