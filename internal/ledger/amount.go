// Package ledger implements the progress ledger: exact fixed-point amounts,
// the precision rules applied to targets and record values, and the derived
// summary math (totals, clamped progress rate, single-record percent).
//
// The package has no knowledge of storage or transport. Callers fetch raw
// rows and hand the values in; everything here is deterministic.
package ledger

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// MaxDigits caps the number of significant digits of an amount.
	MaxDigits = 12
	// MaxFractionDigits caps the digits after the decimal point.
	MaxFractionDigits = 4
	// MaxWholeDigits caps the digits before the decimal point, the numeric(12,4)
	// range of the hosted columns (largest value 99999999.9999).
	MaxWholeDigits = MaxDigits - MaxFractionDigits
)

var (
	// ErrPrecision is returned when an amount does not fit numeric(12,4).
	ErrPrecision = errors.New("amount exceeds 8 whole digits or 4 decimal places")

	// ErrSyntax is returned when an amount is not a decimal number.
	ErrSyntax = errors.New("amount must be a decimal number")
)

// Amount is an exact fixed-point quantity (targets and record values).
//
// On the wire and in storage it is always a string with four fractional
// digits ("40.0000") so no float rounding happens in transit.
type Amount struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Amount{}

// ParseAmount parses s exactly. It does not apply the precision rules; call
// Validate for that.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, fmt.Errorf("%w: empty", ErrSyntax)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	return Amount{d: d}, nil
}

// MustAmount is ParseAmount for constants and tests.
func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AmountFromInt returns n as an Amount.
func AmountFromInt(n int64) Amount { return Amount{d: decimal.NewFromInt(n)} }

// Validate enforces numeric(12,4): at most 4 fractional digits and at most
// 8 whole digits, so 12 in total. Trailing fractional zeros and leading
// zeros do not count ("0001.50000" is fine).
func (a Amount) Validate() error {
	digits, frac := a.digits()
	if frac > MaxFractionDigits || digits-frac > MaxWholeDigits {
		return ErrPrecision
	}
	return nil
}

// digits returns the significant digit count and fractional digit count of
// the normalized absolute value.
func (a Amount) digits() (total, frac int) {
	s := a.d.Abs().String() // trailing zeros trimmed
	intPart, fracPart, _ := strings.Cut(s, ".")
	intPart = strings.TrimLeft(intPart, "0")
	return len(intPart) + len(fracPart), len(fracPart)
}

// Add returns a+b exactly.
func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d)} }

// Sign returns -1, 0 or 1.
func (a Amount) Sign() int { return a.d.Sign() }

// Cmp compares a and b.
func (a Amount) Cmp(b Amount) int { return a.d.Cmp(b.d) }

// Equal reports whether a and b denote the same quantity.
func (a Amount) Equal(b Amount) bool { return a.d.Equal(b.d) }

// Decimal exposes the underlying decimal value.
func (a Amount) Decimal() decimal.Decimal { return a.d }

// String renders the amount with exactly four fractional digits.
func (a Amount) String() string { return a.d.StringFixed(MaxFractionDigits) }

// scaled returns a * 10^4 truncated to an integer. For validated amounts the
// truncation is exact.
func (a Amount) scaled() *big.Int {
	return a.d.Shift(MaxFractionDigits).BigInt()
}

// MarshalJSON encodes the amount as a fixed-point string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts both "12.5" and 12.5. Numbers are parsed from their
// literal text, never through float64.
func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return fmt.Errorf("%w: null", ErrSyntax)
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Value implements driver.Valuer; amounts are stored as text.
func (a Amount) Value() (driver.Value, error) { return a.String(), nil }

// Scan implements sql.Scanner.
func (a *Amount) Scan(src any) error {
	var d decimal.Decimal
	if err := d.Scan(src); err != nil {
		return fmt.Errorf("scan amount: %w", err)
	}
	a.d = d
	return nil
}
