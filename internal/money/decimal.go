// Package money centralizes arbitrary-precision decimal arithmetic for the
// ingestion and matching pipeline. Every monetary or amount-bearing value
// that crosses a component boundary (Movement.Amount, PotentialMatch
// similarity inputs, TransactionLink variance) is represented as a Decimal,
// never a float64.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Precision is the minimum number of significant decimal digits the pipeline
// guarantees for division and rounding operations (spec: >= 28 digits).
const Precision = 28

func init() {
	decimal.DivisionPrecision = Precision
}

// Decimal wraps shopspring/decimal so arithmetic mistakes (accidentally
// reaching for float64) fail at compile time rather than silently losing
// precision.
type Decimal struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Decimal{d: decimal.Zero}

// ParseDecimal parses a base-10 string into a Decimal. Scientific notation
// is rejected here; leading/trailing whitespace is rejected by
// shopspring/decimal's own parser.
func ParseDecimal(s string) (Decimal, error) {
	if strings.ContainsAny(s, "eE") {
		return Decimal{}, fmt.Errorf("money: parse %q: scientific notation not accepted", s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return Decimal{d: d}, nil
}

// MustParseDecimal is ParseDecimal for compile-time-known literals (test
// fixtures and constants); it panics on malformed input.
func MustParseDecimal(s string) Decimal {
	d, err := ParseDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

// NewFromInt builds a Decimal from an integer amount, useful for zero/sentinel
// values and tests.
func NewFromInt(i int64) Decimal {
	return Decimal{d: decimal.NewFromInt(i)}
}

// NewFromFloat is intentionally narrow: it exists only to accept literal
// float constants at call sites that are verifiably exact (e.g. 0.0005
// tolerance constants), never to convert untrusted runtime float64 amounts.
func NewFromFloat(f float64) Decimal {
	return Decimal{d: decimal.NewFromFloat(f)}
}

func (d Decimal) String() string { return d.d.String() }

// IsZero reports whether d is exactly zero.
func (d Decimal) IsZero() bool { return d.d.IsZero() }

// IsNegative reports whether d is strictly less than zero.
func (d Decimal) IsNegative() bool { return d.d.IsNegative() }

// IsPositive reports whether d is strictly greater than zero.
func (d Decimal) IsPositive() bool { return d.d.IsPositive() }

// Add returns d + other.
func (d Decimal) Add(other Decimal) Decimal { return Decimal{d: d.d.Add(other.d)} }

// Sub returns d - other.
func (d Decimal) Sub(other Decimal) Decimal { return Decimal{d: d.d.Sub(other.d)} }

// Multiply returns d * other.
func (d Decimal) Multiply(other Decimal) Decimal { return Decimal{d: d.d.Mul(other.d)} }

// Divide returns d / other using banker's rounding (round-half-to-even) at
// Precision digits. Division by zero returns Zero rather than panicking —
// callers in the matching engine treat "no source amount" as zero
// similarity, not a crash.
func (d Decimal) Divide(other Decimal) Decimal {
	if other.IsZero() {
		return Zero
	}
	// DivRound itself rounds half-away-from-zero. Carry a few extra guard
	// digits through it, then apply RoundBank to land on round-half-to-even
	// at the final Precision, the mode spec.md §4.5 requires.
	raw := d.d.DivRound(other.d, int32(Precision+10))
	return Decimal{d: raw.RoundBank(int32(Precision))}
}

// Abs returns the absolute value of d.
func (d Decimal) Abs() Decimal { return Decimal{d: d.d.Abs()} }

// Cmp returns -1, 0, or 1 per the usual comparator contract.
func (d Decimal) Cmp(other Decimal) int { return d.d.Cmp(other.d) }

// GreaterThan reports d > other.
func (d Decimal) GreaterThan(other Decimal) bool { return d.d.GreaterThan(other.d) }

// LessThan reports d < other.
func (d Decimal) LessThan(other Decimal) bool { return d.d.LessThan(other.d) }

// IsLessThanOrEqual reports d <= other.
func (d Decimal) IsLessThanOrEqual(other Decimal) bool { return !d.d.GreaterThan(other.d) }

// IsGreaterThanOrEqual reports d >= other.
func (d Decimal) IsGreaterThanOrEqual(other Decimal) bool { return !d.d.LessThan(other.d) }

// Equal reports d == other.
func (d Decimal) Equal(other Decimal) bool { return d.d.Equal(other.d) }

// Min returns the smaller of d and other.
func (d Decimal) Min(other Decimal) Decimal {
	if d.LessThan(other) {
		return d
	}
	return other
}

// ClampFloor0 returns d if d >= 0, else Zero. Used for variance calculations
// that must never report a negative "source minus target" gap.
func (d Decimal) ClampFloor0() Decimal {
	if d.IsNegative() {
		return Zero
	}
	return d
}

// ToFixed renders d rounded to n decimal places using banker's rounding.
func (d Decimal) ToFixed(n int32) string {
	return d.d.RoundBank(n).StringFixed(n)
}

// Float64 is provided only for producing human-readable confidence/ratio
// scores (e.g. PotentialMatch.AmountSimilarity, which the spec itself bounds
// to [0,1] and is consumed as a float by ranking code). It must never be
// used for amount arithmetic.
func (d Decimal) Float64() float64 {
	f, _ := d.d.Float64()
	return f
}
