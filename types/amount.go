// Package types provides common types used across StreamLock.
package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// Amount represents a quantity of a fungible asset in its smallest
// indivisible unit. All arithmetic is integer-only — no floating point.
//
// Examples:
//   - New(4900, "usdc") = 4900 base units of USDC
//   - New(100, "dai")   = 100 base units of DAI
type Amount struct {
	Value int64  `json:"value"` // Smallest unit of the asset
	Asset string `json:"asset"` // Lowercase asset code: "usdc", "dai", ...
}

// New creates an Amount of the given asset.
func New(value int64, asset string) Amount {
	return Amount{Value: value, Asset: strings.ToLower(asset)}
}

// Zero returns a zero Amount in the specified asset.
func Zero(asset string) Amount { return Amount{Value: 0, Asset: strings.ToLower(asset)} }

// Arithmetic operations

// Add adds two Amounts. Panics if assets don't match.
func (a Amount) Add(other Amount) Amount {
	a.assertSameAsset(other)
	return Amount{Value: a.Value + other.Value, Asset: a.Asset}
}

// Subtract subtracts another Amount. Panics if assets don't match.
func (a Amount) Subtract(other Amount) Amount {
	a.assertSameAsset(other)
	return Amount{Value: a.Value - other.Value, Asset: a.Asset}
}

// MulDiv returns floor(a * num / den) without intermediate overflow.
// This is the workhorse of proportional accrual: the floor keeps the
// accrued share from ever exceeding the exact ratio, so rounding loss
// stays on the remaining (refund) side.
func (a Amount) MulDiv(num, den int64) Amount {
	if den == 0 {
		panic("amount: division by zero")
	}

	v := new(big.Int).SetInt64(a.Value)
	v.Mul(v, big.NewInt(num))
	v.Div(v, big.NewInt(den))

	return Amount{Value: v.Int64(), Asset: a.Asset}
}

// Comparison methods

// IsZero returns true if the value is zero.
func (a Amount) IsZero() bool { return a.Value == 0 }

// IsPositive returns true if the value is greater than zero.
func (a Amount) IsPositive() bool { return a.Value > 0 }

// IsNegative returns true if the value is less than zero.
func (a Amount) IsNegative() bool { return a.Value < 0 }

// Equal returns true if both Amounts are equal (same value and asset).
func (a Amount) Equal(other Amount) bool {
	return a.Value == other.Value && a.Asset == other.Asset
}

// LessThan returns true if this Amount is less than other. Panics if assets don't match.
func (a Amount) LessThan(other Amount) bool {
	a.assertSameAsset(other)
	return a.Value < other.Value
}

// GreaterThan returns true if this Amount is greater than other. Panics if assets don't match.
func (a Amount) GreaterThan(other Amount) bool {
	a.assertSameAsset(other)
	return a.Value > other.Value
}

// Min returns the smaller of two Amounts. Panics if assets don't match.
func (a Amount) Min(other Amount) Amount {
	a.assertSameAsset(other)
	if a.Value < other.Value {
		return a
	}
	return other
}

// Max returns the larger of two Amounts. Panics if assets don't match.
func (a Amount) Max(other Amount) Amount {
	a.assertSameAsset(other)
	if a.Value > other.Value {
		return a
	}
	return other
}

// String returns a human-readable representation, e.g. "4900 usdc".
func (a Amount) String() string {
	return fmt.Sprintf("%d %s", a.Value, a.Asset)
}

// MarshalJSON implements json.Marshaler.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Value   int64  `json:"value"`
		Asset   string `json:"asset"`
		Display string `json:"display"`
	}{
		Value:   a.Value,
		Asset:   a.Asset,
		Display: a.String(),
	})
}

// assertSameAsset panics if assets don't match.
func (a Amount) assertSameAsset(other Amount) {
	if a.Asset != other.Asset {
		panic(fmt.Sprintf("amount: asset mismatch: %s != %s", a.Asset, other.Asset))
	}
}

// Sum calculates the sum of multiple Amounts. All must have the same asset.
func Sum(values ...Amount) Amount {
	if len(values) == 0 {
		return Amount{}
	}

	result := values[0]
	for i := 1; i < len(values); i++ {
		result = result.Add(values[i])
	}
	return result
}
