package entities

import (
	"github.com/shopspring/decimal"
)

// Fixed-point scales. Amounts and units carry 18 decimals, the index 27.
const (
	AmountPrecision int32 = 18
	UnitPrecision   int32 = 18
	IndexPrecision  int32 = 27

	// guard digits used before truncating a division result
	divisionGuard int32 = 9
)

var (
	// InitialIndex is the index every vault starts at.
	InitialIndex = decimal.NewFromInt(1)

	hundred = decimal.NewFromInt(100)
)

// TruncAmount truncates toward zero at amount precision.
func TruncAmount(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(AmountPrecision)
}

// UnitsFor converts an amount into units at the given index, truncated.
func UnitsFor(amount, index decimal.Decimal) decimal.Decimal {
	if index.Sign() <= 0 {
		return decimal.Zero
	}
	return amount.DivRound(index, UnitPrecision+divisionGuard).Truncate(UnitPrecision)
}

// UnitsToCover returns the fewest units worth at least amount at the given index.
func UnitsToCover(amount, index decimal.Decimal) decimal.Decimal {
	if index.Sign() <= 0 {
		return decimal.Zero
	}
	return amount.DivRound(index, UnitPrecision+divisionGuard).RoundCeil(UnitPrecision)
}

// ValueOf converts units into an amount at the given index, truncated.
func ValueOf(units, index decimal.Decimal) decimal.Decimal {
	return units.Mul(index).Truncate(AmountPrecision)
}

// PercentOf returns amount * pct / 100, truncated.
func PercentOf(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).DivRound(hundred, AmountPrecision+divisionGuard).Truncate(AmountPrecision)
}

// MinDecimal returns the smaller of a and b.
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// NonNegative clamps d at zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
