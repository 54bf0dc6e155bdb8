package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EndUserPosition is a user's participation in one vault.
//
// Units are pure shares: value = units * currentIndex. EntryIndex is the
// weighted-average index paid for those units, so units * entryIndex is the
// cost basis still invested.
type EndUserPosition struct {
	ID         uuid.UUID       `json:"id"`
	UserID     uuid.UUID       `json:"userId"`
	VaultID    uuid.UUID       `json:"vaultId"`
	ClientID   uuid.UUID       `json:"clientId"`
	Units      decimal.Decimal `json:"units"`
	EntryIndex decimal.Decimal `json:"entryIndex"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// PositionValue is the read-time valuation of a position.
type PositionValue struct {
	UserID       uuid.UUID       `json:"userId"`
	VaultID      uuid.UUID       `json:"vaultId"`
	Units        decimal.Decimal `json:"units"`
	EntryIndex   decimal.Decimal `json:"entryIndex"`
	CurrentIndex decimal.Decimal `json:"currentIndex"`
	CostBasis    decimal.Decimal `json:"costBasis"`
	CurrentValue decimal.Decimal `json:"currentValue"`
	YieldEarned  decimal.Decimal `json:"yieldEarned"`
}

// CurrentValue evaluates the position lazily against the vault index.
func (p *EndUserPosition) CurrentValue(currentIndex decimal.Decimal) decimal.Decimal {
	return ValueOf(p.Units, currentIndex)
}

// CostBasis is the amount paid for the units still held.
func (p *EndUserPosition) CostBasis() decimal.Decimal {
	return ValueOf(p.Units, p.EntryIndex)
}

// Valuate builds the query-side view of the position.
func (p *EndUserPosition) Valuate(currentIndex decimal.Decimal) *PositionValue {
	value := p.CurrentValue(currentIndex)
	basis := p.CostBasis()
	return &PositionValue{
		UserID:       p.UserID,
		VaultID:      p.VaultID,
		Units:        p.Units,
		EntryIndex:   p.EntryIndex,
		CurrentIndex: currentIndex,
		CostBasis:    basis,
		CurrentValue: value,
		YieldEarned:  value.Sub(basis),
	}
}

// AddUnits tops up the position and blends the entry index:
// entry' = (units*entry + amount) / (units + minted).
func (p *EndUserPosition) AddUnits(minted, amount decimal.Decimal) {
	if minted.Sign() <= 0 {
		return
	}
	newUnits := p.Units.Add(minted)
	if p.Units.Sign() <= 0 || p.EntryIndex.Sign() <= 0 {
		p.EntryIndex = amount.DivRound(minted, IndexPrecision+divisionGuard).Truncate(IndexPrecision)
	} else {
		basis := p.Units.Mul(p.EntryIndex).Add(amount)
		p.EntryIndex = basis.DivRound(newUnits, IndexPrecision+divisionGuard).Truncate(IndexPrecision)
	}
	p.Units = newUnits
}

// RemoveUnits burns units; the entry index of the remainder is unchanged.
func (p *EndUserPosition) RemoveUnits(units decimal.Decimal) {
	p.Units = NonNegative(p.Units.Sub(units))
}

// IsEmpty reports whether the position holds no units.
func (p *EndUserPosition) IsEmpty() bool {
	return p.Units.Sign() <= 0
}
