package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domainerrors "yield-vault.backend/internal/domain/errors"
)

// AllocationStatus represents allocation lifecycle status
type AllocationStatus string

const (
	AllocationStatusActive      AllocationStatus = "active"
	AllocationStatusRebalancing AllocationStatus = "rebalancing"
	AllocationStatusWithdrawn   AllocationStatus = "withdrawn"
)

// Allocation is the slice of a vault's staked balance deployed to one protocol
type Allocation struct {
	ID                   uuid.UUID        `json:"id"`
	ClientID             uuid.UUID        `json:"clientId"`
	VaultID              uuid.UUID        `json:"vaultId"`
	ProtocolID           uuid.UUID        `json:"protocolId"`
	Category             ProtocolCategory `json:"category"`
	Chain                string           `json:"chain"`
	TokenAddress         string           `json:"tokenAddress"`
	Balance              decimal.Decimal  `json:"balance"`
	PendingUnstake       decimal.Decimal  `json:"pendingUnstake"`
	PercentageAllocation decimal.Decimal  `json:"percentageAllocation"`
	APY                  decimal.Decimal  `json:"apy"`
	YieldEarned          decimal.Decimal  `json:"yieldEarned"`
	Status               AllocationStatus `json:"status"`
	DeployedAt           *time.Time       `json:"deployedAt,omitempty"`
	LastRebalanceAt      *time.Time       `json:"lastRebalanceAt,omitempty"`
	WithdrawnAt          *time.Time       `json:"withdrawnAt,omitempty"`
	CreatedAt            time.Time        `json:"createdAt"`
	UpdatedAt            time.Time        `json:"updatedAt"`
}

// Available is the balance not already promised to an unstake.
func (a *Allocation) Available() decimal.Decimal {
	return NonNegative(a.Balance.Sub(a.PendingUnstake))
}

// IsLive reports whether the allocation still counts towards the staked balance.
func (a *Allocation) IsLive() bool {
	return a.Status == AllocationStatusActive || a.Status == AllocationStatusRebalancing
}

// Credit adds confirmed staked funds and reactivates a withdrawn row.
func (a *Allocation) Credit(amount decimal.Decimal, now time.Time) {
	a.Balance = a.Balance.Add(amount)
	if a.Status == AllocationStatusWithdrawn || a.Status == "" {
		a.Status = AllocationStatusActive
		a.WithdrawnAt = nil
	}
	if a.DeployedAt == nil {
		a.DeployedAt = &now
	}
}

// PlanUnstake earmarks part of the balance for an unstake.
func (a *Allocation) PlanUnstake(amount decimal.Decimal) error {
	if a.Available().LessThan(amount) {
		return fmt.Errorf("%w: allocation %s available %s, planned %s", domainerrors.ErrInsufficientBalance, a.ID, a.Available(), amount)
	}
	a.PendingUnstake = a.PendingUnstake.Add(amount)
	return nil
}

// ReleaseUnstake drops an unstake earmark that will not be executed.
func (a *Allocation) ReleaseUnstake(amount decimal.Decimal) {
	a.PendingUnstake = NonNegative(a.PendingUnstake.Sub(amount))
}

// ConfirmUnstake applies an executed unstake; planned is the earmark it settles.
func (a *Allocation) ConfirmUnstake(confirmed, planned decimal.Decimal) error {
	if a.Balance.LessThan(confirmed) {
		return fmt.Errorf("%w: allocation %s balance %s, unstaked %s", domainerrors.ErrInsufficientBalance, a.ID, a.Balance, confirmed)
	}
	a.Balance = a.Balance.Sub(confirmed)
	a.PendingUnstake = NonNegative(a.PendingUnstake.Sub(planned))
	return nil
}

// MarkActive closes a rebalance.
func (a *Allocation) MarkActive(now time.Time) {
	a.Status = AllocationStatusActive
	a.LastRebalanceAt = &now
}

// MarkWithdrawn retires an emptied allocation.
func (a *Allocation) MarkWithdrawn(now time.Time) error {
	if a.Balance.Sign() != 0 || a.PendingUnstake.Sign() != 0 {
		return fmt.Errorf("%w: balance %s pending %s", domainerrors.ErrAllocationNotWithdrawable, a.Balance, a.PendingUnstake)
	}
	a.Status = AllocationStatusWithdrawn
	a.PercentageAllocation = decimal.Zero
	a.WithdrawnAt = &now
	return nil
}

// AllocationBreakdown groups live balances for the query surface.
type AllocationBreakdown struct {
	VaultID     uuid.UUID                            `json:"vaultId"`
	Total       decimal.Decimal                      `json:"total"`
	ByCategory  map[ProtocolCategory]decimal.Decimal `json:"byCategory"`
	ByProtocol  []*AllocationShare                   `json:"byProtocol"`
	Allocations []*Allocation                        `json:"allocations"`
}

// AllocationShare is one protocol's share of the deployed balance.
type AllocationShare struct {
	ProtocolID uuid.UUID        `json:"protocolId"`
	Category   ProtocolCategory `json:"category"`
	Balance    decimal.Decimal  `json:"balance"`
	Share      decimal.Decimal  `json:"share"`
	APY        decimal.Decimal  `json:"apy"`
	Status     AllocationStatus `json:"status"`
}
