package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domainerrors "yield-vault.backend/internal/domain/errors"
)

// Vault is a per-(client, chain, token) pool of end-user funds.
//
// Balances obey idle + staked == totalUnits*currentIndex + pendingWithdrawals + reserve,
// up to truncation dust that always stays inside the vault.
type Vault struct {
	ID                 uuid.UUID       `json:"id"`
	ClientID           uuid.UUID       `json:"clientId"`
	Chain              string          `json:"chain"`
	TokenAddress       string          `json:"tokenAddress"`
	TokenSymbol        string          `json:"tokenSymbol"`
	Environment        string          `json:"environment"`
	CurrentIndex       decimal.Decimal `json:"currentIndex"`
	TotalUnits         decimal.Decimal `json:"totalUnits"`
	IdleBalance        decimal.Decimal `json:"idleBalance"`
	StakedBalance      decimal.Decimal `json:"stakedBalance"`
	ReservedIdle       decimal.Decimal `json:"reservedIdle"`
	PendingStake       decimal.Decimal `json:"pendingStake"`
	PendingWithdrawals decimal.Decimal `json:"pendingWithdrawals"`
	ReserveBalance     decimal.Decimal `json:"reserveBalance"`
	MinStakeThreshold  decimal.Decimal `json:"minStakeThreshold"`
	CustodialWalletRef string          `json:"custodialWalletRef"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// YieldResult is the outcome of applying a harvest to the index.
type YieldResult struct {
	VaultID       uuid.UUID       `json:"vaultId"`
	PreviousIndex decimal.Decimal `json:"previousIndex"`
	NewIndex      decimal.Decimal `json:"newIndex"`
	YieldPerUnit  decimal.Decimal `json:"yieldPerUnit"`
	// Reserved is true when no units were outstanding and the yield went to the reserve.
	Reserved bool `json:"reserved"`
}

// NewVault returns a fresh vault at the initial index with empty balances.
func NewVault(id, clientID uuid.UUID, chain, tokenAddress, tokenSymbol, environment string) *Vault {
	return &Vault{
		ID:                 id,
		ClientID:           clientID,
		Chain:              chain,
		TokenAddress:       tokenAddress,
		TokenSymbol:        tokenSymbol,
		Environment:        environment,
		CurrentIndex:       InitialIndex,
		TotalUnits:         decimal.Zero,
		IdleBalance:        decimal.Zero,
		StakedBalance:      decimal.Zero,
		ReservedIdle:       decimal.Zero,
		PendingStake:       decimal.Zero,
		PendingWithdrawals: decimal.Zero,
		ReserveBalance:     decimal.Zero,
		MinStakeThreshold:  decimal.Zero,
	}
}

// TotalAssets is every unit of value the vault holds that has not been paid out.
func (v *Vault) TotalAssets() decimal.Decimal {
	return v.IdleBalance.Add(v.StakedBalance)
}

// UnitsValue is the value attributable to outstanding units.
func (v *Vault) UnitsValue() decimal.Decimal {
	return ValueOf(v.TotalUnits, v.CurrentIndex)
}

// FreeIdle is idle liquidity not earmarked for withdrawals or pending stakes.
func (v *Vault) FreeIdle() decimal.Decimal {
	return NonNegative(v.IdleBalance.Sub(v.ReservedIdle).Sub(v.PendingStake))
}

// Imbalance returns assets minus liabilities; zero up to truncation dust.
func (v *Vault) Imbalance() decimal.Decimal {
	return v.TotalAssets().Sub(v.UnitsValue()).Sub(v.PendingWithdrawals).Sub(v.ReserveBalance)
}

// ReadyForStaking reports whether free idle crossed the staking threshold.
func (v *Vault) ReadyForStaking(defaultThreshold decimal.Decimal) bool {
	threshold := v.MinStakeThreshold
	if threshold.Sign() <= 0 {
		threshold = defaultThreshold
	}
	free := v.FreeIdle()
	return free.Sign() > 0 && free.GreaterThanOrEqual(threshold)
}

// ApplyYield distributes a harvest across all units by moving the index.
// Harvested yield sits inside the protocol, so it lands in the staked balance.
func (v *Vault) ApplyYield(amount decimal.Decimal) (*YieldResult, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrInvalidYieldAmount, amount)
	}
	res := &YieldResult{VaultID: v.ID, PreviousIndex: v.CurrentIndex, NewIndex: v.CurrentIndex, YieldPerUnit: decimal.Zero}
	if amount.IsZero() {
		return res, nil
	}
	v.StakedBalance = v.StakedBalance.Add(amount)
	if v.TotalUnits.Sign() <= 0 {
		v.ReserveBalance = v.ReserveBalance.Add(amount)
		res.Reserved = true
		return res, nil
	}
	perUnit := amount.DivRound(v.TotalUnits, IndexPrecision+divisionGuard).Truncate(IndexPrecision)
	v.CurrentIndex = v.CurrentIndex.Add(perUnit)
	res.NewIndex = v.CurrentIndex
	res.YieldPerUnit = perUnit
	return res, nil
}

// CreditIdle adds funds to the idle balance.
func (v *Vault) CreditIdle(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: credit %s", domainerrors.ErrInvalidAmount, amount)
	}
	v.IdleBalance = v.IdleBalance.Add(amount)
	return nil
}

// DebitIdle removes free idle funds.
func (v *Vault) DebitIdle(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: debit %s", domainerrors.ErrInvalidAmount, amount)
	}
	if v.FreeIdle().LessThan(amount) {
		return fmt.Errorf("%w: free idle %s, debit %s", domainerrors.ErrInsufficientIdleBalance, v.FreeIdle(), amount)
	}
	v.IdleBalance = v.IdleBalance.Sub(amount)
	return nil
}

// Stake moves funds idle -> staked. When fromPending is set the funds come out of the pending-stake earmark.
func (v *Vault) Stake(amount decimal.Decimal, fromPending bool) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: stake %s", domainerrors.ErrInvalidAmount, amount)
	}
	if fromPending {
		if v.PendingStake.LessThan(amount) || v.IdleBalance.LessThan(amount) {
			return fmt.Errorf("%w: pending stake %s, stake %s", domainerrors.ErrInsufficientIdleBalance, v.PendingStake, amount)
		}
		v.PendingStake = v.PendingStake.Sub(amount)
	} else if v.FreeIdle().LessThan(amount) {
		return fmt.Errorf("%w: free idle %s, stake %s", domainerrors.ErrInsufficientIdleBalance, v.FreeIdle(), amount)
	}
	v.IdleBalance = v.IdleBalance.Sub(amount)
	v.StakedBalance = v.StakedBalance.Add(amount)
	return nil
}

// Unstake moves funds staked -> idle.
func (v *Vault) Unstake(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: unstake %s", domainerrors.ErrInvalidAmount, amount)
	}
	if v.StakedBalance.LessThan(amount) {
		return fmt.Errorf("%w: staked %s, unstake %s", domainerrors.ErrInsufficientBalance, v.StakedBalance, amount)
	}
	v.StakedBalance = v.StakedBalance.Sub(amount)
	v.IdleBalance = v.IdleBalance.Add(amount)
	return nil
}

// ReserveForStake earmarks free idle for an outgoing stake instruction.
func (v *Vault) ReserveForStake(amount decimal.Decimal) error {
	if v.FreeIdle().LessThan(amount) {
		return fmt.Errorf("%w: free idle %s, stake %s", domainerrors.ErrInsufficientIdleBalance, v.FreeIdle(), amount)
	}
	v.PendingStake = v.PendingStake.Add(amount)
	return nil
}

// ReleasePendingStake returns an earmark to free idle after a failed stake.
func (v *Vault) ReleasePendingStake(amount decimal.Decimal) {
	v.PendingStake = NonNegative(v.PendingStake.Sub(amount))
}

// MintUnits records a completed deposit.
func (v *Vault) MintUnits(amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: deposit %s", domainerrors.ErrInvalidAmount, amount)
	}
	units := UnitsFor(amount, v.CurrentIndex)
	if err := v.CreditIdle(amount); err != nil {
		return decimal.Zero, err
	}
	v.TotalUnits = v.TotalUnits.Add(units)
	return units, nil
}

// BurnUnits removes units and books owed as a fixed withdrawal liability.
// owed never exceeds the burned units' value at the current index.
func (v *Vault) BurnUnits(units, owed decimal.Decimal) error {
	if units.Sign() <= 0 || units.GreaterThan(v.TotalUnits) {
		return fmt.Errorf("%w: burn %s of %s units", domainerrors.ErrInvalidAmount, units, v.TotalUnits)
	}
	if owed.Sign() <= 0 || owed.GreaterThan(ValueOf(units, v.CurrentIndex)) {
		return fmt.Errorf("%w: owed %s for %s units", domainerrors.ErrInvalidAmount, owed, units)
	}
	v.TotalUnits = v.TotalUnits.Sub(units)
	v.PendingWithdrawals = v.PendingWithdrawals.Add(owed)
	return nil
}

// RestoreUnits reverses a burn at the current index and returns the restored units.
func (v *Vault) RestoreUnits(value decimal.Decimal) decimal.Decimal {
	units := UnitsFor(value, v.CurrentIndex)
	v.TotalUnits = v.TotalUnits.Add(units)
	v.PendingWithdrawals = NonNegative(v.PendingWithdrawals.Sub(value))
	return units
}

// ReserveIdle earmarks up to amount of free idle for withdrawals; returns the reserved amount.
func (v *Vault) ReserveIdle(amount decimal.Decimal) decimal.Decimal {
	reserved := MinDecimal(v.FreeIdle(), amount)
	if reserved.Sign() <= 0 {
		return decimal.Zero
	}
	v.ReservedIdle = v.ReservedIdle.Add(reserved)
	return reserved
}

// ReleaseReservedIdle drops an idle earmark without moving funds.
func (v *Vault) ReleaseReservedIdle(amount decimal.Decimal) {
	v.ReservedIdle = NonNegative(v.ReservedIdle.Sub(amount))
}

// SettlePayout pays a withdrawal out of reserved idle.
func (v *Vault) SettlePayout(amount decimal.Decimal) error {
	if v.ReservedIdle.LessThan(amount) || v.IdleBalance.LessThan(amount) {
		return fmt.Errorf("%w: reserved %s, payout %s", domainerrors.ErrInsufficientIdleBalance, v.ReservedIdle, amount)
	}
	v.IdleBalance = v.IdleBalance.Sub(amount)
	v.ReservedIdle = v.ReservedIdle.Sub(amount)
	v.PendingWithdrawals = NonNegative(v.PendingWithdrawals.Sub(amount))
	return nil
}

// VaultSummary is the query-side view of a vault.
type VaultSummary struct {
	Vault      *Vault          `json:"vault"`
	TotalValue decimal.Decimal `json:"totalValue"`
	UnitsValue decimal.Decimal `json:"unitsValue"`
	FreeIdle   decimal.Decimal `json:"freeIdle"`
}

// Summary builds the query-side view.
func (v *Vault) Summary() *VaultSummary {
	return &VaultSummary{
		Vault:      v,
		TotalValue: v.TotalAssets(),
		UnitsValue: v.UnitsValue(),
		FreeIdle:   v.FreeIdle(),
	}
}
