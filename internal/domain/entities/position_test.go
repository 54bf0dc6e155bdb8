package entities

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "yield-vault.backend/internal/domain/errors"
)

func TestPosition_BlendedEntryIndex(t *testing.T) {
	p := &EndUserPosition{}

	p.AddUnits(d("100"), d("100"))
	assert.True(t, p.EntryIndex.Equal(d("1")))

	// 100 more at index 1.5 buys 66.66.. units
	minted := UnitsFor(d("100"), d("1.5"))
	p.AddUnits(minted, d("100"))
	assert.True(t, p.CostBasis().Sub(d("200")).Abs().LessThan(d("0.000000001")), "basis %s", p.CostBasis())
	assert.True(t, p.EntryIndex.GreaterThan(d("1")))
	assert.True(t, p.EntryIndex.LessThan(d("1.5")))

	v := p.Valuate(d("1.5"))
	assert.True(t, v.YieldEarned.Sub(d("50")).Abs().LessThan(d("0.000000001")), "yield %s", v.YieldEarned)
}

func TestPosition_RemoveUnits(t *testing.T) {
	p := &EndUserPosition{Units: d("10"), EntryIndex: d("1.2")}
	p.RemoveUnits(d("4"))
	assert.True(t, p.Units.Equal(d("6")))
	assert.True(t, p.EntryIndex.Equal(d("1.2")))
	assert.False(t, p.IsEmpty())
	p.RemoveUnits(d("7"))
	assert.True(t, p.IsEmpty())
	p.AddUnits(d("0"), d("5"))
	assert.True(t, p.IsEmpty())
}

func TestAllocation_UnstakePlanning(t *testing.T) {
	now := time.Now()
	a := &Allocation{ID: uuid.New(), Balance: d("100")}
	a.Credit(d("50"), now)
	assert.Equal(t, AllocationStatusActive, a.Status)
	assert.NotNil(t, a.DeployedAt)

	require.NoError(t, a.PlanUnstake(d("120")))
	assert.True(t, a.Available().Equal(d("30")))
	require.ErrorIs(t, a.PlanUnstake(d("31")), domainerrors.ErrInsufficientBalance)

	require.NoError(t, a.ConfirmUnstake(d("100"), d("100")))
	assert.True(t, a.Balance.Equal(d("50")))
	assert.True(t, a.PendingUnstake.Equal(d("20")))
	require.ErrorIs(t, a.MarkWithdrawn(now), domainerrors.ErrAllocationNotWithdrawable)

	a.ReleaseUnstake(d("20"))
	require.NoError(t, a.ConfirmUnstake(d("50"), decimal.Zero))
	require.NoError(t, a.MarkWithdrawn(now))
	assert.Equal(t, AllocationStatusWithdrawn, a.Status)
	assert.False(t, a.IsLive())

	a.Credit(d("1"), now)
	assert.Equal(t, AllocationStatusActive, a.Status)
	assert.Nil(t, a.WithdrawnAt)
}

func TestQueueItem_Legs(t *testing.T) {
	px, py := uuid.New(), uuid.New()
	item := &WithdrawalQueueItem{ProtocolsToUnstake: []*ProtocolUnstake{
		{ProtocolID: px, Amount: d("10"), ConfirmedAmount: d("10")},
		{ProtocolID: py, Amount: d("5"), ConfirmedAmount: d("2")},
	}}
	assert.True(t, item.NeedsUnstake())
	assert.True(t, item.UnstakedSoFar().Equal(d("12")))
	assert.True(t, item.Leg(py).Outstanding().Equal(d("3")))
	assert.Nil(t, item.Leg(uuid.New()))

	item.Leg(py).ConfirmedAmount = d("5")
	assert.False(t, item.NeedsUnstake())
	assert.True(t, WithdrawalStatusCompleted.IsTerminal())
	assert.False(t, QueueItemStatusReady.IsTerminal())
}

func TestRiskTierRankAndCategory(t *testing.T) {
	assert.Less(t, RiskTierLow.Rank(), RiskTierMedium.Rank())
	assert.Less(t, RiskTierHigh.Rank(), RiskTier("exotic").Rank())
	assert.True(t, ProtocolCategoryLP.Valid())
	assert.False(t, ProtocolCategory("perps").Valid())
}
