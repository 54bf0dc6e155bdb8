package usecases_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"yield-vault.backend/internal/domain/entities"
	domainerrors "yield-vault.backend/internal/domain/errors"
)

func TestVaultQueryUsecase_PositionValue(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	alice := uuid.New()
	v := e.fund(t, alice, "1000")
	_, err := e.index.ApplyYield(ctx, v.ID, dec("500"))
	require.NoError(t, err)

	pv, err := e.query.GetPositionValue(ctx, alice, v.ID)
	require.NoError(t, err)
	assertDec(t, "1000", pv.Units)
	assertDec(t, "1.5", pv.CurrentIndex)
	assertDec(t, "1000", pv.CostBasis)
	assertDec(t, "1500", pv.CurrentValue)
	assertDec(t, "500", pv.YieldEarned)

	stranger, err := e.query.GetPositionValue(ctx, uuid.New(), v.ID)
	require.NoError(t, err)
	assert.True(t, stranger.Units.IsZero())
	assert.True(t, stranger.CurrentValue.IsZero())

	_, err = e.query.GetPositionValue(ctx, alice, uuid.New())
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestVaultQueryUsecase_Summaries(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	v := e.fund(t, uuid.New(), "250")

	summary, err := e.query.GetVaultSummary(ctx, v.ID)
	require.NoError(t, err)
	assertDec(t, "250", summary.TotalValue)
	assertDec(t, "250", summary.UnitsValue)
	assertDec(t, "250", summary.FreeIdle)

	all, err := e.query.ListVaults(ctx, e.clientID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, v.ID, all[0].Vault.ID)

	none, err := e.query.ListVaults(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestVaultQueryUsecase_LedgerIsNewestFirst(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	alice := uuid.New()
	v := e.fund(t, alice, "1000")
	_, err := e.index.ApplyYield(ctx, v.ID, dec("10"))
	require.NoError(t, err)
	_, err = e.withdrawal.Submit(ctx, e.withdrawInput(alice, v.ID, "100"))
	require.NoError(t, err)

	entries, meta, err := e.query.ListLedger(ctx, v.ID, 1, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, entities.LedgerWithdrawalQueued, entries[0].EntryType)
	assert.Equal(t, entities.LedgerYieldApplied, entries[1].EntryType)
	assert.Equal(t, int64(3), meta.TotalCount)
	assert.Equal(t, 2, meta.TotalPages)

	last, _, err := e.query.ListLedger(ctx, v.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, entities.LedgerDepositCompleted, last[0].EntryType)
	require.NotNil(t, last[0].UserID)
	assert.Equal(t, alice, *last[0].UserID)
}

func TestVaultQueryUsecase_DepositAndWithdrawalLookups(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	alice := uuid.New()
	v := e.fund(t, alice, "100")

	in := e.withdrawInput(alice, v.ID, "40")
	_, err := e.withdrawal.Request(ctx, in)
	require.NoError(t, err)

	pending, err := e.query.GetWithdrawalStatus(ctx, in.OrderID)
	require.NoError(t, err)
	assert.Equal(t, entities.WithdrawalStatusPending, pending.Transaction.Status)
	assert.Nil(t, pending.QueueItem)

	_, err = e.query.GetWithdrawalStatus(ctx, "missing")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	_, err = e.query.GetDeposit(ctx, "missing")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}
