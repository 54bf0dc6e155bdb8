package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"
	"yield-vault.backend/internal/domain/entities"
	domainerrors "yield-vault.backend/internal/domain/errors"
)

func seedWithdrawal(t *testing.T, repo *WithdrawalRepository, v *entities.Vault, orderID string, priority int) (*entities.WithdrawalTransaction, *entities.WithdrawalQueueItem) {
	t.Helper()
	ctx := context.Background()
	tx := &entities.WithdrawalTransaction{
		OrderID:         orderID,
		ClientID:        v.ClientID,
		UserID:          uuid.New(),
		VaultID:         v.ID,
		RequestedAmount: dec("25"),
		Currency:        "USDC",
		Destination:     entities.OnchainDestination("eip155:8453", "0x000000000000000000000000000000000000dEaD"),
		Status:          entities.WithdrawalStatusQueued,
	}
	require.NoError(t, repo.CreateTransaction(ctx, tx))
	item := &entities.WithdrawalQueueItem{
		ClientID:                v.ClientID,
		WithdrawalTransactionID: tx.ID,
		VaultID:                 v.ID,
		UserID:                  tx.UserID,
		UnitsToBurn:             dec("25"),
		IndexAtBurn:             dec("1"),
		CostBasis:               dec("25"),
		EstimatedAmount:         dec("25"),
		ActualAmount:            dec("25"),
		ReservedIdle:            dec("5"),
		ProtocolsToUnstake: []*entities.ProtocolUnstake{
			{ProtocolID: uuid.New(), AllocationID: uuid.New(), Amount: dec("20"), ConfirmedAmount: dec("0")},
		},
		Priority: priority,
		Status:   entities.QueueItemStatusQueued,
	}
	require.NoError(t, repo.CreateQueueItem(ctx, item))
	return tx, item
}

func TestWithdrawalRepository_TransactionRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewWithdrawalRepository(db)
	ctx := context.Background()
	v := seedVault(t, db)

	tx, item := seedWithdrawal(t, repo, v, "wd-1", 0)

	got, err := repo.GetTransactionByOrderID(ctx, "wd-1")
	require.NoError(t, err)
	assert.Equal(t, entities.DestinationOnchainAddress, got.Destination.Type)
	assert.Equal(t, "0x000000000000000000000000000000000000dEaD", got.Destination.Address)
	assert.False(t, got.TransactionHash.Valid)

	now := time.Now()
	got.Status = entities.WithdrawalStatusCompleted
	got.TransactionHash = null.StringFrom("0xhash")
	got.CompletedAt = &now
	require.NoError(t, repo.UpdateTransaction(ctx, got))

	again, err := repo.GetTransactionByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "0xhash", again.TransactionHash.String)

	require.ErrorIs(t, repo.CreateTransaction(ctx, &entities.WithdrawalTransaction{OrderID: "wd-1", ClientID: v.ClientID, VaultID: v.ID, Destination: entities.ClientBalanceDestination("acct")}), domainerrors.ErrAlreadyExists)

	byTx, err := repo.GetQueueItemByTransactionID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, byTx.ID)
	require.Len(t, byTx.ProtocolsToUnstake, 1)
	assert.True(t, byTx.ProtocolsToUnstake[0].Amount.Equal(dec("20")))
	assert.Nil(t, byTx.ProtocolsToUnstake[0].BatchID)
}

func TestWithdrawalRepository_QueueOrderingAndUpdates(t *testing.T) {
	db := newTestDB(t)
	repo := NewWithdrawalRepository(db)
	ctx := context.Background()
	v := seedVault(t, db)

	_, low := seedWithdrawal(t, repo, v, "wd-low", 0)
	_, high := seedWithdrawal(t, repo, v, "wd-high", 5)

	queued, err := repo.ListQueuedByClient(ctx, v.ClientID, 10)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, high.ID, queued[0].ID, "higher priority first")
	assert.Equal(t, low.ID, queued[1].ID)

	clients, err := repo.ListClientsWithQueued(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{v.ClientID}, clients)

	batchID := uuid.New()
	low.ProtocolsToUnstake[0].BatchID = &batchID
	low.ProtocolsToUnstake[0].ConfirmedAmount = dec("20")
	low.Status = entities.QueueItemStatusReady
	now := time.Now()
	low.ReadyAt = &now
	require.NoError(t, repo.UpdateQueueItem(ctx, low))

	ready, err := repo.ListByStatus(ctx, entities.QueueItemStatusReady, 10)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	require.NotNil(t, ready[0].ProtocolsToUnstake[0].BatchID)
	assert.Equal(t, batchID, *ready[0].ProtocolsToUnstake[0].BatchID)
	assert.False(t, ready[0].NeedsUnstake())

	items, err := repo.GetQueueItemsByIDs(ctx, []uuid.UUID{low.ID, high.ID})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	empty, err := repo.GetQueueItemsByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = repo.GetQueueItemByID(ctx, uuid.New())
	require.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestInstructionRepository_Outbox(t *testing.T) {
	db := newTestDB(t)
	repo := NewInstructionRepository(db)
	ctx := context.Background()
	v := seedVault(t, db)
	allocID := uuid.New()
	itemA, itemB := uuid.New(), uuid.New()

	in := &entities.ProtocolInstruction{
		ClientID: v.ClientID, VaultID: v.ID, AllocationID: allocID, ProtocolID: uuid.New(),
		Chain: v.Chain, TokenAddress: v.TokenAddress, Amount: dec("50"),
		Direction: entities.DirectionUnstake, Purpose: entities.PurposeWithdrawal,
		QueueItemIDs: []uuid.UUID{itemA, itemB},
	}
	require.NoError(t, repo.CreateProtocolInstruction(ctx, in))
	assert.Equal(t, entities.InstructionStatusPending, in.Status)

	got, err := repo.GetProtocolInstruction(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{itemA, itemB}, got.QueueItemIDs)

	open, err := repo.CountOpenByAllocation(ctx, allocID, entities.PurposeWithdrawal)
	require.NoError(t, err)
	assert.Equal(t, int64(1), open)

	pending, err := repo.ListPendingProtocolInstructions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NoError(t, repo.MarkProtocolInstructionsDispatched(ctx, []uuid.UUID{in.ID}))
	pending, err = repo.ListPendingProtocolInstructions(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	got, err = repo.GetProtocolInstruction(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.InstructionStatusDispatched, got.Status)
	got.Status = entities.InstructionStatusConfirmed
	got.ConfirmedAmount = dec("50")
	require.NoError(t, repo.UpdateProtocolInstruction(ctx, got))

	open, err = repo.CountOpenByAllocation(ctx, allocID, entities.PurposeWithdrawal)
	require.NoError(t, err)
	assert.Zero(t, open)

	payout := &entities.PayoutInstruction{QueueItemID: itemA, ClientID: v.ClientID, Destination: entities.BankAccountDestination("bank-1"), Amount: dec("24.5"), Currency: "USDC"}
	require.NoError(t, repo.CreatePayoutInstruction(ctx, payout))
	require.ErrorIs(t, repo.CreatePayoutInstruction(ctx, &entities.PayoutInstruction{QueueItemID: itemA, ClientID: v.ClientID, Destination: entities.BankAccountDestination("bank-1"), Amount: dec("1")}), domainerrors.ErrAlreadyExists)

	pendingPayouts, err := repo.ListPendingPayoutInstructions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pendingPayouts, 1)
	assert.Equal(t, "bank-1", pendingPayouts[0].Destination.BankAccountRef)
	require.NoError(t, repo.MarkPayoutInstructionsDispatched(ctx, []uuid.UUID{payout.ID}))

	byItem, err := repo.GetPayoutByQueueItem(ctx, itemA)
	require.NoError(t, err)
	assert.Equal(t, entities.PayoutStatusDispatched, byItem.Status)
	_, err = repo.GetPayoutByQueueItem(ctx, itemB)
	require.ErrorIs(t, err, domainerrors.ErrNotFound)
}
