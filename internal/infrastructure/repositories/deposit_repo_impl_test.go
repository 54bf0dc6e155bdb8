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
	"yield-vault.backend/pkg/utils"
)

func TestDepositRepository_OrderIDIsUnique(t *testing.T) {
	db := newTestDB(t)
	repo := NewDepositRepository(db)
	ctx := context.Background()
	v := seedVault(t, db)

	dep := &entities.Deposit{OrderID: "ord-1", ClientID: v.ClientID, UserID: uuid.New(), VaultID: v.ID, Amount: dec("10"), Status: entities.DepositStatusPending}
	require.NoError(t, repo.Create(ctx, dep))
	require.ErrorIs(t, repo.Create(ctx, &entities.Deposit{OrderID: "ord-1", ClientID: v.ClientID, VaultID: v.ID, Amount: dec("1"), Status: entities.DepositStatusPending}), domainerrors.ErrAlreadyExists)

	now := time.Now()
	dep.Status = entities.DepositStatusFailed
	dep.FailureReason = null.StringFrom("payment reversed")
	dep.FailedAt = &now
	require.NoError(t, repo.Update(ctx, dep))

	got, err := repo.GetByOrderID(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, entities.DepositStatusFailed, got.Status)
	assert.Equal(t, "payment reversed", got.FailureReason.String)
	assert.NotNil(t, got.FailedAt)

	_, err = repo.GetByID(ctx, uuid.New())
	require.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestLedgerEntryRepository_ListByVaultPaginates(t *testing.T) {
	db := newTestDB(t)
	repo := NewLedgerEntryRepository(db)
	ctx := context.Background()
	v := seedVault(t, db)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, &entities.LedgerEntry{
			ClientID: v.ClientID, VaultID: v.ID, EntryType: entities.LedgerIdleCredited,
			Amount: dec("1"), Units: dec("0"), Index: dec("1"),
		}))
	}
	require.NoError(t, repo.Create(ctx, &entities.LedgerEntry{ClientID: v.ClientID, VaultID: uuid.New(), EntryType: entities.LedgerStaked, Amount: dec("1"), Units: dec("0"), Index: dec("1")}))

	page, total, err := repo.ListByVault(ctx, v.ID, utils.GetPaginationParams(2, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, page, 2)
	assert.Equal(t, "{}", page[0].Metadata)

	all, _, err := repo.ListByVault(ctx, v.ID, utils.GetPaginationParams(1, 0))
	require.NoError(t, err)
	assert.Len(t, all, 5)
}
