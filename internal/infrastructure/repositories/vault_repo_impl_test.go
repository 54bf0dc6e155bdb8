package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"yield-vault.backend/internal/domain/entities"
	domainerrors "yield-vault.backend/internal/domain/errors"
)

func TestVaultRepository_CreateGetUpdate(t *testing.T) {
	db := newTestDB(t)
	repo := NewVaultRepository(db)
	ctx := context.Background()

	v := seedVault(t, db)
	require.NotEqual(t, uuid.Nil, v.ID)

	got, err := repo.GetByID(ctx, v.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentIndex.Equal(entities.InitialIndex))
	assert.Equal(t, "USDC", got.TokenSymbol)

	got.CurrentIndex = dec("1.100000000000000000000000001")
	got.TotalUnits = dec("1000")
	got.IdleBalance = dec("1000")
	got.StakedBalance = dec("100")
	require.NoError(t, repo.Update(ctx, got))

	again, err := repo.GetByScope(ctx, v.ClientID, v.Chain, v.TokenAddress, v.Environment)
	require.NoError(t, err)
	assert.True(t, again.CurrentIndex.Equal(dec("1.100000000000000000000000001")), "27 decimals survive the round trip")
	assert.True(t, again.StakedBalance.Equal(dec("100")))

	_, err = repo.GetByID(ctx, uuid.New())
	require.ErrorIs(t, err, domainerrors.ErrNotFound)

	missing := seedVaultEntity()
	missing.ID = uuid.New()
	require.ErrorIs(t, repo.Update(ctx, missing), domainerrors.ErrNotFound)
}

func TestVaultRepository_ScopeIsUnique(t *testing.T) {
	db := newTestDB(t)
	repo := NewVaultRepository(db)
	ctx := context.Background()
	v := seedVault(t, db)

	dup := entities.NewVault(uuid.Nil, v.ClientID, v.Chain, v.TokenAddress, "USDC", v.Environment)
	require.ErrorIs(t, repo.Create(ctx, dup), domainerrors.ErrAlreadyExists)

	same, err := repo.GetOrCreate(ctx, entities.NewVault(uuid.Nil, v.ClientID, v.Chain, v.TokenAddress, "USDC", v.Environment))
	require.NoError(t, err)
	assert.Equal(t, v.ID, same.ID)

	other, err := repo.GetOrCreate(ctx, entities.NewVault(uuid.Nil, v.ClientID, v.Chain, "0xusdt", "USDT", v.Environment))
	require.NoError(t, err)
	assert.NotEqual(t, v.ID, other.ID)

	list, err := repo.ListByClient(ctx, v.ClientID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestVaultRepository_ListWithIdle(t *testing.T) {
	db := newTestDB(t)
	repo := NewVaultRepository(db)
	ctx := context.Background()

	empty := seedVault(t, db)
	funded := seedVault(t, db)
	funded.IdleBalance = dec("250")
	require.NoError(t, repo.Update(ctx, funded))

	list, err := repo.ListWithIdle(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, funded.ID, list[0].ID)
	assert.NotEqual(t, empty.ID, list[0].ID)
}
