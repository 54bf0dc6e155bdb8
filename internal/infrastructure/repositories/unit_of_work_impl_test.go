package repositories

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	domainerrors "yield-vault.backend/internal/domain/errors"
	"yield-vault.backend/internal/infrastructure/models"
)

func countVaults(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Vault{}).Count(&n).Error)
	return n
}

func TestUnitOfWork_DoCommitAndRollback(t *testing.T) {
	db := newTestDB(t)
	u := NewUnitOfWork(db, 0)
	repo := NewVaultRepository(db)

	err := u.Do(context.Background(), func(ctx context.Context) error {
		v := seedVaultEntity()
		return repo.Create(ctx, v)
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), countVaults(t, db))

	err = u.Do(context.Background(), func(ctx context.Context) error {
		if err := repo.Create(ctx, seedVaultEntity()); err != nil {
			return err
		}
		return errors.New("force rollback")
	})
	require.Error(t, err)
	require.Equal(t, int64(1), countVaults(t, db), "second insert must be rolled back")
}

func TestUnitOfWork_NestedDoJoinsOuterTransaction(t *testing.T) {
	db := newTestDB(t)
	u := NewUnitOfWork(db, 0)
	repo := NewVaultRepository(db)

	err := u.Do(context.Background(), func(ctx context.Context) error {
		if err := u.Do(ctx, func(inner context.Context) error {
			return repo.Create(inner, seedVaultEntity())
		}); err != nil {
			return err
		}
		return errors.New("outer fails")
	})
	require.Error(t, err)
	require.Equal(t, int64(0), countVaults(t, db))
}

func TestUnitOfWork_WithLockAndGetDB(t *testing.T) {
	db := newTestDB(t)
	u := &UnitOfWorkImpl{db: db}

	ctx := u.WithLock(context.Background())
	require.Equal(t, db, GetDB(ctx, db))
	require.Equal(t, db, u.GetDB(context.Background()))

	tx := db.Begin()
	txCtx := context.WithValue(context.Background(), txKey, tx)
	require.Equal(t, tx, u.GetDB(txCtx))

	locked := lockable(u.WithLock(txCtx), db)
	_, hasLock := locked.Statement.Clauses["FOR"]
	assert.True(t, hasLock)
	plain := lockable(txCtx, db)
	_, hasLock = plain.Statement.Clauses["FOR"]
	assert.False(t, hasLock)
	tx.Rollback()
}

func TestUnitOfWork_LockedReadInsideTransaction(t *testing.T) {
	db := newTestDB(t)
	u := NewUnitOfWork(db, 0)
	repo := NewVaultRepository(db)
	v := seedVault(t, db)

	err := u.Do(context.Background(), func(txCtx context.Context) error {
		got, err := repo.GetByID(u.WithLock(txCtx), v.ID)
		if err != nil {
			return err
		}
		got.IdleBalance = dec("5")
		return repo.Update(txCtx, got)
	})
	require.NoError(t, err)

	got, err := repo.GetByID(context.Background(), v.ID)
	require.NoError(t, err)
	assert.True(t, got.IdleBalance.Equal(dec("5")))
}

func TestUnitOfWork_DoBeginFailure(t *testing.T) {
	db := newTestDB(t)
	u := NewUnitOfWork(db, 0)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	err = u.Do(context.Background(), func(ctx context.Context) error { return nil })
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to begin transaction")
}

func TestUnitOfWork_DoCommitFailure_WithHook(t *testing.T) {
	db := newTestDB(t)
	u := NewUnitOfWork(db, 0)

	origCommit := commitTx
	t.Cleanup(func() { commitTx = origCommit })
	commitTx = func(tx *gorm.DB) error {
		_ = tx
		return errors.New("forced commit fail")
	}

	err := u.Do(context.Background(), func(ctx context.Context) error {
		return NewVaultRepository(db).Create(ctx, seedVaultEntity())
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to commit transaction")
}

func TestMapLockError(t *testing.T) {
	assert.NoError(t, MapLockError(nil))

	for _, code := range []string{"55P03", "40P01", "40001", "57014"} {
		err := fmt.Errorf("query: %w", &pgconn.PgError{Code: code, Message: "lock"})
		assert.ErrorIs(t, MapLockError(err), domainerrors.ErrConcurrencyTimeout, code)
	}
	assert.ErrorIs(t, MapLockError(context.DeadlineExceeded), domainerrors.ErrConcurrencyTimeout)

	unique := &pgconn.PgError{Code: "23505"}
	assert.Equal(t, error(unique), MapLockError(unique))

	already := fmt.Errorf("%w: x", domainerrors.ErrConcurrencyTimeout)
	assert.Equal(t, already, MapLockError(already))
}
