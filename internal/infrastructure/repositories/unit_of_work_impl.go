package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	domainerrors "yield-vault.backend/internal/domain/errors"
	domainRepos "yield-vault.backend/internal/domain/repositories"
)

type contextKey string

const (
	txKey   contextKey = "tx_db"
	lockKey contextKey = "tx_lock"
)

// postgres SQLSTATEs that mean the row lock could not be taken in time
const (
	sqlStateLockNotAvailable     = "55P03"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateSerializationFailure = "40001"
	sqlStateQueryCanceled        = "57014"
)

var commitTx = func(tx *gorm.DB) error {
	return tx.Commit().Error
}

// UnitOfWorkImpl implements UnitOfWork using GORM
type UnitOfWorkImpl struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

// NewUnitOfWork creates a new UnitOfWork. A positive lockTimeout bounds row lock waits on postgres.
func NewUnitOfWork(db *gorm.DB, lockTimeout time.Duration) domainRepos.UnitOfWork {
	return &UnitOfWorkImpl{db: db, lockTimeout: lockTimeout}
}

// Do executes the given function within a transaction scope
func (u *UnitOfWorkImpl) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return fn(ctx)
	}

	tx := u.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", MapLockError(tx.Error))
	}

	if u.lockTimeout > 0 && tx.Dialector.Name() == "postgres" {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", u.lockTimeout.Milliseconds())
		if err := tx.Exec(stmt).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to set lock timeout: %w", err)
		}
	}

	txCtx := context.WithValue(ctx, txKey, tx)
	if err := fn(txCtx); err != nil {
		tx.Rollback()
		return MapLockError(err)
	}

	if err := commitTx(tx); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to commit transaction: %w", MapLockError(err))
	}
	return nil
}

// WithLock marks ctx so that reads through lockable take FOR UPDATE row locks
func (u *UnitOfWorkImpl) WithLock(ctx context.Context) context.Context {
	return context.WithValue(ctx, lockKey, true)
}

// GetDB returns the transaction carried by ctx, or the base DB
func (u *UnitOfWorkImpl) GetDB(ctx context.Context) *gorm.DB {
	return GetDB(ctx, u.db)
}

// GetDB is the package helper repositories use to join the caller's transaction
func GetDB(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return tx
	}
	return fallback
}

// lockable adds SELECT ... FOR UPDATE when ctx was marked by WithLock inside a transaction.
// Only single-table row reads go through it; aggregates never do.
func lockable(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	db := GetDB(ctx, fallback).WithContext(ctx)
	if locked, _ := ctx.Value(lockKey).(bool); locked {
		if _, inTx := ctx.Value(txKey).(*gorm.DB); inTx {
			return db.Clauses(clause.Locking{Strength: "UPDATE"})
		}
	}
	return db
}

// MapLockError turns lock timeouts, deadlocks and expired deadlines into ErrConcurrencyTimeout
func MapLockError(err error) error {
	if err == nil || errors.Is(err, domainerrors.ErrConcurrencyTimeout) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateLockNotAvailable, sqlStateDeadlockDetected, sqlStateSerializationFailure, sqlStateQueryCanceled:
			return fmt.Errorf("%w: %s", domainerrors.ErrConcurrencyTimeout, pgErr.Message)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domainerrors.ErrConcurrencyTimeout, err)
	}
	return err
}

// mapNotFound translates gorm's not-found into the domain sentinel
func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domainerrors.ErrNotFound
	}
	return err
}

// mapDuplicate translates unique violations into the domain sentinel
func mapDuplicate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", domainerrors.ErrAlreadyExists, err)
	}
	return err
}
