package usecases

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"yield-vault.backend/internal/domain/entities"
	domainerrors "yield-vault.backend/internal/domain/errors"
	"yield-vault.backend/internal/domain/repositories"
)

// VaultIndexUsecase owns the vault index and the idle/staked split
type VaultIndexUsecase struct {
	uow        repositories.UnitOfWork
	vaultRepo  repositories.VaultRepository
	ledgerRepo repositories.LedgerEntryRepository
	opts       EngineOptions
}

// NewVaultIndexUsecase creates a new vault index usecase
func NewVaultIndexUsecase(
	uow repositories.UnitOfWork,
	vaultRepo repositories.VaultRepository,
	ledgerRepo repositories.LedgerEntryRepository,
	opts EngineOptions,
) *VaultIndexUsecase {
	return &VaultIndexUsecase{
		uow:        uow,
		vaultRepo:  vaultRepo,
		ledgerRepo: ledgerRepo,
		opts:       opts,
	}
}

// ApplyYield moves the vault index by yield / totalUnits. It never touches positions.
func (u *VaultIndexUsecase) ApplyYield(ctx context.Context, vaultID uuid.UUID, yield decimal.Decimal) (*entities.YieldResult, error) {
	yield = entities.TruncAmount(yield)
	if yield.IsNegative() {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrInvalidYieldAmount, yield)
	}

	var res *entities.YieldResult
	err := runInTx(ctx, u.uow, u.opts, opApplyYield, func(txCtx context.Context) error {
		vault, err := u.vaultRepo.GetByID(u.uow.WithLock(txCtx), vaultID)
		if err != nil {
			return err
		}
		res, err = applyYieldLocked(txCtx, u.vaultRepo, u.ledgerRepo, vault, yield, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	if yield.IsPositive() {
		u.opts.Metrics.ObserveYield(res.Reserved)
	}
	return res, nil
}

// applyYieldLocked applies yield to a vault already locked by the caller
func applyYieldLocked(
	ctx context.Context,
	vaultRepo repositories.VaultRepository,
	ledgerRepo repositories.LedgerEntryRepository,
	vault *entities.Vault,
	yield decimal.Decimal,
	allocationID *uuid.UUID,
) (*entities.YieldResult, error) {
	res, err := vault.ApplyYield(yield)
	if err != nil {
		return nil, err
	}
	if yield.IsZero() {
		return res, nil
	}
	if err := vaultRepo.Update(ctx, vault); err != nil {
		return nil, err
	}

	entryType := entities.LedgerYieldApplied
	if res.Reserved {
		entryType = entities.LedgerYieldReserved
	}
	entry := ledgerEntry(vault, entryType, yield, decimal.Zero)
	if allocationID != nil {
		withRef(entry, *allocationID)
	}
	meta := map[string]string{
		"previousIndex": res.PreviousIndex.String(),
		"yieldPerUnit":  res.YieldPerUnit.String(),
	}
	if err := appendLedger(ctx, ledgerRepo, entry, meta); err != nil {
		return nil, err
	}
	return res, nil
}

// CreditIdle adds funds to the idle balance
func (u *VaultIndexUsecase) CreditIdle(ctx context.Context, vaultID uuid.UUID, amount decimal.Decimal) (*entities.Vault, error) {
	return u.mutate(ctx, vaultID, opCreditIdle, amount, entities.LedgerIdleCredited, func(v *entities.Vault, amt decimal.Decimal) error {
		return v.CreditIdle(amt)
	})
}

// DebitIdle removes free idle funds
func (u *VaultIndexUsecase) DebitIdle(ctx context.Context, vaultID uuid.UUID, amount decimal.Decimal) (*entities.Vault, error) {
	return u.mutate(ctx, vaultID, opDebitIdle, amount, entities.LedgerIdleDebited, func(v *entities.Vault, amt decimal.Decimal) error {
		return v.DebitIdle(amt)
	})
}

// Stake books a confirmed idle -> staked move
func (u *VaultIndexUsecase) Stake(ctx context.Context, vaultID uuid.UUID, amount decimal.Decimal) (*entities.Vault, error) {
	return u.mutate(ctx, vaultID, opStake, amount, entities.LedgerStaked, func(v *entities.Vault, amt decimal.Decimal) error {
		return v.Stake(amt, false)
	})
}

// Unstake books a confirmed staked -> idle move
func (u *VaultIndexUsecase) Unstake(ctx context.Context, vaultID uuid.UUID, amount decimal.Decimal) (*entities.Vault, error) {
	return u.mutate(ctx, vaultID, opUnstake, amount, entities.LedgerUnstaked, func(v *entities.Vault, amt decimal.Decimal) error {
		return v.Unstake(amt)
	})
}

func (u *VaultIndexUsecase) mutate(
	ctx context.Context,
	vaultID uuid.UUID,
	op string,
	amount decimal.Decimal,
	entryType entities.LedgerEntryType,
	apply func(*entities.Vault, decimal.Decimal) error,
) (*entities.Vault, error) {
	amount = entities.TruncAmount(amount)
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrInvalidAmount, amount)
	}

	var vault *entities.Vault
	err := runInTx(ctx, u.uow, u.opts, op, func(txCtx context.Context) error {
		var err error
		vault, err = u.vaultRepo.GetByID(u.uow.WithLock(txCtx), vaultID)
		if err != nil {
			return err
		}
		if err := apply(vault, amount); err != nil {
			return err
		}
		if err := u.vaultRepo.Update(txCtx, vault); err != nil {
			return err
		}
		return appendLedger(txCtx, u.ledgerRepo, ledgerEntry(vault, entryType, amount, decimal.Zero), nil)
	})
	if err != nil {
		return nil, err
	}
	return vault, nil
}

// ListReadyForStaking returns vaults whose free idle reached their staking threshold
func (u *VaultIndexUsecase) ListReadyForStaking(ctx context.Context, limit int) ([]*entities.Vault, error) {
	vaults, err := u.vaultRepo.ListWithIdle(ctx, limit)
	if err != nil {
		return nil, err
	}
	ready := make([]*entities.Vault, 0, len(vaults))
	for _, v := range vaults {
		if v.ReadyForStaking(u.opts.MinStakeThreshold) {
			ready = append(ready, v)
		}
	}
	return ready, nil
}
