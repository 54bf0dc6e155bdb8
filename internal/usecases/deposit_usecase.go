package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"yield-vault.backend/internal/domain/entities"
	domainerrors "yield-vault.backend/internal/domain/errors"
	"yield-vault.backend/internal/domain/repositories"
	"yield-vault.backend/pkg/logger"
)

// DepositUsecase turns confirmed payments into vault units
type DepositUsecase struct {
	uow          repositories.UnitOfWork
	vaultRepo    repositories.VaultRepository
	depositRepo  repositories.DepositRepository
	positionRepo repositories.PositionRepository
	ledgerRepo   repositories.LedgerEntryRepository
	opts         EngineOptions
}

// NewDepositUsecase creates a new deposit usecase
func NewDepositUsecase(
	uow repositories.UnitOfWork,
	vaultRepo repositories.VaultRepository,
	depositRepo repositories.DepositRepository,
	positionRepo repositories.PositionRepository,
	ledgerRepo repositories.LedgerEntryRepository,
	opts EngineOptions,
) *DepositUsecase {
	return &DepositUsecase{
		uow:          uow,
		vaultRepo:    vaultRepo,
		depositRepo:  depositRepo,
		positionRepo: positionRepo,
		ledgerRepo:   ledgerRepo,
		opts:         opts,
	}
}

// Create accepts a deposit request, resolving or creating the vault for its scope.
// Replaying an order id returns the deposit already stored for it.
func (u *DepositUsecase) Create(ctx context.Context, input *entities.CreateDepositInput) (*entities.Deposit, error) {
	amount := entities.TruncAmount(input.Amount)
	if err := validateDepositInput(input, amount); err != nil {
		return nil, err
	}

	existing, err := u.depositRepo.GetByOrderID(ctx, input.OrderID)
	if err == nil {
		return sameDepositOrder(existing, input)
	}
	if !errors.Is(err, domainerrors.ErrNotFound) {
		return nil, err
	}

	deposit := &entities.Deposit{
		OrderID:           input.OrderID,
		ClientID:          input.ClientID,
		UserID:            input.UserID,
		Amount:            amount,
		ConfirmedAmount:   decimal.Zero,
		UnitsMinted:       decimal.Zero,
		IndexAtCompletion: decimal.Zero,
		Status:            entities.DepositStatusPending,
	}
	err = runInTx(ctx, u.uow, u.opts, opCreateDeposit, func(txCtx context.Context) error {
		vault, err := u.vaultRepo.GetOrCreate(txCtx, entities.NewVault(
			uuid.Nil, input.ClientID, input.Chain, input.TokenAddress, input.TokenSymbol, input.Environment,
		))
		if err != nil {
			return err
		}
		deposit.VaultID = vault.ID
		return u.depositRepo.Create(txCtx, deposit)
	})
	if errors.Is(err, domainerrors.ErrAlreadyExists) {
		// lost a race on the same order id
		if existing, getErr := u.depositRepo.GetByOrderID(ctx, input.OrderID); getErr == nil {
			return sameDepositOrder(existing, input)
		}
	}
	if err != nil {
		return nil, err
	}
	return deposit, nil
}

// Complete mints units for a confirmed deposit at the current index.
// A deposit that is no longer PENDING is returned unchanged.
func (u *DepositUsecase) Complete(ctx context.Context, depositID uuid.UUID, confirmedAmount decimal.Decimal) (*entities.Deposit, error) {
	confirmedAmount = entities.TruncAmount(confirmedAmount)
	if confirmedAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: confirmed %s", domainerrors.ErrInvalidAmount, confirmedAmount)
	}

	var deposit *entities.Deposit
	err := runInTx(ctx, u.uow, u.opts, opCompleteDeposit, func(txCtx context.Context) error {
		lockCtx := u.uow.WithLock(txCtx)
		current, err := u.depositRepo.GetByID(txCtx, depositID)
		if err != nil {
			return err
		}
		vault, err := u.vaultRepo.GetByID(lockCtx, current.VaultID)
		if err != nil {
			return err
		}
		if deposit, err = u.depositRepo.GetByID(lockCtx, depositID); err != nil {
			return err
		}
		if deposit.Status != entities.DepositStatusPending {
			logger.Info(ctx, "Deposit already settled, ignoring confirmation",
				zap.String("depositId", deposit.ID.String()),
				zap.String("status", string(deposit.Status)),
			)
			return nil
		}

		units, err := vault.MintUnits(confirmedAmount)
		if err != nil {
			return err
		}
		if err := u.creditPosition(lockCtx, vault, deposit.UserID, units, confirmedAmount); err != nil {
			return err
		}

		now := time.Now()
		deposit.ConfirmedAmount = confirmedAmount
		deposit.UnitsMinted = units
		deposit.IndexAtCompletion = vault.CurrentIndex
		deposit.Status = entities.DepositStatusCompleted
		deposit.CompletedAt = &now
		if err := u.depositRepo.Update(txCtx, deposit); err != nil {
			return err
		}
		if err := u.vaultRepo.Update(txCtx, vault); err != nil {
			return err
		}
		entry := withUser(withRef(ledgerEntry(vault, entities.LedgerDepositCompleted, confirmedAmount, units), deposit.ID), deposit.UserID)
		return appendLedger(txCtx, u.ledgerRepo, entry, map[string]string{"orderId": deposit.OrderID})
	})
	if err != nil {
		return nil, err
	}
	return deposit, nil
}

func (u *DepositUsecase) creditPosition(ctx context.Context, vault *entities.Vault, userID uuid.UUID, units, amount decimal.Decimal) error {
	position, err := u.positionRepo.GetByUserAndVault(ctx, userID, vault.ID)
	if errors.Is(err, domainerrors.ErrNotFound) {
		position = &entities.EndUserPosition{
			UserID:     userID,
			VaultID:    vault.ID,
			ClientID:   vault.ClientID,
			Units:      decimal.Zero,
			EntryIndex: decimal.Zero,
		}
		position.AddUnits(units, amount)
		return u.positionRepo.Create(ctx, position)
	}
	if err != nil {
		return err
	}
	position.AddUnits(units, amount)
	return u.positionRepo.Update(ctx, position)
}

// Fail marks a pending deposit failed. It has no balance effects and is idempotent.
func (u *DepositUsecase) Fail(ctx context.Context, depositID uuid.UUID, reason string) (*entities.Deposit, error) {
	var deposit *entities.Deposit
	err := runInTx(ctx, u.uow, u.opts, opFailDeposit, func(txCtx context.Context) error {
		var err error
		deposit, err = u.depositRepo.GetByID(u.uow.WithLock(txCtx), depositID)
		if err != nil {
			return err
		}
		if deposit.Status.IsTerminal() {
			return nil
		}
		now := time.Now()
		deposit.Status = entities.DepositStatusFailed
		deposit.FailureReason.SetValid(reason)
		deposit.FailedAt = &now
		return u.depositRepo.Update(txCtx, deposit)
	})
	if err != nil {
		return nil, err
	}
	return deposit, nil
}

// OnPaymentConfirmed handles the payment collaborator's confirmation event
func (u *DepositUsecase) OnPaymentConfirmed(ctx context.Context, evt *entities.PaymentConfirmation) (*entities.Deposit, error) {
	deposit, err := u.depositRepo.GetByID(ctx, evt.DepositID)
	if err != nil {
		return nil, err
	}
	if evt.Currency != "" {
		vault, err := u.vaultRepo.GetByID(ctx, deposit.VaultID)
		if err != nil {
			return nil, err
		}
		if !strings.EqualFold(evt.Currency, vault.TokenSymbol) {
			return nil, fmt.Errorf("%w: payment in %s for a %s vault", domainerrors.ErrInvalidInput, evt.Currency, vault.TokenSymbol)
		}
	}
	return u.Complete(ctx, evt.DepositID, evt.ConfirmedAmount)
}

func validateDepositInput(input *entities.CreateDepositInput, amount decimal.Decimal) error {
	switch {
	case strings.TrimSpace(input.OrderID) == "" || len(input.OrderID) > maxOrderIDLength:
		return fmt.Errorf("%w: order id", domainerrors.ErrInvalidInput)
	case input.ClientID == uuid.Nil || input.UserID == uuid.Nil:
		return fmt.Errorf("%w: client and user are required", domainerrors.ErrInvalidInput)
	case !validCAIP2(input.Chain):
		return fmt.Errorf("%w: chain %q is not a CAIP-2 id", domainerrors.ErrInvalidInput, input.Chain)
	case input.TokenAddress == "" || input.TokenSymbol == "" || input.Environment == "":
		return fmt.Errorf("%w: token and environment are required", domainerrors.ErrInvalidInput)
	case amount.Sign() <= 0:
		return fmt.Errorf("%w: deposit %s", domainerrors.ErrInvalidAmount, input.Amount)
	}
	return nil
}

func sameDepositOrder(existing *entities.Deposit, input *entities.CreateDepositInput) (*entities.Deposit, error) {
	if existing.ClientID != input.ClientID || existing.UserID != input.UserID {
		return nil, fmt.Errorf("%w: order %s belongs to another deposit", domainerrors.ErrAlreadyExists, input.OrderID)
	}
	return existing, nil
}
