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

// WithdrawalUsecase runs the withdrawal settlement pipeline:
//
//	PENDING -> queued -> unstaking -> ready -> processing -> completed
//
// and restores units whenever a non-terminal item fails.
type WithdrawalUsecase struct {
	uow             repositories.UnitOfWork
	vaultRepo       repositories.VaultRepository
	positionRepo    repositories.PositionRepository
	allocationRepo  repositories.AllocationRepository
	withdrawalRepo  repositories.WithdrawalRepository
	instructionRepo repositories.InstructionRepository
	ledgerRepo      repositories.LedgerEntryRepository
	opts            EngineOptions
}

// NewWithdrawalUsecase creates a new withdrawal usecase
func NewWithdrawalUsecase(
	uow repositories.UnitOfWork,
	vaultRepo repositories.VaultRepository,
	positionRepo repositories.PositionRepository,
	allocationRepo repositories.AllocationRepository,
	withdrawalRepo repositories.WithdrawalRepository,
	instructionRepo repositories.InstructionRepository,
	ledgerRepo repositories.LedgerEntryRepository,
	opts EngineOptions,
) *WithdrawalUsecase {
	return &WithdrawalUsecase{
		uow:             uow,
		vaultRepo:       vaultRepo,
		positionRepo:    positionRepo,
		allocationRepo:  allocationRepo,
		withdrawalRepo:  withdrawalRepo,
		instructionRepo: instructionRepo,
		ledgerRepo:      ledgerRepo,
		opts:            opts,
	}
}

// Request records a withdrawal as PENDING. Replaying an order id returns the stored withdrawal.
// The amount may not exceed what the user's position is worth at the current index.
func (u *WithdrawalUsecase) Request(ctx context.Context, input *entities.RequestWithdrawalInput) (*entities.WithdrawalTransaction, error) {
	amount := entities.TruncAmount(input.Amount)
	switch {
	case strings.TrimSpace(input.OrderID) == "" || len(input.OrderID) > maxOrderIDLength:
		return nil, fmt.Errorf("%w: order id", domainerrors.ErrInvalidInput)
	case input.ClientID == uuid.Nil || input.UserID == uuid.Nil || input.VaultID == uuid.Nil:
		return nil, fmt.Errorf("%w: client, user and vault are required", domainerrors.ErrInvalidInput)
	case amount.Sign() <= 0:
		return nil, fmt.Errorf("%w: withdrawal %s", domainerrors.ErrInvalidAmount, input.Amount)
	}

	existing, err := u.withdrawalRepo.GetTransactionByOrderID(ctx, input.OrderID)
	if err == nil {
		return sameWithdrawalOrder(existing, input)
	}
	if !errors.Is(err, domainerrors.ErrNotFound) {
		return nil, err
	}

	vault, err := u.vaultRepo.GetByID(ctx, input.VaultID)
	if err != nil {
		return nil, err
	}
	if vault.ClientID != input.ClientID {
		return nil, fmt.Errorf("%w: vault %s", domainerrors.ErrNotFound, input.VaultID)
	}
	dest, err := normalizeDestination(input.Destination, vault.Chain)
	if err != nil {
		return nil, err
	}
	position, err := u.positionRepo.GetByUserAndVault(ctx, input.UserID, vault.ID)
	if errors.Is(err, domainerrors.ErrNotFound) || (err == nil && position.IsEmpty()) {
		return nil, fmt.Errorf("%w: user %s holds no units in vault %s", domainerrors.ErrInsufficientBalance, input.UserID, vault.ID)
	}
	if err != nil {
		return nil, err
	}
	if value := position.CurrentValue(vault.CurrentIndex); amount.GreaterThan(value) {
		return nil, fmt.Errorf("%w: requested %s, position is worth %s", domainerrors.ErrInsufficientBalance, amount, value)
	}

	tx := &entities.WithdrawalTransaction{
		OrderID:         input.OrderID,
		ClientID:        input.ClientID,
		UserID:          input.UserID,
		VaultID:         vault.ID,
		RequestedAmount: amount,
		ActualAmount:    decimal.Zero,
		WithdrawalFee:   decimal.Zero,
		NetworkFee:      decimal.Zero,
		Currency:        vault.TokenSymbol,
		Destination:     dest,
		Priority:        input.Priority,
		Status:          entities.WithdrawalStatusPending,
	}
	err = runInTx(ctx, u.uow, u.opts, opRequestWithdrawal, func(txCtx context.Context) error {
		return u.withdrawalRepo.CreateTransaction(txCtx, tx)
	})
	if errors.Is(err, domainerrors.ErrAlreadyExists) {
		if existing, getErr := u.withdrawalRepo.GetTransactionByOrderID(ctx, input.OrderID); getErr == nil {
			return sameWithdrawalOrder(existing, input)
		}
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// Submit requests and immediately queues a withdrawal
func (u *WithdrawalUsecase) Submit(ctx context.Context, input *entities.RequestWithdrawalInput) (*entities.WithdrawalQueueItem, error) {
	tx, err := u.Request(ctx, input)
	if err != nil {
		return nil, err
	}
	return u.Queue(ctx, tx.ID)
}

// Cancel fails a withdrawal that has not been queued yet. Once queued, use Fail.
func (u *WithdrawalUsecase) Cancel(ctx context.Context, withdrawalID uuid.UUID) (*entities.WithdrawalTransaction, error) {
	var tx *entities.WithdrawalTransaction
	err := runInTx(ctx, u.uow, u.opts, opCancelWithdrawal, func(txCtx context.Context) error {
		var err error
		tx, err = u.withdrawalRepo.GetTransactionByID(u.uow.WithLock(txCtx), withdrawalID)
		if err != nil {
			return err
		}
		switch {
		case tx.Status == entities.WithdrawalStatusFailed && tx.ErrorCode.String == domainerrors.CodeCancelled:
			return nil
		case tx.Status != entities.WithdrawalStatusPending:
			return fmt.Errorf("%w: withdrawal %s is %s", domainerrors.ErrInvalidInput, tx.ID, tx.Status)
		}
		now := time.Now()
		tx.Status = entities.WithdrawalStatusFailed
		tx.ErrorCode.SetValid(domainerrors.CodeCancelled)
		tx.ErrorMessage.SetValid("cancelled before queueing")
		tx.FailedAt = &now
		return u.withdrawalRepo.UpdateTransaction(txCtx, tx)
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// Queue burns the withdrawn units at the current index, fixes the amount owed
// and plans where the liquidity comes from. Nothing is burned when the vault
// cannot cover the amount.
func (u *WithdrawalUsecase) Queue(ctx context.Context, withdrawalID uuid.UUID) (*entities.WithdrawalQueueItem, error) {
	var item *entities.WithdrawalQueueItem
	created := false
	err := runInTx(ctx, u.uow, u.opts, opQueueWithdrawal, func(txCtx context.Context) error {
		created = false
		lockCtx := u.uow.WithLock(txCtx)
		current, err := u.withdrawalRepo.GetTransactionByID(txCtx, withdrawalID)
		if err != nil {
			return err
		}
		vault, err := u.vaultRepo.GetByID(lockCtx, current.VaultID)
		if err != nil {
			return err
		}
		tx, err := u.withdrawalRepo.GetTransactionByID(lockCtx, withdrawalID)
		if err != nil {
			return err
		}
		switch tx.Status {
		case entities.WithdrawalStatusQueued, entities.WithdrawalStatusCompleted:
			item, err = u.withdrawalRepo.GetQueueItemByTransactionID(txCtx, tx.ID)
			return err
		case entities.WithdrawalStatusFailed:
			return fmt.Errorf("%w: withdrawal %s already failed", domainerrors.ErrInvalidInput, tx.ID)
		}

		position, err := u.positionRepo.GetByUserAndVault(lockCtx, tx.UserID, vault.ID)
		if errors.Is(err, domainerrors.ErrNotFound) {
			return fmt.Errorf("%w: user %s holds no units", domainerrors.ErrInsufficientBalance, tx.UserID)
		}
		if err != nil {
			return err
		}
		value := position.CurrentValue(vault.CurrentIndex)
		if value.Sign() <= 0 {
			return fmt.Errorf("%w: position is empty", domainerrors.ErrInsufficientBalance)
		}
		if tx.RequestedAmount.GreaterThan(value) {
			return fmt.Errorf("%w: requested %s, position is worth %s", domainerrors.ErrInsufficientBalance, tx.RequestedAmount, value)
		}

		units, owed := position.Units, value
		if tx.RequestedAmount.LessThan(value) {
			units = entities.MinDecimal(entities.UnitsToCover(tx.RequestedAmount, vault.CurrentIndex), position.Units)
			owed = entities.MinDecimal(tx.RequestedAmount, entities.ValueOf(units, vault.CurrentIndex))
		}
		costBasis := entities.ValueOf(units, position.EntryIndex)
		withdrawalFee := entities.PercentOf(owed, u.opts.WithdrawalFeePercent)
		networkFee := u.opts.NetworkFee
		actual := owed.Sub(withdrawalFee).Sub(networkFee)
		if actual.Sign() <= 0 {
			return fmt.Errorf("%w: %s does not cover fees of %s", domainerrors.ErrInvalidAmount, owed, withdrawalFee.Add(networkFee))
		}

		allocs, err := u.allocationRepo.ListByVault(lockCtx, vault.ID)
		if err != nil {
			return err
		}
		live := make([]*entities.Allocation, 0, len(allocs))
		liquidity := vault.FreeIdle()
		for _, a := range allocs {
			if a.IsLive() {
				live = append(live, a)
				liquidity = liquidity.Add(a.Available())
			}
		}
		if liquidity.LessThan(owed) {
			return fmt.Errorf("%w: vault can cover %s of %s", domainerrors.ErrInsufficientLiquidity, liquidity, owed)
		}

		if err := vault.BurnUnits(units, owed); err != nil {
			return err
		}
		position.RemoveUnits(units)
		if position.IsEmpty() {
			err = u.positionRepo.Delete(txCtx, position.ID)
		} else {
			err = u.positionRepo.Update(txCtx, position)
		}
		if err != nil {
			return err
		}

		reserved := vault.ReserveIdle(owed)
		legs, err := u.planUnstake(txCtx, live, owed.Sub(reserved))
		if err != nil {
			return err
		}

		now := time.Now()
		item = &entities.WithdrawalQueueItem{
			ClientID:                tx.ClientID,
			WithdrawalTransactionID: tx.ID,
			VaultID:                 vault.ID,
			UserID:                  tx.UserID,
			UnitsToBurn:             units,
			IndexAtBurn:             vault.CurrentIndex,
			CostBasis:               costBasis,
			EstimatedAmount:         owed,
			ActualAmount:            actual,
			ReservedIdle:            reserved,
			ProtocolsToUnstake:      legs,
			Priority:                tx.Priority,
			Status:                  entities.QueueItemStatusQueued,
			QueuedAt:                now,
		}
		if err := u.withdrawalRepo.CreateQueueItem(txCtx, item); err != nil {
			return err
		}

		tx.Status = entities.WithdrawalStatusQueued
		tx.WithdrawalFee = withdrawalFee
		tx.NetworkFee = networkFee
		tx.ActualAmount = actual
		if err := u.withdrawalRepo.UpdateTransaction(txCtx, tx); err != nil {
			return err
		}
		if err := u.vaultRepo.Update(txCtx, vault); err != nil {
			return err
		}
		created = true
		entry := withUser(withRef(ledgerEntry(vault, entities.LedgerWithdrawalQueued, owed, units), item.ID), tx.UserID)
		return appendLedger(txCtx, u.ledgerRepo, entry, map[string]string{
			"orderId":      tx.OrderID,
			"reservedIdle": reserved.String(),
		})
	})
	if err != nil {
		return nil, err
	}
	if created {
		u.opts.Metrics.ObserveQueueTransition(string(entities.QueueItemStatusQueued))
	}
	return item, nil
}

// planUnstake earmarks the shortfall across live allocations, lowest APY first
func (u *WithdrawalUsecase) planUnstake(ctx context.Context, live []*entities.Allocation, shortfall decimal.Decimal) ([]*entities.ProtocolUnstake, error) {
	legs := []*entities.ProtocolUnstake{}
	if shortfall.Sign() <= 0 {
		return legs, nil
	}
	byAPYAscending(live)
	for _, a := range live {
		if shortfall.Sign() <= 0 {
			break
		}
		take := entities.MinDecimal(a.Available(), shortfall)
		if take.Sign() <= 0 {
			continue
		}
		if err := a.PlanUnstake(take); err != nil {
			return nil, err
		}
		if err := u.allocationRepo.Update(ctx, a); err != nil {
			return nil, err
		}
		legs = append(legs, &entities.ProtocolUnstake{
			ProtocolID:      a.ProtocolID,
			AllocationID:    a.ID,
			Amount:          take,
			ConfirmedAmount: decimal.Zero,
		})
		shortfall = shortfall.Sub(take)
	}
	if shortfall.Sign() > 0 {
		return nil, fmt.Errorf("%w: %s left unplanned", domainerrors.ErrInsufficientLiquidity, shortfall)
	}
	return legs, nil
}

// Aggregate batches a client's queued items: items fully covered by idle become
// ready, the rest share one withdrawal unstake instruction per allocation.
func (u *WithdrawalUsecase) Aggregate(ctx context.Context, clientID uuid.UUID) (*entities.AggregationResult, error) {
	var result *entities.AggregationResult
	err := runInTx(ctx, u.uow, u.opts, opAggregate, func(txCtx context.Context) error {
		result = &entities.AggregationResult{ClientID: clientID}
		items, err := u.withdrawalRepo.ListQueuedByClient(u.uow.WithLock(txCtx), clientID, u.opts.BatchSize)
		if err != nil {
			return err
		}

		type group struct {
			allocationID uuid.UUID
			amount       decimal.Decimal
			legs         []*entities.ProtocolUnstake
			itemIDs      []uuid.UUID
		}
		var groups []*group
		byAllocation := make(map[uuid.UUID]*group)
		now := time.Now()
		var unstaking []*entities.WithdrawalQueueItem

		for _, item := range items {
			if !item.NeedsUnstake() {
				item.Status = entities.QueueItemStatusReady
				item.ReadyAt = &now
				if err := u.withdrawalRepo.UpdateQueueItem(txCtx, item); err != nil {
					return err
				}
				result.ReadyItemIDs = append(result.ReadyItemIDs, item.ID)
				continue
			}
			for _, leg := range item.ProtocolsToUnstake {
				outstanding := leg.Outstanding()
				if leg.BatchID != nil || outstanding.Sign() <= 0 {
					continue
				}
				g := byAllocation[leg.AllocationID]
				if g == nil {
					g = &group{allocationID: leg.AllocationID, amount: decimal.Zero}
					byAllocation[leg.AllocationID] = g
					groups = append(groups, g)
				}
				g.amount = g.amount.Add(outstanding)
				g.legs = append(g.legs, leg)
				g.itemIDs = append(g.itemIDs, item.ID)
			}
			unstaking = append(unstaking, item)
		}

		for _, g := range groups {
			alloc, err := u.allocationRepo.GetByID(txCtx, g.allocationID)
			if err != nil {
				return err
			}
			in := &entities.ProtocolInstruction{
				ClientID:        alloc.ClientID,
				VaultID:         alloc.VaultID,
				AllocationID:    alloc.ID,
				ProtocolID:      alloc.ProtocolID,
				Chain:           alloc.Chain,
				TokenAddress:    alloc.TokenAddress,
				Amount:          g.amount,
				ConfirmedAmount: decimal.Zero,
				Direction:       entities.DirectionUnstake,
				Purpose:         entities.PurposeWithdrawal,
				QueueItemIDs:    g.itemIDs,
				Status:          entities.InstructionStatusPending,
			}
			if err := u.instructionRepo.CreateProtocolInstruction(txCtx, in); err != nil {
				return fmt.Errorf("failed to emit withdrawal batch: %w", err)
			}
			for _, leg := range g.legs {
				batchID := in.ID
				leg.BatchID = &batchID
			}
			result.Instructions = append(result.Instructions, in)
		}

		for _, item := range unstaking {
			item.Status = entities.QueueItemStatusUnstaking
			item.UnstakingStartedAt = &now
			if err := u.withdrawalRepo.UpdateQueueItem(txCtx, item); err != nil {
				return err
			}
			result.UnstakingItemIDs = append(result.UnstakingItemIDs, item.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	observeInstructions(u.opts, result.Instructions)
	for range result.ReadyItemIDs {
		u.opts.Metrics.ObserveQueueTransition(string(entities.QueueItemStatusReady))
	}
	for range result.UnstakingItemIDs {
		u.opts.Metrics.ObserveQueueTransition(string(entities.QueueItemStatusUnstaking))
	}
	return result, nil
}

// ConfirmUnstake applies an executed unstake to a batch or a single item.
// The funds land in idle and are reserved for the items they were unstaked for,
// in priority order. Items whose legs are all settled become ready.
func (u *WithdrawalUsecase) ConfirmUnstake(ctx context.Context, c *entities.UnstakeConfirmation) ([]*entities.WithdrawalQueueItem, error) {
	if (c.QueueItemID == nil) == (c.BatchID == nil) {
		return nil, fmt.Errorf("%w: exactly one of queue item id or batch id is required", domainerrors.ErrInvalidInput)
	}
	confirmed := entities.TruncAmount(c.ConfirmedAmount)
	if confirmed.Sign() <= 0 {
		return nil, fmt.Errorf("%w: confirmed %s", domainerrors.ErrInvalidAmount, c.ConfirmedAmount)
	}

	var touched []*entities.WithdrawalQueueItem
	err := runInTx(ctx, u.uow, u.opts, opConfirmUnstake, func(txCtx context.Context) error {
		var err error
		if c.BatchID != nil {
			touched, err = u.confirmBatchLocked(txCtx, *c.BatchID, c.ProtocolID, confirmed)
		} else {
			touched, err = u.confirmItemLocked(txCtx, *c.QueueItemID, c.ProtocolID, confirmed)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrConfirmationMismatch) {
			u.opts.Metrics.ObserveMismatch("unstake")
			logger.Warn(ctx, "Ignoring unstake confirmation", zap.Error(err))
		}
		return nil, err
	}
	for _, item := range touched {
		if item.Status == entities.QueueItemStatusReady {
			u.opts.Metrics.ObserveQueueTransition(string(entities.QueueItemStatusReady))
		}
	}
	return touched, nil
}

func (u *WithdrawalUsecase) confirmBatchLocked(txCtx context.Context, batchID, protocolID uuid.UUID, confirmed decimal.Decimal) ([]*entities.WithdrawalQueueItem, error) {
	lockCtx := u.uow.WithLock(txCtx)
	in, err := u.instructionRepo.GetProtocolInstruction(txCtx, batchID)
	if errors.Is(err, domainerrors.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown batch %s", domainerrors.ErrConfirmationMismatch, batchID)
	}
	if err != nil {
		return nil, err
	}
	if in.Purpose != entities.PurposeWithdrawal {
		return nil, fmt.Errorf("%w: instruction %s is not a withdrawal batch", domainerrors.ErrInvalidInput, batchID)
	}
	if protocolID != uuid.Nil && protocolID != in.ProtocolID {
		return nil, fmt.Errorf("%w: batch %s unstakes from %s, not %s", domainerrors.ErrConfirmationMismatch, batchID, in.ProtocolID, protocolID)
	}

	vault, err := u.vaultRepo.GetByID(lockCtx, in.VaultID)
	if err != nil {
		return nil, err
	}
	if in, err = u.instructionRepo.GetProtocolInstruction(lockCtx, batchID); err != nil {
		return nil, err
	}
	if in.Status.IsTerminal() || confirmed.GreaterThan(in.Outstanding()) {
		return nil, fmt.Errorf("%w: batch %s is %s, outstanding %s, confirmed %s",
			domainerrors.ErrConfirmationMismatch, in.ID, in.Status, in.Outstanding(), confirmed)
	}
	items, err := u.withdrawalRepo.GetQueueItemsByIDs(lockCtx, in.QueueItemIDs)
	if err != nil {
		return nil, err
	}
	alloc, err := u.allocationRepo.GetByID(lockCtx, in.AllocationID)
	if err != nil {
		return nil, err
	}

	type share struct {
		item *entities.WithdrawalQueueItem
		leg  *entities.ProtocolUnstake
		give decimal.Decimal
	}
	var shares []share
	remaining, planned := confirmed, decimal.Zero
	for _, item := range items {
		if item.Status.IsTerminal() || remaining.Sign() <= 0 {
			continue
		}
		leg := batchLeg(item, in.ID)
		if leg == nil {
			continue
		}
		give := entities.MinDecimal(leg.Outstanding(), remaining)
		if give.Sign() <= 0 {
			continue
		}
		shares = append(shares, share{item: item, leg: leg, give: give})
		remaining = remaining.Sub(give)
		planned = planned.Add(give)
	}

	if err := alloc.ConfirmUnstake(confirmed, planned); err != nil {
		return nil, err
	}
	if err := vault.Unstake(confirmed); err != nil {
		return nil, err
	}

	now := time.Now()
	touched := make([]*entities.WithdrawalQueueItem, 0, len(shares))
	for _, s := range shares {
		s.leg.ConfirmedAmount = s.leg.ConfirmedAmount.Add(s.give)
		s.item.ReservedIdle = s.item.ReservedIdle.Add(vault.ReserveIdle(s.give))
		markReadyIfSettled(s.item, now)
		if err := u.withdrawalRepo.UpdateQueueItem(txCtx, s.item); err != nil {
			return nil, err
		}
		touched = append(touched, s.item)
	}

	in.ConfirmedAmount = in.ConfirmedAmount.Add(confirmed)
	if in.Outstanding().Sign() <= 0 {
		in.Status = entities.InstructionStatusConfirmed
		in.ConfirmedAt = &now
	}
	if err := u.instructionRepo.UpdateProtocolInstruction(txCtx, in); err != nil {
		return nil, err
	}
	if err := u.allocationRepo.Update(txCtx, alloc); err != nil {
		return nil, err
	}
	if err := u.vaultRepo.Update(txCtx, vault); err != nil {
		return nil, err
	}
	entry := withRef(ledgerEntry(vault, entities.LedgerUnstaked, confirmed, decimal.Zero), in.ID)
	if err := appendLedger(txCtx, u.ledgerRepo, entry, map[string]string{"allocated": planned.String()}); err != nil {
		return nil, err
	}
	return touched, nil
}

func (u *WithdrawalUsecase) confirmItemLocked(txCtx context.Context, itemID, protocolID uuid.UUID, confirmed decimal.Decimal) ([]*entities.WithdrawalQueueItem, error) {
	lockCtx := u.uow.WithLock(txCtx)
	vault, item, err := u.lockItem(txCtx, lockCtx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: queue item %s is %s", domainerrors.ErrConfirmationMismatch, item.ID, item.Status)
	}
	leg := item.Leg(protocolID)
	if leg == nil || confirmed.GreaterThan(leg.Outstanding()) {
		return nil, fmt.Errorf("%w: queue item %s has no outstanding %s unstake from %s",
			domainerrors.ErrConfirmationMismatch, item.ID, confirmed, protocolID)
	}
	alloc, err := u.allocationRepo.GetByID(lockCtx, leg.AllocationID)
	if err != nil {
		return nil, err
	}
	if err := alloc.ConfirmUnstake(confirmed, confirmed); err != nil {
		return nil, err
	}
	if err := vault.Unstake(confirmed); err != nil {
		return nil, err
	}

	now := time.Now()
	leg.ConfirmedAmount = leg.ConfirmedAmount.Add(confirmed)
	item.ReservedIdle = item.ReservedIdle.Add(vault.ReserveIdle(confirmed))
	markReadyIfSettled(item, now)

	if leg.BatchID != nil {
		in, err := u.instructionRepo.GetProtocolInstruction(lockCtx, *leg.BatchID)
		if err != nil {
			return nil, err
		}
		if !in.Status.IsTerminal() {
			in.ConfirmedAmount = entities.MinDecimal(in.ConfirmedAmount.Add(confirmed), in.Amount)
			if in.Outstanding().Sign() <= 0 {
				in.Status = entities.InstructionStatusConfirmed
				in.ConfirmedAt = &now
			}
			if err := u.instructionRepo.UpdateProtocolInstruction(txCtx, in); err != nil {
				return nil, err
			}
		}
	}

	if err := u.withdrawalRepo.UpdateQueueItem(txCtx, item); err != nil {
		return nil, err
	}
	if err := u.allocationRepo.Update(txCtx, alloc); err != nil {
		return nil, err
	}
	if err := u.vaultRepo.Update(txCtx, vault); err != nil {
		return nil, err
	}
	entry := withRef(ledgerEntry(vault, entities.LedgerUnstaked, confirmed, decimal.Zero), item.ID)
	if err := appendLedger(txCtx, u.ledgerRepo, entry, nil); err != nil {
		return nil, err
	}
	return []*entities.WithdrawalQueueItem{item}, nil
}

// InitiatePayout moves a ready item to processing and emits its payout instruction.
// Calling it again for a processing item returns the payout already emitted.
func (u *WithdrawalUsecase) InitiatePayout(ctx context.Context, itemID uuid.UUID) (*entities.PayoutInstruction, error) {
	var payout *entities.PayoutInstruction
	transitioned := false
	err := runInTx(ctx, u.uow, u.opts, opInitiatePayout, func(txCtx context.Context) error {
		transitioned = false
		lockCtx := u.uow.WithLock(txCtx)
		vault, item, err := u.lockItem(txCtx, lockCtx, itemID)
		if err != nil {
			return err
		}
		switch item.Status {
		case entities.QueueItemStatusProcessing:
			payout, err = u.instructionRepo.GetPayoutByQueueItem(txCtx, item.ID)
			return err
		case entities.QueueItemStatusReady:
		default:
			return fmt.Errorf("%w: queue item %s is %s", domainerrors.ErrInvalidInput, item.ID, item.Status)
		}

		if need := item.EstimatedAmount.Sub(item.ReservedIdle); need.IsPositive() {
			got := vault.ReserveIdle(need)
			if got.LessThan(need) {
				vault.ReleaseReservedIdle(got)
				return fmt.Errorf("%w: %s of %s reservable for item %s", domainerrors.ErrInsufficientLiquidity, got, need, item.ID)
			}
			item.ReservedIdle = item.ReservedIdle.Add(got)
		}

		tx, err := u.withdrawalRepo.GetTransactionByID(lockCtx, item.WithdrawalTransactionID)
		if err != nil {
			return err
		}
		payout = &entities.PayoutInstruction{
			QueueItemID: item.ID,
			ClientID:    item.ClientID,
			Destination: tx.Destination,
			Amount:      item.ActualAmount,
			Currency:    tx.Currency,
			Status:      entities.PayoutStatusPending,
		}
		if err := u.instructionRepo.CreatePayoutInstruction(txCtx, payout); err != nil {
			return fmt.Errorf("failed to emit payout: %w", err)
		}

		now := time.Now()
		item.Status = entities.QueueItemStatusProcessing
		item.ProcessingAt = &now
		if err := u.withdrawalRepo.UpdateQueueItem(txCtx, item); err != nil {
			return err
		}
		transitioned = true
		return u.vaultRepo.Update(txCtx, vault)
	})
	if err != nil {
		return nil, err
	}
	if transitioned {
		u.opts.Metrics.ObserveQueueTransition(string(entities.QueueItemStatusProcessing))
		u.opts.Metrics.ObserveInstruction("payout", string(entities.PurposeWithdrawal))
	}
	return payout, nil
}

// ConfirmPayout settles a processing item: the estimated amount leaves the vault
// and the withdrawal is marked COMPLETED with the payout transaction hash.
func (u *WithdrawalUsecase) ConfirmPayout(ctx context.Context, c *entities.PayoutConfirmation) (*entities.WithdrawalQueueItem, error) {
	if strings.TrimSpace(c.TransactionHash) == "" {
		return nil, fmt.Errorf("%w: transaction hash is required", domainerrors.ErrInvalidInput)
	}

	var item *entities.WithdrawalQueueItem
	completed := false
	err := runInTx(ctx, u.uow, u.opts, opConfirmPayout, func(txCtx context.Context) error {
		completed = false
		lockCtx := u.uow.WithLock(txCtx)
		vault, locked, err := u.lockItem(txCtx, lockCtx, c.QueueItemID)
		if err != nil {
			return err
		}
		item = locked
		tx, err := u.withdrawalRepo.GetTransactionByID(lockCtx, item.WithdrawalTransactionID)
		if err != nil {
			return err
		}
		switch item.Status {
		case entities.QueueItemStatusCompleted:
			if tx.TransactionHash.String == c.TransactionHash {
				return nil
			}
			return fmt.Errorf("%w: queue item %s already paid by %s", domainerrors.ErrConfirmationMismatch, item.ID, tx.TransactionHash.String)
		case entities.QueueItemStatusProcessing:
		default:
			return fmt.Errorf("%w: queue item %s is %s", domainerrors.ErrConfirmationMismatch, item.ID, item.Status)
		}

		if err := vault.SettlePayout(item.EstimatedAmount); err != nil {
			return err
		}
		now := time.Now()
		item.ReservedIdle = decimal.Zero
		item.Status = entities.QueueItemStatusCompleted
		item.CompletedAt = &now
		if err := u.withdrawalRepo.UpdateQueueItem(txCtx, item); err != nil {
			return err
		}

		tx.Status = entities.WithdrawalStatusCompleted
		tx.ActualAmount = item.ActualAmount
		tx.TransactionHash.SetValid(c.TransactionHash)
		tx.CompletedAt = &now
		if err := u.withdrawalRepo.UpdateTransaction(txCtx, tx); err != nil {
			return err
		}
		if err := u.vaultRepo.Update(txCtx, vault); err != nil {
			return err
		}
		completed = true
		entry := withUser(withRef(ledgerEntry(vault, entities.LedgerWithdrawalPaid, item.EstimatedAmount, item.UnitsToBurn), item.ID), item.UserID)
		return appendLedger(txCtx, u.ledgerRepo, entry, map[string]string{
			"actualAmount":    item.ActualAmount.String(),
			"withdrawalFee":   tx.WithdrawalFee.String(),
			"networkFee":      tx.NetworkFee.String(),
			"transactionHash": c.TransactionHash,
		})
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrConfirmationMismatch) {
			u.opts.Metrics.ObserveMismatch("payout")
			logger.Warn(ctx, "Ignoring payout confirmation", zap.String("queueItemId", c.QueueItemID.String()), zap.Error(err))
		}
		return nil, err
	}
	if completed {
		u.opts.Metrics.ObserveQueueTransition(string(entities.QueueItemStatusCompleted))
	}
	return item, nil
}

// Fail abandons a queued, unstaking or ready item and restores the user's units at the current index.
// Failing an already failed item is a no-op. Once a payout has been initiated the
// item can only complete, so failing a processing item is a confirmation mismatch.
func (u *WithdrawalUsecase) Fail(ctx context.Context, itemID uuid.UUID, reason string) (*entities.WithdrawalQueueItem, error) {
	var item *entities.WithdrawalQueueItem
	failed := false
	err := runInTx(ctx, u.uow, u.opts, opFailWithdrawal, func(txCtx context.Context) error {
		lockCtx := u.uow.WithLock(txCtx)
		vault, locked, err := u.lockItem(txCtx, lockCtx, itemID)
		if err != nil {
			return err
		}
		item = locked
		if failed, err = u.failLocked(txCtx, vault, item, reason); err != nil {
			return err
		}
		return u.vaultRepo.Update(txCtx, vault)
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrConfirmationMismatch) {
			u.opts.Metrics.ObserveMismatch("withdrawal_failure")
			logger.Warn(ctx, "Ignoring withdrawal failure", zap.String("queueItemId", itemID.String()), zap.Error(err))
		}
		return nil, err
	}
	if failed {
		u.opts.Metrics.ObserveQueueTransition(string(entities.QueueItemStatusFailed))
	}
	return item, nil
}

// FailBatch handles a permanent unstake failure: every item still waiting on the batch fails.
func (u *WithdrawalUsecase) FailBatch(ctx context.Context, batchID uuid.UUID, reason string) ([]*entities.WithdrawalQueueItem, error) {
	var failedItems []*entities.WithdrawalQueueItem
	err := runInTx(ctx, u.uow, u.opts, opFailBatch, func(txCtx context.Context) error {
		failedItems = nil
		lockCtx := u.uow.WithLock(txCtx)
		in, err := u.instructionRepo.GetProtocolInstruction(txCtx, batchID)
		if errors.Is(err, domainerrors.ErrNotFound) {
			return fmt.Errorf("%w: unknown batch %s", domainerrors.ErrConfirmationMismatch, batchID)
		}
		if err != nil {
			return err
		}
		if in.Purpose != entities.PurposeWithdrawal {
			return fmt.Errorf("%w: instruction %s is not a withdrawal batch", domainerrors.ErrInvalidInput, batchID)
		}
		vault, err := u.vaultRepo.GetByID(lockCtx, in.VaultID)
		if err != nil {
			return err
		}
		if in, err = u.instructionRepo.GetProtocolInstruction(lockCtx, batchID); err != nil {
			return err
		}
		if in.Status.IsTerminal() {
			return nil
		}
		items, err := u.withdrawalRepo.GetQueueItemsByIDs(lockCtx, in.QueueItemIDs)
		if err != nil {
			return err
		}
		for _, item := range items {
			leg := batchLeg(item, in.ID)
			if leg == nil || leg.Outstanding().Sign() <= 0 {
				continue
			}
			failed, err := u.failLocked(txCtx, vault, item, reason)
			if err != nil {
				return err
			}
			if failed {
				failedItems = append(failedItems, item)
			}
		}

		in.Status = entities.InstructionStatusFailed
		in.FailureReason.SetValid(reason)
		if err := u.instructionRepo.UpdateProtocolInstruction(txCtx, in); err != nil {
			return err
		}
		return u.vaultRepo.Update(txCtx, vault)
	})
	if err != nil {
		return nil, err
	}
	for range failedItems {
		u.opts.Metrics.ObserveQueueTransition(string(entities.QueueItemStatusFailed))
	}
	return failedItems, nil
}

// failLocked restores the item's value as units, releases its reservations and
// earmarks, and fails both records. The caller holds the vault lock and persists the vault.
func (u *WithdrawalUsecase) failLocked(txCtx context.Context, vault *entities.Vault, item *entities.WithdrawalQueueItem, reason string) (bool, error) {
	switch item.Status {
	case entities.QueueItemStatusFailed:
		return false, nil
	case entities.QueueItemStatusCompleted:
		return false, fmt.Errorf("%w: queue item %s already completed", domainerrors.ErrConfirmationMismatch, item.ID)
	case entities.QueueItemStatusProcessing:
		// the payout instruction is already in the outbox; units come back only via its confirmation
		return false, fmt.Errorf("%w: queue item %s has a payout in flight", domainerrors.ErrConfirmationMismatch, item.ID)
	}
	lockCtx := u.uow.WithLock(txCtx)

	vault.ReleaseReservedIdle(item.ReservedIdle)
	item.ReservedIdle = decimal.Zero
	restored := vault.RestoreUnits(item.EstimatedAmount)

	position, err := u.positionRepo.GetByUserAndVault(lockCtx, item.UserID, vault.ID)
	switch {
	case errors.Is(err, domainerrors.ErrNotFound):
		position = &entities.EndUserPosition{
			UserID:     item.UserID,
			VaultID:    vault.ID,
			ClientID:   vault.ClientID,
			Units:      decimal.Zero,
			EntryIndex: decimal.Zero,
		}
		position.AddUnits(restored, item.CostBasis)
		err = u.positionRepo.Create(txCtx, position)
	case err == nil:
		position.AddUnits(restored, item.CostBasis)
		err = u.positionRepo.Update(txCtx, position)
	}
	if err != nil {
		return false, err
	}

	for _, leg := range item.ProtocolsToUnstake {
		outstanding := leg.Outstanding()
		if outstanding.Sign() <= 0 {
			continue
		}
		alloc, err := u.allocationRepo.GetByID(lockCtx, leg.AllocationID)
		if err != nil {
			return false, err
		}
		alloc.ReleaseUnstake(outstanding)
		if err := u.allocationRepo.Update(txCtx, alloc); err != nil {
			return false, err
		}
	}

	now := time.Now()
	item.Status = entities.QueueItemStatusFailed
	item.FailureReason.SetValid(reason)
	item.FailedAt = &now
	if err := u.withdrawalRepo.UpdateQueueItem(txCtx, item); err != nil {
		return false, err
	}

	tx, err := u.withdrawalRepo.GetTransactionByID(lockCtx, item.WithdrawalTransactionID)
	if err != nil {
		return false, err
	}
	tx.Status = entities.WithdrawalStatusFailed
	tx.ErrorCode.SetValid(domainerrors.CodeSettlementFailed)
	tx.ErrorMessage.SetValid(reason)
	tx.FailedAt = &now
	if err := u.withdrawalRepo.UpdateTransaction(txCtx, tx); err != nil {
		return false, err
	}

	entry := withUser(withRef(ledgerEntry(vault, entities.LedgerWithdrawalRestored, item.EstimatedAmount, restored), item.ID), item.UserID)
	if err := appendLedger(txCtx, u.ledgerRepo, entry, map[string]string{"reason": reason}); err != nil {
		return false, err
	}
	return true, nil
}

func (u *WithdrawalUsecase) lockItem(txCtx, lockCtx context.Context, itemID uuid.UUID) (*entities.Vault, *entities.WithdrawalQueueItem, error) {
	current, err := u.withdrawalRepo.GetQueueItemByID(txCtx, itemID)
	if errors.Is(err, domainerrors.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: unknown queue item %s", domainerrors.ErrConfirmationMismatch, itemID)
	}
	if err != nil {
		return nil, nil, err
	}
	vault, err := u.vaultRepo.GetByID(lockCtx, current.VaultID)
	if err != nil {
		return nil, nil, err
	}
	item, err := u.withdrawalRepo.GetQueueItemByID(lockCtx, itemID)
	if err != nil {
		return nil, nil, err
	}
	return vault, item, nil
}

// ListReady returns items waiting for a payout, highest priority first
func (u *WithdrawalUsecase) ListReady(ctx context.Context, limit int) ([]*entities.WithdrawalQueueItem, error) {
	return u.withdrawalRepo.ListByStatus(ctx, entities.QueueItemStatusReady, limit)
}

// ListClientsWithQueued returns clients that have items waiting for aggregation
func (u *WithdrawalUsecase) ListClientsWithQueued(ctx context.Context, limit int) ([]uuid.UUID, error) {
	return u.withdrawalRepo.ListClientsWithQueued(ctx, limit)
}

func batchLeg(item *entities.WithdrawalQueueItem, batchID uuid.UUID) *entities.ProtocolUnstake {
	for _, leg := range item.ProtocolsToUnstake {
		if leg.BatchID != nil && *leg.BatchID == batchID {
			return leg
		}
	}
	return nil
}

func markReadyIfSettled(item *entities.WithdrawalQueueItem, now time.Time) {
	if item.NeedsUnstake() {
		return
	}
	if item.Status == entities.QueueItemStatusQueued || item.Status == entities.QueueItemStatusUnstaking {
		item.Status = entities.QueueItemStatusReady
		item.ReadyAt = &now
	}
}

func sameWithdrawalOrder(existing *entities.WithdrawalTransaction, input *entities.RequestWithdrawalInput) (*entities.WithdrawalTransaction, error) {
	if existing.ClientID != input.ClientID || existing.UserID != input.UserID || existing.VaultID != input.VaultID {
		return nil, fmt.Errorf("%w: order %s belongs to another withdrawal", domainerrors.ErrAlreadyExists, input.OrderID)
	}
	return existing, nil
}
