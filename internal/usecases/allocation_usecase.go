package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"yield-vault.backend/internal/domain/entities"
	domainerrors "yield-vault.backend/internal/domain/errors"
	"yield-vault.backend/internal/domain/repositories"
	"yield-vault.backend/pkg/logger"
)

var hundred = decimal.NewFromInt(100)

// AllocationUsecase tracks how a vault's staked balance is spread over protocols
type AllocationUsecase struct {
	uow             repositories.UnitOfWork
	vaultRepo       repositories.VaultRepository
	allocationRepo  repositories.AllocationRepository
	protocolRepo    repositories.ProtocolRepository
	instructionRepo repositories.InstructionRepository
	ledgerRepo      repositories.LedgerEntryRepository
	opts            EngineOptions
}

// NewAllocationUsecase creates a new allocation usecase
func NewAllocationUsecase(
	uow repositories.UnitOfWork,
	vaultRepo repositories.VaultRepository,
	allocationRepo repositories.AllocationRepository,
	protocolRepo repositories.ProtocolRepository,
	instructionRepo repositories.InstructionRepository,
	ledgerRepo repositories.LedgerEntryRepository,
	opts EngineOptions,
) *AllocationUsecase {
	return &AllocationUsecase{
		uow:             uow,
		vaultRepo:       vaultRepo,
		allocationRepo:  allocationRepo,
		protocolRepo:    protocolRepo,
		instructionRepo: instructionRepo,
		ledgerRepo:      ledgerRepo,
		opts:            opts,
	}
}

// GetOrCreateAllocation returns the (vault, protocol) allocation, creating or reactivating it
func (u *AllocationUsecase) GetOrCreateAllocation(ctx context.Context, vaultID, protocolID uuid.UUID) (*entities.Allocation, error) {
	var alloc *entities.Allocation
	err := runInTx(ctx, u.uow, u.opts, opGetOrCreateAlloc, func(txCtx context.Context) error {
		lockCtx := u.uow.WithLock(txCtx)
		vault, err := u.vaultRepo.GetByID(lockCtx, vaultID)
		if err != nil {
			return err
		}
		protocols, err := u.eligibleProtocols(txCtx, vault, []uuid.UUID{protocolID})
		if err != nil {
			return err
		}
		alloc, err = u.allocationFor(lockCtx, vault, protocols[protocolID])
		return err
	})
	if err != nil {
		return nil, err
	}
	return alloc, nil
}

// Deploy books an executed deployment of free idle into a protocol
func (u *AllocationUsecase) Deploy(ctx context.Context, vaultID, protocolID uuid.UUID, amount decimal.Decimal) (*entities.Allocation, error) {
	amount = entities.TruncAmount(amount)
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: deploy %s", domainerrors.ErrInvalidAmount, amount)
	}

	var alloc *entities.Allocation
	err := runInTx(ctx, u.uow, u.opts, opDeploy, func(txCtx context.Context) error {
		lockCtx := u.uow.WithLock(txCtx)
		vault, err := u.vaultRepo.GetByID(lockCtx, vaultID)
		if err != nil {
			return err
		}
		protocols, err := u.eligibleProtocols(txCtx, vault, []uuid.UUID{protocolID})
		if err != nil {
			return err
		}
		alloc, err = u.allocationFor(lockCtx, vault, protocols[protocolID])
		if err != nil {
			return err
		}
		if err := vault.Stake(amount, false); err != nil {
			return err
		}
		alloc.Credit(amount, time.Now())
		if err := u.allocationRepo.Update(txCtx, alloc); err != nil {
			return err
		}
		if err := u.vaultRepo.Update(txCtx, vault); err != nil {
			return err
		}
		return appendLedger(txCtx, u.ledgerRepo, withRef(ledgerEntry(vault, entities.LedgerStaked, amount, decimal.Zero), alloc.ID), nil)
	})
	if err != nil {
		return nil, err
	}
	return alloc, nil
}

// StakeIdle splits the vault's free idle by weight and emits one deploy instruction per protocol.
// The funds stay idle, earmarked as pending stake, until the instruction is confirmed.
func (u *AllocationUsecase) StakeIdle(ctx context.Context, vaultID uuid.UUID, weights []entities.WeightedProtocol) ([]*entities.ProtocolInstruction, error) {
	if err := u.validateWeights(weights, false); err != nil {
		return nil, err
	}

	var emitted []*entities.ProtocolInstruction
	err := runInTx(ctx, u.uow, u.opts, opStakeIdle, func(txCtx context.Context) error {
		emitted = nil
		lockCtx := u.uow.WithLock(txCtx)
		vault, err := u.vaultRepo.GetByID(lockCtx, vaultID)
		if err != nil {
			return err
		}
		protocols, err := u.eligibleProtocols(txCtx, vault, protocolIDs(weights))
		if err != nil {
			return err
		}

		free := vault.FreeIdle()
		if free.Sign() <= 0 {
			return nil
		}
		for _, w := range weights {
			amount := entities.MinDecimal(entities.PercentOf(free, w.Percent), vault.FreeIdle())
			if amount.Sign() <= 0 {
				continue
			}
			alloc, err := u.allocationFor(lockCtx, vault, protocols[w.ProtocolID])
			if err != nil {
				return err
			}
			if err := vault.ReserveForStake(amount); err != nil {
				return err
			}
			alloc.PercentageAllocation = w.Percent
			if err := u.allocationRepo.Update(txCtx, alloc); err != nil {
				return err
			}
			in, err := createInstruction(txCtx, u.instructionRepo, vault, alloc, entities.DirectionStake, entities.PurposeDeploy, amount)
			if err != nil {
				return err
			}
			entry := withRef(ledgerEntry(vault, entities.LedgerStakeRequested, amount, decimal.Zero), in.ID)
			if err := appendLedger(txCtx, u.ledgerRepo, entry, map[string]string{"protocolId": w.ProtocolID.String()}); err != nil {
				return err
			}
			emitted = append(emitted, in)
		}
		return u.vaultRepo.Update(txCtx, vault)
	})
	if err != nil {
		return nil, err
	}
	observeInstructions(u.opts, emitted)
	return emitted, nil
}

// Rebalance moves live allocations towards target weights. Decreases become
// unstake instructions; increases become stake instructions funded by them.
func (u *AllocationUsecase) Rebalance(ctx context.Context, vaultID uuid.UUID, targets []entities.WeightedProtocol) ([]*entities.ProtocolInstruction, error) {
	if err := u.validateWeights(targets, true); err != nil {
		return nil, err
	}

	var emitted []*entities.ProtocolInstruction
	err := runInTx(ctx, u.uow, u.opts, opRebalance, func(txCtx context.Context) error {
		emitted = nil
		lockCtx := u.uow.WithLock(txCtx)
		vault, err := u.vaultRepo.GetByID(lockCtx, vaultID)
		if err != nil {
			return err
		}
		protocols, err := u.eligibleProtocols(txCtx, vault, protocolIDs(positiveWeights(targets)))
		if err != nil {
			return err
		}
		allocs, err := u.allocationRepo.ListByVault(lockCtx, vault.ID)
		if err != nil {
			return err
		}

		byProtocol := make(map[uuid.UUID]*entities.Allocation, len(allocs))
		total := decimal.Zero
		for _, a := range allocs {
			byProtocol[a.ProtocolID] = a
			if a.IsLive() {
				total = total.Add(a.Available())
			}
		}
		if total.Sign() <= 0 {
			return nil
		}

		desired := make(map[uuid.UUID]decimal.Decimal, len(targets))
		order := make([]uuid.UUID, 0, len(targets)+len(allocs))
		for _, t := range targets {
			desired[t.ProtocolID] = t.Percent
			order = append(order, t.ProtocolID)
		}
		for _, a := range allocs {
			if _, ok := desired[a.ProtocolID]; !ok && a.IsLive() {
				desired[a.ProtocolID] = decimal.Zero
				order = append(order, a.ProtocolID)
			}
		}

		now := time.Now()
		for _, protocolID := range order {
			pct := desired[protocolID]
			alloc := byProtocol[protocolID]
			if alloc == nil || !alloc.IsLive() {
				if pct.Sign() <= 0 {
					continue
				}
				if alloc, err = u.allocationFor(lockCtx, vault, protocols[protocolID]); err != nil {
					return err
				}
			}

			delta := entities.PercentOf(total, pct).Sub(alloc.Available())
			var in *entities.ProtocolInstruction
			switch delta.Sign() {
			case -1:
				if err := alloc.PlanUnstake(delta.Neg()); err != nil {
					return err
				}
				in, err = createInstruction(txCtx, u.instructionRepo, vault, alloc, entities.DirectionUnstake, entities.PurposeRebalance, delta.Neg())
			case 1:
				in, err = createInstruction(txCtx, u.instructionRepo, vault, alloc, entities.DirectionStake, entities.PurposeRebalance, delta)
			}
			if err != nil {
				return err
			}
			if in != nil {
				alloc.Status = entities.AllocationStatusRebalancing
				emitted = append(emitted, in)
			}
			alloc.PercentageAllocation = pct
			if alloc.LastRebalanceAt == nil {
				alloc.LastRebalanceAt = &now
			}
			if err := u.allocationRepo.Update(txCtx, alloc); err != nil {
				return err
			}
		}

		entry := ledgerEntry(vault, entities.LedgerRebalanceStarted, total, decimal.Zero)
		return appendLedger(txCtx, u.ledgerRepo, entry, map[string]string{"instructions": fmt.Sprint(len(emitted))})
	})
	if err != nil {
		return nil, err
	}
	observeInstructions(u.opts, emitted)
	return emitted, nil
}

// ConfirmInstruction applies the executed amount of a deploy or rebalance instruction.
// A confirmation is final: any unexecuted remainder is released.
func (u *AllocationUsecase) ConfirmInstruction(ctx context.Context, instructionID uuid.UUID, confirmed decimal.Decimal) (*entities.ProtocolInstruction, error) {
	confirmed = entities.TruncAmount(confirmed)
	if confirmed.IsNegative() {
		return nil, fmt.Errorf("%w: confirmed %s", domainerrors.ErrInvalidAmount, confirmed)
	}

	var in *entities.ProtocolInstruction
	err := runInTx(ctx, u.uow, u.opts, opConfirmInstruction, func(txCtx context.Context) error {
		lockCtx := u.uow.WithLock(txCtx)
		vault, locked, err := u.lockInstruction(txCtx, lockCtx, instructionID)
		if err != nil {
			return err
		}
		in = locked
		if in.Status.IsTerminal() || confirmed.GreaterThan(in.Outstanding()) {
			return fmt.Errorf("%w: instruction %s is %s, outstanding %s, confirmed %s",
				domainerrors.ErrConfirmationMismatch, in.ID, in.Status, in.Outstanding(), confirmed)
		}
		alloc, err := u.allocationRepo.GetByID(lockCtx, in.AllocationID)
		if err != nil {
			return err
		}

		now := time.Now()
		if confirmed.IsPositive() {
			switch in.Direction {
			case entities.DirectionStake:
				fromPending := vault.PendingStake.GreaterThanOrEqual(confirmed)
				if err := vault.Stake(confirmed, fromPending); err != nil {
					return err
				}
				alloc.Credit(confirmed, now)
				if err := appendLedger(txCtx, u.ledgerRepo, withRef(ledgerEntry(vault, entities.LedgerStaked, confirmed, decimal.Zero), in.ID), nil); err != nil {
					return err
				}
			case entities.DirectionUnstake:
				if err := alloc.ConfirmUnstake(confirmed, confirmed); err != nil {
					return err
				}
				if err := vault.Unstake(confirmed); err != nil {
					return err
				}
				// unstaked funds wait as pending stake for the paired stake legs
				if err := vault.ReserveForStake(confirmed); err != nil {
					return err
				}
				if err := appendLedger(txCtx, u.ledgerRepo, withRef(ledgerEntry(vault, entities.LedgerUnstaked, confirmed, decimal.Zero), in.ID), nil); err != nil {
					return err
				}
			}
		}
		if in.Direction == entities.DirectionUnstake {
			alloc.ReleaseUnstake(in.Outstanding().Sub(confirmed))
		}

		in.ConfirmedAmount = in.ConfirmedAmount.Add(confirmed)
		in.Status = entities.InstructionStatusConfirmed
		in.ConfirmedAt = &now
		if err := u.instructionRepo.UpdateProtocolInstruction(txCtx, in); err != nil {
			return err
		}
		return u.settleLocked(txCtx, vault, alloc, in)
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrConfirmationMismatch) {
			u.opts.Metrics.ObserveMismatch("instruction")
			logger.Warn(ctx, "Ignoring instruction confirmation", zap.String("instructionId", instructionID.String()), zap.Error(err))
		}
		return nil, err
	}
	return in, nil
}

// FailInstruction records a permanent execution failure and releases its earmarks
func (u *AllocationUsecase) FailInstruction(ctx context.Context, instructionID uuid.UUID, reason string) (*entities.ProtocolInstruction, error) {
	var in *entities.ProtocolInstruction
	err := runInTx(ctx, u.uow, u.opts, opFailInstruction, func(txCtx context.Context) error {
		lockCtx := u.uow.WithLock(txCtx)
		vault, locked, err := u.lockInstruction(txCtx, lockCtx, instructionID)
		if err != nil {
			return err
		}
		in = locked
		switch in.Status {
		case entities.InstructionStatusFailed:
			return nil
		case entities.InstructionStatusConfirmed:
			return fmt.Errorf("%w: instruction %s already confirmed", domainerrors.ErrConfirmationMismatch, in.ID)
		}
		alloc, err := u.allocationRepo.GetByID(lockCtx, in.AllocationID)
		if err != nil {
			return err
		}
		if in.Direction == entities.DirectionUnstake {
			alloc.ReleaseUnstake(in.Outstanding())
		}

		in.Status = entities.InstructionStatusFailed
		in.FailureReason.SetValid(reason)
		if err := u.instructionRepo.UpdateProtocolInstruction(txCtx, in); err != nil {
			return err
		}
		return u.settleLocked(txCtx, vault, alloc, in)
	})
	if err != nil {
		return nil, err
	}
	return in, nil
}

func (u *AllocationUsecase) lockInstruction(txCtx, lockCtx context.Context, id uuid.UUID) (*entities.Vault, *entities.ProtocolInstruction, error) {
	in, err := u.instructionRepo.GetProtocolInstruction(txCtx, id)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: unknown instruction %s", domainerrors.ErrConfirmationMismatch, id)
		}
		return nil, nil, err
	}
	if in.Purpose == entities.PurposeWithdrawal {
		return nil, nil, fmt.Errorf("%w: instruction %s is a withdrawal batch", domainerrors.ErrInvalidInput, id)
	}
	vault, err := u.vaultRepo.GetByID(lockCtx, in.VaultID)
	if err != nil {
		return nil, nil, err
	}
	in, err = u.instructionRepo.GetProtocolInstruction(lockCtx, id)
	if err != nil {
		return nil, nil, err
	}
	return vault, in, nil
}

// settleLocked releases pending stake no open instruction still needs and
// closes the allocation's rebalance once its last instruction settled
func (u *AllocationUsecase) settleLocked(ctx context.Context, vault *entities.Vault, alloc *entities.Allocation, in *entities.ProtocolInstruction) error {
	open, err := u.instructionRepo.ListOpenByVault(ctx, vault.ID)
	if err != nil {
		return err
	}
	needed := decimal.Zero
	for _, o := range open {
		if o.Direction == entities.DirectionStake {
			needed = needed.Add(o.Outstanding())
		}
	}
	if excess := vault.PendingStake.Sub(needed); excess.IsPositive() {
		vault.ReleasePendingStake(excess)
		entry := withRef(ledgerEntry(vault, entities.LedgerStakeReleased, excess, decimal.Zero), in.ID)
		if err := appendLedger(ctx, u.ledgerRepo, entry, nil); err != nil {
			return err
		}
	}

	if in.Purpose == entities.PurposeRebalance && alloc.Status == entities.AllocationStatusRebalancing {
		n, err := u.instructionRepo.CountOpenByAllocation(ctx, alloc.ID, entities.PurposeRebalance)
		if err != nil {
			return err
		}
		if n == 0 {
			alloc.MarkActive(time.Now())
		}
	}
	if err := u.allocationRepo.Update(ctx, alloc); err != nil {
		return err
	}
	return u.vaultRepo.Update(ctx, vault)
}

// RecordYield takes a harvest report for one allocation and forwards its yield to the vault index.
// It is the only path through which external yield reaches the index. The reported balance
// must equal the tracked balance plus the delta; a drifted report changes nothing.
func (u *AllocationUsecase) RecordYield(ctx context.Context, allocationID uuid.UUID, newBalance, yieldDelta, apy decimal.Decimal) (*entities.YieldResult, error) {
	yieldDelta = entities.TruncAmount(yieldDelta)
	newBalance = entities.TruncAmount(newBalance)
	if yieldDelta.IsNegative() {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrInvalidYieldAmount, yieldDelta)
	}
	if newBalance.IsNegative() {
		return nil, fmt.Errorf("%w: balance %s", domainerrors.ErrInvalidAmount, newBalance)
	}

	var res *entities.YieldResult
	err := runInTx(ctx, u.uow, u.opts, opRecordYield, func(txCtx context.Context) error {
		lockCtx := u.uow.WithLock(txCtx)
		alloc, err := u.allocationRepo.GetByID(txCtx, allocationID)
		if err != nil {
			return err
		}
		vault, err := u.vaultRepo.GetByID(lockCtx, alloc.VaultID)
		if err != nil {
			return err
		}
		if alloc, err = u.allocationRepo.GetByID(lockCtx, allocationID); err != nil {
			return err
		}

		if expected := alloc.Balance.Add(yieldDelta); !expected.Equal(newBalance) {
			return fmt.Errorf("%w: allocation %s reported balance %s, ledger expects %s",
				domainerrors.ErrConfirmationMismatch, alloc.ID, newBalance, expected)
		}
		alloc.Balance = newBalance
		alloc.YieldEarned = alloc.YieldEarned.Add(yieldDelta)
		alloc.APY = apy
		if err := u.allocationRepo.Update(txCtx, alloc); err != nil {
			return err
		}
		if yieldDelta.IsPositive() {
			entry := withRef(ledgerEntry(vault, entities.LedgerAllocationYield, yieldDelta, decimal.Zero), alloc.ID)
			meta := map[string]string{"balance": newBalance.String(), "apy": apy.String()}
			if err := appendLedger(txCtx, u.ledgerRepo, entry, meta); err != nil {
				return err
			}
		}
		res, err = applyYieldLocked(txCtx, u.vaultRepo, u.ledgerRepo, vault, yieldDelta, &alloc.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrConfirmationMismatch) {
			u.opts.Metrics.ObserveMismatch("yield_report")
			logger.Warn(ctx, "Rejecting drifted yield report",
				zap.String("allocationId", allocationID.String()),
				zap.String("reported", newBalance.String()),
				zap.String("yieldDelta", yieldDelta.String()),
				zap.Error(err),
			)
		}
		return nil, err
	}
	if yieldDelta.IsPositive() {
		u.opts.Metrics.ObserveYield(res.Reserved)
	}
	return res, nil
}

// MarkWithdrawn retires an allocation that holds nothing and owes nothing
func (u *AllocationUsecase) MarkWithdrawn(ctx context.Context, allocationID uuid.UUID) (*entities.Allocation, error) {
	var alloc *entities.Allocation
	err := runInTx(ctx, u.uow, u.opts, opMarkWithdrawn, func(txCtx context.Context) error {
		lockCtx := u.uow.WithLock(txCtx)
		current, err := u.allocationRepo.GetByID(txCtx, allocationID)
		if err != nil {
			return err
		}
		vault, err := u.vaultRepo.GetByID(lockCtx, current.VaultID)
		if err != nil {
			return err
		}
		if alloc, err = u.allocationRepo.GetByID(lockCtx, allocationID); err != nil {
			return err
		}
		if err := alloc.MarkWithdrawn(time.Now()); err != nil {
			return err
		}
		if err := u.allocationRepo.Update(txCtx, alloc); err != nil {
			return err
		}
		return appendLedger(txCtx, u.ledgerRepo, withRef(ledgerEntry(vault, entities.LedgerAllocationWithdrawn, decimal.Zero, decimal.Zero), alloc.ID), nil)
	})
	if err != nil {
		return nil, err
	}
	return alloc, nil
}

// SweepWeights returns the weights a threshold sweep should stake with: the
// vault's current live split when it is still valid, otherwise an equal split
// over eligible active protocols on the vault's chain.
func (u *AllocationUsecase) SweepWeights(ctx context.Context, vault *entities.Vault) ([]entities.WeightedProtocol, error) {
	allocs, err := u.allocationRepo.ListByVault(ctx, vault.ID)
	if err != nil {
		return nil, err
	}
	var current []entities.WeightedProtocol
	for _, a := range allocs {
		if a.IsLive() && a.PercentageAllocation.IsPositive() {
			current = append(current, entities.WeightedProtocol{ProtocolID: a.ProtocolID, Percent: a.PercentageAllocation})
		}
	}
	if len(current) > 0 && u.validateWeights(current, false) == nil {
		if _, err := u.eligibleProtocols(ctx, vault, protocolIDs(current)); err == nil {
			return current, nil
		}
	}

	active, err := u.protocolRepo.ListActiveByChain(ctx, vault.Chain)
	if err != nil {
		return nil, err
	}
	eligible := make([]*entities.Protocol, 0, len(active))
	for _, p := range active {
		if p.RiskTier.Rank() <= u.opts.MaxRiskTier.Rank() {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	share := hundred.DivRound(decimal.NewFromInt(int64(len(eligible))), entities.AmountPrecision+9).Truncate(entities.AmountPrecision)
	weights := make([]entities.WeightedProtocol, 0, len(eligible))
	assigned := decimal.Zero
	for i, p := range eligible {
		pct := share
		if i == len(eligible)-1 {
			pct = hundred.Sub(assigned)
		}
		assigned = assigned.Add(pct)
		weights = append(weights, entities.WeightedProtocol{ProtocolID: p.ID, Percent: pct})
	}
	return weights, nil
}

// validateWeights requires non-negative, unique weights summing to 100 within tolerance
func (u *AllocationUsecase) validateWeights(weights []entities.WeightedProtocol, allowZero bool) error {
	if len(weights) == 0 {
		return fmt.Errorf("%w: no weights", domainerrors.ErrInvalidAllocationWeights)
	}
	seen := make(map[uuid.UUID]struct{}, len(weights))
	sum := decimal.Zero
	for _, w := range weights {
		if w.ProtocolID == uuid.Nil {
			return fmt.Errorf("%w: missing protocol id", domainerrors.ErrInvalidAllocationWeights)
		}
		if _, dup := seen[w.ProtocolID]; dup {
			return fmt.Errorf("%w: protocol %s listed twice", domainerrors.ErrInvalidAllocationWeights, w.ProtocolID)
		}
		seen[w.ProtocolID] = struct{}{}
		if w.Percent.IsNegative() || (!allowZero && w.Percent.IsZero()) {
			return fmt.Errorf("%w: protocol %s weight %s", domainerrors.ErrInvalidAllocationWeights, w.ProtocolID, w.Percent)
		}
		sum = sum.Add(w.Percent)
	}
	if sum.Sub(hundred).Abs().GreaterThan(u.opts.WeightTolerance) {
		return fmt.Errorf("%w: weights sum to %s", domainerrors.ErrInvalidAllocationWeights, sum)
	}
	return nil
}

// eligibleProtocols loads the protocols and checks they may receive new funds from the vault
func (u *AllocationUsecase) eligibleProtocols(ctx context.Context, vault *entities.Vault, ids []uuid.UUID) (map[uuid.UUID]*entities.Protocol, error) {
	found, err := u.protocolRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]*entities.Protocol, len(found))
	for _, p := range found {
		out[p.ID] = p
	}
	for _, id := range ids {
		p, ok := out[id]
		switch {
		case !ok:
			return nil, fmt.Errorf("%w: protocol %s", domainerrors.ErrNotFound, id)
		case !p.IsActive:
			return nil, fmt.Errorf("%w: %s", domainerrors.ErrProtocolInactive, p.Name)
		case p.Chain != vault.Chain:
			return nil, fmt.Errorf("%w: protocol %s is on %s, vault on %s", domainerrors.ErrValidation, p.Name, p.Chain, vault.Chain)
		case p.RiskTier.Rank() > u.opts.MaxRiskTier.Rank():
			return nil, fmt.Errorf("%w: protocol %s risk tier %s exceeds %s", domainerrors.ErrValidation, p.Name, p.RiskTier, u.opts.MaxRiskTier)
		}
	}
	return out, nil
}

// allocationFor upserts the (vault, protocol) row; ctx decides whether the re-read locks it
func (u *AllocationUsecase) allocationFor(ctx context.Context, vault *entities.Vault, protocol *entities.Protocol) (*entities.Allocation, error) {
	alloc, err := u.allocationRepo.GetOrCreate(ctx, &entities.Allocation{
		ClientID:     vault.ClientID,
		VaultID:      vault.ID,
		ProtocolID:   protocol.ID,
		Category:     protocol.Category,
		Chain:        vault.Chain,
		TokenAddress: vault.TokenAddress,
		Status:       entities.AllocationStatusActive,
	})
	if err != nil {
		return nil, err
	}
	if alloc.Status == entities.AllocationStatusWithdrawn {
		alloc.Status = entities.AllocationStatusActive
		alloc.WithdrawnAt = nil
		if err := u.allocationRepo.Update(ctx, alloc); err != nil {
			return nil, err
		}
	}
	return alloc, nil
}

func createInstruction(
	ctx context.Context,
	repo repositories.InstructionRepository,
	vault *entities.Vault,
	alloc *entities.Allocation,
	direction entities.InstructionDirection,
	purpose entities.InstructionPurpose,
	amount decimal.Decimal,
) (*entities.ProtocolInstruction, error) {
	in := &entities.ProtocolInstruction{
		ClientID:        vault.ClientID,
		VaultID:         vault.ID,
		AllocationID:    alloc.ID,
		ProtocolID:      alloc.ProtocolID,
		Chain:           alloc.Chain,
		TokenAddress:    alloc.TokenAddress,
		Amount:          amount,
		ConfirmedAmount: decimal.Zero,
		Direction:       direction,
		Purpose:         purpose,
		Status:          entities.InstructionStatusPending,
	}
	if err := repo.CreateProtocolInstruction(ctx, in); err != nil {
		return nil, fmt.Errorf("failed to emit %s instruction: %w", direction, err)
	}
	return in, nil
}

func observeInstructions(opts EngineOptions, ins []*entities.ProtocolInstruction) {
	for _, in := range ins {
		opts.Metrics.ObserveInstruction(string(in.Direction), string(in.Purpose))
	}
}

func positiveWeights(weights []entities.WeightedProtocol) []entities.WeightedProtocol {
	out := make([]entities.WeightedProtocol, 0, len(weights))
	for _, w := range weights {
		if w.Percent.IsPositive() {
			out = append(out, w)
		}
	}
	return out
}

func protocolIDs(weights []entities.WeightedProtocol) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(weights))
	for _, w := range weights {
		ids = append(ids, w.ProtocolID)
	}
	return ids
}
