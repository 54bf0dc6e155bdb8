package usecases

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"yield-vault.backend/internal/domain/entities"
	domainerrors "yield-vault.backend/internal/domain/errors"
	"yield-vault.backend/internal/domain/repositories"
	"yield-vault.backend/pkg/utils"
)

const shareScale int32 = 4

// VaultQueryUsecase serves read-only views. It never takes row locks.
type VaultQueryUsecase struct {
	vaultRepo      repositories.VaultRepository
	positionRepo   repositories.PositionRepository
	allocationRepo repositories.AllocationRepository
	protocolRepo   repositories.ProtocolRepository
	withdrawalRepo repositories.WithdrawalRepository
	depositRepo    repositories.DepositRepository
	ledgerRepo     repositories.LedgerEntryRepository
}

// NewVaultQueryUsecase creates a new vault query usecase
func NewVaultQueryUsecase(
	vaultRepo repositories.VaultRepository,
	positionRepo repositories.PositionRepository,
	allocationRepo repositories.AllocationRepository,
	protocolRepo repositories.ProtocolRepository,
	withdrawalRepo repositories.WithdrawalRepository,
	depositRepo repositories.DepositRepository,
	ledgerRepo repositories.LedgerEntryRepository,
) *VaultQueryUsecase {
	return &VaultQueryUsecase{
		vaultRepo:      vaultRepo,
		positionRepo:   positionRepo,
		allocationRepo: allocationRepo,
		protocolRepo:   protocolRepo,
		withdrawalRepo: withdrawalRepo,
		depositRepo:    depositRepo,
		ledgerRepo:     ledgerRepo,
	}
}

func (u *VaultQueryUsecase) GetVaultSummary(ctx context.Context, vaultID uuid.UUID) (*entities.VaultSummary, error) {
	vault, err := u.vaultRepo.GetByID(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	return vault.Summary(), nil
}

func (u *VaultQueryUsecase) ListVaults(ctx context.Context, clientID uuid.UUID) ([]*entities.VaultSummary, error) {
	vaults, err := u.vaultRepo.ListByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	summaries := make([]*entities.VaultSummary, 0, len(vaults))
	for _, v := range vaults {
		summaries = append(summaries, v.Summary())
	}
	return summaries, nil
}

// GetPositionValue values a user's units at the vault's current index
func (u *VaultQueryUsecase) GetPositionValue(ctx context.Context, userID, vaultID uuid.UUID) (*entities.PositionValue, error) {
	vault, err := u.vaultRepo.GetByID(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	position, err := u.positionRepo.GetByUserAndVault(ctx, userID, vaultID)
	if errors.Is(err, domainerrors.ErrNotFound) {
		return (&entities.EndUserPosition{
			UserID:     userID,
			VaultID:    vaultID,
			ClientID:   vault.ClientID,
			Units:      decimal.Zero,
			EntryIndex: decimal.Zero,
		}).Valuate(vault.CurrentIndex), nil
	}
	if err != nil {
		return nil, err
	}
	return position.Valuate(vault.CurrentIndex), nil
}

// GetAllocationBreakdown reports live allocations with their share of the deployed balance
func (u *VaultQueryUsecase) GetAllocationBreakdown(ctx context.Context, vaultID uuid.UUID) (*entities.AllocationBreakdown, error) {
	if _, err := u.vaultRepo.GetByID(ctx, vaultID); err != nil {
		return nil, err
	}
	allocs, err := u.allocationRepo.ListByVault(ctx, vaultID)
	if err != nil {
		return nil, err
	}

	breakdown := &entities.AllocationBreakdown{
		VaultID:     vaultID,
		Total:       decimal.Zero,
		ByCategory:  make(map[entities.ProtocolCategory]decimal.Decimal),
		ByProtocol:  []*entities.AllocationShare{},
		Allocations: []*entities.Allocation{},
	}
	live := make([]*entities.Allocation, 0, len(allocs))
	for _, a := range allocs {
		if !a.IsLive() {
			continue
		}
		live = append(live, a)
		breakdown.Total = breakdown.Total.Add(a.Balance)
	}
	if len(live) == 0 {
		return breakdown, nil
	}

	ids := make([]uuid.UUID, 0, len(live))
	for _, a := range live {
		ids = append(ids, a.ProtocolID)
	}
	protocols, err := u.protocolRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	categories := make(map[uuid.UUID]entities.ProtocolCategory, len(protocols))
	for _, p := range protocols {
		categories[p.ID] = p.Category
	}

	for _, a := range live {
		category := categories[a.ProtocolID]
		breakdown.ByCategory[category] = breakdown.ByCategory[category].Add(a.Balance)
		share := decimal.Zero
		if breakdown.Total.Sign() > 0 {
			share = a.Balance.Mul(hundred).DivRound(breakdown.Total, shareScale)
		}
		breakdown.ByProtocol = append(breakdown.ByProtocol, &entities.AllocationShare{
			ProtocolID: a.ProtocolID,
			Category:   category,
			Balance:    a.Balance,
			Share:      share,
			APY:        a.APY,
			Status:     a.Status,
		})
		breakdown.Allocations = append(breakdown.Allocations, a)
	}
	return breakdown, nil
}

// GetWithdrawalStatus looks a withdrawal up by the client's order id
func (u *VaultQueryUsecase) GetWithdrawalStatus(ctx context.Context, orderID string) (*entities.WithdrawalStatusView, error) {
	tx, err := u.withdrawalRepo.GetTransactionByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	view := &entities.WithdrawalStatusView{Transaction: tx}
	item, err := u.withdrawalRepo.GetQueueItemByTransactionID(ctx, tx.ID)
	switch {
	case err == nil:
		view.QueueItem = item
	case !errors.Is(err, domainerrors.ErrNotFound):
		return nil, err
	}
	return view, nil
}

func (u *VaultQueryUsecase) GetDeposit(ctx context.Context, orderID string) (*entities.Deposit, error) {
	return u.depositRepo.GetByOrderID(ctx, orderID)
}

// ListLedger pages through a vault's audit trail, newest first
func (u *VaultQueryUsecase) ListLedger(ctx context.Context, vaultID uuid.UUID, page, limit int) ([]*entities.LedgerEntry, utils.PaginationMeta, error) {
	params := utils.GetPaginationParams(page, limit)
	entries, total, err := u.ledgerRepo.ListByVault(ctx, vaultID, params)
	if err != nil {
		return nil, utils.PaginationMeta{}, err
	}
	return entries, utils.CalculateMeta(total, params.Page, params.Limit), nil
}
