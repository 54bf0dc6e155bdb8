package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"yield-vault.backend/internal/domain/entities"
	"yield-vault.backend/internal/infrastructure/models"
)

// AllocationRepository implements AllocationRepository
type AllocationRepository struct {
	db *gorm.DB
}

// NewAllocationRepository creates a new allocation ledger repository
func NewAllocationRepository(db *gorm.DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

func (r *AllocationRepository) GetOrCreate(ctx context.Context, a *entities.Allocation) (*entities.Allocation, error) {
	if a.ID == uuid.Nil {
		a.ID = newID()
	}
	if a.Status == "" {
		a.Status = entities.AllocationStatusActive
	}
	err := GetDB(ctx, r.db).WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(r.toModel(a)).Error
	if err != nil {
		return nil, err
	}
	return r.GetByVaultAndProtocol(ctx, a.VaultID, a.ProtocolID)
}

func (r *AllocationRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Allocation, error) {
	var m models.Allocation
	if err := lockable(ctx, r.db).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return r.toEntity(&m), nil
}

func (r *AllocationRepository) GetByVaultAndProtocol(ctx context.Context, vaultID, protocolID uuid.UUID) (*entities.Allocation, error) {
	var m models.Allocation
	if err := lockable(ctx, r.db).
		Where("vault_id = ? AND protocol_id = ?", vaultID, protocolID).
		First(&m).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return r.toEntity(&m), nil
}

func (r *AllocationRepository) ListByVault(ctx context.Context, vaultID uuid.UUID) ([]*entities.Allocation, error) {
	var ms []models.Allocation
	if err := lockable(ctx, r.db).
		Where("vault_id = ?", vaultID).
		Order("id ASC").
		Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]*entities.Allocation, 0, len(ms))
	for i := range ms {
		out = append(out, r.toEntity(&ms[i]))
	}
	return out, nil
}

func (r *AllocationRepository) Update(ctx context.Context, a *entities.Allocation) error {
	a.UpdatedAt = time.Now()
	res := GetDB(ctx, r.db).WithContext(ctx).Model(&models.Allocation{}).
		Where("id = ?", a.ID).
		Updates(map[string]interface{}{
			"balance":               a.Balance,
			"pending_unstake":       a.PendingUnstake,
			"percentage_allocation": a.PercentageAllocation,
			"apy":                   a.APY,
			"yield_earned":          a.YieldEarned,
			"status":                string(a.Status),
			"deployed_at":           a.DeployedAt,
			"last_rebalance_at":     a.LastRebalanceAt,
			"withdrawn_at":          a.WithdrawnAt,
			"updated_at":            a.UpdatedAt,
		})
	return rowsAffectedOrNotFound(res)
}

func (r *AllocationRepository) toModel(a *entities.Allocation) *models.Allocation {
	return &models.Allocation{
		ID:                   a.ID,
		ClientID:             a.ClientID,
		VaultID:              a.VaultID,
		ProtocolID:           a.ProtocolID,
		Category:             string(a.Category),
		Chain:                a.Chain,
		TokenAddress:         a.TokenAddress,
		Balance:              a.Balance,
		PendingUnstake:       a.PendingUnstake,
		PercentageAllocation: a.PercentageAllocation,
		APY:                  a.APY,
		YieldEarned:          a.YieldEarned,
		Status:               string(a.Status),
		DeployedAt:           a.DeployedAt,
		LastRebalanceAt:      a.LastRebalanceAt,
		WithdrawnAt:          a.WithdrawnAt,
	}
}

func (r *AllocationRepository) toEntity(m *models.Allocation) *entities.Allocation {
	return &entities.Allocation{
		ID:                   m.ID,
		ClientID:             m.ClientID,
		VaultID:              m.VaultID,
		ProtocolID:           m.ProtocolID,
		Category:             entities.ProtocolCategory(m.Category),
		Chain:                m.Chain,
		TokenAddress:         m.TokenAddress,
		Balance:              m.Balance,
		PendingUnstake:       m.PendingUnstake,
		PercentageAllocation: m.PercentageAllocation,
		APY:                  m.APY,
		YieldEarned:          m.YieldEarned,
		Status:               entities.AllocationStatus(m.Status),
		DeployedAt:           m.DeployedAt,
		LastRebalanceAt:      m.LastRebalanceAt,
		WithdrawnAt:          m.WithdrawnAt,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}
