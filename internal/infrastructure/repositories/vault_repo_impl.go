package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"yield-vault.backend/internal/domain/entities"
	"yield-vault.backend/internal/infrastructure/models"
)

// VaultRepository implements VaultRepository
type VaultRepository struct {
	db *gorm.DB
}

// NewVaultRepository creates a new vault repository
func NewVaultRepository(db *gorm.DB) *VaultRepository {
	return &VaultRepository{db: db}
}

func (r *VaultRepository) Create(ctx context.Context, vault *entities.Vault) error {
	if vault.ID == uuid.Nil {
		vault.ID = newID()
	}
	m := r.toModel(vault)
	if err := GetDB(ctx, r.db).WithContext(ctx).Create(m).Error; err != nil {
		return mapDuplicate(err)
	}
	vault.CreatedAt, vault.UpdatedAt = m.CreatedAt, m.UpdatedAt
	return nil
}

func (r *VaultRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Vault, error) {
	var m models.Vault
	if err := lockable(ctx, r.db).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return r.toEntity(&m), nil
}

func (r *VaultRepository) GetByScope(ctx context.Context, clientID uuid.UUID, chain, tokenAddress, environment string) (*entities.Vault, error) {
	var m models.Vault
	err := lockable(ctx, r.db).
		Where("client_id = ? AND chain = ? AND token_address = ? AND environment = ?", clientID, chain, tokenAddress, environment).
		First(&m).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return r.toEntity(&m), nil
}

func (r *VaultRepository) GetOrCreate(ctx context.Context, vault *entities.Vault) (*entities.Vault, error) {
	if vault.ID == uuid.Nil {
		vault.ID = newID()
	}
	m := r.toModel(vault)
	err := GetDB(ctx, r.db).WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(m).Error
	if err != nil {
		return nil, err
	}
	return r.GetByScope(ctx, vault.ClientID, vault.Chain, vault.TokenAddress, vault.Environment)
}

func (r *VaultRepository) Update(ctx context.Context, vault *entities.Vault) error {
	vault.UpdatedAt = time.Now()
	res := GetDB(ctx, r.db).WithContext(ctx).Model(&models.Vault{}).
		Where("id = ?", vault.ID).
		Updates(map[string]interface{}{
			"current_index":        vault.CurrentIndex,
			"total_units":          vault.TotalUnits,
			"idle_balance":         vault.IdleBalance,
			"staked_balance":       vault.StakedBalance,
			"reserved_idle":        vault.ReservedIdle,
			"pending_stake":        vault.PendingStake,
			"pending_withdrawals":  vault.PendingWithdrawals,
			"reserve_balance":      vault.ReserveBalance,
			"min_stake_threshold":  vault.MinStakeThreshold,
			"custodial_wallet_ref": vault.CustodialWalletRef,
			"updated_at":           vault.UpdatedAt,
		})
	return rowsAffectedOrNotFound(res)
}

func (r *VaultRepository) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*entities.Vault, error) {
	var ms []models.Vault
	if err := GetDB(ctx, r.db).WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("created_at ASC").
		Find(&ms).Error; err != nil {
		return nil, err
	}
	return r.toEntities(ms), nil
}

func (r *VaultRepository) ListWithIdle(ctx context.Context, limit int) ([]*entities.Vault, error) {
	q := GetDB(ctx, r.db).WithContext(ctx).
		Where("idle_balance <> ?", decimal.Zero.String()).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var ms []models.Vault
	if err := q.Find(&ms).Error; err != nil {
		return nil, err
	}
	return r.toEntities(ms), nil
}

func (r *VaultRepository) toEntities(ms []models.Vault) []*entities.Vault {
	vaults := make([]*entities.Vault, 0, len(ms))
	for i := range ms {
		vaults = append(vaults, r.toEntity(&ms[i]))
	}
	return vaults
}

func (r *VaultRepository) toModel(v *entities.Vault) *models.Vault {
	return &models.Vault{
		ID:                 v.ID,
		ClientID:           v.ClientID,
		Chain:              v.Chain,
		TokenAddress:       v.TokenAddress,
		Environment:        v.Environment,
		TokenSymbol:        v.TokenSymbol,
		CurrentIndex:       v.CurrentIndex,
		TotalUnits:         v.TotalUnits,
		IdleBalance:        v.IdleBalance,
		StakedBalance:      v.StakedBalance,
		ReservedIdle:       v.ReservedIdle,
		PendingStake:       v.PendingStake,
		PendingWithdrawals: v.PendingWithdrawals,
		ReserveBalance:     v.ReserveBalance,
		MinStakeThreshold:  v.MinStakeThreshold,
		CustodialWalletRef: v.CustodialWalletRef,
		CreatedAt:          v.CreatedAt,
		UpdatedAt:          v.UpdatedAt,
	}
}

func (r *VaultRepository) toEntity(m *models.Vault) *entities.Vault {
	return &entities.Vault{
		ID:                 m.ID,
		ClientID:           m.ClientID,
		Chain:              m.Chain,
		TokenAddress:       m.TokenAddress,
		TokenSymbol:        m.TokenSymbol,
		Environment:        m.Environment,
		CurrentIndex:       m.CurrentIndex,
		TotalUnits:         m.TotalUnits,
		IdleBalance:        m.IdleBalance,
		StakedBalance:      m.StakedBalance,
		ReservedIdle:       m.ReservedIdle,
		PendingStake:       m.PendingStake,
		PendingWithdrawals: m.PendingWithdrawals,
		ReserveBalance:     m.ReserveBalance,
		MinStakeThreshold:  m.MinStakeThreshold,
		CustodialWalletRef: m.CustodialWalletRef,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}
