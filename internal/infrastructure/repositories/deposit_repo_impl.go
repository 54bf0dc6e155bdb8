package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"yield-vault.backend/internal/domain/entities"
	"yield-vault.backend/internal/infrastructure/models"
)

// DepositRepository implements DepositRepository
type DepositRepository struct {
	db *gorm.DB
}

// NewDepositRepository creates a new deposit repository
func NewDepositRepository(db *gorm.DB) *DepositRepository {
	return &DepositRepository{db: db}
}

func (r *DepositRepository) Create(ctx context.Context, dep *entities.Deposit) error {
	if dep.ID == uuid.Nil {
		dep.ID = newID()
	}
	m := &models.Deposit{
		ID:                dep.ID,
		OrderID:           dep.OrderID,
		ClientID:          dep.ClientID,
		UserID:            dep.UserID,
		VaultID:           dep.VaultID,
		Amount:            dep.Amount,
		ConfirmedAmount:   dep.ConfirmedAmount,
		UnitsMinted:       dep.UnitsMinted,
		IndexAtCompletion: dep.IndexAtCompletion,
		Status:            string(dep.Status),
		FailureReason:     nullToPtr(dep.FailureReason),
		CompletedAt:       dep.CompletedAt,
		FailedAt:          dep.FailedAt,
	}
	if err := GetDB(ctx, r.db).WithContext(ctx).Create(m).Error; err != nil {
		return mapDuplicate(err)
	}
	dep.CreatedAt, dep.UpdatedAt = m.CreatedAt, m.UpdatedAt
	return nil
}

func (r *DepositRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Deposit, error) {
	var m models.Deposit
	if err := lockable(ctx, r.db).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return r.toEntity(&m), nil
}

func (r *DepositRepository) GetByOrderID(ctx context.Context, orderID string) (*entities.Deposit, error) {
	var m models.Deposit
	if err := lockable(ctx, r.db).Where("order_id = ?", orderID).First(&m).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return r.toEntity(&m), nil
}

func (r *DepositRepository) Update(ctx context.Context, dep *entities.Deposit) error {
	dep.UpdatedAt = time.Now()
	res := GetDB(ctx, r.db).WithContext(ctx).Model(&models.Deposit{}).
		Where("id = ?", dep.ID).
		Updates(map[string]interface{}{
			"confirmed_amount":    dep.ConfirmedAmount,
			"units_minted":        dep.UnitsMinted,
			"index_at_completion": dep.IndexAtCompletion,
			"status":              string(dep.Status),
			"failure_reason":      nullToPtr(dep.FailureReason),
			"completed_at":        dep.CompletedAt,
			"failed_at":           dep.FailedAt,
			"updated_at":          dep.UpdatedAt,
		})
	return rowsAffectedOrNotFound(res)
}

func (r *DepositRepository) toEntity(m *models.Deposit) *entities.Deposit {
	return &entities.Deposit{
		ID:                m.ID,
		OrderID:           m.OrderID,
		ClientID:          m.ClientID,
		UserID:            m.UserID,
		VaultID:           m.VaultID,
		Amount:            m.Amount,
		ConfirmedAmount:   m.ConfirmedAmount,
		UnitsMinted:       m.UnitsMinted,
		IndexAtCompletion: m.IndexAtCompletion,
		Status:            entities.DepositStatus(m.Status),
		FailureReason:     ptrToNull(m.FailureReason),
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
		CompletedAt:       m.CompletedAt,
		FailedAt:          m.FailedAt,
	}
}
