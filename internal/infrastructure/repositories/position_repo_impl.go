package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"yield-vault.backend/internal/domain/entities"
	"yield-vault.backend/internal/infrastructure/models"
)

// PositionRepository implements PositionRepository
type PositionRepository struct {
	db *gorm.DB
}

// NewPositionRepository creates a new end-user position repository
func NewPositionRepository(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

func (r *PositionRepository) Create(ctx context.Context, p *entities.EndUserPosition) error {
	if p.ID == uuid.Nil {
		p.ID = newID()
	}
	m := &models.EndUserPosition{
		ID:         p.ID,
		UserID:     p.UserID,
		VaultID:    p.VaultID,
		ClientID:   p.ClientID,
		Units:      p.Units,
		EntryIndex: p.EntryIndex,
	}
	if err := GetDB(ctx, r.db).WithContext(ctx).Create(m).Error; err != nil {
		return mapDuplicate(err)
	}
	p.CreatedAt, p.UpdatedAt = m.CreatedAt, m.UpdatedAt
	return nil
}

func (r *PositionRepository) GetByUserAndVault(ctx context.Context, userID, vaultID uuid.UUID) (*entities.EndUserPosition, error) {
	var m models.EndUserPosition
	if err := lockable(ctx, r.db).Where("user_id = ? AND vault_id = ?", userID, vaultID).First(&m).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return r.toEntity(&m), nil
}

func (r *PositionRepository) Update(ctx context.Context, p *entities.EndUserPosition) error {
	p.UpdatedAt = time.Now()
	res := GetDB(ctx, r.db).WithContext(ctx).Model(&models.EndUserPosition{}).
		Where("id = ?", p.ID).
		Updates(map[string]interface{}{
			"units":       p.Units,
			"entry_index": p.EntryIndex,
			"updated_at":  p.UpdatedAt,
		})
	return rowsAffectedOrNotFound(res)
}

func (r *PositionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).WithContext(ctx).Where("id = ?", id).Delete(&models.EndUserPosition{}).Error
}

func (r *PositionRepository) ListByVault(ctx context.Context, vaultID uuid.UUID) ([]*entities.EndUserPosition, error) {
	var ms []models.EndUserPosition
	if err := GetDB(ctx, r.db).WithContext(ctx).
		Where("vault_id = ?", vaultID).
		Order("created_at ASC").
		Find(&ms).Error; err != nil {
		return nil, err
	}
	positions := make([]*entities.EndUserPosition, 0, len(ms))
	for i := range ms {
		positions = append(positions, r.toEntity(&ms[i]))
	}
	return positions, nil
}

func (r *PositionRepository) toEntity(m *models.EndUserPosition) *entities.EndUserPosition {
	return &entities.EndUserPosition{
		ID:         m.ID,
		UserID:     m.UserID,
		VaultID:    m.VaultID,
		ClientID:   m.ClientID,
		Units:      m.Units,
		EntryIndex: m.EntryIndex,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}
