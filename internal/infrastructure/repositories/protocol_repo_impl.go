package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"yield-vault.backend/internal/domain/entities"
	"yield-vault.backend/internal/infrastructure/models"
)

// ProtocolRepository implements ProtocolRepository
type ProtocolRepository struct {
	db *gorm.DB
}

// NewProtocolRepository creates a new protocol registry repository
func NewProtocolRepository(db *gorm.DB) *ProtocolRepository {
	return &ProtocolRepository{db: db}
}

func (r *ProtocolRepository) Create(ctx context.Context, p *entities.Protocol) error {
	if p.ID == uuid.Nil {
		p.ID = newID()
	}
	m := &models.Protocol{
		ID:       p.ID,
		Name:     p.Name,
		Chain:    p.Chain,
		Category: string(p.Category),
		RiskTier: string(p.RiskTier),
		IsActive: p.IsActive,
	}
	// IsActive=false would be skipped as a zero value and hit the column default
	if err := GetDB(ctx, r.db).WithContext(ctx).Select("*").Create(m).Error; err != nil {
		return mapDuplicate(err)
	}
	p.CreatedAt, p.UpdatedAt = m.CreatedAt, m.UpdatedAt
	return nil
}

func (r *ProtocolRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Protocol, error) {
	var m models.Protocol
	if err := GetDB(ctx, r.db).WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return r.toEntity(&m), nil
}

func (r *ProtocolRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*entities.Protocol, error) {
	if len(ids) == 0 {
		return []*entities.Protocol{}, nil
	}
	var ms []models.Protocol
	if err := GetDB(ctx, r.db).WithContext(ctx).Where("id IN ?", ids).Find(&ms).Error; err != nil {
		return nil, err
	}
	return r.toEntities(ms), nil
}

func (r *ProtocolRepository) ListActiveByChain(ctx context.Context, chain string) ([]*entities.Protocol, error) {
	var ms []models.Protocol
	if err := GetDB(ctx, r.db).WithContext(ctx).
		Where("chain = ? AND is_active = ?", chain, true).
		Order("name ASC").
		Find(&ms).Error; err != nil {
		return nil, err
	}
	return r.toEntities(ms), nil
}

func (r *ProtocolRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	res := GetDB(ctx, r.db).WithContext(ctx).Model(&models.Protocol{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_active":  active,
			"updated_at": time.Now(),
		})
	return rowsAffectedOrNotFound(res)
}

func (r *ProtocolRepository) toEntities(ms []models.Protocol) []*entities.Protocol {
	out := make([]*entities.Protocol, 0, len(ms))
	for i := range ms {
		out = append(out, r.toEntity(&ms[i]))
	}
	return out
}

func (r *ProtocolRepository) toEntity(m *models.Protocol) *entities.Protocol {
	return &entities.Protocol{
		ID:        m.ID,
		Name:      m.Name,
		Chain:     m.Chain,
		Category:  entities.ProtocolCategory(m.Category),
		RiskTier:  entities.RiskTier(m.RiskTier),
		IsActive:  m.IsActive,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
