package repositories

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"yield-vault.backend/internal/domain/entities"
	"yield-vault.backend/internal/infrastructure/models"
	"yield-vault.backend/pkg/utils"
)

// LedgerEntryRepository implements the append-only audit trail
type LedgerEntryRepository struct {
	db *gorm.DB
}

// NewLedgerEntryRepository creates a new ledger entry repository
func NewLedgerEntryRepository(db *gorm.DB) *LedgerEntryRepository {
	return &LedgerEntryRepository{db: db}
}

func (r *LedgerEntryRepository) Create(ctx context.Context, e *entities.LedgerEntry) error {
	if e.ID == uuid.Nil {
		e.ID = newID()
	}
	metadata := e.Metadata
	if metadata == "" {
		metadata = "{}"
	}
	m := &models.LedgerEntry{
		ID:          e.ID,
		ClientID:    e.ClientID,
		VaultID:     e.VaultID,
		UserID:      e.UserID,
		EntryType:   string(e.EntryType),
		Amount:      e.Amount,
		Units:       e.Units,
		Index:       e.Index,
		ReferenceID: e.ReferenceID,
		Metadata:    metadata,
	}
	if err := GetDB(ctx, r.db).WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	e.CreatedAt = m.CreatedAt
	return nil
}

func (r *LedgerEntryRepository) ListByVault(ctx context.Context, vaultID uuid.UUID, pagination utils.PaginationParams) ([]*entities.LedgerEntry, int64, error) {
	var total int64
	base := GetDB(ctx, r.db).WithContext(ctx).Model(&models.LedgerEntry{}).Where("vault_id = ?", vaultID)
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	q := GetDB(ctx, r.db).WithContext(ctx).
		Where("vault_id = ?", vaultID).
		Order("created_at DESC, id DESC")
	if pagination.Limit > 0 {
		q = q.Limit(pagination.Limit).Offset(pagination.CalculateOffset())
	}
	var ms []models.LedgerEntry
	if err := q.Find(&ms).Error; err != nil {
		return nil, 0, err
	}

	out := make([]*entities.LedgerEntry, 0, len(ms))
	for i := range ms {
		m := ms[i]
		out = append(out, &entities.LedgerEntry{
			ID:          m.ID,
			ClientID:    m.ClientID,
			VaultID:     m.VaultID,
			UserID:      m.UserID,
			EntryType:   entities.LedgerEntryType(m.EntryType),
			Amount:      m.Amount,
			Units:       m.Units,
			Index:       m.Index,
			ReferenceID: m.ReferenceID,
			Metadata:    m.Metadata,
			CreatedAt:   m.CreatedAt,
		})
	}
	return out, total, nil
}
