package repositories

import (
	"context"

	"github.com/google/uuid"
	"yield-vault.backend/internal/domain/entities"
	"yield-vault.backend/pkg/utils"
)

// LedgerEntryRepository is the append-only audit trail
type LedgerEntryRepository interface {
	Create(ctx context.Context, entry *entities.LedgerEntry) error
	ListByVault(ctx context.Context, vaultID uuid.UUID, pagination utils.PaginationParams) ([]*entities.LedgerEntry, int64, error)
}
