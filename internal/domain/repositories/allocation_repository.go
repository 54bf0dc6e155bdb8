package repositories

import (
	"context"

	"github.com/google/uuid"
	"yield-vault.backend/internal/domain/entities"
)

// AllocationRepository defines allocation ledger data operations.
// Reads lock the rows when ctx was marked by UnitOfWork.WithLock.
type AllocationRepository interface {
	// GetOrCreate inserts the allocation unless (vaultId, protocolId) exists and returns the stored row
	GetOrCreate(ctx context.Context, allocation *entities.Allocation) (*entities.Allocation, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Allocation, error)
	GetByVaultAndProtocol(ctx context.Context, vaultID, protocolID uuid.UUID) (*entities.Allocation, error)
	ListByVault(ctx context.Context, vaultID uuid.UUID) ([]*entities.Allocation, error)
	Update(ctx context.Context, allocation *entities.Allocation) error
}
