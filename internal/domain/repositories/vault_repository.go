package repositories

import (
	"context"

	"github.com/google/uuid"
	"yield-vault.backend/internal/domain/entities"
)

// VaultRepository defines vault data operations.
// GetByID and GetByScope lock the row when ctx was marked by UnitOfWork.WithLock.
type VaultRepository interface {
	Create(ctx context.Context, vault *entities.Vault) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Vault, error)
	GetByScope(ctx context.Context, clientID uuid.UUID, chain, tokenAddress, environment string) (*entities.Vault, error)
	// GetOrCreate inserts the vault unless its scope already exists and returns the stored row
	GetOrCreate(ctx context.Context, vault *entities.Vault) (*entities.Vault, error)
	Update(ctx context.Context, vault *entities.Vault) error
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]*entities.Vault, error)
	// ListWithIdle returns vaults holding any idle balance, oldest first
	ListWithIdle(ctx context.Context, limit int) ([]*entities.Vault, error)
}
