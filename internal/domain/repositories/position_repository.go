package repositories

import (
	"context"

	"github.com/google/uuid"
	"yield-vault.backend/internal/domain/entities"
)

// PositionRepository defines end-user position data operations
type PositionRepository interface {
	Create(ctx context.Context, position *entities.EndUserPosition) error
	GetByUserAndVault(ctx context.Context, userID, vaultID uuid.UUID) (*entities.EndUserPosition, error)
	Update(ctx context.Context, position *entities.EndUserPosition) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByVault(ctx context.Context, vaultID uuid.UUID) ([]*entities.EndUserPosition, error)
}
