package repositories

import (
	"context"

	"github.com/google/uuid"
	"yield-vault.backend/internal/domain/entities"
)

// DepositRepository defines deposit data operations
type DepositRepository interface {
	Create(ctx context.Context, deposit *entities.Deposit) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Deposit, error)
	GetByOrderID(ctx context.Context, orderID string) (*entities.Deposit, error)
	Update(ctx context.Context, deposit *entities.Deposit) error
}
