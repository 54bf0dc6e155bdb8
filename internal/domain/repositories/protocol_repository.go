package repositories

import (
	"context"

	"github.com/google/uuid"
	"yield-vault.backend/internal/domain/entities"
)

// ProtocolRepository defines protocol registry data operations
type ProtocolRepository interface {
	Create(ctx context.Context, protocol *entities.Protocol) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Protocol, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*entities.Protocol, error)
	ListActiveByChain(ctx context.Context, chain string) ([]*entities.Protocol, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}
