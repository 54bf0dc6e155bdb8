package repositories

import (
	"context"

	"github.com/google/uuid"
	"yield-vault.backend/internal/domain/entities"
)

// InstructionRepository is the outbox for protocol and payout instructions
type InstructionRepository interface {
	CreateProtocolInstruction(ctx context.Context, instruction *entities.ProtocolInstruction) error
	GetProtocolInstruction(ctx context.Context, id uuid.UUID) (*entities.ProtocolInstruction, error)
	UpdateProtocolInstruction(ctx context.Context, instruction *entities.ProtocolInstruction) error
	// CountOpenByAllocation counts pending or dispatched instructions of a purpose for an allocation
	CountOpenByAllocation(ctx context.Context, allocationID uuid.UUID, purpose entities.InstructionPurpose) (int64, error)
	// ListOpenByVault returns pending or dispatched instructions of a vault, oldest first
	ListOpenByVault(ctx context.Context, vaultID uuid.UUID) ([]*entities.ProtocolInstruction, error)
	ListPendingProtocolInstructions(ctx context.Context, limit int) ([]*entities.ProtocolInstruction, error)
	MarkProtocolInstructionsDispatched(ctx context.Context, ids []uuid.UUID) error

	CreatePayoutInstruction(ctx context.Context, instruction *entities.PayoutInstruction) error
	GetPayoutByQueueItem(ctx context.Context, queueItemID uuid.UUID) (*entities.PayoutInstruction, error)
	ListPendingPayoutInstructions(ctx context.Context, limit int) ([]*entities.PayoutInstruction, error)
	MarkPayoutInstructionsDispatched(ctx context.Context, ids []uuid.UUID) error
}
