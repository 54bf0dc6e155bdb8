package repositories

import (
	"context"

	"github.com/google/uuid"
	"yield-vault.backend/internal/domain/entities"
)

// WithdrawalRepository defines withdrawal transaction and queue item data operations
type WithdrawalRepository interface {
	CreateTransaction(ctx context.Context, tx *entities.WithdrawalTransaction) error
	GetTransactionByID(ctx context.Context, id uuid.UUID) (*entities.WithdrawalTransaction, error)
	GetTransactionByOrderID(ctx context.Context, orderID string) (*entities.WithdrawalTransaction, error)
	UpdateTransaction(ctx context.Context, tx *entities.WithdrawalTransaction) error

	CreateQueueItem(ctx context.Context, item *entities.WithdrawalQueueItem) error
	GetQueueItemByID(ctx context.Context, id uuid.UUID) (*entities.WithdrawalQueueItem, error)
	GetQueueItemByTransactionID(ctx context.Context, withdrawalID uuid.UUID) (*entities.WithdrawalQueueItem, error)
	// GetQueueItemsByIDs returns items ordered by priority desc, queuedAt asc
	GetQueueItemsByIDs(ctx context.Context, ids []uuid.UUID) ([]*entities.WithdrawalQueueItem, error)
	// ListQueuedByClient returns queued items ordered by priority desc, queuedAt asc
	ListQueuedByClient(ctx context.Context, clientID uuid.UUID, limit int) ([]*entities.WithdrawalQueueItem, error)
	ListByStatus(ctx context.Context, status entities.QueueItemStatus, limit int) ([]*entities.WithdrawalQueueItem, error)
	ListClientsWithQueued(ctx context.Context, limit int) ([]uuid.UUID, error)
	UpdateQueueItem(ctx context.Context, item *entities.WithdrawalQueueItem) error
}
