package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"yield-vault.backend/internal/domain/entities"
	"yield-vault.backend/internal/infrastructure/models"
)

// WithdrawalRepository implements WithdrawalRepository
type WithdrawalRepository struct {
	db *gorm.DB
}

// NewWithdrawalRepository creates a new withdrawal repository
func NewWithdrawalRepository(db *gorm.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

const queueOrder = "priority DESC, queued_at ASC, id ASC"

func (r *WithdrawalRepository) CreateTransaction(ctx context.Context, tx *entities.WithdrawalTransaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = newID()
	}
	m, err := r.toTransactionModel(tx)
	if err != nil {
		return err
	}
	if err := GetDB(ctx, r.db).WithContext(ctx).Create(m).Error; err != nil {
		return mapDuplicate(err)
	}
	tx.CreatedAt, tx.UpdatedAt = m.CreatedAt, m.UpdatedAt
	return nil
}

func (r *WithdrawalRepository) GetTransactionByID(ctx context.Context, id uuid.UUID) (*entities.WithdrawalTransaction, error) {
	var m models.WithdrawalTransaction
	if err := lockable(ctx, r.db).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return r.toTransactionEntity(&m)
}

func (r *WithdrawalRepository) GetTransactionByOrderID(ctx context.Context, orderID string) (*entities.WithdrawalTransaction, error) {
	var m models.WithdrawalTransaction
	if err := lockable(ctx, r.db).Where("order_id = ?", orderID).First(&m).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return r.toTransactionEntity(&m)
}

func (r *WithdrawalRepository) UpdateTransaction(ctx context.Context, tx *entities.WithdrawalTransaction) error {
	tx.UpdatedAt = time.Now()
	res := GetDB(ctx, r.db).WithContext(ctx).Model(&models.WithdrawalTransaction{}).
		Where("id = ?", tx.ID).
		Updates(map[string]interface{}{
			"actual_amount":    tx.ActualAmount,
			"withdrawal_fee":   tx.WithdrawalFee,
			"network_fee":      tx.NetworkFee,
			"status":           string(tx.Status),
			"error_message":    nullToPtr(tx.ErrorMessage),
			"error_code":       nullToPtr(tx.ErrorCode),
			"transaction_hash": nullToPtr(tx.TransactionHash),
			"completed_at":     tx.CompletedAt,
			"failed_at":        tx.FailedAt,
			"updated_at":       tx.UpdatedAt,
		})
	return rowsAffectedOrNotFound(res)
}

func (r *WithdrawalRepository) CreateQueueItem(ctx context.Context, item *entities.WithdrawalQueueItem) error {
	if item.ID == uuid.Nil {
		item.ID = newID()
	}
	if item.QueuedAt.IsZero() {
		item.QueuedAt = time.Now()
	}
	m, err := r.toQueueItemModel(item)
	if err != nil {
		return err
	}
	if err := GetDB(ctx, r.db).WithContext(ctx).Create(m).Error; err != nil {
		return mapDuplicate(err)
	}
	item.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *WithdrawalRepository) GetQueueItemByID(ctx context.Context, id uuid.UUID) (*entities.WithdrawalQueueItem, error) {
	var m models.WithdrawalQueueItem
	if err := lockable(ctx, r.db).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return r.toQueueItemEntity(&m)
}

func (r *WithdrawalRepository) GetQueueItemByTransactionID(ctx context.Context, withdrawalID uuid.UUID) (*entities.WithdrawalQueueItem, error) {
	var m models.WithdrawalQueueItem
	if err := lockable(ctx, r.db).Where("withdrawal_transaction_id = ?", withdrawalID).First(&m).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return r.toQueueItemEntity(&m)
}

func (r *WithdrawalRepository) GetQueueItemsByIDs(ctx context.Context, ids []uuid.UUID) ([]*entities.WithdrawalQueueItem, error) {
	if len(ids) == 0 {
		return []*entities.WithdrawalQueueItem{}, nil
	}
	var ms []models.WithdrawalQueueItem
	if err := lockable(ctx, r.db).Where("id IN ?", ids).Order(queueOrder).Find(&ms).Error; err != nil {
		return nil, err
	}
	return r.toQueueItemEntities(ms)
}

func (r *WithdrawalRepository) ListQueuedByClient(ctx context.Context, clientID uuid.UUID, limit int) ([]*entities.WithdrawalQueueItem, error) {
	q := lockable(ctx, r.db).
		Where("client_id = ? AND status = ?", clientID, string(entities.QueueItemStatusQueued)).
		Order(queueOrder)
	if limit > 0 {
		q = q.Limit(limit)
	}
	var ms []models.WithdrawalQueueItem
	if err := q.Find(&ms).Error; err != nil {
		return nil, err
	}
	return r.toQueueItemEntities(ms)
}

func (r *WithdrawalRepository) ListByStatus(ctx context.Context, status entities.QueueItemStatus, limit int) ([]*entities.WithdrawalQueueItem, error) {
	q := GetDB(ctx, r.db).WithContext(ctx).
		Where("status = ?", string(status)).
		Order(queueOrder)
	if limit > 0 {
		q = q.Limit(limit)
	}
	var ms []models.WithdrawalQueueItem
	if err := q.Find(&ms).Error; err != nil {
		return nil, err
	}
	return r.toQueueItemEntities(ms)
}

func (r *WithdrawalRepository) ListClientsWithQueued(ctx context.Context, limit int) ([]uuid.UUID, error) {
	q := GetDB(ctx, r.db).WithContext(ctx).Model(&models.WithdrawalQueueItem{}).
		Where("status = ?", string(entities.QueueItemStatusQueued)).
		Order("client_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var ids []uuid.UUID
	if err := q.Distinct("client_id").Pluck("client_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *WithdrawalRepository) UpdateQueueItem(ctx context.Context, item *entities.WithdrawalQueueItem) error {
	legs, err := json.Marshal(item.ProtocolsToUnstake)
	if err != nil {
		return fmt.Errorf("encode protocols to unstake: %w", err)
	}
	item.UpdatedAt = time.Now()
	res := GetDB(ctx, r.db).WithContext(ctx).Model(&models.WithdrawalQueueItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]interface{}{
			"actual_amount":        item.ActualAmount,
			"reserved_idle":        item.ReservedIdle,
			"protocols_to_unstake": string(legs),
			"status":               string(item.Status),
			"failure_reason":       nullToPtr(item.FailureReason),
			"unstaking_started_at": item.UnstakingStartedAt,
			"ready_at":             item.ReadyAt,
			"processing_at":        item.ProcessingAt,
			"completed_at":         item.CompletedAt,
			"failed_at":            item.FailedAt,
			"updated_at":           item.UpdatedAt,
		})
	return rowsAffectedOrNotFound(res)
}

func (r *WithdrawalRepository) toTransactionModel(tx *entities.WithdrawalTransaction) (*models.WithdrawalTransaction, error) {
	dest, err := json.Marshal(tx.Destination)
	if err != nil {
		return nil, fmt.Errorf("encode destination: %w", err)
	}
	return &models.WithdrawalTransaction{
		ID:              tx.ID,
		OrderID:         tx.OrderID,
		ClientID:        tx.ClientID,
		UserID:          tx.UserID,
		VaultID:         tx.VaultID,
		RequestedAmount: tx.RequestedAmount,
		ActualAmount:    tx.ActualAmount,
		WithdrawalFee:   tx.WithdrawalFee,
		NetworkFee:      tx.NetworkFee,
		Currency:        tx.Currency,
		DestinationType: string(tx.Destination.Type),
		Destination:     string(dest),
		Priority:        tx.Priority,
		Status:          string(tx.Status),
		ErrorMessage:    nullToPtr(tx.ErrorMessage),
		ErrorCode:       nullToPtr(tx.ErrorCode),
		TransactionHash: nullToPtr(tx.TransactionHash),
		CompletedAt:     tx.CompletedAt,
		FailedAt:        tx.FailedAt,
	}, nil
}

func (r *WithdrawalRepository) toTransactionEntity(m *models.WithdrawalTransaction) (*entities.WithdrawalTransaction, error) {
	var dest entities.Destination
	if err := json.Unmarshal([]byte(m.Destination), &dest); err != nil {
		return nil, fmt.Errorf("decode destination of withdrawal %s: %w", m.ID, err)
	}
	return &entities.WithdrawalTransaction{
		ID:              m.ID,
		OrderID:         m.OrderID,
		ClientID:        m.ClientID,
		UserID:          m.UserID,
		VaultID:         m.VaultID,
		RequestedAmount: m.RequestedAmount,
		ActualAmount:    m.ActualAmount,
		WithdrawalFee:   m.WithdrawalFee,
		NetworkFee:      m.NetworkFee,
		Currency:        m.Currency,
		Destination:     dest,
		Priority:        m.Priority,
		Status:          entities.WithdrawalStatus(m.Status),
		ErrorMessage:    ptrToNull(m.ErrorMessage),
		ErrorCode:       ptrToNull(m.ErrorCode),
		TransactionHash: ptrToNull(m.TransactionHash),
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
		CompletedAt:     m.CompletedAt,
		FailedAt:        m.FailedAt,
	}, nil
}

func (r *WithdrawalRepository) toQueueItemModel(item *entities.WithdrawalQueueItem) (*models.WithdrawalQueueItem, error) {
	if item.ProtocolsToUnstake == nil {
		item.ProtocolsToUnstake = []*entities.ProtocolUnstake{}
	}
	legs, err := json.Marshal(item.ProtocolsToUnstake)
	if err != nil {
		return nil, fmt.Errorf("encode protocols to unstake: %w", err)
	}
	return &models.WithdrawalQueueItem{
		ID:                      item.ID,
		ClientID:                item.ClientID,
		Status:                  string(item.Status),
		WithdrawalTransactionID: item.WithdrawalTransactionID,
		VaultID:                 item.VaultID,
		UserID:                  item.UserID,
		UnitsToBurn:             item.UnitsToBurn,
		IndexAtBurn:             item.IndexAtBurn,
		CostBasis:               item.CostBasis,
		EstimatedAmount:         item.EstimatedAmount,
		ActualAmount:            item.ActualAmount,
		ReservedIdle:            item.ReservedIdle,
		ProtocolsToUnstake:      string(legs),
		Priority:                item.Priority,
		FailureReason:           nullToPtr(item.FailureReason),
		QueuedAt:                item.QueuedAt,
		UnstakingStartedAt:      item.UnstakingStartedAt,
		ReadyAt:                 item.ReadyAt,
		ProcessingAt:            item.ProcessingAt,
		CompletedAt:             item.CompletedAt,
		FailedAt:                item.FailedAt,
	}, nil
}

func (r *WithdrawalRepository) toQueueItemEntities(ms []models.WithdrawalQueueItem) ([]*entities.WithdrawalQueueItem, error) {
	out := make([]*entities.WithdrawalQueueItem, 0, len(ms))
	for i := range ms {
		item, err := r.toQueueItemEntity(&ms[i])
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (r *WithdrawalRepository) toQueueItemEntity(m *models.WithdrawalQueueItem) (*entities.WithdrawalQueueItem, error) {
	legs := []*entities.ProtocolUnstake{}
	if m.ProtocolsToUnstake != "" {
		if err := json.Unmarshal([]byte(m.ProtocolsToUnstake), &legs); err != nil {
			return nil, fmt.Errorf("decode protocols to unstake of queue item %s: %w", m.ID, err)
		}
	}
	return &entities.WithdrawalQueueItem{
		ID:                      m.ID,
		ClientID:                m.ClientID,
		WithdrawalTransactionID: m.WithdrawalTransactionID,
		VaultID:                 m.VaultID,
		UserID:                  m.UserID,
		UnitsToBurn:             m.UnitsToBurn,
		IndexAtBurn:             m.IndexAtBurn,
		CostBasis:               m.CostBasis,
		EstimatedAmount:         m.EstimatedAmount,
		ActualAmount:            m.ActualAmount,
		ReservedIdle:            m.ReservedIdle,
		ProtocolsToUnstake:      legs,
		Priority:                m.Priority,
		Status:                  entities.QueueItemStatus(m.Status),
		FailureReason:           ptrToNull(m.FailureReason),
		QueuedAt:                m.QueuedAt,
		UnstakingStartedAt:      m.UnstakingStartedAt,
		ReadyAt:                 m.ReadyAt,
		ProcessingAt:            m.ProcessingAt,
		CompletedAt:             m.CompletedAt,
		FailedAt:                m.FailedAt,
		UpdatedAt:               m.UpdatedAt,
	}, nil
}
