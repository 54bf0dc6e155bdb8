package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"yield-vault.backend/internal/domain/entities"
	"yield-vault.backend/internal/infrastructure/models"
)

// InstructionRepository implements the instruction outbox
type InstructionRepository struct {
	db *gorm.DB
}

// NewInstructionRepository creates a new instruction outbox repository
func NewInstructionRepository(db *gorm.DB) *InstructionRepository {
	return &InstructionRepository{db: db}
}

var openInstructionStatuses = []string{
	string(entities.InstructionStatusPending),
	string(entities.InstructionStatusDispatched),
}

func (r *InstructionRepository) CreateProtocolInstruction(ctx context.Context, in *entities.ProtocolInstruction) error {
	if in.ID == uuid.Nil {
		in.ID = newID()
	}
	if in.Status == "" {
		in.Status = entities.InstructionStatusPending
	}
	m := &models.ProtocolInstruction{
		ID:              in.ID,
		ClientID:        in.ClientID,
		VaultID:         in.VaultID,
		AllocationID:    in.AllocationID,
		ProtocolID:      in.ProtocolID,
		Chain:           in.Chain,
		TokenAddress:    in.TokenAddress,
		Amount:          in.Amount,
		ConfirmedAmount: in.ConfirmedAmount,
		Direction:       string(in.Direction),
		Purpose:         string(in.Purpose),
		QueueItemIDs:    pq.StringArray(uuidStrings(in.QueueItemIDs)),
		Status:          string(in.Status),
		FailureReason:   nullToPtr(in.FailureReason),
	}
	if err := GetDB(ctx, r.db).WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	in.CreatedAt, in.UpdatedAt = m.CreatedAt, m.UpdatedAt
	return nil
}

func (r *InstructionRepository) GetProtocolInstruction(ctx context.Context, id uuid.UUID) (*entities.ProtocolInstruction, error) {
	var m models.ProtocolInstruction
	if err := lockable(ctx, r.db).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return r.toProtocolEntity(&m), nil
}

func (r *InstructionRepository) UpdateProtocolInstruction(ctx context.Context, in *entities.ProtocolInstruction) error {
	in.UpdatedAt = time.Now()
	res := GetDB(ctx, r.db).WithContext(ctx).Model(&models.ProtocolInstruction{}).
		Where("id = ?", in.ID).
		Updates(map[string]interface{}{
			"confirmed_amount": in.ConfirmedAmount,
			"status":           string(in.Status),
			"failure_reason":   nullToPtr(in.FailureReason),
			"dispatched_at":    in.DispatchedAt,
			"confirmed_at":     in.ConfirmedAt,
			"updated_at":       in.UpdatedAt,
		})
	return rowsAffectedOrNotFound(res)
}

func (r *InstructionRepository) CountOpenByAllocation(ctx context.Context, allocationID uuid.UUID, purpose entities.InstructionPurpose) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).WithContext(ctx).Model(&models.ProtocolInstruction{}).
		Where("allocation_id = ? AND purpose = ? AND status IN ?", allocationID, string(purpose), openInstructionStatuses).
		Count(&count).Error
	return count, err
}

func (r *InstructionRepository) ListOpenByVault(ctx context.Context, vaultID uuid.UUID) ([]*entities.ProtocolInstruction, error) {
	var ms []models.ProtocolInstruction
	err := GetDB(ctx, r.db).WithContext(ctx).
		Where("vault_id = ? AND status IN ?", vaultID, openInstructionStatuses).
		Order("created_at ASC, id ASC").
		Find(&ms).Error
	if err != nil {
		return nil, err
	}
	out := make([]*entities.ProtocolInstruction, 0, len(ms))
	for i := range ms {
		out = append(out, r.toProtocolEntity(&ms[i]))
	}
	return out, nil
}

func (r *InstructionRepository) ListPendingProtocolInstructions(ctx context.Context, limit int) ([]*entities.ProtocolInstruction, error) {
	q := GetDB(ctx, r.db).WithContext(ctx).
		Where("status = ?", string(entities.InstructionStatusPending)).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var ms []models.ProtocolInstruction
	if err := q.Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]*entities.ProtocolInstruction, 0, len(ms))
	for i := range ms {
		out = append(out, r.toProtocolEntity(&ms[i]))
	}
	return out, nil
}

func (r *InstructionRepository) MarkProtocolInstructionsDispatched(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now()
	return GetDB(ctx, r.db).WithContext(ctx).Model(&models.ProtocolInstruction{}).
		Where("id IN ? AND status = ?", ids, string(entities.InstructionStatusPending)).
		Updates(map[string]interface{}{
			"status":        string(entities.InstructionStatusDispatched),
			"dispatched_at": now,
			"updated_at":    now,
		}).Error
}

func (r *InstructionRepository) CreatePayoutInstruction(ctx context.Context, in *entities.PayoutInstruction) error {
	if in.ID == uuid.Nil {
		in.ID = newID()
	}
	if in.Status == "" {
		in.Status = entities.PayoutStatusPending
	}
	dest, err := json.Marshal(in.Destination)
	if err != nil {
		return fmt.Errorf("encode destination: %w", err)
	}
	m := &models.PayoutInstruction{
		ID:              in.ID,
		QueueItemID:     in.QueueItemID,
		ClientID:        in.ClientID,
		DestinationType: string(in.Destination.Type),
		Destination:     string(dest),
		Amount:          in.Amount,
		Currency:        in.Currency,
		Status:          string(in.Status),
	}
	if err := GetDB(ctx, r.db).WithContext(ctx).Create(m).Error; err != nil {
		return mapDuplicate(err)
	}
	in.CreatedAt = m.CreatedAt
	return nil
}

func (r *InstructionRepository) GetPayoutByQueueItem(ctx context.Context, queueItemID uuid.UUID) (*entities.PayoutInstruction, error) {
	var m models.PayoutInstruction
	if err := GetDB(ctx, r.db).WithContext(ctx).Where("queue_item_id = ?", queueItemID).First(&m).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return r.toPayoutEntity(&m)
}

func (r *InstructionRepository) ListPendingPayoutInstructions(ctx context.Context, limit int) ([]*entities.PayoutInstruction, error) {
	q := GetDB(ctx, r.db).WithContext(ctx).
		Where("status = ?", string(entities.PayoutStatusPending)).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var ms []models.PayoutInstruction
	if err := q.Find(&ms).Error; err != nil {
		return nil, err
	}
	out := make([]*entities.PayoutInstruction, 0, len(ms))
	for i := range ms {
		p, err := r.toPayoutEntity(&ms[i])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *InstructionRepository) MarkPayoutInstructionsDispatched(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).WithContext(ctx).Model(&models.PayoutInstruction{}).
		Where("id IN ? AND status = ?", ids, string(entities.PayoutStatusPending)).
		Updates(map[string]interface{}{
			"status":        string(entities.PayoutStatusDispatched),
			"dispatched_at": time.Now(),
		}).Error
}

func (r *InstructionRepository) toProtocolEntity(m *models.ProtocolInstruction) *entities.ProtocolInstruction {
	return &entities.ProtocolInstruction{
		ID:              m.ID,
		ClientID:        m.ClientID,
		VaultID:         m.VaultID,
		AllocationID:    m.AllocationID,
		ProtocolID:      m.ProtocolID,
		Chain:           m.Chain,
		TokenAddress:    m.TokenAddress,
		Amount:          m.Amount,
		ConfirmedAmount: m.ConfirmedAmount,
		Direction:       entities.InstructionDirection(m.Direction),
		Purpose:         entities.InstructionPurpose(m.Purpose),
		QueueItemIDs:    parseUUIDs(m.QueueItemIDs),
		Status:          entities.InstructionStatus(m.Status),
		FailureReason:   ptrToNull(m.FailureReason),
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
		DispatchedAt:    m.DispatchedAt,
		ConfirmedAt:     m.ConfirmedAt,
	}
}

func (r *InstructionRepository) toPayoutEntity(m *models.PayoutInstruction) (*entities.PayoutInstruction, error) {
	var dest entities.Destination
	if err := json.Unmarshal([]byte(m.Destination), &dest); err != nil {
		return nil, fmt.Errorf("decode destination of payout %s: %w", m.ID, err)
	}
	return &entities.PayoutInstruction{
		ID:           m.ID,
		QueueItemID:  m.QueueItemID,
		ClientID:     m.ClientID,
		Destination:  dest,
		Amount:       m.Amount,
		Currency:     m.Currency,
		Status:       entities.PayoutStatus(m.Status),
		CreatedAt:    m.CreatedAt,
		DispatchedAt: m.DispatchedAt,
	}, nil
}
