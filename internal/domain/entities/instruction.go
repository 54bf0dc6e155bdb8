package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
)

// InstructionDirection represents the movement asked of a protocol
type InstructionDirection string

const (
	DirectionStake   InstructionDirection = "stake"
	DirectionUnstake InstructionDirection = "unstake"
)

// InstructionPurpose records why an instruction was emitted
type InstructionPurpose string

const (
	PurposeDeploy     InstructionPurpose = "deploy"
	PurposeRebalance  InstructionPurpose = "rebalance"
	PurposeWithdrawal InstructionPurpose = "withdrawal"
)

// InstructionStatus represents outbox delivery and execution status
type InstructionStatus string

const (
	InstructionStatusPending    InstructionStatus = "pending"
	InstructionStatusDispatched InstructionStatus = "dispatched"
	InstructionStatusConfirmed  InstructionStatus = "confirmed"
	InstructionStatusFailed     InstructionStatus = "failed"
)

// IsTerminal reports whether the instruction can no longer be confirmed.
func (s InstructionStatus) IsTerminal() bool {
	return s == InstructionStatusConfirmed || s == InstructionStatusFailed
}

// ProtocolInstruction is a stake/unstake order for the protocol-execution collaborator.
// A withdrawal-purpose instruction is an aggregation batch: one unstake for many queue items.
type ProtocolInstruction struct {
	ID              uuid.UUID            `json:"id"`
	ClientID        uuid.UUID            `json:"clientId"`
	VaultID         uuid.UUID            `json:"vaultId"`
	AllocationID    uuid.UUID            `json:"allocationId"`
	ProtocolID      uuid.UUID            `json:"protocolId"`
	Chain           string               `json:"chain"`
	TokenAddress    string               `json:"tokenAddress"`
	Amount          decimal.Decimal      `json:"amount"`
	ConfirmedAmount decimal.Decimal      `json:"confirmedAmount"`
	Direction       InstructionDirection `json:"direction"`
	Purpose         InstructionPurpose   `json:"purpose"`
	QueueItemIDs    []uuid.UUID          `json:"queueItemIds,omitempty"`
	Status          InstructionStatus    `json:"status"`
	FailureReason   null.String          `json:"failureReason,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
	DispatchedAt    *time.Time           `json:"dispatchedAt,omitempty"`
	ConfirmedAt     *time.Time           `json:"confirmedAt,omitempty"`
}

// Outstanding is the part of the instruction not yet confirmed.
func (i *ProtocolInstruction) Outstanding() decimal.Decimal {
	return NonNegative(i.Amount.Sub(i.ConfirmedAmount))
}

// PayoutStatus represents payout outbox status
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusDispatched PayoutStatus = "dispatched"
)

// PayoutInstruction is a payment order for the settlement collaborator
type PayoutInstruction struct {
	ID           uuid.UUID       `json:"id"`
	QueueItemID  uuid.UUID       `json:"queueItemId"`
	ClientID     uuid.UUID       `json:"clientId"`
	Destination  Destination     `json:"destination"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Status       PayoutStatus    `json:"status"`
	CreatedAt    time.Time       `json:"createdAt"`
	DispatchedAt *time.Time      `json:"dispatchedAt,omitempty"`
}

// WeightedProtocol is one protocol's target share in percent
type WeightedProtocol struct {
	ProtocolID uuid.UUID       `json:"protocolId"`
	Percent    decimal.Decimal `json:"percent"`
}
