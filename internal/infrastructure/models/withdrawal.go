package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type WithdrawalTransaction struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey"`
	OrderID         string          `gorm:"type:varchar(255);not null;uniqueIndex"`
	ClientID        uuid.UUID       `gorm:"type:uuid;not null;index"`
	UserID          uuid.UUID       `gorm:"type:uuid;not null;index"`
	VaultID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	RequestedAmount decimal.Decimal `gorm:"type:varchar(100);not null"`
	ActualAmount    decimal.Decimal `gorm:"type:varchar(100);not null"`
	WithdrawalFee   decimal.Decimal `gorm:"type:varchar(100);not null"`
	NetworkFee      decimal.Decimal `gorm:"type:varchar(100);not null"`
	Currency        string          `gorm:"type:varchar(32);not null"`
	DestinationType string          `gorm:"type:varchar(32);not null"`
	Destination     string          `gorm:"type:jsonb;not null"`
	Priority        int             `gorm:"not null;default:0"`
	Status          string          `gorm:"type:varchar(32);not null;index"`
	ErrorMessage    *string         `gorm:"type:text"`
	ErrorCode       *string         `gorm:"type:varchar(64)"`
	TransactionHash *string         `gorm:"type:varchar(255)"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
	FailedAt        *time.Time
}

type WithdrawalQueueItem struct {
	ID                      uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ClientID                uuid.UUID       `gorm:"type:uuid;not null;index:idx_queue_items_client_status,priority:1"`
	Status                  string          `gorm:"type:varchar(32);not null;index:idx_queue_items_client_status,priority:2"`
	WithdrawalTransactionID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	VaultID                 uuid.UUID       `gorm:"type:uuid;not null;index"`
	UserID                  uuid.UUID       `gorm:"type:uuid;not null"`
	UnitsToBurn             decimal.Decimal `gorm:"type:varchar(100);not null"`
	IndexAtBurn             decimal.Decimal `gorm:"type:varchar(100);not null"`
	CostBasis               decimal.Decimal `gorm:"type:varchar(100);not null"`
	EstimatedAmount         decimal.Decimal `gorm:"type:varchar(100);not null"`
	ActualAmount            decimal.Decimal `gorm:"type:varchar(100);not null"`
	ReservedIdle            decimal.Decimal `gorm:"type:varchar(100);not null"`
	ProtocolsToUnstake      string          `gorm:"type:jsonb;not null"`
	Priority                int             `gorm:"not null;default:0"`
	FailureReason           *string         `gorm:"type:text"`
	QueuedAt                time.Time       `gorm:"not null"`
	UnstakingStartedAt      *time.Time
	ReadyAt                 *time.Time
	ProcessingAt            *time.Time
	CompletedAt             *time.Time
	FailedAt                *time.Time
	UpdatedAt               time.Time
}
