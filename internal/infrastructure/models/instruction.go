package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type ProtocolInstruction struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ClientID        uuid.UUID       `gorm:"type:uuid;not null;index"`
	VaultID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	AllocationID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProtocolID      uuid.UUID       `gorm:"type:uuid;not null"`
	Chain           string          `gorm:"type:varchar(64);not null"`
	TokenAddress    string          `gorm:"type:varchar(255);not null"`
	Amount          decimal.Decimal `gorm:"type:varchar(100);not null"`
	ConfirmedAmount decimal.Decimal `gorm:"type:varchar(100);not null"`
	Direction       string          `gorm:"type:varchar(16);not null"`
	Purpose         string          `gorm:"type:varchar(16);not null"`
	QueueItemIDs    pq.StringArray  `gorm:"type:text[]"`
	Status          string          `gorm:"type:varchar(16);not null;index"`
	FailureReason   *string         `gorm:"type:text"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DispatchedAt    *time.Time
	ConfirmedAt     *time.Time
}

type PayoutInstruction struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey"`
	QueueItemID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	ClientID        uuid.UUID       `gorm:"type:uuid;not null;index"`
	DestinationType string          `gorm:"type:varchar(32);not null"`
	Destination     string          `gorm:"type:jsonb;not null"`
	Amount          decimal.Decimal `gorm:"type:varchar(100);not null"`
	Currency        string          `gorm:"type:varchar(32);not null"`
	Status          string          `gorm:"type:varchar(16);not null;index"`
	CreatedAt       time.Time
	DispatchedAt    *time.Time
}
