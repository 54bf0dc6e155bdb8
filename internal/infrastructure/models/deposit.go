package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Deposit struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey"`
	OrderID           string          `gorm:"type:varchar(255);not null;uniqueIndex"`
	ClientID          uuid.UUID       `gorm:"type:uuid;not null;index"`
	UserID            uuid.UUID       `gorm:"type:uuid;not null;index"`
	VaultID           uuid.UUID       `gorm:"type:uuid;not null;index"`
	Amount            decimal.Decimal `gorm:"type:varchar(100);not null"`
	ConfirmedAmount   decimal.Decimal `gorm:"type:varchar(100);not null"`
	UnitsMinted       decimal.Decimal `gorm:"type:varchar(100);not null"`
	IndexAtCompletion decimal.Decimal `gorm:"type:varchar(100);not null"`
	Status            string          `gorm:"type:varchar(32);not null;index"`
	FailureReason     *string         `gorm:"type:text"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time
	FailedAt          *time.Time
}
