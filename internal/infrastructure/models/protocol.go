package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Protocol struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_protocols_name_chain,priority:1"`
	Chain     string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_protocols_name_chain,priority:2;index"`
	Category  string    `gorm:"type:varchar(32);not null"`
	RiskTier  string    `gorm:"type:varchar(32);not null"`
	IsActive  bool      `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Allocation struct {
	ID                   uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ClientID             uuid.UUID       `gorm:"type:uuid;not null;index"`
	VaultID              uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_allocations_vault_protocol,priority:1"`
	ProtocolID           uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_allocations_vault_protocol,priority:2"`
	Category             string          `gorm:"type:varchar(32);not null"`
	Chain                string          `gorm:"type:varchar(64);not null"`
	TokenAddress         string          `gorm:"type:varchar(255);not null"`
	Balance              decimal.Decimal `gorm:"type:varchar(100);not null"`
	PendingUnstake       decimal.Decimal `gorm:"type:varchar(100);not null"`
	PercentageAllocation decimal.Decimal `gorm:"type:varchar(100);not null"`
	APY                  decimal.Decimal `gorm:"column:apy;type:varchar(100);not null"`
	YieldEarned          decimal.Decimal `gorm:"type:varchar(100);not null"`
	Status               string          `gorm:"type:varchar(32);not null;index"`
	DeployedAt           *time.Time
	LastRebalanceAt      *time.Time
	WithdrawnAt          *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
