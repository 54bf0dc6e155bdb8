package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LedgerEntry struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ClientID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	VaultID     uuid.UUID       `gorm:"type:uuid;not null;index:idx_ledger_entries_vault_created,priority:1"`
	UserID      *uuid.UUID      `gorm:"type:uuid;index"`
	EntryType   string          `gorm:"type:varchar(50);not null;index"`
	Amount      decimal.Decimal `gorm:"type:varchar(100);not null"`
	Units       decimal.Decimal `gorm:"type:varchar(100);not null"`
	Index       decimal.Decimal `gorm:"column:index_value;type:varchar(100);not null"`
	ReferenceID *uuid.UUID      `gorm:"type:uuid;index"`
	Metadata    string          `gorm:"type:jsonb"`
	CreatedAt   time.Time       `gorm:"index:idx_ledger_entries_vault_created,priority:2"`
}
