package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Vault struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ClientID           uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_vaults_scope,priority:1"`
	Chain              string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_vaults_scope,priority:2"`
	TokenAddress       string          `gorm:"type:varchar(255);not null;uniqueIndex:idx_vaults_scope,priority:3"`
	Environment        string          `gorm:"type:varchar(32);not null;uniqueIndex:idx_vaults_scope,priority:4"`
	TokenSymbol        string          `gorm:"type:varchar(32);not null"`
	CurrentIndex       decimal.Decimal `gorm:"type:varchar(100);not null"`
	TotalUnits         decimal.Decimal `gorm:"type:varchar(100);not null"`
	IdleBalance        decimal.Decimal `gorm:"type:varchar(100);not null"`
	StakedBalance      decimal.Decimal `gorm:"type:varchar(100);not null"`
	ReservedIdle       decimal.Decimal `gorm:"type:varchar(100);not null"`
	PendingStake       decimal.Decimal `gorm:"type:varchar(100);not null"`
	PendingWithdrawals decimal.Decimal `gorm:"type:varchar(100);not null"`
	ReserveBalance     decimal.Decimal `gorm:"type:varchar(100);not null"`
	MinStakeThreshold  decimal.Decimal `gorm:"type:varchar(100);not null"`
	CustodialWalletRef string          `gorm:"type:varchar(255)"`
	CreatedAt          time.Time       `gorm:"index"`
	UpdatedAt          time.Time
}

type EndUserPosition struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UserID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_positions_user_vault,priority:1"`
	VaultID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_positions_user_vault,priority:2;index"`
	ClientID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	Units      decimal.Decimal `gorm:"type:varchar(100);not null"`
	EntryIndex decimal.Decimal `gorm:"type:varchar(100);not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (EndUserPosition) TableName() string {
	return "end_user_positions"
}
