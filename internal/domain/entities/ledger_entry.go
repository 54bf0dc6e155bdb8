package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerEntryType represents the kind of balance-affecting operation
type LedgerEntryType string

const (
	LedgerDepositCompleted    LedgerEntryType = "DEPOSIT_COMPLETED"
	LedgerYieldApplied        LedgerEntryType = "YIELD_APPLIED"
	LedgerYieldReserved       LedgerEntryType = "YIELD_RESERVED"
	LedgerIdleCredited        LedgerEntryType = "IDLE_CREDITED"
	LedgerIdleDebited         LedgerEntryType = "IDLE_DEBITED"
	LedgerStakeRequested      LedgerEntryType = "STAKE_REQUESTED"
	LedgerStaked              LedgerEntryType = "STAKED"
	LedgerUnstaked            LedgerEntryType = "UNSTAKED"
	LedgerStakeReleased       LedgerEntryType = "STAKE_RELEASED"
	LedgerRebalanceStarted    LedgerEntryType = "REBALANCE_STARTED"
	LedgerAllocationYield     LedgerEntryType = "ALLOCATION_YIELD"
	LedgerAllocationWithdrawn LedgerEntryType = "ALLOCATION_WITHDRAWN"
	LedgerWithdrawalQueued    LedgerEntryType = "WITHDRAWAL_QUEUED"
	LedgerWithdrawalPaid      LedgerEntryType = "WITHDRAWAL_PAID"
	LedgerWithdrawalRestored  LedgerEntryType = "WITHDRAWAL_RESTORED"
)

// LedgerEntry is an append-only audit record written in the same transaction as the change it describes
type LedgerEntry struct {
	ID          uuid.UUID       `json:"id"`
	ClientID    uuid.UUID       `json:"clientId"`
	VaultID     uuid.UUID       `json:"vaultId"`
	UserID      *uuid.UUID      `json:"userId,omitempty"`
	EntryType   LedgerEntryType `json:"entryType"`
	Amount      decimal.Decimal `json:"amount"`
	Units       decimal.Decimal `json:"units"`
	Index       decimal.Decimal `json:"index"`
	ReferenceID *uuid.UUID      `json:"referenceId,omitempty"`
	Metadata    string          `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}
