package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
)

// DepositStatus represents deposit status
type DepositStatus string

const (
	DepositStatusPending   DepositStatus = "PENDING"
	DepositStatusCompleted DepositStatus = "COMPLETED"
	DepositStatusFailed    DepositStatus = "FAILED"
)

// IsTerminal reports whether no further transition is allowed.
func (s DepositStatus) IsTerminal() bool {
	return s == DepositStatusCompleted || s == DepositStatusFailed
}

// Deposit represents an incoming payment that mints units once confirmed
type Deposit struct {
	ID                uuid.UUID       `json:"id"`
	OrderID           string          `json:"orderId"`
	ClientID          uuid.UUID       `json:"clientId"`
	UserID            uuid.UUID       `json:"userId"`
	VaultID           uuid.UUID       `json:"vaultId"`
	Amount            decimal.Decimal `json:"amount"`
	ConfirmedAmount   decimal.Decimal `json:"confirmedAmount"`
	UnitsMinted       decimal.Decimal `json:"unitsMinted"`
	IndexAtCompletion decimal.Decimal `json:"indexAtCompletion"`
	Status            DepositStatus   `json:"status"`
	FailureReason     null.String     `json:"failureReason,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
	CompletedAt       *time.Time      `json:"completedAt,omitempty"`
	FailedAt          *time.Time      `json:"failedAt,omitempty"`
}

// CreateDepositInput represents input for accepting a deposit request
type CreateDepositInput struct {
	OrderID      string          `json:"orderId"`
	ClientID     uuid.UUID       `json:"clientId"`
	UserID       uuid.UUID       `json:"userId"`
	Chain        string          `json:"chain"`
	TokenAddress string          `json:"tokenAddress"`
	TokenSymbol  string          `json:"tokenSymbol"`
	Environment  string          `json:"environment"`
	Amount       decimal.Decimal `json:"amount"`
}

// PaymentConfirmation is the inbound event from the payment collaborator
type PaymentConfirmation struct {
	DepositID       uuid.UUID       `json:"depositId"`
	ConfirmedAmount decimal.Decimal `json:"confirmedAmount"`
	Currency        string          `json:"currency"`
}
