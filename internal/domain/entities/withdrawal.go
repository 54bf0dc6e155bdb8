package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
)

// WithdrawalStatus represents the user-facing withdrawal status
type WithdrawalStatus string

const (
	WithdrawalStatusPending   WithdrawalStatus = "PENDING"
	WithdrawalStatusQueued    WithdrawalStatus = "QUEUED"
	WithdrawalStatusCompleted WithdrawalStatus = "COMPLETED"
	WithdrawalStatusFailed    WithdrawalStatus = "FAILED"
)

// IsTerminal reports whether no further transition is allowed.
func (s WithdrawalStatus) IsTerminal() bool {
	return s == WithdrawalStatusCompleted || s == WithdrawalStatusFailed
}

// QueueItemStatus represents the settlement sub-process status
type QueueItemStatus string

const (
	QueueItemStatusQueued     QueueItemStatus = "queued"
	QueueItemStatusUnstaking  QueueItemStatus = "unstaking"
	QueueItemStatusReady      QueueItemStatus = "ready"
	QueueItemStatusProcessing QueueItemStatus = "processing"
	QueueItemStatusCompleted  QueueItemStatus = "completed"
	QueueItemStatusFailed     QueueItemStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s QueueItemStatus) IsTerminal() bool {
	return s == QueueItemStatusCompleted || s == QueueItemStatusFailed
}

// DestinationType is the closed set of payout destinations
type DestinationType string

const (
	DestinationBankAccount    DestinationType = "bank_account"
	DestinationOnchainAddress DestinationType = "onchain_address"
	DestinationClientBalance  DestinationType = "client_balance"
)

// Destination is a tagged payout target. Only the fields of its Type are set.
type Destination struct {
	Type             DestinationType `json:"type"`
	BankAccountRef   string          `json:"bankAccountRef,omitempty"`
	Chain            string          `json:"chain,omitempty"`
	Address          string          `json:"address,omitempty"`
	ClientAccountRef string          `json:"clientAccountRef,omitempty"`
}

// BankAccountDestination pays out to a bank account reference held by the settlement partner.
func BankAccountDestination(ref string) Destination {
	return Destination{Type: DestinationBankAccount, BankAccountRef: ref}
}

// OnchainDestination pays out to an address on a chain.
func OnchainDestination(chain, address string) Destination {
	return Destination{Type: DestinationOnchainAddress, Chain: chain, Address: address}
}

// ClientBalanceDestination transfers into the client's internal balance.
func ClientBalanceDestination(ref string) Destination {
	return Destination{Type: DestinationClientBalance, ClientAccountRef: ref}
}

// WithdrawalTransaction is the user-initiated withdrawal record
type WithdrawalTransaction struct {
	ID              uuid.UUID        `json:"id"`
	OrderID         string           `json:"orderId"`
	ClientID        uuid.UUID        `json:"clientId"`
	UserID          uuid.UUID        `json:"userId"`
	VaultID         uuid.UUID        `json:"vaultId"`
	RequestedAmount decimal.Decimal  `json:"requestedAmount"`
	ActualAmount    decimal.Decimal  `json:"actualAmount"`
	WithdrawalFee   decimal.Decimal  `json:"withdrawalFee"`
	NetworkFee      decimal.Decimal  `json:"networkFee"`
	Currency        string           `json:"currency"`
	Destination     Destination      `json:"destination"`
	Priority        int              `json:"priority"`
	Status          WithdrawalStatus `json:"status"`
	ErrorMessage    null.String      `json:"errorMessage,omitempty"`
	ErrorCode       null.String      `json:"errorCode,omitempty"`
	TransactionHash null.String      `json:"transactionHash,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
	CompletedAt     *time.Time       `json:"completedAt,omitempty"`
	FailedAt        *time.Time       `json:"failedAt,omitempty"`
}

// ProtocolUnstake is one protocol leg of a withdrawal's liquidity plan
type ProtocolUnstake struct {
	ProtocolID      uuid.UUID       `json:"protocolId"`
	AllocationID    uuid.UUID       `json:"allocationId"`
	Amount          decimal.Decimal `json:"amount"`
	ConfirmedAmount decimal.Decimal `json:"confirmedAmount"`
	BatchID         *uuid.UUID      `json:"batchId,omitempty"`
}

// Outstanding is the part of the leg not yet confirmed.
func (l *ProtocolUnstake) Outstanding() decimal.Decimal {
	return NonNegative(l.Amount.Sub(l.ConfirmedAmount))
}

// Settled reports whether the leg has been fully unstaked.
func (l *ProtocolUnstake) Settled() bool {
	return l.ConfirmedAmount.GreaterThanOrEqual(l.Amount)
}

// WithdrawalQueueItem models settlement of one withdrawal separately from the user-facing record
type WithdrawalQueueItem struct {
	ID                      uuid.UUID          `json:"id"`
	ClientID                uuid.UUID          `json:"clientId"`
	WithdrawalTransactionID uuid.UUID          `json:"withdrawalTransactionId"`
	VaultID                 uuid.UUID          `json:"vaultId"`
	UserID                  uuid.UUID          `json:"userId"`
	UnitsToBurn             decimal.Decimal    `json:"unitsToBurn"`
	IndexAtBurn             decimal.Decimal    `json:"indexAtBurn"`
	CostBasis               decimal.Decimal    `json:"costBasis"`
	EstimatedAmount         decimal.Decimal    `json:"estimatedAmount"`
	ActualAmount            decimal.Decimal    `json:"actualAmount"`
	ReservedIdle            decimal.Decimal    `json:"reservedIdle"`
	ProtocolsToUnstake      []*ProtocolUnstake `json:"protocolsToUnstake"`
	Priority                int                `json:"priority"`
	Status                  QueueItemStatus    `json:"status"`
	FailureReason           null.String        `json:"failureReason,omitempty"`
	QueuedAt                time.Time          `json:"queuedAt"`
	UnstakingStartedAt      *time.Time         `json:"unstakingStartedAt,omitempty"`
	ReadyAt                 *time.Time         `json:"readyAt,omitempty"`
	ProcessingAt            *time.Time         `json:"processingAt,omitempty"`
	CompletedAt             *time.Time         `json:"completedAt,omitempty"`
	FailedAt                *time.Time         `json:"failedAt,omitempty"`
	UpdatedAt               time.Time          `json:"updatedAt"`
}

// NeedsUnstake reports whether any leg is still outstanding.
func (q *WithdrawalQueueItem) NeedsUnstake() bool {
	for _, leg := range q.ProtocolsToUnstake {
		if !leg.Settled() {
			return true
		}
	}
	return false
}

// UnstakedSoFar sums confirmed leg amounts.
func (q *WithdrawalQueueItem) UnstakedSoFar() decimal.Decimal {
	total := decimal.Zero
	for _, leg := range q.ProtocolsToUnstake {
		total = total.Add(leg.ConfirmedAmount)
	}
	return total
}

// Leg returns the leg for a protocol, if planned.
func (q *WithdrawalQueueItem) Leg(protocolID uuid.UUID) *ProtocolUnstake {
	for _, leg := range q.ProtocolsToUnstake {
		if leg.ProtocolID == protocolID {
			return leg
		}
	}
	return nil
}

// RequestWithdrawalInput represents input for a user withdrawal request
type RequestWithdrawalInput struct {
	OrderID     string          `json:"orderId"`
	ClientID    uuid.UUID       `json:"clientId"`
	UserID      uuid.UUID       `json:"userId"`
	VaultID     uuid.UUID       `json:"vaultId"`
	Amount      decimal.Decimal `json:"amount"`
	Destination Destination     `json:"destination"`
	Priority    int             `json:"priority"`
}

// UnstakeConfirmation is the inbound on-chain unstake confirmation. Exactly one of QueueItemID or BatchID is set.
type UnstakeConfirmation struct {
	QueueItemID     *uuid.UUID      `json:"queueItemId,omitempty"`
	BatchID         *uuid.UUID      `json:"aggregationBatchId,omitempty"`
	ProtocolID      uuid.UUID       `json:"protocolId"`
	ConfirmedAmount decimal.Decimal `json:"confirmedAmount"`
}

// PayoutConfirmation is the inbound payout confirmation
type PayoutConfirmation struct {
	QueueItemID     uuid.UUID `json:"queueItemId"`
	TransactionHash string    `json:"transactionHash"`
}

// WithdrawalStatusView is the query-side status of a withdrawal by order id
type WithdrawalStatusView struct {
	Transaction *WithdrawalTransaction `json:"transaction"`
	QueueItem   *WithdrawalQueueItem   `json:"queueItem,omitempty"`
}

// AggregationResult is the outcome of one aggregation pass for a client
type AggregationResult struct {
	ClientID         uuid.UUID              `json:"clientId"`
	Instructions     []*ProtocolInstruction `json:"instructions"`
	ReadyItemIDs     []uuid.UUID            `json:"readyItemIds"`
	UnstakingItemIDs []uuid.UUID            `json:"unstakingItemIds"`
}
