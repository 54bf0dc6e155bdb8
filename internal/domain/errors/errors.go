package errors

import "errors"

// Domain errors
var (
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")
	ErrInvalidInput  = errors.New("invalid input")

	// ErrValidation covers malformed or out-of-range input. Rejected synchronously, no state change.
	ErrValidation                = errors.New("validation error")
	ErrInvalidAmount             = wrap(ErrValidation, "invalid amount")
	ErrInvalidYieldAmount        = wrap(ErrValidation, "invalid yield amount")
	ErrInvalidAllocationWeights  = wrap(ErrValidation, "invalid allocation weights")
	ErrInvalidDestination        = wrap(ErrValidation, "invalid destination")
	ErrProtocolInactive          = wrap(ErrValidation, "protocol inactive")
	ErrAllocationNotWithdrawable = wrap(ErrValidation, "allocation still holds funds")

	// ErrInsufficientBalance is returned when a debit would overdraw a balance.
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrInsufficientIdleBalance = wrap(ErrInsufficientBalance, "insufficient idle balance")
	ErrInsufficientLiquidity   = wrap(ErrInsufficientBalance, "insufficient vault liquidity")

	// ErrConcurrencyTimeout means a row lock was not acquired in time. Callers retry.
	ErrConcurrencyTimeout = errors.New("concurrency timeout")

	// ErrConfirmationMismatch marks a confirmation for an item in a terminal or
	// incompatible state. Logged and ignored to tolerate redelivery.
	ErrConfirmationMismatch = errors.New("external confirmation mismatch")

	// ErrSettlementFailure is a permanent unstake or payout failure.
	ErrSettlementFailure = errors.New("settlement failure")
)

// Error codes
const (
	CodeNotFound             = "NOT_FOUND"
	CodeConflict             = "CONFLICT"
	CodeInvalidInput         = "INVALID_INPUT"
	CodeInsufficientBalance  = "INSUFFICIENT_BALANCE"
	CodeConcurrencyTimeout   = "CONCURRENCY_TIMEOUT"
	CodeConfirmationMismatch = "CONFIRMATION_MISMATCH"
	CodeSettlementFailed     = "SETTLEMENT_FAILED"
	CodeCancelled            = "CANCELLED"
	CodeInternalError        = "INTERNAL_ERROR"
)

type wrappedError struct {
	parent error
	msg    string
}

func wrap(parent error, msg string) error {
	return &wrappedError{parent: parent, msg: msg}
}

func (e *wrappedError) Error() string { return e.msg }

func (e *wrappedError) Unwrap() error { return e.parent }

// CodeOf maps an engine error onto its stable error code.
func CodeOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrAlreadyExists):
		return CodeConflict
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrInsufficientBalance):
		return CodeInsufficientBalance
	case errors.Is(err, ErrConcurrencyTimeout):
		return CodeConcurrencyTimeout
	case errors.Is(err, ErrConfirmationMismatch):
		return CodeConfirmationMismatch
	case errors.Is(err, ErrSettlementFailure):
		return CodeSettlementFailed
	default:
		return CodeInternalError
	}
}
