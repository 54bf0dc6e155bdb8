package usecases

import (
	"time"

	"github.com/shopspring/decimal"
	"yield-vault.backend/internal/domain/entities"
)

// Engine defaults, overridden by config.EngineConfig
var (
	DefaultMinStakeThreshold = decimal.NewFromInt(100)
	DefaultWeightTolerance   = decimal.RequireFromString("0.01")
	DefaultMaxRiskTier       = entities.RiskTierMedium
)

const (
	DefaultRetryMaxElapsed  = 15 * time.Second
	DefaultRetryMaxAttempts = 5
	DefaultBatchSize        = 100

	retryInitialInterval = 25 * time.Millisecond
	retryMaxInterval     = 1 * time.Second

	maxOrderIDLength = 255
	maxAddressLength = 128
)

// Operation names used for metrics and logs
const (
	opApplyYield         = "apply_yield"
	opCreditIdle         = "credit_idle"
	opDebitIdle          = "debit_idle"
	opStake              = "stake"
	opUnstake            = "unstake"
	opGetOrCreateAlloc   = "get_or_create_allocation"
	opDeploy             = "deploy"
	opStakeIdle          = "stake_idle"
	opRebalance          = "rebalance"
	opConfirmInstruction = "confirm_instruction"
	opFailInstruction    = "fail_instruction"
	opRecordYield        = "record_yield"
	opMarkWithdrawn      = "mark_withdrawn"
	opCreateDeposit      = "create_deposit"
	opCompleteDeposit    = "complete_deposit"
	opFailDeposit        = "fail_deposit"
	opRequestWithdrawal  = "request_withdrawal"
	opCancelWithdrawal   = "cancel_withdrawal"
	opQueueWithdrawal    = "queue_withdrawal"
	opAggregate          = "aggregate"
	opConfirmUnstake     = "confirm_unstake"
	opInitiatePayout     = "initiate_payout"
	opConfirmPayout      = "confirm_payout"
	opFailWithdrawal     = "fail_withdrawal"
	opFailBatch          = "fail_batch"
)
