package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"yield-vault.backend/internal/domain/entities"
	domainerrors "yield-vault.backend/internal/domain/errors"
	"yield-vault.backend/internal/infrastructure/metrics"
	"yield-vault.backend/pkg/logger"
	"yield-vault.backend/pkg/redis"
)

// Confirmation kinds carried in the "kind" field of a confirmation message
const (
	ConfirmationPayment     = "payment"
	ConfirmationInstruction = "instruction"
	ConfirmationUnstake     = "unstake"
	ConfirmationPayout      = "payout"
	ConfirmationYield       = "yield"
)

const confirmationGroup = "vault-engine"

type paymentConfirmer interface {
	OnPaymentConfirmed(ctx context.Context, evt *entities.PaymentConfirmation) (*entities.Deposit, error)
}

type allocationConfirmer interface {
	ConfirmInstruction(ctx context.Context, instructionID uuid.UUID, confirmed decimal.Decimal) (*entities.ProtocolInstruction, error)
	RecordYield(ctx context.Context, allocationID uuid.UUID, newBalance, yieldDelta, apy decimal.Decimal) (*entities.YieldResult, error)
}

type withdrawalConfirmer interface {
	ConfirmUnstake(ctx context.Context, c *entities.UnstakeConfirmation) ([]*entities.WithdrawalQueueItem, error)
	ConfirmPayout(ctx context.Context, c *entities.PayoutConfirmation) (*entities.WithdrawalQueueItem, error)
}

type instructionConfirmation struct {
	InstructionID   uuid.UUID       `json:"instructionId"`
	ConfirmedAmount decimal.Decimal `json:"confirmedAmount"`
}

type yieldReport struct {
	AllocationID uuid.UUID       `json:"allocationId"`
	NewBalance   decimal.Decimal `json:"newBalance"`
	YieldDelta   decimal.Decimal `json:"yieldDelta"`
	APY          decimal.Decimal `json:"apy"`
}

type streamReader interface {
	EnsureGroup(ctx context.Context, stream, group string) error
	ReadGroup(ctx context.Context, stream, group, consumer, id string, count int64) ([]goredis.XMessage, error)
	Ack(ctx context.Context, stream, group string, ids ...string) error
}

type redisStreams struct{}

func (redisStreams) EnsureGroup(ctx context.Context, stream, group string) error {
	return redis.EnsureGroup(ctx, stream, group)
}

func (redisStreams) ReadGroup(ctx context.Context, stream, group, consumer, id string, count int64) ([]goredis.XMessage, error) {
	return redis.ReadGroup(ctx, stream, group, consumer, id, count)
}

func (redisStreams) Ack(ctx context.Context, stream, group string, ids ...string) error {
	return redis.Ack(ctx, stream, group, ids...)
}

// ConfirmationConsumerJob applies inbound confirmations from the confirmation stream.
// A message is acknowledged once it is applied or permanently rejected; lock
// timeouts and infrastructure errors leave it pending so the next run retries it.
type ConfirmationConsumerJob struct {
	runner
	deposits    paymentConfirmer
	allocations allocationConfirmer
	withdrawals withdrawalConfirmer
	streams     streamReader
	consumer    string
	batchSize   int
	grouped     bool
}

func NewConfirmationConsumerJob(deposits paymentConfirmer, allocations allocationConfirmer, withdrawals withdrawalConfirmer, interval time.Duration, batchSize int, m *metrics.EngineMetrics) *ConfirmationConsumerJob {
	return &ConfirmationConsumerJob{
		runner:      newRunner("confirmation_consumer", interval, m),
		deposits:    deposits,
		allocations: allocations,
		withdrawals: withdrawals,
		streams:     redisStreams{},
		consumer:    "engine-" + uuid.NewString(),
		batchSize:   batchSize,
	}
}

func (j *ConfirmationConsumerJob) Start(ctx context.Context) {
	j.loop(ctx, j.consume)
}

func (j *ConfirmationConsumerJob) consume(ctx context.Context) error {
	if !j.grouped {
		if err := j.streams.EnsureGroup(ctx, redis.ConfirmationStream, confirmationGroup); err != nil {
			return err
		}
		j.grouped = true
	}

	// retry our own unacknowledged messages before taking new ones
	var errs error
	for _, id := range []string{"0", ">"} {
		msgs, err := j.streams.ReadGroup(ctx, redis.ConfirmationStream, confirmationGroup, j.consumer, id, int64(j.batchSize))
		if err != nil {
			return multierr.Append(errs, err)
		}
		acked := make([]string, 0, len(msgs))
		for _, msg := range msgs {
			if err := j.apply(ctx, msg); err != nil {
				if retryable(err) {
					errs = multierr.Append(errs, err)
					continue
				}
				logger.Warn(ctx, "Dropping confirmation",
					zap.String("messageId", msg.ID),
					zap.String("code", domainerrors.CodeOf(err)),
					zap.Error(err),
				)
			}
			acked = append(acked, msg.ID)
		}
		errs = multierr.Append(errs, j.streams.Ack(ctx, redis.ConfirmationStream, confirmationGroup, acked...))
		if len(acked) > 0 {
			logger.Info(ctx, "Consumed confirmations", zap.Int("count", len(acked)))
		}
	}
	return errs
}

func (j *ConfirmationConsumerJob) apply(ctx context.Context, msg goredis.XMessage) error {
	kind, _ := msg.Values["kind"].(string)
	payload, _ := msg.Values["payload"].(string)
	decode := func(v interface{}) error {
		if err := json.Unmarshal([]byte(payload), v); err != nil {
			return fmt.Errorf("%w: %s payload: %v", domainerrors.ErrInvalidInput, kind, err)
		}
		return nil
	}

	switch kind {
	case ConfirmationPayment:
		var evt entities.PaymentConfirmation
		if err := decode(&evt); err != nil {
			return err
		}
		_, err := j.deposits.OnPaymentConfirmed(ctx, &evt)
		return err
	case ConfirmationInstruction:
		var c instructionConfirmation
		if err := decode(&c); err != nil {
			return err
		}
		_, err := j.allocations.ConfirmInstruction(ctx, c.InstructionID, c.ConfirmedAmount)
		return err
	case ConfirmationUnstake:
		var c entities.UnstakeConfirmation
		if err := decode(&c); err != nil {
			return err
		}
		_, err := j.withdrawals.ConfirmUnstake(ctx, &c)
		return err
	case ConfirmationPayout:
		var c entities.PayoutConfirmation
		if err := decode(&c); err != nil {
			return err
		}
		_, err := j.withdrawals.ConfirmPayout(ctx, &c)
		return err
	case ConfirmationYield:
		var r yieldReport
		if err := decode(&r); err != nil {
			return err
		}
		_, err := j.allocations.RecordYield(ctx, r.AllocationID, r.NewBalance, r.YieldDelta, r.APY)
		return err
	default:
		return fmt.Errorf("%w: unknown confirmation kind %q", domainerrors.ErrInvalidInput, kind)
	}
}

// retryable reports whether a failed confirmation should stay pending
func retryable(err error) bool {
	return errors.Is(err, domainerrors.ErrConcurrencyTimeout) || domainerrors.CodeOf(err) == domainerrors.CodeInternalError
}
