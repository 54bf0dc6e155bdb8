package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"yield-vault.backend/internal/domain/entities"
	domainerrors "yield-vault.backend/internal/domain/errors"
	"yield-vault.backend/internal/infrastructure/metrics"
	"yield-vault.backend/pkg/logger"
)

type payoutInitiator interface {
	ListReady(ctx context.Context, limit int) ([]*entities.WithdrawalQueueItem, error)
	InitiatePayout(ctx context.Context, itemID uuid.UUID) (*entities.PayoutInstruction, error)
}

// PayoutDispatchJob moves ready withdrawals to processing
type PayoutDispatchJob struct {
	runner
	withdrawals payoutInitiator
	batchSize   int
}

func NewPayoutDispatchJob(withdrawals payoutInitiator, interval time.Duration, batchSize int, m *metrics.EngineMetrics) *PayoutDispatchJob {
	return &PayoutDispatchJob{
		runner:      newRunner("payout_dispatch", interval, m),
		withdrawals: withdrawals,
		batchSize:   batchSize,
	}
}

func (j *PayoutDispatchJob) Start(ctx context.Context) {
	j.loop(ctx, j.dispatch)
}

func (j *PayoutDispatchJob) dispatch(ctx context.Context) error {
	ready, err := j.withdrawals.ListReady(ctx, j.batchSize)
	if err != nil {
		return err
	}
	var errs error
	initiated := 0
	for _, item := range ready {
		if _, err := j.withdrawals.InitiatePayout(ctx, item.ID); err != nil {
			// an item short on idle waits for the next run
			if errors.Is(err, domainerrors.ErrInsufficientLiquidity) {
				logger.Warn(ctx, "Payout waiting for liquidity", zap.String("queueItemId", item.ID.String()), zap.Error(err))
				continue
			}
			errs = multierr.Append(errs, err)
			continue
		}
		initiated++
	}
	if initiated > 0 {
		logger.Info(ctx, "Initiated payouts", zap.Int("count", initiated))
	}
	return errs
}
