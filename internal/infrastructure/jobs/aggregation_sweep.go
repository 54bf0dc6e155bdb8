package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"yield-vault.backend/internal/domain/entities"
	"yield-vault.backend/internal/infrastructure/metrics"
	"yield-vault.backend/pkg/logger"
	"yield-vault.backend/pkg/redis"
)

type withdrawalAggregator interface {
	ListClientsWithQueued(ctx context.Context, limit int) ([]uuid.UUID, error)
	Aggregate(ctx context.Context, clientID uuid.UUID) (*entities.AggregationResult, error)
}

type releaser interface {
	Release(ctx context.Context) error
}

// AggregationSweepJob batches each client's queued withdrawals.
// A redis lease keeps two replicas from aggregating the same client at once.
type AggregationSweepJob struct {
	runner
	withdrawals withdrawalAggregator
	batchSize   int
	concurrency int
	leaseTTL    time.Duration
	acquire     func(ctx context.Context, name string, ttl time.Duration) (releaser, error)
}

func NewAggregationSweepJob(withdrawals withdrawalAggregator, interval time.Duration, batchSize, concurrency int, leaseTTL time.Duration, m *metrics.EngineMetrics) *AggregationSweepJob {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &AggregationSweepJob{
		runner:      newRunner("aggregation_sweep", interval, m),
		withdrawals: withdrawals,
		batchSize:   batchSize,
		concurrency: concurrency,
		leaseTTL:    leaseTTL,
		acquire: func(ctx context.Context, name string, ttl time.Duration) (releaser, error) {
			return redis.AcquireLease(ctx, name, ttl)
		},
	}
}

func (j *AggregationSweepJob) Start(ctx context.Context) {
	j.loop(ctx, j.sweep)
}

func (j *AggregationSweepJob) sweep(ctx context.Context) error {
	clients, err := j.withdrawals.ListClientsWithQueued(ctx, j.batchSize)
	if err != nil {
		return err
	}

	var (
		mu   sync.Mutex
		errs error
		g    errgroup.Group
	)
	g.SetLimit(j.concurrency)
	for _, clientID := range clients {
		g.Go(func() error {
			if err := j.aggregateClient(ctx, clientID); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func (j *AggregationSweepJob) aggregateClient(ctx context.Context, clientID uuid.UUID) error {
	lease, err := j.acquire(ctx, "aggregate:"+clientID.String(), j.leaseTTL)
	if errors.Is(err, redis.ErrLeaseHeld) {
		logger.Debug(ctx, "Client aggregation running elsewhere", zap.String("clientId", clientID.String()))
		return nil
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := lease.Release(ctx); err != nil {
			logger.Warn(ctx, "Failed to release aggregation lease", zap.String("clientId", clientID.String()), zap.Error(err))
		}
	}()

	res, err := j.withdrawals.Aggregate(ctx, clientID)
	if err != nil {
		return err
	}
	if len(res.Instructions) > 0 || len(res.ReadyItemIDs) > 0 {
		logger.Info(ctx, "Aggregated withdrawals",
			zap.String("clientId", clientID.String()),
			zap.Int("batches", len(res.Instructions)),
			zap.Int("ready", len(res.ReadyItemIDs)),
			zap.Int("unstaking", len(res.UnstakingItemIDs)),
		)
	}
	return nil
}
