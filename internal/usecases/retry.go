package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	domainerrors "yield-vault.backend/internal/domain/errors"
	"yield-vault.backend/internal/domain/repositories"
	"yield-vault.backend/pkg/logger"
)

func (o EngineOptions) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	b.MaxElapsedTime = o.RetryMaxElapsed

	var policy backoff.BackOff = b
	if o.RetryMaxAttempts > 0 {
		policy = backoff.WithMaxRetries(policy, uint64(o.RetryMaxAttempts))
	}
	return backoff.WithContext(policy, ctx)
}

// runInTx runs fn in one unit of work and retries it while row locks time out.
// Any other error aborts immediately. fn must not call back into runInTx.
func runInTx(ctx context.Context, uow repositories.UnitOfWork, opts EngineOptions, op string, fn func(txCtx context.Context) error) error {
	started := time.Now()
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := uow.Do(ctx, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, domainerrors.ErrConcurrencyTimeout) {
			opts.Metrics.ObserveLockRetry(op)
			logger.Warn(ctx, "Row lock not acquired, retrying",
				zap.String("operation", op),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		return backoff.Permanent(err)
	}, opts.retryPolicy(ctx))

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		err = fmt.Errorf("%w: %s: %v", domainerrors.ErrConcurrencyTimeout, op, err)
	}
	opts.Metrics.ObserveOperation(op, started, err)
	return err
}
