package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	domainerrors "yield-vault.backend/internal/domain/errors"
	"yield-vault.backend/internal/infrastructure/metrics"
	"yield-vault.backend/pkg/logger"
)

// runner is the ticker loop every sweep is built on
type runner struct {
	name     string
	interval time.Duration
	metrics  *metrics.EngineMetrics
	stop     chan struct{}
	stopOnce sync.Once
}

func newRunner(name string, interval time.Duration, m *metrics.EngineMetrics) runner {
	return runner{
		name:     name,
		interval: interval,
		metrics:  m,
		stop:     make(chan struct{}),
	}
}

func (r *runner) loop(ctx context.Context, tick func(context.Context) error) {
	ctx = logger.WithJob(ctx, r.name)
	logger.Info(ctx, "Starting job", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Job stopped (context cancelled)")
			return
		case <-r.stop:
			logger.Info(ctx, "Job stopped")
			return
		case <-ticker.C:
			r.runOnce(ctx, tick)
		}
	}
}

func (r *runner) runOnce(ctx context.Context, tick func(context.Context) error) {
	err := tick(ctx)
	r.metrics.ObserveJobRun(r.name, err)
	if err != nil {
		logger.Error(ctx, "Job run finished with errors", zap.String("code", domainerrors.CodeOf(err)), zap.Error(err))
	}
}

// Stop ends the loop. Calling it twice is safe.
func (r *runner) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}
