package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"yield-vault.backend/internal/domain/entities"
	"yield-vault.backend/internal/infrastructure/metrics"
	"yield-vault.backend/pkg/logger"
)

type readyVaultLister interface {
	ListReadyForStaking(ctx context.Context, limit int) ([]*entities.Vault, error)
}

type idleStaker interface {
	SweepWeights(ctx context.Context, vault *entities.Vault) ([]entities.WeightedProtocol, error)
	StakeIdle(ctx context.Context, vaultID uuid.UUID, weights []entities.WeightedProtocol) ([]*entities.ProtocolInstruction, error)
}

// StakeSweepJob stakes free idle of every vault above its staking threshold
type StakeSweepJob struct {
	runner
	vaults    readyVaultLister
	staker    idleStaker
	batchSize int
}

func NewStakeSweepJob(vaults readyVaultLister, staker idleStaker, interval time.Duration, batchSize int, m *metrics.EngineMetrics) *StakeSweepJob {
	return &StakeSweepJob{
		runner:    newRunner("stake_sweep", interval, m),
		vaults:    vaults,
		staker:    staker,
		batchSize: batchSize,
	}
}

func (j *StakeSweepJob) Start(ctx context.Context) {
	j.loop(ctx, j.sweep)
}

func (j *StakeSweepJob) sweep(ctx context.Context) error {
	ready, err := j.vaults.ListReadyForStaking(ctx, j.batchSize)
	if err != nil {
		return err
	}
	var errs error
	staked := 0
	for _, v := range ready {
		weights, err := j.staker.SweepWeights(ctx, v)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if len(weights) == 0 {
			logger.Debug(ctx, "No eligible protocol for vault", zap.String("vaultId", v.ID.String()), zap.String("chain", v.Chain))
			continue
		}
		instructions, err := j.staker.StakeIdle(ctx, v.ID, weights)
		if err != nil {
			logger.Warn(ctx, "Stake sweep skipped vault", zap.String("vaultId", v.ID.String()), zap.Error(err))
			errs = multierr.Append(errs, err)
			continue
		}
		staked += len(instructions)
	}
	if staked > 0 {
		logger.Info(ctx, "Emitted stake instructions", zap.Int("count", staked), zap.Int("vaults", len(ready)))
	}
	return errs
}
