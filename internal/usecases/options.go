package usecases

import (
	"time"

	"github.com/shopspring/decimal"
	"yield-vault.backend/internal/config"
	"yield-vault.backend/internal/domain/entities"
	"yield-vault.backend/internal/infrastructure/metrics"
)

// EngineOptions carries the tunables shared by the accounting usecases
type EngineOptions struct {
	MinStakeThreshold    decimal.Decimal
	WithdrawalFeePercent decimal.Decimal
	NetworkFee           decimal.Decimal
	WeightTolerance      decimal.Decimal
	MaxRiskTier          entities.RiskTier
	BatchSize            int
	RetryMaxElapsed      time.Duration
	RetryMaxAttempts     int
	// Metrics may be nil.
	Metrics *metrics.EngineMetrics
}

// DefaultEngineOptions returns options with no fees and the default thresholds
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		MinStakeThreshold:    DefaultMinStakeThreshold,
		WithdrawalFeePercent: decimal.Zero,
		NetworkFee:           decimal.Zero,
		WeightTolerance:      DefaultWeightTolerance,
		MaxRiskTier:          DefaultMaxRiskTier,
		BatchSize:            DefaultBatchSize,
		RetryMaxElapsed:      DefaultRetryMaxElapsed,
		RetryMaxAttempts:     DefaultRetryMaxAttempts,
	}
}

// EngineOptionsFromConfig maps loaded configuration onto engine options
func EngineOptionsFromConfig(cfg *config.Config, m *metrics.EngineMetrics) EngineOptions {
	opts := DefaultEngineOptions()
	opts.MinStakeThreshold = cfg.Engine.MinStakeThreshold
	opts.WithdrawalFeePercent = cfg.Engine.WithdrawalFeePercent
	opts.NetworkFee = cfg.Engine.NetworkFee
	opts.WeightTolerance = cfg.Engine.WeightTolerance
	if cfg.Engine.MaxRiskTier != "" {
		opts.MaxRiskTier = entities.RiskTier(cfg.Engine.MaxRiskTier)
	}
	if cfg.Jobs.BatchSize > 0 {
		opts.BatchSize = cfg.Jobs.BatchSize
	}
	opts.RetryMaxElapsed = cfg.Engine.RetryMaxElapsed
	opts.RetryMaxAttempts = cfg.Engine.RetryMaxAttempts
	opts.Metrics = m
	return opts
}
