package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"yield-vault.backend/internal/config"
	"yield-vault.backend/internal/infrastructure/datasources/postgres"
	"yield-vault.backend/internal/infrastructure/jobs"
	"yield-vault.backend/internal/infrastructure/metrics"
	"yield-vault.backend/internal/infrastructure/repositories"
	"yield-vault.backend/internal/usecases"
	"yield-vault.backend/pkg/logger"
	"yield-vault.backend/pkg/redis"
)

var (
	loadDotenv = godotenv.Load
	loadCfg    = config.Load
	initLog    = logger.Init
	initRedis  = redis.Init
	openDB     = postgres.NewConnection
	migrate    = postgres.Migrate
	runServer  = func(r *gin.Engine, port string) error { return r.Run(":" + port) }
)

type job interface {
	Start(ctx context.Context)
	Stop()
}

func main() {
	if err := runMainProcess(); err != nil {
		log.Fatal(err)
	}
}

func runMainProcess() error {
	if err := loadDotenv(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	cfg := loadCfg()

	initLog(cfg.Server.Env)
	defer logger.Sync()
	ctx := context.Background()
	logger.Info(ctx, "Logger initialized", zap.String("env", cfg.Server.Env))

	if err := initRedis(cfg.Redis.URL, cfg.Redis.PASSWORD); err != nil {
		logger.Error(ctx, "Failed to initialize Redis", zap.Error(err))
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	logger.Info(ctx, "Redis initialized")

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := openDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := migrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	logger.Info(ctx, "Connected to PostgreSQL via GORM")

	jobsToRun := buildJobs(db, cfg)

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	for _, j := range jobsToRun {
		go j.Start(jobCtx)
	}

	r := newOpsRouter()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info(ctx, "Shutting down")
		for _, j := range jobsToRun {
			j.Stop()
		}
		cancel()
	}()

	logger.Info(ctx, "Vault engine starting", zap.String("port", cfg.Server.Port))
	if err := runServer(r, cfg.Server.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// buildJobs wires repositories and usecases into the background sweeps
func buildJobs(db *gorm.DB, cfg *config.Config) []job {
	m := metrics.Engine()
	opts := usecases.EngineOptionsFromConfig(cfg, m)
	uow := repositories.NewUnitOfWork(db, cfg.Engine.LockTimeout)

	vaultRepo := repositories.NewVaultRepository(db)
	positionRepo := repositories.NewPositionRepository(db)
	allocationRepo := repositories.NewAllocationRepository(db)
	protocolRepo := repositories.NewProtocolRepository(db)
	instructionRepo := repositories.NewInstructionRepository(db)
	withdrawalRepo := repositories.NewWithdrawalRepository(db)
	ledgerRepo := repositories.NewLedgerEntryRepository(db)
	depositRepo := repositories.NewDepositRepository(db)

	indexUsecase := usecases.NewVaultIndexUsecase(uow, vaultRepo, ledgerRepo, opts)
	allocationUsecase := usecases.NewAllocationUsecase(uow, vaultRepo, allocationRepo, protocolRepo, instructionRepo, ledgerRepo, opts)
	depositUsecase := usecases.NewDepositUsecase(uow, vaultRepo, depositRepo, positionRepo, ledgerRepo, opts)
	withdrawalUsecase := usecases.NewWithdrawalUsecase(uow, vaultRepo, positionRepo, allocationRepo, withdrawalRepo, instructionRepo, ledgerRepo, opts)

	return []job{
		jobs.NewStakeSweepJob(indexUsecase, allocationUsecase, cfg.Jobs.StakeSweepInterval, cfg.Jobs.BatchSize, m),
		jobs.NewAggregationSweepJob(withdrawalUsecase, cfg.Jobs.AggregationInterval, cfg.Jobs.BatchSize, cfg.Jobs.Concurrency, cfg.Jobs.LeaseTTL, m),
		jobs.NewPayoutDispatchJob(withdrawalUsecase, cfg.Jobs.PayoutInterval, cfg.Jobs.BatchSize, m),
		jobs.NewInstructionRelayJob(instructionRepo, cfg.Jobs.RelayInterval, cfg.Jobs.BatchSize, m),
		jobs.NewConfirmationConsumerJob(depositUsecase, allocationUsecase, withdrawalUsecase, cfg.Jobs.ConfirmInterval, cfg.Jobs.BatchSize, m),
	}
}
