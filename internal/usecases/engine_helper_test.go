package usecases_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"yield-vault.backend/internal/domain/entities"
	"yield-vault.backend/internal/infrastructure/datasources/postgres"
	"yield-vault.backend/internal/infrastructure/repositories"
	"yield-vault.backend/internal/usecases"
)

const (
	testChain   = "eip155:8453"
	testToken   = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	testAddress = "0x000000000000000000000000000000000000dEaD"
)

// testEngine wires every usecase against one in-memory sqlite database
type testEngine struct {
	db          *gorm.DB
	clientID    uuid.UUID
	vaults      *repositories.VaultRepository
	positions   *repositories.PositionRepository
	allocs      *repositories.AllocationRepository
	instrs      *repositories.InstructionRepository
	withdrawals *repositories.WithdrawalRepository
	ledger      *repositories.LedgerEntryRepository

	index      *usecases.VaultIndexUsecase
	allocation *usecases.AllocationUsecase
	registry   *usecases.ProtocolRegistryUsecase
	deposit    *usecases.DepositUsecase
	withdrawal *usecases.WithdrawalUsecase
	query      *usecases.VaultQueryUsecase
}

func newTestEngine(t *testing.T, configure ...func(*usecases.EngineOptions)) *testEngine {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err, "open sqlite")
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, postgres.Migrate(db))

	opts := usecases.DefaultEngineOptions()
	opts.RetryMaxElapsed = time.Second
	for _, fn := range configure {
		fn(&opts)
	}

	e := &testEngine{
		db:          db,
		clientID:    uuid.New(),
		vaults:      repositories.NewVaultRepository(db),
		positions:   repositories.NewPositionRepository(db),
		allocs:      repositories.NewAllocationRepository(db),
		instrs:      repositories.NewInstructionRepository(db),
		withdrawals: repositories.NewWithdrawalRepository(db),
		ledger:      repositories.NewLedgerEntryRepository(db),
	}
	protocols := repositories.NewProtocolRepository(db)
	deposits := repositories.NewDepositRepository(db)
	uow := repositories.NewUnitOfWork(db, 0)

	e.index = usecases.NewVaultIndexUsecase(uow, e.vaults, e.ledger, opts)
	e.allocation = usecases.NewAllocationUsecase(uow, e.vaults, e.allocs, protocols, e.instrs, e.ledger, opts)
	e.registry = usecases.NewProtocolRegistryUsecase(protocols)
	e.deposit = usecases.NewDepositUsecase(uow, e.vaults, deposits, e.positions, e.ledger, opts)
	e.withdrawal = usecases.NewWithdrawalUsecase(uow, e.vaults, e.positions, e.allocs, e.withdrawals, e.instrs, e.ledger, opts)
	e.query = usecases.NewVaultQueryUsecase(e.vaults, e.positions, e.allocs, protocols, e.withdrawals, deposits, e.ledger)
	return e
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}

func (e *testEngine) protocol(t *testing.T, name string, tier entities.RiskTier) *entities.Protocol {
	t.Helper()
	p, err := e.registry.Register(context.Background(), &entities.RegisterProtocolInput{
		Name:     name,
		Chain:    testChain,
		Category: entities.ProtocolCategoryLending,
		RiskTier: tier,
	})
	require.NoError(t, err)
	return p
}

// fund completes a deposit for the user and returns the vault it landed in
func (e *testEngine) fund(t *testing.T, userID uuid.UUID, amount string) *entities.Vault {
	t.Helper()
	ctx := context.Background()
	d, err := e.deposit.Create(ctx, &entities.CreateDepositInput{
		OrderID:      "dep-" + uuid.NewString(),
		ClientID:     e.clientID,
		UserID:       userID,
		Chain:        testChain,
		TokenAddress: testToken,
		TokenSymbol:  "USDC",
		Environment:  "production",
		Amount:       dec(amount),
	})
	require.NoError(t, err)
	_, err = e.deposit.Complete(ctx, d.ID, dec(amount))
	require.NoError(t, err)
	return e.vault(t, d.VaultID)
}

func (e *testEngine) vault(t *testing.T, id uuid.UUID) *entities.Vault {
	t.Helper()
	v, err := e.vaults.GetByID(context.Background(), id)
	require.NoError(t, err)
	return v
}

func (e *testEngine) position(t *testing.T, userID, vaultID uuid.UUID) *entities.EndUserPosition {
	t.Helper()
	p, err := e.positions.GetByUserAndVault(context.Background(), userID, vaultID)
	require.NoError(t, err)
	return p
}

func (e *testEngine) withdrawInput(userID, vaultID uuid.UUID, amount string) *entities.RequestWithdrawalInput {
	return &entities.RequestWithdrawalInput{
		OrderID:     "wd-" + uuid.NewString(),
		ClientID:    e.clientID,
		UserID:      userID,
		VaultID:     vaultID,
		Amount:      dec(amount),
		Destination: entities.OnchainDestination("", testAddress),
	}
}

// requireConserved checks idle + staked == units value + pending withdrawals + reserve
func (e *testEngine) requireConserved(t *testing.T, vaultID uuid.UUID) {
	t.Helper()
	v := e.vault(t, vaultID)
	assert.Truef(t, v.Imbalance().IsZero(), "imbalance %s (idle %s staked %s units %s index %s pending %s reserve %s)",
		v.Imbalance(), v.IdleBalance, v.StakedBalance, v.TotalUnits, v.CurrentIndex, v.PendingWithdrawals, v.ReserveBalance)
}
