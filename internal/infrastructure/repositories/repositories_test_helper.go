package repositories

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"yield-vault.backend/internal/domain/entities"
	"yield-vault.backend/internal/infrastructure/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "open sqlite")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...), "migrate")
	return db
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedVault(t *testing.T, db *gorm.DB) *entities.Vault {
	t.Helper()
	v := seedVaultEntity()
	require.NoError(t, NewVaultRepository(db).Create(context.Background(), v))
	return v
}

func seedProtocol(t *testing.T, db *gorm.DB, name string) *entities.Protocol {
	t.Helper()
	p := &entities.Protocol{
		Name:     name,
		Chain:    "eip155:8453",
		Category: entities.ProtocolCategoryLending,
		RiskTier: entities.RiskTierLow,
		IsActive: true,
	}
	require.NoError(t, NewProtocolRepository(db).Create(context.Background(), p))
	return p
}

func seedVaultEntity() *entities.Vault {
	return entities.NewVault(uuid.Nil, uuid.New(), "eip155:8453", "0xusdc", "USDC", "sandbox")
}
