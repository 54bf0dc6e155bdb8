package main

import (
	"errors"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"yield-vault.backend/internal/config"
	plog "yield-vault.backend/pkg/logger"
)

func withMainHooks(t *testing.T) {
	t.Helper()
	origLoadDotenv := loadDotenv
	origLoadCfg := loadCfg
	origInitLog := initLog
	origInitRedis := initRedis
	origOpenDB := openDB
	origMigrate := migrate
	origRunServer := runServer

	t.Cleanup(func() {
		loadDotenv = origLoadDotenv
		loadCfg = origLoadCfg
		initLog = origInitLog
		initRedis = origInitRedis
		openDB = origOpenDB
		migrate = origMigrate
		runServer = origRunServer
	})

	loadDotenv = func(...string) error { return nil }
	loadCfg = baseTestConfig
	initLog = plog.Init
	initRedis = func(string, string) error { return nil }
}

func baseTestConfig() *config.Config {
	cfg := config.Load()
	cfg.Server = config.ServerConfig{Port: "18080", Env: "development"}
	cfg.Jobs.StakeSweepInterval = time.Hour
	cfg.Jobs.AggregationInterval = time.Hour
	cfg.Jobs.PayoutInterval = time.Hour
	cfg.Jobs.RelayInterval = time.Hour
	cfg.Jobs.ConfirmInterval = time.Hour
	return cfg
}

func sqliteOpener(name string) func(config.DatabaseConfig) (*gorm.DB, error) {
	return func(config.DatabaseConfig) (*gorm.DB, error) {
		return gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	}
}

func TestRunMainProcess_RedisInitError(t *testing.T) {
	withMainHooks(t)
	initRedis = func(string, string) error { return errors.New("redis down") }

	err := runMainProcess()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}

func TestRunMainProcess_DBOpenError(t *testing.T) {
	withMainHooks(t)
	openDB = func(config.DatabaseConfig) (*gorm.DB, error) { return nil, errors.New("db open failed") }

	err := runMainProcess()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to database")
}

func TestRunMainProcess_MigrateError(t *testing.T) {
	withMainHooks(t)
	openDB = sqliteOpener("main_migrate_err")
	migrate = func(*gorm.DB) error { return errors.New("migration failed") }

	err := runMainProcess()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to migrate database")
}

func TestRunMainProcess_ServerRunError(t *testing.T) {
	withMainHooks(t)
	openDB = sqliteOpener("main_server_err")
	runServer = func(*gin.Engine, string) error { return errors.New("listen failed") }

	err := runMainProcess()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start server")
}

func TestRunMainProcess_SuccessPath(t *testing.T) {
	withMainHooks(t)
	openDB = sqliteOpener("main_success")
	var routes []gin.RouteInfo
	runServer = func(r *gin.Engine, _ string) error {
		routes = r.Routes()
		return nil
	}

	require.NoError(t, runMainProcess())
	paths := make([]string, 0, len(routes))
	for _, rt := range routes {
		paths = append(paths, rt.Method+" "+rt.Path)
	}
	assert.ElementsMatch(t, []string{"GET /health", "GET /metrics"}, paths)
}

func TestBuildJobs_WiresEverySweep(t *testing.T) {
	db, err := sqliteOpener("main_build_jobs")(config.DatabaseConfig{})
	require.NoError(t, err)

	built := buildJobs(db, baseTestConfig())
	assert.Len(t, built, 5)
	for _, j := range built {
		j.Stop()
	}
}
