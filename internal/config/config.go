package config

import (
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration values
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Engine   EngineConfig
	Jobs     JobsConfig
}

// ServerConfig holds the ops HTTP server configuration
type ServerConfig struct {
	Port string
	Env  string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// URL returns the database connection URL
func (c DatabaseConfig) URL() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + strconv.Itoa(c.Port) + "/" + c.DBName + "?sslmode=" + c.SSLMode
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL      string
	PASSWORD string
}

// EngineConfig holds accounting and settlement parameters
type EngineConfig struct {
	// MinStakeThreshold applies to vaults without their own threshold
	MinStakeThreshold    decimal.Decimal
	WithdrawalFeePercent decimal.Decimal
	NetworkFee           decimal.Decimal
	WeightTolerance      decimal.Decimal
	MaxRiskTier          string
	LockTimeout          time.Duration
	RetryMaxElapsed      time.Duration
	RetryMaxAttempts     int
}

// JobsConfig holds background sweep configuration
type JobsConfig struct {
	StakeSweepInterval  time.Duration
	AggregationInterval time.Duration
	PayoutInterval      time.Duration
	RelayInterval       time.Duration
	ConfirmInterval     time.Duration
	BatchSize           int
	Concurrency         int
	LeaseTTL            time.Duration
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("SERVER_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			DBName:       getEnv("DB_NAME", "yieldvault"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			PASSWORD: getEnv("REDIS_PASSWORD", ""),
		},
		Engine: EngineConfig{
			MinStakeThreshold:    getEnvAsDecimal("ENGINE_MIN_STAKE_THRESHOLD", decimal.NewFromInt(100)),
			WithdrawalFeePercent: getEnvAsDecimal("ENGINE_WITHDRAWAL_FEE_PERCENT", decimal.Zero),
			NetworkFee:           getEnvAsDecimal("ENGINE_NETWORK_FEE", decimal.Zero),
			WeightTolerance:      getEnvAsDecimal("ENGINE_WEIGHT_TOLERANCE", decimal.RequireFromString("0.01")),
			MaxRiskTier:          getEnv("ENGINE_MAX_RISK_TIER", "medium"),
			LockTimeout:          getEnvAsDuration("ENGINE_LOCK_TIMEOUT", 5*time.Second),
			RetryMaxElapsed:      getEnvAsDuration("ENGINE_RETRY_MAX_ELAPSED", 15*time.Second),
			RetryMaxAttempts:     getEnvAsInt("ENGINE_RETRY_MAX_ATTEMPTS", 5),
		},
		Jobs: JobsConfig{
			StakeSweepInterval:  getEnvAsDuration("JOB_STAKE_SWEEP_INTERVAL", 5*time.Minute),
			AggregationInterval: getEnvAsDuration("JOB_AGGREGATION_INTERVAL", 1*time.Minute),
			PayoutInterval:      getEnvAsDuration("JOB_PAYOUT_INTERVAL", 30*time.Second),
			RelayInterval:       getEnvAsDuration("JOB_RELAY_INTERVAL", 5*time.Second),
			ConfirmInterval:     getEnvAsDuration("JOB_CONFIRM_INTERVAL", 2*time.Second),
			BatchSize:           getEnvAsInt("JOB_BATCH_SIZE", 100),
			Concurrency:         getEnvAsInt("JOB_CONCURRENCY", 4),
			LeaseTTL:            getEnvAsDuration("JOB_LEASE_TTL", 2*time.Minute),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil && !d.IsNegative() {
			return d
		}
	}
	return defaultValue
}
