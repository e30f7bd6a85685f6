package config

import (
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"caisse/internal/domain"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Fees      FeeDefaults
	Limits    LimitDefaults
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// FeeDefaults is the system-wide fee schedule used when an agency carries no
// override. It is injected into the calculator, never read from globals.
type FeeDefaults struct {
	Rates          map[domain.TransactionType]decimal.Decimal
	MinimumFees    map[domain.TransactionType]decimal.Decimal
	DiscountTiers  []domain.DiscountTier
	VATRate        decimal.Decimal
	AmountCeiling  decimal.Decimal
	MonthlyFee     decimal.Decimal
	ConfigCacheTTL time.Duration
}

type LimitDefaults struct {
	DailyWithdrawal  decimal.Decimal
	DailyTransfer    decimal.Decimal
	MonthlyOperation decimal.Decimal
}

type SchedulerConfig struct {
	ResetHour     int           // hour of day for the daily counter sweep
	SweepInterval time.Duration // how often the ticker checks
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Fees:      DefaultFees(),
		Limits:    DefaultLimits(),
		Scheduler: SchedulerConfig{
			ResetHour:     getIntEnv("LIMIT_RESET_HOUR", 0),
			SweepInterval: getDurationEnv("SCHEDULER_SWEEP_INTERVAL", time.Minute),
		},
	}
}

// DefaultFees returns the built-in fee schedule. Deposits are free by
// construction: zero rate and zero minimum.
func DefaultFees() FeeDefaults {
	return FeeDefaults{
		Rates: map[domain.TransactionType]decimal.Decimal{
			domain.TransactionTypeDeposit:          decimal.Zero,
			domain.TransactionTypeWithdrawal:       getDecimalEnv("FEE_RATE_RETRAIT", "1.5"),
			domain.TransactionTypeMobileWithdrawal: getDecimalEnv("FEE_RATE_RETRAIT_MOBILE", "2.0"),
			domain.TransactionTypeInternalTransfer: getDecimalEnv("FEE_RATE_TRANSFERT_INTERNE", "0.5"),
			domain.TransactionTypeExternalTransfer: getDecimalEnv("FEE_RATE_TRANSFERT_EXTERNE", "1.0"),
			domain.TransactionTypeAccountFee:       decimal.Zero,
		},
		MinimumFees: map[domain.TransactionType]decimal.Decimal{
			domain.TransactionTypeDeposit:          decimal.Zero,
			domain.TransactionTypeWithdrawal:       getDecimalEnv("FEE_MIN_RETRAIT", "100"),
			domain.TransactionTypeMobileWithdrawal: getDecimalEnv("FEE_MIN_RETRAIT_MOBILE", "150"),
			domain.TransactionTypeInternalTransfer: getDecimalEnv("FEE_MIN_TRANSFERT_INTERNE", "200"),
			domain.TransactionTypeExternalTransfer: getDecimalEnv("FEE_MIN_TRANSFERT_EXTERNE", "500"),
			domain.TransactionTypeAccountFee:       decimal.Zero,
		},
		DiscountTiers: []domain.DiscountTier{
			{Threshold: decimal.NewFromInt(1_000_000), Discount: decimal.NewFromFloat(0.10)},
			{Threshold: decimal.NewFromInt(5_000_000), Discount: decimal.NewFromFloat(0.20)},
			{Threshold: decimal.NewFromInt(10_000_000), Discount: decimal.NewFromFloat(0.30)},
		},
		VATRate:        getDecimalEnv("FEE_VAT_RATE", "0.175"),
		AmountCeiling:  getDecimalEnv("TRANSACTION_AMOUNT_CEILING", "50000000"),
		MonthlyFee:     getDecimalEnv("MONTHLY_ACCOUNT_FEE", "500"),
		ConfigCacheTTL: getDurationEnv("FEE_CONFIG_CACHE_TTL", 5*time.Minute),
	}
}

// Defaults returns the built-in schedule as a FeeConfiguration for the
// calculator's fallback chain.
func (f FeeDefaults) Defaults() *domain.FeeConfiguration {
	return &domain.FeeConfiguration{
		Rates:         f.Rates,
		MinimumFees:   f.MinimumFees,
		DiscountTiers: f.DiscountTiers,
		VATRate:       f.VATRate,
	}
}

func DefaultLimits() LimitDefaults {
	return LimitDefaults{
		DailyWithdrawal:  getDecimalEnv("LIMIT_DAILY_WITHDRAWAL", "1000000"),
		DailyTransfer:    getDecimalEnv("LIMIT_DAILY_TRANSFER", "2000000"),
		MonthlyOperation: getDecimalEnv("LIMIT_MONTHLY_OPERATION", "20000000"),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDecimalEnv(key, fallback string) decimal.Decimal {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := decimal.NewFromString(value); err == nil {
			return parsed
		}
	}
	d, _ := decimal.NewFromString(fallback)
	return d
}
