package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage drivers
const (
	DriverMock       = "mock"
	DriverClickHouse = "clickhouse"
	DriverSQLite     = "sqlite"
)

// Config holds the application configuration
type Config struct {
	// Circulation policy, fixed for the lifetime of the process
	LoanPeriod       time.Duration
	RenewalExtension time.Duration
	MaxRenewals      int

	LockTimeout      time.Duration
	AllowedBorrowers []string // empty means any borrower id is accepted

	StorageDriver string
	SeedCatalog   bool // seed an empty store with the demo catalog

	// ClickHouse configuration
	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string
	ClickHouseUseTLS   bool

	SQLitePath string

	Port      string
	LogLevel  string
	LogFormat string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	config := &Config{}

	loanDays, err := intFromEnv("LOAN_PERIOD_DAYS", 31)
	if err != nil {
		return nil, err
	}
	if loanDays <= 0 {
		return nil, fmt.Errorf("LOAN_PERIOD_DAYS must be positive, got %d", loanDays)
	}
	config.LoanPeriod = time.Duration(loanDays) * 24 * time.Hour

	extDays, err := intFromEnv("RENEWAL_EXTENSION_DAYS", 14)
	if err != nil {
		return nil, err
	}
	if extDays <= 0 {
		return nil, fmt.Errorf("RENEWAL_EXTENSION_DAYS must be positive, got %d", extDays)
	}
	config.RenewalExtension = time.Duration(extDays) * 24 * time.Hour

	config.MaxRenewals, err = intFromEnv("MAX_RENEWALS", 2)
	if err != nil {
		return nil, err
	}
	if config.MaxRenewals < 0 || config.MaxRenewals > 255 {
		return nil, fmt.Errorf("MAX_RENEWALS must be between 0 and 255, got %d", config.MaxRenewals)
	}

	config.LockTimeout = 250 * time.Millisecond
	if v := os.Getenv("LOCK_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid LOCK_TIMEOUT: %w", err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("LOCK_TIMEOUT must be positive, got %s", v)
		}
		config.LockTimeout = d
	}

	// Allowed borrower IDs (optional, comma-separated)
	if ids := os.Getenv("ALLOWED_BORROWER_IDS"); ids != "" {
		for _, id := range strings.Split(ids, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			config.AllowedBorrowers = append(config.AllowedBorrowers, id)
		}
	}

	// Storage driver (default: mock). USE_MOCK_DB=true forces the mock.
	config.StorageDriver = strings.ToLower(strings.TrimSpace(os.Getenv("STORAGE_DRIVER")))
	if config.StorageDriver == "" || os.Getenv("USE_MOCK_DB") == "true" {
		config.StorageDriver = DriverMock
	}

	config.SeedCatalog = os.Getenv("SEED_CATALOG") != "false"

	switch config.StorageDriver {
	case DriverMock:
	case DriverClickHouse:
		config.ClickHouseHost = os.Getenv("CLICKHOUSE_HOST")
		if config.ClickHouseHost == "" {
			return nil, fmt.Errorf("CLICKHOUSE_HOST is required when STORAGE_DRIVER is clickhouse")
		}

		config.ClickHousePort, err = intFromEnv("CLICKHOUSE_PORT", 9000) // Default ClickHouse native port
		if err != nil {
			return nil, err
		}

		config.ClickHouseDatabase = getEnv("CLICKHOUSE_DATABASE", "default")
		config.ClickHouseUser = getEnv("CLICKHOUSE_USER", "default")
		config.ClickHousePassword = os.Getenv("CLICKHOUSE_PASSWORD")
		// Password is optional, can be empty

		config.ClickHouseUseTLS = os.Getenv("CLICKHOUSE_USE_TLS") == "true"
	case DriverSQLite:
		config.SQLitePath = getEnv("SQLITE_PATH", "data/circulation.db")
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q (expected mock, clickhouse or sqlite)", config.StorageDriver)
	}

	config.Port = getEnv("PORT", "8080")
	config.LogLevel = getEnv("LOG_LEVEL", "info")
	config.LogFormat = getEnv("LOG_FORMAT", "json")

	return config, nil
}

// getEnv retrieves environment variable or returns default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func intFromEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
