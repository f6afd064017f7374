package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LOAN_PERIOD_DAYS", "RENEWAL_EXTENSION_DAYS", "MAX_RENEWALS", "LOCK_TIMEOUT",
		"ALLOWED_BORROWER_IDS", "STORAGE_DRIVER", "USE_MOCK_DB", "SEED_CATALOG",
		"CLICKHOUSE_HOST", "CLICKHOUSE_PORT", "CLICKHOUSE_DATABASE", "CLICKHOUSE_USER",
		"CLICKHOUSE_PASSWORD", "CLICKHOUSE_USE_TLS", "SQLITE_PATH", "PORT", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 31*24*time.Hour, cfg.LoanPeriod)
	assert.Equal(t, 14*24*time.Hour, cfg.RenewalExtension)
	assert.Equal(t, 2, cfg.MaxRenewals)
	assert.Equal(t, 250*time.Millisecond, cfg.LockTimeout)
	assert.Empty(t, cfg.AllowedBorrowers)
	assert.Equal(t, DriverMock, cfg.StorageDriver)
	assert.True(t, cfg.SeedCatalog)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOAN_PERIOD_DAYS", "21")
	t.Setenv("RENEWAL_EXTENSION_DAYS", "7")
	t.Setenv("MAX_RENEWALS", "0")
	t.Setenv("LOCK_TIMEOUT", "1s")
	t.Setenv("ALLOWED_BORROWER_IDS", "john, jane,,")
	t.Setenv("STORAGE_DRIVER", "ClickHouse")
	t.Setenv("CLICKHOUSE_HOST", "ch.local")
	t.Setenv("CLICKHOUSE_USE_TLS", "true")
	t.Setenv("SEED_CATALOG", "false")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 21*24*time.Hour, cfg.LoanPeriod)
	assert.Equal(t, 7*24*time.Hour, cfg.RenewalExtension)
	assert.Equal(t, 0, cfg.MaxRenewals)
	assert.Equal(t, time.Second, cfg.LockTimeout)
	assert.Equal(t, []string{"john", "jane"}, cfg.AllowedBorrowers)
	assert.Equal(t, DriverClickHouse, cfg.StorageDriver)
	assert.Equal(t, "ch.local", cfg.ClickHouseHost)
	assert.Equal(t, 9000, cfg.ClickHousePort)
	assert.Equal(t, "default", cfg.ClickHouseDatabase)
	assert.True(t, cfg.ClickHouseUseTLS)
	assert.False(t, cfg.SeedCatalog)
}

func TestLoadFromEnv_SQLite(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORAGE_DRIVER", "sqlite")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "data/circulation.db", cfg.SQLitePath)

	t.Setenv("USE_MOCK_DB", "true")
	cfg, err = LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, DriverMock, cfg.StorageDriver)
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	testCases := []struct {
		name  string
		key   string
		value string
	}{
		{name: "non-numeric loan period", key: "LOAN_PERIOD_DAYS", value: "month"},
		{name: "zero loan period", key: "LOAN_PERIOD_DAYS", value: "0"},
		{name: "negative extension", key: "RENEWAL_EXTENSION_DAYS", value: "-1"},
		{name: "negative max renewals", key: "MAX_RENEWALS", value: "-2"},
		{name: "bad lock timeout", key: "LOCK_TIMEOUT", value: "soon"},
		{name: "zero lock timeout", key: "LOCK_TIMEOUT", value: "0s"},
		{name: "unknown driver", key: "STORAGE_DRIVER", value: "postgres"},
		{name: "clickhouse without host", key: "STORAGE_DRIVER", value: "clickhouse"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.value)
			_, err := LoadFromEnv()
			assert.Error(t, err)
		})
	}
}
