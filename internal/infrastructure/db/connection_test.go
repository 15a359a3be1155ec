package db

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/randomwalk/internal/config"
)

func ledgerConfig() config.LedgerConfig {
	cfg := config.Default().Ledger
	cfg.Enabled = true
	cfg.DSN = "postgres://test"
	return cfg
}

func TestOpen_Disabled(t *testing.T) {
	m, err := Open(context.Background(), config.LedgerConfig{})
	require.NoError(t, err)

	assert.False(t, m.IsEnabled())
	assert.Nil(t, m.Ledger())
	assert.NoError(t, m.Close())

	health := m.Health().Health(context.Background())
	assert.True(t, health.Healthy)
	assert.Contains(t, health.Errors[0], "disabled")
}

func TestOpen_RequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), config.LedgerConfig{Enabled: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DSN")
}

func TestNewManager_MigratesAndExposesLedger(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectPing()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS simulation_runs")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	m, err := NewManager(context.Background(), sqlx.NewDb(mockDB, "postgres"), ledgerConfig())
	require.NoError(t, err)

	assert.True(t, m.IsEnabled())
	assert.NotNil(t, m.Ledger())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewManager_PingFailure(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectPing().WillReturnError(sqlmock.ErrCancelled)

	_, err = NewManager(context.Background(), sqlx.NewDb(mockDB, "postgres"), ledgerConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping")
}

func TestHealthChecker_PingFailure(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mockDB.Close()

	cfg := ledgerConfig()
	h := &healthChecker{enabled: true, db: sqlx.NewDb(mockDB, "postgres"), timeout: cfg.QueryTimeout()}
	mock.ExpectPing().WillReturnError(sqlmock.ErrCancelled)

	check := h.Health(context.Background())
	assert.False(t, check.Healthy)
	require.Len(t, check.Errors, 1)
	assert.Contains(t, check.Errors[0], "ping failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}
