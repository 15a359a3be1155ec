package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/randomwalk/internal/persistence"
)

func newMockRepo(t *testing.T) (persistence.RunLedger, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return NewRunsRepo(sqlx.NewDb(mockDB, "postgres"), 5*time.Second), mock
}

func sampleRecord() persistence.RunRecord {
	return persistence.RunRecord{
		RunID:      "5b0c3f0e-8a55-4c1e-9d8a-6c1f1f2f3a4b",
		Symbol:     "AAPL",
		State:      "done",
		StartDate:  time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC),
		Drift:      0.12,
		Volatility: 0.25,
		StartPrice: 157.92,
		Rows:       1000,
		At:         time.Date(2019, 1, 2, 9, 0, 0, 0, time.UTC),
	}
}

func TestRunsRepo_Record(t *testing.T) {
	repo, mock := newMockRepo(t)
	rec := sampleRecord()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO simulation_runs")).
		WithArgs(rec.RunID, rec.Symbol, rec.State, rec.Reason, rec.StartDate, rec.EndDate,
			rec.Drift, rec.Volatility, rec.StartPrice, rec.Rows, rec.At).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Record(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunsRepo_RecordDuplicate(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO simulation_runs")).
		WillReturnError(&pq.Error{Code: uniqueViolation, Message: "duplicate key"})

	err := repo.Record(context.Background(), sampleRecord())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateRecord)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunsRepo_RecordError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO simulation_runs")).
		WillReturnError(errors.New("connection reset"))

	err := repo.Record(context.Background(), sampleRecord())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateRecord)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestRunsRepo_ListRun(t *testing.T) {
	repo, mock := newMockRepo(t)
	rec := sampleRecord()

	rows := sqlmock.NewRows([]string{"id", "run_id", "symbol", "state", "reason", "start_date", "end_date",
		"drift", "volatility", "start_price", "rows", "at"}).
		AddRow(1, rec.RunID, "AAPL", "done", "", rec.StartDate, rec.EndDate, 0.12, 0.25, 157.92, 1000, rec.At).
		AddRow(2, rec.RunID, "ZZZZ", "skipped", "data_unavailable", rec.StartDate, rec.EndDate, 0.0, 0.0, 0.0, 0, rec.At)

	mock.ExpectQuery(regexp.QuoteMeta("FROM simulation_runs")).
		WithArgs(rec.RunID).
		WillReturnRows(rows)

	got, err := repo.ListRun(context.Background(), rec.RunID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "AAPL", got[0].Symbol)
	assert.Equal(t, 1000, got[0].Rows)
	assert.Equal(t, "data_unavailable", got[1].Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunsRepo_CountByState(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY state")).
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows([]string{"state", "count"}).
			AddRow("done", 2).
			AddRow("skipped", 1))

	counts, err := repo.CountByState(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"done": 2, "skipped": 1}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS simulation_runs")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, Migrate(context.Background(), sqlx.NewDb(mockDB, "postgres")))
	assert.NoError(t, mock.ExpectationsWereMet())
}
