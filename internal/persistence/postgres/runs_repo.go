package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/randomwalk/internal/persistence"
)

// ErrDuplicateRecord is returned when a run already holds an outcome for the symbol
var ErrDuplicateRecord = errors.New("duplicate run record")

const uniqueViolation = "23505"

// Schema creates the run ledger table
const Schema = `
CREATE TABLE IF NOT EXISTS simulation_runs (
	id          BIGSERIAL PRIMARY KEY,
	run_id      UUID NOT NULL,
	symbol      TEXT NOT NULL,
	state       TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	start_date  DATE NOT NULL,
	end_date    DATE NOT NULL,
	drift       DOUBLE PRECISION NOT NULL DEFAULT 0,
	volatility  DOUBLE PRECISION NOT NULL DEFAULT 0,
	start_price DOUBLE PRECISION NOT NULL DEFAULT 0,
	rows        INTEGER NOT NULL DEFAULT 0,
	at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (run_id, symbol)
)`

// runsRepo implements persistence.RunLedger for PostgreSQL
type runsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRunsRepo creates a new PostgreSQL run ledger
func NewRunsRepo(db *sqlx.DB, timeout time.Duration) persistence.RunLedger {
	return &runsRepo{
		db:      db,
		timeout: timeout,
	}
}

// Migrate applies Schema
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create simulation_runs: %w", err)
	}
	return nil
}

func (r *runsRepo) Record(ctx context.Context, rec persistence.RunRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}

	query := `
		INSERT INTO simulation_runs
			(run_id, symbol, state, reason, start_date, end_date, drift, volatility, start_price, rows, at)
		VALUES
			(:run_id, :symbol, :state, :reason, :start_date, :end_date, :drift, :volatility, :start_price, :rows, :at)`

	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s/%s", ErrDuplicateRecord, rec.RunID, rec.Symbol)
		}
		return fmt.Errorf("failed to insert run record: %w", err)
	}
	return nil
}

func (r *runsRepo) ListRun(ctx context.Context, runID string) ([]persistence.RunRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, run_id, symbol, state, reason, start_date, end_date, drift, volatility, start_price, rows, at
		FROM simulation_runs
		WHERE run_id = $1
		ORDER BY symbol`

	var records []persistence.RunRecord
	if err := r.db.SelectContext(ctx, &records, query, runID); err != nil {
		return nil, fmt.Errorf("failed to list run %s: %w", runID, err)
	}
	return records, nil
}

func (r *runsRepo) CountByState(ctx context.Context, runID string) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT state, COUNT(*) FROM simulation_runs
		WHERE run_id = $1
		GROUP BY state`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to count run %s: %w", runID, err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var state string
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("failed to scan state count: %w", err)
		}
		counts[state] = n
	}
	return counts, rows.Err()
}
