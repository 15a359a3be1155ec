package persistence

import (
	"context"
	"time"
)

// RunRecord is one symbol outcome of a simulation run
type RunRecord struct {
	ID         int64     `json:"id" db:"id"`
	RunID      string    `json:"run_id" db:"run_id"`
	Symbol     string    `json:"symbol" db:"symbol"`
	State      string    `json:"state" db:"state"`
	Reason     string    `json:"reason,omitempty" db:"reason"`
	StartDate  time.Time `json:"start_date" db:"start_date"`
	EndDate    time.Time `json:"end_date" db:"end_date"`
	Drift      float64   `json:"drift" db:"drift"`
	Volatility float64   `json:"volatility" db:"volatility"`
	StartPrice float64   `json:"start_price" db:"start_price"`
	Rows       int       `json:"rows" db:"rows"`
	At         time.Time `json:"at" db:"at"`
}

// RunLedger stores run outcomes
type RunLedger interface {
	// Record appends one outcome; a repeated (run_id, symbol) is rejected
	Record(ctx context.Context, rec RunRecord) error

	// ListRun returns the outcomes of a run in symbol order
	ListRun(ctx context.Context, runID string) ([]RunRecord, error)

	// CountByState aggregates a run's outcomes
	CountByState(ctx context.Context, runID string) (map[string]int64, error)
}

// HealthCheck represents repository health status
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth provides health monitoring for persistence layer
type RepositoryHealth interface {
	Health(ctx context.Context) HealthCheck
	Ping(ctx context.Context) error
}
