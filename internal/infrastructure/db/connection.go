package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/randomwalk/internal/config"
	"github.com/sawpanic/randomwalk/internal/persistence"
	"github.com/sawpanic/randomwalk/internal/persistence/postgres"
)

// Manager owns the ledger connection pool
type Manager struct {
	db     *sqlx.DB
	config config.LedgerConfig
	ledger persistence.RunLedger
	health *healthChecker
}

// Open connects to postgres, applies the ledger schema and returns a Manager.
// A disabled ledger yields a Manager with a nil Ledger.
func Open(ctx context.Context, cfg config.LedgerConfig) (*Manager, error) {
	if !cfg.Enabled {
		return &Manager{
			config: cfg,
			health: &healthChecker{enabled: false},
		}, nil
	}

	if cfg.DSN == "" {
		return nil, fmt.Errorf("ledger DSN is required when enabled")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns / 2)
	db.SetConnMaxLifetime(30 * time.Minute)

	m, err := NewManager(ctx, db, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

// NewManager wraps an existing connection
func NewManager(ctx context.Context, db *sqlx.DB, cfg config.LedgerConfig) (*Manager, error) {
	health := &healthChecker{enabled: true, db: db, timeout: cfg.QueryTimeout()}

	if err := health.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrateCtx, cancel := context.WithTimeout(ctx, cfg.QueryTimeout())
	defer cancel()
	if err := postgres.Migrate(migrateCtx, db); err != nil {
		return nil, err
	}

	log.Info().Int("max_open_conns", cfg.MaxOpenConns).Msg("Run ledger connected")

	return &Manager{
		db:     db,
		config: cfg,
		ledger: postgres.NewRunsRepo(db, cfg.QueryTimeout()),
		health: health,
	}, nil
}

// Ledger returns the run ledger, or nil if the ledger is disabled
func (m *Manager) Ledger() persistence.RunLedger {
	return m.ledger
}

// Health returns the health checker
func (m *Manager) Health() persistence.RepositoryHealth {
	return m.health
}

// IsEnabled reports whether a database is attached
func (m *Manager) IsEnabled() bool {
	return m.config.Enabled && m.db != nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

// healthChecker implements persistence.RepositoryHealth
type healthChecker struct {
	enabled bool
	db      *sqlx.DB
	timeout time.Duration
}

func (h *healthChecker) Health(ctx context.Context) persistence.HealthCheck {
	if !h.enabled {
		return persistence.HealthCheck{
			Healthy:        true,
			Errors:         []string{"Run ledger disabled"},
			ConnectionPool: map[string]int{"status": 0},
			LastCheck:      time.Now(),
		}
	}

	start := time.Now()
	var errors []string
	healthy := true
	if err := h.Ping(ctx); err != nil {
		errors = append(errors, fmt.Sprintf("ping failed: %v", err))
		healthy = false
	}

	stats := h.db.Stats()
	return persistence.HealthCheck{
		Healthy: healthy,
		Errors:  errors,
		ConnectionPool: map[string]int{
			"max_open": stats.MaxOpenConnections,
			"open":     stats.OpenConnections,
			"in_use":   stats.InUse,
			"idle":     stats.Idle,
		},
		LastCheck:      time.Now(),
		ResponseTimeMS: time.Since(start).Milliseconds(),
	}
}

func (h *healthChecker) Ping(ctx context.Context) error {
	if !h.enabled {
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return h.db.PingContext(pingCtx)
}
