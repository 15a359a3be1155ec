package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/randomwalk/internal/domain/walk"
)

// Config is the complete randomwalk configuration
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Cache      CacheConfig      `yaml:"cache"`
	Output     OutputConfig     `yaml:"output"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

// SimulationConfig controls the historical window and the Monte Carlo run
type SimulationConfig struct {
	StartDate          string `yaml:"start_date"`          // YYYY-MM-DD
	EndDate            string `yaml:"end_date"`            // YYYY-MM-DD
	TradingDaysPerYear int    `yaml:"trading_days_per_year"`
	Iterations         int    `yaml:"iterations"`
	BenchmarkSymbol    string `yaml:"benchmark_symbol"`    // reference series for the expected day count
	Workers            int    `yaml:"workers"`             // concurrent symbol pipelines
	Seed               int64  `yaml:"seed"`                // 0 draws from the clock
	FetchTimeoutSecs   int    `yaml:"fetch_timeout_secs"`
}

// CacheConfig configures the historical series cache
type CacheConfig struct {
	Enabled   bool   `yaml:"enabled"`
	RedisAddr string `yaml:"redis_addr"` // empty keeps the cache in memory
	TTLSecs   int    `yaml:"ttl_secs"`
	KeyPrefix string `yaml:"key_prefix"`
}

// OutputConfig places the simulation tables
type OutputConfig struct {
	BatchDir  string `yaml:"batch_dir"`
	SingleDir string `yaml:"single_dir"`
	Chart     bool   `yaml:"chart"` // also render <symbol>.png fan charts
}

// LedgerConfig configures the optional postgres run ledger
type LedgerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	DSN              string `yaml:"dsn"`
	MaxOpenConns     int    `yaml:"max_open_conns"`
	QueryTimeoutSecs int    `yaml:"query_timeout_secs"`
}

// MetricsConfig configures the prometheus export
type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path"` // written once at the end of a run
}

// LogConfig configures zerolog output
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
	JSON  bool   `yaml:"json"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Simulation: SimulationConfig{
			StartDate:          "2017-01-01",
			EndDate:            "2019-01-01",
			TradingDaysPerYear: 252,
			Iterations:         1000,
			BenchmarkSymbol:    "QQQ",
			Workers:            1,
			FetchTimeoutSecs:   30,
		},
		Providers: DefaultProviders(),
		Cache: CacheConfig{
			TTLSecs:   24 * 3600,
			KeyPrefix: "randomwalk:closes:",
		},
		Output: OutputConfig{
			BatchDir:  "./data/output",
			SingleDir: "./data/output_single_stock",
		},
		Ledger: LedgerConfig{
			MaxOpenConns:     5,
			QueryTimeoutSecs: 10,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
// The result is not validated; callers apply their overrides and then call Validate.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	cfg.applyEnv()
	return &cfg, nil
}

// applyEnv fills secrets that are usually not kept in files
func (c *Config) applyEnv() {
	if v := os.Getenv("INFLUXDB_TOKEN"); v != "" && c.Providers.Influx.Token == "" {
		c.Providers.Influx.Token = v
	}
	if v := os.Getenv("INFLUXDB_URL"); v != "" && c.Providers.Influx.URL == "" {
		c.Providers.Influx.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" && c.Cache.RedisAddr == "" {
		c.Cache.RedisAddr = v
	}
	if v := os.Getenv("PG_DSN"); v != "" && c.Ledger.DSN == "" {
		c.Ledger.DSN = v
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if err := c.Simulation.Validate(); err != nil {
		return fmt.Errorf("simulation: %w", err)
	}
	if err := c.Providers.Validate(); err != nil {
		return fmt.Errorf("providers: %w", err)
	}
	if c.Cache.Enabled && c.Cache.TTLSecs <= 0 {
		return fmt.Errorf("cache: ttl_secs must be positive, got %d", c.Cache.TTLSecs)
	}
	if c.Output.BatchDir == "" || c.Output.SingleDir == "" {
		return fmt.Errorf("output: batch_dir and single_dir are required")
	}
	if c.Ledger.Enabled && c.Ledger.DSN == "" {
		return fmt.Errorf("ledger: dsn is required when enabled")
	}
	return nil
}

// Validate checks the simulation window and sizes
func (s *SimulationConfig) Validate() error {
	start, end, err := s.Window()
	if err != nil {
		return err
	}
	if !end.After(start) {
		return fmt.Errorf("end_date %s must be after start_date %s", s.EndDate, s.StartDate)
	}
	if s.TradingDaysPerYear <= 0 {
		return fmt.Errorf("trading_days_per_year must be positive, got %d", s.TradingDaysPerYear)
	}
	if s.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive, got %d", s.Iterations)
	}
	if s.BenchmarkSymbol == "" {
		return fmt.Errorf("benchmark_symbol cannot be empty")
	}
	if s.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", s.Workers)
	}
	if s.FetchTimeoutSecs <= 0 {
		return fmt.Errorf("fetch_timeout_secs must be positive, got %d", s.FetchTimeoutSecs)
	}
	return nil
}

// Window parses the start and end dates
func (s *SimulationConfig) Window() (time.Time, time.Time, error) {
	start, err := time.Parse(walk.DateLayout, s.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start_date: %w", err)
	}
	end, err := time.Parse(walk.DateLayout, s.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end_date: %w", err)
	}
	return start, end, nil
}

// FetchTimeout returns the per-symbol fetch timeout
func (s *SimulationConfig) FetchTimeout() time.Duration {
	return time.Duration(s.FetchTimeoutSecs) * time.Second
}

// TTL returns the cache TTL as a time.Duration
func (c *CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSecs) * time.Second
}

// QueryTimeout returns the ledger query timeout
func (l *LedgerConfig) QueryTimeout() time.Duration {
	return time.Duration(l.QueryTimeoutSecs) * time.Second
}
