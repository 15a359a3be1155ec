package config

import (
	"fmt"
	"time"
)

// ProvidersConfig selects and configures the market-data source
type ProvidersConfig struct {
	Source string       `yaml:"source"` // yahoo | influx
	Yahoo  YahooConfig  `yaml:"yahoo"`
	Influx InfluxConfig `yaml:"influx"`
}

// YahooConfig configures the Yahoo chart API client
type YahooConfig struct {
	BaseURL    string        `yaml:"base_url"`
	UserAgent  string        `yaml:"user_agent"`
	RPS        float64       `yaml:"rps"`   // Requests per second
	Burst      int           `yaml:"burst"` // Burst capacity
	TimeoutMS  int           `yaml:"timeout_ms"`
	MaxRetries int           `yaml:"max_retries"`
	BackoffMS  BackoffConfig `yaml:"backoff_ms"`
	Circuit    CircuitConfig `yaml:"circuit"`
}

// InfluxConfig points at a bucket filled by the data fetcher
type InfluxConfig struct {
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement"`
}

// BackoffConfig represents exponential backoff configuration
type BackoffConfig struct {
	Base   int  `yaml:"base"`   // Base backoff in milliseconds
	Max    int  `yaml:"max"`    // Maximum backoff in milliseconds
	Jitter bool `yaml:"jitter"` // Enable jitter to prevent thundering herd
}

// CircuitConfig represents circuit breaker configuration
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold"` // Consecutive failures to open circuit
	CooldownSecs     int `yaml:"cooldown_secs"`     // Open duration before probing again
}

// DefaultProviders returns the Yahoo defaults and an influx layout matching the data fetcher
func DefaultProviders() ProvidersConfig {
	return ProvidersConfig{
		Source: "yahoo",
		Yahoo: YahooConfig{
			BaseURL:    "https://query1.finance.yahoo.com",
			UserAgent:  "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36",
			RPS:        2,
			Burst:      4,
			TimeoutMS:  15000,
			MaxRetries: 2,
			BackoffMS:  BackoffConfig{Base: 500, Max: 8000, Jitter: true},
			Circuit:    CircuitConfig{FailureThreshold: 5, CooldownSecs: 60},
		},
		Influx: InfluxConfig{
			URL:         "http://localhost:8086",
			Org:         "aleutian-finance",
			Bucket:      "financial-data",
			Measurement: "stock_prices",
		},
	}
}

// Validate ensures the selected provider is usable
func (p *ProvidersConfig) Validate() error {
	switch p.Source {
	case "yahoo":
		return p.Yahoo.Validate()
	case "influx":
		return p.Influx.Validate()
	default:
		return fmt.Errorf("unknown source %q (want yahoo or influx)", p.Source)
	}
}

// Validate ensures the Yahoo client settings are consistent
func (y *YahooConfig) Validate() error {
	if y.BaseURL == "" {
		return fmt.Errorf("yahoo: base_url cannot be empty")
	}
	if y.RPS <= 0 {
		return fmt.Errorf("yahoo: rps must be positive, got %v", y.RPS)
	}
	if y.Burst < 1 {
		return fmt.Errorf("yahoo: burst must be at least 1, got %d", y.Burst)
	}
	if y.MaxRetries < 0 {
		return fmt.Errorf("yahoo: max_retries cannot be negative, got %d", y.MaxRetries)
	}
	if err := y.BackoffMS.Validate(); err != nil {
		return fmt.Errorf("yahoo backoff_ms: %w", err)
	}
	if y.Circuit.FailureThreshold <= 0 {
		return fmt.Errorf("yahoo circuit: failure_threshold must be positive, got %d", y.Circuit.FailureThreshold)
	}
	return nil
}

// Validate ensures backoff configuration is valid
func (b *BackoffConfig) Validate() error {
	if b.Base <= 0 {
		return fmt.Errorf("base must be positive, got %d", b.Base)
	}
	if b.Max <= b.Base {
		return fmt.Errorf("max (%d) must be > base (%d)", b.Max, b.Base)
	}
	return nil
}

// Validate ensures the influx connection settings are present
func (i *InfluxConfig) Validate() error {
	if i.URL == "" || i.Org == "" || i.Bucket == "" {
		return fmt.Errorf("influx: url, org and bucket are required")
	}
	if i.Token == "" {
		return fmt.Errorf("influx: token is required (set INFLUXDB_TOKEN)")
	}
	if i.Measurement == "" {
		return fmt.Errorf("influx: measurement cannot be empty")
	}
	return nil
}

// RequestTimeout returns the per-request timeout
func (y *YahooConfig) RequestTimeout() time.Duration {
	return time.Duration(y.TimeoutMS) * time.Millisecond
}

// BaseBackoff returns the base backoff as a time.Duration
func (b *BackoffConfig) BaseBackoff() time.Duration {
	return time.Duration(b.Base) * time.Millisecond
}

// MaxBackoff returns the maximum backoff as a time.Duration
func (b *BackoffConfig) MaxBackoff() time.Duration {
	return time.Duration(b.Max) * time.Millisecond
}

// Cooldown returns the open-state duration
func (c *CircuitConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSecs) * time.Second
}
