package simulate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sawpanic/randomwalk/internal/domain/walk"
)

// ErrModeConflict is returned when neither or both of symbol and symbol file are given
var ErrModeConflict = errors.New("exactly one of a symbol or a symbols file is required")

// Source supplies daily closes for a symbol within [start, end]
type Source interface {
	DailyCloses(ctx context.Context, symbol string, start, end time.Time) (walk.Series, error)
}

// Sink accepts the complete row set of one symbol in a single call
type Sink interface {
	Write(ctx context.Context, symbol string, rows []walk.Row) error
}

// Config is fixed for the lifetime of a run
type Config struct {
	TradingDaysPerYear int
	Iterations         int
	Start              time.Time
	End                time.Time
	BenchmarkSymbol    string
	Workers            int
	Seed               int64 // 0 draws a base seed from the clock
	FetchTimeout       time.Duration
}

// DefaultConfig returns the standard run parameters for a window
func DefaultConfig(start, end time.Time) Config {
	return Config{
		TradingDaysPerYear: 252,
		Iterations:         1000,
		Start:              start,
		End:                end,
		BenchmarkSymbol:    "QQQ",
		Workers:            1,
		FetchTimeout:       30 * time.Second,
	}
}

// Validate checks the run parameters
func (c Config) Validate() error {
	if c.TradingDaysPerYear <= 0 {
		return fmt.Errorf("trading days per year must be positive, got %d", c.TradingDaysPerYear)
	}
	if c.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive, got %d", c.Iterations)
	}
	if c.Start.IsZero() || c.End.IsZero() {
		return fmt.Errorf("start and end dates are required")
	}
	if !c.Start.Before(c.End) {
		return fmt.Errorf("start date %s must precede end date %s",
			c.Start.Format(walk.DateLayout), c.End.Format(walk.DateLayout))
	}
	if c.BenchmarkSymbol == "" {
		return fmt.Errorf("benchmark symbol is required")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive")
	}
	return nil
}

// Job is the immutable context of one symbol pipeline
type Job struct {
	Symbol string
	Label  int
	Index  int
}

// State is a position in the symbol pipeline
type State int

const (
	StateFetching State = iota
	StateValidating
	StateSimulating
	StateWriting
	StateDone
	StateSkipped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateValidating:
		return "validating"
	case StateSimulating:
		return "simulating"
	case StateWriting:
		return "writing"
	case StateDone:
		return "done"
	case StateSkipped:
		return "skipped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s == StateDone || s == StateSkipped || s == StateFailed
}

// Outcome is the terminal result of one job
type Outcome struct {
	Job        Job
	State      State
	Stats      walk.Statistics
	StartPrice float64
	Rows       int
	Summary    walk.Summary
	Elapsed    time.Duration
	Err        error // *walk.SymbolError unless State is StateDone
}

// Report aggregates a batch in input order
type Report struct {
	RunID    string
	Outcomes []Outcome
	Done     int
	Skipped  int
	Failed   int
	Elapsed  time.Duration
}

func (r *Report) add(o Outcome) {
	switch o.State {
	case StateDone:
		r.Done++
	case StateSkipped:
		r.Skipped++
	case StateFailed:
		r.Failed++
	}
}

// Mode selects between single-symbol and batch operation
type Mode int

const (
	ModeSingle Mode = iota
	ModeBatch
)

func (m Mode) String() string {
	if m == ModeBatch {
		return "batch"
	}
	return "single"
}

// ModeFor picks the mode from the CLI inputs. Exactly one must be set.
func ModeFor(symbol, symbolsFile string) (Mode, error) {
	switch {
	case symbol != "" && symbolsFile == "":
		return ModeSingle, nil
	case symbol == "" && symbolsFile != "":
		return ModeBatch, nil
	default:
		return ModeSingle, ErrModeConflict
	}
}
