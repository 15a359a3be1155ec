package walk

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDataUnavailable is returned when the market-data source has nothing for a symbol
	ErrDataUnavailable = errors.New("historical data unavailable")
	// ErrInsufficientData is returned when a series is too short to derive statistics
	ErrInsufficientData = errors.New("insufficient historical data")
	// ErrLengthMismatch is returned when a series does not cover every trading day of the window
	ErrLengthMismatch = errors.New("series length differs from expected trading days")
	// ErrWrite is returned when the output sink rejects a batch
	ErrWrite = errors.New("output write failed")
)

// SymbolError carries the context of a failed symbol pipeline
type SymbolError struct {
	Symbol string
	Start  time.Time
	End    time.Time
	Stage  string
	Err    error
}

func (e *SymbolError) Error() string {
	return fmt.Sprintf("%s [%s..%s] %s: %v", e.Symbol,
		e.Start.Format(DateLayout), e.End.Format(DateLayout), e.Stage, e.Err)
}

func (e *SymbolError) Unwrap() error {
	return e.Err
}

// Reason maps an error to the short label used in logs and metrics
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDataUnavailable):
		return "data_unavailable"
	case errors.Is(err, ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, ErrLengthMismatch):
		return "length_mismatch"
	case errors.Is(err, ErrWrite):
		return "write_failed"
	default:
		return "unknown"
	}
}
