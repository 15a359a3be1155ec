package output

import (
	"encoding/json"
	"fmt"
	stdio "io"

	"github.com/sawpanic/randomwalk/internal/domain/walk"
	"github.com/sawpanic/randomwalk/internal/io"
)

// SymbolSummary is one symbol's line in the run summary
type SymbolSummary struct {
	Symbol     string        `json:"symbol"`
	State      string        `json:"state"`
	Reason     string        `json:"reason,omitempty"`
	Error      string        `json:"error,omitempty"`
	Drift      float64       `json:"drift,omitempty"`
	Volatility float64       `json:"volatility,omitempty"`
	StartPrice float64       `json:"start_price,omitempty"`
	Rows       int           `json:"rows"`
	Terminal   *walk.Summary `json:"terminal,omitempty"`
}

// RunSummary describes a finished run
type RunSummary struct {
	RunID       string          `json:"run_id"`
	Mode        string          `json:"mode"`
	StartDate   string          `json:"start_date"`
	EndDate     string          `json:"end_date"`
	Done        int             `json:"done"`
	Skipped     int             `json:"skipped"`
	Failed      int             `json:"failed"`
	ElapsedSecs float64         `json:"elapsed_secs"`
	Symbols     []SymbolSummary `json:"symbols"`
}

type Emitter struct{}

func NewEmitter() *Emitter {
	return &Emitter{}
}

// EmitSummaryJSON writes the run summary atomically as indented JSON
func (e *Emitter) EmitSummaryJSON(filePath string, summary RunSummary) error {
	err := io.WriteAtomic(filePath, func(w stdio.Writer) error {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(summary)
	})
	if err != nil {
		return fmt.Errorf("failed to write summary JSON: %w", err)
	}
	return nil
}
