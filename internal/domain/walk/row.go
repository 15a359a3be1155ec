package walk

import (
	"fmt"
	"strconv"
)

// Row is one simulated path as written to the output table:
// symbol, label, iteration, then horizon+1 prices
type Row struct {
	Symbol    string
	Label     int
	Iteration int
	Prices    []float64
}

// Rows wraps generated paths into output rows with stable iteration indices
func Rows(symbol string, label int, paths [][]float64) []Row {
	rows := make([]Row, len(paths))
	for i, p := range paths {
		rows[i] = Row{Symbol: symbol, Label: label, Iteration: i, Prices: p}
	}
	return rows
}

// Record renders the row as CSV fields
func (r Row) Record() []string {
	rec := make([]string, 0, 3+len(r.Prices))
	rec = append(rec, r.Symbol, strconv.Itoa(r.Label), strconv.Itoa(r.Iteration))
	for _, p := range r.Prices {
		rec = append(rec, strconv.FormatFloat(p, 'g', -1, 64))
	}
	return rec
}

// ParseRow is the inverse of Record
func ParseRow(rec []string) (Row, error) {
	if len(rec) < 4 {
		return Row{}, fmt.Errorf("row has %d fields, need at least 4", len(rec))
	}
	label, err := strconv.Atoi(rec[1])
	if err != nil {
		return Row{}, fmt.Errorf("bad label %q: %w", rec[1], err)
	}
	iter, err := strconv.Atoi(rec[2])
	if err != nil {
		return Row{}, fmt.Errorf("bad iteration %q: %w", rec[2], err)
	}
	prices := make([]float64, len(rec)-3)
	for i, f := range rec[3:] {
		if prices[i], err = strconv.ParseFloat(f, 64); err != nil {
			return Row{}, fmt.Errorf("bad price at column %d: %w", i+3, err)
		}
	}
	return Row{Symbol: rec[0], Label: label, Iteration: iter, Prices: prices}, nil
}
