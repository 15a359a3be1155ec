package walk

import (
	"math"
	"sort"
)

// Band holds per-day quantiles across all paths of a run
type Band struct {
	Quantile float64
	Prices   []float64
}

// Summary condenses a set of paths into terminal-price quantiles
type Summary struct {
	Paths int     `json:"paths"`
	P05   float64 `json:"p05"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	Mean  float64 `json:"mean"`
}

// Summarize reports quantiles of the final price across paths
func Summarize(paths [][]float64) Summary {
	if len(paths) == 0 {
		return Summary{}
	}
	terminal := make([]float64, len(paths))
	sum := 0.0
	for i, p := range paths {
		terminal[i] = p[len(p)-1]
		sum += terminal[i]
	}
	sort.Float64s(terminal)
	return Summary{
		Paths: len(paths),
		P05:   quantile(terminal, 0.05),
		P50:   quantile(terminal, 0.50),
		P95:   quantile(terminal, 0.95),
		Mean:  sum / float64(len(paths)),
	}
}

// Bands computes the given quantiles for every day of the horizon
func Bands(paths [][]float64, quantiles ...float64) []Band {
	if len(paths) == 0 {
		return nil
	}
	days := len(paths[0])
	bands := make([]Band, len(quantiles))
	for i, q := range quantiles {
		bands[i] = Band{Quantile: q, Prices: make([]float64, days)}
	}

	column := make([]float64, len(paths))
	for t := 0; t < days; t++ {
		for i, p := range paths {
			column[i] = p[t]
		}
		sort.Float64s(column)
		for i, q := range quantiles {
			bands[i].Prices[t] = quantile(column, q)
		}
	}
	return bands
}

// quantile interpolates linearly between closest ranks of sorted values
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
