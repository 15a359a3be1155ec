package walk

import (
	"fmt"
	"math"
)

// DriftBaseIndex is the observation used as the denominator of the growth rate.
// The reference model divides by the second close rather than the first; keep it
// here so the choice stays visible.
const DriftBaseIndex = 1

// Statistics are the annualized return inputs of the random walk
type Statistics struct {
	Drift      float64 `json:"drift"`      // compound annual growth rate
	Volatility float64 `json:"volatility"` // annualized stddev of daily simple returns
}

// ComputeStatistics derives drift and volatility from a historical series
func ComputeStatistics(series Series, tradingDaysPerYear int) (Statistics, error) {
	n := series.Len()
	if n < 2 {
		return Statistics{}, fmt.Errorf("%w: %s has %d observations", ErrInsufficientData, series.Symbol, n)
	}

	days := series.CalendarDays()
	if days <= 0 {
		return Statistics{}, fmt.Errorf("%w: %s spans %d calendar days", ErrInsufficientData, series.Symbol, days)
	}

	closes := series.Closes()
	cagr := math.Pow(closes[n-1]/closes[DriftBaseIndex], 365.0/float64(days)) - 1

	returns := make([]float64, n-1)
	for i := 1; i < n; i++ {
		returns[i-1] = closes[i]/closes[i-1] - 1
	}

	return Statistics{
		Drift:      cagr,
		Volatility: sampleStdDev(returns) * math.Sqrt(float64(tradingDaysPerYear)),
	}, nil
}

// sampleStdDev uses n-1 degrees of freedom; fewer than two values have no spread
func sampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	ss := 0.0
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)-1))
}
