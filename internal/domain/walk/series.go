package walk

import (
	"fmt"
	"time"
)

// Observation is a single daily close
type Observation struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// Series is an ordered run of daily closes for one symbol
type Series struct {
	Symbol       string        `json:"symbol"`
	Observations []Observation `json:"observations"`
}

// Len returns the number of observations
func (s Series) Len() int {
	return len(s.Observations)
}

// First returns the earliest observation. The series must not be empty.
func (s Series) First() Observation {
	return s.Observations[0]
}

// Last returns the latest observation. The series must not be empty.
func (s Series) Last() Observation {
	return s.Observations[len(s.Observations)-1]
}

// Closes returns the closing prices in date order
func (s Series) Closes() []float64 {
	closes := make([]float64, len(s.Observations))
	for i, o := range s.Observations {
		closes[i] = o.Close
	}
	return closes
}

// CalendarDays returns the whole calendar days between the first and last observation
func (s Series) CalendarDays() int {
	if len(s.Observations) < 2 {
		return 0
	}
	return int(s.Last().Date.Sub(s.First().Date) / (24 * time.Hour))
}

// Validate checks that dates are strictly increasing
func (s Series) Validate() error {
	for i := 1; i < len(s.Observations); i++ {
		prev, cur := s.Observations[i-1].Date, s.Observations[i].Date
		if !cur.After(prev) {
			return fmt.Errorf("series %s: observation %d (%s) not after %s",
				s.Symbol, i, cur.Format(DateLayout), prev.Format(DateLayout))
		}
	}
	return nil
}

// DateLayout is the date format used on the command line, in logs and in queries
const DateLayout = "2006-01-02"
