package walk

import (
	"math"
	"math/rand"
	"time"
)

// Simulator draws geometric random-walk price paths. It owns its generator and is
// not safe for concurrent use; give each pipeline its own instance.
type Simulator struct {
	rng *rand.Rand
}

// NewSimulator creates a simulator seeded with seed. A zero seed draws one from the clock.
func NewSimulator(seed int64) *Simulator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return NewSimulatorFromSource(rand.NewSource(seed))
}

// NewSimulatorFromSource wraps an existing random source
func NewSimulatorFromSource(src rand.Source) *Simulator {
	return &Simulator{rng: rand.New(src)}
}

// Next produces a single path of horizon+1 prices starting at start
func (s *Simulator) Next(stats Statistics, start float64, horizon int) []float64 {
	mean := stats.Drift / float64(horizon)
	stddev := stats.Volatility / math.Sqrt(float64(horizon))

	path := make([]float64, horizon+1)
	path[0] = start
	for t := 1; t <= horizon; t++ {
		factor := s.rng.NormFloat64()*stddev + mean + 1
		path[t] = path[t-1] * factor
	}
	return path
}

// Generate materializes n paths in iteration order
func (s *Simulator) Generate(stats Statistics, start float64, horizon, n int) [][]float64 {
	paths := make([][]float64, n)
	for i := range paths {
		paths[i] = s.Next(stats, start, horizon)
	}
	return paths
}
