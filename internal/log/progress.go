package log

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Progress logs how far a batch has come. It is safe for concurrent use.
type Progress struct {
	mu        sync.Mutex
	name      string
	total     int
	current   int
	counts    map[string]int
	startTime time.Time
	every     int
}

// NewProgress creates a tracker for total items that logs every `every` steps
// (and always on the last one). every <= 0 logs each step.
func NewProgress(name string, total, every int) *Progress {
	if every <= 0 {
		every = 1
	}
	return &Progress{
		name:      name,
		total:     total,
		counts:    make(map[string]int),
		startTime: time.Now(),
		every:     every,
	}
}

// Step records one finished item in the given terminal state
func (p *Progress) Step(item, state string) {
	p.mu.Lock()
	p.current++
	p.counts[state]++
	current, total := p.current, p.total
	elapsed := time.Since(p.startTime)
	p.mu.Unlock()

	if current%p.every != 0 && current != total {
		return
	}

	rate := 0.0
	if elapsed > 0 {
		rate = float64(current) / elapsed.Seconds()
	}
	evt := log.Info().
		Str("progress", p.name).
		Str("symbol", item).
		Str("state", state).
		Int("current", current).
		Int("total", total).
		Float64("per_sec", rate)
	if eta, ok := p.eta(current, elapsed); ok {
		evt = evt.Dur("eta", eta)
	}
	evt.Msg("Batch progress")
}

func (p *Progress) eta(current int, elapsed time.Duration) (time.Duration, bool) {
	if current == 0 || current >= p.total {
		return 0, false
	}
	perItem := elapsed / time.Duration(current)
	return perItem * time.Duration(p.total-current), true
}

// Counts returns a copy of the per-state tallies
func (p *Progress) Counts() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int, len(p.counts))
	for k, v := range p.counts {
		out[k] = v
	}
	return out
}

// Finish logs the total execution time
func (p *Progress) Finish() time.Duration {
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()

	elapsed := time.Since(p.startTime)
	log.Info().
		Str("progress", p.name).
		Int("processed", current).
		Int("total", p.total).
		Dur("elapsed", elapsed).
		Msgf("Execution time: %.2fs for %d companies", elapsed.Seconds(), current)
	return elapsed
}
