package breakers

import (
	"errors"
	"time"

	cb "github.com/sony/gobreaker"
)

// ErrOpen is returned while the breaker is rejecting calls
var ErrOpen = cb.ErrOpenState

// Settings tune when a provider breaker trips
type Settings struct {
	ConsecutiveFailures uint32        // trip after this many failures in a row
	Cooldown            time.Duration // how long to stay open before probing
}

// DefaultSettings mirror the provider defaults: three strikes, one minute cooldown
func DefaultSettings() Settings {
	return Settings{ConsecutiveFailures: 3, Cooldown: 60 * time.Second}
}

// Breaker guards one market-data provider
type Breaker struct{ cb *cb.CircuitBreaker }

// New builds a breaker. Errors for which ignore returns true (for example an
// unknown symbol) are not counted as provider failures.
func New(name string, s Settings, ignore func(error) bool) *Breaker {
	st := cb.Settings{Name: name}
	st.Interval = s.Cooldown
	st.Timeout = s.Cooldown
	st.ReadyToTrip = func(counts cb.Counts) bool {
		return counts.ConsecutiveFailures >= s.ConsecutiveFailures
	}
	if ignore != nil {
		st.IsSuccessful = func(err error) bool { return err == nil || ignore(err) }
	}
	return &Breaker{cb: cb.NewCircuitBreaker(st)}
}

// Execute runs fn through the breaker
func (b *Breaker) Execute(fn func() (any, error)) (any, error) { return b.cb.Execute(fn) }

// State reports the breaker state name
func (b *Breaker) State() string { return b.cb.State().String() }

// IsOpen reports whether err came from a tripped breaker
func IsOpen(err error) bool {
	return errors.Is(err, cb.ErrOpenState) || errors.Is(err, cb.ErrTooManyRequests)
}
