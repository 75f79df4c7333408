// Package breaker wraps calls to external dependencies in a circuit
// breaker with a per-call timeout. One Breaker guards one dependency; the
// engine keeps a breaker each for the credential store and the SMS
// provider.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// ErrUnavailable is returned when the circuit is open or a call exceeds
// its timeout, without waiting on the dependency.
var ErrUnavailable = errors.New("dependency unavailable")

// Config tunes one breaker.
type Config struct {
	// Name identifies the guarded dependency in state-change logs.
	Name string
	// CallTimeout bounds each individual call.
	CallTimeout time.Duration
	// FailureThreshold is the failure ratio that trips the circuit once
	// MinRequests have been observed in the current closed interval.
	FailureThreshold float64
	// MinRequests is the minimum sample size before the ratio is
	// consulted.
	MinRequests uint32
	// OpenTimeout is how long the circuit stays open before allowing a
	// probe.
	OpenTimeout time.Duration
	// OnStateChange, when set, is invoked on every transition.
	OnStateChange func(name string, from, to string)
	// IsSuccessful, when set, decides whether an error from the guarded
	// call counts against the circuit. Nil counts every non-nil error.
	// Errors filtered out here still reach the caller unchanged.
	IsSuccessful func(err error) bool
}

// Breaker guards a single dependency.
type Breaker struct {
	cb          *gobreaker.CircuitBreaker
	callTimeout time.Duration
}

// New creates a Breaker in the closed state. Half-open allows a single
// probe; its outcome alone decides whether the circuit closes again.
func New(cfg Config) *Breaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureThreshold
		},
	}
	if cfg.OnStateChange != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			cfg.OnStateChange(name, from.String(), to.String())
		}
	}
	if cfg.IsSuccessful != nil {
		settings.IsSuccessful = cfg.IsSuccessful
	}
	return &Breaker{
		cb:          gobreaker.NewCircuitBreaker(settings),
		callTimeout: cfg.CallTimeout,
	}
}

// Do runs fn under b with the configured per-call timeout. Open-circuit
// rejections and timeouts surface as ErrUnavailable; fn's own errors pass
// through unchanged while still counting as failures.
func Do[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	result, err := b.cb.Execute(func() (interface{}, error) {
		callCtx := ctx
		if b.callTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, b.callTimeout)
			defer cancel()
		}
		return fn(callCtx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%w: circuit open", ErrUnavailable)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w: call timed out", ErrUnavailable)
		}
		return zero, err
	}
	return result.(T), nil
}

// State returns the breaker's current state name.
func (b *Breaker) State() string {
	return b.cb.State().String()
}
