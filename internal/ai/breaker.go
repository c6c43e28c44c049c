package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

const (
	breakerMaxRequests  = 3
	breakerTimeout      = 30 * time.Second
	breakerTripFailures = 5
)

// BreakerCompleter guards a Completer with a circuit breaker so a flapping
// model backend cannot stall every enhancement pass behind its timeouts.
type BreakerCompleter struct {
	inner Completer
	cb    *gobreaker.CircuitBreaker
	log   *slog.Logger
}

var _ Completer = (*BreakerCompleter)(nil)

// NewBreakerCompleter wraps inner with consecutive-failure tripping.
func NewBreakerCompleter(inner Completer, logger *slog.Logger) *BreakerCompleter {
	if logger == nil {
		logger = slog.Default()
	}
	b := &BreakerCompleter{inner: inner, log: logger}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ai-" + inner.Name(),
		MaxRequests: breakerMaxRequests,
		Interval:    0,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("ai breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Caller-driven cancellation says nothing about backend health.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			return err == nil
		},
	})
	return b
}

// Name implements Completer.
func (b *BreakerCompleter) Name() string { return b.inner.Name() }

// Complete implements Completer. When the breaker is open the call fails
// fast with ErrUnavailable so the pipeline can degrade instead of waiting.
func (b *BreakerCompleter) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Complete(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("ai: %s: %w", b.inner.Name(), ErrUnavailable)
		}
		return nil, err
	}
	return out.(*CompletionResponse), nil
}

// State reports the current breaker state, for status surfaces.
func (b *BreakerCompleter) State() gobreaker.State {
	return b.cb.State()
}
