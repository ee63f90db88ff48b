// Package client holds the cart side's view of the stock ledger: an HTTP
// directory and a gRPC directory, both behind a circuit breaker.
package client

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/rl1809/bookshop/internal/core/domain"
)

const bookServiceName = "book-service"

// guard wraps remote calls in a circuit breaker. Only downstream failures
// count against the breaker; a "not found" is a valid answer.
type guard struct {
	cb       *gobreaker.CircuitBreaker[struct{}]
	attempts int
	backoff  time.Duration
}

func newGuard(attempts int, backoff time.Duration, logger zerolog.Logger) *guard {
	if attempts < 1 {
		attempts = 1
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        bookServiceName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, domain.ErrDownstreamUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})

	return &guard{cb: cb, attempts: attempts, backoff: backoff}
}

// call runs fn once. Mutating calls go through here and are never retried.
func (g *guard) call(fn func() error) error {
	_, err := g.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &domain.DownstreamError{Service: bookServiceName, Err: err}
	}
	return err
}

// read runs a side-effect free fn, retrying downstream failures with a
// linear backoff while ctx allows.
func (g *guard) read(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < g.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return err
			case <-time.After(g.backoff * time.Duration(attempt)):
			}
		}

		err = g.call(fn)
		if err == nil || !errors.Is(err, domain.ErrDownstreamUnavailable) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

// transportError classifies a failed round trip.
func transportError(ctx context.Context, err error) error {
	var netErr net.Error
	timeout := errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout())

	return &domain.DownstreamError{Service: bookServiceName, Timeout: timeout, Err: err}
}
