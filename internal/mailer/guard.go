// Package mailer wraps a provider client with a per-call timeout, a circuit
// breaker and send metrics.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"bulkmail/internal/domain"
	"bulkmail/internal/observability"
)

type Sender interface {
	Send(ctx context.Context, msg domain.Message) (domain.Receipt, error)
}

type BreakerSettings struct {
	MaxRequests         uint32
	OpenTimeout         time.Duration
	ConsecutiveFailures uint32
}

// NewBreaker trips after N consecutive provider failures. Recipient-level
// rejections (non-retryable) do not count against the provider.
func NewBreaker(name string, s BreakerSettings) *gobreaker.CircuitBreaker {
	threshold := s.ConsecutiveFailures
	if threshold == 0 {
		threshold = 10
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= threshold },
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrNonRetryable)
		},
	})
}

// NewLimiter returns nil (no limit) when rps is not positive.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Guard is safe for concurrent use when Next is.
type Guard struct {
	Next    Sender
	Breaker *gobreaker.CircuitBreaker
	// Limiter is optional and shared by every dispatch worker.
	Limiter *rate.Limiter
	Timeout time.Duration
}

func (g *Guard) Send(ctx context.Context, msg domain.Message) (domain.Receipt, error) {
	if g.Limiter != nil {
		if err := g.Limiter.Wait(ctx); err != nil {
			observability.MailerSend.WithLabelValues("rate_limited").Inc()
			return domain.Receipt{}, fmt.Errorf("%w: rate limit wait: %w", domain.ErrSend, err)
		}
	}
	start := time.Now()
	call := func() (any, error) {
		callCtx := ctx
		if g.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.Timeout)
			defer cancel()
		}
		r, err := g.Next.Send(callCtx, msg)
		return r, err
	}

	var (
		res any
		err error
	)
	if g.Breaker == nil {
		res, err = call()
	} else {
		res, err = g.Breaker.Execute(call)
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		observability.MailerSend.WithLabelValues("breaker_open").Inc()
		return domain.Receipt{}, fmt.Errorf("%w: %v", domain.ErrSend, err)
	}
	observability.MailerLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.MailerSend.WithLabelValues("error").Inc()
		if !errors.Is(err, domain.ErrSend) {
			err = fmt.Errorf("%w: %w", domain.ErrSend, err)
		}
		return domain.Receipt{}, err
	}
	observability.MailerSend.WithLabelValues("ok").Inc()
	return res.(domain.Receipt), nil
}
