package mailer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bulkmail/internal/domain"
)

type stubSender struct {
	calls int
	err   error
}

func (s *stubSender) Send(ctx context.Context, msg domain.Message) (domain.Receipt, error) {
	s.calls++
	if s.err != nil {
		return domain.Receipt{}, s.err
	}
	return domain.Receipt{ID: "id-" + msg.To}, nil
}

func TestGuardPassesThrough(t *testing.T) {
	g := &Guard{Next: &stubSender{}, Breaker: NewBreaker("test", BreakerSettings{})}
	r, err := g.Send(context.Background(), domain.Message{To: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "id-a@example.com", r.ID)
}

func TestGuardWrapsErrors(t *testing.T) {
	g := &Guard{Next: &stubSender{err: errors.New("connection reset")}}
	_, err := g.Send(context.Background(), domain.Message{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSend))
}

func TestGuardBreakerOpens(t *testing.T) {
	next := &stubSender{err: errors.New("503")}
	g := &Guard{Next: next, Breaker: NewBreaker("test", BreakerSettings{ConsecutiveFailures: 2, OpenTimeout: time.Minute})}

	for i := 0; i < 2; i++ {
		_, err := g.Send(context.Background(), domain.Message{})
		require.Error(t, err)
	}
	_, err := g.Send(context.Background(), domain.Message{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSend))
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.Equal(t, 2, next.calls, "open breaker must not call the provider")
}

func TestGuardNonRetryableDoesNotTrip(t *testing.T) {
	next := &stubSender{err: fmt.Errorf("%w: %w: bad mailbox", domain.ErrSend, domain.ErrNonRetryable)}
	g := &Guard{Next: next, Breaker: NewBreaker("test", BreakerSettings{ConsecutiveFailures: 1, OpenTimeout: time.Minute})}

	for i := 0; i < 3; i++ {
		_, err := g.Send(context.Background(), domain.Message{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrNonRetryable))
	}
	assert.Equal(t, 3, next.calls)
}

func TestGuardTimeout(t *testing.T) {
	g := &Guard{Next: senderFunc(func(ctx context.Context, msg domain.Message) (domain.Receipt, error) {
		<-ctx.Done()
		return domain.Receipt{}, ctx.Err()
	}), Timeout: 10 * time.Millisecond}

	_, err := g.Send(context.Background(), domain.Message{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

type senderFunc func(ctx context.Context, msg domain.Message) (domain.Receipt, error)

func (f senderFunc) Send(ctx context.Context, msg domain.Message) (domain.Receipt, error) {
	return f(ctx, msg)
}

func TestGuardLimiter(t *testing.T) {
	assert.Nil(t, NewLimiter(0, 10))

	next := &stubSender{}
	g := &Guard{Next: next, Limiter: NewLimiter(0.001, 1)}
	_, err := g.Send(context.Background(), domain.Message{To: "a@example.com"})
	require.NoError(t, err)

	// the single token is spent; the next wait cannot finish before the deadline
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.Send(ctx, domain.Message{To: "b@example.com"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSend))
	assert.Equal(t, 1, next.calls)
}
