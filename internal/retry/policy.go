// Package retry provides an explicit retry policy for I/O calls.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidMaxAttempts indicates a policy with fewer than one attempt.
var ErrInvalidMaxAttempts = errors.New("max attempts must be at least 1")

// Default policy values.
const (
	DefaultMaxAttempts   = 5
	DefaultInitialDelay  = 2 * time.Second
	DefaultBackoffFactor = 2.0
	DefaultMaxDelay      = 30 * time.Second
)

// Policy describes how many times an operation is attempted and how long to
// wait between attempts. The zero value is not usable; use New.
type Policy struct {
	maxAttempts   int
	initialDelay  time.Duration
	backoffFactor float64
	maxDelay      time.Duration
	retryable     func(error) bool
	onRetry       func(attempt int, delay time.Duration, err error)
	sleep         func(ctx context.Context, d time.Duration) error
}

// Option configures a Policy.
type Option func(*Policy)

// WithMaxAttempts sets the total number of attempts, including the first.
func WithMaxAttempts(n int) Option {
	return func(p *Policy) { p.maxAttempts = n }
}

// WithInitialDelay sets the wait before the second attempt.
func WithInitialDelay(d time.Duration) Option {
	return func(p *Policy) { p.initialDelay = d }
}

// WithBackoffFactor sets the multiplier applied to the delay after each retry.
// A factor of 1 gives a fixed delay.
func WithBackoffFactor(f float64) Option {
	return func(p *Policy) { p.backoffFactor = f }
}

// WithMaxDelay caps the delay between attempts.
func WithMaxDelay(d time.Duration) Option {
	return func(p *Policy) { p.maxDelay = d }
}

// WithRetryable sets the predicate deciding whether an error is worth retrying.
// By default every error is retried.
func WithRetryable(fn func(error) bool) Option {
	return func(p *Policy) { p.retryable = fn }
}

// WithOnRetry registers a callback invoked before each wait.
func WithOnRetry(fn func(attempt int, delay time.Duration, err error)) Option {
	return func(p *Policy) { p.onRetry = fn }
}

// WithSleep replaces the wait function. Tests use it to avoid real delays.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Policy) { p.sleep = fn }
}

// New creates a Policy with defaults overridden by opts.
func New(opts ...Option) Policy {
	p := Policy{
		maxAttempts:   DefaultMaxAttempts,
		initialDelay:  DefaultInitialDelay,
		backoffFactor: DefaultBackoffFactor,
		maxDelay:      DefaultMaxDelay,
		retryable:     func(error) bool { return true },
		sleep:         sleepContext,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// With returns a copy of the policy with opts applied.
func (p Policy) With(opts ...Option) Policy {
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// MaxAttempts returns the total number of attempts.
func (p Policy) MaxAttempts() int { return p.maxAttempts }

// InitialDelay returns the wait before the second attempt.
func (p Policy) InitialDelay() time.Duration { return p.initialDelay }

// BackoffFactor returns the delay multiplier.
func (p Policy) BackoffFactor() float64 { return p.backoffFactor }

// Delay returns the wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	delay := float64(p.initialDelay)
	for i := 1; i < attempt; i++ {
		delay *= p.backoffFactor
	}
	d := time.Duration(delay)
	if p.maxDelay > 0 && d > p.maxDelay {
		return p.maxDelay
	}
	return d
}

// Do runs fn until it succeeds, returns a non-retryable error, the context is
// done, or the attempts are exhausted. The last error is returned wrapped.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.maxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return errors.Join(err, lastErr)
			}
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if p.retryable != nil && !p.retryable(lastErr) {
			return lastErr
		}
		if attempt == p.maxAttempts {
			break
		}

		delay := p.Delay(attempt)
		if p.onRetry != nil {
			p.onRetry(attempt, delay, lastErr)
		}
		if err := p.sleep(ctx, delay); err != nil {
			return errors.Join(err, lastErr)
		}
	}

	return fmt.Errorf("gave up after %d attempts: %w", p.maxAttempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
