// Package bus implements queue.Bus on RabbitMQ and on the application
// database.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/cosolvent/cosolvent/domain/fault"
	"github.com/cosolvent/cosolvent/domain/queue"
	"github.com/cosolvent/cosolvent/internal/database"
	"github.com/cosolvent/cosolvent/internal/retry"
)

// ErrUnsupportedScheme indicates a BUS_URL with an unknown scheme.
var ErrUnsupportedScheme = fmt.Errorf("%w: unsupported bus url scheme", fault.ErrConfiguration)

// Default timings.
const (
	DefaultPollPeriod      = time.Second
	DefaultLeaseTimeout    = 5 * time.Minute
	DefaultRedeliveryDelay = time.Second
)

type options struct {
	publish         retry.Policy
	pollPeriod      time.Duration
	leaseTimeout    time.Duration
	redeliveryDelay time.Duration
	logger          *slog.Logger
	now             func() time.Time
}

func newOptions(opts ...Option) options {
	o := options{
		publish:         retry.New(retry.WithRetryable(fault.Retryable)),
		pollPeriod:      DefaultPollPeriod,
		leaseTimeout:    DefaultLeaseTimeout,
		redeliveryDelay: DefaultRedeliveryDelay,
		logger:          slog.Default(),
		now:             func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures a bus.
type Option func(*options)

// WithPublishRetry sets the retry policy wrapped around every publish.
// Only transient failures are retried.
func WithPublishRetry(p retry.Policy) Option {
	return func(o *options) { o.publish = p.With(retry.WithRetryable(fault.Retryable)) }
}

// WithPollPeriod sets how often the database queue looks for messages.
func WithPollPeriod(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollPeriod = d
		}
	}
}

// WithLeaseTimeout sets how long a leased database message stays hidden
// from other consumers.
func WithLeaseTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.leaseTimeout = d
		}
	}
}

// WithRedeliveryDelay sets the pause before a failed message is offered again.
func WithRedeliveryDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.redeliveryDelay = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Open connects the bus selected by url: amqp:// or amqps:// for RabbitMQ,
// empty or "database" for the database queue.
func Open(ctx context.Context, url string, db database.Database, opts ...Option) (queue.Bus, error) {
	switch {
	case url == "" || strings.EqualFold(url, "database"):
		return NewDatabase(db, opts...), nil
	case strings.HasPrefix(url, "amqp://"), strings.HasPrefix(url, "amqps://"):
		return DialRabbitMQ(ctx, url, opts...)
	default:
		scheme, _, _ := strings.Cut(url, "://")
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
}

// safeHandle runs the handler, converting a panic into an error so the
// message is redelivered instead of killing the consumer.
func safeHandle(ctx context.Context, h queue.HandlerFunc, d queue.Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
		}
	}()
	return h(ctx, d)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func isContextDone(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
