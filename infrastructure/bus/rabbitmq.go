package bus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cosolvent/cosolvent/domain/fault"
	"github.com/cosolvent/cosolvent/domain/queue"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Errors returned by the RabbitMQ bus.
var (
	ErrBusClosed      = errors.New("bus closed")
	ErrPublishNacked  = errors.New("broker rejected message")
	ErrConsumerClosed = errors.New("consumer channel closed")
)

// RabbitMQ is a queue.Bus on a RabbitMQ broker.
//
// Every queue is declared durable with a "<queue>.dead" dead-letter queue,
// and messages are published persistent with publisher confirms. Consumers
// take one unacknowledged message at a time and acknowledge it only after the
// handler succeeds. Transient failures are requeued; validation and data
// consistency failures are rejected to the dead-letter queue.
type RabbitMQ struct {
	url  string
	opts options

	mu     sync.Mutex
	conn   *amqp.Connection
	pub    *amqp.Channel
	closed bool
}

// DialRabbitMQ connects to the broker at url and declares every queue.
func DialRabbitMQ(ctx context.Context, url string, opts ...Option) (*RabbitMQ, error) {
	r := &RabbitMQ{url: url, opts: newOptions(opts...)}
	err := r.opts.publish.Do(ctx, func(context.Context) error {
		_, err := r.publisher()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return r, nil
}

// Publish sends a persistent message and waits for the broker to confirm it.
// Connection failures reconnect and retry under the publish policy.
func (r *RabbitMQ) Publish(ctx context.Context, name queue.Name, body []byte) error {
	if _, err := queue.ParseName(string(name)); err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    r.opts.now(),
		Body:         body,
	}

	return r.opts.publish.Do(ctx, func(ctx context.Context) error {
		ch, err := r.publisher()
		if err != nil {
			return err
		}

		confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", string(name), false, false, msg)
		if err != nil {
			r.reset()
			if isContextDone(ctx, err) {
				return err
			}
			return fault.Transient(fmt.Errorf("publish to %s: %w", name, err))
		}

		acked, err := confirm.WaitContext(ctx)
		if err != nil {
			if isContextDone(ctx, err) {
				return err
			}
			return fault.Transient(fmt.Errorf("confirm %s: %w", name, err))
		}
		if !acked {
			return fault.Transient(fmt.Errorf("publish to %s: %w", name, ErrPublishNacked))
		}
		return nil
	})
}

// Consume handles messages from the named queue until ctx is cancelled,
// reconnecting when the broker connection drops.
func (r *RabbitMQ) Consume(ctx context.Context, name queue.Name, handler queue.HandlerFunc) error {
	if _, err := queue.ParseName(string(name)); err != nil {
		return err
	}

	logger := r.opts.logger.With("queue", string(name))
	for {
		err := r.consumeOnce(ctx, name, handler)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrBusClosed) {
			return err
		}
		logger.Warn("consumer interrupted, reconnecting", "error", err)
		if !sleep(ctx, r.opts.pollPeriod) {
			return nil
		}
	}
}

func (r *RabbitMQ) consumeOnce(ctx context.Context, name queue.Name, handler queue.HandlerFunc) error {
	conn, err := r.connection()
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		r.reset()
		return fault.Transient(fmt.Errorf("open channel: %w", err))
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(1, 0, false); err != nil {
		return fault.Transient(fmt.Errorf("set prefetch: %w", err))
	}
	if _, err := declare(ch, name); err != nil {
		return err
	}

	deliveries, err := ch.Consume(string(name), "", false, false, false, false, nil)
	if err != nil {
		return fault.Transient(fmt.Errorf("consume %s: %w", name, err))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return ErrConsumerClosed
			}
			r.handle(ctx, name, handler, d)
		}
	}
}

func (r *RabbitMQ) handle(ctx context.Context, name queue.Name, handler queue.HandlerFunc, d amqp.Delivery) {
	id := d.MessageId
	if id == "" {
		id = strconv.FormatUint(d.DeliveryTag, 10)
	}
	delivery := queue.NewDelivery(id, name, d.Body, attemptOf(d), d.Timestamp)

	if err := safeHandle(ctx, handler, delivery); err != nil {
		if fault.Permanent(err) {
			if nackErr := d.Nack(false, false); nackErr != nil {
				r.opts.logger.Error("failed to dead-letter message", "queue", string(name), "message_id", id, "error", nackErr)
				return
			}
			r.opts.logger.Warn("message dead-lettered",
				"queue", string(name),
				"message_id", id,
				"kind", string(fault.Classify(err)),
				"error", err,
			)
			return
		}
		sleep(ctx, r.opts.redeliveryDelay)
		if nackErr := d.Nack(false, true); nackErr != nil {
			r.opts.logger.Error("failed to requeue message", "queue", string(name), "message_id", id, "error", nackErr)
		}
		return
	}
	if err := d.Ack(false); err != nil {
		r.opts.logger.Error("failed to ack message", "queue", string(name), "message_id", id, "error", err)
	}
}

// Close closes the publisher channel and the connection. Active consumers
// stop once their channel closes.
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	if r.pub != nil {
		if err := r.pub.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if r.conn != nil {
		if err := r.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	r.pub, r.conn = nil, nil
	return errors.Join(errs...)
}

// connection returns the live connection, dialling if needed.
func (r *RabbitMQ) connection() (*amqp.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.connectLocked(); err != nil {
		return nil, err
	}
	return r.conn, nil
}

// publisher returns the confirm-mode publishing channel, reconnecting if
// needed.
func (r *RabbitMQ) publisher() (*amqp.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.connectLocked(); err != nil {
		return nil, err
	}
	if r.pub != nil && !r.pub.IsClosed() {
		return r.pub, nil
	}

	ch, err := r.conn.Channel()
	if err != nil {
		return nil, fault.Transient(fmt.Errorf("open channel: %w", err))
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fault.Transient(fmt.Errorf("enable confirms: %w", err))
	}
	for _, name := range queue.Names() {
		if _, err := declare(ch, name); err != nil {
			_ = ch.Close()
			return nil, err
		}
	}
	r.pub = ch
	return ch, nil
}

func (r *RabbitMQ) connectLocked() error {
	if r.closed {
		return ErrBusClosed
	}
	if r.conn != nil && !r.conn.IsClosed() {
		return nil
	}

	conn, err := amqp.DialConfig(r.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Properties: amqp.Table{
			"connection_name": "cosolvent",
		},
	})
	if err != nil {
		return fault.Transient(fmt.Errorf("dial broker: %w", err))
	}
	r.conn = conn
	r.pub = nil
	r.opts.logger.Info("connected to broker")
	return nil
}

// reset drops the publisher channel so the next call opens a fresh one.
func (r *RabbitMQ) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pub != nil {
		_ = r.pub.Close()
		r.pub = nil
	}
}

// DeadLetterQueue names the queue that receives rejected messages from name.
func DeadLetterQueue(name queue.Name) string {
	return string(name) + ".dead"
}

// queueArgs routes rejected messages through the default exchange to the
// dead-letter queue.
func queueArgs(name queue.Name) amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": DeadLetterQueue(name),
	}
}

// declare declares the dead-letter queue and then name itself.
func declare(ch *amqp.Channel, name queue.Name) (amqp.Queue, error) {
	if _, err := ch.QueueDeclare(DeadLetterQueue(name), true, false, false, false, nil); err != nil {
		return amqp.Queue{}, fault.Transient(fmt.Errorf("declare queue %s: %w", DeadLetterQueue(name), err))
	}
	q, err := ch.QueueDeclare(string(name), true, false, false, false, queueArgs(name))
	if err != nil {
		return q, fault.Transient(fmt.Errorf("declare queue %s: %w", name, err))
	}
	return q, nil
}

// attemptOf derives the 1-based delivery attempt from the quorum queue
// delivery-count header, falling back to the redelivered flag.
func attemptOf(d amqp.Delivery) int {
	if v, ok := d.Headers["x-delivery-count"]; ok {
		switch n := v.(type) {
		case int64:
			return int(n) + 1
		case int32:
			return int(n) + 1
		case int:
			return n + 1
		}
	}
	if d.Redelivered {
		return 2
	}
	return 1
}
