package bus

import (
	"context"
	"errors"
	"fmt"

	"github.com/cosolvent/cosolvent/domain/fault"
	"github.com/cosolvent/cosolvent/domain/queue"
	"github.com/cosolvent/cosolvent/infrastructure/persistence"
	"github.com/cosolvent/cosolvent/internal/database"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Database is a durable queue.Bus backed by the queue_messages table.
//
// Consumers poll for the oldest visible message and lease it by moving its
// visible_at forward. A lease is taken with an optimistic update keyed by the
// old visible_at, so two consumers never hold the same message. A message is
// deleted after its handler succeeds. A transient failure makes it visible
// again after the redelivery delay; a validation or data consistency failure
// dead-letters it in place. A consumer that dies mid-message loses its lease
// after the lease timeout, giving at-least-once delivery.
type Database struct {
	db   database.Database
	opts options
}

// NewDatabase creates a database-backed bus. The queue_messages table must
// exist (see persistence.AutoMigrate).
func NewDatabase(db database.Database, opts ...Option) *Database {
	return &Database{db: db, opts: newOptions(opts...)}
}

// Publish stores a message, retrying transient failures.
func (b *Database) Publish(ctx context.Context, name queue.Name, body []byte) error {
	if _, err := queue.ParseName(string(name)); err != nil {
		return err
	}

	now := b.opts.now()
	msg := persistence.QueueMessageModel{
		ID:        uuid.NewString(),
		Queue:     string(name),
		Body:      body,
		VisibleAt: now,
		CreatedAt: now,
	}

	return b.opts.publish.Do(ctx, func(ctx context.Context) error {
		if err := b.db.Session(ctx).Create(&msg).Error; err != nil {
			if isContextDone(ctx, err) {
				return err
			}
			return fault.Transient(fmt.Errorf("publish to %s: %w", name, err))
		}
		return nil
	})
}

// Consume handles messages from the named queue one at a time until ctx is
// cancelled.
func (b *Database) Consume(ctx context.Context, name queue.Name, handler queue.HandlerFunc) error {
	if _, err := queue.ParseName(string(name)); err != nil {
		return err
	}

	logger := b.opts.logger.With("queue", string(name))
	for {
		if ctx.Err() != nil {
			return nil
		}

		msg, ok, err := b.lease(ctx, name)
		if err != nil {
			if isContextDone(ctx, err) {
				return nil
			}
			logger.Error("failed to lease message", "error", err)
			if !sleep(ctx, b.opts.pollPeriod) {
				return nil
			}
			continue
		}
		if !ok {
			if !sleep(ctx, b.opts.pollPeriod) {
				return nil
			}
			continue
		}

		d := queue.NewDelivery(msg.ID, name, msg.Body, msg.Attempts+1, msg.CreatedAt)
		handleErr := safeHandle(ctx, handler, d)

		// Settle even when shutting down so the lease does not linger.
		settleCtx := context.WithoutCancel(ctx)
		if handleErr == nil {
			if err := b.ack(settleCtx, msg.ID); err != nil {
				logger.Error("failed to ack message", "message_id", msg.ID, "error", err)
			}
			continue
		}
		if fault.Permanent(handleErr) {
			if err := b.deadLetter(settleCtx, msg.ID, handleErr); err != nil {
				logger.Error("failed to dead-letter message", "message_id", msg.ID, "error", err)
				continue
			}
			logger.Warn("message dead-lettered",
				"message_id", msg.ID,
				"kind", string(fault.Classify(handleErr)),
				"error", handleErr,
			)
			continue
		}
		if err := b.nack(settleCtx, msg.ID); err != nil {
			logger.Error("failed to requeue message", "message_id", msg.ID, "error", err)
		}
	}
}

// Close releases nothing; the database is owned by the caller.
func (b *Database) Close() error { return nil }

// Pending returns the number of messages waiting in the named queue,
// including leased ones. Dead-lettered messages are not counted.
func (b *Database) Pending(ctx context.Context, name queue.Name) (int64, error) {
	return b.count(ctx, name, "dead_at IS NULL")
}

// DeadLettered returns the number of dead-lettered messages in the named
// queue.
func (b *Database) DeadLettered(ctx context.Context, name queue.Name) (int64, error) {
	return b.count(ctx, name, "dead_at IS NOT NULL")
}

func (b *Database) count(ctx context.Context, name queue.Name, cond string) (int64, error) {
	var n int64
	err := b.db.Session(ctx).Model(&persistence.QueueMessageModel{}).
		Where("queue = ?", string(name)).
		Where(cond).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", name, err)
	}
	return n, nil
}

func (b *Database) lease(ctx context.Context, name queue.Name) (persistence.QueueMessageModel, bool, error) {
	now := b.opts.now()

	var msg persistence.QueueMessageModel
	err := b.db.Session(ctx).
		Where("queue = ? AND visible_at <= ? AND dead_at IS NULL", string(name), now).
		Order("visible_at, created_at").
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return msg, false, nil
	}
	if err != nil {
		return msg, false, err
	}

	result := b.db.Session(ctx).Model(&persistence.QueueMessageModel{}).
		Where("id = ? AND visible_at = ?", msg.ID, msg.VisibleAt).
		Update("visible_at", now.Add(b.opts.leaseTimeout))
	if result.Error != nil {
		return msg, false, result.Error
	}
	// Another consumer took it first.
	if result.RowsAffected == 0 {
		return msg, false, nil
	}
	return msg, true, nil
}

func (b *Database) ack(ctx context.Context, id string) error {
	return b.db.Session(ctx).Where("id = ?", id).Delete(&persistence.QueueMessageModel{}).Error
}

func (b *Database) nack(ctx context.Context, id string) error {
	visible := b.opts.now().Add(b.opts.redeliveryDelay)
	return b.db.Session(ctx).Model(&persistence.QueueMessageModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"visible_at": visible,
		}).Error
}

func (b *Database) deadLetter(ctx context.Context, id string, cause error) error {
	return b.db.Session(ctx).Model(&persistence.QueueMessageModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"dead_at":    b.opts.now(),
			"last_error": cause.Error(),
		}).Error
}
