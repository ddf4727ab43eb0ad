// Package queue provides the event bus domain types shared by the pipeline
// workers: queue names, deliveries and the publish/consume contract.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownQueue indicates a queue name outside the fixed enumeration.
var ErrUnknownQueue = errors.New("unknown queue")

// Name identifies a durable queue.
type Name string

// Name values.
const (
	AssetUploadQueue           Name = "asset_upload"
	MetadataCompletedQueue     Name = "metadata_completed"
	ProfileGeneratedQueue      Name = "profile_generated"
	ProfileApprovedQueue       Name = "profile_approved"
	AssetReadyForIndexingQueue Name = "asset_ready_for_indexing"
)

// String returns the queue name.
func (n Name) String() string { return string(n) }

// Names returns every queue in declaration order.
func Names() []Name {
	return []Name{
		AssetUploadQueue,
		MetadataCompletedQueue,
		ProfileGeneratedQueue,
		ProfileApprovedQueue,
		AssetReadyForIndexingQueue,
	}
}

// ParseName validates s against the queue enumeration.
func ParseName(s string) (Name, error) {
	for _, n := range Names() {
		if string(n) == s {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownQueue, s)
}

// Delivery is a single message handed to a consumer.
type Delivery struct {
	id        string
	queue     Name
	body      []byte
	attempt   int
	createdAt time.Time
}

// NewDelivery creates a Delivery. Attempt counts from 1.
func NewDelivery(id string, queue Name, body []byte, attempt int, createdAt time.Time) Delivery {
	b := make([]byte, len(body))
	copy(b, body)
	return Delivery{
		id:        id,
		queue:     queue,
		body:      b,
		attempt:   attempt,
		createdAt: createdAt,
	}
}

// ID returns the broker-assigned message id.
func (d Delivery) ID() string { return d.id }

// Queue returns the queue the message was consumed from.
func (d Delivery) Queue() Name { return d.queue }

// Body returns the raw JSON payload.
func (d Delivery) Body() []byte { return d.body }

// Attempt returns the delivery attempt, 1 for the first delivery.
func (d Delivery) Attempt() int { return d.attempt }

// Redelivered reports whether the message was delivered before.
func (d Delivery) Redelivered() bool { return d.attempt > 1 }

// CreatedAt returns when the message was published, if known.
func (d Delivery) CreatedAt() time.Time { return d.createdAt }

// Decode unmarshals the payload into v.
func (d Delivery) Decode(v any) error {
	if err := json.Unmarshal(d.body, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", d.queue, err)
	}
	return nil
}

// HandlerFunc processes one delivery. Returning nil acknowledges the
// message; returning an error hands it back to the broker for redelivery.
type HandlerFunc func(ctx context.Context, d Delivery) error

// Publisher emits messages onto a queue.
type Publisher interface {
	Publish(ctx context.Context, name Name, body []byte) error
}

// Bus is a durable publish/subscribe broker with at-least-once delivery.
type Bus interface {
	Publisher

	// Consume blocks, invoking handler for each message on the queue until
	// ctx is cancelled. Messages are acknowledged only after handler
	// returns nil.
	Consume(ctx context.Context, name Name, handler HandlerFunc) error

	// Close releases broker resources.
	Close() error
}

// PublishJSON marshals v and publishes it onto the named queue.
func PublishJSON(ctx context.Context, pub Publisher, name Name, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", name, err)
	}
	return pub.Publish(ctx, name, body)
}
