// Package handler provides the queue message handlers of the enrichment
// pipeline.
package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/cosolvent/cosolvent/domain/fault"
	"github.com/cosolvent/cosolvent/domain/queue"
)

// Payload is a queue message body that can check its own fields.
type Payload interface {
	Validate() error
}

// Decode unmarshals and validates a delivery's payload. Malformed bodies are
// validation failures.
func Decode[T Payload](d queue.Delivery) (T, error) {
	var payload T
	if err := d.Decode(&payload); err != nil {
		return payload, fmt.Errorf("%w: %w", fault.ErrValidation, err)
	}
	if err := payload.Validate(); err != nil {
		return payload, err
	}
	return payload, nil
}

// Publish emits payload on the named queue. Unclassified failures become
// transient so the inbound message is redelivered.
func Publish(ctx context.Context, pub queue.Publisher, name queue.Name, payload any) error {
	err := queue.PublishJSON(ctx, pub, name, payload)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, queue.ErrUnknownQueue):
		err = fmt.Errorf("%w: %w", fault.ErrConfiguration, err)
	case fault.Classify(err) == fault.KindUnknown:
		err = fault.Transient(err)
	}
	return fmt.Errorf("publish %s: %w", name, err)
}
