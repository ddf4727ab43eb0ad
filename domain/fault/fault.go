// Package fault defines the error taxonomy shared by the pipeline stages.
//
// Concrete errors wrap one of the sentinel kinds so callers can classify them
// with errors.Is regardless of which layer produced them.
package fault

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	// ErrTransientIO covers network, broker, storage and provider timeouts.
	ErrTransientIO = errors.New("transient io failure")

	// ErrDataConsistency indicates a referenced asset or profile does not exist.
	ErrDataConsistency = errors.New("data consistency failure")

	// ErrValidation covers invalid input, schema-invalid LLM output and
	// embedding dimension mismatches.
	ErrValidation = errors.New("validation failure")

	// ErrConfiguration indicates missing or rejected provider credentials.
	ErrConfiguration = errors.New("configuration error")

	// ErrRedeliverable marks a validation failure that a fresh attempt may
	// not repeat, such as invalid model output.
	ErrRedeliverable = errors.New("redeliverable")
)

// Kind names an error class for logging and HTTP mapping.
type Kind string

// Kind values.
const (
	KindTransientIO     Kind = "transient_io"
	KindDataConsistency Kind = "data_consistency"
	KindValidation      Kind = "validation"
	KindConfiguration   Kind = "configuration"
	KindUnknown         Kind = "unknown"
)

// Classify returns the kind of err.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrDataConsistency):
		return KindDataConsistency
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrTransientIO):
		return KindTransientIO
	default:
		return KindUnknown
	}
}

// Retryable reports whether retrying the same operation may succeed.
func Retryable(err error) bool {
	return Classify(err) == KindTransientIO
}

// Permanent reports whether redelivering the message that caused err cannot
// succeed: the payload is invalid or references data that does not exist.
// Such messages are dead-lettered instead of requeued. Errors marked with
// ErrRedeliverable are never permanent.
func Permanent(err error) bool {
	if errors.Is(err, ErrRedeliverable) {
		return false
	}
	switch Classify(err) {
	case KindValidation, KindDataConsistency:
		return true
	}
	return false
}

// Transient wraps err as a transient failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransientIO, err)
}

// Validation builds a validation error with a formatted message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Missing builds a data consistency error for an entity that was not found.
func Missing(entity, id string) error {
	return fmt.Errorf("%w: %s %q not found", ErrDataConsistency, entity, id)
}
