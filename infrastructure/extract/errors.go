// Package extract turns stored assets into plain text.
package extract

import (
	"fmt"

	"github.com/cosolvent/cosolvent/domain/fault"
)

// Extraction errors. Each wraps a fault kind so callers can classify it.
// The storage-side errors also wrap ErrStorageUnavailable; their more
// specific kind takes precedence in fault.Classify.
var (
	// ErrStorageUnavailable indicates the object store could not be read.
	ErrStorageUnavailable = fmt.Errorf("%w: storage unavailable", fault.ErrTransientIO)

	// ErrObjectNotFound indicates the object does not exist.
	ErrObjectNotFound = fmt.Errorf("%w: %w: object not found", ErrStorageUnavailable, fault.ErrDataConsistency)

	// ErrObjectTooLarge indicates the object exceeds the size limit.
	ErrObjectTooLarge = fmt.Errorf("%w: %w: object too large", ErrStorageUnavailable, fault.ErrValidation)

	// ErrInvalidURL indicates an object URL that cannot be parsed.
	ErrInvalidURL = fmt.Errorf("%w: %w: invalid object url", ErrStorageUnavailable, fault.ErrValidation)

	// ErrParseFailed indicates the document bytes could not be parsed.
	ErrParseFailed = fmt.Errorf("%w: document parse failed", fault.ErrValidation)

	// ErrCaptionFailed indicates the captioning model call failed.
	ErrCaptionFailed = fmt.Errorf("%w: caption failed", fault.ErrTransientIO)
)
