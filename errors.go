package cosolvent

import (
	"errors"
	"fmt"

	"github.com/cosolvent/cosolvent/domain/fault"
)

// Exported errors for library consumers.
var (
	// ErrNoDatabase indicates no database was configured.
	ErrNoDatabase = fmt.Errorf("%w: cosolvent: no database configured", fault.ErrConfiguration)

	// ErrNoTextProvider indicates profile synthesis has no model to call.
	ErrNoTextProvider = fmt.Errorf("%w: cosolvent: no text generation provider configured", fault.ErrConfiguration)

	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("cosolvent: client is closed")
)
