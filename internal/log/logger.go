// Package log configures structured logging and carries per-request and
// per-message identifiers through context.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/cosolvent/cosolvent/internal/config"
)

type contextKey string

// Context keys for logging.
const (
	requestIDKey contextKey = "request_id"
	queueKey     contextKey = "queue"
	messageIDKey contextKey = "message_id"
	attemptKey   contextKey = "attempt"
)

// New creates a logger based on configuration, writing to stdout.
func New(cfg config.AppConfig) *slog.Logger {
	return NewWithWriter(os.Stdout, cfg.LogFormat(), cfg.LogLevel())
}

// NewWithWriter creates a logger that writes to w.
func NewWithWriter(w io.Writer, format config.LogFormat, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	switch format {
	case config.LogFormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = newTerminalHandler(w, opts)
	}
	return slog.New(contextHandler{Handler: handler})
}

// Configure creates a logger from configuration and installs it as the
// slog default.
func Configure(cfg config.AppConfig) *slog.Logger {
	logger := New(cfg)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel converts a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithRequestID adds an HTTP request ID to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID extracts the request ID from context.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithMessage tags the context with the queue, message ID and delivery
// attempt of the message being handled.
func WithMessage(ctx context.Context, queue, messageID string, attempt int) context.Context {
	ctx = context.WithValue(ctx, queueKey, queue)
	ctx = context.WithValue(ctx, messageIDKey, messageID)
	return context.WithValue(ctx, attemptKey, attempt)
}

// MessageID extracts the message ID from context.
func MessageID(ctx context.Context) string {
	id, _ := ctx.Value(messageIDKey).(string)
	return id
}

// contextHandler adds identifiers stored in the record's context to every
// record. Use the *Context logging methods for them to appear.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
			r.AddAttrs(slog.String(string(requestIDKey), id))
		}
		if q, ok := ctx.Value(queueKey).(string); ok && q != "" {
			r.AddAttrs(slog.String(string(queueKey), q))
		}
		if id, ok := ctx.Value(messageIDKey).(string); ok && id != "" {
			r.AddAttrs(slog.String(string(messageIDKey), id))
		}
		if n, ok := ctx.Value(attemptKey).(int); ok && n > 1 {
			r.AddAttrs(slog.Int(string(attemptKey), n))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{Handler: h.Handler.WithGroup(name)}
}
