package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/cosolvent/cosolvent/internal/config"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var data map[string]any
		if err := json.Unmarshal([]byte(line), &data); err != nil {
			t.Fatalf("line is not valid JSON: %v: %s", err, line)
		}
		out = append(out, data)
	}
	return out
}

func TestNew(t *testing.T) {
	cfg := config.NewAppConfigWithOptions(
		config.WithLogLevel("DEBUG"),
		config.WithLogFormat(config.LogFormatJSON),
	)

	logger := New(cfg)
	if logger == nil {
		t.Fatal("New should not return nil")
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug to be enabled")
	}
}

func TestNewWithWriter_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LogFormatJSON, "WARN")

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}
	if lines[0]["msg"] != "warn message" {
		t.Errorf("unexpected first line: %v", lines[0])
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LogFormatJSON, "INFO")

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithMessage(ctx, "asset_upload", "msg-9", 3)
	logger.InfoContext(ctx, "handled")

	data := decodeLines(t, &buf)[0]
	if data["request_id"] != "req-1" {
		t.Errorf("expected request_id=req-1, got %v", data["request_id"])
	}
	if data["queue"] != "asset_upload" {
		t.Errorf("expected queue=asset_upload, got %v", data["queue"])
	}
	if data["message_id"] != "msg-9" {
		t.Errorf("expected message_id=msg-9, got %v", data["message_id"])
	}
	if data["attempt"] != float64(3) {
		t.Errorf("expected attempt=3, got %v", data["attempt"])
	}
}

func TestContextAttributes_FirstAttemptOmitted(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LogFormatJSON, "INFO").With("component", "worker")

	logger.InfoContext(WithMessage(context.Background(), "q", "m", 1), "handled")

	data := decodeLines(t, &buf)[0]
	if _, ok := data["attempt"]; ok {
		t.Errorf("attempt should be omitted on first delivery: %v", data)
	}
	if data["component"] != "worker" {
		t.Errorf("expected component=worker after With, got %v", data["component"])
	}
}

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()
	if RequestID(ctx) != "" || MessageID(ctx) != "" {
		t.Error("expected empty identifiers on bare context")
	}
	ctx = WithMessage(WithRequestID(ctx, "r"), "q", "m", 1)
	if RequestID(ctx) != "r" || MessageID(ctx) != "m" {
		t.Errorf("got request=%q message=%q", RequestID(ctx), MessageID(ctx))
	}
}
