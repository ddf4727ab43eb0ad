package log

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestTerminalHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	ts := time.Date(2026, 1, 15, 10, 30, 45, 123000000, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "server started", 0)
	r.AddAttrs(slog.String("port", "8080"))

	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}

	output := buf.String()
	for _, want := range []string{"10:30:45.123", "INF", "server started", "port=", "8080"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
	if !strings.HasSuffix(output, "\n") {
		t.Errorf("expected trailing newline, got: %q", output)
	}
}

func TestTerminalHandler_Levels(t *testing.T) {
	tests := []struct {
		level    slog.Level
		expected string
	}{
		{slog.LevelDebug, "DBG"},
		{slog.LevelInfo, "INF"},
		{slog.LevelWarn, "WRN"},
		{slog.LevelError, "ERR"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(newTerminalHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			logger.Log(context.Background(), tt.level, "msg")
			if !strings.Contains(buf.String(), tt.expected) {
				t.Errorf("expected %s, got: %s", tt.expected, buf.String())
			}
		})
	}
}

func TestTerminalHandler_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newTerminalHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected no output, got: %s", buf.String())
	}
}

func TestTerminalHandler_QueueTag(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newTerminalHandler(&buf, nil)).With("queue", "asset_upload")

	logger.Info("asset described", "asset_id", "a1")

	output := buf.String()
	if !strings.Contains(output, "[asset_upload]") {
		t.Errorf("expected queue tag, got: %s", output)
	}
	if strings.Contains(output, "queue=") {
		t.Errorf("queue should not be repeated as an attribute, got: %s", output)
	}
	if strings.Index(output, "[asset_upload]") > strings.Index(output, "asset described") {
		t.Errorf("expected tag before message, got: %s", output)
	}
}

func TestTerminalHandler_Groups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newTerminalHandler(&buf, nil)).WithGroup("bus").With("queue", "q1")

	logger.Info("published")

	output := buf.String()
	if !strings.Contains(output, "bus.queue=") {
		t.Errorf("expected grouped attribute, got: %s", output)
	}
	if strings.Contains(output, "[q1]") {
		t.Errorf("grouped queue should not become a tag, got: %s", output)
	}
}

func TestTerminalHandler_QuotesStrings(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newTerminalHandler(&buf, nil))

	logger.Info("msg", "error", "connection refused")

	if !strings.Contains(buf.String(), `"connection refused"`) {
		t.Errorf("expected quoted value, got: %s", buf.String())
	}
}
