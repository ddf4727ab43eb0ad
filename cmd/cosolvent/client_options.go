package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cosolvent/cosolvent"
	"github.com/cosolvent/cosolvent/internal/config"
)

// openClient creates a client from cfg. Tools that never consume the
// pipeline queues pass skipValidation so they run without a text provider.
func openClient(cfg config.AppConfig, logger *slog.Logger, skipValidation bool) (*cosolvent.Client, error) {
	attrs := append([]slog.Attr{slog.String("version", version)}, cfg.LogAttrs()...)
	logger.LogAttrs(context.Background(), slog.LevelDebug, "configuration", attrs...)

	opts := []cosolvent.Option{
		cosolvent.WithConfig(cfg),
		cosolvent.WithLogger(logger),
	}
	if skipValidation {
		opts = append(opts, cosolvent.WithSkipProviderValidation())
	}

	client, err := cosolvent.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create cosolvent client: %w", err)
	}
	return client, nil
}

// closeClient closes client and logs any failure.
func closeClient(client *cosolvent.Client, logger *slog.Logger) {
	if err := client.Close(); err != nil {
		logger.Error("failed to close cosolvent client", slog.Any("error", err))
	}
}
