package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cosolvent/cosolvent/domain/queue"
	"github.com/cosolvent/cosolvent/internal/log"
)

func publishCmd(envFile *string) *cobra.Command {
	names := make([]string, 0, len(queue.Names()))
	for _, n := range queue.Names() {
		names = append(names, n.String())
	}

	return &cobra.Command{
		Use:   "publish <queue> [json|-]",
		Short: "Publish a message to a pipeline queue",
		Long: fmt.Sprintf(`Publish a JSON message to a pipeline queue. The body is read from the
second argument, or from stdin when it is "-" or omitted.

Queues: %s`, strings.Join(names, ", ")),
		Example: `  cosolvent publish asset_upload '{"asset_id":"a1","user_id":"u1"}'`,
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := messageBody(cmd.InOrStdin(), args[1:])
			if err != nil {
				return err
			}

			cfg, err := loadConfig(*envFile)
			if err != nil {
				return err
			}
			logger := log.NewWithWriter(os.Stderr, cfg.LogFormat(), cfg.LogLevel())

			client, err := openClient(cfg, logger, true)
			if err != nil {
				return err
			}
			defer closeClient(client, logger)

			if err := client.Publish(cmd.Context(), args[0], body); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "published to %s\n", args[0])
			return nil
		},
	}
}

func messageBody(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 1 && args[0] != "-" {
		return []byte(args[0]), nil
	}
	body, err := io.ReadAll(stdin)
	if err != nil {
		return nil, fmt.Errorf("read message from stdin: %w", err)
	}
	return body, nil
}
