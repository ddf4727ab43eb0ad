package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cosolvent/cosolvent/internal/config"
	"github.com/cosolvent/cosolvent/internal/log"
)

func workerCmd(envFile *string) *cobra.Command {
	var consumers int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume the pipeline queues",
		Long: `Consume asset_upload, metadata_completed, profile_approved and
asset_ready_for_indexing until interrupted. Requires ENRICHMENT_ENDPOINT_*
for profile synthesis.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*envFile)
			if err != nil {
				return err
			}
			if consumers > 0 {
				cfg = cfg.Apply(config.WithWorkerCount(consumers))
			}
			return runWorker(cfg)
		},
	}

	cmd.Flags().IntVar(&consumers, "consumers", 0, "Consumers per queue (default: WORKER_COUNT)")
	return cmd
}

func runWorker(cfg config.AppConfig) error {
	logger := log.Configure(cfg)

	client, err := openClient(cfg, logger, false)
	if err != nil {
		return err
	}
	defer closeClient(client, logger)

	ctx, stop := signalContext()
	defer stop()

	if err := client.StartWorker(ctx); err != nil {
		return err
	}
	logger.Info("worker running", slog.String("version", version), slog.Int("consumers", cfg.WorkerCount()))

	if err := client.Wait(); err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	logger.Info("worker stopped")
	return nil
}
