package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cosolvent/cosolvent/internal/config"
	"github.com/cosolvent/cosolvent/internal/log"
)

func reindexCmd(envFile *string) *cobra.Command {
	var (
		workers int
		clear   bool
	)

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Re-embed every active producer profile",
		Long: `Re-embed every active producer profile into the search index. Use after
changing the embedding model or EMBEDDINGS_MODE. With --clear the index is
emptied first so profiles that are no longer active disappear.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*envFile)
			if err != nil {
				return err
			}
			if workers > 0 {
				cfg = cfg.Apply(config.WithWorkerCount(workers))
			}
			logger := log.NewWithWriter(os.Stderr, cfg.LogFormat(), cfg.LogLevel())

			client, err := openClient(cfg, logger, true)
			if err != nil {
				return err
			}
			defer closeClient(client, logger)

			ctx := cmd.Context()
			if clear {
				n, err := client.Indexing.Clear(ctx)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "cleared %d entries\n", n)
			}

			result, err := client.Reindex.Run(ctx)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "indexed %d, skipped %d, failed %d\n",
				result.Indexed, result.Skipped, result.Failed)
			return err
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent embeddings (default: WORKER_COUNT)")
	cmd.Flags().BoolVar(&clear, "clear", false, "Empty the profile index first")
	return cmd
}
