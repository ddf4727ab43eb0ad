package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cosolvent/cosolvent/internal/log"
)

func approveCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <user-id>",
		Short: "Promote a producer's draft profile and queue it for indexing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			p, err := client.Approve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "approved profile for %s (%s)\n", p.UserID(), p.Active().FarmName)
			return nil
		},
	}
}
