package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cosolvent/cosolvent/internal/log"
	"github.com/cosolvent/cosolvent/internal/mcp"
)

func stdioCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stdio",
		Short: "Start MCP server on stdio",
		Long: `Start the MCP (Model Context Protocol) server on stdio.

This lets AI assistants search producers with the search_producers tool.
Configuration is loaded from environment variables and .env file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStdio(*envFile)
		},
	}
}

func runStdio(envFile string) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}

	// stdout carries the protocol, so logs go to stderr.
	logger := log.NewWithWriter(os.Stderr, cfg.LogFormat(), cfg.LogLevel())
	logger.Info("starting MCP server",
		slog.String("version", version),
		slog.String("data_dir", cfg.DataDir()),
	)

	client, err := openClient(cfg, logger, true)
	if err != nil {
		return err
	}
	defer closeClient(client, logger)

	var indexer mcp.Indexer
	if len(cfg.APIKeys()) == 0 {
		indexer = client.Indexing
	}
	return mcp.NewServer(client.Search, indexer, version, logger).ServeStdio()
}
