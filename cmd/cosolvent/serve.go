package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cosolvent/cosolvent/infrastructure/api"
	"github.com/cosolvent/cosolvent/internal/config"
	"github.com/cosolvent/cosolvent/internal/log"
)

func serveCmd(envFile *string) *cobra.Command {
	var (
		host       string
		port       int
		withWorker bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server.

Configuration is loaded in the following order (later sources override earlier):
  1. Default values
  2. .env file (if --env-file specified or .env exists in current directory)
  3. Environment variables
  4. Command line flags

Environment variables:
  HOST                         Server host to bind to (default: 0.0.0.0)
  PORT                         Server port to listen on (default: 8080)
  DATA_DIR                     Data directory (default: ~/.cosolvent)
  DB_URL                       Database URL (default: sqlite:///{data_dir}/cosolvent.db)
  LOG_LEVEL                    Log level: DEBUG, INFO, WARN, ERROR (default: INFO)
  LOG_FORMAT                   Log format: pretty, json (default: pretty)
  API_KEYS                     Comma-separated keys required by POST /index and DELETE routes

  BUS_URL                      amqp:// broker URL; empty uses the database queue
  EMBEDDINGS_MODE              provider or fallback (default: fallback)
  EMBEDDING_DIMENSION          Vector length (default: 1536)

  EMBEDDING_ENDPOINT_*         Embedding provider configuration
    PROVIDER                   openai, openrouter or anthropic (default: openai)
    BASE_URL                   Base URL (e.g., https://api.openai.com/v1)
    MODEL                      Model identifier (e.g., text-embedding-3-small)
    API_KEY                    API key for authentication
    TIMEOUT                    Request timeout in seconds (default: 60)
    MAX_RETRIES                Retry attempts (default: 5)

  ENRICHMENT_ENDPOINT_*        Profile generation model (same fields)
  VISION_ENDPOINT_*            Captioning model (defaults to ENRICHMENT_ENDPOINT)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*envFile, host, port, withWorker)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Server host to bind to (default: 0.0.0.0)")
	cmd.Flags().IntVar(&port, "port", 0, "Server port to listen on (default: 8080)")
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "Also consume the pipeline queues in this process")

	return cmd
}

func runServe(envFile, host string, port int, withWorker bool) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	cfg = applyServeOverrides(cfg, host, port)

	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	logger := log.Configure(cfg)
	logger.Info("starting cosolvent", slog.String("version", version), slog.String("addr", cfg.Addr()))

	client, err := openClient(cfg, logger, !withWorker)
	if err != nil {
		return err
	}
	defer closeClient(client, logger)

	ctx, stop := signalContext()
	defer stop()

	if withWorker {
		if err := client.StartWorker(ctx); err != nil {
			return err
		}
	}

	apiServer := api.NewAPIServer(client, cfg.APIKeys()).WithVersion(version)
	router := apiServer.Router()
	apiServer.MountRoutes()

	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"name":"cosolvent","version":"%s"}`, version)
	})

	server := api.NewServer(cfg.Addr(), logger)
	server.Router().Mount("/", router)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", slog.Any("error", err))
		}
	}()

	if err := server.Start(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// applyServeOverrides applies command line flag overrides to the config.
func applyServeOverrides(cfg config.AppConfig, host string, port int) config.AppConfig {
	var opts []config.AppConfigOption

	if host != "" {
		opts = append(opts, config.WithHost(host))
	}
	if port != 0 {
		opts = append(opts, config.WithPort(port))
	}

	return cfg.Apply(opts...)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
