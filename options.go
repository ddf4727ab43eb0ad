package cosolvent

import (
	"io"
	"log/slog"
	"time"

	"github.com/cosolvent/cosolvent/infrastructure/extract"
	"github.com/cosolvent/cosolvent/infrastructure/provider"
	"github.com/cosolvent/cosolvent/internal/config"
)

// clientConfig holds configuration for Client construction. Settings start
// from an AppConfig and individual options override them.
type clientConfig struct {
	app                    config.AppConfig
	dbURL                  string
	textProvider           provider.TextGenerator
	visionProvider         provider.TextGenerator
	embeddingProvider      provider.Embedder
	transcriber            provider.Transcriber
	fetcher                extract.ObjectFetcher
	logger                 *slog.Logger
	skipProviderValidation bool
	closers                []io.Closer
}

func newClientConfig() *clientConfig {
	return &clientConfig{app: config.NewAppConfig()}
}

// Option configures the Client.
type Option func(*clientConfig)

// WithConfig uses cfg as the base configuration, typically loaded from the
// environment. Options applied after it override its settings.
func WithConfig(cfg config.AppConfig) Option {
	return func(c *clientConfig) {
		c.app = cfg
		c.dbURL = cfg.DBURL()
	}
}

// WithSQLite configures a SQLite database file.
func WithSQLite(path string) Option {
	return func(c *clientConfig) {
		c.dbURL = "sqlite:///" + path
	}
}

// WithPostgres configures PostgreSQL with the pgvector extension.
func WithPostgres(dsn string) Option {
	return func(c *clientConfig) {
		c.dbURL = dsn
	}
}

// WithBusURL selects the message bus: an amqp:// URL for RabbitMQ, or
// empty for the database queue.
func WithBusURL(url string) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithBusURL(url))
	}
}

// WithBusPollPeriod sets how often the database queue polls for messages.
// Lower values speed up processing at the cost of more queries, which is
// useful in tests.
func WithBusPollPeriod(d time.Duration) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithBusPollPeriod(d))
	}
}

// WithTextProvider sets the model used for profile synthesis.
func WithTextProvider(p provider.TextGenerator) Option {
	return func(c *clientConfig) {
		c.textProvider = p
	}
}

// WithVisionProvider sets the model used to caption images. Defaults to the
// text provider.
func WithVisionProvider(p provider.TextGenerator) Option {
	return func(c *clientConfig) {
		c.visionProvider = p
	}
}

// WithEmbeddingProvider sets the embedding provider and switches embeddings
// to provider mode.
func WithEmbeddingProvider(p provider.Embedder) Option {
	return func(c *clientConfig) {
		c.embeddingProvider = p
		c.app = c.app.Apply(config.WithEmbeddingsMode(config.EmbeddingsModeProvider))
	}
}

// WithTranscriber sets the speech-to-text provider for audio assets.
func WithTranscriber(t provider.Transcriber) Option {
	return func(c *clientConfig) {
		c.transcriber = t
	}
}

// WithObjectFetcher replaces the object store reader.
func WithObjectFetcher(f extract.ObjectFetcher) Option {
	return func(c *clientConfig) {
		c.fetcher = f
	}
}

// WithEmbeddingDimension sets the vector dimension.
func WithEmbeddingDimension(n int) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithEmbeddingDimension(n))
	}
}

// WithWorkerCount sets the number of consumers per queue.
func WithWorkerCount(n int) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithWorkerCount(n))
	}
}

// WithPromptsFile loads prompt templates from a YAML file.
func WithPromptsFile(path string) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithPromptsFile(path))
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}

// WithSkipProviderValidation allows starting without a text provider. The
// metadata_completed queue then has no consumer. Intended for tools that
// only search, index or publish.
func WithSkipProviderValidation() Option {
	return func(c *clientConfig) {
		c.skipProviderValidation = true
	}
}

// WithCloser registers a resource to be closed when the Client shuts down.
func WithCloser(closer io.Closer) Option {
	return func(c *clientConfig) {
		c.closers = append(c.closers, closer)
	}
}

// WithDataDir sets the data directory.
func WithDataDir(dir string) Option {
	return func(c *clientConfig) {
		c.app = c.app.Apply(config.WithDataDir(dir))
	}
}
