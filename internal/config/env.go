package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfig holds all environment-based configuration.
// Nested structs use an underscore delimiter (e.g. EMBEDDING_ENDPOINT_BASE_URL).
type EnvConfig struct {
	// Host is the server host to bind to.
	// Env: HOST (default: 0.0.0.0)
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// Port is the server port to listen on.
	// Env: PORT (default: 8080)
	Port int `envconfig:"PORT" default:"8080"`

	// DataDir is the data directory path.
	// Env: DATA_DIR (default: ~/.cosolvent)
	DataDir string `envconfig:"DATA_DIR"`

	// DBURL is the database connection URL.
	// Env: DB_URL (default: sqlite:///{data_dir}/cosolvent.db)
	DBURL string `envconfig:"DB_URL"`

	// LogLevel is the log verbosity level.
	// Env: LOG_LEVEL (default: INFO)
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// LogFormat is the log output format (pretty or json).
	// Env: LOG_FORMAT (default: pretty)
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// APIKeys is a comma-separated list of keys accepted by the HTTP API.
	// Env: API_KEYS
	APIKeys string `envconfig:"API_KEYS"`

	// Bus configures the message broker.
	Bus BusEnv `envconfig:"BUS"`

	// Worker configures the queue consumers.
	Worker WorkerEnv `envconfig:"WORKER"`

	// EmbeddingsMode is "provider" or "fallback".
	// Env: EMBEDDINGS_MODE (default: fallback)
	EmbeddingsMode string `envconfig:"EMBEDDINGS_MODE" default:"fallback"`

	// EmbeddingDimension is the length of every stored vector.
	// Env: EMBEDDING_DIMENSION (default: 1536)
	EmbeddingDimension int `envconfig:"EMBEDDING_DIMENSION" default:"1536"`

	// SearchLimit is the default number of search results.
	// Env: SEARCH_LIMIT (default: 10)
	SearchLimit int `envconfig:"SEARCH_LIMIT" default:"10"`

	// SearchMaxTopK is the largest accepted top_k (capped at 1000).
	// Env: SEARCH_MAX_TOP_K (default: 100)
	SearchMaxTopK int `envconfig:"SEARCH_MAX_TOP_K" default:"100"`

	// ProfileMaxInputChars bounds the text sent for profile generation.
	// Env: PROFILE_MAX_INPUT_CHARS (default: 3000)
	ProfileMaxInputChars int `envconfig:"PROFILE_MAX_INPUT_CHARS" default:"3000"`

	// Extract configures object fetching.
	Extract ExtractEnv `envconfig:"EXTRACT"`

	// Storage configures object storage access.
	Storage StorageEnv `envconfig:"STORAGE"`

	// HTTPCacheDir caches provider POST responses to disk when set.
	// Env: HTTP_CACHE_DIR
	HTTPCacheDir string `envconfig:"HTTP_CACHE_DIR"`

	// PromptsFile is a YAML file overriding the default prompts.
	// Env: PROMPTS_FILE
	PromptsFile string `envconfig:"PROMPTS_FILE"`

	// EmbeddingEndpoint configures the embedding service.
	EmbeddingEndpoint EndpointEnv `envconfig:"EMBEDDING_ENDPOINT"`

	// EnrichmentEndpoint configures the profile generation service.
	EnrichmentEndpoint EndpointEnv `envconfig:"ENRICHMENT_ENDPOINT"`

	// VisionEndpoint configures the image captioning service.
	VisionEndpoint EndpointEnv `envconfig:"VISION_ENDPOINT"`
}

// BusEnv holds environment configuration for the message broker.
type BusEnv struct {
	// URL selects the broker: amqp:// or amqps:// for RabbitMQ, empty or
	// "database" for the database queue.
	// Env: BUS_URL
	URL string `envconfig:"URL"`

	// PublishMaxAttempts is the number of publish attempts.
	// Env: BUS_PUBLISH_MAX_ATTEMPTS (default: 5)
	PublishMaxAttempts int `envconfig:"PUBLISH_MAX_ATTEMPTS" default:"5"`

	// PublishInitialDelay is the first publish retry delay in seconds.
	// Env: BUS_PUBLISH_INITIAL_DELAY (default: 2)
	PublishInitialDelay float64 `envconfig:"PUBLISH_INITIAL_DELAY" default:"2"`

	// PollPeriod is the database queue poll period in seconds.
	// Env: BUS_POLL_PERIOD (default: 1)
	PollPeriod float64 `envconfig:"POLL_PERIOD" default:"1"`

	// LeaseTimeout is how long a leased database queue message stays
	// invisible, in seconds.
	// Env: BUS_LEASE_TIMEOUT (default: 300)
	LeaseTimeout float64 `envconfig:"LEASE_TIMEOUT" default:"300"`
}

// WorkerEnv holds environment configuration for queue consumers.
type WorkerEnv struct {
	// Count is the number of consumers per queue.
	// Env: WORKER_COUNT (default: 1)
	Count int `envconfig:"COUNT" default:"1"`

	// MessageTimeout is the per-message deadline in seconds.
	// Env: WORKER_MESSAGE_TIMEOUT (default: 300)
	MessageTimeout float64 `envconfig:"MESSAGE_TIMEOUT" default:"300"`
}

// ExtractEnv holds environment configuration for content extraction.
type ExtractEnv struct {
	// Timeout is the fetch timeout in seconds.
	// Env: EXTRACT_TIMEOUT (default: 60)
	Timeout float64 `envconfig:"TIMEOUT" default:"60"`

	// MaxBytes is the largest object read.
	// Env: EXTRACT_MAX_BYTES (default: 52428800)
	MaxBytes int64 `envconfig:"MAX_BYTES" default:"52428800"`
}

// StorageEnv holds environment configuration for object storage.
type StorageEnv struct {
	// Endpoint overrides the storage API endpoint (emulators, MinIO gateways).
	// Env: STORAGE_ENDPOINT
	Endpoint string `envconfig:"ENDPOINT"`

	// CredentialsFile is a service account key file.
	// Env: STORAGE_CREDENTIALS_FILE
	CredentialsFile string `envconfig:"CREDENTIALS_FILE"`

	// S3Endpoint is an S3-compatible API such as MinIO. Empty means AWS.
	// Env: STORAGE_S3_ENDPOINT
	S3Endpoint string `envconfig:"S3_ENDPOINT"`

	// S3Region is the signing region. Empty looks the bucket up.
	// Env: STORAGE_S3_REGION
	S3Region string `envconfig:"S3_REGION"`

	// S3AccessKeyID enables signed S3 reads together with S3SecretAccessKey.
	// Env: STORAGE_S3_ACCESS_KEY_ID
	S3AccessKeyID string `envconfig:"S3_ACCESS_KEY_ID"`

	// S3SecretAccessKey is the secret for S3AccessKeyID.
	// Env: STORAGE_S3_SECRET_ACCESS_KEY
	S3SecretAccessKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
}

// EndpointEnv holds environment configuration for an AI endpoint.
type EndpointEnv struct {
	// Provider is openai, openrouter or anthropic.
	// Env: *_PROVIDER (default: openai)
	Provider string `envconfig:"PROVIDER" default:"openai"`

	// BaseURL is the base URL for the endpoint.
	// Env: *_BASE_URL
	BaseURL string `envconfig:"BASE_URL"`

	// Model is the model identifier.
	// Env: *_MODEL
	Model string `envconfig:"MODEL"`

	// APIKey is the API key for authentication.
	// Env: *_API_KEY
	APIKey string `envconfig:"API_KEY"`

	// Timeout is the request timeout in seconds.
	// Env: *_TIMEOUT (default: 60)
	Timeout float64 `envconfig:"TIMEOUT" default:"60"`

	// MaxRetries is the maximum number of retries.
	// Env: *_MAX_RETRIES (default: 5)
	MaxRetries int `envconfig:"MAX_RETRIES" default:"5"`

	// InitialDelay is the initial retry delay in seconds.
	// Env: *_INITIAL_DELAY (default: 2.0)
	InitialDelay float64 `envconfig:"INITIAL_DELAY" default:"2.0"`

	// BackoffFactor is the retry backoff multiplier.
	// Env: *_BACKOFF_FACTOR (default: 2.0)
	BackoffFactor float64 `envconfig:"BACKOFF_FACTOR" default:"2.0"`

	// MaxTokens is the completion token limit.
	// Env: *_MAX_TOKENS (default: 4000)
	MaxTokens int `envconfig:"MAX_TOKENS" default:"4000"`
}

// LoadFromEnv loads configuration from environment variables without a prefix.
func LoadFromEnv() (EnvConfig, error) {
	return LoadFromEnvWithPrefix("")
}

// LoadFromEnvWithPrefix loads configuration with a custom prefix.
// For example, prefix "COSOLVENT" requires COSOLVENT_BUS_URL instead of BUS_URL.
func LoadFromEnvWithPrefix(prefix string) (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// Normalize returns a copy with legacy values converted: async SQLAlchemy
// driver suffixes are removed from DB_URL, provider prefixes are removed
// from model names and the embeddings mode is lowercased.
func (e EnvConfig) Normalize() EnvConfig {
	e.DBURL = normalizeDBURL(e.DBURL)
	e.EmbeddingsMode = strings.ToLower(strings.TrimSpace(e.EmbeddingsMode))
	if strings.EqualFold(strings.TrimSpace(e.Bus.URL), "database") {
		e.Bus.URL = ""
	}
	e.EmbeddingEndpoint = e.EmbeddingEndpoint.normalize()
	e.EnrichmentEndpoint = e.EnrichmentEndpoint.normalize()
	e.VisionEndpoint = e.VisionEndpoint.normalize()
	return e
}

// ToAppConfig converts EnvConfig to AppConfig.
func (e EnvConfig) ToAppConfig() AppConfig {
	opts := []AppConfigOption{
		WithBusURL(e.Bus.URL),
		WithBusPublishRetry(e.Bus.PublishMaxAttempts, seconds(e.Bus.PublishInitialDelay)),
		WithBusPollPeriod(seconds(e.Bus.PollPeriod)),
		WithBusLeaseTimeout(seconds(e.Bus.LeaseTimeout)),
		WithWorkerCount(e.Worker.Count),
		WithWorkerMessageTimeout(seconds(e.Worker.MessageTimeout)),
		WithEmbeddingsMode(parseEmbeddingsMode(e.EmbeddingsMode)),
		WithEmbeddingDimension(e.EmbeddingDimension),
		WithSearchLimit(e.SearchLimit),
		WithSearchMaxTopK(e.SearchMaxTopK),
		WithProfileMaxInputChars(e.ProfileMaxInputChars),
		WithExtractLimits(seconds(e.Extract.Timeout), e.Extract.MaxBytes),
		WithStorage(e.Storage.Endpoint, e.Storage.CredentialsFile),
		WithS3Storage(S3Storage{
			Endpoint:        e.Storage.S3Endpoint,
			Region:          e.Storage.S3Region,
			AccessKeyID:     e.Storage.S3AccessKeyID,
			SecretAccessKey: e.Storage.S3SecretAccessKey,
		}),
		WithHTTPCacheDir(e.HTTPCacheDir),
		WithPromptsFile(e.PromptsFile),
	}

	if e.Host != "" {
		opts = append(opts, WithHost(e.Host))
	}
	if e.Port != 0 {
		opts = append(opts, WithPort(e.Port))
	}
	if e.DataDir != "" {
		opts = append(opts, WithDataDir(e.DataDir))
	}
	if e.DBURL != "" {
		opts = append(opts, WithDBURL(e.DBURL))
	}
	if e.LogLevel != "" {
		opts = append(opts, WithLogLevel(e.LogLevel))
	}
	if e.LogFormat != "" {
		opts = append(opts, WithLogFormat(parseLogFormat(e.LogFormat)))
	}
	if e.APIKeys != "" {
		opts = append(opts, WithAPIKeys(ParseAPIKeys(e.APIKeys)))
	}
	if e.EmbeddingEndpoint.IsConfigured() {
		opts = append(opts, WithEmbeddingEndpoint(e.EmbeddingEndpoint.ToEndpoint()))
	}
	if e.EnrichmentEndpoint.IsConfigured() {
		opts = append(opts, WithEnrichmentEndpoint(e.EnrichmentEndpoint.ToEndpoint()))
	}
	if e.VisionEndpoint.IsConfigured() {
		opts = append(opts, WithVisionEndpoint(e.VisionEndpoint.ToEndpoint()))
	}

	return NewAppConfig().Apply(opts...)
}

// IsConfigured returns true if the endpoint has a model configured.
func (e EndpointEnv) IsConfigured() bool {
	return e.Model != ""
}

// ToEndpoint converts EndpointEnv to Endpoint.
func (e EndpointEnv) ToEndpoint() Endpoint {
	opts := []EndpointOption{
		WithModel(e.Model),
		WithTimeout(seconds(e.Timeout)),
		WithMaxRetries(e.MaxRetries),
		WithInitialDelay(seconds(e.InitialDelay)),
		WithBackoffFactor(e.BackoffFactor),
		WithMaxTokens(e.MaxTokens),
	}
	if e.Provider != "" {
		opts = append(opts, WithProvider(e.Provider))
	}
	if e.BaseURL != "" {
		opts = append(opts, WithBaseURL(e.BaseURL))
	}
	if e.APIKey != "" {
		opts = append(opts, WithAPIKey(e.APIKey))
	}
	return NewEndpointWithOptions(opts...)
}

// modelPrefixes are routing prefixes some deployments put on model names.
// The provider is configured separately, so they are stripped.
var modelPrefixes = []string{
	"openrouter/",
	"openai/",
	"anthropic/",
}

func (e EndpointEnv) normalize() EndpointEnv {
	e.Provider = strings.ToLower(strings.TrimSpace(e.Provider))
	for _, prefix := range modelPrefixes {
		if strings.HasPrefix(e.Model, prefix) && strings.TrimSuffix(prefix, "/") == e.Provider {
			slog.Warn("normalized model provider prefix", "original", e.Model, "normalized", e.Model[len(prefix):])
			e.Model = e.Model[len(prefix):]
			break
		}
	}
	return e
}

// normalizeDBURL strips SQLAlchemy driver suffixes (postgresql+asyncpg://).
func normalizeDBURL(raw string) string {
	plus := strings.Index(raw, "+")
	if plus < 0 {
		return raw
	}
	sep := strings.Index(raw, "://")
	if sep < 0 || plus > sep {
		return raw
	}
	normalized := raw[:plus] + raw[sep:]
	slog.Warn("normalized DB_URL driver suffix", "normalized", maskURL(normalized))
	return normalized
}

func parseLogFormat(s string) LogFormat {
	if strings.EqualFold(s, "json") {
		return LogFormatJSON
	}
	return LogFormatPretty
}

func parseEmbeddingsMode(s string) EmbeddingsMode {
	if strings.EqualFold(s, string(EmbeddingsModeProvider)) {
		return EmbeddingsModeProvider
	}
	return EmbeddingsModeFallback
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
