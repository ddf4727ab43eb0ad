// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultHost                   = "0.0.0.0"
	DefaultPort                   = 8080
	DefaultLogLevel               = "INFO"
	DefaultWorkerCount            = 1
	DefaultWorkerMessageTimeout   = 5 * time.Minute
	DefaultBusPublishMaxAttempts  = 5
	DefaultBusPublishInitialDelay = 2 * time.Second
	DefaultBusPollPeriod          = time.Second
	DefaultBusLeaseTimeout        = 5 * time.Minute
	DefaultEmbeddingDimension     = 1536
	DefaultSearchLimit            = 10
	DefaultSearchMaxTopK          = 100
	MaxSearchTopK                 = 1000
	DefaultProfileMaxInputChars   = 3000
	DefaultExtractTimeout         = 60 * time.Second
	DefaultExtractMaxBytes        = 50 << 20
	DefaultEndpointTimeout        = 60 * time.Second
	DefaultEndpointMaxRetries     = 5
	DefaultEndpointInitialDelay   = 2 * time.Second
	DefaultEndpointBackoffFactor  = 2.0
	DefaultEndpointMaxTokens      = 4000
)

// LogFormat represents the log output format.
type LogFormat string

// LogFormat values.
const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

// EmbeddingsMode selects how text embeddings are produced.
type EmbeddingsMode string

// EmbeddingsMode values.
const (
	// EmbeddingsModeFallback produces deterministic hash-seeded vectors
	// without calling a provider.
	EmbeddingsModeFallback EmbeddingsMode = "fallback"
	// EmbeddingsModeProvider calls the configured embedding endpoint and
	// falls back per call when it is unavailable.
	EmbeddingsModeProvider EmbeddingsMode = "provider"
)

// Provider names.
const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
)

// Endpoint configures an AI service endpoint.
type Endpoint struct {
	provider      string
	baseURL       string
	model         string
	apiKey        string
	timeout       time.Duration
	maxRetries    int
	initialDelay  time.Duration
	backoffFactor float64
	maxTokens     int
}

// NewEndpoint creates a new Endpoint with defaults.
func NewEndpoint() Endpoint {
	return Endpoint{
		provider:      ProviderOpenAI,
		timeout:       DefaultEndpointTimeout,
		maxRetries:    DefaultEndpointMaxRetries,
		initialDelay:  DefaultEndpointInitialDelay,
		backoffFactor: DefaultEndpointBackoffFactor,
		maxTokens:     DefaultEndpointMaxTokens,
	}
}

// Provider returns the provider name used to pick a client.
func (e Endpoint) Provider() string { return e.provider }

// BaseURL returns the base URL for the endpoint.
func (e Endpoint) BaseURL() string { return e.baseURL }

// Model returns the model identifier.
func (e Endpoint) Model() string { return e.model }

// APIKey returns the API key.
func (e Endpoint) APIKey() string { return e.apiKey }

// Timeout returns the request timeout.
func (e Endpoint) Timeout() time.Duration { return e.timeout }

// MaxRetries returns the maximum retry count.
func (e Endpoint) MaxRetries() int { return e.maxRetries }

// InitialDelay returns the initial retry delay.
func (e Endpoint) InitialDelay() time.Duration { return e.initialDelay }

// BackoffFactor returns the retry backoff multiplier.
func (e Endpoint) BackoffFactor() float64 { return e.backoffFactor }

// MaxTokens returns the completion token limit.
func (e Endpoint) MaxTokens() int { return e.maxTokens }

// IsConfigured returns true if the endpoint has a model.
func (e Endpoint) IsConfigured() bool { return e.model != "" }

// HasCredentials reports whether an API key is set.
func (e Endpoint) HasCredentials() bool { return e.apiKey != "" }

// EndpointOption is a functional option for Endpoint.
type EndpointOption func(*Endpoint)

// WithProvider sets the provider name.
func WithProvider(name string) EndpointOption {
	return func(e *Endpoint) { e.provider = strings.ToLower(strings.TrimSpace(name)) }
}

// WithBaseURL sets the base URL.
func WithBaseURL(url string) EndpointOption {
	return func(e *Endpoint) { e.baseURL = url }
}

// WithModel sets the model.
func WithModel(model string) EndpointOption {
	return func(e *Endpoint) { e.model = model }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) EndpointOption {
	return func(e *Endpoint) { e.apiKey = key }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) EndpointOption {
	return func(e *Endpoint) { e.timeout = d }
}

// WithMaxRetries sets the maximum retry count.
func WithMaxRetries(n int) EndpointOption {
	return func(e *Endpoint) { e.maxRetries = n }
}

// WithInitialDelay sets the initial retry delay.
func WithInitialDelay(d time.Duration) EndpointOption {
	return func(e *Endpoint) { e.initialDelay = d }
}

// WithBackoffFactor sets the retry backoff multiplier.
func WithBackoffFactor(f float64) EndpointOption {
	return func(e *Endpoint) { e.backoffFactor = f }
}

// WithMaxTokens sets the completion token limit.
func WithMaxTokens(n int) EndpointOption {
	return func(e *Endpoint) { e.maxTokens = n }
}

// NewEndpointWithOptions creates an Endpoint with functional options.
func NewEndpointWithOptions(opts ...EndpointOption) Endpoint {
	e := NewEndpoint()
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// AppConfig holds the main application configuration.
type AppConfig struct {
	host                   string
	port                   int
	dataDir                string
	dbURL                  string
	logLevel               string
	logFormat              LogFormat
	apiKeys                []string
	busURL                 string
	busPublishMaxAttempts  int
	busPublishInitialDelay time.Duration
	busPollPeriod          time.Duration
	busLeaseTimeout        time.Duration
	workerCount            int
	workerMessageTimeout   time.Duration
	embeddingsMode         EmbeddingsMode
	embeddingDimension     int
	searchLimit            int
	searchMaxTopK          int
	profileMaxInputChars   int
	extractTimeout         time.Duration
	extractMaxBytes        int64
	storageEndpoint        string
	storageCredentialsFile string
	s3Storage              S3Storage
	httpCacheDir           string
	promptsFile            string
	embeddingEndpoint      *Endpoint
	enrichmentEndpoint     *Endpoint
	visionEndpoint         *Endpoint
}

// DefaultDataDir returns the default data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cosolvent"
	}
	return filepath.Join(home, ".cosolvent")
}

// PrepareDataDir creates the data directory if it does not exist and returns it.
func PrepareDataDir(dataDir string) (string, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return dataDir, nil
}

func defaultDBURL(dataDir string) string {
	return "sqlite:///" + filepath.Join(dataDir, "cosolvent.db")
}

// NewAppConfig creates a new AppConfig with defaults.
func NewAppConfig() AppConfig {
	dataDir := DefaultDataDir()
	return AppConfig{
		host:                   DefaultHost,
		port:                   DefaultPort,
		dataDir:                dataDir,
		dbURL:                  defaultDBURL(dataDir),
		logLevel:               DefaultLogLevel,
		logFormat:              LogFormatPretty,
		apiKeys:                []string{},
		busPublishMaxAttempts:  DefaultBusPublishMaxAttempts,
		busPublishInitialDelay: DefaultBusPublishInitialDelay,
		busPollPeriod:          DefaultBusPollPeriod,
		busLeaseTimeout:        DefaultBusLeaseTimeout,
		workerCount:            DefaultWorkerCount,
		workerMessageTimeout:   DefaultWorkerMessageTimeout,
		embeddingsMode:         EmbeddingsModeFallback,
		embeddingDimension:     DefaultEmbeddingDimension,
		searchLimit:            DefaultSearchLimit,
		searchMaxTopK:          DefaultSearchMaxTopK,
		profileMaxInputChars:   DefaultProfileMaxInputChars,
		extractTimeout:         DefaultExtractTimeout,
		extractMaxBytes:        DefaultExtractMaxBytes,
	}
}

// Host returns the server host to bind to.
func (c AppConfig) Host() string { return c.host }

// Port returns the server port to listen on.
func (c AppConfig) Port() int { return c.port }

// Addr returns the combined host:port address.
func (c AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

// DataDir returns the data directory path.
func (c AppConfig) DataDir() string { return c.dataDir }

// DBURL returns the database connection URL.
func (c AppConfig) DBURL() string { return c.dbURL }

// LogLevel returns the log level.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log format.
func (c AppConfig) LogFormat() LogFormat { return c.logFormat }

// APIKeys returns the configured API keys.
func (c AppConfig) APIKeys() []string {
	keys := make([]string, len(c.apiKeys))
	copy(keys, c.apiKeys)
	return keys
}

// BusURL returns the broker URL. Empty selects the database queue.
func (c AppConfig) BusURL() string { return c.busURL }

// BusPublishMaxAttempts returns the publish attempt limit.
func (c AppConfig) BusPublishMaxAttempts() int { return c.busPublishMaxAttempts }

// BusPublishInitialDelay returns the delay before the first publish retry.
func (c AppConfig) BusPublishInitialDelay() time.Duration { return c.busPublishInitialDelay }

// BusPollPeriod returns how often the database queue is polled.
func (c AppConfig) BusPollPeriod() time.Duration { return c.busPollPeriod }

// BusLeaseTimeout returns how long a database queue message stays invisible
// while a consumer works on it.
func (c AppConfig) BusLeaseTimeout() time.Duration { return c.busLeaseTimeout }

// WorkerCount returns the number of consumers per queue.
func (c AppConfig) WorkerCount() int { return c.workerCount }

// WorkerMessageTimeout returns the per-message processing deadline.
func (c AppConfig) WorkerMessageTimeout() time.Duration { return c.workerMessageTimeout }

// EmbeddingsMode returns the embedding mode.
func (c AppConfig) EmbeddingsMode() EmbeddingsMode { return c.embeddingsMode }

// EmbeddingDimension returns the required vector length.
func (c AppConfig) EmbeddingDimension() int { return c.embeddingDimension }

// SearchLimit returns the default number of search results.
func (c AppConfig) SearchLimit() int { return c.searchLimit }

// SearchMaxTopK returns the largest accepted top_k.
func (c AppConfig) SearchMaxTopK() int { return c.searchMaxTopK }

// ProfileMaxInputChars returns the character budget for profile generation input.
func (c AppConfig) ProfileMaxInputChars() int { return c.profileMaxInputChars }

// ExtractTimeout returns the object fetch timeout.
func (c AppConfig) ExtractTimeout() time.Duration { return c.extractTimeout }

// ExtractMaxBytes returns the largest object the extractor reads.
func (c AppConfig) ExtractMaxBytes() int64 { return c.extractMaxBytes }

// StorageEndpoint returns the object storage endpoint override.
func (c AppConfig) StorageEndpoint() string { return c.storageEndpoint }

// StorageCredentialsFile returns the object storage credentials file.
func (c AppConfig) StorageCredentialsFile() string { return c.storageCredentialsFile }

// S3Storage returns the S3-compatible storage settings.
func (c AppConfig) S3Storage() S3Storage { return c.s3Storage }

// HTTPCacheDir returns the directory for caching provider responses.
func (c AppConfig) HTTPCacheDir() string { return c.httpCacheDir }

// PromptsFile returns the YAML file overriding the default prompts.
func (c AppConfig) PromptsFile() string { return c.promptsFile }

// EmbeddingEndpoint returns the embedding endpoint config.
func (c AppConfig) EmbeddingEndpoint() *Endpoint { return c.embeddingEndpoint }

// EnrichmentEndpoint returns the profile generation endpoint config.
func (c AppConfig) EnrichmentEndpoint() *Endpoint { return c.enrichmentEndpoint }

// VisionEndpoint returns the captioning endpoint config, defaulting to the
// enrichment endpoint.
func (c AppConfig) VisionEndpoint() *Endpoint {
	if c.visionEndpoint != nil {
		return c.visionEndpoint
	}
	return c.enrichmentEndpoint
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c AppConfig) EnsureDataDir() error {
	return os.MkdirAll(c.dataDir, 0o755)
}

// AppConfigOption is a functional option for AppConfig.
type AppConfigOption func(*AppConfig)

// WithHost sets the server host.
func WithHost(host string) AppConfigOption {
	return func(c *AppConfig) { c.host = host }
}

// WithPort sets the server port.
func WithPort(port int) AppConfigOption {
	return func(c *AppConfig) { c.port = port }
}

// WithDataDir sets the data directory and moves the default SQLite database with it.
func WithDataDir(dir string) AppConfigOption {
	return func(c *AppConfig) {
		if c.dbURL == "" || c.dbURL == defaultDBURL(c.dataDir) {
			c.dbURL = defaultDBURL(dir)
		}
		c.dataDir = dir
	}
}

// WithDBURL sets the database URL.
func WithDBURL(url string) AppConfigOption {
	return func(c *AppConfig) { c.dbURL = url }
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) AppConfigOption {
	return func(c *AppConfig) { c.logLevel = level }
}

// WithLogFormat sets the log format.
func WithLogFormat(format LogFormat) AppConfigOption {
	return func(c *AppConfig) { c.logFormat = format }
}

// WithAPIKeys sets the API keys.
func WithAPIKeys(keys []string) AppConfigOption {
	return func(c *AppConfig) {
		c.apiKeys = make([]string, len(keys))
		copy(c.apiKeys, keys)
	}
}

// WithBusURL sets the broker URL.
func WithBusURL(url string) AppConfigOption {
	return func(c *AppConfig) { c.busURL = url }
}

// WithBusPublishRetry sets the publish attempt limit and initial delay.
func WithBusPublishRetry(maxAttempts int, initialDelay time.Duration) AppConfigOption {
	return func(c *AppConfig) {
		if maxAttempts > 0 {
			c.busPublishMaxAttempts = maxAttempts
		}
		if initialDelay >= 0 {
			c.busPublishInitialDelay = initialDelay
		}
	}
}

// WithBusPollPeriod sets the database queue poll period.
func WithBusPollPeriod(d time.Duration) AppConfigOption {
	return func(c *AppConfig) {
		if d > 0 {
			c.busPollPeriod = d
		}
	}
}

// WithBusLeaseTimeout sets the database queue lease timeout.
func WithBusLeaseTimeout(d time.Duration) AppConfigOption {
	return func(c *AppConfig) {
		if d > 0 {
			c.busLeaseTimeout = d
		}
	}
}

// WithWorkerCount sets the number of consumers per queue.
func WithWorkerCount(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.workerCount = n
		}
	}
}

// WithWorkerMessageTimeout sets the per-message processing deadline.
func WithWorkerMessageTimeout(d time.Duration) AppConfigOption {
	return func(c *AppConfig) {
		if d > 0 {
			c.workerMessageTimeout = d
		}
	}
}

// WithEmbeddingsMode sets the embedding mode.
func WithEmbeddingsMode(mode EmbeddingsMode) AppConfigOption {
	return func(c *AppConfig) { c.embeddingsMode = mode }
}

// WithEmbeddingDimension sets the required vector length.
func WithEmbeddingDimension(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.embeddingDimension = n
		}
	}
}

// WithSearchLimit sets the default number of search results.
func WithSearchLimit(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.searchLimit = n
		}
	}
}

// WithSearchMaxTopK sets the largest accepted top_k, capped at MaxSearchTopK.
func WithSearchMaxTopK(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.searchMaxTopK = min(n, MaxSearchTopK)
		}
	}
}

// WithProfileMaxInputChars sets the profile generation input budget.
func WithProfileMaxInputChars(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.profileMaxInputChars = n
		}
	}
}

// WithExtractLimits sets the fetch timeout and maximum object size.
func WithExtractLimits(timeout time.Duration, maxBytes int64) AppConfigOption {
	return func(c *AppConfig) {
		if timeout > 0 {
			c.extractTimeout = timeout
		}
		if maxBytes > 0 {
			c.extractMaxBytes = maxBytes
		}
	}
}

// WithStorage sets the object storage endpoint and credentials file.
func WithStorage(endpoint, credentialsFile string) AppConfigOption {
	return func(c *AppConfig) {
		c.storageEndpoint = endpoint
		c.storageCredentialsFile = credentialsFile
	}
}

// S3Storage holds the settings for signed reads from S3-compatible storage.
type S3Storage struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// WithS3Storage sets the S3-compatible storage settings.
func WithS3Storage(s S3Storage) AppConfigOption {
	return func(c *AppConfig) { c.s3Storage = s }
}

// WithHTTPCacheDir sets the provider response cache directory.
func WithHTTPCacheDir(dir string) AppConfigOption {
	return func(c *AppConfig) { c.httpCacheDir = dir }
}

// WithPromptsFile sets the prompt override file.
func WithPromptsFile(path string) AppConfigOption {
	return func(c *AppConfig) { c.promptsFile = path }
}

// WithEmbeddingEndpoint sets the embedding endpoint.
func WithEmbeddingEndpoint(e Endpoint) AppConfigOption {
	return func(c *AppConfig) { c.embeddingEndpoint = &e }
}

// WithEnrichmentEndpoint sets the profile generation endpoint.
func WithEnrichmentEndpoint(e Endpoint) AppConfigOption {
	return func(c *AppConfig) { c.enrichmentEndpoint = &e }
}

// WithVisionEndpoint sets the captioning endpoint.
func WithVisionEndpoint(e Endpoint) AppConfigOption {
	return func(c *AppConfig) { c.visionEndpoint = &e }
}

// NewAppConfigWithOptions creates an AppConfig with functional options.
func NewAppConfigWithOptions(opts ...AppConfigOption) AppConfig {
	return NewAppConfig().Apply(opts...)
}

// Apply returns a new AppConfig with the given options applied.
func (c AppConfig) Apply(opts ...AppConfigOption) AppConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// LogAttrs returns slog attributes for logging the configuration.
// Secrets are masked or shown as counts.
func (c AppConfig) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("data_dir", c.dataDir),
		slog.String("log_level", c.logLevel),
		slog.String("db_url", maskURL(c.dbURL)),
		slog.String("bus_url", c.maskedBusURL()),
		slog.Int("worker_count", c.workerCount),
		slog.String("embeddings_mode", string(c.embeddingsMode)),
		slog.Int("embedding_dimension", c.embeddingDimension),
		slog.String("embedding_model", endpointModel(c.embeddingEndpoint)),
		slog.String("enrichment_model", endpointModel(c.enrichmentEndpoint)),
		slog.String("vision_model", endpointModel(c.VisionEndpoint())),
		slog.Int("api_keys_count", len(c.apiKeys)),
		slog.String("s3_endpoint", c.s3Storage.Endpoint),
	}
}

func (c AppConfig) maskedBusURL() string {
	if c.busURL == "" {
		return "(database)"
	}
	return maskURL(c.busURL)
}

// maskURL hides credentials in a connection URL.
func maskURL(raw string) string {
	if raw == "" {
		return "(default)"
	}
	if strings.HasPrefix(raw, "sqlite:") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	return u.Redacted()
}

func endpointModel(e *Endpoint) string {
	if e == nil {
		return "(not configured)"
	}
	return e.Provider() + ":" + e.Model()
}

// ParseAPIKeys parses a comma-separated string of API keys.
func ParseAPIKeys(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			keys = append(keys, trimmed)
		}
	}
	return keys
}
