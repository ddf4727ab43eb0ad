package provider

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/cosolvent/cosolvent/domain/fault"
	"github.com/cosolvent/cosolvent/internal/config"
)

// OpenRouter defaults.
const (
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	openRouterReferer        = "https://github.com/cosolvent/cosolvent"
	openRouterTitle          = "cosolvent"
)

// ErrUnknownProvider indicates an endpoint names a provider with no factory.
var ErrUnknownProvider = fmt.Errorf("%w: unknown provider", fault.ErrConfiguration)

// Factory builds a provider for an endpoint. transport is nil unless HTTP
// caching is enabled.
type Factory func(endpoint config.Endpoint, transport http.RoundTripper) (Provider, error)

// Registry maps provider names to factories and keeps the clients it built
// so they can be closed together.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	built     []Provider
	cacheDir  string
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithHTTPCacheDir caches successful provider responses on disk.
func WithHTTPCacheDir(dir string) RegistryOption {
	return func(r *Registry) { r.cacheDir = dir }
}

// WithFactory registers or replaces the factory for name.
func WithFactory(name string, f Factory) RegistryOption {
	return func(r *Registry) { r.factories[name] = f }
}

// NewRegistry creates a registry with the openai, openrouter and anthropic
// factories.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		factories: map[string]Factory{
			NameOpenAI:     newOpenAIFromEndpoint,
			NameOpenRouter: newOpenRouterFromEndpoint,
			NameAnthropic:  newAnthropicFromEndpoint,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build creates the provider for an endpoint.
func (r *Registry) Build(endpoint config.Endpoint) (Provider, error) {
	name := endpoint.Provider()
	if name == "" {
		name = NameOpenAI
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}

	var transport http.RoundTripper
	if r.cacheDir != "" {
		ct, err := NewCachingTransport(r.cacheDir, nil)
		if err != nil {
			return nil, err
		}
		transport = ct
	}

	p, err := factory(endpoint, transport)
	if err != nil {
		return nil, fmt.Errorf("build %s provider: %w", name, err)
	}
	r.built = append(r.built, p)
	return p, nil
}

// TextGenerator builds the endpoint's provider and checks it can chat.
func (r *Registry) TextGenerator(endpoint config.Endpoint) (TextGenerator, error) {
	p, err := r.Build(endpoint)
	if err != nil {
		return nil, err
	}
	gen, ok := p.(TextGenerator)
	if !ok || !p.SupportsTextGeneration() {
		return nil, fmt.Errorf("%s: text generation: %w", p.Name(), ErrUnsupportedOperation)
	}
	return gen, nil
}

// Embedder builds the endpoint's provider and checks it can embed.
func (r *Registry) Embedder(endpoint config.Endpoint) (Embedder, error) {
	p, err := r.Build(endpoint)
	if err != nil {
		return nil, err
	}
	emb, ok := p.(Embedder)
	if !ok || !p.SupportsEmbedding() {
		return nil, fmt.Errorf("%s: embedding: %w", p.Name(), ErrUnsupportedOperation)
	}
	return emb, nil
}

// Close closes every provider the registry built.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, p := range r.built {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.built = nil
	return errors.Join(errs...)
}

func newOpenAIFromEndpoint(e config.Endpoint, transport http.RoundTripper) (Provider, error) {
	return NewOpenAIProvider(OpenAIConfig{
		Name:           NameOpenAI,
		APIKey:         e.APIKey(),
		BaseURL:        e.BaseURL(),
		ChatModel:      e.Model(),
		EmbeddingModel: e.Model(),
		Timeout:        e.Timeout(),
		MaxRetries:     e.MaxRetries(),
		InitialDelay:   e.InitialDelay(),
		BackoffFactor:  e.BackoffFactor(),
		Transport:      transport,
	}), nil
}

// newOpenRouterFromEndpoint targets the OpenAI-compatible OpenRouter API
// with its attribution headers. OpenRouter has no transcription endpoint.
func newOpenRouterFromEndpoint(e config.Endpoint, transport http.RoundTripper) (Provider, error) {
	baseURL := e.BaseURL()
	if baseURL == "" {
		baseURL = DefaultOpenRouterBaseURL
	}
	return NewOpenAIProvider(OpenAIConfig{
		Name:           NameOpenRouter,
		APIKey:         e.APIKey(),
		BaseURL:        baseURL,
		ChatModel:      e.Model(),
		EmbeddingModel: e.Model(),
		Timeout:        e.Timeout(),
		MaxRetries:     e.MaxRetries(),
		InitialDelay:   e.InitialDelay(),
		BackoffFactor:  e.BackoffFactor(),
		Transport: NewHeaderTransport(transport, map[string]string{
			"HTTP-Referer": openRouterReferer,
			"X-Title":      openRouterTitle,
		}),
		DisableTranscription: true,
	}), nil
}

func newAnthropicFromEndpoint(e config.Endpoint, transport http.RoundTripper) (Provider, error) {
	if e.APIKey() == "" {
		return nil, fmt.Errorf("%w: anthropic requires an api key", fault.ErrConfiguration)
	}
	return NewAnthropicProvider(AnthropicConfig{
		APIKey:        e.APIKey(),
		BaseURL:       e.BaseURL(),
		Model:         e.Model(),
		Timeout:       e.Timeout(),
		MaxRetries:    e.MaxRetries(),
		InitialDelay:  e.InitialDelay(),
		BackoffFactor: e.BackoffFactor(),
		Transport:     transport,
	}), nil
}
