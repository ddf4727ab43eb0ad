// Package service provides application layer services that orchestrate domain operations.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/cosolvent/cosolvent/domain/fault"
	"github.com/cosolvent/cosolvent/domain/search"
	"github.com/cosolvent/cosolvent/infrastructure/provider"
	"github.com/cosolvent/cosolvent/internal/config"
	"github.com/cosolvent/cosolvent/internal/retry"
)

// Embedding retry defaults.
const (
	DefaultEmbeddingAttempts     = 3
	DefaultEmbeddingInitialDelay = 500 * time.Millisecond
)

// Embedding turns text into vectors of a fixed dimension. It calls the
// configured provider in provider mode and falls back to a deterministic
// vector when the provider is unavailable or misconfigured.
type Embedding struct {
	embedder  provider.Embedder
	mode      config.EmbeddingsMode
	dimension int
	policy    retry.Policy
	logger    *slog.Logger
}

// EmbeddingOption configures an Embedding.
type EmbeddingOption func(*Embedding)

// WithEmbedder sets the provider embedder.
func WithEmbedder(e provider.Embedder) EmbeddingOption {
	return func(s *Embedding) { s.embedder = e }
}

// WithEmbeddingsMode sets the embeddings mode.
func WithEmbeddingsMode(m config.EmbeddingsMode) EmbeddingOption {
	return func(s *Embedding) { s.mode = m }
}

// WithDimension sets the vector dimension.
func WithDimension(n int) EmbeddingOption {
	return func(s *Embedding) { s.dimension = n }
}

// WithEmbeddingRetry sets the retry policy for provider calls.
func WithEmbeddingRetry(p retry.Policy) EmbeddingOption {
	return func(s *Embedding) { s.policy = p }
}

// WithEmbeddingLogger sets the logger.
func WithEmbeddingLogger(l *slog.Logger) EmbeddingOption {
	return func(s *Embedding) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewEmbedding creates an Embedding. Without options it runs in fallback
// mode with the default dimension.
func NewEmbedding(opts ...EmbeddingOption) (*Embedding, error) {
	s := &Embedding{
		mode:      config.EmbeddingsModeFallback,
		dimension: config.DefaultEmbeddingDimension,
		policy: retry.New(
			retry.WithMaxAttempts(DefaultEmbeddingAttempts),
			retry.WithInitialDelay(DefaultEmbeddingInitialDelay),
			retry.WithRetryable(fault.Retryable),
		),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dimension < 1 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive, got %d", fault.ErrConfiguration, s.dimension)
	}
	return s, nil
}

// Dimension returns the vector dimension.
func (s *Embedding) Dimension() int { return s.dimension }

// Mode reports whether vectors come from the provider or the fallback.
func (s *Embedding) Mode() config.EmbeddingsMode {
	if s.mode == config.EmbeddingsModeProvider && s.embedder != nil {
		return config.EmbeddingsModeProvider
	}
	return config.EmbeddingsModeFallback
}

// Embed returns the vector for text. Configuration failures and transient
// failures that outlive the retry policy fall back per call. A provider
// vector of the wrong length is an error and never falls back.
func (s *Embedding) Embed(ctx context.Context, text string) ([]float64, error) {
	if s.Mode() == config.EmbeddingsModeFallback {
		return FallbackVector(text, s.dimension), nil
	}

	vector, err := s.fromProvider(ctx, text)
	if err == nil {
		return vector, nil
	}
	if errors.Is(err, search.ErrDimensionMismatch) || ctx.Err() != nil {
		return nil, err
	}

	switch fault.Classify(err) {
	case fault.KindConfiguration, fault.KindTransientIO:
		s.logger.WarnContext(ctx, "embedding provider unavailable, using fallback vector",
			slog.String("kind", string(fault.Classify(err))),
			slog.String("error", err.Error()),
		)
		return FallbackVector(text, s.dimension), nil
	default:
		return nil, fmt.Errorf("embed: %w", err)
	}
}

func (s *Embedding) fromProvider(ctx context.Context, text string) ([]float64, error) {
	var vector []float64
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		resp, err := s.embedder.Embed(ctx, provider.NewEmbeddingRequest([]string{text}))
		if err != nil {
			return err
		}
		embeddings := resp.Embeddings()
		if len(embeddings) != 1 {
			return fault.Transient(fmt.Errorf("provider returned %d embeddings for 1 text", len(embeddings)))
		}
		vector = embeddings[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := search.CheckDimension(vector, s.dimension); err != nil {
		return nil, fmt.Errorf("provider embedding: %w", err)
	}
	return vector, nil
}

// FallbackVector derives a unit vector from the SHA-256 digest of text. The
// digest's first two 64-bit words seed a PCG generator that draws each
// component uniformly from [-1, 1). Equal texts always give equal vectors.
func FallbackVector(text string, dimension int) []float64 {
	sum := sha256.Sum256([]byte(text))
	rng := rand.New(rand.NewPCG(binary.BigEndian.Uint64(sum[0:8]), binary.BigEndian.Uint64(sum[8:16])))

	vector := make([]float64, dimension)
	var norm float64
	for i := range vector {
		v := rng.Float64()*2 - 1
		vector[i] = v
		norm += v * v
	}

	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	for i := range vector {
		vector[i] /= norm
	}
	return vector
}
