package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cosolvent/cosolvent/domain/fault"
	"github.com/cosolvent/cosolvent/domain/search"
	"github.com/cosolvent/cosolvent/internal/config"
)

// TextEmbedder turns a text into a vector.
type TextEmbedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// SearchRequest is a semantic search over producers.
type SearchRequest struct {
	Query   string
	Filters search.Filters
	TopK    int
}

// Search answers free-text queries against the producer index.
type Search struct {
	embedder    TextEmbedder
	index       search.Index
	defaultTopK int
	maxTopK     int
	logger      *slog.Logger
}

// SearchOption configures a Search.
type SearchOption func(*Search)

// WithDefaultTopK sets the result count used when a request has none.
func WithDefaultTopK(n int) SearchOption {
	return func(s *Search) {
		if n > 0 {
			s.defaultTopK = n
		}
	}
}

// WithMaxTopK sets the largest accepted result count, capped at
// config.MaxSearchTopK.
func WithMaxTopK(n int) SearchOption {
	return func(s *Search) {
		if n > 0 {
			s.maxTopK = min(n, config.MaxSearchTopK)
		}
	}
}

// WithSearchLogger sets the logger.
func WithSearchLogger(l *slog.Logger) SearchOption {
	return func(s *Search) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSearch creates a Search.
func NewSearch(embedder TextEmbedder, index search.Index, opts ...SearchOption) (*Search, error) {
	if embedder == nil {
		return nil, fmt.Errorf("NewSearch: nil embedder")
	}
	if index == nil {
		return nil, fmt.Errorf("NewSearch: nil index")
	}
	s := &Search{
		embedder:    embedder,
		index:       index,
		defaultTopK: config.DefaultSearchLimit,
		maxTopK:     config.DefaultSearchMaxTopK,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.defaultTopK = min(s.defaultTopK, s.maxTopK)
	return s, nil
}

// Search embeds the query and returns the closest producers, best first.
func (s *Search) Search(ctx context.Context, req SearchRequest) ([]search.Match, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fault.Validation("query must not be empty")
	}

	topK := req.TopK
	if topK == 0 {
		topK = s.defaultTopK
	}
	if topK < 1 || topK > s.maxTopK {
		return nil, fault.Validation("top_k must be between 1 and %d, got %d", s.maxTopK, req.TopK)
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := s.index.Query(ctx, vector, topK, req.Filters)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.index.Name(), err)
	}
	search.SortMatches(matches)

	s.logger.DebugContext(ctx, "search completed",
		slog.Int("top_k", topK),
		slog.Int("results", len(matches)),
		slog.Bool("filtered", !req.Filters.IsEmpty()),
	)
	return matches, nil
}
