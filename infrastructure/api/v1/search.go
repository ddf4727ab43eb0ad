// Package v1 provides the HTTP routers of the v1 API.
package v1

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cosolvent/cosolvent/application/service"
	"github.com/cosolvent/cosolvent/domain/fault"
	"github.com/cosolvent/cosolvent/domain/search"
	"github.com/cosolvent/cosolvent/infrastructure/api/middleware"
	"github.com/cosolvent/cosolvent/infrastructure/api/v1/dto"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Searcher runs similarity searches.
type Searcher interface {
	Search(ctx context.Context, req service.SearchRequest) ([]search.Match, error)
}

// Indexer writes and clears the producer index.
type Indexer interface {
	Index(ctx context.Context, req service.IndexRequest) error
	Clear(ctx context.Context) (int, error)
}

// SearchRouter handles search endpoints.
type SearchRouter struct {
	searcher Searcher
	indexer  Indexer
	logger   *slog.Logger
}

// NewSearchRouter creates a new SearchRouter.
func NewSearchRouter(searcher Searcher, indexer Indexer, logger *slog.Logger) *SearchRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchRouter{searcher: searcher, indexer: indexer, logger: logger}
}

// Routes returns the chi router for the /search endpoints.
func (r *SearchRouter) Routes() chi.Router {
	router := chi.NewRouter()
	router.Post("/", r.Search)
	router.Delete("/index", r.Clear)
	router.Delete("/clear-index", r.Clear)
	return router
}

// Search handles POST /search.
func (r *SearchRouter) Search(w http.ResponseWriter, req *http.Request) {
	var body dto.SearchRequest
	if err := decodeBody(req, &body); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	matches, err := r.searcher.Search(req.Context(), buildSearchRequest(body))
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, buildSearchResponse(matches))
}

// Clear handles DELETE /search/index.
func (r *SearchRouter) Clear(w http.ResponseWriter, req *http.Request) {
	n, err := r.indexer.Clear(req.Context())
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, dto.ClearResponse{
		Success: true,
		Message: "Index cleared successfully.",
		Deleted: n,
	})
}

func buildSearchRequest(body dto.SearchRequest) service.SearchRequest {
	var regions, certs, crops []string
	if f := body.Filters; f != nil {
		if f.Region != "" {
			regions = append(regions, f.Region)
		}
		regions = append(regions, f.Regions...)
		certs = append(certs, f.Certifications...)
		crops = append(crops, f.PrimaryCrops...)
	}
	if body.FilterRegion != "" {
		regions = append(regions, body.FilterRegion)
	}
	if body.FilterCertification != "" {
		certs = append(certs, body.FilterCertification)
	}
	if body.FilterPrimaryCrop != "" {
		crops = append(crops, body.FilterPrimaryCrop)
	}

	topK := 0
	if body.TopK != nil {
		topK = *body.TopK
		if topK == 0 {
			// An explicit zero is out of range, unlike an omitted top_k.
			topK = -1
		}
	}

	return service.SearchRequest{
		Query: body.Query,
		Filters: search.NewFilters(
			search.WithRegions(regions...),
			search.WithCertifications(certs...),
			search.WithPrimaryCrops(crops...),
		),
		TopK: topK,
	}
}

func buildSearchResponse(matches []search.Match) dto.SearchResponse {
	results := make([]dto.SearchResult, 0, len(matches))
	for _, m := range matches {
		md := m.Metadata()
		results = append(results, dto.SearchResult{
			ID:    m.ID(),
			Score: m.Score(),
			Metadata: dto.Metadata{
				Region:         md.Region,
				Certifications: nonNil(md.Certifications),
				PrimaryCrops:   nonNil(md.PrimaryCrops),
				ProducerID:     md.ProducerID,
			},
		})
	}
	return dto.SearchResponse{
		Success: true,
		Message: "Search completed successfully.",
		Results: results,
	}
}

// decodeBody decodes a JSON body, reporting malformed input as a
// validation error.
func decodeBody(req *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(req.Body, maxBodyBytes)).Decode(v)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		return fault.Validation("request body is required")
	default:
		return fault.Validation("invalid request body: %v", err)
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
