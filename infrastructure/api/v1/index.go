package v1

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cosolvent/cosolvent/application/service"
	"github.com/cosolvent/cosolvent/infrastructure/api/middleware"
	"github.com/cosolvent/cosolvent/infrastructure/api/v1/dto"
)

// IndexRouter handles direct profile indexing.
type IndexRouter struct {
	indexer Indexer
	logger  *slog.Logger
}

// NewIndexRouter creates a new IndexRouter.
func NewIndexRouter(indexer Indexer, logger *slog.Logger) *IndexRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexRouter{indexer: indexer, logger: logger}
}

// Routes returns the chi router for the /index endpoint.
func (r *IndexRouter) Routes() chi.Router {
	router := chi.NewRouter()
	router.Post("/", r.Index)
	return router
}

// Index handles POST /index.
func (r *IndexRouter) Index(w http.ResponseWriter, req *http.Request) {
	var body dto.IndexRequest
	if err := decodeBody(req, &body); err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	err := r.indexer.Index(req.Context(), service.IndexRequest{
		ProfileID:      body.ProfileID,
		AIProfile:      body.AIProfile,
		Region:         body.Region,
		Certifications: body.Certifications,
		PrimaryCrops:   body.PrimaryCrops,
		ProducerID:     body.ProducerID,
	})
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, dto.MessageResponse{
		Success: true,
		Message: "Profile indexed successfully.",
	})
}
