package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cosolvent/cosolvent/infrastructure/api/middleware"
	"github.com/cosolvent/cosolvent/infrastructure/api/v1/dto"
	"github.com/cosolvent/cosolvent/internal/config"
)

// ModeReporter reports where embeddings come from.
type ModeReporter interface {
	Mode() config.EmbeddingsMode
}

// HealthRouter serves liveness checks.
type HealthRouter struct {
	embeddings ModeReporter
}

// NewHealthRouter creates a new HealthRouter.
func NewHealthRouter(embeddings ModeReporter) *HealthRouter {
	return &HealthRouter{embeddings: embeddings}
}

// Health handles GET /health and GET /healthz.
func (r *HealthRouter) Health(w http.ResponseWriter, _ *http.Request) {
	mode := config.EmbeddingsModeFallback
	if r.embeddings != nil {
		mode = r.embeddings.Mode()
	}
	middleware.WriteJSON(w, http.StatusOK, dto.HealthResponse{
		Status:         "ok",
		EmbeddingsMode: string(mode),
	})
}

// Mount registers the health endpoints on router.
func (r *HealthRouter) Mount(router chi.Router) {
	router.Get("/health", r.Health)
	router.Get("/healthz", r.Health)
}
