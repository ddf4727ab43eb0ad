// Package api serves the search, indexing and MCP endpoints over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/server"

	"github.com/cosolvent/cosolvent"
	apimiddleware "github.com/cosolvent/cosolvent/infrastructure/api/middleware"
	v1 "github.com/cosolvent/cosolvent/infrastructure/api/v1"
	mcpinternal "github.com/cosolvent/cosolvent/internal/mcp"
)

// RequestTimeout bounds every non-streaming request.
const RequestTimeout = 60 * time.Second

// APIServer provides an HTTP API backed by a cosolvent Client.
type APIServer struct {
	client       *cosolvent.Client
	auth         apimiddleware.AuthConfig
	version      string
	server       *Server
	router       chi.Router
	routerCalled bool
	logger       *slog.Logger
}

// NewAPIServer creates a new APIServer wired to the given Client.
// apiKeys configures write-protection: POST /index and the DELETE routes
// require a valid X-API-KEY. Search, health and MCP search remain open.
// When keys are configured the MCP index_profile tool is not offered.
func NewAPIServer(client *cosolvent.Client, apiKeys []string) *APIServer {
	return &APIServer{
		client:  client,
		auth:    apimiddleware.NewAuthConfigWithKeys(apiKeys),
		version: "dev",
		logger:  client.Logger(),
	}
}

// WithVersion sets the version reported to MCP clients.
func (a *APIServer) WithVersion(version string) *APIServer {
	a.version = version
	return a
}

// Router returns the chi router for customization before starting.
// Call this first, add custom middleware with router.Use(), then call MountRoutes().
// If not called, ListenAndServe creates a default router with all standard routes.
func (a *APIServer) Router() chi.Router {
	if a.router != nil {
		return a.router
	}

	a.router = chi.NewRouter()
	a.routerCalled = true
	return a.router
}

// MountRoutes wires up all routes on the router.
// Call this after adding any custom middleware via Router().Use().
func (a *APIServer) MountRoutes() {
	if a.router == nil {
		a.Router()
	}
	a.mountRoutes(a.router)
}

func (a *APIServer) mountRoutes(router chi.Router) {
	c := a.client

	searchRouter := v1.NewSearchRouter(c.Search, c.Indexing, a.logger)
	indexRouter := v1.NewIndexRouter(c.Indexing, a.logger)

	v1.NewHealthRouter(c.Embedding).Mount(router)

	router.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(RequestTimeout))

		r.Post("/search", searchRouter.Search)
		r.Post("/search-producers", searchRouter.Search)

		r.Group(func(r chi.Router) {
			r.Use(apimiddleware.WriteProtect(a.auth))
			r.Post("/index", indexRouter.Index)
			r.Delete("/search/index", searchRouter.Clear)
			r.Delete("/search/clear-index", searchRouter.Clear)
		})
	})

	// MCP manages its own streaming responses, so it gets no timeout.
	var indexer mcpinternal.Indexer
	if !a.auth.Enabled() {
		indexer = c.Indexing
	}
	mcpSrv := mcpinternal.NewServer(c.Search, indexer, a.version, a.logger)
	router.Mount("/mcp", server.NewStreamableHTTPServer(mcpSrv.MCPServer()))
}

// ListenAndServe starts the HTTP server on the given address.
func (a *APIServer) ListenAndServe(addr string) error {
	srv := NewServer(addr, a.logger)
	a.server = &srv

	if a.routerCalled && a.router != nil {
		srv.Router().Mount("/", a.router)
	} else {
		a.mountRoutes(srv.Router())
	}

	return srv.Start()
}

// Shutdown gracefully shuts down the server.
func (a *APIServer) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// Handler returns the router as an http.Handler for use with custom servers.
func (a *APIServer) Handler() http.Handler {
	if a.router == nil {
		a.Router()
		a.MountRoutes()
	}
	return a.router
}
