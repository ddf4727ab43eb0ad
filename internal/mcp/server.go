// Package mcp provides Model Context Protocol server functionality.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/cosolvent/cosolvent/application/service"
	"github.com/cosolvent/cosolvent/domain/fault"
	"github.com/cosolvent/cosolvent/domain/search"
)

// Tool names.
const (
	ToolSearchProducers = "search_producers"
	ToolIndexProfile    = "index_profile"
)

// Searcher provides producer search for MCP tools.
type Searcher interface {
	Search(ctx context.Context, req service.SearchRequest) ([]search.Match, error)
}

// Indexer indexes profile text for MCP tools.
type Indexer interface {
	Index(ctx context.Context, req service.IndexRequest) error
}

// Server wraps the MCP server with the producer search tools.
type Server struct {
	mcpServer *server.MCPServer
	searcher  Searcher
	indexer   Indexer
	logger    *slog.Logger
}

// NewServer creates a new MCP server. indexer may be nil, in which case the
// index_profile tool is not registered.
func NewServer(searcher Searcher, indexer Indexer, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		searcher: searcher,
		indexer:  indexer,
		logger:   logger,
	}

	mcpServer := server.NewMCPServer(
		"cosolvent",
		version,
		server.WithToolCapabilities(true),
	)
	s.registerTools(mcpServer)

	s.mcpServer = mcpServer
	return s
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	searchTool := mcp.NewTool(ToolSearchProducers,
		mcp.WithDescription("Find producers whose profiles are semantically closest to a natural language query"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("What the buyer is looking for"),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Number of results to return (default: 10)"),
		),
		mcp.WithString("region",
			mcp.Description("Only return producers in this region"),
		),
		mcp.WithString("certification",
			mcp.Description("Only return producers holding this certification"),
		),
		mcp.WithString("primary_crop",
			mcp.Description("Only return producers growing this crop"),
		),
	)
	mcpServer.AddTool(searchTool, s.handleSearch)

	if s.indexer == nil {
		return
	}

	indexTool := mcp.NewTool(ToolIndexProfile,
		mcp.WithDescription("Index a producer profile text so it can be found by search_producers"),
		mcp.WithString("profile_id",
			mcp.Required(),
			mcp.Description("Identifier returned in search results"),
		),
		mcp.WithString("ai_profile",
			mcp.Required(),
			mcp.Description("Profile text to embed"),
		),
		mcp.WithString("region",
			mcp.Description("Producer region"),
		),
		mcp.WithArray("certifications",
			mcp.Description("Certifications held"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("primary_crops",
			mcp.Description("Main crops"),
			mcp.WithStringItems(),
		),
	)
	mcpServer.AddTool(indexTool, s.handleIndex)
}

type searchResult struct {
	ID             string   `json:"id"`
	Score          float64  `json:"score"`
	Region         string   `json:"region,omitempty"`
	Certifications []string `json:"certifications,omitempty"`
	PrimaryCrops   []string `json:"primary_crops,omitempty"`
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query is required"), nil
	}

	var opts []search.FiltersOption
	if region := request.GetString("region", ""); region != "" {
		opts = append(opts, search.WithRegions(region))
	}
	if cert := request.GetString("certification", ""); cert != "" {
		opts = append(opts, search.WithCertifications(cert))
	}
	if crop := request.GetString("primary_crop", ""); crop != "" {
		opts = append(opts, search.WithPrimaryCrops(crop))
	}

	matches, err := s.searcher.Search(ctx, service.SearchRequest{
		Query:   query,
		Filters: search.NewFilters(opts...),
		TopK:    request.GetInt("top_k", 0),
	})
	if err != nil {
		return s.toolError(ctx, "search failed", err), nil
	}

	results := make([]searchResult, len(matches))
	for i, m := range matches {
		md := m.Metadata()
		results[i] = searchResult{
			ID:             m.ID(),
			Score:          m.Score(),
			Region:         md.Region,
			Certifications: md.Certifications,
			PrimaryCrops:   md.PrimaryCrops,
		}
	}

	jsonBytes, err := json.Marshal(results)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	profileID, err := request.RequireString("profile_id")
	if err != nil {
		return mcp.NewToolResultError("profile_id is required"), nil
	}
	text, err := request.RequireString("ai_profile")
	if err != nil {
		return mcp.NewToolResultError("ai_profile is required"), nil
	}

	err = s.indexer.Index(ctx, service.IndexRequest{
		ProfileID:      profileID,
		AIProfile:      text,
		Region:         request.GetString("region", ""),
		Certifications: request.GetStringSlice("certifications", nil),
		PrimaryCrops:   request.GetStringSlice("primary_crops", nil),
	})
	if err != nil {
		return s.toolError(ctx, "index failed", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("indexed %s", profileID)), nil
}

// toolError reports validation failures verbatim and hides everything else
// behind a generic message.
func (s *Server) toolError(ctx context.Context, msg string, err error) *mcp.CallToolResult {
	if fault.Classify(err) == fault.KindValidation {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", msg, err))
	}
	s.logger.ErrorContext(ctx, msg, slog.String("error", err.Error()))
	if fault.Retryable(err) {
		return mcp.NewToolResultError(msg + ": an upstream service is unavailable, retry later")
	}
	return mcp.NewToolResultError(msg + ": internal error")
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio runs the MCP server on stdio.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
