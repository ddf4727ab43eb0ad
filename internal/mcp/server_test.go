package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosolvent/cosolvent/application/service"
	"github.com/cosolvent/cosolvent/domain/fault"
	"github.com/cosolvent/cosolvent/domain/search"
)

type fakeSearcher struct {
	matches []search.Match
	err     error
	got     service.SearchRequest
}

func (f *fakeSearcher) Search(_ context.Context, req service.SearchRequest) ([]search.Match, error) {
	f.got = req
	return f.matches, f.err
}

type fakeIndexer struct {
	got []service.IndexRequest
	err error
}

func (f *fakeIndexer) Index(_ context.Context, req service.IndexRequest) error {
	f.got = append(f.got, req)
	return f.err
}

// toolResult is the subset of a tools/call result the tests inspect.
type toolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

func (r toolResult) text(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, r.Content)
	return r.Content[0].Text
}

// sendMessage marshals a JSON-RPC request, sends it through HandleMessage,
// and returns the JSONRPCResponse.
func sendMessage(t *testing.T, srv *Server, method string, id int, params map[string]any) mcp.JSONRPCResponse {
	t.Helper()

	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
	}
	if params != nil {
		msg["params"] = params
	}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	result := srv.MCPServer().HandleMessage(context.Background(), raw)
	resp, ok := result.(mcp.JSONRPCResponse)
	require.Truef(t, ok, "expected JSONRPCResponse, got %T: %+v", result, result)
	return resp
}

// resultJSON re-marshals the Result field through JSON into dst.
func resultJSON(t *testing.T, resp mcp.JSONRPCResponse, dst any) {
	t.Helper()
	b, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, dst))
}

func initialize(t *testing.T, srv *Server) {
	t.Helper()
	sendMessage(t, srv, "initialize", 1, map[string]any{
		"protocolVersion": "2025-06-18",
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "test-client",
			"version": "0.0.1",
		},
	})
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) toolResult {
	t.Helper()
	initialize(t, srv)
	resp := sendMessage(t, srv, "tools/call", 2, map[string]any{
		"name":      name,
		"arguments": args,
	})
	var result toolResult
	resultJSON(t, resp, &result)
	return result
}

func TestServer_Initialize(t *testing.T) {
	srv := NewServer(&fakeSearcher{}, &fakeIndexer{}, "1.2.3", nil)
	resp := sendMessage(t, srv, "initialize", 1, map[string]any{
		"protocolVersion": "2025-06-18",
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "test-client", "version": "0.0.1"},
	})

	var result mcp.InitializeResult
	resultJSON(t, resp, &result)
	assert.Equal(t, "cosolvent", result.ServerInfo.Name)
	assert.Equal(t, "1.2.3", result.ServerInfo.Version)
	assert.NotNil(t, result.Capabilities.Tools)
}

func TestServer_ListTools(t *testing.T) {
	srv := NewServer(&fakeSearcher{}, &fakeIndexer{}, "test", nil)
	initialize(t, srv)

	var result mcp.ListToolsResult
	resultJSON(t, sendMessage(t, srv, "tools/list", 2, nil), &result)

	tools := map[string]mcp.Tool{}
	for _, tool := range result.Tools {
		tools[tool.Name] = tool
	}
	require.Len(t, tools, 2)

	searchTool, ok := tools[ToolSearchProducers]
	require.True(t, ok)
	for _, param := range []string{"query", "top_k", "region", "certification", "primary_crop"} {
		assert.Contains(t, searchTool.InputSchema.Properties, param)
	}
	assert.Equal(t, []string{"query"}, searchTool.InputSchema.Required)

	indexTool, ok := tools[ToolIndexProfile]
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"profile_id", "ai_profile"}, indexTool.InputSchema.Required)
}

func TestServer_ListTools_SearchOnly(t *testing.T) {
	srv := NewServer(&fakeSearcher{}, nil, "test", nil)
	initialize(t, srv)

	var result mcp.ListToolsResult
	resultJSON(t, sendMessage(t, srv, "tools/list", 2, nil), &result)
	require.Len(t, result.Tools, 1)
	assert.Equal(t, ToolSearchProducers, result.Tools[0].Name)
}

func TestServer_SearchProducers(t *testing.T) {
	searcher := &fakeSearcher{matches: []search.Match{
		search.NewMatch("p1", 0.92, search.Metadata{Region: "Ontario", Certifications: []string{"organic"}}),
		search.NewMatch("p2", 0.41, search.Metadata{Region: "Quebec"}),
	}}
	srv := NewServer(searcher, &fakeIndexer{}, "test", nil)

	result := callTool(t, srv, ToolSearchProducers, map[string]any{
		"query":         "organic wheat",
		"top_k":         5,
		"region":        "Ontario",
		"certification": "organic",
		"primary_crop":  "wheat",
	})
	require.False(t, result.IsError, result.text(t))

	var items []searchResult
	require.NoError(t, json.Unmarshal([]byte(result.text(t)), &items))
	require.Len(t, items, 2)
	assert.Equal(t, "p1", items[0].ID)
	assert.InDelta(t, 0.92, items[0].Score, 1e-9)
	assert.Equal(t, []string{"organic"}, items[0].Certifications)

	assert.Equal(t, "organic wheat", searcher.got.Query)
	assert.Equal(t, 5, searcher.got.TopK)
	assert.Equal(t, []string{"Ontario"}, searcher.got.Filters.Regions())
	assert.Equal(t, []string{"organic"}, searcher.got.Filters.Certifications())
	assert.Equal(t, []string{"wheat"}, searcher.got.Filters.PrimaryCrops())
}

func TestServer_SearchProducers_Errors(t *testing.T) {
	result := callTool(t, NewServer(&fakeSearcher{}, nil, "test", nil), ToolSearchProducers, map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, result.text(t), "query is required")

	searcher := &fakeSearcher{err: fault.Validation("top_k must be between 1 and 100, got 500")}
	result = callTool(t, NewServer(searcher, nil, "test", nil), ToolSearchProducers, map[string]any{"query": "wheat", "top_k": 500})
	assert.True(t, result.IsError)
	assert.Contains(t, result.text(t), "top_k must be between 1 and 100")

	searcher = &fakeSearcher{err: fault.Transient(errors.New("dial tcp 10.0.0.3:5432"))}
	result = callTool(t, NewServer(searcher, nil, "test", nil), ToolSearchProducers, map[string]any{"query": "wheat"})
	assert.True(t, result.IsError)
	assert.NotContains(t, result.text(t), "10.0.0.3")
	assert.Contains(t, result.text(t), "retry later")
}

func TestServer_IndexProfile(t *testing.T) {
	indexer := &fakeIndexer{}
	srv := NewServer(&fakeSearcher{}, indexer, "test", nil)

	result := callTool(t, srv, ToolIndexProfile, map[string]any{
		"profile_id":     "p1",
		"ai_profile":     "Organic wheat farm",
		"region":         "Ontario",
		"certifications": []string{"organic"},
		"primary_crops":  []string{"wheat", "barley"},
	})
	require.False(t, result.IsError, result.text(t))
	assert.Equal(t, "indexed p1", result.text(t))

	require.Len(t, indexer.got, 1)
	assert.Equal(t, service.IndexRequest{
		ProfileID:      "p1",
		AIProfile:      "Organic wheat farm",
		Region:         "Ontario",
		Certifications: []string{"organic"},
		PrimaryCrops:   []string{"wheat", "barley"},
	}, indexer.got[0])

	result = callTool(t, srv, ToolIndexProfile, map[string]any{"profile_id": "p1"})
	assert.True(t, result.IsError)
	assert.Contains(t, result.text(t), "ai_profile is required")
}
