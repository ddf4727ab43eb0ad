package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cosolvent/cosolvent/internal/retry"
)

// Anthropic defaults.
const (
	DefaultAnthropicBaseURL   = "https://api.anthropic.com"
	DefaultAnthropicModel     = "claude-sonnet-4-20250514"
	DefaultAnthropicMaxTokens = 4096
	anthropicVersion          = "2023-06-01"
)

// AnthropicProvider implements text generation using the Anthropic Messages
// API. Anthropic has no embedding or transcription endpoint.
type AnthropicProvider struct {
	apiKey     string
	baseURL    string
	model      string
	retry      retry.Policy
	httpClient *http.Client
}

// AnthropicConfig holds configuration for Anthropic provider.
type AnthropicConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	Timeout       time.Duration
	MaxRetries    int
	InitialDelay  time.Duration
	BackoffFactor float64
	Transport     http.RoundTripper
}

// NewAnthropicProvider creates a provider from configuration. Zero values
// take defaults.
func NewAnthropicProvider(cfg AnthropicConfig) *AnthropicProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultAnthropicBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultAnthropicModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &AnthropicProvider{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      model,
		retry:      retryPolicy(cfg.MaxRetries, cfg.InitialDelay, cfg.BackoffFactor, isAnthropicRetryable),
		httpClient: &http.Client{Timeout: timeout, Transport: cfg.Transport},
	}
}

// Name returns the registry key of the provider.
func (p *AnthropicProvider) Name() string { return NameAnthropic }

// SupportsTextGeneration returns true.
func (p *AnthropicProvider) SupportsTextGeneration() bool { return true }

// SupportsEmbedding returns false.
func (p *AnthropicProvider) SupportsEmbedding() bool { return false }

// Close is a no-op for the Anthropic provider.
func (p *AnthropicProvider) Close() error { return nil }

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string                 `json:"role"`
	Content []anthropicContentPart `json:"content"`
}

type anthropicContentPart struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type anthropicResponse struct {
	ID         string           `json:"id"`
	Content    []anthropicBlock `json:"content"`
	Model      string           `json:"model"`
	StopReason string           `json:"stop_reason"`
	Usage      anthropicUsage   `json:"usage"`
}

type anthropicBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// ChatCompletion generates a chat completion using Claude. System messages
// are folded into the system prompt; images are passed as URL sources.
func (p *AnthropicProvider) ChatCompletion(ctx context.Context, req ChatCompletionRequest) (ChatCompletionResponse, error) {
	messages := req.Messages()
	if len(messages) == 0 {
		return ChatCompletionResponse{}, NewProviderError("chat_completion", http.StatusBadRequest, "no messages provided", nil)
	}

	var system []string
	var apiMessages []anthropicMessage
	for _, m := range messages {
		if m.Role() == "system" {
			system = append(system, m.Content())
			continue
		}
		var parts []anthropicContentPart
		if m.HasImage() {
			parts = append(parts, anthropicContentPart{
				Type:   "image",
				Source: &anthropicSource{Type: "url", URL: m.ImageURL()},
			})
		}
		parts = append(parts, anthropicContentPart{Type: "text", Text: m.Content()})
		apiMessages = append(apiMessages, anthropicMessage{Role: m.Role(), Content: parts})
	}

	maxTokens := req.MaxTokens()
	if maxTokens == 0 {
		maxTokens = DefaultAnthropicMaxTokens
	}

	apiReq := anthropicRequest{
		Model:       p.model,
		MaxTokens:   maxTokens,
		Messages:    apiMessages,
		System:      strings.Join(system, "\n\n"),
		Temperature: req.Temperature(),
	}

	var resp anthropicResponse
	err := p.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = p.doRequest(ctx, apiReq)
		return err
	})
	if err != nil {
		var provErr *ProviderError
		if errors.As(err, &provErr) {
			return ChatCompletionResponse{}, provErr
		}
		return ChatCompletionResponse{}, NewProviderError("chat_completion", 0, "request failed", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	usage := NewUsage(
		resp.Usage.InputTokens,
		resp.Usage.OutputTokens,
		resp.Usage.InputTokens+resp.Usage.OutputTokens,
	)
	return NewChatCompletionResponse(content.String(), resp.StopReason, usage), nil
}

func (p *AnthropicProvider) doRequest(ctx context.Context, req anthropicRequest) (anthropicResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return anthropicResponse{}, NewProviderError("chat_completion", http.StatusBadRequest, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return anthropicResponse{}, NewProviderError("chat_completion", http.StatusBadRequest, "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return anthropicResponse{}, NewProviderError("chat_completion", 0, "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return anthropicResponse{}, NewProviderError("chat_completion", resp.StatusCode, "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr anthropicErrorBody
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Message != "" {
			return anthropicResponse{}, NewProviderError("chat_completion", resp.StatusCode, apiErr.Error.Message, nil)
		}
		return anthropicResponse{}, NewProviderError("chat_completion", resp.StatusCode, http.StatusText(resp.StatusCode), nil)
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return anthropicResponse{}, NewProviderError("chat_completion", 0, "failed to unmarshal response", err)
	}
	return apiResp, nil
}

func isAnthropicRetryable(err error) bool {
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		return false
	}
	if provErr.StatusCode() == 0 {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return retryableStatus(provErr.StatusCode())
}

var _ TextOnlyProvider = (*AnthropicProvider)(nil)
