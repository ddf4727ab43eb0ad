package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cosolvent/cosolvent/internal/retry"
	openai "github.com/sashabaranov/go-openai"
)

// Provider names.
const (
	NameOpenAI     = "openai"
	NameOpenRouter = "openrouter"
	NameAnthropic  = "anthropic"
)

// Default models.
const (
	DefaultChatModel          = "gpt-4o-mini"
	DefaultEmbeddingModel     = "text-embedding-3-small"
	DefaultTranscriptionModel = openai.Whisper1
)

// errEmbeddingCountMismatch indicates the API returned fewer embedding vectors
// than requested. Routing providers can return 200 with partial data under
// load, so it is retried.
var errEmbeddingCountMismatch = errors.New("embedding response count mismatch")

// errUpstreamProviderFailure indicates the API returned HTTP 200 with no data,
// no usage and no model: a routing provider whose upstreams are all down.
var errUpstreamProviderFailure = errors.New("upstream provider failure")

// OpenAIProvider implements chat, vision, embeddings and transcription on
// the OpenAI API and OpenAI-compatible APIs.
type OpenAIProvider struct {
	name               string
	client             *openai.Client
	chatModel          string
	embeddingModel     string
	transcriptionModel string
	retry              retry.Policy
	supportsText       bool
	supportsEmbedding  bool
	supportsSpeech     bool
}

// OpenAIConfig holds configuration for an OpenAI-compatible provider.
type OpenAIConfig struct {
	Name               string
	APIKey             string
	BaseURL            string
	ChatModel          string
	EmbeddingModel     string
	TranscriptionModel string
	Timeout            time.Duration
	MaxRetries         int
	InitialDelay       time.Duration
	BackoffFactor      float64
	// Transport replaces the HTTP transport, e.g. with a CachingTransport.
	Transport http.RoundTripper
	// DisableTranscription marks speech-to-text as unsupported.
	DisableTranscription bool
}

// NewOpenAIProvider creates a provider from configuration. Zero values take
// defaults.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	config.HTTPClient = &http.Client{Timeout: timeout, Transport: cfg.Transport}

	name := cfg.Name
	if name == "" {
		name = NameOpenAI
	}
	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = DefaultChatModel
	}
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}
	transcriptionModel := cfg.TranscriptionModel
	if transcriptionModel == "" {
		transcriptionModel = DefaultTranscriptionModel
	}

	return &OpenAIProvider{
		name:               name,
		client:             openai.NewClientWithConfig(config),
		chatModel:          chatModel,
		embeddingModel:     embeddingModel,
		transcriptionModel: transcriptionModel,
		retry:              retryPolicy(cfg.MaxRetries, cfg.InitialDelay, cfg.BackoffFactor, isOpenAIRetryable),
		supportsText:       true,
		supportsEmbedding:  true,
		supportsSpeech:     !cfg.DisableTranscription,
	}
}

// retryPolicy builds the policy shared by the HTTP providers. maxRetries
// counts retries after the first attempt.
func retryPolicy(maxRetries int, initialDelay time.Duration, factor float64, retryable func(error) bool) retry.Policy {
	opts := []retry.Option{
		retry.WithMaxAttempts(max(maxRetries, 0) + 1),
		retry.WithRetryable(retryable),
	}
	if initialDelay > 0 {
		opts = append(opts, retry.WithInitialDelay(initialDelay))
	}
	if factor > 0 {
		opts = append(opts, retry.WithBackoffFactor(factor))
	}
	return retry.New(opts...)
}

// Name returns the registry key of the provider.
func (p *OpenAIProvider) Name() string { return p.name }

// SupportsTextGeneration reports chat support.
func (p *OpenAIProvider) SupportsTextGeneration() bool { return p.supportsText }

// SupportsEmbedding reports embedding support.
func (p *OpenAIProvider) SupportsEmbedding() bool { return p.supportsEmbedding }

// SupportsTranscription reports speech-to-text support.
func (p *OpenAIProvider) SupportsTranscription() bool { return p.supportsSpeech }

// Close is a no-op for the OpenAI provider.
func (p *OpenAIProvider) Close() error { return nil }

// ChatCompletion generates a chat completion. Messages with an image are
// sent as multi-part content for vision models.
func (p *OpenAIProvider) ChatCompletion(ctx context.Context, req ChatCompletionRequest) (ChatCompletionResponse, error) {
	if !p.supportsText {
		return ChatCompletionResponse{}, ErrUnsupportedOperation
	}

	messages := make([]openai.ChatCompletionMessage, len(req.Messages()))
	for i, m := range req.Messages() {
		if !m.HasImage() {
			messages[i] = openai.ChatCompletionMessage{Role: m.Role(), Content: m.Content()}
			continue
		}
		messages[i] = openai.ChatCompletionMessage{
			Role: m.Role(),
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: m.Content()},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    m.ImageURL(),
						Detail: openai.ImageURLDetailAuto,
					},
				},
			},
		}
	}

	openaiReq := openai.ChatCompletionRequest{
		Model:    p.chatModel,
		Messages: messages,
	}
	if req.MaxTokens() > 0 {
		openaiReq.MaxTokens = req.MaxTokens()
	}
	if req.Temperature() > 0 {
		openaiReq.Temperature = float32(req.Temperature())
	}

	var resp openai.ChatCompletionResponse
	err := p.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = p.client.CreateChatCompletion(ctx, openaiReq)
		return err
	})
	if err != nil {
		return ChatCompletionResponse{}, wrapOpenAIError("chat_completion", err)
	}

	if len(resp.Choices) == 0 {
		return ChatCompletionResponse{}, NewProviderError("chat_completion", 0, "no choices in response", nil)
	}

	usage := NewUsage(
		resp.Usage.PromptTokens,
		resp.Usage.CompletionTokens,
		resp.Usage.TotalTokens,
	)
	return NewChatCompletionResponse(
		resp.Choices[0].Message.Content,
		string(resp.Choices[0].FinishReason),
		usage,
	), nil
}

// Embed generates embeddings for the given texts in a single API call.
func (p *OpenAIProvider) Embed(ctx context.Context, req EmbeddingRequest) (EmbeddingResponse, error) {
	if !p.supportsEmbedding {
		return EmbeddingResponse{}, ErrUnsupportedOperation
	}

	texts := req.Texts()
	if len(texts) == 0 {
		return NewEmbeddingResponse([][]float64{}, NewUsage(0, 0, 0)), nil
	}

	openaiReq := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(p.embeddingModel),
		Input: texts,
	}

	var resp openai.EmbeddingResponse
	err := p.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = p.client.CreateEmbeddings(ctx, openaiReq)
		if err != nil {
			return err
		}
		// go-openai parses a 200 error body from a router as an empty response.
		if len(resp.Data) == 0 && string(resp.Model) == "" && resp.Usage.TotalTokens == 0 {
			return fmt.Errorf(
				"%w: provider returned HTTP 200 with no embedding data, no model, and zero usage",
				errUpstreamProviderFailure,
			)
		}
		if len(resp.Data) != len(texts) {
			return fmt.Errorf("%w: got %d vectors for %d texts", errEmbeddingCountMismatch, len(resp.Data), len(texts))
		}
		return nil
	})
	if err != nil {
		return EmbeddingResponse{}, wrapOpenAIError("embedding", err)
	}

	embeddings := make([][]float64, len(resp.Data))
	for i, data := range resp.Data {
		embeddings[i] = make([]float64, len(data.Embedding))
		for j, v := range data.Embedding {
			embeddings[i][j] = float64(v)
		}
	}

	usage := NewUsage(resp.Usage.PromptTokens, 0, resp.Usage.TotalTokens)
	return NewEmbeddingResponse(embeddings, usage), nil
}

// Transcribe converts audio to text.
func (p *OpenAIProvider) Transcribe(ctx context.Context, req TranscriptionRequest) (string, error) {
	if !p.supportsSpeech {
		return "", ErrUnsupportedOperation
	}

	var resp openai.AudioResponse
	err := p.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = p.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:    p.transcriptionModel,
			FilePath: req.Filename(),
			Reader:   bytes.NewReader(req.Audio()),
			Language: req.Language(),
		})
		return err
	})
	if err != nil {
		return "", wrapOpenAIError("transcription", err)
	}
	return resp.Text, nil
}

// isOpenAIRetryable determines if an error should be retried.
func isOpenAIRetryable(err error) bool {
	if errors.Is(err, errEmbeddingCountMismatch) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 0 || retryableStatus(reqErr.HTTPStatusCode)
	}

	return false
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// wrapOpenAIError wraps an OpenAI error into a ProviderError.
func wrapOpenAIError(operation string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError(operation, 0, "request cancelled", err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return NewProviderError(operation, apiErr.HTTPStatusCode, apiErr.Message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewProviderError(operation, reqErr.HTTPStatusCode, "request failed", err)
	}

	return NewProviderError(operation, 0, "request failed", err)
}

var (
	_ FullProvider = (*OpenAIProvider)(nil)
	_ Transcriber  = (*OpenAIProvider)(nil)
)
