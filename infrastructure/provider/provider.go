// Package provider provides AI provider clients for chat completion, image
// captioning, embeddings and speech-to-text. Providers may support any
// subset of these capabilities.
package provider

import (
	"context"
	"errors"
	"net/http"

	"github.com/cosolvent/cosolvent/domain/fault"
)

// ErrUnsupportedOperation indicates the provider doesn't support the
// requested operation.
var ErrUnsupportedOperation = errors.New("operation not supported by this provider")

// Message represents a chat message.
type Message struct {
	role     string
	content  string
	imageURL string
}

// NewMessage creates a new Message.
func NewMessage(role, content string) Message {
	return Message{role: role, content: content}
}

// Role returns the message role (e.g., "system", "user", "assistant").
func (m Message) Role() string { return m.role }

// Content returns the message content.
func (m Message) Content() string { return m.content }

// ImageURL returns the attached image URL, if any.
func (m Message) ImageURL() string { return m.imageURL }

// HasImage reports whether the message carries an image.
func (m Message) HasImage() bool { return m.imageURL != "" }

// SystemMessage creates a system message.
func SystemMessage(content string) Message {
	return NewMessage("system", content)
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return NewMessage("user", content)
}

// UserImageMessage creates a user message with text and an image URL.
func UserImageMessage(content, imageURL string) Message {
	return Message{role: "user", content: content, imageURL: imageURL}
}

// ChatCompletionRequest represents a request for text generation.
type ChatCompletionRequest struct {
	messages    []Message
	maxTokens   int
	temperature float64
}

// NewChatCompletionRequest creates a new ChatCompletionRequest.
func NewChatCompletionRequest(messages []Message) ChatCompletionRequest {
	msgs := make([]Message, len(messages))
	copy(msgs, messages)
	return ChatCompletionRequest{messages: msgs}
}

// WithMaxTokens returns a new request with the specified max tokens.
func (r ChatCompletionRequest) WithMaxTokens(n int) ChatCompletionRequest {
	r.maxTokens = n
	return r
}

// WithTemperature returns a new request with the specified temperature.
func (r ChatCompletionRequest) WithTemperature(t float64) ChatCompletionRequest {
	r.temperature = t
	return r
}

// Messages returns the messages.
func (r ChatCompletionRequest) Messages() []Message {
	msgs := make([]Message, len(r.messages))
	copy(msgs, r.messages)
	return msgs
}

// MaxTokens returns the max tokens setting, 0 for the provider default.
func (r ChatCompletionRequest) MaxTokens() int { return r.maxTokens }

// Temperature returns the temperature setting, 0 for the provider default.
func (r ChatCompletionRequest) Temperature() float64 { return r.temperature }

// HasImages reports whether any message carries an image.
func (r ChatCompletionRequest) HasImages() bool {
	for _, m := range r.messages {
		if m.HasImage() {
			return true
		}
	}
	return false
}

// ChatCompletionResponse represents a text generation response.
type ChatCompletionResponse struct {
	content      string
	finishReason string
	usage        Usage
}

// NewChatCompletionResponse creates a new ChatCompletionResponse.
func NewChatCompletionResponse(content, finishReason string, usage Usage) ChatCompletionResponse {
	return ChatCompletionResponse{
		content:      content,
		finishReason: finishReason,
		usage:        usage,
	}
}

// Content returns the generated content.
func (r ChatCompletionResponse) Content() string { return r.content }

// FinishReason returns why generation stopped.
func (r ChatCompletionResponse) FinishReason() string { return r.finishReason }

// Usage returns token usage information.
func (r ChatCompletionResponse) Usage() Usage { return r.usage }

// Usage represents token usage information.
type Usage struct {
	promptTokens     int
	completionTokens int
	totalTokens      int
}

// NewUsage creates a new Usage.
func NewUsage(prompt, completion, total int) Usage {
	return Usage{
		promptTokens:     prompt,
		completionTokens: completion,
		totalTokens:      total,
	}
}

// PromptTokens returns the number of prompt tokens.
func (u Usage) PromptTokens() int { return u.promptTokens }

// CompletionTokens returns the number of completion tokens.
func (u Usage) CompletionTokens() int { return u.completionTokens }

// TotalTokens returns the total number of tokens.
func (u Usage) TotalTokens() int { return u.totalTokens }

// EmbeddingRequest represents a request for embeddings.
type EmbeddingRequest struct {
	texts []string
}

// NewEmbeddingRequest creates a new EmbeddingRequest.
func NewEmbeddingRequest(texts []string) EmbeddingRequest {
	t := make([]string, len(texts))
	copy(t, texts)
	return EmbeddingRequest{texts: t}
}

// Texts returns the texts to embed.
func (r EmbeddingRequest) Texts() []string {
	t := make([]string, len(r.texts))
	copy(t, r.texts)
	return t
}

// EmbeddingResponse represents an embedding response.
type EmbeddingResponse struct {
	embeddings [][]float64
	usage      Usage
}

// NewEmbeddingResponse creates a new EmbeddingResponse.
func NewEmbeddingResponse(embeddings [][]float64, usage Usage) EmbeddingResponse {
	embs := make([][]float64, len(embeddings))
	for i, e := range embeddings {
		embs[i] = make([]float64, len(e))
		copy(embs[i], e)
	}
	return EmbeddingResponse{embeddings: embs, usage: usage}
}

// Embeddings returns the embedding vectors.
func (r EmbeddingResponse) Embeddings() [][]float64 {
	embs := make([][]float64, len(r.embeddings))
	for i, e := range r.embeddings {
		embs[i] = make([]float64, len(e))
		copy(embs[i], e)
	}
	return embs
}

// Usage returns token usage information.
func (r EmbeddingResponse) Usage() Usage { return r.usage }

// TranscriptionRequest represents a speech-to-text request.
type TranscriptionRequest struct {
	filename string
	audio    []byte
	language string
}

// NewTranscriptionRequest creates a TranscriptionRequest. The filename
// extension tells the provider the audio format.
func NewTranscriptionRequest(filename string, audio []byte) TranscriptionRequest {
	return TranscriptionRequest{filename: filename, audio: audio}
}

// WithLanguage returns a new request with an ISO-639-1 language hint.
func (r TranscriptionRequest) WithLanguage(lang string) TranscriptionRequest {
	r.language = lang
	return r
}

// Filename returns the audio file name.
func (r TranscriptionRequest) Filename() string { return r.filename }

// Audio returns the raw audio bytes.
func (r TranscriptionRequest) Audio() []byte { return r.audio }

// Language returns the language hint.
func (r TranscriptionRequest) Language() string { return r.language }

// TextGenerator generates text completions.
type TextGenerator interface {
	ChatCompletion(ctx context.Context, req ChatCompletionRequest) (ChatCompletionResponse, error)
}

// Embedder generates embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, req EmbeddingRequest) (EmbeddingResponse, error)
}

// Transcriber converts speech to text.
type Transcriber interface {
	Transcribe(ctx context.Context, req TranscriptionRequest) (string, error)
}

// Provider reports capabilities and owns client resources.
type Provider interface {
	// Name returns the registry key of the provider.
	Name() string

	// SupportsTextGeneration returns true if the provider can generate text.
	SupportsTextGeneration() bool

	// SupportsEmbedding returns true if the provider can generate embeddings.
	SupportsEmbedding() bool

	// Close releases any resources held by the provider.
	Close() error
}

// FullProvider implements text generation and embedding.
type FullProvider interface {
	Provider
	TextGenerator
	Embedder
	Transcriber
}

// TextOnlyProvider implements only text generation.
type TextOnlyProvider interface {
	Provider
	TextGenerator
}

// ProviderError wraps provider errors with additional context. It matches
// the fault kind derived from its status code under errors.Is.
type ProviderError struct {
	operation  string
	statusCode int
	message    string
	cause      error
}

// NewProviderError creates a new ProviderError.
func NewProviderError(operation string, statusCode int, message string, cause error) *ProviderError {
	return &ProviderError{
		operation:  operation,
		statusCode: statusCode,
		message:    message,
		cause:      cause,
	}
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	msg := e.operation + ": " + e.message
	if e.cause != nil {
		return msg + ": " + e.cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error { return e.cause }

// Is classifies the error: missing or rejected credentials are a
// configuration error, rate limits, server errors and network failures are
// transient, other client errors are validation failures.
func (e *ProviderError) Is(target error) bool {
	return target == e.kind()
}

func (e *ProviderError) kind() error {
	switch {
	case e.statusCode == http.StatusUnauthorized, e.statusCode == http.StatusForbidden,
		e.statusCode == http.StatusNotFound:
		return fault.ErrConfiguration
	case e.statusCode == 0,
		e.statusCode == http.StatusRequestTimeout,
		e.statusCode == http.StatusTooManyRequests,
		e.statusCode >= 500:
		return fault.ErrTransientIO
	default:
		return fault.ErrValidation
	}
}

// Operation returns the operation that failed.
func (e *ProviderError) Operation() string { return e.operation }

// StatusCode returns the HTTP status code if available.
func (e *ProviderError) StatusCode() int { return e.statusCode }

// Message returns the error message.
func (e *ProviderError) Message() string { return e.message }

// IsRateLimited returns true if the error is due to rate limiting.
func (e *ProviderError) IsRateLimited() bool {
	return e.statusCode == http.StatusTooManyRequests
}
