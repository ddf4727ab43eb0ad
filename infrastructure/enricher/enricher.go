// Package enricher provides LLM-backed profile synthesis and asset
// captioning.
package enricher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cosolvent/cosolvent/infrastructure/provider"
)

// Chat sends single-turn prompts to a TextGenerator.
type Chat struct {
	generator   provider.TextGenerator
	maxTokens   int
	temperature float64
	log         *slog.Logger
}

// NewChat creates a new Chat.
func NewChat(generator provider.TextGenerator, log *slog.Logger) *Chat {
	if log == nil {
		log = slog.Default()
	}
	return &Chat{
		generator:   generator,
		maxTokens:   2048,
		temperature: 0.2,
		log:         log,
	}
}

// WithMaxTokens sets the maximum tokens for generation.
func (c *Chat) WithMaxTokens(n int) *Chat {
	if n > 0 {
		c.maxTokens = n
	}
	return c
}

// WithTemperature sets the temperature for generation.
func (c *Chat) WithTemperature(t float64) *Chat {
	c.temperature = t
	return c
}

// Complete sends an optional system prompt and a user prompt and returns the
// cleaned reply.
func (c *Chat) Complete(ctx context.Context, system, user string) (string, error) {
	var messages []provider.Message
	if system != "" {
		messages = append(messages, provider.SystemMessage(system))
	}
	messages = append(messages, provider.UserMessage(user))
	return c.send(ctx, messages)
}

// Describe sends a prompt together with an image.
func (c *Chat) Describe(ctx context.Context, prompt, imageURL string) (string, error) {
	return c.send(ctx, []provider.Message{provider.UserImageMessage(prompt, imageURL)})
}

func (c *Chat) send(ctx context.Context, messages []provider.Message) (string, error) {
	req := provider.NewChatCompletionRequest(messages).
		WithMaxTokens(c.maxTokens).
		WithTemperature(c.temperature)

	resp, err := c.generator.ChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	c.log.DebugContext(ctx, "chat completion",
		slog.String("finish_reason", resp.FinishReason()),
		slog.Int("total_tokens", resp.Usage().TotalTokens()),
	)

	return strings.TrimSpace(cleanThinkingTags(resp.Content())), nil
}

// cleanThinkingTags removes any <think>...</think> tags from model output.
// Some models (like Qwen) use these for chain-of-thought reasoning.
func cleanThinkingTags(text string) string {
	const open, closing = "<think>", "</think>"
	result := text
	for {
		start := strings.Index(result, open)
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], closing)
		if end == -1 {
			// Unclosed tag, just remove the opening tag
			result = result[:start] + result[start+len(open):]
			continue
		}
		result = result[:start] + result[start+end+len(closing):]
	}
	return result
}
