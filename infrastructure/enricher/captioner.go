package enricher

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/cosolvent/cosolvent/domain/fault"
	"github.com/cosolvent/cosolvent/infrastructure/extract"
	"github.com/cosolvent/cosolvent/infrastructure/provider"
)

// Captioner describes assets that have no text parser. Images go to a
// vision model, audio to a transcriber, anything else to a text prompt
// naming the asset.
type Captioner struct {
	chat        *Chat
	transcriber provider.Transcriber
	fetcher     extract.ObjectFetcher
	prompts     Prompts
	log         *slog.Logger
}

// CaptionerOption configures a Captioner.
type CaptionerOption func(*Captioner)

// WithTranscriber enables speech-to-text for audio assets.
func WithTranscriber(t provider.Transcriber) CaptionerOption {
	return func(c *Captioner) { c.transcriber = t }
}

// WithCaptionPrompts sets the prompt templates.
func WithCaptionPrompts(p Prompts) CaptionerOption {
	return func(c *Captioner) { c.prompts = p }
}

// WithCaptionLogger sets the logger.
func WithCaptionLogger(l *slog.Logger) CaptionerOption {
	return func(c *Captioner) {
		if l != nil {
			c.log = l
		}
	}
}

// NewCaptioner creates a Captioner. fetcher reads objects a remote model
// cannot reach by URL.
func NewCaptioner(vision provider.TextGenerator, fetcher extract.ObjectFetcher, opts ...CaptionerOption) *Captioner {
	c := &Captioner{
		fetcher: fetcher,
		prompts: DefaultPrompts(),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if vision != nil {
		c.chat = NewChat(vision, c.log).WithMaxTokens(512)
	}
	return c
}

// Caption returns a natural-language description of the asset at rawURL.
func (c *Captioner) Caption(ctx context.Context, rawURL, mimeType string) (string, error) {
	major, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(mimeType)), "/")

	var (
		text string
		err  error
	)
	switch {
	case major == "audio" && c.transcriber != nil:
		text, err = c.transcribe(ctx, rawURL)
	case c.chat == nil:
		return "", fmt.Errorf("%w: no vision model configured", fault.ErrConfiguration)
	case major == "image":
		text, err = c.describeImage(ctx, rawURL, mimeType)
	default:
		text, err = c.chat.Complete(ctx, "", c.prompts.AssetPrompt(rawURL, mimeType))
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty caption", extract.ErrCaptionFailed)
	}
	return text, nil
}

func (c *Captioner) describeImage(ctx context.Context, rawURL, mimeType string) (string, error) {
	imageURL := rawURL
	if !isPublicURL(rawURL) {
		data, err := c.fetch(ctx, rawURL)
		if err != nil {
			return "", err
		}
		imageURL = "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
	}

	c.log.DebugContext(ctx, "captioning image", slog.String("mime_type", mimeType))
	return c.chat.Describe(ctx, c.prompts.ImageCaption, imageURL)
}

func (c *Captioner) transcribe(ctx context.Context, rawURL string) (string, error) {
	data, err := c.fetch(ctx, rawURL)
	if err != nil {
		return "", err
	}

	name := "audio"
	if u, err := url.Parse(rawURL); err == nil && path.Base(u.Path) != "/" && path.Base(u.Path) != "." {
		name = path.Base(u.Path)
	}

	c.log.DebugContext(ctx, "transcribing audio", slog.Int("bytes", len(data)))
	return c.transcriber.Transcribe(ctx, provider.NewTranscriptionRequest(name, data))
}

func (c *Captioner) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if c.fetcher == nil {
		return nil, fmt.Errorf("%w: no object fetcher configured", fault.ErrConfiguration)
	}
	return c.fetcher.Fetch(ctx, rawURL)
}

func isPublicURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

var _ extract.Captioner = (*Captioner)(nil)
