package enricher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/invopop/jsonschema"

	"github.com/cosolvent/cosolvent/domain/fault"
	"github.com/cosolvent/cosolvent/domain/profile"
	"github.com/cosolvent/cosolvent/infrastructure/provider"
)

// DefaultMaxInputChars caps the concatenated input texts, in runes.
const DefaultMaxInputChars = 3000

// textSeparator joins the input texts in the prompt.
const textSeparator = "\n\n---\n\n"

// ErrSynthesisInvalidOutput indicates the model reply is not a valid profile.
var ErrSynthesisInvalidOutput = fmt.Errorf("%w: %w: profile synthesis produced invalid output", fault.ErrValidation, fault.ErrRedeliverable)

// ProfileGenerator synthesizes a structured profile from free text.
type ProfileGenerator struct {
	chat          *Chat
	prompts       Prompts
	maxInputChars int
	schema        string
	log           *slog.Logger
}

// GeneratorOption configures a ProfileGenerator.
type GeneratorOption func(*ProfileGenerator)

// WithPrompts sets the prompt templates.
func WithPrompts(p Prompts) GeneratorOption {
	return func(g *ProfileGenerator) { g.prompts = p }
}

// WithMaxInputChars sets the input truncation limit.
func WithMaxInputChars(n int) GeneratorOption {
	return func(g *ProfileGenerator) {
		if n > 0 {
			g.maxInputChars = n
		}
	}
}

// WithGeneratorLogger sets the logger.
func WithGeneratorLogger(l *slog.Logger) GeneratorOption {
	return func(g *ProfileGenerator) {
		if l != nil {
			g.log = l
		}
	}
}

// NewProfileGenerator creates a ProfileGenerator backed by generator.
func NewProfileGenerator(generator provider.TextGenerator, opts ...GeneratorOption) (*ProfileGenerator, error) {
	if generator == nil {
		return nil, fmt.Errorf("%w: profile generator requires a text generator", fault.ErrConfiguration)
	}

	schema, err := DetailSchema()
	if err != nil {
		return nil, err
	}

	g := &ProfileGenerator{
		prompts:       DefaultPrompts(),
		maxInputChars: DefaultMaxInputChars,
		schema:        schema,
		log:           slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if err := g.prompts.Validate(); err != nil {
		return nil, err
	}
	g.chat = NewChat(generator, g.log).WithTemperature(0)
	return g, nil
}

// DetailSchema returns the JSON schema of a profile detail.
func DetailSchema() (string, error) {
	r := &jsonschema.Reflector{DoNotReference: true}
	data, err := json.MarshalIndent(r.Reflect(&profile.Detail{}), "", "  ")
	if err != nil {
		return "", fmt.Errorf("profile schema: %w", err)
	}
	return string(data), nil
}

// Generate returns a profile detail built from base, when present, and the
// given texts. The model reply must be a single JSON object that decodes
// strictly into a valid detail.
func (g *ProfileGenerator) Generate(ctx context.Context, base *profile.Detail, texts []string) (profile.Detail, error) {
	fresh := make([]string, 0, len(texts))
	for _, t := range texts {
		if t = strings.TrimSpace(t); t != "" {
			fresh = append(fresh, t)
		}
	}
	var baseJSON string
	if base != nil {
		data, err := json.Marshal(base)
		if err != nil {
			return profile.Detail{}, fmt.Errorf("encode base profile: %w", err)
		}
		baseJSON = string(data)
	}
	if len(fresh) == 0 && baseJSON == "" {
		return profile.Detail{}, fault.Validation("profile synthesis: no input text")
	}

	joined, baseChars := g.input(baseJSON, strings.Join(fresh, textSeparator))
	if baseChars < utf8.RuneCountInString(baseJSON) {
		g.log.DebugContext(ctx, "truncated base profile to fit input budget",
			slog.Int("base_chars", utf8.RuneCountInString(baseJSON)),
			slog.Int("kept_chars", baseChars),
		)
	}
	prompt := g.prompts.ProfilePrompt(g.schema, joined)

	reply, err := g.chat.Complete(ctx, "", prompt)
	if err != nil {
		return profile.Detail{}, fmt.Errorf("profile synthesis: %w", err)
	}

	detail, err := profile.DecodeDetail([]byte(stripFences(reply)))
	if err != nil {
		g.log.WarnContext(ctx, "invalid profile from model",
			slog.Int("reply_chars", utf8.RuneCountInString(reply)),
			slog.String("error", err.Error()),
		)
		return profile.Detail{}, fmt.Errorf("%w: %w", ErrSynthesisInvalidOutput, err)
	}
	return detail, nil
}

// input joins the base JSON and the new texts within maxInputChars. The new
// texts take the budget first and the base gets what remains, so a large
// profile never crowds out new material. It returns the input and how many
// base runes it kept.
func (g *ProfileGenerator) input(baseJSON, fresh string) (string, int) {
	if baseJSON == "" {
		return truncateRunes(fresh, g.maxInputChars), 0
	}
	if fresh == "" {
		kept := truncateRunes(baseJSON, g.maxInputChars)
		return kept, utf8.RuneCountInString(kept)
	}
	if g.maxInputChars <= 0 {
		return baseJSON + textSeparator + fresh, utf8.RuneCountInString(baseJSON)
	}

	fresh = truncateRunes(fresh, g.maxInputChars)
	remaining := g.maxInputChars - utf8.RuneCountInString(fresh) - utf8.RuneCountInString(textSeparator)
	if remaining <= 0 {
		return fresh, 0
	}
	kept := truncateRunes(baseJSON, remaining)
	return kept + textSeparator + fresh, utf8.RuneCountInString(kept)
}

// stripFences removes a surrounding markdown code fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
