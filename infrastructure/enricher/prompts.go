package enricher

import (
	"fmt"
	"os"
	"strings"

	"github.com/cosolvent/cosolvent/domain/fault"
	"gopkg.in/yaml.v3"
)

// Prompt template placeholders.
const (
	PlaceholderSchema = "{profile_schema}"
	PlaceholderTexts  = "{texts_concatenated}"
)

const defaultProfilePrompt = `You are an expert data extractor. Based on the following text segments, please extract information and structure it according to the JSON schema provided below. Only return a valid JSON object that conforms to this schema. If certain information is not found, use null or omit the field if appropriate according to the schema's requirements (e.g., if not required).

JSON Schema to follow:
{profile_schema}

Text segments to analyze:
{texts_concatenated}

Extracted JSON Profile:`

const defaultCaptionPrompt = "Describe this image. Focus on what it shows about the farm, its products, equipment, and practices."

const defaultAssetPrompt = "Describe the asset at {url} with content type {mime_type} in one or two sentences for a producer profile."

// Prompts holds the templates sent to language models.
type Prompts struct {
	ProfileGeneration string `yaml:"profile_generation"`
	ImageCaption      string `yaml:"image_caption"`
	AssetDescription  string `yaml:"asset_description"`
}

// DefaultPrompts returns the built-in templates.
func DefaultPrompts() Prompts {
	return Prompts{
		ProfileGeneration: defaultProfilePrompt,
		ImageCaption:      defaultCaptionPrompt,
		AssetDescription:  defaultAssetPrompt,
	}
}

// LoadPrompts reads templates from a YAML file. Keys absent from the file
// keep their defaults. An empty path returns the defaults.
func LoadPrompts(path string) (Prompts, error) {
	prompts := DefaultPrompts()
	if path == "" {
		return prompts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Prompts{}, fmt.Errorf("%w: read prompts file: %w", fault.ErrConfiguration, err)
	}
	if err := yaml.Unmarshal(data, &prompts); err != nil {
		return Prompts{}, fmt.Errorf("%w: parse prompts file %s: %w", fault.ErrConfiguration, path, err)
	}
	if err := prompts.Validate(); err != nil {
		return Prompts{}, err
	}
	return prompts, nil
}

// Validate checks that the profile template carries both placeholders.
func (p Prompts) Validate() error {
	for _, ph := range []string{PlaceholderSchema, PlaceholderTexts} {
		if !strings.Contains(p.ProfileGeneration, ph) {
			return fmt.Errorf("%w: profile_generation prompt is missing %s", fault.ErrConfiguration, ph)
		}
	}
	return nil
}

// ProfilePrompt fills the profile generation template.
func (p Prompts) ProfilePrompt(schema, texts string) string {
	return strings.NewReplacer(PlaceholderSchema, schema, PlaceholderTexts, texts).Replace(p.ProfileGeneration)
}

// AssetPrompt fills the asset description template.
func (p Prompts) AssetPrompt(url, mimeType string) string {
	return strings.NewReplacer("{url}", url, "{mime_type}", mimeType).Replace(p.AssetDescription)
}
