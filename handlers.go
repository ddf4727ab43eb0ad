package cosolvent

import (
	"fmt"
	"time"

	"github.com/cosolvent/cosolvent/application/handler"
	"github.com/cosolvent/cosolvent/application/handler/enrichment"
	indexinghandler "github.com/cosolvent/cosolvent/application/handler/indexing"
	profilehandler "github.com/cosolvent/cosolvent/application/handler/profile"
	"github.com/cosolvent/cosolvent/domain/fault"
	"github.com/cosolvent/cosolvent/domain/queue"
	"github.com/cosolvent/cosolvent/infrastructure/provider"
	"github.com/cosolvent/cosolvent/internal/config"
)

// transcribingProvider is a provider that may offer speech-to-text.
type transcribingProvider interface {
	provider.Transcriber
	SupportsTranscription() bool
}

// resolveProviders fills the providers not set by options from the
// configured endpoints.
func resolveProviders(cfg *clientConfig, registry *provider.Registry) error {
	app := cfg.app

	if cfg.textProvider == nil {
		if ep := app.EnrichmentEndpoint(); ep != nil && ep.IsConfigured() {
			gen, err := registry.TextGenerator(*ep)
			if err != nil {
				return fmt.Errorf("enrichment endpoint: %w", err)
			}
			cfg.textProvider = gen
		}
	}

	if cfg.visionProvider == nil {
		ep := app.VisionEndpoint()
		switch {
		case ep != nil && ep != app.EnrichmentEndpoint() && ep.IsConfigured():
			gen, err := registry.TextGenerator(*ep)
			if err != nil {
				return fmt.Errorf("vision endpoint: %w", err)
			}
			cfg.visionProvider = gen
		default:
			cfg.visionProvider = cfg.textProvider
		}
	}

	if cfg.embeddingProvider == nil && app.EmbeddingsMode() == config.EmbeddingsModeProvider {
		if ep := app.EmbeddingEndpoint(); ep != nil && ep.IsConfigured() {
			emb, err := registry.Embedder(*ep)
			if err != nil {
				return fmt.Errorf("embedding endpoint: %w", err)
			}
			cfg.embeddingProvider = emb
		}
	}

	if cfg.transcriber == nil {
		for _, candidate := range []any{cfg.visionProvider, cfg.textProvider, cfg.embeddingProvider} {
			if t, ok := candidate.(transcribingProvider); ok && t.SupportsTranscription() {
				cfg.transcriber = t
				break
			}
		}
	}
	return nil
}

// registerHandlers registers the consumers of every pipeline queue. Profile
// synthesis needs a text provider and is skipped without one.
func (c *Client) registerHandlers() error {
	describe, err := enrichment.NewDescribeAsset(c.Assets, c.extractor, c.bus, c.logger)
	if err != nil {
		return err
	}
	c.registry.Register(queue.AssetUploadQueue, describe)

	if c.generator != nil {
		synthesize, err := profilehandler.NewSynthesize(c.Profiles, c.Assets, c.generator, c.bus, c.logger)
		if err != nil {
			return err
		}
		c.registry.Register(queue.MetadataCompletedQueue, synthesize)
	}

	indexProfile, err := indexinghandler.NewIndexProfile(c.Indexing, c.Profiles, c.logger)
	if err != nil {
		return err
	}
	c.registry.Register(queue.ProfileApprovedQueue, indexProfile)

	indexAsset, err := indexinghandler.NewIndexAsset(c.Indexing, c.logger)
	if err != nil {
		return err
	}
	c.registry.Register(queue.AssetReadyForIndexingQueue, indexAsset)
	return nil
}

// consumedQueues lists the queues this service must consume. The
// profile_generated queue belongs to the profile CRUD service.
var consumedQueues = []queue.Name{
	queue.AssetUploadQueue,
	queue.MetadataCompletedQueue,
	queue.ProfileApprovedQueue,
	queue.AssetReadyForIndexingQueue,
}

// validateHandlers checks every consumed queue has a handler.
func (c *Client) validateHandlers() error {
	var missing []string
	for _, name := range consumedQueues {
		if !c.registry.HasHandler(name) {
			missing = append(missing, name.String())
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: no handler for queues %v", ErrNoTextProvider, missing)
	}
	return nil
}

// validatePayload decodes body as the payload of the named queue.
func validatePayload(name queue.Name, body []byte) error {
	d := queue.NewDelivery("", name, body, 1, time.Time{})
	var err error
	switch name {
	case queue.AssetUploadQueue:
		_, err = handler.Decode[queue.AssetUploaded](d)
	case queue.MetadataCompletedQueue:
		_, err = handler.Decode[queue.MetadataCompleted](d)
	case queue.ProfileGeneratedQueue:
		var p queue.ProfileGenerated
		if err = d.Decode(&p); err != nil {
			err = fault.Validation("profile_generated: %v", err)
		} else if p.UserID == "" {
			err = fault.Validation("profile_generated: user_id is required")
		}
	case queue.ProfileApprovedQueue:
		_, err = handler.Decode[queue.ProfileApproved](d)
	case queue.AssetReadyForIndexingQueue:
		_, err = handler.Decode[queue.AssetReadyForIndexing](d)
	}
	return err
}
