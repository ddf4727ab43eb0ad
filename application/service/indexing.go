package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cosolvent/cosolvent/domain/fault"
	"github.com/cosolvent/cosolvent/domain/profile"
	"github.com/cosolvent/cosolvent/domain/search"
)

// IndexRequest carries a profile text and its facets.
type IndexRequest struct {
	ProfileID      string
	AIProfile      string
	Region         string
	Certifications []string
	PrimaryCrops   []string
	ProducerID     string
}

// Validate checks required fields.
func (r IndexRequest) Validate() error {
	if strings.TrimSpace(r.ProfileID) == "" {
		return fault.Validation("profile_id is required")
	}
	if strings.TrimSpace(r.AIProfile) == "" {
		return fault.Validation("ai_profile is required")
	}
	return nil
}

// Indexing embeds profiles and asset descriptions into their indexes.
type Indexing struct {
	embedder TextEmbedder
	profiles search.Index
	assets   search.Index
	logger   *slog.Logger
}

// NewIndexing creates an Indexing. assets may be nil when asset
// descriptions are not indexed.
func NewIndexing(embedder TextEmbedder, profiles, assets search.Index, logger *slog.Logger) (*Indexing, error) {
	if embedder == nil {
		return nil, fmt.Errorf("NewIndexing: nil embedder")
	}
	if profiles == nil {
		return nil, fmt.Errorf("NewIndexing: nil profile index")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexing{embedder: embedder, profiles: profiles, assets: assets, logger: logger}, nil
}

// Index embeds the request's profile text and replaces its index entry.
// The text is embedded as is, the same way search queries are.
func (s *Indexing) Index(ctx context.Context, req IndexRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	metadata := search.Metadata{
		Region:         req.Region,
		Certifications: req.Certifications,
		PrimaryCrops:   req.PrimaryCrops,
		ProducerID:     req.ProducerID,
	}
	return s.upsertProfile(ctx, req.ProfileID, req.AIProfile, metadata)
}

// IndexProfile renders the profile's approved detail and replaces its index
// entry under id, or under the user id when id is empty. A profile without
// an approved detail is a data consistency failure; drafts are never
// indexed.
func (s *Indexing) IndexProfile(ctx context.Context, id string, p profile.Profile) error {
	if !p.HasActive() {
		return fmt.Errorf("%w: profile %q has no approved detail to index", fault.ErrDataConsistency, p.UserID())
	}
	if id == "" {
		id = p.UserID()
	}

	facets := profile.FacetsOf(p)
	metadata := search.Metadata{
		Region:         facets.Region,
		Certifications: facets.Certifications,
		PrimaryCrops:   facets.PrimaryCrops,
		ProducerID:     p.UserID(),
	}
	return s.upsertProfile(ctx, id, profile.Render(p), metadata)
}

// upsertProfile replaces the entry and drops any other entry of the same
// producer, so a producer indexed under both a profile id and a user id
// appears once.
func (s *Indexing) upsertProfile(ctx context.Context, id, text string, metadata search.Metadata) error {
	if err := s.upsert(ctx, s.profiles, id, text, metadata); err != nil {
		return err
	}
	if metadata.ProducerID == "" {
		return nil
	}
	n, err := s.profiles.DeleteProducer(ctx, metadata.ProducerID, id)
	if err != nil {
		return fmt.Errorf("remove stale entries of %s: %w", metadata.ProducerID, err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "removed stale producer entries",
			slog.String("producer_id", metadata.ProducerID),
			slog.Int("removed", n),
		)
	}
	return nil
}

// IndexAsset embeds an asset description into the asset index.
func (s *Indexing) IndexAsset(ctx context.Context, assetID, userID, description string) error {
	if s.assets == nil {
		return nil
	}
	if strings.TrimSpace(description) == "" {
		s.logger.DebugContext(ctx, "skipping asset without description", slog.String("asset_id", assetID))
		return nil
	}
	return s.upsert(ctx, s.assets, assetID, description, search.Metadata{ProducerID: userID})
}

// Clear removes every producer entry and returns how many were removed.
func (s *Indexing) Clear(ctx context.Context) (int, error) {
	n, err := s.profiles.DeleteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear %s: %w", s.profiles.Name(), err)
	}
	s.logger.InfoContext(ctx, "index cleared", slog.String("index", s.profiles.Name()), slog.Int("deleted", n))
	return n, nil
}

func (s *Indexing) upsert(ctx context.Context, index search.Index, id, text string, metadata search.Metadata) error {
	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed %s: %w", id, err)
	}
	if err := index.Upsert(ctx, search.NewEntry(id, vector, metadata)); err != nil {
		return fmt.Errorf("upsert %s into %s: %w", id, index.Name(), err)
	}
	s.logger.InfoContext(ctx, "indexed",
		slog.String("index", index.Name()),
		slog.String("id", id),
	)
	return nil
}
