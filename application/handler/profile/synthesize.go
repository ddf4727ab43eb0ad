// Package profile provides the handler that folds asset descriptions into
// producer profile drafts.
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cosolvent/cosolvent/application/handler"
	"github.com/cosolvent/cosolvent/domain/asset"
	"github.com/cosolvent/cosolvent/domain/profile"
	"github.com/cosolvent/cosolvent/domain/queue"
)

// Generator builds a profile detail from a merge base and free text.
type Generator interface {
	Generate(ctx context.Context, base *profile.Detail, texts []string) (profile.Detail, error)
}

// Synthesize handles metadata_completed messages. It regenerates the
// producer's draft from the merge base and the new asset description.
type Synthesize struct {
	profiles  profile.Store
	assets    asset.Store
	generator Generator
	publisher queue.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewSynthesize creates a new Synthesize handler.
func NewSynthesize(
	profiles profile.Store,
	assets asset.Store,
	generator Generator,
	publisher queue.Publisher,
	logger *slog.Logger,
) (*Synthesize, error) {
	if profiles == nil {
		return nil, fmt.Errorf("NewSynthesize: nil profiles")
	}
	if assets == nil {
		return nil, fmt.Errorf("NewSynthesize: nil assets")
	}
	if generator == nil {
		return nil, fmt.Errorf("NewSynthesize: nil generator")
	}
	if publisher == nil {
		return nil, fmt.Errorf("NewSynthesize: nil publisher")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesize{
		profiles:  profiles,
		assets:    assets,
		generator: generator,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Handle processes one metadata_completed message.
func (h *Synthesize) Handle(ctx context.Context, d queue.Delivery) error {
	payload, err := handler.Decode[queue.MetadataCompleted](d)
	if err != nil {
		return err
	}

	p, err := h.profiles.GetByUser(ctx, payload.UserID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}

	a, err := h.assets.Get(ctx, payload.AssetID)
	if err != nil {
		return fmt.Errorf("load asset: %w", err)
	}

	base := p.MergeBase()
	h.logger.DebugContext(ctx, "synthesizing profile",
		slog.String("user_id", payload.UserID),
		slog.Bool("has_base", base != nil),
		slog.Bool("base_is_active", p.HasActive() && !p.HasDraft()),
	)

	detail, err := h.generator.Generate(ctx, base, []string{a.Description()})
	if err != nil {
		return fmt.Errorf("generate profile: %w", err)
	}

	profile.NormalizeDates(&detail)
	now := h.now().UTC()
	detail.UpdatedAt = &now
	if detail.CreatedAt == nil {
		if base != nil && base.CreatedAt != nil {
			detail.CreatedAt = base.CreatedAt
		} else {
			detail.CreatedAt = &now
		}
	}

	if _, err := h.profiles.SaveDraft(ctx, payload.UserID, detail); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}

	if err := handler.Publish(ctx, h.publisher, queue.ProfileGeneratedQueue, queue.ProfileGenerated{UserID: payload.UserID}); err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "draft profile updated", slog.String("user_id", payload.UserID))
	return nil
}
