// Package indexing provides the handlers that embed approved profiles and
// asset descriptions into the vector indexes.
package indexing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cosolvent/cosolvent/application/handler"
	"github.com/cosolvent/cosolvent/application/service"
	"github.com/cosolvent/cosolvent/domain/profile"
	"github.com/cosolvent/cosolvent/domain/queue"
)

// IndexProfile handles profile_approved messages.
type IndexProfile struct {
	indexing *service.Indexing
	profiles profile.Store
	logger   *slog.Logger
}

// NewIndexProfile creates a new IndexProfile handler.
func NewIndexProfile(indexing *service.Indexing, profiles profile.Store, logger *slog.Logger) (*IndexProfile, error) {
	if indexing == nil {
		return nil, fmt.Errorf("NewIndexProfile: nil indexing")
	}
	if profiles == nil {
		return nil, fmt.Errorf("NewIndexProfile: nil profiles")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexProfile{indexing: indexing, profiles: profiles, logger: logger}, nil
}

// Handle indexes the approved profile under payload.EntryID. A payload
// carrying the profile text is indexed as is; otherwise the stored approved
// profile is loaded and rendered.
func (h *IndexProfile) Handle(ctx context.Context, d queue.Delivery) error {
	payload, err := handler.Decode[queue.ProfileApproved](d)
	if err != nil {
		return err
	}

	if payload.HasProfileText() {
		return h.indexing.Index(ctx, service.IndexRequest{
			ProfileID:      payload.EntryID(),
			AIProfile:      payload.AIProfile,
			Region:         payload.Region,
			Certifications: payload.Certifications,
			PrimaryCrops:   payload.PrimaryCrops,
			ProducerID:     payload.UserID,
		})
	}

	p, err := h.profiles.GetByUser(ctx, payload.UserID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	return h.indexing.IndexProfile(ctx, payload.EntryID(), p)
}
