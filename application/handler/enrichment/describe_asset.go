// Package enrichment provides the handler that turns uploaded assets into
// descriptions.
package enrichment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cosolvent/cosolvent/application/handler"
	"github.com/cosolvent/cosolvent/domain/asset"
	"github.com/cosolvent/cosolvent/domain/fault"
	"github.com/cosolvent/cosolvent/domain/queue"
)

// State is a step of asset description.
type State string

// State values.
const (
	StateReceived   State = "received"
	StateExtracting State = "extracting"
	StatePersisting State = "persisting"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Extractor turns a stored asset into text.
type Extractor interface {
	Extract(ctx context.Context, url, mimeType string) (string, error)
}

// DescribeAsset handles asset_upload messages. It extracts the asset's text,
// stores it as a one-line description and announces the result.
type DescribeAsset struct {
	assets    asset.Store
	extractor Extractor
	publisher queue.Publisher
	logger    *slog.Logger
}

// NewDescribeAsset creates a new DescribeAsset handler.
func NewDescribeAsset(assets asset.Store, extractor Extractor, publisher queue.Publisher, logger *slog.Logger) (*DescribeAsset, error) {
	if assets == nil {
		return nil, fmt.Errorf("NewDescribeAsset: nil assets")
	}
	if extractor == nil {
		return nil, fmt.Errorf("NewDescribeAsset: nil extractor")
	}
	if publisher == nil {
		return nil, fmt.Errorf("NewDescribeAsset: nil publisher")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DescribeAsset{
		assets:    assets,
		extractor: extractor,
		publisher: publisher,
		logger:    logger,
	}, nil
}

// Handle processes one asset_upload message.
func (h *DescribeAsset) Handle(ctx context.Context, d queue.Delivery) error {
	payload, err := handler.Decode[queue.AssetUploaded](d)
	if err != nil {
		return err
	}

	log := h.logger.With(slog.String("asset_id", payload.AssetID))
	log.DebugContext(ctx, "asset state", slog.String("state", string(StateReceived)))

	if err := h.describe(ctx, log, payload); err != nil {
		log.ErrorContext(ctx, "asset state",
			slog.String("state", string(StateFailed)),
			slog.String("kind", string(fault.Classify(err))),
			slog.String("error", err.Error()),
		)
		return err
	}

	log.InfoContext(ctx, "asset state", slog.String("state", string(StateCompleted)))
	return nil
}

func (h *DescribeAsset) describe(ctx context.Context, log *slog.Logger, payload queue.AssetUploaded) error {
	a, err := h.assets.Get(ctx, payload.AssetID)
	if err != nil {
		return fmt.Errorf("load asset: %w", err)
	}

	log.DebugContext(ctx, "asset state",
		slog.String("state", string(StateExtracting)),
		slog.String("mime_type", a.MimeType()),
	)
	text, err := h.extractor.Extract(ctx, a.URL(), a.MimeType())
	if err != nil {
		return fmt.Errorf("extract asset: %w", err)
	}
	description := asset.OneLine(text)

	log.DebugContext(ctx, "asset state", slog.String("state", string(StatePersisting)))
	if a.Description() == description {
		log.DebugContext(ctx, "description unchanged, skipping write")
	} else if a, err = h.assets.Save(ctx, a.WithDescription(description)); err != nil {
		return fmt.Errorf("save description: %w", err)
	}

	userID := payload.UserID
	if userID == "" {
		userID = a.UserID()
	}

	err = handler.Publish(ctx, h.publisher, queue.MetadataCompletedQueue, queue.MetadataCompleted{
		AssetID: a.ID(),
		UserID:  userID,
	})
	if err != nil {
		return err
	}
	return handler.Publish(ctx, h.publisher, queue.AssetReadyForIndexingQueue, queue.AssetReadyForIndexing{
		AssetID:     a.ID(),
		UserID:      userID,
		Description: description,
	})
}
