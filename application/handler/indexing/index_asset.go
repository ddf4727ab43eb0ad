package indexing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cosolvent/cosolvent/application/handler"
	"github.com/cosolvent/cosolvent/application/service"
	"github.com/cosolvent/cosolvent/domain/queue"
)

// IndexAsset handles asset_ready_for_indexing messages.
type IndexAsset struct {
	indexing *service.Indexing
	logger   *slog.Logger
}

// NewIndexAsset creates a new IndexAsset handler.
func NewIndexAsset(indexing *service.Indexing, logger *slog.Logger) (*IndexAsset, error) {
	if indexing == nil {
		return nil, fmt.Errorf("NewIndexAsset: nil indexing")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexAsset{indexing: indexing, logger: logger}, nil
}

// Handle embeds the asset description into the asset index.
func (h *IndexAsset) Handle(ctx context.Context, d queue.Delivery) error {
	payload, err := handler.Decode[queue.AssetReadyForIndexing](d)
	if err != nil {
		return err
	}
	return h.indexing.IndexAsset(ctx, payload.AssetID, payload.UserID, payload.Description)
}
