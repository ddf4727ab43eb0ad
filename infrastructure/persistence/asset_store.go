package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/cosolvent/cosolvent/domain/asset"
	"github.com/cosolvent/cosolvent/domain/fault"
	"github.com/cosolvent/cosolvent/domain/query"
	"github.com/cosolvent/cosolvent/internal/database"
)

// AssetStore implements asset.Store using GORM.
type AssetStore struct {
	database.Repository[asset.Asset, AssetModel]
}

// NewAssetStore creates a new AssetStore.
func NewAssetStore(db database.Database) AssetStore {
	return AssetStore{
		Repository: database.NewRepository[asset.Asset, AssetModel](db, AssetMapper{}, "asset"),
	}
}

// Get returns the asset with the given id.
func (s AssetStore) Get(ctx context.Context, id string) (asset.Asset, error) {
	a, err := s.FindOne(ctx, query.WithID(id))
	if errors.Is(err, database.ErrNotFound) {
		return asset.Asset{}, fault.Missing("asset", id)
	}
	return a, err
}

// Save inserts or replaces an asset, stamping its timestamps.
func (s AssetStore) Save(ctx context.Context, a asset.Asset) (asset.Asset, error) {
	now := time.Now().UTC()
	created := a.CreatedAt()
	if created.IsZero() {
		created = now
	}
	return s.Upsert(ctx, a.WithTimestamps(created, now))
}
