package badger

import (
	"context"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reclaim/internal/interfaces"
	"github.com/ternarybob/reclaim/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// AssetStorage implements the AssetStorage interface for Badger
type AssetStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewAssetStorage creates a new AssetStorage instance
func NewAssetStorage(db *BadgerDB, logger arbor.ILogger) interfaces.AssetStorage {
	return &AssetStorage{
		db:     db,
		logger: logger,
	}
}

func (s *AssetStorage) SaveAsset(ctx context.Context, asset *models.Asset) error {
	if asset.ID == "" {
		return fmt.Errorf("asset ID is required")
	}
	if err := s.db.Store().Upsert(asset.ID, asset); err != nil {
		return fmt.Errorf("failed to save asset: %w", err)
	}
	return nil
}

func (s *AssetStorage) GetAsset(ctx context.Context, id string) (*models.Asset, error) {
	var asset models.Asset
	if err := s.db.Store().Get(id, &asset); err != nil {
		return nil, notFound(err, "asset", id)
	}
	return &asset, nil
}

func (s *AssetStorage) DeleteAsset(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.Asset{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	return nil
}

// ListAssets returns live assets ordered by ID
func (s *AssetStorage) ListAssets(ctx context.Context, filter *models.AssetFilter) ([]*models.Asset, error) {
	query := badgerhold.Where("Deleted").Eq(false)

	if filter != nil {
		if len(filter.Backends) > 0 {
			query = query.And("Backend").In(badgerhold.Slice(filter.Backends)...)
		}
		if len(filter.IDs) > 0 {
			query = query.And("ID").In(badgerhold.Slice(filter.IDs)...)
		}
	}

	var assets []models.Asset
	if err := s.db.Store().Find(&assets, query); err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}

	result := make([]*models.Asset, len(assets))
	for i := range assets {
		result[i] = &assets[i]
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
