package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reclaim/internal/interfaces"
	"github.com/ternarybob/reclaim/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ContentStorage implements the ContentStorage interface for Badger
type ContentStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewContentStorage creates a new ContentStorage instance
func NewContentStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ContentStorage {
	return &ContentStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ContentStorage) SaveContent(ctx context.Context, item *models.ContentItem) error {
	if item.ID == "" {
		return fmt.Errorf("content ID is required")
	}
	if item.Kind == "" {
		return fmt.Errorf("content kind is required")
	}
	item.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(item.ID, item); err != nil {
		return fmt.Errorf("failed to save content: %w", err)
	}
	return nil
}

func (s *ContentStorage) GetContent(ctx context.Context, id string) (*models.ContentItem, error) {
	var item models.ContentItem
	if err := s.db.Store().Get(id, &item); err != nil {
		return nil, notFound(err, "content", id)
	}
	return &item, nil
}

func (s *ContentStorage) DeleteContent(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.ContentItem{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete content: %w", err)
	}
	return nil
}

// ListContentByKind returns every item of a kind, including items in the recycle bin
func (s *ContentStorage) ListContentByKind(ctx context.Context, kind string) ([]*models.ContentItem, error) {
	var items []models.ContentItem
	if err := s.db.Store().Find(&items, badgerhold.Where("Kind").Eq(kind)); err != nil {
		return nil, fmt.Errorf("failed to list %s content: %w", kind, err)
	}

	result := make([]*models.ContentItem, len(items))
	for i := range items {
		result[i] = &items[i]
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *ContentStorage) SaveConfigBlob(ctx context.Context, blob *models.ConfigBlob) error {
	if blob.Name == "" {
		return fmt.Errorf("config blob name is required")
	}
	blob.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(blob.Kind+"/"+blob.Name, blob); err != nil {
		return fmt.Errorf("failed to save config blob: %w", err)
	}
	return nil
}

func (s *ContentStorage) ListConfigBlobs(ctx context.Context, kind string) ([]*models.ConfigBlob, error) {
	var blobs []models.ConfigBlob
	if err := s.db.Store().Find(&blobs, badgerhold.Where("Kind").Eq(kind)); err != nil {
		return nil, fmt.Errorf("failed to list %s config blobs: %w", kind, err)
	}

	result := make([]*models.ConfigBlob, len(blobs))
	for i := range blobs {
		result[i] = &blobs[i]
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}
