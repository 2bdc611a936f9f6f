package badger

import (
	"context"
	"fmt"
	"regexp"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reclaim/internal/interfaces"
	"github.com/ternarybob/reclaim/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// BrokenLinkStorage implements the BrokenLinkStorage interface for Badger
type BrokenLinkStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewBrokenLinkStorage creates a new BrokenLinkStorage instance
func NewBrokenLinkStorage(db *BadgerDB, logger arbor.ILogger) interfaces.BrokenLinkStorage {
	return &BrokenLinkStorage{
		db:     db,
		logger: logger,
	}
}

func (s *BrokenLinkStorage) SaveBrokenLinks(ctx context.Context, links []*models.BrokenLink) error {
	for _, link := range links {
		if link.Name == "" {
			return fmt.Errorf("broken link name is required")
		}
		if err := s.db.Store().Upsert(link.Name, link); err != nil {
			return fmt.Errorf("failed to save broken link: %w", err)
		}
	}
	return nil
}

func (s *BrokenLinkStorage) ListBrokenLinks(ctx context.Context) ([]*models.BrokenLink, error) {
	var links []models.BrokenLink
	if err := s.db.Store().Find(&links, badgerhold.Where("PendingDelete").Eq(false)); err != nil {
		return nil, fmt.Errorf("failed to list broken links: %w", err)
	}

	result := make([]*models.BrokenLink, len(links))
	for i := range links {
		result[i] = &links[i]
	}
	return result, nil
}

func (s *BrokenLinkStorage) DeleteBrokenLink(ctx context.Context, name string) error {
	if err := s.db.Store().Delete(name, &models.BrokenLink{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete broken link: %w", err)
	}
	return nil
}

func (s *BrokenLinkStorage) MarkAllPendingDelete(ctx context.Context) (int, error) {
	return markPending(s.db, &models.BrokenLink{}, func(record interface{}) {
		record.(*models.BrokenLink).PendingDelete = true
	})
}

func (s *BrokenLinkStorage) DeletePending(ctx context.Context) (int, error) {
	return deletePending(s.db, &models.BrokenLink{})
}

func (s *BrokenLinkStorage) DeletePass(ctx context.Context, scanTimestamp int64) (int, error) {
	return deletePass(s.db, &models.BrokenLink{}, regexp.MustCompile(fmt.Sprintf(`^broken-link-%d-\d+$`, scanTimestamp)))
}

func (s *BrokenLinkStorage) DeleteAll(ctx context.Context) error {
	if err := s.db.Store().DeleteMatching(&models.BrokenLink{}, badgerhold.Where("Name").Ne("")); err != nil {
		return fmt.Errorf("failed to delete broken links: %w", err)
	}
	return nil
}
