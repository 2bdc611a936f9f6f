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

// WhitelistStorage implements the WhitelistStorage interface for Badger
type WhitelistStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewWhitelistStorage creates a new WhitelistStorage instance
func NewWhitelistStorage(db *BadgerDB, logger arbor.ILogger) interfaces.WhitelistStorage {
	return &WhitelistStorage{
		db:     db,
		logger: logger,
	}
}

func (s *WhitelistStorage) SaveEntry(ctx context.Context, entry *models.WhitelistEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("whitelist entry ID is required")
	}
	if err := s.db.Store().Upsert(entry.ID, entry); err != nil {
		return fmt.Errorf("failed to save whitelist entry: %w", err)
	}
	return nil
}

func (s *WhitelistStorage) GetEntry(ctx context.Context, id string) (*models.WhitelistEntry, error) {
	var entry models.WhitelistEntry
	if err := s.db.Store().Get(id, &entry); err != nil {
		return nil, notFound(err, "whitelist entry", id)
	}
	return &entry, nil
}

// ListEntries returns entries newest first
func (s *WhitelistStorage) ListEntries(ctx context.Context) ([]*models.WhitelistEntry, error) {
	var entries []models.WhitelistEntry
	if err := s.db.Store().Find(&entries, badgerhold.Where("ID").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to list whitelist entries: %w", err)
	}

	result := make([]*models.WhitelistEntry, len(entries))
	for i := range entries {
		result[i] = &entries[i]
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (s *WhitelistStorage) DeleteEntry(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.WhitelistEntry{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete whitelist entry: %w", err)
	}
	return nil
}

func (s *WhitelistStorage) DeleteAll(ctx context.Context) error {
	if err := s.db.Store().DeleteMatching(&models.WhitelistEntry{}, badgerhold.Where("ID").Ne("")); err != nil {
		return fmt.Errorf("failed to clear whitelist: %w", err)
	}
	return nil
}
