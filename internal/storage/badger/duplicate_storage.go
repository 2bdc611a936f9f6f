package badger

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reclaim/internal/interfaces"
	"github.com/ternarybob/reclaim/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// DuplicateStorage implements the DuplicateStorage interface for Badger
type DuplicateStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewDuplicateStorage creates a new DuplicateStorage instance
func NewDuplicateStorage(db *BadgerDB, logger arbor.ILogger) interfaces.DuplicateStorage {
	return &DuplicateStorage{
		db:     db,
		logger: logger,
	}
}

func (s *DuplicateStorage) SaveGroup(ctx context.Context, group *models.DuplicateGroup) error {
	if group.Name == "" {
		return fmt.Errorf("duplicate group name is required")
	}
	if err := s.db.Store().Upsert(group.Name, group); err != nil {
		return fmt.Errorf("failed to save duplicate group: %w", err)
	}
	return nil
}

// GetGroup returns a current (non-tagged) group
func (s *DuplicateStorage) GetGroup(ctx context.Context, name string) (*models.DuplicateGroup, error) {
	var group models.DuplicateGroup
	if err := s.db.Store().Get(name, &group); err != nil {
		return nil, notFound(err, "duplicate group", name)
	}
	if group.PendingDelete {
		return nil, notFound(badgerhold.ErrNotFound, "duplicate group", name)
	}
	return &group, nil
}

func (s *DuplicateStorage) ListGroups(ctx context.Context) ([]*models.DuplicateGroup, error) {
	var groups []models.DuplicateGroup
	if err := s.db.Store().Find(&groups, badgerhold.Where("PendingDelete").Eq(false)); err != nil {
		return nil, fmt.Errorf("failed to list duplicate groups: %w", err)
	}

	result := make([]*models.DuplicateGroup, len(groups))
	for i := range groups {
		result[i] = &groups[i]
	}
	return result, nil
}

func (s *DuplicateStorage) DeleteGroup(ctx context.Context, name string) error {
	if err := s.db.Store().Delete(name, &models.DuplicateGroup{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete duplicate group: %w", err)
	}
	return nil
}

func (s *DuplicateStorage) MarkAllPendingDelete(ctx context.Context) (int, error) {
	return markPending(s.db, &models.DuplicateGroup{}, func(record interface{}) {
		record.(*models.DuplicateGroup).PendingDelete = true
	})
}

func (s *DuplicateStorage) DeletePending(ctx context.Context) (int, error) {
	return deletePending(s.db, &models.DuplicateGroup{})
}

// DeletePendingBefore removes tagged groups created before cutoff. Groups of
// the pass that started at cutoff survive even when a newer pass has tagged them.
func (s *DuplicateStorage) DeletePendingBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return deletePendingBefore(s.db, &models.DuplicateGroup{}, "CreatedAt", cutoff)
}

func (s *DuplicateStorage) DeletePass(ctx context.Context, scanTimestamp int64) (int, error) {
	return deletePass(s.db, &models.DuplicateGroup{}, regexp.MustCompile(fmt.Sprintf(`^dup-[0-9a-f]+-%d$`, scanTimestamp)))
}

func (s *DuplicateStorage) DeleteAll(ctx context.Context) error {
	if err := s.db.Store().DeleteMatching(&models.DuplicateGroup{}, badgerhold.Where("Name").Ne("")); err != nil {
		return fmt.Errorf("failed to delete duplicate groups: %w", err)
	}
	return nil
}
