package badger

import (
	"context"
	"fmt"
	"regexp"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reclaim/internal/common"
	"github.com/ternarybob/reclaim/internal/interfaces"
	"github.com/ternarybob/reclaim/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ReferenceStorage implements the ReferenceStorage interface for Badger
type ReferenceStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewReferenceStorage creates a new ReferenceStorage instance
func NewReferenceStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ReferenceStorage {
	return &ReferenceStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ReferenceStorage) SaveReference(ctx context.Context, record *models.ReferenceRecord) error {
	if record.Name == "" {
		return fmt.Errorf("reference name is required")
	}
	if err := s.db.Store().Upsert(record.Name, record); err != nil {
		return fmt.Errorf("failed to save reference: %w", err)
	}
	return nil
}

func (s *ReferenceStorage) SaveReferences(ctx context.Context, records []*models.ReferenceRecord) error {
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.SaveReference(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

// GetReferenceByAsset returns the current (non-tagged) record of an asset
func (s *ReferenceStorage) GetReferenceByAsset(ctx context.Context, assetID string) (*models.ReferenceRecord, error) {
	var records []models.ReferenceRecord
	query := badgerhold.Where("AssetID").Eq(assetID).And("PendingDelete").Eq(false)
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to find reference: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("reference for asset %s: %w", assetID, common.ErrNotFound)
	}
	return &records[0], nil
}

func (s *ReferenceStorage) ListReferences(ctx context.Context) ([]*models.ReferenceRecord, error) {
	var records []models.ReferenceRecord
	if err := s.db.Store().Find(&records, badgerhold.Where("PendingDelete").Eq(false)); err != nil {
		return nil, fmt.Errorf("failed to list references: %w", err)
	}

	result := make([]*models.ReferenceRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}

func (s *ReferenceStorage) DeleteReference(ctx context.Context, name string) error {
	if err := s.db.Store().Delete(name, &models.ReferenceRecord{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete reference: %w", err)
	}
	return nil
}

func (s *ReferenceStorage) MarkAllPendingDelete(ctx context.Context) (int, error) {
	return markPending(s.db, &models.ReferenceRecord{}, func(record interface{}) {
		record.(*models.ReferenceRecord).PendingDelete = true
	})
}

func (s *ReferenceStorage) DeletePending(ctx context.Context) (int, error) {
	return deletePending(s.db, &models.ReferenceRecord{})
}

// DeletePass removes the records written by the pass with scanTimestamp
func (s *ReferenceStorage) DeletePass(ctx context.Context, scanTimestamp int64) (int, error) {
	return deletePass(s.db, &models.ReferenceRecord{}, regexp.MustCompile(fmt.Sprintf(`^ref-.+-%d$`, scanTimestamp)))
}

func (s *ReferenceStorage) DeleteAll(ctx context.Context) error {
	if err := s.db.Store().DeleteMatching(&models.ReferenceRecord{}, badgerhold.Where("Name").Ne("")); err != nil {
		return fmt.Errorf("failed to delete references: %w", err)
	}
	return nil
}
