package badger

import (
	"context"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reclaim/internal/common"
	"github.com/ternarybob/reclaim/internal/interfaces"
	"github.com/ternarybob/reclaim/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

const batchStatusKey = "batch-task"

// StatusStorage implements the StatusStorage interface for Badger.
// Writes are compare-and-swap on Version inside one badger transaction.
type StatusStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewStatusStorage creates a new StatusStorage instance
func NewStatusStorage(db *BadgerDB, logger arbor.ILogger) interfaces.StatusStorage {
	return &StatusStorage{
		db:     db,
		logger: logger,
	}
}

// GetScanStatus returns the stored status, or an idle status at version 0 when none exists
func (s *StatusStorage) GetScanStatus(ctx context.Context, scanType models.ScanType) (*models.ScanStatus, error) {
	var status models.ScanStatus
	if err := s.db.Store().Get(string(scanType), &status); err != nil {
		if err == badgerhold.ErrNotFound {
			return models.NewScanStatus(scanType), nil
		}
		return nil, fmt.Errorf("failed to get %s scan status: %w", scanType, err)
	}
	return &status, nil
}

func (s *StatusStorage) SaveScanStatus(ctx context.Context, status *models.ScanStatus) error {
	key := string(status.Type)

	err := s.db.Store().Badger().Update(func(tx *badgerdb.Txn) error {
		var current models.ScanStatus
		if err := s.checkVersion(tx, key, &current, func() int64 { return current.Version }, status.Version); err != nil {
			return err
		}

		next := *status
		next.Version = status.Version + 1
		if err := s.db.Store().TxUpsert(tx, key, &next); err != nil {
			return err
		}
		status.Version = next.Version
		return nil
	})
	return translateTxError(err, "scan status")
}

// GetBatchStatus returns nil when no batch task was ever created
func (s *StatusStorage) GetBatchStatus(ctx context.Context) (*models.BatchTaskStatus, error) {
	var status models.BatchTaskStatus
	if err := s.db.Store().Get(batchStatusKey, &status); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get batch status: %w", err)
	}
	return &status, nil
}

func (s *StatusStorage) SaveBatchStatus(ctx context.Context, status *models.BatchTaskStatus) error {
	err := s.db.Store().Badger().Update(func(tx *badgerdb.Txn) error {
		var current models.BatchTaskStatus
		if err := s.checkVersion(tx, batchStatusKey, &current, func() int64 { return current.Version }, status.Version); err != nil {
			return err
		}

		next := *status
		next.Version = status.Version + 1
		if err := s.db.Store().TxUpsert(tx, batchStatusKey, &next); err != nil {
			return err
		}
		status.Version = next.Version
		return nil
	})
	return translateTxError(err, "batch status")
}

// checkVersion loads key into current and compares its version with expected.
// A missing record matches expected version 0.
func (s *StatusStorage) checkVersion(tx *badgerdb.Txn, key string, current interface{}, version func() int64, expected int64) error {
	err := s.db.Store().TxGet(tx, key, current)
	if err == badgerhold.ErrNotFound {
		if expected != 0 {
			return fmt.Errorf("%s removed concurrently: %w", key, common.ErrConflict)
		}
		return nil
	}
	if err != nil {
		return err
	}
	if version() != expected {
		return fmt.Errorf("%s at version %d, expected %d: %w", key, version(), expected, common.ErrConflict)
	}
	return nil
}

func translateTxError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, common.ErrConflict) {
		return err
	}
	if errors.Is(err, badgerdb.ErrConflict) {
		return fmt.Errorf("%s transaction conflict: %w", what, common.ErrConflict)
	}
	return fmt.Errorf("failed to save %s: %w", what, err)
}
