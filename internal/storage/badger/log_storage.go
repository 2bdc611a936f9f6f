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

// LogStorage implements the CleanupLogStorage and ProcessingLogStorage interfaces for Badger
type LogStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewLogStorage creates a new LogStorage instance
func NewLogStorage(db *BadgerDB, logger arbor.ILogger) *LogStorage {
	return &LogStorage{
		db:     db,
		logger: logger,
	}
}

var (
	_ interfaces.CleanupLogStorage    = (*LogStorage)(nil)
	_ interfaces.ProcessingLogStorage = (*LogStorage)(nil)
)

// ---- Cleanup logs ----

func (s *LogStorage) SaveCleanupLog(ctx context.Context, entry *models.CleanupLog) error {
	if entry.ID == "" {
		return fmt.Errorf("cleanup log ID is required")
	}
	if err := s.db.Store().Upsert(entry.ID, entry); err != nil {
		return fmt.Errorf("failed to save cleanup log: %w", err)
	}
	return nil
}

func (s *LogStorage) ListCleanupLogs(ctx context.Context) ([]*models.CleanupLog, error) {
	var entries []models.CleanupLog
	if err := s.db.Store().Find(&entries, badgerhold.Where("ID").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to list cleanup logs: %w", err)
	}

	result := make([]*models.CleanupLog, len(entries))
	for i := range entries {
		result[i] = &entries[i]
	}
	return result, nil
}

func (s *LogStorage) DeleteCleanupLogsOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := s.ListCleanupLogs(ctx)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, entry := range entries {
		if !entry.DeletedAt.Before(cutoff) {
			continue
		}
		if err := s.db.Store().Delete(entry.ID, &models.CleanupLog{}); err != nil && err != badgerhold.ErrNotFound {
			return deleted, fmt.Errorf("failed to delete cleanup log %s: %w", entry.ID, err)
		}
		deleted++
	}
	return deleted, nil
}

func (s *LogStorage) DeleteAllCleanupLogs(ctx context.Context) error {
	if err := s.db.Store().DeleteMatching(&models.CleanupLog{}, badgerhold.Where("ID").Ne("")); err != nil {
		return fmt.Errorf("failed to clear cleanup logs: %w", err)
	}
	return nil
}

// ---- Processing logs ----

func (s *LogStorage) SaveProcessingLog(ctx context.Context, entry *models.ProcessingLog) error {
	if entry.ID == "" {
		return fmt.Errorf("processing log ID is required")
	}
	if err := s.db.Store().Upsert(entry.ID, entry); err != nil {
		return fmt.Errorf("failed to save processing log: %w", err)
	}
	return nil
}

// ListProcessingLogs returns the newest entries first; limit <= 0 returns everything
func (s *LogStorage) ListProcessingLogs(ctx context.Context, limit int) ([]*models.ProcessingLog, error) {
	var entries []models.ProcessingLog
	if err := s.db.Store().Find(&entries, badgerhold.Where("ID").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to list processing logs: %w", err)
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].StartTime.After(entries[j].StartTime) })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	result := make([]*models.ProcessingLog, len(entries))
	for i := range entries {
		result[i] = &entries[i]
	}
	return result, nil
}

func (s *LogStorage) DeleteProcessingLogsOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := s.ListProcessingLogs(ctx, 0)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, entry := range entries {
		if !entry.StartTime.Before(cutoff) {
			continue
		}
		if err := s.db.Store().Delete(entry.ID, &models.ProcessingLog{}); err != nil && err != badgerhold.ErrNotFound {
			return deleted, fmt.Errorf("failed to delete processing log %s: %w", entry.ID, err)
		}
		deleted++
	}
	return deleted, nil
}
