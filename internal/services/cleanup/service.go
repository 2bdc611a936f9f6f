package cleanup

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/reclaim/internal/interfaces"
	"github.com/ternarybob/reclaim/internal/models"
)

// Query selects a page of cleanup logs
type Query struct {
	Page     int    `json:"page" validate:"omitempty,min=1"`
	Size     int    `json:"size" validate:"omitempty,min=1,max=500"`
	Reason   string `json:"reason" validate:"omitempty,oneof=DUPLICATE UNREFERENCED"`
	Filename string `json:"filename"`
}

// Stats aggregates the cleanup log
type Stats struct {
	Total        int   `json:"total"`
	Duplicate    int   `json:"duplicate"`
	Unreferenced int   `json:"unreferenced"`
	FreedBytes   int64 `json:"freed_bytes"`
}

// Service reads and clears the deletion audit log
type Service struct {
	storage interfaces.CleanupLogStorage
	logger  arbor.ILogger
}

// NewService creates a new cleanup log service
func NewService(storage interfaces.CleanupLogStorage, logger arbor.ILogger) *Service {
	return &Service{
		storage: storage,
		logger:  logger,
	}
}

// List returns a page of logs, newest deletion first. Filename matches the
// display name case-insensitively.
func (s *Service) List(ctx context.Context, q Query) (models.Page[*models.CleanupLog], error) {
	entries, err := s.storage.ListCleanupLogs(ctx)
	if err != nil {
		return models.Page[*models.CleanupLog]{}, err
	}

	keyword := strings.ToLower(strings.TrimSpace(q.Filename))
	filtered := make([]*models.CleanupLog, 0, len(entries))
	for _, entry := range entries {
		if q.Reason != "" && string(entry.Reason) != q.Reason {
			continue
		}
		if keyword != "" && !strings.Contains(strings.ToLower(entry.DisplayName), keyword) {
			continue
		}
		filtered = append(filtered, entry)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		a, b := filtered[i].DeletedAt, filtered[j].DeletedAt
		if a.IsZero() != b.IsZero() {
			return b.IsZero()
		}
		if !a.Equal(b) {
			return a.After(b)
		}
		return filtered[i].ID < filtered[j].ID
	})

	return models.Paginate(filtered, q.Page, q.Size), nil
}

// Stats counts the logged deletions and the bytes they freed
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	entries, err := s.storage.ListCleanupLogs(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Total: len(entries)}
	for _, entry := range entries {
		switch entry.Reason {
		case models.CleanupReasonDuplicate:
			stats.Duplicate++
		case models.CleanupReasonUnreferenced:
			stats.Unreferenced++
		}
		if entry.ErrorMessage == "" {
			stats.FreedBytes += entry.Size
		}
	}
	return stats, nil
}

// Clear deletes every cleanup log
func (s *Service) Clear(ctx context.Context) error {
	if err := s.storage.DeleteAllCleanupLogs(ctx); err != nil {
		return fmt.Errorf("failed to clear cleanup logs: %w", err)
	}
	s.logger.Info().Msg("Cleanup logs cleared")
	return nil
}
