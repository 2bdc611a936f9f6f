package duplicates

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/reclaim/internal/common"
	"github.com/ternarybob/reclaim/internal/interfaces"
	"github.com/ternarybob/reclaim/internal/models"
	"github.com/ternarybob/reclaim/internal/services/status"
)

// Service reads and acts on duplicate pass results
type Service struct {
	store      *status.Store
	scanner    *Scanner
	inventory  interfaces.AssetInventory
	groups     interfaces.DuplicateStorage
	cleanupLog interfaces.CleanupLogStorage
	config     *common.Config
	logger     arbor.ILogger
}

// NewService creates a new duplicate service
func NewService(store *status.Store, scanner *Scanner, inventory interfaces.AssetInventory, storageManager interfaces.StorageManager, config *common.Config, logger arbor.ILogger) *Service {
	return &Service{
		store:      store,
		scanner:    scanner,
		inventory:  inventory,
		groups:     storageManager.DuplicateStorage(),
		cleanupLog: storageManager.CleanupLogStorage(),
		config:     config,
		logger:     logger,
	}
}

// Status returns the duplicate scan status, with live counters while a pass runs
func (s *Service) Status(ctx context.Context) (*models.ScanStatus, error) {
	st, err := s.store.GetScan(ctx, models.ScanTypeDuplicate)
	if err != nil {
		return nil, err
	}
	if s.scanner != nil {
		s.scanner.Overlay(st)
	}
	return st, nil
}

// List returns a page of groups, largest savings first
func (s *Service) List(ctx context.Context, page, size int) (models.Page[*models.DuplicateGroup], error) {
	groups, err := s.groups.ListGroups(ctx)
	if err != nil {
		return models.Page[*models.DuplicateGroup]{}, err
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].SavableBytes == groups[j].SavableBytes {
			return groups[i].Name < groups[j].Name
		}
		return groups[i].SavableBytes > groups[j].SavableBytes
	})
	return models.Paginate(groups, page, size), nil
}

// Get returns one group
func (s *Service) Get(ctx context.Context, name string) (*models.DuplicateGroup, error) {
	return s.groups.GetGroup(ctx, name)
}

// DeleteDuplicates deletes the given members of a group. At least one member
// must remain. The group is removed once one member or fewer is left,
// otherwise its sizes and recommendation are recomputed.
func (s *Service) DeleteDuplicates(ctx context.Context, groupName string, ids []string, operator string) (*models.CleanupResult, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: asset list is empty", common.ErrValidation)
	}
	if operator == "" {
		operator = s.config.Batch.OperatorName
	}

	group, err := s.groups.GetGroup(ctx, groupName)
	if err != nil {
		return nil, err
	}

	selected := make(map[string]bool, len(ids))
	for _, id := range ids {
		selected[id] = true
	}
	kept := 0
	for _, m := range group.Members {
		if !selected[m.AssetID] {
			kept++
		}
	}
	if kept == 0 {
		return nil, fmt.Errorf("%w: at least one file of the group must be kept", common.ErrValidation)
	}

	before := *group
	result := &models.CleanupResult{Errors: []string{}}
	remaining := make([]models.DuplicateMember, 0, len(group.Members))
	memberIDs := make(map[string]bool, len(group.Members))

	for _, m := range group.Members {
		memberIDs[m.AssetID] = true
		if !selected[m.AssetID] {
			remaining = append(remaining, m)
			continue
		}
		if err := s.deleteMember(ctx, m, operator); err != nil {
			s.logger.Warn().Err(err).Str("asset_id", m.AssetID).Str("group", groupName).Msg("Failed to delete duplicate")
			result.Failed++
			result.Errors = append(result.Errors, m.AssetID+": "+err.Error())
			remaining = append(remaining, m)
			continue
		}
		result.Deleted++
		result.FreedBytes += m.Size
	}
	for _, id := range ids {
		if !memberIDs[id] {
			result.Failed++
			result.Errors = append(result.Errors, id+": not a member of "+groupName)
		}
	}

	group.Members = remaining
	removed := len(remaining) <= 1
	if removed {
		if err := s.groups.DeleteGroup(ctx, groupName); err != nil {
			return result, err
		}
		group.Members = nil
		group.Recompute()
	} else {
		group.Recompute()
		if !contains(remaining, group.RecommendedKeepID) {
			group.RecommendedKeepID = RecommendKeep(remaining)
		}
		if err := s.groups.SaveGroup(ctx, group); err != nil {
			return result, err
		}
	}

	if result.Deleted > 0 {
		s.adjustCounters(ctx, &before, group, removed)
	}

	s.logger.Info().
		Str("group", groupName).
		Int("deleted", result.Deleted).
		Int("failed", result.Failed).
		Int64("freed_bytes", result.FreedBytes).
		Bool("group_removed", removed).
		Msg("Duplicates deleted")

	return result, nil
}

func contains(members []models.DuplicateMember, id string) bool {
	for _, m := range members {
		if m.AssetID == id {
			return true
		}
	}
	return false
}

func (s *Service) deleteMember(ctx context.Context, m models.DuplicateMember, operator string) error {
	asset, err := s.inventory.Get(ctx, m.AssetID)
	if err != nil {
		return err
	}
	if asset == nil {
		return fmt.Errorf("asset no longer exists")
	}
	if err := s.inventory.Delete(ctx, m.AssetID); err != nil {
		return err
	}

	entry := &models.CleanupLog{
		ID:          common.NewID("cleanup"),
		AssetID:     m.AssetID,
		DisplayName: asset.DisplayName,
		Size:        asset.Size,
		Reason:      models.CleanupReasonDuplicate,
		Operator:    operator,
		DeletedAt:   time.Now(),
	}
	if err := s.cleanupLog.SaveCleanupLog(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("asset_id", m.AssetID).Msg("Failed to write cleanup log")
	}
	return nil
}

// adjustCounters moves the status totals from the group's old shape to its new one
func (s *Service) adjustCounters(ctx context.Context, before, after *models.DuplicateGroup, removed bool) {
	filesDelta := len(before.Members) - len(after.Members)
	savedDelta := before.SavableBytes - after.SavableBytes

	_, err := s.store.MutateScan(ctx, models.ScanTypeDuplicate, func(st *models.ScanStatus) error {
		st.Counters.DuplicateFiles = max(0, st.Counters.DuplicateFiles-filesDelta)
		st.Counters.SavableBytes = max(0, st.Counters.SavableBytes-savedDelta)
		if removed {
			st.Counters.Groups = max(0, st.Counters.Groups-1)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to update duplicate counters after cleanup")
	}
}

// ClearAll deletes every group and resets the status to IDLE
func (s *Service) ClearAll(ctx context.Context) error {
	current, err := s.store.GetScan(ctx, models.ScanTypeDuplicate)
	if err != nil {
		return err
	}
	if current.IsRunning() {
		return fmt.Errorf("%w: duplicate scan is running", common.ErrStateConflict)
	}
	if err := s.groups.DeleteAll(ctx); err != nil {
		return err
	}
	_, err = s.store.MutateScan(ctx, models.ScanTypeDuplicate, func(st *models.ScanStatus) error {
		if st.Phase == models.ScanPhaseScanning {
			return fmt.Errorf("%w: duplicate scan is running", common.ErrStateConflict)
		}
		*st = models.ScanStatus{Type: st.Type, Phase: models.ScanPhaseIdle, Version: st.Version}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info().Msg("Duplicate results cleared")
	return nil
}
