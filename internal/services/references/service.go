package references

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/reclaim/internal/common"
	"github.com/ternarybob/reclaim/internal/interfaces"
	"github.com/ternarybob/reclaim/internal/models"
	"github.com/ternarybob/reclaim/internal/services/status"
)

// List filters
const (
	FilterAll          = "all"
	FilterReferenced   = "referenced"
	FilterUnreferenced = "unreferenced"
)

// Query selects a page of reference results
type Query struct {
	Page    int    `json:"page" validate:"omitempty,min=1"`
	Size    int    `json:"size" validate:"omitempty,min=1,max=500"`
	Filter  string `json:"filter" validate:"omitempty,oneof=all referenced unreferenced"`
	Keyword string `json:"keyword"`
	Sort    string `json:"sort"` // referenceCount|size|displayName, optionally ",desc"
}

// Preview summarizes a prospective deletion
type Preview struct {
	Count           int   `json:"count"`
	TotalSize       int64 `json:"total_size"`
	ReferencedCount int   `json:"referenced_count"`
	UnscannedCount  int   `json:"unscanned_count"`
}

// Service reads and acts on reference pass results
type Service struct {
	store      *status.Store
	inventory  interfaces.AssetInventory
	references interfaces.ReferenceStorage
	cleanupLog interfaces.CleanupLogStorage
	config     *common.Config
	logger     arbor.ILogger
}

// NewService creates a new reference service
func NewService(store *status.Store, inventory interfaces.AssetInventory, storageManager interfaces.StorageManager, config *common.Config, logger arbor.ILogger) *Service {
	return &Service{
		store:      store,
		inventory:  inventory,
		references: storageManager.ReferenceStorage(),
		cleanupLog: storageManager.CleanupLogStorage(),
		config:     config,
		logger:     logger,
	}
}

// Status returns the reference scan status
func (s *Service) Status(ctx context.Context) (*models.ScanStatus, error) {
	return s.store.GetScan(ctx, models.ScanTypeReference)
}

// List joins the live, non-excluded assets with their latest reference record.
// Assets not covered by a pass are reported with zero references.
func (s *Service) List(ctx context.Context, q Query) (models.Page[*models.ReferenceRecord], error) {
	assets, err := s.inventory.List(ctx, nil)
	if err != nil {
		return models.Page[*models.ReferenceRecord]{}, fmt.Errorf("failed to list assets: %w", err)
	}
	byAsset, err := s.recordsByAsset(ctx)
	if err != nil {
		return models.Page[*models.ReferenceRecord]{}, err
	}

	keyword := strings.ToLower(strings.TrimSpace(q.Keyword))
	var items []*models.ReferenceRecord
	for _, asset := range assets {
		if s.config.IsExcluded(asset.Group, asset.Backend) {
			continue
		}
		record := byAsset[asset.ID]
		if record == nil {
			record = &models.ReferenceRecord{AssetID: asset.ID}
		}
		item := *record
		item.DisplayName = asset.DisplayName
		item.MediaType = asset.MediaType
		item.Size = asset.Size
		item.Permalink = asset.Permalink
		item.Backend = asset.Backend
		item.Group = asset.Group

		switch q.Filter {
		case FilterReferenced:
			if item.ReferenceCount == 0 {
				continue
			}
		case FilterUnreferenced:
			if item.ReferenceCount != 0 {
				continue
			}
		}
		if keyword != "" && !strings.Contains(strings.ToLower(item.DisplayName), keyword) {
			continue
		}
		items = append(items, &item)
	}

	sortReferences(items, q.Sort)
	return models.Paginate(items, q.Page, q.Size), nil
}

func sortReferences(items []*models.ReferenceRecord, sortBy string) {
	if strings.TrimSpace(sortBy) == "" {
		return
	}
	field, desc := parseSort(sortBy, false)

	var less func(a, b *models.ReferenceRecord) bool
	switch field {
	case "referenceCount":
		less = func(a, b *models.ReferenceRecord) bool { return a.ReferenceCount < b.ReferenceCount }
	case "size":
		less = func(a, b *models.ReferenceRecord) bool { return a.Size < b.Size }
	case "displayName":
		less = func(a, b *models.ReferenceRecord) bool {
			return strings.ToLower(a.DisplayName) < strings.ToLower(b.DisplayName)
		}
	default:
		less = func(a, b *models.ReferenceRecord) bool { return a.AssetID < b.AssetID }
	}

	sort.SliceStable(items, func(i, j int) bool {
		if desc {
			return less(items[j], items[i])
		}
		return less(items[i], items[j])
	})
}

// parseSort splits "field,asc|desc"; the direction defaults to defDesc
func parseSort(sortBy string, defDesc bool) (string, bool) {
	parts := strings.SplitN(sortBy, ",", 2)
	field := strings.TrimSpace(parts[0])
	desc := defDesc
	if len(parts) > 1 {
		desc = strings.EqualFold(strings.TrimSpace(parts[1]), "desc")
	}
	return field, desc
}

// Get returns the latest record of one asset
func (s *Service) Get(ctx context.Context, assetID string) (*models.ReferenceRecord, error) {
	return s.references.GetReferenceByAsset(ctx, assetID)
}

func (s *Service) recordsByAsset(ctx context.Context) (map[string]*models.ReferenceRecord, error) {
	records, err := s.references.ListReferences(ctx)
	if err != nil {
		return nil, err
	}
	byAsset := make(map[string]*models.ReferenceRecord, len(records))
	for _, r := range records {
		byAsset[r.AssetID] = r
	}
	return byAsset, nil
}

// Preview reports size and reference state of the given assets
func (s *Service) Preview(ctx context.Context, ids []string) (*Preview, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: asset list is empty", common.ErrValidation)
	}
	byAsset, err := s.recordsByAsset(ctx)
	if err != nil {
		return nil, err
	}

	preview := &Preview{}
	for _, id := range ids {
		asset, err := s.inventory.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if asset == nil {
			continue
		}
		preview.Count++
		preview.TotalSize += asset.Size
		record, ok := byAsset[id]
		switch {
		case !ok:
			preview.UnscannedCount++
		case record.ReferenceCount > 0:
			preview.ReferencedCount++
		}
	}
	return preview, nil
}

// CountReferenced returns how many of ids have at least one reference
func (s *Service) CountReferenced(ctx context.Context, ids []string) (int, error) {
	byAsset, err := s.recordsByAsset(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, id := range ids {
		if r, ok := byAsset[id]; ok && r.ReferenceCount > 0 {
			count++
		}
	}
	return count, nil
}

// DeleteUnreferenced deletes the given assets when their latest record shows no
// references, writes an UNREFERENCED cleanup log per deletion and adjusts the
// reference scan counters. Per-asset failures are collected, not returned.
func (s *Service) DeleteUnreferenced(ctx context.Context, ids []string, operator string) (*models.CleanupResult, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: asset list is empty", common.ErrValidation)
	}
	if operator == "" {
		operator = s.config.Batch.OperatorName
	}

	byAsset, err := s.recordsByAsset(ctx)
	if err != nil {
		return nil, err
	}

	result := &models.CleanupResult{Errors: []string{}}
	for _, id := range ids {
		freed, err := s.deleteOne(ctx, id, byAsset[id], operator)
		if err != nil {
			s.logger.Warn().Err(err).Str("asset_id", id).Msg("Failed to delete unreferenced asset")
			result.Failed++
			result.Errors = append(result.Errors, id+": "+err.Error())
			continue
		}
		result.Deleted++
		result.FreedBytes += freed
	}

	if result.Deleted > 0 {
		deleted, freed := result.Deleted, result.FreedBytes
		_, err := s.store.MutateScan(ctx, models.ScanTypeReference, func(st *models.ScanStatus) error {
			st.Counters.Unreferenced = max(0, st.Counters.Unreferenced-deleted)
			st.Counters.UnreferencedSz = max(0, st.Counters.UnreferencedSz-freed)
			st.Counters.Total = max(0, st.Counters.Total-deleted)
			st.Counters.Scanned = max(0, st.Counters.Scanned-deleted)
			return nil
		})
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to update reference counters after cleanup")
		}
	}

	s.logger.Info().
		Int("deleted", result.Deleted).
		Int("failed", result.Failed).
		Int64("freed_bytes", result.FreedBytes).
		Msg("Unreferenced assets deleted")

	return result, nil
}

func (s *Service) deleteOne(ctx context.Context, id string, record *models.ReferenceRecord, operator string) (int64, error) {
	if record == nil {
		return 0, errors.New("asset has not been scanned")
	}
	if record.ReferenceCount > 0 {
		return 0, fmt.Errorf("asset is still referenced (%d)", record.ReferenceCount)
	}

	asset, err := s.inventory.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if asset == nil {
		return 0, errors.New("asset no longer exists")
	}

	if err := s.inventory.Delete(ctx, id); err != nil {
		return 0, err
	}
	if err := s.references.DeleteReference(ctx, record.Name); err != nil {
		s.logger.Warn().Err(err).Str("reference", record.Name).Msg("Failed to remove reference record")
	}

	entry := &models.CleanupLog{
		ID:          common.NewID("cleanup"),
		AssetID:     id,
		DisplayName: asset.DisplayName,
		Size:        asset.Size,
		Reason:      models.CleanupReasonUnreferenced,
		Operator:    operator,
		DeletedAt:   time.Now(),
	}
	if err := s.cleanupLog.SaveCleanupLog(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("asset_id", id).Msg("Failed to write cleanup log")
	}
	return asset.Size, nil
}

// ClearAll deletes every reference record and resets the status to IDLE
func (s *Service) ClearAll(ctx context.Context) error {
	if err := ensureIdle(ctx, s.store, models.ScanTypeReference); err != nil {
		return err
	}
	if err := s.references.DeleteAll(ctx); err != nil {
		return err
	}
	_, err := s.store.MutateScan(ctx, models.ScanTypeReference, resetStatus)
	if err != nil {
		return err
	}
	s.logger.Info().Msg("Reference results cleared")
	return nil
}

// ensureIdle rejects clearing results while their pass is running
func ensureIdle(ctx context.Context, store *status.Store, scanType models.ScanType) error {
	current, err := store.GetScan(ctx, scanType)
	if err != nil {
		return err
	}
	if current.IsRunning() {
		return fmt.Errorf("%w: %s scan is running", common.ErrStateConflict, scanType)
	}
	return nil
}

// resetStatus returns a status to its never-run state, keeping type and version
func resetStatus(st *models.ScanStatus) error {
	if st.Phase == models.ScanPhaseScanning {
		return fmt.Errorf("%w: %s scan is running", common.ErrStateConflict, st.Type)
	}
	*st = models.ScanStatus{Type: st.Type, Phase: models.ScanPhaseIdle, Version: st.Version}
	return nil
}
