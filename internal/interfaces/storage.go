package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/reclaim/internal/models"
)

// AssetStorage persists the asset inventory
type AssetStorage interface {
	SaveAsset(ctx context.Context, asset *models.Asset) error
	GetAsset(ctx context.Context, id string) (*models.Asset, error)
	DeleteAsset(ctx context.Context, id string) error
	ListAssets(ctx context.Context, filter *models.AssetFilter) ([]*models.Asset, error)
}

// ContentStorage persists resident content and configuration blobs
type ContentStorage interface {
	SaveContent(ctx context.Context, item *models.ContentItem) error
	GetContent(ctx context.Context, id string) (*models.ContentItem, error)
	DeleteContent(ctx context.Context, id string) error
	ListContentByKind(ctx context.Context, kind string) ([]*models.ContentItem, error)

	SaveConfigBlob(ctx context.Context, blob *models.ConfigBlob) error
	ListConfigBlobs(ctx context.Context, kind string) ([]*models.ConfigBlob, error)
}

// ReplaceableStorage is the two-phase replacement protocol shared by pass results:
// tag every current record, write the new pass, then delete tagged records.
// Readers never see tagged records.
type ReplaceableStorage interface {
	MarkAllPendingDelete(ctx context.Context) (int, error)
	DeletePending(ctx context.Context) (int, error)
	DeletePass(ctx context.Context, scanTimestamp int64) (int, error) // records written by one pass, tagged or not
	DeleteAll(ctx context.Context) error
}

// ReferenceStorage persists per-asset reference records
type ReferenceStorage interface {
	ReplaceableStorage
	SaveReferences(ctx context.Context, records []*models.ReferenceRecord) error
	SaveReference(ctx context.Context, record *models.ReferenceRecord) error
	GetReferenceByAsset(ctx context.Context, assetID string) (*models.ReferenceRecord, error)
	ListReferences(ctx context.Context) ([]*models.ReferenceRecord, error)
	DeleteReference(ctx context.Context, name string) error
}

// BrokenLinkStorage persists broken link records
type BrokenLinkStorage interface {
	ReplaceableStorage
	SaveBrokenLinks(ctx context.Context, links []*models.BrokenLink) error
	ListBrokenLinks(ctx context.Context) ([]*models.BrokenLink, error)
	DeleteBrokenLink(ctx context.Context, name string) error
}

// DuplicateStorage persists duplicate groups
type DuplicateStorage interface {
	ReplaceableStorage
	SaveGroup(ctx context.Context, group *models.DuplicateGroup) error
	GetGroup(ctx context.Context, name string) (*models.DuplicateGroup, error)
	ListGroups(ctx context.Context) ([]*models.DuplicateGroup, error)
	DeleteGroup(ctx context.Context, name string) error
	DeletePendingBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// WhitelistStorage persists whitelist entries
type WhitelistStorage interface {
	SaveEntry(ctx context.Context, entry *models.WhitelistEntry) error
	GetEntry(ctx context.Context, id string) (*models.WhitelistEntry, error)
	ListEntries(ctx context.Context) ([]*models.WhitelistEntry, error)
	DeleteEntry(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
}

// StatusStorage persists singleton status records under optimistic concurrency.
// Save methods return common.ErrConflict when the stored Version differs from the
// caller's copy, and bump Version on success.
type StatusStorage interface {
	GetScanStatus(ctx context.Context, scanType models.ScanType) (*models.ScanStatus, error)
	SaveScanStatus(ctx context.Context, status *models.ScanStatus) error
	GetBatchStatus(ctx context.Context) (*models.BatchTaskStatus, error) // nil when no task was ever created
	SaveBatchStatus(ctx context.Context, status *models.BatchTaskStatus) error
}

// CleanupLogStorage persists deletion audit records
type CleanupLogStorage interface {
	SaveCleanupLog(ctx context.Context, entry *models.CleanupLog) error
	ListCleanupLogs(ctx context.Context) ([]*models.CleanupLog, error)
	DeleteCleanupLogsOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	DeleteAllCleanupLogs(ctx context.Context) error
}

// ProcessingLogStorage persists transform audit records
type ProcessingLogStorage interface {
	SaveProcessingLog(ctx context.Context, entry *models.ProcessingLog) error
	ListProcessingLogs(ctx context.Context, limit int) ([]*models.ProcessingLog, error)
	DeleteProcessingLogsOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// StorageManager - interface for managing all storage backends
type StorageManager interface {
	AssetStorage() AssetStorage
	ContentStorage() ContentStorage
	ReferenceStorage() ReferenceStorage
	BrokenLinkStorage() BrokenLinkStorage
	DuplicateStorage() DuplicateStorage
	WhitelistStorage() WhitelistStorage
	StatusStorage() StatusStorage
	CleanupLogStorage() CleanupLogStorage
	ProcessingLogStorage() ProcessingLogStorage
	DB() interface{}
	Close() error
}
