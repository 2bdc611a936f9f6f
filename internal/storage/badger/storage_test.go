package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reclaim/internal/common"
	"github.com/ternarybob/reclaim/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

func newTestDB(t *testing.T) *BadgerDB {
	t.Helper()

	tmpDir := t.TempDir()
	options := badgerhold.DefaultOptions
	options.Dir = tmpDir
	options.ValueDir = tmpDir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return &BadgerDB{store: store}
}

func TestScanStatusVersionConflict(t *testing.T) {
	db := newTestDB(t)
	storage := NewStatusStorage(db, arbor.NewLogger())
	ctx := context.Background()

	// 1. Missing record reads as idle at version 0
	status, err := storage.GetScanStatus(ctx, models.ScanTypeReference)
	require.NoError(t, err)
	assert.Equal(t, models.ScanPhaseIdle, status.Phase)
	assert.Equal(t, int64(0), status.Version)

	// 2. First write succeeds and bumps the version
	status.Phase = models.ScanPhaseScanning
	require.NoError(t, storage.SaveScanStatus(ctx, status))
	assert.Equal(t, int64(1), status.Version)

	// 3. A stale copy is rejected
	stale := *status
	stale.Version = 0
	stale.Phase = models.ScanPhaseError
	err = storage.SaveScanStatus(ctx, &stale)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrConflict))

	// 4. The stored record is untouched by the rejected write
	stored, err := storage.GetScanStatus(ctx, models.ScanTypeReference)
	require.NoError(t, err)
	assert.Equal(t, models.ScanPhaseScanning, stored.Phase)
	assert.Equal(t, int64(1), stored.Version)
}

func TestBatchStatusMissingIsNil(t *testing.T) {
	db := newTestDB(t)
	storage := NewStatusStorage(db, arbor.NewLogger())
	ctx := context.Background()

	status, err := storage.GetBatchStatus(ctx)
	require.NoError(t, err)
	assert.Nil(t, status)

	require.NoError(t, storage.SaveBatchStatus(ctx, &models.BatchTaskStatus{Phase: models.BatchPhasePending}))

	status, err = storage.GetBatchStatus(ctx)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, models.BatchPhasePending, status.Phase)
	assert.Equal(t, int64(1), status.Version)
}

func TestReferencePendingDeleteReplacement(t *testing.T) {
	db := newTestDB(t)
	storage := NewReferenceStorage(db, arbor.NewLogger())
	ctx := context.Background()

	// 1. Previous pass
	require.NoError(t, storage.SaveReferences(ctx, []*models.ReferenceRecord{
		{Name: common.ReferenceName("a1", 1), AssetID: "a1", ReferenceCount: 1},
		{Name: common.ReferenceName("a2", 1), AssetID: "a2"},
	}))

	// 2. Tag previous pass
	marked, err := storage.MarkAllPendingDelete(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, marked)

	records, err := storage.ListReferences(ctx)
	require.NoError(t, err)
	assert.Empty(t, records, "tagged records must be hidden from readers")

	// 3. New pass written beside tagged records
	require.NoError(t, storage.SaveReference(ctx, &models.ReferenceRecord{Name: common.ReferenceName("a1", 2), AssetID: "a1", ReferenceCount: 3}))

	// 4. Tagged records removed, new record kept
	deleted, err := storage.DeletePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	record, err := storage.GetReferenceByAsset(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 3, record.ReferenceCount)

	_, err = storage.GetReferenceByAsset(ctx, "a2")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestDuplicateGroupHiddenWhenPending(t *testing.T) {
	db := newTestDB(t)
	storage := NewDuplicateStorage(db, arbor.NewLogger())
	ctx := context.Background()

	group := &models.DuplicateGroup{Name: "dup-abcdef12-1", ContentHash: "abcdef1234"}
	require.NoError(t, storage.SaveGroup(ctx, group))

	_, err := storage.MarkAllPendingDelete(ctx)
	require.NoError(t, err)

	_, err = storage.GetGroup(ctx, group.Name)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestAssetListingFilters(t *testing.T) {
	db := newTestDB(t)
	storage := NewAssetStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.SaveAsset(ctx, &models.Asset{ID: "b", Backend: "local"}))
	require.NoError(t, storage.SaveAsset(ctx, &models.Asset{ID: "a", Backend: "s3"}))
	require.NoError(t, storage.SaveAsset(ctx, &models.Asset{ID: "c", Backend: "local", Deleted: true}))

	all, err := storage.ListAssets(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)

	local, err := storage.ListAssets(ctx, &models.AssetFilter{Backends: []string{"local"}})
	require.NoError(t, err)
	require.Len(t, local, 1)
	assert.Equal(t, "b", local[0].ID)
}

func TestLogRetention(t *testing.T) {
	db := newTestDB(t)
	storage := NewLogStorage(db, arbor.NewLogger())
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, storage.SaveCleanupLog(ctx, &models.CleanupLog{ID: "old", DeletedAt: now.AddDate(0, 0, -40)}))
	require.NoError(t, storage.SaveCleanupLog(ctx, &models.CleanupLog{ID: "new", DeletedAt: now}))
	require.NoError(t, storage.SaveProcessingLog(ctx, &models.ProcessingLog{ID: "p-old", StartTime: now.AddDate(0, 0, -31)}))

	cutoff := now.AddDate(0, 0, -30)

	deleted, err := storage.DeleteCleanupLogsOlderThan(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	deleted, err = storage.DeleteProcessingLogsOlderThan(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	remaining, err := storage.ListCleanupLogs(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "new", remaining[0].ID)
}

func TestDeletePassRemovesOnlyThatPass(t *testing.T) {
	db := newTestDB(t)
	logger := arbor.NewLogger()
	references := NewReferenceStorage(db, logger)
	links := NewBrokenLinkStorage(db, logger)
	ctx := context.Background()

	const kept, dropped = int64(1700000000000), int64(1700000060000)

	require.NoError(t, references.SaveReferences(ctx, []*models.ReferenceRecord{
		{Name: common.ReferenceName("a-1", kept), AssetID: "a-1"},
		{Name: common.ReferenceName("a-1", dropped), AssetID: "a-1", PendingDelete: true},
		{Name: common.ReferenceName("a-2", dropped), AssetID: "a-2"},
	}))
	require.NoError(t, links.SaveBrokenLinks(ctx, []*models.BrokenLink{
		{Name: common.BrokenLinkName(kept, 1), URL: "/a.png"},
		{Name: common.BrokenLinkName(dropped, 1), URL: "/a.png"},
		{Name: common.BrokenLinkName(dropped, 12), URL: "/b.png"},
	}))

	n, err := references.DeletePass(ctx, dropped)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "tagged and untagged records of the pass")

	n, err = links.DeletePass(ctx, dropped)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	remaining, err := references.ListReferences(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, common.ReferenceName("a-1", kept), remaining[0].Name)

	left, err := links.ListBrokenLinks(ctx)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, common.BrokenLinkName(kept, 1), left[0].Name)
}

func TestResetOnStartupWipesRecords(t *testing.T) {
	logger := arbor.NewLogger()
	path := t.TempDir()
	ctx := context.Background()

	db, err := NewBadgerDB(logger, &common.BadgerConfig{Path: path})
	require.NoError(t, err)
	require.NoError(t, NewWhitelistStorage(db, logger).SaveEntry(ctx, &models.WhitelistEntry{ID: "w1", URLPattern: "/a"}))
	require.NoError(t, db.Close())

	db, err = NewBadgerDB(logger, &common.BadgerConfig{Path: path, ResetOnStartup: true})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	entries, err := NewWhitelistStorage(db, logger).ListEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
