package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/reclaim/internal/common"
	"github.com/ternarybob/reclaim/internal/interfaces"
	"github.com/ternarybob/reclaim/internal/models"
	"github.com/ternarybob/reclaim/internal/services/assets"
	"github.com/ternarybob/reclaim/internal/services/status"
	"github.com/ternarybob/reclaim/internal/storage/badger"
)

type mockInvoker struct {
	mock.Mock
}

func (m *mockInvoker) Process(ctx context.Context, req interfaces.TransformRequest) (*interfaces.TransformResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*interfaces.TransformResult)
	return result, args.Error(1)
}

// failingDelete refuses to remove originals
type failingDelete struct {
	*assets.Service
}

func (f failingDelete) Delete(ctx context.Context, id string) error {
	return errors.New("backend unavailable")
}

// failingLookup cannot read asset records
type failingLookup struct {
	*assets.Service
}

func (f failingLookup) Get(ctx context.Context, id string) (*models.Asset, error) {
	return nil, errors.New("store offline")
}

type fixture struct {
	manager   interfaces.StorageManager
	config    *common.Config
	store     *status.Store
	inventory *assets.Service
	invoker   *mockInvoker
	executor  *Executor
}

func newFixture(t *testing.T, configure func(*common.Config)) *fixture {
	t.Helper()
	logger := arbor.NewLogger()

	manager, err := badger.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	config := common.NewDefaultConfig()
	config.Assets.UploadDir = t.TempDir()
	config.Batch.MinSize = 10
	config.Batch.Concurrency = 1
	if configure != nil {
		configure(config)
	}

	f := &fixture{
		manager:   manager,
		config:    config,
		store:     status.NewStore(manager.StatusStorage(), nil, logger),
		inventory: assets.NewService(manager.AssetStorage(), config, logger),
		invoker:   &mockInvoker{},
	}
	f.executor = f.newExecutor(f.inventory)
	t.Cleanup(f.executor.Wait)
	return f
}

func (f *fixture) newExecutor(inventory interfaces.AssetInventory) *Executor {
	return NewExecutor(f.store, inventory, f.invoker, f.manager.ProcessingLogStorage(), nil, f.config, arbor.NewLogger())
}

// addAsset writes data into the upload dir and records it as a local asset
func (f *fixture) addAsset(t *testing.T, id, name, mediaType string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.config.Assets.UploadDir, name), data, 0644))
	require.NoError(t, f.manager.AssetStorage().SaveAsset(context.Background(), &models.Asset{
		ID:          id,
		DisplayName: name,
		MediaType:   mediaType,
		Size:        int64(len(data)),
		Backend:     "local",
		Permalink:   assets.UploadPrefix + name,
	}))
}

func forFile(name string) interface{} {
	return mock.MatchedBy(func(req interfaces.TransformRequest) bool { return req.Filename == name })
}

func shrunk(size int) *interfaces.TransformResult {
	return &interfaces.TransformResult{
		Status:    interfaces.TransformSucceeded,
		Data:      make([]byte, size),
		Filename:  "out.jpg",
		MediaType: "image/jpeg",
	}
}

func runTask(t *testing.T, f *fixture, ids ...string) *models.BatchTaskStatus {
	t.Helper()
	_, err := f.executor.CreateTask(context.Background(), ids)
	require.NoError(t, err)
	f.executor.Wait()

	st, err := f.executor.GetStatus(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	return st
}

func TestCreateTaskRejectsEmptyList(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.executor.CreateTask(context.Background(), nil)
	assert.True(t, errors.Is(err, common.ErrValidation))

	_, err = f.executor.CreateTask(context.Background(), []string{"", ""})
	assert.True(t, errors.Is(err, common.ErrValidation))

	st, err := f.executor.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Nil(t, st, "no task record is written")
}

func TestCreateTaskRequiresCapability(t *testing.T) {
	f := newFixture(t, func(c *common.Config) { c.Batch.Enabled = false })

	_, err := f.executor.CreateTask(context.Background(), []string{"a1"})
	assert.True(t, errors.Is(err, common.ErrValidation))
	assert.False(t, f.executor.Settings().Enabled)
}

func TestTaskRecordsEveryOutcome(t *testing.T) {
	f := newFixture(t, nil)
	f.addAsset(t, "a1", "big.jpg", "image/jpeg", make([]byte, 100))
	f.addAsset(t, "a2", "same.png", "image/png", make([]byte, 50))
	f.addAsset(t, "a3", "tiny.jpg", "image/jpeg", make([]byte, 5))
	f.addAsset(t, "a4", "logo.svg", "image/svg+xml", make([]byte, 80))

	f.invoker.On("Process", mock.Anything, forFile("big.jpg")).Return(shrunk(40), nil)
	f.invoker.On("Process", mock.Anything, forFile("same.png")).Return(&interfaces.TransformResult{
		Status:  interfaces.TransformSkipped,
		Message: "no size reduction",
	}, nil)

	st := runTask(t, f, "a1", "a2", "a3", "a4", "gone", "a1")

	assert.Equal(t, models.BatchPhaseCompleted, st.Phase)
	assert.NotNil(t, st.EndTime)
	assert.Equal(t, 5, st.Progress.Total, "duplicate ids are dropped")
	assert.Equal(t, 5, st.Progress.Processed)
	assert.Equal(t, 1, st.Progress.Succeeded)
	assert.Equal(t, 0, st.Progress.Failed)
	assert.Equal(t, 4, st.SkippedCount)
	assert.Equal(t, int64(60), st.SavedBytes)
	assert.Equal(t, 0, st.KeptOriginalCount)

	reasons := map[string]string{}
	for _, item := range st.SkippedItems {
		reasons[item.AssetID] = item.Reason
	}
	assert.Equal(t, "no size reduction", reasons["a2"])
	assert.Equal(t, ReasonBelowThreshold, reasons["a3"])
	assert.Equal(t, "format not allowed: image/svg+xml", reasons["a4"])
	assert.Equal(t, ReasonAssetMissing, reasons["gone"])

	original, err := f.inventory.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.Nil(t, original, "original is replaced")

	logs, err := f.manager.ProcessingLogStorage().ListProcessingLogs(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, logs, 5, "every item gets a processing log")
	for _, entry := range logs {
		assert.Equal(t, ProcessingSource, entry.Source)
		switch entry.AssetID {
		case "a1":
			assert.Equal(t, models.ProcessingSuccess, entry.Status)
			assert.Equal(t, int64(40), entry.ResultSize)
			assert.Equal(t, "out.jpg", entry.ResultFilename)
		case "gone":
			assert.Equal(t, models.ProcessingSkipped, entry.Status)
			assert.Equal(t, ReasonAssetMissing, entry.Message)
		}
	}
	f.invoker.AssertExpectations(t)
}

func TestKeepOriginal(t *testing.T) {
	f := newFixture(t, func(c *common.Config) { c.Batch.KeepOriginal = true })
	f.addAsset(t, "a1", "big.jpg", "image/jpeg", make([]byte, 100))
	f.invoker.On("Process", mock.Anything, mock.Anything).Return(shrunk(40), nil)

	st := runTask(t, f, "a1")

	assert.True(t, st.KeepOriginal)
	assert.Equal(t, 1, st.Progress.Succeeded)
	assert.Equal(t, 1, st.KeptOriginalCount)
	assert.Equal(t, int64(0), st.SavedBytes, "nothing is freed while the original stays")

	original, err := f.inventory.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.NotNil(t, original)
}

func TestFailedOriginalDeleteIsPartial(t *testing.T) {
	f := newFixture(t, nil)
	f.executor = f.newExecutor(failingDelete{f.inventory})
	f.addAsset(t, "a1", "big.jpg", "image/jpeg", make([]byte, 100))
	f.invoker.On("Process", mock.Anything, mock.Anything).Return(shrunk(40), nil)

	st := runTask(t, f, "a1")

	assert.Equal(t, 1, st.Progress.Failed)
	assert.Equal(t, int64(0), st.SavedBytes)
	require.Len(t, st.FailedItems, 1)
	assert.Contains(t, st.FailedItems[0].Reason, "delete original failed")

	logs, err := f.manager.ProcessingLogStorage().ListProcessingLogs(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ProcessingPartial, logs[0].Status)
}

func TestRemoteAssetsNeedOptIn(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.manager.AssetStorage().SaveAsset(context.Background(), &models.Asset{
		ID:        "r1",
		MediaType: "image/jpeg",
		Size:      100,
		Backend:   "s3",
		Permalink: "https://cdn.example.com/r1.jpg",
	}))

	st := runTask(t, f, "r1")

	require.Len(t, st.SkippedItems, 1)
	assert.Equal(t, ReasonRemoteDisabled, st.SkippedItems[0].Reason)
	f.invoker.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
}

func TestCancelStopsBeforeRemainingItems(t *testing.T) {
	f := newFixture(t, nil)
	for _, id := range []string{"a1", "a2", "a3"} {
		f.addAsset(t, id, id+".jpg", "image/jpeg", make([]byte, 100))
	}

	started := make(chan struct{}, 3)
	release := make(chan struct{})
	f.invoker.On("Process", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			started <- struct{}{}
			<-release
		}).
		Return(shrunk(40), nil)

	ctx := context.Background()
	_, err := f.executor.CreateTask(ctx, []string{"a1", "a2", "a3"})
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first item never started")
	}

	_, err = f.executor.CreateTask(ctx, []string{"a1"})
	assert.True(t, errors.Is(err, common.ErrStateConflict), "one task at a time")

	live, err := f.executor.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.BatchPhaseProcessing, live.Phase)

	cancelling, err := f.executor.CancelTask(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.BatchPhaseCancelling, cancelling.Phase)

	close(release)
	f.executor.Wait()

	st, err := f.executor.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.BatchPhaseCancelled, st.Phase)
	assert.Equal(t, 1, st.Progress.Processed)
	assert.LessOrEqual(t, st.Progress.Processed, st.Progress.Total)
	f.invoker.AssertNumberOfCalls(t, "Process", 1)

	_, err = f.executor.CancelTask(ctx)
	assert.True(t, errors.Is(err, common.ErrStateConflict))
}

func TestCancelWithoutTask(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.executor.CancelTask(context.Background())
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestOrphanedTask(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// A record left active by a process that is gone
	orphan := func() {
		started := time.Now().Add(-time.Minute)
		_, err := f.store.MutateBatch(ctx, func(st *models.BatchTaskStatus) error {
			st.Phase = models.BatchPhaseProcessing
			st.AssetIDs = []string{"x"}
			st.Progress = models.BatchProgress{Total: 1}
			st.StartTime = &started
			return nil
		})
		require.NoError(t, err)
	}

	orphan()
	st, err := f.executor.CancelTask(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.BatchPhaseCancelled, st.Phase)
	assert.NotNil(t, st.EndTime)

	orphan()
	f.addAsset(t, "a1", "tiny.jpg", "image/jpeg", make([]byte, 5))
	st = runTask(t, f, "a1")
	assert.Equal(t, models.BatchPhaseCompleted, st.Phase)
	assert.Equal(t, []string{"a1"}, st.AssetIDs)
}

func TestLookupFailureIsLogged(t *testing.T) {
	f := newFixture(t, nil)
	f.addAsset(t, "a1", "big.jpg", "image/jpeg", make([]byte, 100))
	f.executor = f.newExecutor(failingLookup{f.inventory})

	st := runTask(t, f, "a1")
	assert.Equal(t, models.BatchPhaseCompleted, st.Phase)
	assert.Equal(t, 1, st.Progress.Failed)

	logs, err := f.manager.ProcessingLogStorage().ListProcessingLogs(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "a1", logs[0].AssetID)
	assert.Equal(t, models.ProcessingFailed, logs[0].Status)
	assert.Equal(t, "lookup failed: store offline", logs[0].Message)
	f.invoker.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
}
