// -----------------------------------------------------------------------
// Batch Executor
// Runs the singleton transform task over a list of assets
// -----------------------------------------------------------------------

package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/reclaim/internal/common"
	"github.com/ternarybob/reclaim/internal/interfaces"
	"github.com/ternarybob/reclaim/internal/models"
	"github.com/ternarybob/reclaim/internal/services/status"
)

// ProcessingSource is recorded on the processing logs written by batch tasks
const ProcessingSource = "batch-processing"

// Skip reasons
const (
	ReasonAssetMissing   = "asset no longer exists"
	ReasonRemoteDisabled = "remote storage processing disabled"
	ReasonBelowThreshold = "below processing threshold"
)

// ReferenceCounter reports how many of a set of assets are referenced
type ReferenceCounter interface {
	CountReferenced(ctx context.Context, ids []string) (int, error)
}

// Settings summarizes the batch configuration for callers
type Settings struct {
	Enabled       bool     `json:"enabled"`
	KeepOriginal  bool     `json:"keep_original"`
	RemoteStorage bool     `json:"remote_storage"`
	AllowedTypes  []string `json:"allowed_types"`
	MinSize       int64    `json:"min_size"`
	Quality       int      `json:"quality"`
	MaxDimension  int      `json:"max_dimension"`
	Concurrency   int      `json:"concurrency"`
}

// Executor runs batch transform tasks, one at a time
type Executor struct {
	store         *status.Store
	inventory     interfaces.AssetInventory
	invoker       interfaces.TransformInvoker
	processingLog interfaces.ProcessingLogStorage
	references    ReferenceCounter
	config        *common.Config
	logger        arbor.ILogger

	mu      sync.Mutex
	current *Progress // nil when no task runs in this process
	wg      sync.WaitGroup
}

// NewExecutor creates a new batch executor
func NewExecutor(
	store *status.Store,
	inventory interfaces.AssetInventory,
	invoker interfaces.TransformInvoker,
	processingLog interfaces.ProcessingLogStorage,
	references ReferenceCounter,
	config *common.Config,
	logger arbor.ILogger,
) *Executor {
	return &Executor{
		store:         store,
		inventory:     inventory,
		invoker:       invoker,
		processingLog: processingLog,
		references:    references,
		config:        config,
		logger:        logger,
	}
}

// CreateTask persists a PENDING task over assetIDs and starts it in the background.
// A persisted active task with no live progress in this process is an orphan of
// a restart and is replaced.
func (e *Executor) CreateTask(ctx context.Context, assetIDs []string) (*models.BatchTaskStatus, error) {
	ids := dedupe(assetIDs)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: asset list is empty", common.ErrValidation)
	}
	if !e.config.Batch.Enabled || e.invoker == nil {
		return nil, fmt.Errorf("%w: no transform capability is enabled", common.ErrValidation)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current != nil {
		return nil, fmt.Errorf("%w: a batch task is already running", common.ErrStateConflict)
	}

	startedAt := time.Now()
	keepOriginal := e.config.Batch.KeepOriginal
	st, err := e.store.MutateBatch(ctx, func(st *models.BatchTaskStatus) error {
		if st.IsActive() {
			e.logger.Warn().Str("phase", string(st.Phase)).Msg("Replacing orphaned batch task")
		}
		*st = models.BatchTaskStatus{
			Phase:        models.BatchPhasePending,
			AssetIDs:     ids,
			KeepOriginal: keepOriginal,
			Progress:     models.BatchProgress{Total: len(ids)},
			FailedItems:  []models.BatchItem{},
			SkippedItems: []models.BatchItem{},
			StartTime:    &startedAt,
			Version:      st.Version,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	progress := NewProgress(len(ids))
	e.current = progress

	e.logger.Info().Int("assets", len(ids)).Bool("keep_original", keepOriginal).Msg("Batch task created")

	e.wg.Add(1)
	common.SafeGo(e.logger, "batchTask", func() {
		e.finish(context.Background(), progress, startedAt, e.run(context.Background(), progress, ids, startedAt, keepOriginal))
		e.wg.Done()
	}, func(err error) {
		e.finish(context.Background(), progress, startedAt, err)
		e.wg.Done()
	})

	return st, nil
}

// CancelTask raises the cancel flag of the running task and persists CANCELLING.
// Items already started run to completion.
func (e *Executor) CancelTask(ctx context.Context) (*models.BatchTaskStatus, error) {
	e.mu.Lock()
	progress := e.current
	e.mu.Unlock()

	current, err := e.store.GetBatch(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("batch task: %w", common.ErrNotFound)
	}
	if !current.IsActive() {
		return nil, fmt.Errorf("%w: batch task is %s", common.ErrStateConflict, current.Phase)
	}

	if progress != nil {
		progress.Cancel()
	}

	now := time.Now()
	st, err := e.store.MutateBatch(ctx, func(st *models.BatchTaskStatus) error {
		if !st.IsActive() {
			return fmt.Errorf("%w: batch task is %s", common.ErrStateConflict, st.Phase)
		}
		if progress == nil {
			// Nothing runs here to observe the flag
			st.Phase = models.BatchPhaseCancelled
			st.EndTime = &now
			return nil
		}
		st.Phase = models.BatchPhaseCancelling
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info().Str("phase", string(st.Phase)).Msg("Batch task cancel requested")
	return e.withLive(st), nil
}

// GetStatus returns the persisted task with the live counters merged in while it runs.
// It returns nil when no task was ever created.
func (e *Executor) GetStatus(ctx context.Context) (*models.BatchTaskStatus, error) {
	st, err := e.store.GetBatch(ctx)
	if err != nil || st == nil {
		return st, err
	}
	return e.withLive(st), nil
}

func (e *Executor) withLive(st *models.BatchTaskStatus) *models.BatchTaskStatus {
	if st.Phase != models.BatchPhasePending && st.Phase != models.BatchPhaseProcessing && st.Phase != models.BatchPhaseCancelling {
		return st
	}
	e.mu.Lock()
	progress := e.current
	e.mu.Unlock()
	if progress != nil {
		progress.Apply(st)
	}
	return st
}

// Wait blocks until the running task, if any, has finished
func (e *Executor) Wait() {
	e.wg.Wait()
}

// Settings returns the effective batch configuration
func (e *Executor) Settings() Settings {
	b := e.config.Batch
	return Settings{
		Enabled:       b.Enabled && e.invoker != nil,
		KeepOriginal:  b.KeepOriginal,
		RemoteStorage: b.RemoteStorage,
		AllowedTypes:  append([]string{}, b.AllowedTypes...),
		MinSize:       b.MinSize,
		Quality:       b.Quality,
		MaxDimension:  b.MaxDimension,
		Concurrency:   b.Concurrency,
	}
}

// CountReferenced reports how many of ids are referenced by content, so callers
// can warn before replacing originals
func (e *Executor) CountReferenced(ctx context.Context, ids []string) (int, error) {
	if e.references == nil {
		return 0, nil
	}
	return e.references.CountReferenced(ctx, ids)
}

var errSuperseded = errors.New("task superseded")

func (e *Executor) run(ctx context.Context, progress *Progress, ids []string, startedAt time.Time, keepOriginal bool) error {
	_, err := e.store.MutateBatch(ctx, func(st *models.BatchTaskStatus) error {
		if !ownsTask(st, startedAt) {
			return errSuperseded
		}
		if st.Phase != models.BatchPhasePending {
			return status.ErrUnchanged
		}
		st.Phase = models.BatchPhaseProcessing
		return nil
	})
	if err != nil {
		return err
	}

	g := new(errgroup.Group)
	g.SetLimit(max(1, e.config.Batch.Concurrency))

	for _, id := range ids {
		if progress.Cancelled() {
			break
		}
		id := id
		g.Go(func() error {
			// The flag may have been raised while waiting for a slot
			if progress.Cancelled() {
				return nil
			}
			e.processItem(ctx, progress, id, keepOriginal)
			return nil
		})
	}
	_ = g.Wait()

	endedAt := time.Now()
	final, err := e.store.MutateBatch(ctx, func(st *models.BatchTaskStatus) error {
		if !ownsTask(st, startedAt) {
			return errSuperseded
		}
		progress.Apply(st)
		st.EndTime = &endedAt
		if progress.Cancelled() || st.Phase == models.BatchPhaseCancelling {
			st.Phase = models.BatchPhaseCancelled
		} else {
			st.Phase = models.BatchPhaseCompleted
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.Info().
		Str("phase", string(final.Phase)).
		Int("total", final.Progress.Total).
		Int("succeeded", final.Progress.Succeeded).
		Int("failed", final.Progress.Failed).
		Int("skipped", final.SkippedCount).
		Int64("saved_bytes", final.SavedBytes).
		Str("duration", endedAt.Sub(startedAt).String()).
		Msg("Batch task finished")

	return nil
}

// finish releases the task slot and records a failed run
func (e *Executor) finish(ctx context.Context, progress *Progress, startedAt time.Time, err error) {
	e.mu.Lock()
	if e.current == progress {
		e.current = nil
	}
	e.mu.Unlock()

	if err == nil {
		return
	}
	if errors.Is(err, errSuperseded) {
		e.logger.Warn().Msg("Batch task finished after being superseded, result discarded")
		return
	}

	e.logger.Error().Err(err).Msg("Batch task failed")

	endedAt := time.Now()
	_, mutateErr := e.store.MutateBatch(ctx, func(st *models.BatchTaskStatus) error {
		if !ownsTask(st, startedAt) {
			return status.ErrUnchanged
		}
		progress.Apply(st)
		st.Phase = models.BatchPhaseError
		st.EndTime = &endedAt
		st.ErrorMessage = err.Error()
		return nil
	})
	if mutateErr != nil {
		e.logger.Error().Err(mutateErr).Msg("Failed to record batch task failure")
	}
}

func ownsTask(st *models.BatchTaskStatus, startedAt time.Time) bool {
	return st.StartTime != nil && st.StartTime.Equal(startedAt)
}

// processItem runs one asset through the pipeline and records exactly one outcome
func (e *Executor) processItem(ctx context.Context, progress *Progress, id string, keepOriginal bool) {
	started := time.Now()

	entry := &models.ProcessingLog{
		ID:        common.NewID("processing"),
		AssetID:   id,
		Source:    ProcessingSource,
		StartTime: started,
	}

	asset, err := e.inventory.Get(ctx, id)
	if err != nil {
		reason := "lookup failed: " + err.Error()
		progress.Fail(models.BatchItem{AssetID: id, Reason: reason})
		e.writeLog(ctx, entry, models.ProcessingFailed, reason)
		return
	}
	if asset == nil {
		progress.Skip(models.BatchItem{AssetID: id, Reason: ReasonAssetMissing})
		e.writeLog(ctx, entry, models.ProcessingSkipped, ReasonAssetMissing)
		return
	}

	item := models.BatchItem{AssetID: asset.ID, DisplayName: asset.DisplayName}
	entry.Filename = asset.DisplayName
	entry.MediaType = asset.MediaType
	entry.OriginalSize = asset.Size

	if reason := e.skipReason(asset); reason != "" {
		item.Reason = reason
		progress.Skip(item)
		e.writeLog(ctx, entry, models.ProcessingSkipped, reason)
		return
	}

	data, err := e.download(ctx, asset)
	if err != nil {
		item.Reason = "download failed: " + err.Error()
		progress.Fail(item)
		e.writeLog(ctx, entry, models.ProcessingFailed, item.Reason)
		return
	}

	result, err := e.invoker.Process(ctx, interfaces.TransformRequest{
		Data:      data,
		Filename:  asset.DisplayName,
		MediaType: asset.MediaType,
	})
	if err != nil {
		item.Reason = "transform failed: " + err.Error()
		progress.Fail(item)
		e.writeLog(ctx, entry, models.ProcessingFailed, item.Reason)
		return
	}
	switch result.Status {
	case interfaces.TransformSkipped:
		item.Reason = result.Message
		progress.Skip(item)
		e.writeLog(ctx, entry, models.ProcessingSkipped, result.Message)
		return
	case interfaces.TransformFailed:
		item.Reason = "transform failed: " + result.Message
		progress.Fail(item)
		e.writeLog(ctx, entry, models.ProcessingFailed, item.Reason)
		return
	}

	uploaded, err := e.inventory.Upload(ctx, e.uploadRequest(asset, result))
	if err != nil {
		item.Reason = "upload failed: " + err.Error()
		progress.Fail(item)
		e.writeLog(ctx, entry, models.ProcessingFailed, item.Reason)
		return
	}
	entry.ResultFilename = uploaded.DisplayName
	entry.ResultSize = uploaded.Size

	if keepOriginal {
		progress.Succeed(0, true)
		e.writeLog(ctx, entry, models.ProcessingSuccess, "original kept")
		return
	}

	if err := e.inventory.Delete(ctx, asset.ID); err != nil {
		// The new file exists and the original is still in place
		item.Reason = "delete original failed: " + err.Error()
		progress.Fail(item)
		e.writeLog(ctx, entry, models.ProcessingPartial, item.Reason)
		return
	}

	progress.Succeed(asset.Size-uploaded.Size, false)
	e.writeLog(ctx, entry, models.ProcessingSuccess, "")
}

func (e *Executor) skipReason(asset *models.Asset) string {
	if e.config.IsRemoteBackend(asset.Backend) && !e.config.Batch.RemoteStorage {
		return ReasonRemoteDisabled
	}
	if !e.config.IsAllowedType(asset.MediaType) {
		return "format not allowed: " + asset.MediaType
	}
	if asset.Size < e.config.Batch.MinSize {
		return ReasonBelowThreshold
	}
	return ""
}

func (e *Executor) download(ctx context.Context, asset *models.Asset) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.DownloadTimeout())
	defer cancel()

	body, err := e.inventory.Open(ctx, asset.Permalink)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

func (e *Executor) uploadRequest(asset *models.Asset, result *interfaces.TransformResult) interfaces.UploadRequest {
	backend := e.config.Batch.TargetBackend
	if backend == "" {
		backend = asset.Backend
	}
	group := e.config.Batch.TargetGroup
	if group == "" {
		group = asset.Group
	}
	filename := result.Filename
	if filename == "" {
		filename = asset.DisplayName
	}
	mediaType := result.MediaType
	if mediaType == "" {
		mediaType = asset.MediaType
	}
	return interfaces.UploadRequest{
		Backend:   backend,
		Group:     group,
		Filename:  filename,
		Data:      result.Data,
		MediaType: mediaType,
	}
}

func (e *Executor) writeLog(ctx context.Context, entry *models.ProcessingLog, outcome models.ProcessingStatus, message string) {
	entry.Status = outcome
	entry.Message = message
	entry.EndTime = time.Now()
	if err := e.processingLog.SaveProcessingLog(ctx, entry); err != nil {
		e.logger.Warn().Err(err).Str("asset_id", entry.AssetID).Msg("Failed to write processing log")
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
