// -----------------------------------------------------------------------
// Reference Scanner
// Resolves extracted content URLs against the asset inventory, one full pass
// at a time, writing reference and broken link records
// -----------------------------------------------------------------------

package references

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/reclaim/internal/common"
	"github.com/ternarybob/reclaim/internal/interfaces"
	"github.com/ternarybob/reclaim/internal/models"
	"github.com/ternarybob/reclaim/internal/services/extractor"
	"github.com/ternarybob/reclaim/internal/services/sources"
	"github.com/ternarybob/reclaim/internal/services/status"
	"github.com/ternarybob/reclaim/internal/services/whitelist"
)

// Scanner runs reference passes
type Scanner struct {
	store      *status.Store
	inventory  interfaces.AssetInventory
	registry   *sources.Registry
	extractor  *extractor.Extractor
	references interfaces.ReferenceStorage
	brokenLink interfaces.BrokenLinkStorage
	whitelist  *whitelist.Service
	config     *common.Config
	logger     arbor.ILogger
	now        func() time.Time
	wg         sync.WaitGroup
}

// NewScanner creates a new reference scanner
func NewScanner(
	store *status.Store,
	inventory interfaces.AssetInventory,
	registry *sources.Registry,
	extractor *extractor.Extractor,
	storageManager interfaces.StorageManager,
	whitelist *whitelist.Service,
	config *common.Config,
	logger arbor.ILogger,
) *Scanner {
	return &Scanner{
		store:      store,
		inventory:  inventory,
		registry:   registry,
		extractor:  extractor,
		references: storageManager.ReferenceStorage(),
		brokenLink: storageManager.BrokenLinkStorage(),
		whitelist:  whitelist,
		config:     config,
		logger:     logger,
		now:        time.Now,
	}
}

// StartScan flips the reference status to SCANNING and runs the pass in the
// background. It returns common.ErrStateConflict while a pass is running and
// not yet past the stuck timeout.
func (s *Scanner) StartScan(ctx context.Context) (*models.ScanStatus, error) {
	startedAt, st, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	common.SafeGo(s.logger, "referenceScan", func() {
		s.finish(context.Background(), startedAt, s.run(context.Background(), startedAt))
		s.wg.Done()
	}, func(err error) {
		s.finish(context.Background(), startedAt, err)
		s.wg.Done()
	})

	return st, nil
}

// RunScan runs one pass in the caller's goroutine and returns the final status
func (s *Scanner) RunScan(ctx context.Context) (*models.ScanStatus, error) {
	startedAt, _, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	s.finish(ctx, startedAt, s.run(ctx, startedAt))
	return s.store.GetScan(ctx, models.ScanTypeReference)
}

// Wait blocks until background passes started by this scanner have finished
func (s *Scanner) Wait() {
	s.wg.Wait()
}

func (s *Scanner) begin(ctx context.Context) (time.Time, *models.ScanStatus, error) {
	startedAt := s.now()
	st, err := s.store.Begin(ctx, models.ScanTypeReference, s.config.ScanTimeout(), startedAt)
	if err != nil {
		return time.Time{}, nil, err
	}

	// The broken link status follows the reference pass
	if _, err := s.store.MutateScan(ctx, models.ScanTypeBrokenLink, func(b *models.ScanStatus) error {
		b.Phase = models.ScanPhaseScanning
		b.StartTime = &startedAt
		b.EndTime = nil
		b.ErrorMessage = ""
		return nil
	}); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to mark broken link scan as running")
	}

	s.logger.Info().Str("started_at", startedAt.Format(time.RFC3339)).Msg("Reference scan started")
	return startedAt, st, nil
}

// passResult carries the outcome of one pass to finish
type passResult struct {
	counters models.ScanCounters
	checked  int
	broken   int
}

var errSuperseded = errors.New("pass superseded")

func (s *Scanner) run(ctx context.Context, startedAt time.Time) (err error) {
	defer func() {
		if errors.Is(err, errSuperseded) {
			s.discardPass(ctx, startedAt)
		}
	}()

	result, err := s.execute(ctx, startedAt)
	if err != nil {
		return err
	}

	endedAt := s.now()
	_, err = s.store.MutateScan(ctx, models.ScanTypeReference, func(st *models.ScanStatus) error {
		if !ownsPass(st, startedAt) {
			return errSuperseded
		}
		st.Phase = models.ScanPhaseCompleted
		st.EndTime = &endedAt
		st.LastScanTime = &endedAt
		st.Counters = result.counters
		st.ErrorMessage = ""
		return nil
	})
	if err != nil {
		return err
	}

	_, err = s.store.MutateScan(ctx, models.ScanTypeBrokenLink, func(st *models.ScanStatus) error {
		if !ownsPass(st, startedAt) {
			return status.ErrUnchanged
		}
		st.Phase = models.ScanPhaseCompleted
		st.EndTime = &endedAt
		st.LastScanTime = &endedAt
		st.Counters = models.ScanCounters{Checked: result.checked, Broken: result.broken}
		st.ErrorMessage = ""
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to update broken link scan status")
	}

	s.logger.Info().
		Int("assets", result.counters.Total).
		Int("referenced", result.counters.Referenced).
		Int("unreferenced", result.counters.Unreferenced).
		Int("checked_links", result.checked).
		Int("broken_links", result.broken).
		Str("duration", endedAt.Sub(startedAt).String()).
		Msg("Reference scan completed")

	return nil
}

// finish records a failed pass; a superseded pass leaves the status alone
func (s *Scanner) finish(ctx context.Context, startedAt time.Time, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, errSuperseded) {
		s.logger.Warn().Msg("Reference scan finished after being superseded, result discarded")
		return
	}

	s.logger.Error().Err(err).Msg("Reference scan failed")

	endedAt := s.now()
	for _, scanType := range []models.ScanType{models.ScanTypeReference, models.ScanTypeBrokenLink} {
		_, mutateErr := s.store.MutateScan(ctx, scanType, func(st *models.ScanStatus) error {
			if !ownsPass(st, startedAt) {
				return status.ErrUnchanged
			}
			st.Phase = models.ScanPhaseError
			st.EndTime = &endedAt
			st.ErrorMessage = err.Error()
			return nil
		})
		if mutateErr != nil {
			s.logger.Error().Err(mutateErr).Str("scan_type", string(scanType)).Msg("Failed to record scan failure")
		}
	}
}

func ownsPass(st *models.ScanStatus, startedAt time.Time) bool {
	return st.StartTime != nil && st.StartTime.Equal(startedAt)
}

// checkOwner returns errSuperseded once a newer pass has claimed the status record
func (s *Scanner) checkOwner(ctx context.Context, startedAt time.Time) error {
	st, err := s.store.GetScan(ctx, models.ScanTypeReference)
	if err != nil {
		return err
	}
	if !ownsPass(st, startedAt) {
		return errSuperseded
	}
	return nil
}

// discardPass deletes whatever a superseded pass managed to write
func (s *Scanner) discardPass(ctx context.Context, startedAt time.Time) {
	ts := common.ScanTimestamp(startedAt)
	for _, store := range []interfaces.ReplaceableStorage{s.references, s.brokenLink} {
		n, err := store.DeletePass(ctx, ts)
		if err != nil {
			s.logger.Error().Err(err).Int64("scan_timestamp", ts).Msg("Failed to discard superseded reference pass")
			continue
		}
		if n > 0 {
			s.logger.Debug().Int("deleted", n).Int64("scan_timestamp", ts).Msg("Superseded pass records discarded")
		}
	}
}

func (s *Scanner) execute(ctx context.Context, startedAt time.Time) (*passResult, error) {
	ts := common.ScanTimestamp(startedAt)

	// 1. Full replacement of the previous pass
	if err := s.checkOwner(ctx, startedAt); err != nil {
		return nil, err
	}
	if err := s.clearPrevious(ctx); err != nil {
		return nil, err
	}

	// 2. Build the URL index from every enabled content source
	index, err := s.buildIndex(ctx)
	if err != nil {
		return nil, err
	}

	// 3. Match live assets
	assets, err := s.inventory.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}

	result := &passResult{}
	records := make([]*models.ReferenceRecord, 0, len(assets))
	for _, asset := range assets {
		if s.config.IsExcluded(asset.Group, asset.Backend) {
			continue
		}
		found := index.match(asset.Permalink)
		refs := found.sorted()

		records = append(records, &models.ReferenceRecord{
			Name:           common.ReferenceName(asset.ID, ts),
			AssetID:        asset.ID,
			DisplayName:    asset.DisplayName,
			MediaType:      asset.MediaType,
			Size:           asset.Size,
			Permalink:      asset.Permalink,
			Backend:        asset.Backend,
			Group:          asset.Group,
			ReferenceCount: len(refs),
			Sources:        refs,
			LastScannedAt:  startedAt,
		})

		result.counters.Total++
		result.counters.Scanned++
		if len(refs) > 0 {
			result.counters.Referenced++
		} else {
			result.counters.Unreferenced++
			result.counters.UnreferencedSz += asset.Size
		}
	}

	// 4. Persist one record per asset, unless a newer pass took over meanwhile
	if err := s.checkOwner(ctx, startedAt); err != nil {
		return nil, err
	}
	if err := s.references.SaveReferences(ctx, records); err != nil {
		return nil, fmt.Errorf("failed to save references: %w", err)
	}

	// 5. Unconsumed URLs minus the whitelist become broken links
	entries, err := s.whitelist.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load whitelist: %w", err)
	}

	var links []*models.BrokenLink
	for _, c := range index.unresolved() {
		if whitelist.Filter(entries, c.url) {
			continue
		}
		refs := c.sources.sorted()
		links = append(links, &models.BrokenLink{
			Name:         common.BrokenLinkName(ts, len(links)+1),
			URL:          c.url,
			Sources:      refs,
			SourceCount:  len(refs),
			DiscoveredAt: startedAt,
		})
	}
	if err := s.brokenLink.SaveBrokenLinks(ctx, links); err != nil {
		return nil, fmt.Errorf("failed to save broken links: %w", err)
	}

	result.checked = index.checkedCount()
	result.broken = len(links)
	return result, nil
}

func (s *Scanner) clearPrevious(ctx context.Context) error {
	for _, store := range []interfaces.ReplaceableStorage{s.references, s.brokenLink} {
		if _, err := store.MarkAllPendingDelete(ctx); err != nil {
			return err
		}
		if _, err := store.DeletePending(ctx); err != nil {
			return err
		}
	}
	return nil
}

// buildIndex reads every resolved source concurrently. A source that cannot be
// listed fails the pass; a single entry that fails to extract is logged and skipped.
func (s *Scanner) buildIndex(ctx context.Context) (*urlIndex, error) {
	index := newURLIndex(s.config.Assets.BaseURL)

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range s.registry.Resolve() {
		src := src
		g.Go(func() error {
			entries, err := src.List(gctx)
			if err != nil {
				return fmt.Errorf("failed to read %s content: %w", src.Kind(), err)
			}
			urls := 0
			for _, entry := range entries {
				urls += s.indexEntry(index, entry)
			}
			s.logger.Debug().
				Str("kind", src.Kind()).
				Int("items", len(entries)).
				Int("urls", urls).
				Msg("Content source scanned")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return index, nil
}

// indexEntry extracts every fragment of entry and merges the URLs into index.
// Nothing is merged when extraction panics.
func (s *Scanner) indexEntry(index *urlIndex, entry interfaces.ContentEntry) (count int) {
	type fragmentResult struct {
		result *extractor.Result
		ref    models.SourceRef
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn().
				Str("source_type", entry.Source.SourceType).
				Str("source_id", entry.Source.SourceID).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Content extraction failed, item skipped")
			count = 0
		}
	}()

	results := make([]fragmentResult, 0, len(entry.Fragments))
	for _, f := range entry.Fragments {
		var res *extractor.Result
		if f.Direct {
			res = extractor.Direct(f.Body)
		} else {
			res = s.extractor.Extract(f.Body, f.IsHTML)
		}
		ref := entry.Source
		ref.ReferenceKind = f.ReferenceKind
		ref.OwnerSettingID = f.OwnerSettingID
		results = append(results, fragmentResult{result: res, ref: ref})
	}

	for _, r := range results {
		index.addResult(r.result, r.ref)
		count += r.result.Len()
	}
	return count
}
