// -----------------------------------------------------------------------
// Duplicate Scanner
// Groups assets by content digest and recommends which copy to keep
// -----------------------------------------------------------------------

package duplicates

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/reclaim/internal/common"
	"github.com/ternarybob/reclaim/internal/interfaces"
	"github.com/ternarybob/reclaim/internal/models"
	"github.com/ternarybob/reclaim/internal/services/status"
)

// Scanner runs duplicate passes
type Scanner struct {
	store      *status.Store
	inventory  interfaces.AssetInventory
	hasher     *Hasher
	groups     interfaces.DuplicateStorage
	references interfaces.ReferenceStorage
	config     *common.Config
	logger     arbor.ILogger
	now        func() time.Time
	wg         sync.WaitGroup
	progress   atomic.Pointer[scanProgress]
}

// scanProgress counts the assets hashed so far by the running pass
type scanProgress struct {
	startedAt time.Time
	total     int
	processed atomic.Int64
}

// NewScanner creates a new duplicate scanner
func NewScanner(
	store *status.Store,
	inventory interfaces.AssetInventory,
	storageManager interfaces.StorageManager,
	config *common.Config,
	logger arbor.ILogger,
) *Scanner {
	return &Scanner{
		store:      store,
		inventory:  inventory,
		hasher:     NewHasher(inventory, config.HashTimeout()),
		groups:     storageManager.DuplicateStorage(),
		references: storageManager.ReferenceStorage(),
		config:     config,
		logger:     logger,
		now:        time.Now,
	}
}

// StartScan flips the duplicate status to SCANNING and hashes in the background.
// It returns common.ErrStateConflict while a pass is running and not yet stuck.
func (s *Scanner) StartScan(ctx context.Context) (*models.ScanStatus, error) {
	startedAt := s.now()
	st, err := s.store.Begin(ctx, models.ScanTypeDuplicate, s.config.ScanTimeout(), startedAt)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("started_at", startedAt.Format(time.RFC3339)).Msg("Duplicate scan started")

	s.wg.Add(1)
	common.SafeGo(s.logger, "duplicateScan", func() {
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
	startedAt := s.now()
	if _, err := s.store.Begin(ctx, models.ScanTypeDuplicate, s.config.ScanTimeout(), startedAt); err != nil {
		return nil, err
	}
	s.finish(ctx, startedAt, s.run(ctx, startedAt))
	return s.store.GetScan(ctx, models.ScanTypeDuplicate)
}

// Wait blocks until background passes and pending group purges have finished
func (s *Scanner) Wait() {
	s.wg.Wait()
}

var errSuperseded = errors.New("pass superseded")

// hashed is one asset with its digest, kept in listing order
type hashed struct {
	index int
	asset *models.Asset
}

// Overlay copies the live counters of the running pass into st. Persisted
// counters are only written when a pass ends.
func (s *Scanner) Overlay(st *models.ScanStatus) {
	if st == nil || st.Phase != models.ScanPhaseScanning {
		return
	}
	p := s.progress.Load()
	if p == nil || !ownsPass(st, p.startedAt) {
		return
	}
	st.Counters.Total = p.total
	st.Counters.Scanned = int(p.processed.Load())
}

func ownsPass(st *models.ScanStatus, startedAt time.Time) bool {
	return st.StartTime != nil && st.StartTime.Equal(startedAt)
}

// checkOwner returns errSuperseded once a newer pass has claimed the status record
func (s *Scanner) checkOwner(ctx context.Context, startedAt time.Time) error {
	st, err := s.store.GetScan(ctx, models.ScanTypeDuplicate)
	if err != nil {
		return err
	}
	if !ownsPass(st, startedAt) {
		return errSuperseded
	}
	return nil
}

func (s *Scanner) run(ctx context.Context, startedAt time.Time) (err error) {
	ts := common.ScanTimestamp(startedAt)
	defer func() {
		if !errors.Is(err, errSuperseded) {
			return
		}
		if n, delErr := s.groups.DeletePass(ctx, ts); delErr != nil {
			s.logger.Error().Err(delErr).Int64("scan_timestamp", ts).Msg("Failed to discard superseded duplicate pass")
		} else if n > 0 {
			s.logger.Debug().Int("deleted", n).Int64("scan_timestamp", ts).Msg("Superseded pass groups discarded")
		}
	}()

	// 1. Tag the previous pass; tagged groups are invisible to readers
	if err := s.checkOwner(ctx, startedAt); err != nil {
		return err
	}
	if _, err := s.groups.MarkAllPendingDelete(ctx); err != nil {
		return err
	}

	// 2-3. Assets on eligible backends
	var assets []*models.Asset
	if backends := s.eligibleBackends(); len(backends) > 0 {
		listed, err := s.inventory.List(ctx, &models.AssetFilter{Backends: backends})
		if err != nil {
			return fmt.Errorf("failed to list assets: %w", err)
		}
		assets = listed
	}

	var counters models.ScanCounters
	counters.Total = len(assets)

	progress := &scanProgress{startedAt: startedAt, total: len(assets)}
	s.progress.Store(progress)
	defer s.progress.CompareAndSwap(progress, nil)

	var groups []*models.DuplicateGroup
	if len(assets) > 0 {
		// 4. Hash with bounded concurrency
		byDigest := s.hashAll(ctx, assets, progress)
		for _, members := range byDigest {
			counters.Scanned += len(members)
		}

		// 5-6. Groups for digests shared by two or more assets
		groups = s.buildGroups(ctx, byDigest, ts, startedAt)
		if err := s.checkOwner(ctx, startedAt); err != nil {
			return err
		}
		for _, g := range groups {
			if err := s.groups.SaveGroup(ctx, g); err != nil {
				return fmt.Errorf("failed to save duplicate group: %w", err)
			}
			counters.Groups++
			counters.DuplicateFiles += len(g.Members)
			counters.SavableBytes += g.SavableBytes
		}
	}

	// 7. Publish the totals
	endedAt := s.now()
	_, err = s.store.MutateScan(ctx, models.ScanTypeDuplicate, func(st *models.ScanStatus) error {
		if !ownsPass(st, startedAt) {
			return errSuperseded
		}
		st.Phase = models.ScanPhaseCompleted
		st.EndTime = &endedAt
		st.LastScanTime = &endedAt
		st.Counters = counters
		st.ErrorMessage = ""
		return nil
	})
	if err != nil {
		return err
	}

	s.purgePending(startedAt)

	s.logger.Info().
		Int("assets", counters.Total).
		Int("hashed", counters.Scanned).
		Int("groups", counters.Groups).
		Int("duplicate_files", counters.DuplicateFiles).
		Int64("savable_bytes", counters.SavableBytes).
		Str("duration", endedAt.Sub(startedAt).String()).
		Msg("Duplicate scan completed")

	return nil
}

func (s *Scanner) finish(ctx context.Context, startedAt time.Time, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, errSuperseded) {
		s.logger.Warn().Msg("Duplicate scan finished after being superseded, result discarded")
		return
	}

	s.logger.Error().Err(err).Msg("Duplicate scan failed")

	endedAt := s.now()
	_, mutateErr := s.store.MutateScan(ctx, models.ScanTypeDuplicate, func(st *models.ScanStatus) error {
		if !ownsPass(st, startedAt) {
			return status.ErrUnchanged
		}
		st.Phase = models.ScanPhaseError
		st.EndTime = &endedAt
		st.ErrorMessage = err.Error()
		return nil
	})
	if mutateErr != nil {
		s.logger.Error().Err(mutateErr).Msg("Failed to record duplicate scan failure")
	}
}

// eligibleBackends lists local backends, plus remote ones when remote scanning is on
func (s *Scanner) eligibleBackends() []string {
	var names []string
	for _, b := range s.config.Assets.Backends {
		if b.Kind == common.BackendKindRemote && !s.config.Scan.RemoteStorage {
			continue
		}
		names = append(names, b.Name)
	}
	return names
}

// hashAll maps digest to the assets carrying it. Assets that fail to hash are
// logged and left out.
func (s *Scanner) hashAll(ctx context.Context, assets []*models.Asset, progress *scanProgress) map[string][]hashed {
	var (
		mu       sync.Mutex
		byDigest = make(map[string][]hashed)
		failed   int64
		total    = len(assets)
		interval = int64(s.config.Scan.ProgressLogInterval)
	)

	if interval <= 0 {
		interval = 50
	}

	g := new(errgroup.Group)
	g.SetLimit(max(1, s.config.Scan.DuplicateConcurrency))

	for i, asset := range assets {
		i, asset := i, asset
		g.Go(func() error {
			digest, err := s.hasher.Hash(ctx, asset)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				s.logger.Warn().Err(err).Str("asset_id", asset.ID).Msg("Failed to hash asset, skipped")
			} else {
				mu.Lock()
				byDigest[digest] = append(byDigest[digest], hashed{index: i, asset: asset})
				mu.Unlock()
			}

			if n := progress.processed.Add(1); n%interval == 0 || int(n) == total {
				s.logger.Info().Int64("processed", n).Int("total", total).Msg("Duplicate scan progress")
			}
			return nil
		})
	}
	_ = g.Wait()

	if failed > 0 {
		s.logger.Warn().Int64("failed", failed).Msg("Some assets could not be hashed")
	}
	return byDigest
}

func (s *Scanner) buildGroups(ctx context.Context, byDigest map[string][]hashed, ts int64, createdAt time.Time) []*models.DuplicateGroup {
	var groups []*models.DuplicateGroup
	for digest, entries := range byDigest {
		if len(entries) < 2 {
			continue
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].index < entries[j].index })

		members := make([]models.DuplicateMember, 0, len(entries))
		for _, e := range entries {
			members = append(members, models.DuplicateMember{
				AssetID:        e.asset.ID,
				DisplayName:    e.asset.DisplayName,
				MediaType:      e.asset.MediaType,
				Permalink:      e.asset.Permalink,
				Size:           e.asset.Size,
				UploadedAt:     e.asset.UploadedAt,
				ReferenceCount: s.referenceCount(ctx, e.asset.ID),
			})
		}

		group := &models.DuplicateGroup{
			Name:        common.DuplicateGroupName(digest, ts),
			ContentHash: digest,
			Members:     members,
			CreatedAt:   createdAt,
		}
		group.Recompute()
		group.RecommendedKeepID = RecommendKeep(members)
		groups = append(groups, group)
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups
}

// referenceCount reads the latest reference pass result; unscanned assets count as zero
func (s *Scanner) referenceCount(ctx context.Context, assetID string) int {
	record, err := s.references.GetReferenceByAsset(ctx, assetID)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			s.logger.Warn().Err(err).Str("asset_id", assetID).Msg("Failed to read reference count")
		}
		return 0
	}
	return record.ReferenceCount
}

// RecommendKeep picks the member with the most references. Ties go to the
// earliest known upload time, then to the first member.
func RecommendKeep(members []models.DuplicateMember) string {
	if len(members) == 0 {
		return ""
	}
	best := 0
	for i := 1; i < len(members); i++ {
		m, b := members[i], members[best]
		switch {
		case m.ReferenceCount > b.ReferenceCount:
			best = i
		case m.ReferenceCount == b.ReferenceCount && m.UploadedAt != nil &&
			(b.UploadedAt == nil || m.UploadedAt.Before(*b.UploadedAt)):
			best = i
		}
	}
	return members[best].AssetID
}

// purgePending hard-deletes tagged groups of passes older than the one started
// at startedAt, after the configured delay
func (s *Scanner) purgePending(startedAt time.Time) {
	delay := s.config.OldGroupDeleteDelay()

	s.wg.Add(1)
	common.SafeGo(s.logger, "duplicateGroupPurge", func() {
		defer s.wg.Done()
		if delay > 0 {
			time.Sleep(delay)
		}
		n, err := s.groups.DeletePendingBefore(context.Background(), startedAt)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to purge previous duplicate groups")
			return
		}
		s.logger.Debug().Int("deleted", n).Msg("Previous duplicate groups purged")
	}, nil)
}
