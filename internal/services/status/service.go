package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reclaim/internal/common"
	"github.com/ternarybob/reclaim/internal/interfaces"
	"github.com/ternarybob/reclaim/internal/models"
)

// ErrUnchanged is returned by a mutate func to skip the write
var ErrUnchanged = errors.New("status unchanged")

// InterruptedMessage is recorded on passes found active at startup
const InterruptedMessage = "interrupted (service restart)"

// DefaultBackoff is the wait before each retry of a conflicting status write
var DefaultBackoff = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}

// Store is the scan lifecycle store: singleton status records per scan type and
// for the batch task, written with optimistic concurrency
type Store struct {
	storage      interfaces.StatusStorage
	eventService interfaces.EventService
	logger       arbor.ILogger
	backoff      []time.Duration
}

// NewStore creates a new status store
func NewStore(storage interfaces.StatusStorage, eventService interfaces.EventService, logger arbor.ILogger) *Store {
	return &Store{
		storage:      storage,
		eventService: eventService,
		logger:       logger,
		backoff:      DefaultBackoff,
	}
}

// GetScan returns the status of a scan type (idle when never run)
func (s *Store) GetScan(ctx context.Context, scanType models.ScanType) (*models.ScanStatus, error) {
	return s.storage.GetScanStatus(ctx, scanType)
}

// MutateScan applies fn to a fresh copy of the status and saves it, retrying on
// version conflicts. fn may run more than once and returns ErrUnchanged to skip
// the write; any other error aborts without writing.
func (s *Store) MutateScan(ctx context.Context, scanType models.ScanType, fn func(*models.ScanStatus) error) (*models.ScanStatus, error) {
	var saved *models.ScanStatus
	err := s.retry(ctx, string(scanType), func() error {
		current, err := s.storage.GetScanStatus(ctx, scanType)
		if err != nil {
			return err
		}
		if err := fn(current); err != nil {
			if errors.Is(err, ErrUnchanged) {
				saved = current
			}
			return err
		}
		if err := s.storage.SaveScanStatus(ctx, current); err != nil {
			return err
		}
		saved = current
		return nil
	})
	if errors.Is(err, ErrUnchanged) {
		return saved, nil
	}
	if err != nil {
		return nil, err
	}

	s.publish(ctx, models.StatusChange{Kind: string(scanType), Phase: string(saved.Phase), Scan: saved})
	return saved, nil
}

// GetBatch returns the batch task status, nil when no task was ever created
func (s *Store) GetBatch(ctx context.Context) (*models.BatchTaskStatus, error) {
	return s.storage.GetBatchStatus(ctx)
}

// MutateBatch is MutateScan for the batch task. fn receives an empty status at
// version 0 when no task exists yet.
func (s *Store) MutateBatch(ctx context.Context, fn func(*models.BatchTaskStatus) error) (*models.BatchTaskStatus, error) {
	var saved *models.BatchTaskStatus
	err := s.retry(ctx, models.StatusKindBatch, func() error {
		current, err := s.storage.GetBatchStatus(ctx)
		if err != nil {
			return err
		}
		if current == nil {
			current = &models.BatchTaskStatus{}
		}
		if err := fn(current); err != nil {
			if errors.Is(err, ErrUnchanged) {
				saved = current
			}
			return err
		}
		if err := s.storage.SaveBatchStatus(ctx, current); err != nil {
			return err
		}
		saved = current
		return nil
	})
	if errors.Is(err, ErrUnchanged) {
		return saved, nil
	}
	if err != nil {
		return nil, err
	}

	s.publish(ctx, models.StatusChange{Kind: models.StatusKindBatch, Phase: string(saved.Phase), Batch: saved})
	return saved, nil
}

// retry runs attempt until it stops returning common.ErrConflict, waiting out the
// backoff schedule between tries. The update is dropped once the schedule is spent.
func (s *Store) retry(ctx context.Context, what string, attempt func() error) error {
	for i := 0; ; i++ {
		err := attempt()
		if err == nil || !errors.Is(err, common.ErrConflict) {
			return err
		}
		if i >= len(s.backoff) {
			s.logger.Warn().
				Err(err).
				Str("status", what).
				Int("attempts", i+1).
				Msg("Status update dropped after repeated version conflicts")
			return err
		}

		s.logger.Debug().Str("status", what).Int("attempt", i+1).Msg("Status version conflict, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.backoff[i]):
		}
	}
}

func (s *Store) publish(ctx context.Context, change models.StatusChange) {
	if s.eventService == nil {
		return
	}
	event := interfaces.Event{
		Type:    interfaces.EventStatusChanged,
		Payload: change,
	}
	if err := s.eventService.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("kind", change.Kind).Msg("Failed to publish status change")
	}
}

// IsStuck reports whether a SCANNING status has outlived the timeout.
// A pass with no recorded start time is treated as stuck.
func IsStuck(status *models.ScanStatus, timeout time.Duration, now time.Time) bool {
	if status == nil || status.Phase != models.ScanPhaseScanning {
		return false
	}
	if status.StartTime == nil {
		return true
	}
	return now.Sub(*status.StartTime) > timeout
}

// Begin moves a scan type to SCANNING unless a pass is already running and not
// stuck. It returns common.ErrStateConflict when the pass must be rejected.
func (s *Store) Begin(ctx context.Context, scanType models.ScanType, timeout time.Duration, startedAt time.Time) (*models.ScanStatus, error) {
	return s.MutateScan(ctx, scanType, func(st *models.ScanStatus) error {
		if st.Phase == models.ScanPhaseScanning {
			if !IsStuck(st, timeout, startedAt) {
				return fmt.Errorf("%w: %s scan already running", common.ErrStateConflict, scanType)
			}
			s.logger.Warn().Str("scan_type", string(scanType)).Msg("Overriding stuck scan")
		}
		st.Phase = models.ScanPhaseScanning
		st.StartTime = &startedAt
		st.EndTime = nil
		st.ErrorMessage = ""
		return nil
	})
}

// Fail records a pass failure on the scan status
func (s *Store) Fail(ctx context.Context, scanType models.ScanType, cause error) {
	now := time.Now()
	_, err := s.MutateScan(ctx, scanType, func(st *models.ScanStatus) error {
		st.Phase = models.ScanPhaseError
		st.EndTime = &now
		st.ErrorMessage = cause.Error()
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).Str("scan_type", string(scanType)).Msg("Failed to record scan failure")
	}
}
