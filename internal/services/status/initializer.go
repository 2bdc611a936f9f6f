package status

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reclaim/internal/models"
)

// Initializer reconciles status records left active by a previous process
type Initializer struct {
	store  *Store
	logger arbor.ILogger
}

// NewInitializer creates a new startup sweep
func NewInitializer(store *Store, logger arbor.ILogger) *Initializer {
	return &Initializer{store: store, logger: logger}
}

// Run marks every scan left SCANNING and any batch task left pending, processing
// or cancelling as ERROR. Failures are logged; startup continues.
func (i *Initializer) Run(ctx context.Context) {
	now := time.Now()

	for _, scanType := range models.ScanTypes {
		swept := false
		_, err := i.store.MutateScan(ctx, scanType, func(st *models.ScanStatus) error {
			if st.Phase != models.ScanPhaseScanning {
				return ErrUnchanged
			}
			swept = true
			st.Phase = models.ScanPhaseError
			st.EndTime = &now
			st.ErrorMessage = InterruptedMessage
			return nil
		})
		if err != nil {
			i.logger.Warn().Err(err).Str("scan_type", string(scanType)).Msg("Failed to reconcile scan status")
			continue
		}
		if swept {
			i.logger.Info().Str("scan_type", string(scanType)).Msg("Interrupted scan marked as failed")
		}
	}

	_, err := i.store.MutateBatch(ctx, func(b *models.BatchTaskStatus) error {
		switch b.Phase {
		case models.BatchPhasePending, models.BatchPhaseProcessing, models.BatchPhaseCancelling:
			i.logger.Info().Str("phase", string(b.Phase)).Msg("Interrupted batch task marked as failed")
			b.Phase = models.BatchPhaseError
			b.EndTime = &now
			b.ErrorMessage = InterruptedMessage
			return nil
		default:
			return ErrUnchanged
		}
	})
	if err != nil {
		i.logger.Warn().Err(err).Msg("Failed to reconcile batch status")
	}
}
