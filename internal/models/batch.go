package models

import "time"

// BatchPhase is the lifecycle phase of the singleton batch task
type BatchPhase string

const (
	BatchPhasePending    BatchPhase = "PENDING"
	BatchPhaseProcessing BatchPhase = "PROCESSING"
	BatchPhaseCancelling BatchPhase = "CANCELLING"
	BatchPhaseCancelled  BatchPhase = "CANCELLED"
	BatchPhaseCompleted  BatchPhase = "COMPLETED"
	BatchPhaseError      BatchPhase = "ERROR"
)

// BatchProgress counts items reaching a terminal outcome
type BatchProgress struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// BatchItem records why an item failed or was skipped
type BatchItem struct {
	AssetID     string `json:"asset_id"`
	DisplayName string `json:"display_name"`
	Reason      string `json:"reason"`
}

// BatchTaskStatus is the persisted singleton batch task
type BatchTaskStatus struct {
	Phase             BatchPhase    `json:"phase"`
	AssetIDs          []string      `json:"asset_ids"`
	KeepOriginal      bool          `json:"keep_original"`
	Progress          BatchProgress `json:"progress"`
	FailedItems       []BatchItem   `json:"failed_items"`
	SkippedItems      []BatchItem   `json:"skipped_items"`
	SkippedCount      int           `json:"skipped_count"`
	SavedBytes        int64         `json:"saved_bytes"`
	KeptOriginalCount int           `json:"kept_original_count"`
	StartTime         *time.Time    `json:"start_time,omitempty"`
	EndTime           *time.Time    `json:"end_time,omitempty"`
	ErrorMessage      string        `json:"error_message,omitempty"`
	Version           int64         `json:"version"`
}

// IsActive reports whether the task is pending or running
func (b *BatchTaskStatus) IsActive() bool {
	return b.Phase == BatchPhasePending || b.Phase == BatchPhaseProcessing
}
